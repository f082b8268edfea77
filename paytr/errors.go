package paytr

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrAmountOutOfRange   = errors.New("amount out of range")
	ErrInvalidDueDate     = errors.New("invalid due date")
	ErrDueDateOutOfRange  = &kindError{message: "due date out of range", parent: ErrInvalidDueDate}
	ErrDuplicateReference = errors.New("duplicate reference")
	ErrInvalidPayee       = errors.New("invalid payee")
	ErrVaultNotAllowed    = errors.New("vault not allowed")
	ErrVaultNotFound      = &kindError{message: "vault not found", parent: ErrVaultNotAllowed}
	ErrUnsupportedAsset   = errors.New("unsupported asset")
	ErrAlreadySet         = errors.New("due date already set")
	ErrAlreadyRedeemed    = errors.New("already redeemed")
	ErrNotDue             = errors.New("invoice not due")
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrVaultRejected      = errors.New("vault rejected")
	ErrVaultShortfall     = errors.New("vault shortfall")
	ErrClaimFailed        = errors.New("claim failed")
	ErrNothingOwed        = errors.New("nothing owed")
	ErrBatchTooLarge      = errors.New("batch too large")
	ErrReentrantCall      = errors.New("reentrant call")
)

// kindError is a sentinel that also matches a broader sentinel
type kindError struct {
	message string
	parent  error
}

func (e *kindError) Error() string { return e.message }

func (e *kindError) Unwrap() error { return e.parent }

// ParameterError names the input that failed validation
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

func (e *ParameterError) Unwrap() error { return ErrInvalidParameter }

func invalid(field, format string, args ...any) (err *ParameterError) {
	return &ParameterError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
