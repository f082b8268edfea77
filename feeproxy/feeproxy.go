package feeproxy

import (
	"context"
	"errors"
)

var ErrUnsupportedToken = errors.New("token not supported by fee proxy")

type (
	TransferRequest struct {
		// Account paying, it must have approved the proxy for Amount+FeeAmount
		Sender string
		// Token address
		Token string
		// Recipient of Amount
		To     string
		Amount uint64
		// Payment reference, forwarded in the proxy log
		Reference string
		// Fee delivered to FeeAddress
		FeeAmount  uint64
		FeeAddress string
	}
	Transfer struct {
		Token      string
		To         string
		Amount     uint64
		Reference  string
		FeeAmount  uint64
		FeeAddress string
	}
)

// Proxy is a third party contract forwarding a payment and its fee in one call while logging the reference
type Proxy interface {
	// Address of the proxy
	Address() (address string)

	TransferWithReferenceAndFee(ctx context.Context, req TransferRequest) (transfer Transfer, err error)
}
