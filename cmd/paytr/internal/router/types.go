package router

import (
	"fmt"
	"time"

	"anarchy.ttfm/paytr/decimal"
	"anarchy.ttfm/paytr/events"
	"anarchy.ttfm/paytr/paytr"
	"github.com/google/uuid"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func toUint64(field string, d *decimal.Decimal) (v uint64, err error) {
	v, err = d.ToUint64()
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	return v, nil
}

type (
	InvoiceKey struct {
		Payer     string `json:"payer"`
		Payee     string `json:"payee"`
		Reference string `json:"reference"`
	}
	// Pay escrows an invoice, with a fee when FeeAmount is set. The caller is the payer
	Pay struct {
		Asset      string          `json:"asset"`
		Payee      string          `json:"payee"`
		DueDate    int64           `json:"dueDate,omitzero"`
		Amount     decimal.Decimal `json:"amount"`
		Reference  string          `json:"reference"`
		Vault      string          `json:"vault,omitzero"`
		FeeAmount  decimal.Decimal `json:"feeAmount,omitzero"`
		FeeAddress string          `json:"feeAddress,omitzero"`
	}
	AmendDueDate struct {
		Payee     string `json:"payee"`
		Reference string `json:"reference"`
		DueDate   int64  `json:"dueDate"`
	}
	Invoice struct {
		Id         uuid.UUID       `json:"id"`
		Reference  string          `json:"reference"`
		Amount     decimal.Decimal `json:"amount"`
		FeeAmount  decimal.Decimal `json:"feeAmount,omitzero"`
		FeeAddress string          `json:"feeAddress,omitzero"`
		DueDate    int64           `json:"dueDate,omitzero"`
		Payer      string          `json:"payer"`
		Payee      string          `json:"payee"`
		Asset      string          `json:"asset"`
		Vault      string          `json:"vault"`
		Shares     uint64          `json:"shares"`
		Status     paytr.Status    `json:"status"`
		CreatedAt  time.Time       `json:"createdAt"`
		RedeemedAt time.Time       `json:"redeemedAt,omitzero"`
	}
)

func (k *InvoiceKey) ToPaytr() (key paytr.InvoiceKey) {
	return paytr.InvoiceKey{Payer: k.Payer, Payee: k.Payee, Reference: k.Reference}
}

// PayToPaytr builds the controller request acting for caller
func PayToPaytr(caller string, src *Pay) (out paytr.PayInvoiceWithFee, err error) {
	out = paytr.PayInvoiceWithFee{
		PayInvoice: paytr.PayInvoice{
			From:      caller,
			Asset:     src.Asset,
			Payee:     src.Payee,
			DueDate:   src.DueDate,
			Reference: src.Reference,
			Vault:     src.Vault,
		},
		FeeAddress: src.FeeAddress,
	}
	out.Amount, err = toUint64("amount", &src.Amount)
	if err != nil {
		return out, err
	}
	out.FeeAmount, err = toUint64("feeAmount", &src.FeeAmount)
	if err != nil {
		return out, err
	}
	return out, nil
}

func InvoiceFromPaytr(src *paytr.Invoice, now time.Time) (invoice Invoice) {
	invoice = Invoice{
		Id:         src.Id,
		Reference:  src.Reference,
		FeeAddress: src.FeeAddress,
		DueDate:    src.DueDate,
		Payer:      src.Payer,
		Payee:      src.Payee,
		Asset:      src.Asset,
		Vault:      src.Vault,
		Shares:     src.Shares,
		Status:     src.Status(now),
		CreatedAt:  time.Unix(src.CreatedAt, 0).UTC(),
	}
	if src.RedeemedAt != 0 {
		invoice.RedeemedAt = time.Unix(src.RedeemedAt, 0).UTC()
	}
	invoice.Amount.FromUint64(src.Amount)
	invoice.FeeAmount.FromUint64(src.FeeAmount)
	return invoice
}

type (
	RedeemTotal struct {
		Asset  string          `json:"asset"`
		Vault  string          `json:"vault"`
		Amount decimal.Decimal `json:"amount"`
	}
	// PayOut settles Invoices. Totals are quoted on the spot when omitted
	PayOut struct {
		Invoices []InvoiceKey  `json:"invoices"`
		Totals   []RedeemTotal `json:"totals,omitempty"`
	}
	Quote struct {
		Invoices []InvoiceKey `json:"invoices"`
	}
	Disbursement struct {
		Invoice           uuid.UUID       `json:"invoice"`
		Key               InvoiceKey      `json:"key"`
		Amount            decimal.Decimal `json:"amount"`
		FeeAddress        string          `json:"feeAddress,omitzero"`
		FeeAmount         decimal.Decimal `json:"feeAmount,omitzero"`
		InterestRecipient string          `json:"interestRecipient"`
		Interest          decimal.Decimal `json:"interest"`
		ViaProxy          bool            `json:"viaProxy,omitzero"`
		Owed              decimal.Decimal `json:"owed,omitzero"`
	}
	GroupSettlement struct {
		Asset     string          `json:"asset"`
		Vault     string          `json:"vault"`
		Requested decimal.Decimal `json:"requested"`
		Received  decimal.Decimal `json:"received"`
		Escrow    decimal.Decimal `json:"escrow"`
		Interest  decimal.Decimal `json:"interest"`
		Covered   decimal.Decimal `json:"covered,omitzero"`
	}
	Settlement struct {
		Groups        []GroupSettlement `json:"groups"`
		Disbursements []Disbursement    `json:"disbursements"`
		ProtocolFloat decimal.Decimal   `json:"protocolFloat"`
	}
)

func keysToPaytr(src []InvoiceKey) (keys []paytr.InvoiceKey) {
	keys = make([]paytr.InvoiceKey, 0, len(src))
	for _, key := range src {
		keys = append(keys, key.ToPaytr())
	}
	return keys
}

func TotalsToPaytr(src []RedeemTotal) (totals []paytr.RedeemTotal, err error) {
	for _, total := range src {
		amount, err := toUint64("total", &total.Amount)
		if err != nil {
			return nil, err
		}
		totals = append(totals, paytr.RedeemTotal{Asset: total.Asset, Vault: total.Vault, Amount: amount})
	}
	return totals, nil
}

func TotalsFromPaytr(src []paytr.RedeemTotal) (totals []RedeemTotal) {
	totals = make([]RedeemTotal, 0, len(src))
	for _, total := range src {
		totals = append(totals, RedeemTotal{Asset: total.Asset, Vault: total.Vault, Amount: decimal.FromUint64(total.Amount)})
	}
	return totals
}

func SettlementFromPaytr(src *paytr.Settlement) (settlement Settlement) {
	settlement = Settlement{
		Groups:        make([]GroupSettlement, 0, len(src.Groups)),
		Disbursements: make([]Disbursement, 0, len(src.Disbursements)),
		ProtocolFloat: decimal.FromUint64(src.ProtocolFloat),
	}
	for _, g := range src.Groups {
		settlement.Groups = append(settlement.Groups, GroupSettlement{
			Asset:     g.Asset,
			Vault:     g.Vault,
			Requested: decimal.FromUint64(g.Withdraw.Requested),
			Received:  decimal.FromUint64(g.Withdraw.Received),
			Escrow:    decimal.FromUint64(g.Escrow),
			Interest:  decimal.FromUint64(g.Interest),
			Covered:   decimal.FromUint64(g.Covered),
		})
	}
	for _, d := range src.Disbursements {
		settlement.Disbursements = append(settlement.Disbursements, Disbursement{
			Invoice:           d.Invoice,
			Key:               InvoiceKey{Payer: d.Key.Payer, Payee: d.Key.Payee, Reference: d.Key.Reference},
			Amount:            decimal.FromUint64(d.Amount),
			FeeAddress:        d.FeeAddress,
			FeeAmount:         decimal.FromUint64(d.FeeAmount),
			InterestRecipient: d.InterestRecipient,
			Interest:          decimal.FromUint64(d.Interest),
			ViaProxy:          d.ViaProxy,
			Owed:              decimal.FromUint64(d.Owed),
		})
	}
	return settlement
}

// Parameters uses seconds for the due date window
type Parameters struct {
	FeeModifier        uint64          `json:"feeModifier"`
	MinDueDate         int64           `json:"minDueDate"`
	MaxDueDate         int64           `json:"maxDueDate"`
	MinAmount          decimal.Decimal `json:"minAmount"`
	MaxAmount          decimal.Decimal `json:"maxAmount"`
	MaxPayoutArraySize uint64          `json:"maxPayoutArraySize"`
}

func ParametersFromPaytr(src *paytr.Parameters) (params Parameters) {
	return Parameters{
		FeeModifier:        src.FeeModifier,
		MinDueDate:         int64(src.MinDueDate / time.Second),
		MaxDueDate:         int64(src.MaxDueDate / time.Second),
		MinAmount:          decimal.FromUint64(src.MinAmount),
		MaxAmount:          decimal.FromUint64(src.MaxAmount),
		MaxPayoutArraySize: src.MaxPayoutArraySize,
	}
}

func ParametersToPaytr(src *Parameters) (params paytr.Parameters, err error) {
	params = paytr.Parameters{
		FeeModifier:        src.FeeModifier,
		MinDueDate:         time.Duration(src.MinDueDate) * time.Second,
		MaxDueDate:         time.Duration(src.MaxDueDate) * time.Second,
		MaxPayoutArraySize: src.MaxPayoutArraySize,
	}
	params.MinAmount, err = toUint64("minAmount", &src.MinAmount)
	if err != nil {
		return params, err
	}
	params.MaxAmount, err = toUint64("maxAmount", &src.MaxAmount)
	if err != nil {
		return params, err
	}
	return params, nil
}

type (
	AddVault struct {
		Address  string `json:"address"`
		Decimals uint8  `json:"decimals"`
	}
	AddFeeRouting struct {
		Address string `json:"address"`
		// Also make it the default fee address
		Default bool `json:"default,omitzero"`
	}
	TransferOwnership struct {
		Owner string `json:"owner"`
	}
	Owner struct {
		Owner string `json:"owner"`
	}
	Claim struct {
		Amount decimal.Decimal `json:"amount"`
	}
	Rewards struct {
		Token  string          `json:"token"`
		Amount decimal.Decimal `json:"amount"`
	}
	Owed struct {
		Address string          `json:"address"`
		Amount  decimal.Decimal `json:"amount"`
	}
	SupplyRate struct {
		Utilization uint64 `json:"utilization"`
		Rate        uint64 `json:"rate"`
	}
	Events struct {
		Events []events.Event `json:"events"`
	}
)
