package paytr

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"anarchy.ttfm/paytr/tokens"
	"github.com/google/uuid"
)

// Longest payment reference accepted, in bytes
const MaxReferenceSize = 256

type Status string

const (
	StatusCreated    Status = "created"
	StatusDueDateSet Status = "due-date-set"
	StatusDue        Status = "due"
	StatusRedeemed   Status = "redeemed"
)

// InvoiceKey identifies the live invoice of a payer, payee and reference
type InvoiceKey struct {
	Payer string `json:"payer" yaml:"payer"`
	Payee string `json:"payee" yaml:"payee"`
	// 0x prefixed hex bytes
	Reference string `json:"reference" yaml:"reference"`
}

// Normalize lower cases every field and validates the reference
func (k InvoiceKey) Normalize() (key InvoiceKey, err error) {
	key = InvoiceKey{
		Payer:     tokens.NormalizeAddress(k.Payer),
		Payee:     tokens.NormalizeAddress(k.Payee),
		Reference: strings.ToLower(strings.TrimSpace(k.Reference)),
	}
	raw, found := strings.CutPrefix(key.Reference, "0x")
	if !found {
		return key, invalid("reference", "missing 0x prefix")
	}
	if raw == "" {
		return key, invalid("reference", "empty")
	}
	if len(raw) > 2*MaxReferenceSize {
		return key, invalid("reference", "longer than %d bytes", MaxReferenceSize)
	}
	if _, err = hex.DecodeString(raw); err != nil {
		return key, invalid("reference", "not hex: %v", err)
	}
	return key, nil
}

// Hash is the storage identity of the key. Fields are length prefixed so they can't bleed into each other
func (k InvoiceKey) Hash() (hash string) {
	h := sha256.New()
	for _, field := range []string{k.Payer, k.Payee, k.Reference} {
		h.Write(binary.BigEndian.AppendUint32(nil, uint32(len(field))))
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (k InvoiceKey) String() string {
	return k.Payer + "|" + k.Payee + "|" + k.Reference
}

// Invoice is an escrowed payment. Records are kept after redemption
type Invoice struct {
	// Identity of the record, a key may own many records over time
	Id uuid.UUID `json:"id"`
	// Creation order across every key
	Sequence  uint64 `json:"sequence"`
	Reference string `json:"reference"`
	// Principal owed to the payee in base asset minor units
	Amount uint64 `json:"amount"`
	// Owed to FeeAddress, 0 means no fee
	FeeAmount uint64 `json:"feeAmount"`
	// Unix seconds, 0 while unset
	DueDate    int64  `json:"dueDate"`
	Payer      string `json:"payer"`
	Payee      string `json:"payee"`
	FeeAddress string `json:"feeAddress,omitempty"`
	Asset      string `json:"asset"`
	Vault      string `json:"vault"`
	// Vault shares measured when the escrow was deposited
	Shares     uint64 `json:"shares"`
	Redeemed   bool   `json:"redeemed"`
	CreatedAt  int64  `json:"createdAt"`
	RedeemedAt int64  `json:"redeemedAt,omitempty"`
}

func (i *Invoice) Key() (key InvoiceKey) {
	return InvoiceKey{Payer: i.Payer, Payee: i.Payee, Reference: i.Reference}
}

// Escrow is what was deposited for the invoice
func (i *Invoice) Escrow() (amount uint64) {
	return i.Amount + i.FeeAmount
}

func (i *Invoice) IsDue(now time.Time) (due bool) {
	return i.DueDate != 0 && now.Unix() >= i.DueDate
}

func (i *Invoice) Status(now time.Time) (status Status) {
	switch {
	case i.Redeemed:
		return StatusRedeemed
	case i.DueDate == 0:
		return StatusCreated
	case i.IsDue(now):
		return StatusDue
	default:
		return StatusDueDateSet
	}
}

func (i *Invoice) Bytes() (b []byte) {
	b, _ = json.Marshal(i)
	return b
}

func (i *Invoice) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, i)
}
