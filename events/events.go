package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

type Kind string

const (
	KindPayment           Kind = "payment"
	KindPaymentWithFee    Kind = "payment-with-fee"
	KindDueDateUpdated    Kind = "due-date-updated"
	KindParametersUpdated Kind = "parameters-updated"
	KindVaultUpdated      Kind = "vault-updated"
	KindFeeRoutingUpdated Kind = "fee-routing-updated"
	KindOwnershipChanged  Kind = "ownership-transferred"
	KindPayout            Kind = "payout"
	KindInterestPayout    Kind = "interest-payout"
	KindBaseAssetClaimed  Kind = "base-asset-claimed"
	KindRewardsClaimed    Kind = "rewards-claimed"
	KindOwedCredited      Kind = "owed-credited"
	KindOwedClaimed       Kind = "owed-claimed"
)

// Event is an observable record of a state change. Only the fields relevant to Kind are set
type Event struct {
	// Position in the controller log, assigned on commit
	Sequence uint64 `json:"sequence"`
	Kind     Kind   `json:"kind"`
	// Unix seconds
	Time int64 `json:"time"`

	// Record id of the invoice involved
	Invoice    string `json:"invoice,omitempty"`
	Payer      string `json:"payer,omitempty"`
	Payee      string `json:"payee,omitempty"`
	Reference  string `json:"reference,omitempty"`
	Amount     uint64 `json:"amount,omitempty"`
	FeeAmount  uint64 `json:"feeAmount,omitempty"`
	FeeAddress string `json:"feeAddress,omitempty"`
	DueDate    int64  `json:"dueDate,omitempty"`
	Vault      string `json:"vault,omitempty"`
	Shares     uint64 `json:"shares,omitempty"`
	// Receiver of interest, claims or the subject of allow-list changes
	Recipient string `json:"recipient,omitempty"`
	Token     string `json:"token,omitempty"`
	Active    bool   `json:"active,omitempty"`
	// Kind specific payload, like the new parameters
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *Event) Bytes() (b []byte) {
	b, _ = json.Marshal(e)
	return b
}

func (e *Event) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, e)
}

func (e *Event) String() string {
	return fmt.Sprintf("%d|%s|%s", e.Sequence, e.Kind, e.Invoice)
}

// Publisher fans committed events out to observers
type Publisher interface {
	Publish(ctx context.Context, events ...Event) (err error)
}

// Log publishes events to the standard logger
type Log struct{}

var _ Publisher = Log{}

func (Log) Publish(ctx context.Context, events ...Event) (err error) {
	for _, event := range events {
		log.Println("[*] EVENT", string(event.Bytes()))
	}
	return nil
}

// Multi publishes to every publisher, stopping at the first error
type Multi []Publisher

var _ Publisher = Multi(nil)

func (m Multi) Publish(ctx context.Context, events ...Event) (err error) {
	for _, publisher := range m {
		err = publisher.Publish(ctx, events...)
		if err != nil {
			return err
		}
	}
	return nil
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

var _ Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(ctx context.Context, events ...Event) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, events...)
	return nil
}

// Filter returns the recorded events of kind
func (r *Recorder) Filter(kind Kind) (filtered []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, event := range r.events {
		if event.Kind == kind {
			filtered = append(filtered, event)
		}
	}
	return filtered
}
