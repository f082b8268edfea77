package paytr_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"anarchy.ttfm/paytr/events"
	"anarchy.ttfm/paytr/paytr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func Test_Ledger(t *testing.T) {
	t.Run("Key", func(t *testing.T) {
		assertions := assert.New(t)

		key := paytr.InvoiceKey{Payer: "0xAB", Payee: "0xCD", Reference: "0xBEEF"}
		normalized, err := key.Normalize()
		assertions.Nil(err, "failed to normalize")
		assertions.Equal(paytr.InvoiceKey{Payer: "0xab", Payee: "0xcd", Reference: "0xbeef"}, normalized)

		moved := paytr.InvoiceKey{Payer: "0xab0", Payee: "xcd", Reference: "0xbeef"}
		assertions.NotEqual(normalized.Hash(), moved.Hash(), "fields must not bleed into each other")

		for _, reference := range []string{"", "beef", "0x", "0xzz", "0x" + strings.Repeat("00", paytr.MaxReferenceSize+1)} {
			_, err = paytr.InvoiceKey{Payer: "0xab", Payee: "0xcd", Reference: reference}.Normalize()
			assertions.ErrorIs(err, paytr.ErrInvalidParameter, reference)
		}
	})

	t.Run("Uniqueness", func(t *testing.T) {
		assertions := assert.New(t)

		f := newFixture(t)
		ctx := context.TODO()

		key := newKey()
		first := f.pay(t, key, 1_500_000_000, 30*day)

		f.fund(t, key.Payer, 1_500_000_000)
		req := f.request(key, 1_500_000_000, 30*day)
		_, err := f.ctrl.PayInvoice(ctx, &req)
		assertions.ErrorIs(err, paytr.ErrDuplicateReference)

		upper := req
		upper.Reference = strings.ToUpper(key.Reference[2:])
		upper.Reference = "0x" + upper.Reference
		_, err = f.ctrl.PayInvoice(ctx, &upper)
		assertions.ErrorIs(err, paytr.ErrDuplicateReference, "references are case insensitive")

		otherPayee := req
		otherPayee.Payee = newKey().Payee
		_, err = f.ctrl.PayInvoice(ctx, &otherPayee)
		assertions.Nil(err, "same reference for another payee should succeed")

		f.clock.Advance(31 * day)
		_, err = f.payOut(key)
		assertions.Nil(err, "failed to pay out")

		f.fund(t, key.Payer, 1_500_000_000)
		req = f.request(key, 1_500_000_000, 30*day)
		second, err := f.ctrl.PayInvoice(ctx, &req)
		assertions.Nil(err, "reusing a redeemed key should succeed")
		assertions.NotEqual(first.Id, second.Id)

		records, err := f.ctrl.History(ctx, key)
		assertions.Nil(err, "failed to query history")
		if assertions.Len(records, 2) {
			assertions.Equal(first.Id, records[0].Id)
			assertions.True(records[0].Redeemed)
			assertions.Equal(second.Id, records[1].Id)
			assertions.False(records[1].Redeemed)
		}

		record, err := f.ctrl.Record(ctx, first.Id)
		assertions.Nil(err, "failed to query record")
		assertions.True(record.Redeemed, "records are kept after redemption")

		_, err = f.ctrl.Record(ctx, uuid.New())
		assertions.ErrorIs(err, paytr.ErrInvoiceNotFound)
	})

	t.Run("Create Validation", func(t *testing.T) {
		f := newFixture(t)
		params := paytr.DefaultParameters()

		type Test struct {
			Name   string
			Modify func(req *paytr.PayInvoice)
			Err    error
		}
		tests := []Test{
			{Name: "Zero Payee", Modify: func(req *paytr.PayInvoice) { req.Payee = "0x0000000000000000000000000000000000000000" }, Err: paytr.ErrInvalidPayee},
			{Name: "Empty Payee", Modify: func(req *paytr.PayInvoice) { req.Payee = "" }, Err: paytr.ErrInvalidPayee},
			{Name: "Zero Amount", Modify: func(req *paytr.PayInvoice) { req.Amount = 0 }, Err: paytr.ErrAmountOutOfRange},
			{Name: "Below Min Amount", Modify: func(req *paytr.PayInvoice) { req.Amount = params.MinAmount - 1 }, Err: paytr.ErrAmountOutOfRange},
			{Name: "Above Max Amount", Modify: func(req *paytr.PayInvoice) { req.Amount = params.MaxAmount + 1 }, Err: paytr.ErrAmountOutOfRange},
			{Name: "Unknown Vault", Modify: func(req *paytr.PayInvoice) { req.Vault = usdc }, Err: paytr.ErrVaultNotAllowed},
			{Name: "Unsupported Asset", Modify: func(req *paytr.PayInvoice) { req.Asset = comp }, Err: paytr.ErrUnsupportedAsset},
			{Name: "Due Date Too Soon", Modify: func(req *paytr.PayInvoice) {
				req.DueDate = f.clock.Now().Add(params.MinDueDate).Unix() - 1
			}, Err: paytr.ErrDueDateOutOfRange},
			{Name: "Due Date Too Late", Modify: func(req *paytr.PayInvoice) {
				req.DueDate = f.clock.Now().Add(params.MaxDueDate).Unix() + 1
			}, Err: paytr.ErrDueDateOutOfRange},
			{Name: "Min Amount", Modify: func(req *paytr.PayInvoice) { req.Amount = params.MinAmount }},
			{Name: "Max Amount", Modify: func(req *paytr.PayInvoice) { req.Amount = params.MaxAmount }},
			{Name: "Earliest Due Date", Modify: func(req *paytr.PayInvoice) { req.DueDate = f.clock.Now().Add(params.MinDueDate).Unix() }},
			{Name: "Latest Due Date", Modify: func(req *paytr.PayInvoice) { req.DueDate = f.clock.Now().Add(params.MaxDueDate).Unix() }},
			{Name: "Deferred Due Date", Modify: func(req *paytr.PayInvoice) { req.DueDate = 0 }},
		}
		for _, test := range tests {
			t.Run(test.Name, func(t *testing.T) {
				assertions := assert.New(t)

				key := newKey()
				req := f.request(key, 50_000_000, 30*day)
				test.Modify(&req)
				f.fund(t, key.Payer, req.Amount)

				invoice, err := f.ctrl.PayInvoice(context.TODO(), &req)
				if test.Err != nil {
					assertions.ErrorIs(err, test.Err)
					assertions.Equal(req.Amount, f.balance(t, key.Payer), "rejected payment must not move funds")
					_, err = f.ctrl.Invoice(context.TODO(), key)
					assertions.ErrorIs(err, paytr.ErrInvoiceNotFound, "rejected payment must not leave a record")
					return
				}
				assertions.Nil(err, "failed to pay")
				assertions.Equal(req.DueDate, invoice.DueDate)
				assertions.NotZero(invoice.Shares, "escrow should be deposited")
			})
		}
	})

	t.Run("Amend Due Date", func(t *testing.T) {
		assertions := assert.New(t)

		f := newFixture(t)
		ctx := context.TODO()
		params := paytr.DefaultParameters()

		key := newKey()
		invoice := f.pay(t, key, 100_000_000, 0)
		assertions.Equal(paytr.StatusCreated, invoice.Status(f.clock.Now()))

		dueDate := f.clock.Now().Add(30 * day).Unix()
		_, err := f.ctrl.AmendDueDate(ctx, key.Payee, key, dueDate)
		assertions.ErrorIs(err, paytr.ErrUnauthorized, "only the payer can amend")

		_, err = f.ctrl.AmendDueDate(ctx, key.Payer, key, 0)
		assertions.ErrorIs(err, paytr.ErrInvalidDueDate)

		lower := f.clock.Now().Add(params.MinDueDate).Unix()
		upper := f.clock.Now().Add(params.MaxDueDate).Unix()
		for _, outside := range []int64{lower - 1, upper + 1} {
			_, err = f.ctrl.AmendDueDate(ctx, key.Payer, key, outside)
			assertions.ErrorIs(err, paytr.ErrDueDateOutOfRange)
			assertions.ErrorIs(err, paytr.ErrInvalidDueDate, "out of range is an invalid due date too")
		}

		_, err = f.ctrl.AmendDueDate(ctx, key.Payer, newKey(), dueDate)
		assertions.ErrorIs(err, paytr.ErrInvoiceNotFound)

		amended, err := f.ctrl.AmendDueDate(ctx, strings.ToUpper(key.Payer), key, dueDate)
		assertions.Nil(err, "failed to amend due date")
		assertions.Equal(dueDate, amended.DueDate)
		assertions.Equal(paytr.StatusDueDateSet, amended.Status(f.clock.Now()))

		_, err = f.ctrl.AmendDueDate(ctx, key.Payer, key, dueDate+1)
		assertions.ErrorIs(err, paytr.ErrAlreadySet, "due date can be set once")

		stored, err := f.ctrl.Invoice(ctx, key)
		assertions.Nil(err, "failed to query invoice")
		assertions.Equal(dueDate, stored.DueDate, "failed amendments must not change the due date")

		updated := f.recorder.Filter(events.KindDueDateUpdated)
		if assertions.Len(updated, 1) {
			assertions.Equal(dueDate, updated[0].DueDate)
			assertions.Equal(invoice.Id.String(), updated[0].Invoice)
		}

		f.clock.Advance(30 * day)
		assertions.Equal(paytr.StatusDue, stored.Status(f.clock.Now()))
	})

	t.Run("Amend Bounds", func(t *testing.T) {
		params := paytr.DefaultParameters()
		type Test struct {
			Name   string
			Offset time.Duration
			Err    error
		}
		tests := []Test{
			{Name: "Just Below Min", Offset: params.MinDueDate - time.Second, Err: paytr.ErrDueDateOutOfRange},
			{Name: "Min", Offset: params.MinDueDate},
			{Name: "Max", Offset: params.MaxDueDate},
			{Name: "Just Above Max", Offset: params.MaxDueDate + time.Second, Err: paytr.ErrDueDateOutOfRange},
		}
		f := newFixture(t)
		for _, test := range tests {
			t.Run(test.Name, func(t *testing.T) {
				assertions := assert.New(t)

				key := newKey()
				f.pay(t, key, 100_000_000, 0)
				_, err := f.ctrl.AmendDueDate(context.TODO(), key.Payer, key, f.clock.Now().Add(test.Offset).Unix())
				if test.Err != nil {
					assertions.ErrorIs(err, test.Err)
					return
				}
				assertions.Nil(err, "failed to amend due date")
			})
		}
	})
}
