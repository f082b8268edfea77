package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"anarchy.ttfm/paytr/cmd/paytr/internal/auth"
	"anarchy.ttfm/paytr/cmd/paytr/internal/router"
	"anarchy.ttfm/paytr/decimal"
	"anarchy.ttfm/paytr/paytr"
	"anarchy.ttfm/paytr/tokens"
	tokenmock "anarchy.ttfm/paytr/tokens/mock"
	"anarchy.ttfm/paytr/vaults"
	vaultmock "anarchy.ttfm/paytr/vaults/mock"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const (
	owner   = "0x00000000000000000000000000000000000000aa"
	account = "0x00000000000000000000000000000000000000bb"
	usdc    = "0x00000000000000000000000000000000000000cc"
	comet   = "0x00000000000000000000000000000000000000dd"
	payer   = "0x0000000000000000000000000000000000000101"
	payee   = "0x0000000000000000000000000000000000000202"
)

type service struct {
	engine *gin.Engine
	signer *auth.Signer
	token  *tokenmock.Mock
	now    time.Time
}

func newService(t *testing.T) (s *service) {
	assertions := assert.New(t)
	gin.SetMode(gin.TestMode)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	assertions.Nil(err, "failed to open database")
	t.Cleanup(func() { db.Close() })

	s = &service{
		engine: gin.New(),
		signer: auth.New([]byte("secret")),
		token:  tokenmock.New(tokenmock.Config{Address: usdc}),
		now:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	vault := vaultmock.New(vaultmock.Config{Address: comet, Token: s.token, SharesOffset: 2})
	now := func() time.Time { return s.now }

	ctrl, err := paytr.New(paytr.Config{
		DB:           db,
		Token:        s.token,
		Account:      account,
		Owner:        owner,
		DefaultVault: comet,
		Vaults:       []vaults.Vault{vault},
		Now:          now,
	})
	assertions.Nil(err, "failed to create controller")

	r := router.Router{
		Controller: ctrl,
		Auth:       s.signer,
		Base:       s.engine,
		Now:        now,
	}
	r.Register(context.TODO())
	return s
}

func (s *service) do(t *testing.T, method, path, caller string, body any) (w *httptest.ResponseRecorder) {
	var payload bytes.Buffer
	if body != nil {
		err := json.NewEncoder(&payload).Encode(body)
		assert.Nil(t, err, "failed to encode body")
	}

	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := s.signer.Issue(caller, time.Hour)
		assert.Nil(t, err, "failed to issue token")
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func amount(s string) (d decimal.Decimal) {
	d.FromString(s)
	return d
}

func Test_Router(t *testing.T) {
	t.Run("Invoice Lifecycle", func(t *testing.T) {
		assertions := assert.New(t)

		s := newService(t)
		err := s.token.Mint(payer, 1_500_000_000)
		assertions.Nil(err, "failed to mint")
		err = s.token.Approve(context.TODO(), tokens.ApproveRequest{Owner: payer, Spender: account, Amount: 1_500_000_000})
		assertions.Nil(err, "failed to approve")

		pay := router.Pay{
			Asset:     usdc,
			Payee:     payee,
			Amount:    amount("1500"),
			Reference: "0xbeef",
		}
		w := s.do(t, http.MethodPost, router.InvoicesPath, "", pay)
		assertions.Equal(http.StatusUnauthorized, w.Code, "payments need a caller")

		w = s.do(t, http.MethodPost, router.InvoicesPath, payer, pay)
		if !assertions.Equal(http.StatusCreated, w.Code, w.Body.String()) {
			return
		}
		var invoice router.Invoice
		err = json.Unmarshal(w.Body.Bytes(), &invoice)
		assertions.Nil(err, "failed to decode invoice")
		assertions.Equal(payer, invoice.Payer)
		assertions.Equal("1500.000000", invoice.Amount.String())
		assertions.Equal(paytr.StatusCreated, invoice.Status)

		w = s.do(t, http.MethodPost, router.InvoicesPath, payer, pay)
		assertions.Equal(http.StatusConflict, w.Code, "duplicate reference")

		path := router.InvoicesPath + "/" + payer + "/" + payee + "/0xbeef"
		w = s.do(t, http.MethodGet, path, "", nil)
		assertions.Equal(http.StatusOK, w.Code)

		w = s.do(t, http.MethodGet, router.InvoicesPath+"/"+payer+"/"+payee+"/0xdead", "", nil)
		assertions.Equal(http.StatusNotFound, w.Code)

		amend := router.AmendDueDate{Payee: payee, Reference: "0xbeef", DueDate: s.now.Add(30 * 24 * time.Hour).Unix()}
		w = s.do(t, http.MethodPatch, router.DueDatePath, payer, amend)
		assertions.Equal(http.StatusOK, w.Code, w.Body.String())
		w = s.do(t, http.MethodPatch, router.DueDatePath, payer, amend)
		assertions.Equal(http.StatusConflict, w.Code, "due date is set once")

		payOut := router.PayOut{Invoices: []router.InvoiceKey{{Payer: payer, Payee: payee, Reference: "0xbeef"}}}
		w = s.do(t, http.MethodPost, router.PayoutsPath, payee, payOut)
		assertions.Equal(http.StatusConflict, w.Code, "not due yet")

		s.now = s.now.Add(30 * 24 * time.Hour)
		w = s.do(t, http.MethodGet, router.InvoicesDuePath, "", nil)
		assertions.Equal(http.StatusOK, w.Code)
		var due []router.Invoice
		err = json.Unmarshal(w.Body.Bytes(), &due)
		assertions.Nil(err, "failed to decode due invoices")
		assertions.Len(due, 1)

		w = s.do(t, http.MethodPost, router.PayoutsPath, payee, payOut)
		if !assertions.Equal(http.StatusOK, w.Code, w.Body.String()) {
			return
		}
		var settlement router.Settlement
		err = json.Unmarshal(w.Body.Bytes(), &settlement)
		assertions.Nil(err, "failed to decode settlement")
		if assertions.Len(settlement.Disbursements, 1) {
			assertions.Equal("1500.000000", settlement.Disbursements[0].Amount.String())
		}

		w = s.do(t, http.MethodGet, path+"/history", "", nil)
		var history []router.Invoice
		err = json.Unmarshal(w.Body.Bytes(), &history)
		assertions.Nil(err, "failed to decode history")
		if assertions.Len(history, 1) {
			assertions.Equal(paytr.StatusRedeemed, history[0].Status)
		}

		w = s.do(t, http.MethodGet, router.EventsPath+"?after=0&limit=10", "", nil)
		var list router.Events
		err = json.Unmarshal(w.Body.Bytes(), &list)
		assertions.Nil(err, "failed to decode events")
		assertions.Len(list.Events, 3, "payment, due date and payout")
	})

	t.Run("Owner Routes", func(t *testing.T) {
		assertions := assert.New(t)

		s := newService(t)

		w := s.do(t, http.MethodGet, router.ParametersPath, "", nil)
		assertions.Equal(http.StatusOK, w.Code)
		var params router.Parameters
		err := json.Unmarshal(w.Body.Bytes(), &params)
		assertions.Nil(err, "failed to decode parameters")
		assertions.Equal(uint64(9000), params.FeeModifier)
		assertions.Equal(int64(7*24*60*60), params.MinDueDate)
		assertions.Equal("10.000000", params.MinAmount.String())

		params.MaxPayoutArraySize = 10
		w = s.do(t, http.MethodPut, router.ParametersPath, payer, params)
		assertions.Equal(http.StatusForbidden, w.Code)
		w = s.do(t, http.MethodPut, router.ParametersPath, owner, params)
		assertions.Equal(http.StatusOK, w.Code, w.Body.String())

		params.FeeModifier = 4999
		w = s.do(t, http.MethodPut, router.ParametersPath, owner, params)
		assertions.Equal(http.StatusBadRequest, w.Code)

		w = s.do(t, http.MethodGet, router.VaultsPath+"/"+usdc, "", nil)
		assertions.Equal(http.StatusNotFound, w.Code)
		w = s.do(t, http.MethodGet, router.VaultsPath+"/"+comet+"/supply-rate?utilization=0", "", nil)
		assertions.Equal(http.StatusOK, w.Code)

		w = s.do(t, http.MethodPost, router.FeeRoutingPath, owner, router.AddFeeRouting{Address: payee, Default: true})
		assertions.Equal(http.StatusOK, w.Code)
		var routing paytr.FeeRouting
		err = json.Unmarshal(w.Body.Bytes(), &routing)
		assertions.Nil(err, "failed to decode fee routing")
		assertions.Equal(payee, routing.Default)

		w = s.do(t, http.MethodPost, router.ClaimBaseAssetPath, owner, nil)
		assertions.Equal(http.StatusOK, w.Code)
		w = s.do(t, http.MethodPost, router.ClaimOwedPath, payee, nil)
		assertions.Equal(http.StatusConflict, w.Code, "nothing owed")

		w = s.do(t, http.MethodPut, router.OwnerPath, owner, router.TransferOwnership{Owner: payer})
		assertions.Equal(http.StatusOK, w.Code)
		var current router.Owner
		err = json.Unmarshal(w.Body.Bytes(), &current)
		assertions.Nil(err, "failed to decode owner")
		assertions.Equal(payer, current.Owner)
	})
}
