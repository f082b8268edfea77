package router

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"anarchy.ttfm/paytr/cmd/paytr/internal/auth"
	"anarchy.ttfm/paytr/decimal"
	"anarchy.ttfm/paytr/paytr"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Manages the entire setup of the Paytr service
type Router struct {
	// Keeper interval, zero disables the background payouts
	ProcessInterval time.Duration
	// Settlement controller
	Controller *paytr.Controller
	// Validates caller tokens of mutating routes
	Auth *auth.Signer
	// Base Gin Group to use for routing
	Base gin.IRoutes
	// Clock used to report invoice status, time.Now when nil
	Now func() time.Time
}

const (
	AddressParam   = "address"
	PayerParam     = "payer"
	PayeeParam     = "payee"
	ReferenceParam = "reference"
	IdParam        = "id"

	InvoicesPath        = "/invoices"
	InvoicesDuePath     = InvoicesPath + "/due"
	DueDatePath         = InvoicesPath + "/due-date"
	InvoicePath         = InvoicesPath + "/:" + PayerParam + "/:" + PayeeParam + "/:" + ReferenceParam
	InvoiceHistoryPath  = InvoicePath + "/history"
	RecordsPathWithId   = "/records/:" + IdParam
	PayoutsPath         = "/payouts"
	QuotePath           = PayoutsPath + "/quote"
	ParametersPath      = "/parameters"
	VaultsPath          = "/vaults"
	VaultPath           = VaultsPath + "/:" + AddressParam
	SupplyRatePath      = VaultPath + "/supply-rate"
	FeeRoutingPath      = "/fee-routing"
	FeeRoutingEntryPath = FeeRoutingPath + "/:" + AddressParam
	OwnerPath           = "/owner"
	OwedPath            = "/owed/:" + AddressParam
	ClaimBaseAssetPath  = "/claims/base-asset"
	ClaimRewardsPath    = "/claims/rewards"
	ClaimOwedPath       = "/claims/owed"
	EventsPath          = "/events"
)

func statusOf(err error) (status int) {
	switch {
	case errors.Is(err, paytr.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, paytr.ErrInvoiceNotFound),
		errors.Is(err, paytr.ErrVaultNotFound):
		return http.StatusNotFound
	case errors.Is(err, paytr.ErrDuplicateReference),
		errors.Is(err, paytr.ErrAlreadySet),
		errors.Is(err, paytr.ErrAlreadyRedeemed),
		errors.Is(err, paytr.ErrNotDue),
		errors.Is(err, paytr.ErrNothingOwed),
		errors.Is(err, paytr.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, paytr.ErrInvalidParameter),
		errors.Is(err, paytr.ErrAmountOutOfRange),
		errors.Is(err, paytr.ErrInvalidDueDate),
		errors.Is(err, paytr.ErrInvalidPayee),
		errors.Is(err, paytr.ErrVaultNotAllowed),
		errors.Is(err, paytr.ErrUnsupportedAsset),
		errors.Is(err, paytr.ErrBatchTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, paytr.ErrTransferFailed),
		errors.Is(err, paytr.ErrVaultRejected),
		errors.Is(err, paytr.ErrVaultShortfall),
		errors.Is(err, paytr.ErrClaimFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abort(ctx *gin.Context, status int, err error) {
	ctx.Error(err)
	ctx.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func (r *Router) fail(ctx *gin.Context, err error) {
	abort(ctx, statusOf(err), err)
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func keyParams(ctx *gin.Context) (key paytr.InvoiceKey) {
	return paytr.InvoiceKey{
		Payer:     ctx.Param(PayerParam),
		Payee:     ctx.Param(PayeeParam),
		Reference: ctx.Param(ReferenceParam),
	}
}

func (r *Router) pay(ctx *gin.Context) {
	var pay Pay
	err := ctx.BindJSON(&pay)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	req, err := PayToPaytr(auth.Caller(ctx), &pay)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	var invoice paytr.Invoice
	if req.FeeAmount > 0 {
		invoice, err = r.Controller.PayInvoiceWithFee(ctx, &req)
	} else {
		invoice, err = r.Controller.PayInvoice(ctx, &req.PayInvoice)
	}
	if err != nil {
		r.fail(ctx, err)
		return
	}
	out := InvoiceFromPaytr(&invoice, r.now())
	ctx.JSON(http.StatusCreated, &out)
}

func (r *Router) amendDueDate(ctx *gin.Context) {
	var amend AmendDueDate
	err := ctx.BindJSON(&amend)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	caller := auth.Caller(ctx)
	key := paytr.InvoiceKey{Payer: caller, Payee: amend.Payee, Reference: amend.Reference}
	invoice, err := r.Controller.AmendDueDate(ctx, caller, key, amend.DueDate)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	out := InvoiceFromPaytr(&invoice, r.now())
	ctx.JSON(http.StatusOK, &out)
}

func (r *Router) invoice(ctx *gin.Context) {
	invoice, err := r.Controller.Invoice(ctx, keyParams(ctx))
	if err != nil {
		r.fail(ctx, err)
		return
	}
	out := InvoiceFromPaytr(&invoice, r.now())
	ctx.JSON(http.StatusOK, &out)
}

func (r *Router) history(ctx *gin.Context) {
	records, err := r.Controller.History(ctx, keyParams(ctx))
	if err != nil {
		r.fail(ctx, err)
		return
	}
	now := r.now()
	out := make([]Invoice, 0, len(records))
	for _, record := range records {
		out = append(out, InvoiceFromPaytr(&record, now))
	}
	ctx.JSON(http.StatusOK, out)
}

func (r *Router) record(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param(IdParam))
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	invoice, err := r.Controller.Record(ctx, id)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	out := InvoiceFromPaytr(&invoice, r.now())
	ctx.JSON(http.StatusOK, &out)
}

func (r *Router) due(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "100"))
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	due, err := r.Controller.Due(ctx, limit)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	now := r.now()
	out := make([]Invoice, 0, len(due))
	for _, invoice := range due {
		out = append(out, InvoiceFromPaytr(&invoice, now))
	}
	ctx.JSON(http.StatusOK, out)
}

func (r *Router) quote(ctx *gin.Context) {
	var quote Quote
	err := ctx.BindJSON(&quote)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	totals, err := r.Controller.Quote(ctx, keysToPaytr(quote.Invoices))
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, TotalsFromPaytr(totals))
}

func (r *Router) payOut(ctx *gin.Context) {
	var payOut PayOut
	err := ctx.BindJSON(&payOut)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	req := paytr.PayOut{Invoices: keysToPaytr(payOut.Invoices)}
	if len(payOut.Totals) == 0 {
		req.Totals, err = r.Controller.Quote(ctx, req.Invoices)
	} else {
		req.Totals, err = TotalsToPaytr(payOut.Totals)
		if err != nil {
			abort(ctx, http.StatusBadRequest, err)
			return
		}
	}
	if err != nil {
		r.fail(ctx, err)
		return
	}

	settlement, err := r.Controller.PayOut(ctx, &req)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	out := SettlementFromPaytr(&settlement)
	ctx.JSON(http.StatusOK, &out)
}

func (r *Router) parameters(ctx *gin.Context) {
	params, err := r.Controller.Parameters(ctx)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	out := ParametersFromPaytr(&params)
	ctx.JSON(http.StatusOK, &out)
}

func (r *Router) setParameters(ctx *gin.Context) {
	var in Parameters
	err := ctx.BindJSON(&in)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	params, err := ParametersToPaytr(&in)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	err = r.Controller.SetParameters(ctx, auth.Caller(ctx), params)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	out := ParametersFromPaytr(&params)
	ctx.JSON(http.StatusOK, &out)
}

func (r *Router) vaults(ctx *gin.Context) {
	list, err := r.Controller.Vaults(ctx)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, list)
}

func (r *Router) vault(ctx *gin.Context) {
	info, err := r.Controller.Vault(ctx, ctx.Param(AddressParam))
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, &info)
}

func (r *Router) addVault(ctx *gin.Context) {
	var add AddVault
	err := ctx.BindJSON(&add)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	info, err := r.Controller.AddVault(ctx, auth.Caller(ctx), add.Address, add.Decimals)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, &info)
}

func (r *Router) removeVault(ctx *gin.Context) {
	err := r.Controller.RemoveVault(ctx, auth.Caller(ctx), ctx.Param(AddressParam))
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (r *Router) supplyRate(ctx *gin.Context) {
	utilization, err := strconv.ParseUint(ctx.DefaultQuery("utilization", "0"), 10, 64)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	rate, err := r.Controller.SupplyRate(ctx, ctx.Param(AddressParam), utilization)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, SupplyRate{Utilization: rate.Utilization, Rate: rate.Rate})
}

func (r *Router) feeRouting(ctx *gin.Context) {
	routing, err := r.Controller.FeeRouting(ctx)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, &routing)
}

func (r *Router) addFeeRouting(ctx *gin.Context) {
	var add AddFeeRouting
	err := ctx.BindJSON(&add)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	if add.Default {
		err = r.Controller.SetFeeRoutingAddress(ctx, auth.Caller(ctx), add.Address)
	} else {
		err = r.Controller.AddFeeRoutingAddress(ctx, auth.Caller(ctx), add.Address)
	}
	if err != nil {
		r.fail(ctx, err)
		return
	}
	r.feeRouting(ctx)
}

func (r *Router) removeFeeRouting(ctx *gin.Context) {
	err := r.Controller.RemoveFeeRoutingAddress(ctx, auth.Caller(ctx), ctx.Param(AddressParam))
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (r *Router) owner(ctx *gin.Context) {
	owner, err := r.Controller.Owner(ctx)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, Owner{Owner: owner})
}

func (r *Router) transferOwnership(ctx *gin.Context) {
	var transfer TransferOwnership
	err := ctx.BindJSON(&transfer)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	err = r.Controller.TransferOwnership(ctx, auth.Caller(ctx), transfer.Owner)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	r.owner(ctx)
}

func (r *Router) owed(ctx *gin.Context) {
	address := ctx.Param(AddressParam)
	amount, err := r.Controller.Owed(ctx, address)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, Owed{Address: address, Amount: decimal.FromUint64(amount)})
}

func (r *Router) claimOwed(ctx *gin.Context) {
	amount, err := r.Controller.ClaimOwed(ctx, auth.Caller(ctx))
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, Claim{Amount: decimal.FromUint64(amount)})
}

func (r *Router) claimBaseAsset(ctx *gin.Context) {
	amount, err := r.Controller.ClaimBaseAssetBalance(ctx, auth.Caller(ctx))
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, Claim{Amount: decimal.FromUint64(amount)})
}

func (r *Router) claimRewards(ctx *gin.Context) {
	claimed, err := r.Controller.ClaimProtocolRewards(ctx, auth.Caller(ctx))
	if err != nil {
		r.fail(ctx, err)
		return
	}
	out := make([]Rewards, 0, len(claimed))
	for _, rewards := range claimed {
		out = append(out, Rewards{Token: rewards.Token, Amount: decimal.FromUint64(rewards.Amount)})
	}
	ctx.JSON(http.StatusOK, out)
}

func (r *Router) events(ctx *gin.Context) {
	after, err := strconv.ParseUint(ctx.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "100"))
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	list, err := r.Controller.Events(ctx, after, limit)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, Events{Events: list})
}

// Register routes in the Gin engine and starts the keeper until ctx is done
func (r *Router) Register(ctx context.Context) {
	authenticated := r.Auth.Middleware()

	r.Base.GET(InvoicesDuePath, r.due)
	r.Base.GET(InvoicePath, r.invoice)
	r.Base.GET(InvoiceHistoryPath, r.history)
	r.Base.GET(RecordsPathWithId, r.record)
	r.Base.POST(InvoicesPath, authenticated, r.pay)
	r.Base.PATCH(DueDatePath, authenticated, r.amendDueDate)

	r.Base.POST(QuotePath, r.quote)
	r.Base.POST(PayoutsPath, authenticated, r.payOut)

	r.Base.GET(ParametersPath, r.parameters)
	r.Base.PUT(ParametersPath, authenticated, r.setParameters)
	r.Base.GET(VaultsPath, r.vaults)
	r.Base.GET(VaultPath, r.vault)
	r.Base.GET(SupplyRatePath, r.supplyRate)
	r.Base.POST(VaultsPath, authenticated, r.addVault)
	r.Base.DELETE(VaultPath, authenticated, r.removeVault)
	r.Base.GET(FeeRoutingPath, r.feeRouting)
	r.Base.POST(FeeRoutingPath, authenticated, r.addFeeRouting)
	r.Base.DELETE(FeeRoutingEntryPath, authenticated, r.removeFeeRouting)
	r.Base.GET(OwnerPath, r.owner)
	r.Base.PUT(OwnerPath, authenticated, r.transferOwnership)

	r.Base.GET(OwedPath, r.owed)
	r.Base.POST(ClaimOwedPath, authenticated, r.claimOwed)
	r.Base.POST(ClaimBaseAssetPath, authenticated, r.claimBaseAsset)
	r.Base.POST(ClaimRewardsPath, authenticated, r.claimRewards)
	r.Base.GET(EventsPath, r.events)

	if r.ProcessInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.ProcessInterval)
		defer ticker.Stop()

		for {
			processed, err := r.Controller.ProcessDue(ctx)
			if err != nil {
				log.Println("ERROR|PROCESSING|PAYOUTS", err)
			}
			log.Println("INFO|PROCESSED|PAYOUTS", processed)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
