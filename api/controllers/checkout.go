package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/beatstore-backend/api/responses"
	"github.com/angelmondragon/beatstore-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/beatstore-backend/internal/checkout"
	"github.com/angelmondragon/beatstore-backend/internal/transactions"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

type checkoutResponse struct {
	RedirectURL string                       `json:"redirect_url"`
	Token       string                       `json:"token"`
	Transaction *transactions.TransactionDTO `json:"transaction"`
}

type finalizeRequest struct {
	PayerID string `json:"payer_id" validate:"required,max=64"`
}

// Checkout opens a gateway checkout for the buyer's cart.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateCheckout(r.Context(), buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			RedirectURL: session.RedirectURL,
			Token:       session.Token,
			Transaction: transactions.FromModel(session.Transaction),
		})
	}
}

// CheckoutFinalize captures the payment the buyer approved at the gateway.
func CheckoutFinalize(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload finalizeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		token := strings.TrimSpace(chi.URLParam(r, "token"))
		if logg != nil {
			ctx = logg.WithGatewayToken(ctx, token)
		}
		tx, err := svc.Finalize(ctx, buyerID, token, payload.PayerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, transactions.FromModel(tx))
	}
}

// CheckoutRefresh re-reads the gateway status of a checkout.
func CheckoutRefresh(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyerID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tx, err := svc.Refresh(r.Context(), buyerID, chi.URLParam(r, "token"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, transactions.FromModel(tx))
	}
}
