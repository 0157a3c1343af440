package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/api/responses"
	"github.com/angelmondragon/beatstore-backend/api/validators"
	"github.com/angelmondragon/beatstore-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

type cartItemRequest struct {
	BeatID    string `json:"beat_id" validate:"required,uuid"`
	LicenseID string `json:"license_id" validate:"required,uuid"`
}

type cartImportRequest struct {
	CartToken string `json:"cart_token" validate:"required,uuid"`
}

type guestTokenResponse struct {
	CartToken uuid.UUID `json:"cart_token"`
}

// identityResolver picks the cart a request addresses: the account cart on
// authenticated routes, the guest cart named by {token} otherwise.
type identityResolver func(r *http.Request) (cart.Identity, error)

// AccountCart resolves the authenticated account's cart.
func AccountCart(r *http.Request) (cart.Identity, error) {
	userID, err := userIDFromRequest(r)
	if err != nil {
		return cart.Identity{}, err
	}
	return cart.ForUser(userID), nil
}

// GuestCart resolves the guest cart named by the {token} path parameter.
func GuestCart(r *http.Request) (cart.Identity, error) {
	token, err := validators.ParseUUIDParam(r, "token")
	if err != nil {
		return cart.Identity{}, err
	}
	return cart.ForGuest(token), nil
}

// CartGuestToken issues a token for a new anonymous cart.
func CartGuestToken(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, guestTokenResponse{CartToken: svc.NewGuestToken()})
	}
}

// CartGet returns the priced cart.
func CartGet(svc cart.Service, resolve identityResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		id, err := resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetCart(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartAddItem adds a beat under a license. Adding a beat already in the cart
// switches its license.
func CartAddItem(svc cart.Service, resolve identityResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		id, err := resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.AddItem(r.Context(), id, uuid.MustParse(payload.BeatID), uuid.MustParse(payload.LicenseID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartRemoveItem drops the beat named by {beatId}.
func CartRemoveItem(svc cart.Service, resolve identityResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		id, err := resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		beatID, err := validators.ParseUUIDParam(r, "beatId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.RemoveItem(r.Context(), id, beatID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartClear empties the cart.
func CartClear(svc cart.Service, resolve identityResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		id, err := resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Clear(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartImport moves a guest cart into the authenticated account.
func CartImport(svc cart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartImportRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Import(r.Context(), userID, uuid.MustParse(payload.CartToken))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
