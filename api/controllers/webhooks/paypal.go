package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/angelmondragon/beatstore-backend/api/responses"
	"github.com/angelmondragon/beatstore-backend/internal/settlement"
	"github.com/angelmondragon/beatstore-backend/internal/webhooks/dedupe"
	paypalwebhook "github.com/angelmondragon/beatstore-backend/internal/webhooks/paypal"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

const maxNotificationBytes = 64 << 10

type PayPalNotificationService interface {
	HandleNotification(ctx context.Context, n *paypalwebhook.Notification) (*settlement.Result, error)
}

type ipnVerifier interface {
	VerifyIPN(ctx context.Context, rawBody []byte) (bool, error)
}

type notificationGuard interface {
	Begin(ctx context.Context, eventID string) (dedupe.State, error)
	Complete(ctx context.Context, eventID string) error
	Abort(ctx context.Context, eventID string) error
}

// PayPalIPN verifies an instant payment notification with PayPal and hands it
// to the settlement flow. Redeliveries of a processed txn_id/status pair are
// acknowledged without side effects; one that races an in-flight attempt gets
// a 409 so PayPal redelivers it later.
func PayPalIPN(svc PayPalNotificationService, verifier ipnVerifier, guard notificationGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "paypal client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		verified, err := verifier.VerifyIPN(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify notification"))
			return
		}
		if !verified {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "notification could not be verified"))
			return
		}

		values, err := url.ParseQuery(string(payload))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode notification"))
			return
		}
		n, err := paypalwebhook.ParseNotification(values)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := n.EventID()
		state, err := guard.Begin(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim notification"))
			return
		}
		switch state {
		case dedupe.Done:
			responses.WriteSuccess(w, nil)
			return
		case dedupe.InFlight:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "notification is already being processed"))
			return
		}

		if _, err := svc.HandleNotification(ctx, n); err != nil {
			if abortErr := guard.Abort(context.WithoutCancel(ctx), eventID); abortErr != nil && logg != nil {
				logg.Error(ctx, "paypal notification claim not released", abortErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Complete(context.WithoutCancel(ctx), eventID); err != nil && logg != nil {
			// settlement is idempotent, a redelivery is harmless
			logg.Error(ctx, "paypal notification not marked done", err)
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"txn_id":         n.TxnID,
				"payment_status": n.PaymentStatus,
			}), "paypal notification processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
