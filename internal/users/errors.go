package users

import (
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

// ReasonMissingPayoutDestination marks a seller without a payout receiver.
const ReasonMissingPayoutDestination = "missing_payout_destination"

// ErrMissingPayoutDestination is returned before anything is persisted for a
// seller that cannot receive money.
func ErrMissingPayoutDestination(sellerID uuid.UUID) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "seller has no payout destination").
		WithDetails(map[string]any{"seller_id": sellerID.String()}).
		WithReason(ReasonMissingPayoutDestination)
}
