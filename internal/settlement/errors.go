package settlement

import (
	"github.com/angelmondragon/beatstore-backend/internal/gateway"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

const (
	ReasonUnknownTransaction = "unknown_transaction"
	ReasonAbandoned          = "abandoned"
)

// ErrUnknownTransaction reports a gateway token no root carries. Nothing is
// created for it.
func ErrUnknownTransaction(token string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found").
		WithDetails(map[string]any{"token": token}).
		WithReason(ReasonUnknownTransaction)
}

// ErrAccessDenied is returned when the caller does not own the root.
func ErrAccessDenied() *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "transaction belongs to another account")
}

// GatewayFailure maps an adapter error onto the API error table.
func GatewayFailure(err error) *pkgerrors.Error {
	code := gateway.CodeUnavailable
	if gwErr := gateway.AsGatewayError(err); gwErr != nil {
		code = gwErr.Code
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway request failed").
		WithDetails(map[string]any{"gateway_code": code})
}
