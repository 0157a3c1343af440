// Package paypalwebhook applies verified PayPal instant payment notifications
// through the settlement reconciler.
package paypalwebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/internal/settlement"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

const ReasonAmountMismatch = "amount_mismatch"

type treeLoader interface {
	LoadTree(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

type reconciler interface {
	Settle(ctx context.Context, in settlement.SettleInput) (*settlement.Result, error)
	Fail(ctx context.Context, rootID uuid.UUID, reason string) (*settlement.Result, error)
}

type ServiceParams struct {
	Transactions treeLoader
	Reconciler   reconciler
	Currency     string
	Logger       *logger.Logger
}

type Service struct {
	transactions treeLoader
	reconciler   reconciler
	currency     string
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions repository required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if strings.TrimSpace(params.Currency) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "currency required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		transactions: params.Transactions,
		reconciler:   params.Reconciler,
		currency:     params.Currency,
		logg:         params.Logger,
	}, nil
}

// HandleNotification routes a notification to the reconciler. Failed and
// denied payments fail the root, as do completed payments whose currency or
// amount disagree with it. With parallel payments the gross may cover a single
// obligation, so any obligation amount is accepted too. Everything else
// re-reads the gateway status.
func (s *Service) HandleNotification(ctx context.Context, n *Notification) (*settlement.Result, error) {
	if n == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification required")
	}
	ctx = s.logg.WithTransactionID(ctx, n.Custom.Transaction.String())

	root, err := s.transactions.LoadTree(ctx, n.Custom.Transaction)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, settlement.ErrUnknownTransaction(n.Custom.Transaction.String())
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction")
	}
	if root.ParentID != nil {
		return nil, settlement.ErrUnknownTransaction(n.Custom.Transaction.String())
	}
	if root.UserID != n.Custom.Buyer {
		return nil, settlement.ErrAccessDenied()
	}
	if root.GatewayToken == nil || *root.GatewayToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction has no gateway token")
	}

	switch n.PaymentStatus {
	case PaymentStatusFailed, PaymentStatusDenied:
		return s.reconciler.Fail(ctx, root.ID, "payment_"+strings.ToLower(n.PaymentStatus))
	case PaymentStatusCompleted:
		if !grossMatches(root, n.Gross) || !strings.EqualFold(n.Currency, s.currency) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"mc_gross":    n.Gross.String(),
				"mc_currency": n.Currency,
				"expected":    fmt.Sprintf("%s %s", root.Amount.StringFixed(2), s.currency),
			}), "notification amount does not match transaction")
			return s.reconciler.Fail(ctx, root.ID, ReasonAmountMismatch)
		}
	}
	return s.reconciler.Settle(ctx, settlement.SettleInput{Token: *root.GatewayToken, BuyerID: &root.UserID})
}

func grossMatches(root *models.Transaction, gross decimal.Decimal) bool {
	if gross.Equal(root.Amount) {
		return true
	}
	for _, child := range root.Children {
		if !child.Amount.IsZero() && gross.Equal(child.Amount) {
			return true
		}
	}
	return false
}
