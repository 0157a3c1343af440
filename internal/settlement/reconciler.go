// Package settlement converges a root transaction onto the gateway's view of
// the payment. Webhooks, client polls and the sweeper all funnel through the
// Reconciler so payouts are created once per obligation.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/internal/cart"
	"github.com/angelmondragon/beatstore-backend/internal/gateway"
	"github.com/angelmondragon/beatstore-backend/internal/ledger"
	"github.com/angelmondragon/beatstore-backend/internal/transactions"
	"github.com/angelmondragon/beatstore-backend/internal/users"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox"
	"github.com/angelmondragon/beatstore-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledgerBook interface {
	Record(ctx context.Context, tx *gorm.DB, entries ...ledger.Entry) ([]models.LedgerEvent, error)
}

type settlementMetrics interface {
	ObserveGatewayCall(method string, duration time.Duration, err error)
	IncTransition(from, to string)
	IncNoop()
	AddPayouts(n int)
}

const outboxSource = "settlement"

// Deps wires the reconciler.
type Deps struct {
	Tx           txRunner
	Transactions *transactions.Repository
	Users        *users.Repository
	Carts        cart.CartRepository
	Ledger       ledgerBook
	Outbox       outboxEmitter
	Gateway      gateway.Gateway
	Codes        transactions.CodeSource
	Metrics      settlementMetrics
	Logger       *logger.Logger
}

// Reconciler applies gateway outcomes to transaction trees.
type Reconciler struct {
	tx           txRunner
	transactions *transactions.Repository
	users        *users.Repository
	carts        cart.CartRepository
	ledger       ledgerBook
	outbox       outboxEmitter
	gateway      gateway.Gateway
	codes        transactions.CodeSource
	metrics      settlementMetrics
	logg         *logger.Logger
}

// SettleInput identifies the root by gateway token. BuyerID, when set,
// must own the root.
type SettleInput struct {
	Token   string
	BuyerID *uuid.UUID
}

// Result is the reloaded tree plus what this call did to it.
type Result struct {
	Transaction *models.Transaction
	From        enums.TransactionStatus
	To          enums.TransactionStatus
	Changed     bool
	Payouts     []models.Transaction
}

func NewReconciler(deps Deps) (*Reconciler, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Transactions == nil:
		return nil, fmt.Errorf("transactions repository required")
	case deps.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case deps.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("gateway required")
	case deps.Codes == nil:
		return nil, fmt.Errorf("code source required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{
		tx:           deps.Tx,
		transactions: deps.Transactions,
		users:        deps.Users,
		carts:        deps.Carts,
		ledger:       deps.Ledger,
		outbox:       deps.Outbox,
		gateway:      deps.Gateway,
		codes:        deps.Codes,
		metrics:      deps.Metrics,
		logg:         deps.Logger,
	}, nil
}

// StatusFor maps a gateway status onto the transaction lifecycle.
func StatusFor(status gateway.Status) enums.TransactionStatus {
	switch status {
	case gateway.StatusCompleted:
		return enums.TransactionStatusSuccess
	case gateway.StatusFailed:
		return enums.TransactionStatusFail
	case gateway.StatusInProgress:
		return enums.TransactionStatusVary
	default:
		return enums.TransactionStatusWait
	}
}

// Settle reads the gateway status for token and applies it. Terminal roots
// are returned as stored without contacting the gateway.
func (r *Reconciler) Settle(ctx context.Context, in SettleInput) (*Result, error) {
	token := strings.TrimSpace(in.Token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	ctx = r.logg.WithGatewayToken(ctx, token)

	root, err := r.transactions.FindRootByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownTransaction(token)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction by token")
	}
	if in.BuyerID != nil && *in.BuyerID != root.UserID {
		return nil, ErrAccessDenied()
	}
	ctx = r.logg.WithTransactionID(ctx, root.ID.String())

	if root.Status.IsTerminal() {
		r.noop()
		return r.result(ctx, root.ID, root.Status, root.Status, false, nil)
	}

	started := time.Now()
	status, err := r.gateway.FetchStatus(ctx, token)
	r.observe("fetch_status", started, err)
	if err != nil {
		r.logg.Warn(ctx, "gateway status lookup failed")
		return nil, GatewayFailure(err)
	}
	return r.apply(ctx, root.ID, StatusFor(status.Status), status, "")
}

// Fail moves an unsettled root to fail without contacting the gateway.
func (r *Reconciler) Fail(ctx context.Context, rootID uuid.UUID, reason string) (*Result, error) {
	if rootID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	ctx = r.logg.WithTransactionID(ctx, rootID.String())
	return r.apply(ctx, rootID, enums.TransactionStatusFail, nil, reason)
}

// Expire fails a root the buyer never completed.
func (r *Reconciler) Expire(ctx context.Context, rootID uuid.UUID) (*Result, error) {
	return r.Fail(ctx, rootID, ReasonAbandoned)
}

func (r *Reconciler) apply(ctx context.Context, rootID uuid.UUID, target enums.TransactionStatus, status *gateway.StatusResult, reason string) (*Result, error) {
	var (
		from    enums.TransactionStatus
		changed bool
		payouts []models.Transaction
	)
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.transactions.WithTx(tx)
		locked, err := repo.LockRoot(ctx, rootID)
		if err != nil {
			return err
		}
		from = locked.Status
		if from.IsTerminal() || from == target {
			return nil
		}

		var tree *models.Transaction
		if target == enums.TransactionStatusSuccess {
			if tree, err = repo.LoadTree(ctx, rootID); err != nil {
				return err
			}
			// a completed checkout with a block that did not go through is
			// partial; hold it in vary until every payee is paid
			if open := unsettledObligations(tree, status); len(open) > 0 {
				r.logg.Warn(r.logg.WithField(ctx, "obligations", open), "checkout completed with unsettled obligations")
				target = enums.TransactionStatusVary
				if from == target {
					return nil
				}
			}
		}

		affected, err := repo.TransitionTree(ctx, rootID, from, target)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		changed = true

		switch target {
		case enums.TransactionStatusSuccess:
			payouts, err = r.onSuccess(ctx, tx, tree, status)
			return err
		case enums.TransactionStatusFail:
			return r.onFail(ctx, tx, locked, reason)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		r.logg.Error(ctx, "settlement failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply settlement")
	}

	if !changed {
		r.noop()
		return r.result(ctx, rootID, from, from, false, nil)
	}
	if r.metrics != nil {
		r.metrics.IncTransition(from.String(), target.String())
		r.metrics.AddPayouts(len(payouts))
	}
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"from":    from,
		"to":      target,
		"payouts": len(payouts),
	}), "transaction status changed")
	return r.result(ctx, rootID, from, target, true, payouts)
}

// onSuccess realizes every seller obligation as a beats_sell payout, books
// the ledger and clears the purchased beats from the buyer's cart.
func (r *Reconciler) onSuccess(ctx context.Context, tx *gorm.DB, root *models.Transaction, status *gateway.StatusResult) ([]models.Transaction, error) {
	repo := r.transactions.WithTx(tx)
	usersRepo := r.users.WithTx(tx)

	actor := &outbox.ActorRef{UserID: root.UserID, Source: outboxSource}

	var (
		entries  []ledger.Entry
		payouts  []models.Transaction
		beatIDs  []uuid.UUID
		seen     = map[uuid.UUID]struct{}{}
		firstGWT string
	)
	for i := range root.Children {
		child := &root.Children[i]
		for _, item := range child.Items {
			if _, ok := seen[item.BeatID]; ok {
				continue
			}
			seen[item.BeatID] = struct{}{}
			beatIDs = append(beatIDs, item.BeatID)
		}

		gatewayTxID := status.TransactionIDFor(correlationOf(child))
		if gatewayTxID != "" {
			if firstGWT == "" {
				firstGWT = gatewayTxID
			}
			if err := repo.SetGatewayTransactionID(ctx, child.ID, gatewayTxID); err != nil {
				return nil, err
			}
		}

		if child.Type == enums.TransactionTypeTax {
			entries = append(entries, ledger.Entry{
				Transaction: child.ID,
				Actor:       root.UserID,
				Type:        enums.LedgerEventTypeTaxCollected,
				Amount:      child.Amount,
				Metadata:    map[string]any{"root_code": root.Code},
			})
			continue
		}
		if child.PayeeID == nil {
			return nil, fmt.Errorf("obligation %s has no payee", child.Code)
		}

		code, err := r.codes.NextCode(ctx)
		if err != nil {
			return nil, err
		}
		payout := models.Transaction{
			ID:                  uuid.New(),
			Code:                code,
			Type:                enums.TransactionTypeBeatsSell,
			Amount:              child.Amount,
			Status:              enums.TransactionStatusSuccess,
			UserID:              *child.PayeeID,
			Receiver:            child.Receiver,
			SourceTransactionID: &child.ID,
		}
		if gatewayTxID != "" {
			payout.GatewayTransactionID = &gatewayTxID
		}
		if err := repo.CreatePayout(ctx, &payout); err != nil {
			return nil, err
		}
		if err := usersRepo.CreditBalance(ctx, payout.UserID, payout.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, ledger.Entry{
			Transaction: payout.ID,
			Account:     &payout.UserID,
			Actor:       root.UserID,
			Type:        enums.LedgerEventTypeSaleCredited,
			Amount:      payout.Amount,
			Metadata:    map[string]any{"root_code": root.Code, "source_code": child.Code},
		})
		if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSellerPayoutCreated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   payout.ID,
			Actor:         actor,
			Data: payloads.SellerPayoutCreatedEvent{
				PayoutID:            payout.ID,
				SourceTransactionID: child.ID,
				SellerID:            payout.UserID,
				Amount:              payout.Amount,
			},
			Version: 1,
		}); err != nil {
			return nil, err
		}
		payouts = append(payouts, payout)
	}

	if _, err := r.ledger.Record(ctx, tx, entries...); err != nil {
		return nil, err
	}

	payoutIDs := make([]uuid.UUID, 0, len(payouts))
	for _, payout := range payouts {
		payoutIDs = append(payoutIDs, payout.ID)
	}
	if err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTransactionSettled,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   root.ID,
		Actor:         actor,
		Data: payloads.TransactionSettledEvent{
			TransactionID:        root.ID,
			Code:                 root.Code,
			BuyerID:              root.UserID,
			Amount:               root.Amount,
			GatewayTransactionID: firstGWT,
			PayoutIDs:            payoutIDs,
		},
		Version: 1,
	}); err != nil {
		return nil, err
	}

	if _, err := r.carts.WithTx(tx).ClearPurchased(ctx, root.UserID, beatIDs); err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *Reconciler) onFail(ctx context.Context, tx *gorm.DB, root *models.Transaction, reason string) error {
	if _, err := r.ledger.Record(ctx, tx, ledger.Entry{
		Transaction: root.ID,
		Account:     &root.UserID,
		Actor:       root.UserID,
		Type:        enums.LedgerEventTypeCheckoutFailed,
		Amount:      root.Amount,
		Metadata:    map[string]any{"root_code": root.Code, "reason": reason},
	}); err != nil {
		return err
	}
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTransactionFailed,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   root.ID,
		Actor:         &outbox.ActorRef{UserID: root.UserID, Source: outboxSource},
		Data: payloads.TransactionFailedEvent{
			TransactionID: root.ID,
			Code:          root.Code,
			BuyerID:       root.UserID,
			Status:        enums.TransactionStatusFail,
			Reason:        reason,
		},
		Version: 1,
	})
}

func (r *Reconciler) result(ctx context.Context, rootID uuid.UUID, from, to enums.TransactionStatus, changed bool, payouts []models.Transaction) (*Result, error) {
	tree, err := r.transactions.LoadTree(ctx, rootID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
	}
	return &Result{Transaction: tree, From: from, To: to, Changed: changed, Payouts: payouts}, nil
}

func (r *Reconciler) noop() {
	if r.metrics != nil {
		r.metrics.IncNoop()
	}
}

func (r *Reconciler) observe(method string, started time.Time, err error) {
	if r.metrics != nil {
		r.metrics.ObserveGatewayCall(method, time.Since(started), err)
	}
}

// unsettledObligations lists the codes of gateway-bound obligations
// whose block the gateway has not reported as paid. Zero obligations never
// reach the gateway and are skipped.
func unsettledObligations(root *models.Transaction, status *gateway.StatusResult) []string {
	var open []string
	for i := range root.Children {
		child := &root.Children[i]
		if child.Amount.IsZero() {
			continue
		}
		block, ok := status.ObligationFor(correlationOf(child))
		if !ok || !block.Settled() {
			open = append(open, child.Code)
		}
	}
	return open
}

func correlationOf(t *models.Transaction) string {
	if t.CorrelationID == nil {
		return ""
	}
	return *t.CorrelationID
}
