// Package checkout turns a buyer's cart into a gateway authorization and
// drives the buyer-facing side of settlement.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/internal/cart"
	"github.com/angelmondragon/beatstore-backend/internal/gateway"
	"github.com/angelmondragon/beatstore-backend/internal/pricing"
	"github.com/angelmondragon/beatstore-backend/internal/settlement"
	"github.com/angelmondragon/beatstore-backend/internal/transactions"
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

type beatLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Beat, error)
}

type settler interface {
	Settle(ctx context.Context, in settlement.SettleInput) (*settlement.Result, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReasonDeclined marks a capture the buyer can retry with another instrument.
const ReasonDeclined = "instrument_declined"

// Service exposes the buyer-facing checkout operations.
type Service interface {
	CreateCheckout(ctx context.Context, buyerID uuid.UUID) (*Session, error)
	Finalize(ctx context.Context, buyerID uuid.UUID, token, payerID string) (*models.Transaction, error)
	Refresh(ctx context.Context, buyerID uuid.UUID, token string) (*models.Transaction, error)
}

// Options carries the redirect and payee settings handed to the gateway.
type Options struct {
	ReturnURL        string
	CancelURL        string
	NotifyURL        string
	Description      string
	PlatformReceiver string
}

// Deps wires the checkout service.
type Deps struct {
	Tx           txRunner
	Carts        cart.CartRepository
	Beats        beatLoader
	Pricing      *pricing.Engine
	Transactions *transactions.Repository
	Codes        transactions.CodeSource
	Gateway      gateway.Gateway
	Settlement   settler
	Outbox       outboxEmitter
	Logger       *logger.Logger
	Options      Options
}

// Session is what the buyer needs to continue at the gateway.
type Session struct {
	RedirectURL string
	Token       string
	Transaction *models.Transaction
}

type service struct {
	tx           txRunner
	carts        cart.CartRepository
	beats        beatLoader
	pricing      *pricing.Engine
	transactions *transactions.Repository
	codes        transactions.CodeSource
	gateway      gateway.Gateway
	settlement   settler
	outbox       outboxEmitter
	logg         *logger.Logger
	opts         Options
}

// NewService builds the checkout service.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case deps.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case deps.Beats == nil:
		return nil, fmt.Errorf("beat loader required")
	case deps.Pricing == nil:
		return nil, fmt.Errorf("pricing engine required")
	case deps.Transactions == nil:
		return nil, fmt.Errorf("transactions repository required")
	case deps.Codes == nil:
		return nil, fmt.Errorf("code source required")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("gateway required")
	case deps.Settlement == nil:
		return nil, fmt.Errorf("settlement reconciler required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case strings.TrimSpace(deps.Options.PlatformReceiver) == "":
		return nil, fmt.Errorf("platform receiver required")
	}
	return &service{
		tx:           deps.Tx,
		carts:        deps.Carts,
		beats:        deps.Beats,
		pricing:      deps.Pricing,
		transactions: deps.Transactions,
		codes:        deps.Codes,
		gateway:      deps.Gateway,
		settlement:   deps.Settlement,
		outbox:       deps.Outbox,
		logg:         deps.Logger,
		opts:         deps.Options,
	}, nil
}

// CreateCheckout prices the cart, opens the gateway checkout and persists the
// root with one obligation per seller plus tax, all in wait.
func (s *service) CreateCheckout(ctx context.Context, buyerID uuid.UUID) (*Session, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer identity missing")
	}
	ctx = s.logg.WithUserID(ctx, buyerID.String())

	lines, err := s.priceCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart()
	}

	rootCode, err := s.codes.NextCode(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate transaction code")
	}
	plan, err := Split(rootCode, lines)
	if err != nil {
		return nil, err
	}

	ref := gateway.Reference{Buyer: buyerID, Transaction: uuid.New()}
	initiated, err := s.gateway.Initiate(ctx, s.gatewayCheckout(plan, ref))
	if err != nil {
		s.logg.Warn(ctx, "gateway checkout initiation failed")
		return nil, settlement.GatewayFailure(err)
	}

	root, err := s.buildTree(ctx, ref, plan, initiated.Token)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.transactions.WithTx(tx).CreateTree(ctx, root); err != nil {
			return err
		}
		obligationIDs := make([]uuid.UUID, 0, len(root.Children))
		for _, child := range root.Children {
			obligationIDs = append(obligationIDs, child.ID)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutCreated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   root.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Source: "checkout"},
			Data: payloads.CheckoutCreatedEvent{
				TransactionID: root.ID,
				Code:          root.Code,
				BuyerID:       buyerID,
				Amount:        root.Amount,
				ObligationIDs: obligationIDs,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist checkout")
	}

	tree, err := s.transactions.LoadTree(ctx, root.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload checkout")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": root.ID.String(),
		"code":           root.Code,
		"obligations":    len(root.Children),
	}), "checkout created")
	return &Session{RedirectURL: initiated.RedirectURL, Token: initiated.Token, Transaction: tree}, nil
}

// Finalize captures the authorized payment and settles the root. A declined
// instrument leaves the root untouched so the buyer can retry at the gateway.
func (s *service) Finalize(ctx context.Context, buyerID uuid.UUID, token, payerID string) (*models.Transaction, error) {
	token = strings.TrimSpace(token)
	payerID = strings.TrimSpace(payerID)
	if token == "" || payerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token and payer_id are required")
	}

	root, err := s.ownedRoot(ctx, buyerID, token)
	if err != nil {
		return nil, err
	}
	if root.Status.IsTerminal() {
		return s.reload(ctx, root.ID)
	}

	tree, err := s.transactions.LoadTree(ctx, root.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if err := s.gateway.Capture(ctx, token, payerID, checkoutFromTree(tree, s.opts)); err != nil {
		if gwErr := gateway.AsGatewayError(err); gwErr != nil && gwErr.IsDeclined() {
			return nil, ErrRefused(s.gateway.CheckoutURL(token))
		}
		s.logg.Warn(s.logg.WithGatewayToken(ctx, token), "gateway capture failed")
		return nil, settlement.GatewayFailure(err)
	}

	res, err := s.settlement.Settle(ctx, settlement.SettleInput{Token: token, BuyerID: &buyerID})
	if err != nil {
		return nil, err
	}
	return res.Transaction, nil
}

// Refresh re-reads the gateway state without capturing.
func (s *service) Refresh(ctx context.Context, buyerID uuid.UUID, token string) (*models.Transaction, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer identity missing")
	}
	res, err := s.settlement.Settle(ctx, settlement.SettleInput{Token: token, BuyerID: &buyerID})
	if err != nil {
		return nil, err
	}
	return res.Transaction, nil
}

// ErrRefused tells the buyer to pick another funding source at redirectURL.
func ErrRefused(redirectURL string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeRefused, "payment was declined, choose another funding source").
		WithDetails(map[string]any{"redirect_url": redirectURL}).
		WithReason(ReasonDeclined)
}

func (s *service) ownedRoot(ctx context.Context, buyerID uuid.UUID, token string) (*models.Transaction, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer identity missing")
	}
	root, err := s.transactions.FindRootByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, settlement.ErrUnknownTransaction(token)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction by token")
	}
	if root.UserID != buyerID {
		return nil, settlement.ErrAccessDenied()
	}
	return root, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	tree, err := s.transactions.LoadTree(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return tree, nil
}

// priceCart resolves every cart line against the current catalog. A line whose
// beat vanished or whose license is no longer offered fails the checkout.
func (s *service) priceCart(ctx context.Context, buyerID uuid.UUID) ([]pricing.Line, error) {
	items, err := s.carts.ListItems(ctx, cart.ForUser(buyerID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.BeatID)
	}
	catalog, err := s.beats.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load beats")
	}

	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		beat, ok := catalog[item.BeatID]
		if !ok {
			return nil, pricing.ErrInvalidLicense(item.BeatID, item.LicenseID)
		}
		line, err := s.pricing.Line(beat, item.LicenseID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *service) buildTree(ctx context.Context, ref gateway.Reference, plan *Plan, token string) (*models.Transaction, error) {
	buyerID := ref.Buyer
	root := &models.Transaction{
		ID:           ref.Transaction,
		Code:         plan.RootCode,
		Type:         enums.TransactionTypeBeatsPurchase,
		Amount:       plan.Amount,
		Status:       enums.TransactionStatusWait,
		UserID:       buyerID,
		GatewayToken: &token,
	}
	for _, obligation := range plan.Obligations {
		code, err := s.codes.NextCode(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate transaction code")
		}
		correlationID := obligation.CorrelationID
		child := models.Transaction{
			ID:            uuid.New(),
			Code:          code,
			Type:          obligation.Type,
			Amount:        obligation.Amount,
			Status:        enums.TransactionStatusWait,
			UserID:        buyerID,
			CorrelationID: &correlationID,
			PayeeID:       obligation.SellerID,
			Receiver:      s.payee(obligation),
		}
		for _, item := range obligation.Items {
			child.Items = append(child.Items, models.TransactionItem{
				ID:        uuid.New(),
				BeatID:    item.BeatID,
				LicenseID: item.LicenseID,
				Name:      item.Name,
				Price:     item.Price,
				Amount:    item.Amount,
			})
		}
		root.Children = append(root.Children, child)
	}
	return root, nil
}

func (s *service) payee(obligation Obligation) *string {
	if obligation.IsTax() {
		receiver := s.opts.PlatformReceiver
		return &receiver
	}
	return obligation.Receiver
}

func (s *service) gatewayCheckout(plan *Plan, ref gateway.Reference) gateway.Checkout {
	checkout := gateway.Checkout{
		Code:      plan.RootCode,
		Reference: ref,
		ReturnURL: s.opts.ReturnURL,
		CancelURL: s.opts.CancelURL,
		NotifyURL: s.opts.NotifyURL,
	}
	for _, obligation := range plan.Obligations {
		if obligation.Amount.IsZero() {
			continue
		}
		payee := s.payee(obligation)
		block := gateway.Obligation{
			CorrelationID: obligation.CorrelationID,
			Payee:         *payee,
			Description:   s.opts.Description,
		}
		for _, item := range obligation.Items {
			block.Lines = append(block.Lines, gateway.Line{
				Name:   item.Name,
				Number: item.BeatID.String(),
				Amount: item.Amount,
			})
		}
		checkout.Obligations = append(checkout.Obligations, block)
	}
	return checkout
}

// checkoutFromTree rebuilds the gateway blocks from a persisted root so capture
// sends exactly what was authorized.
func checkoutFromTree(root *models.Transaction, opts Options) gateway.Checkout {
	checkout := gateway.Checkout{
		Code:      root.Code,
		Reference: gateway.Reference{Buyer: root.UserID, Transaction: root.ID},
		ReturnURL: opts.ReturnURL,
		CancelURL: opts.CancelURL,
		NotifyURL: opts.NotifyURL,
	}
	for _, child := range root.Children {
		if child.Amount.IsZero() {
			continue
		}
		block := gateway.Obligation{Description: opts.Description}
		if child.CorrelationID != nil {
			block.CorrelationID = *child.CorrelationID
		}
		if child.Receiver != nil {
			block.Payee = *child.Receiver
		}
		for _, item := range child.Items {
			block.Lines = append(block.Lines, gateway.Line{
				Name:   item.Name,
				Number: item.BeatID.String(),
				Amount: item.Amount,
			})
		}
		checkout.Obligations = append(checkout.Obligations, block)
	}
	return checkout
}
