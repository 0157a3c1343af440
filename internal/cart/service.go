package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/internal/pricing"
	"github.com/angelmondragon/beatstore-backend/internal/users"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type beatLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Beat, error)
}

// Service exposes cart operations for accounts and guest tokens.
type Service interface {
	NewGuestToken() uuid.UUID
	GetCart(ctx context.Context, id Identity) (*View, error)
	AddItem(ctx context.Context, id Identity, beatID, licenseID uuid.UUID) (*View, error)
	RemoveItem(ctx context.Context, id Identity, beatID uuid.UUID) (*View, error)
	Clear(ctx context.Context, id Identity) (*View, error)
	Import(ctx context.Context, userID, token uuid.UUID) (*View, error)
}

type service struct {
	repo    CartRepository
	tx      txRunner
	beats   beatLoader
	pricing *pricing.Engine
}

// View is the priced cart. Lines whose beat or license no longer resolves stay
// listed as unavailable and are left out of Total.
type View struct {
	Items []ViewItem      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type ViewItem struct {
	BeatID    uuid.UUID        `json:"beat_id"`
	LicenseID uuid.UUID        `json:"license_id"`
	SellerID  uuid.UUID        `json:"seller_id,omitempty"`
	Name      string           `json:"name"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Available bool             `json:"available"`
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, tx txRunner, beats beatLoader, engine *pricing.Engine) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if beats == nil {
		return nil, fmt.Errorf("beat loader required")
	}
	if engine == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	return &service{repo: repo, tx: tx, beats: beats, pricing: engine}, nil
}

func (s *service) NewGuestToken() uuid.UUID {
	return uuid.New()
}

func (s *service) GetCart(ctx context.Context, id Identity) (*View, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}
	return s.view(ctx, id)
}

// AddItem validates the license against the beat's price map and the seller's
// payout destination before inserting. Re-adding a beat keeps the first line.
func (s *service) AddItem(ctx context.Context, id Identity, beatID, licenseID uuid.UUID) (*View, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}
	if beatID == uuid.Nil || licenseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "beat_id and license_id are required")
	}

	beat, err := s.beats.FindByID(ctx, beatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "beat not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load beat")
	}
	if _, err := s.pricing.PriceOf(beat, licenseID); err != nil {
		return nil, err
	}
	if !beat.Seller.HasPayoutDestination() {
		return nil, users.ErrMissingPayoutDestination(beat.UserID)
	}

	item := &models.CartItem{
		UserID:    id.UserID,
		CartToken: id.Token,
		BeatID:    beat.ID,
		LicenseID: licenseID,
	}
	if err := s.repo.Insert(ctx, item); err != nil && !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return s.view(ctx, id)
}

func (s *service) RemoveItem(ctx context.Context, id Identity, beatID uuid.UUID) (*View, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.Remove(ctx, id, beatID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return s.view(ctx, id)
}

func (s *service) Clear(ctx context.Context, id Identity) (*View, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.Clear(ctx, id); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return s.view(ctx, id)
}

// Import merges a guest cart into the account. Guest lines for beats the
// account already holds are discarded. If a concurrent add wins the race for
// one of the moved beats the import is rolled back and reported as a
// conflict; the caller decides whether to import again.
func (s *service) Import(ctx context.Context, userID, token uuid.UUID) (*View, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if token == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart_token is required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, _, err := s.repo.WithTx(tx).MoveGuestToUser(ctx, token, userID)
		return err
	})
	switch {
	case err == nil:
	case db.IsUniqueViolation(err, ""):
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "cart changed during import")
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "import guest cart")
	}
	return s.view(ctx, ForUser(userID))
}

func (s *service) view(ctx context.Context, id Identity) (*View, error) {
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.BeatID)
	}
	catalog, err := s.beats.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load beats")
	}

	view := &View{Items: make([]ViewItem, 0, len(items)), Total: decimal.Zero}
	for _, item := range items {
		line := ViewItem{BeatID: item.BeatID, LicenseID: item.LicenseID}
		if beat, ok := catalog[item.BeatID]; ok {
			line.Name = beat.Name
			line.SellerID = beat.UserID
			if price, err := s.pricing.PriceOf(beat, item.LicenseID); err == nil {
				line.Price = &price
				line.Available = true
				view.Total = view.Total.Add(price)
			}
		}
		view.Items = append(view.Items, line)
	}
	return view, nil
}
