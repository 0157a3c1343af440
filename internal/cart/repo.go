package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	ListItems(ctx context.Context, id Identity) ([]models.CartItem, error)
	Insert(ctx context.Context, item *models.CartItem) error
	Remove(ctx context.Context, id Identity, beatID uuid.UUID) (int64, error)
	Clear(ctx context.Context, id Identity) (int64, error)
	MoveGuestToUser(ctx context.Context, token, userID uuid.UUID) (moved int64, discarded int64, err error)
	ClearPurchased(ctx context.Context, userID uuid.UUID, beatIDs []uuid.UUID) (int64, error)
}

// Repository stores cart items keyed by account or guest token.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListItems returns the cart in insertion order.
func (r *Repository) ListItems(ctx context.Context, id Identity) ([]models.CartItem, error) {
	var items []models.CartItem
	err := id.scope(r.db.WithContext(ctx)).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// Insert adds one line. A second line for the same (identity, beat) fails with
// a unique violation from ux_cart_items_user_beat / ux_cart_items_token_beat.
func (r *Repository) Insert(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) Remove(ctx context.Context, id Identity, beatID uuid.UUID) (int64, error) {
	res := id.scope(r.db.WithContext(ctx)).Where("beat_id = ?", beatID).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *Repository) Clear(ctx context.Context, id Identity) (int64, error) {
	res := id.scope(r.db.WithContext(ctx)).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

// MoveGuestToUser reassigns a guest cart to an account. Guest lines for beats
// the account already holds are discarded first so the move cannot collide.
func (r *Repository) MoveGuestToUser(ctx context.Context, token, userID uuid.UUID) (int64, int64, error) {
	db := r.db.WithContext(ctx)

	owned := db.Model(&models.CartItem{}).
		Select("beat_id").
		Where("user_id = ? AND cart_token IS NULL", userID)
	discard := db.Where("cart_token = ? AND user_id IS NULL", token).
		Where("beat_id IN (?)", owned).
		Delete(&models.CartItem{})
	if discard.Error != nil {
		return 0, 0, discard.Error
	}

	move := db.Model(&models.CartItem{}).
		Where("cart_token = ? AND user_id IS NULL", token).
		Updates(map[string]any{"user_id": userID, "cart_token": nil})
	if move.Error != nil {
		return 0, discard.RowsAffected, move.Error
	}
	return move.RowsAffected, discard.RowsAffected, nil
}

// ClearPurchased deletes the account's lines for the purchased beats in one
// statement. Repeating it deletes nothing and is not an error.
func (r *Repository) ClearPurchased(ctx context.Context, userID uuid.UUID, beatIDs []uuid.UUID) (int64, error) {
	if len(beatIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND cart_token IS NULL", userID).
		Where("beat_id IN ?", beatIDs).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
