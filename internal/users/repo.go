// Package users holds the account rows the settlement flow credits.
package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
)

// NewUser is the input to Create. A blank receiver means the account cannot
// be paid out yet.
type NewUser struct {
	ID             uuid.UUID
	Email          string
	DisplayName    string
	PaypalReceiver *string
}

func (n NewUser) model() *models.User {
	u := &models.User{
		ID:          n.ID,
		Email:       strings.ToLower(strings.TrimSpace(n.Email)),
		DisplayName: strings.TrimSpace(n.DisplayName),
		Balance:     decimal.Zero,
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if n.PaypalReceiver != nil {
		if r := strings.TrimSpace(*n.PaypalReceiver); r != "" {
			u.PaypalReceiver = &r
		}
	}
	return u
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to an open transaction; nil keeps the pool.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, in NewUser) (*models.User, error) {
	u := in.model()
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Take(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreditBalance adds amount to the balance in one UPDATE so concurrent
// settlements never lose a credit.
func (r *Repository) CreditBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount))
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetPayoutDestination records (or with nil clears) the seller's receiver.
func (r *Repository) SetPayoutDestination(ctx context.Context, id uuid.UUID, receiver *string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("paypal_receiver", receiver).Error
}
