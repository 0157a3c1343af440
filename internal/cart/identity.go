package cart

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

// Identity owns a cart: an account or an anonymous guest token, never both.
type Identity struct {
	UserID *uuid.UUID
	Token  *uuid.UUID
}

// ForUser scopes a cart to an authenticated account.
func ForUser(userID uuid.UUID) Identity {
	return Identity{UserID: &userID}
}

// ForGuest scopes a cart to an anonymous token.
func ForGuest(token uuid.UUID) Identity {
	return Identity{Token: &token}
}

func (i Identity) validate() error {
	switch {
	case i.UserID != nil && i.Token != nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "cart identity must be an account or a guest token")
	case i.UserID != nil && *i.UserID != uuid.Nil:
		return nil
	case i.Token != nil && *i.Token != uuid.Nil:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "cart identity missing")
	}
}

func (i Identity) scope(db *gorm.DB) *gorm.DB {
	if i.UserID != nil {
		return db.Where("user_id = ? AND cart_token IS NULL", *i.UserID)
	}
	return db.Where("cart_token = ? AND user_id IS NULL", *i.Token)
}
