package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is a marketplace account. Sellers receive payouts at PaypalReceiver and
// accumulate realized sales in Balance.
type User struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email          string          `gorm:"column:email;type:text;not null;uniqueIndex"`
	DisplayName    string          `gorm:"column:display_name;not null"`
	PaypalReceiver *string         `gorm:"column:paypal_receiver"`
	Balance        decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// HasPayoutDestination reports whether the account can receive money.
func (u *User) HasPayoutDestination() bool {
	return u != nil && u.PaypalReceiver != nil && *u.PaypalReceiver != ""
}
