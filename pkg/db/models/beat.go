package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Beat is a seller-owned catalog item. It has no flat price; see Prices.
type Beat struct {
	ID        uuid.UUID   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID   `gorm:"column:user_id;type:uuid;not null"`
	Name      string      `gorm:"column:name;not null"`
	Seller    *User       `gorm:"foreignKey:UserID;references:ID"`
	Prices    []BeatPrice `gorm:"foreignKey:BeatID;references:ID"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// BeatPrice is one entry of a beat's license price map.
type BeatPrice struct {
	BeatID    uuid.UUID       `gorm:"column:beat_id;type:uuid;primaryKey"`
	LicenseID uuid.UUID       `gorm:"column:license_id;type:uuid;primaryKey"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	License   *License        `gorm:"foreignKey:LicenseID;references:ID"`
}

func (BeatPrice) TableName() string { return "beat_prices" }
