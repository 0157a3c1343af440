package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// License is a seller-defined pricing tier. Default tiers are seeded per seller
// and cannot be removed.
type License struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID      `gorm:"column:user_id;type:uuid;not null"`
	Name      string         `gorm:"column:name;not null"`
	MP3       bool           `gorm:"column:mp3;not null"`
	WAV       bool           `gorm:"column:wav;not null"`
	Trackout  bool           `gorm:"column:trackout;not null"`
	Discounts bool           `gorm:"column:discounts;not null"`
	Enabled   bool           `gorm:"column:enabled;not null"`
	IsDefault bool           `gorm:"column:is_default;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
