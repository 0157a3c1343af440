package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a pending purchase line. Exactly one of UserID and CartToken is
// set; a beat appears at most once per cart identity.
type CartItem struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid"`
	CartToken *uuid.UUID `gorm:"column:cart_token;type:uuid"`
	BeatID    uuid.UUID  `gorm:"column:beat_id;type:uuid;not null"`
	LicenseID uuid.UUID  `gorm:"column:license_id;type:uuid;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}
