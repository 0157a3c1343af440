package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// LedgerEvent records an immutable money movement tied to a transaction. A nil
// AccountID books the entry against the platform.
type LedgerEvent struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID uuid.UUID             `gorm:"column:transaction_id;type:uuid;not null"`
	AccountID     *uuid.UUID            `gorm:"column:account_id;type:uuid"`
	ActorUserID   uuid.UUID             `gorm:"column:actor_user_id;type:uuid;not null"`
	Type          enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Metadata      json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
