package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// Transaction is the unit of settlement. A root (ParentID nil) carries the
// buyer's gateway authorization; its children are per-payee obligations whose
// status follows the root. beats_sell payouts are separate roots owned by the
// seller and point at the obligation they realize via SourceTransactionID.
type Transaction struct {
	ID                   uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code                 string                  `gorm:"column:code;not null;uniqueIndex"`
	Type                 enums.TransactionType   `gorm:"column:type;type:transaction_type;not null"`
	Amount               decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Status               enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'wait'"`
	UserID               uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	GatewayToken         *string                 `gorm:"column:gateway_token;uniqueIndex"`
	CorrelationID        *string                 `gorm:"column:correlation_id"`
	ParentID             *uuid.UUID              `gorm:"column:parent_id;type:uuid"`
	PayeeID              *uuid.UUID              `gorm:"column:payee_id;type:uuid"`
	Receiver             *string                 `gorm:"column:receiver"`
	GatewayTransactionID *string                 `gorm:"column:gateway_transaction_id"`
	SourceTransactionID  *uuid.UUID              `gorm:"column:source_transaction_id;type:uuid;uniqueIndex"`
	Items                []TransactionItem       `gorm:"foreignKey:TransactionID;references:ID"`
	Children             []Transaction           `gorm:"foreignKey:ParentID;references:ID"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// IsRoot reports whether the transaction is a gateway-authorized root.
func (t *Transaction) IsRoot() bool {
	return t != nil && t.ParentID == nil
}

// ItemsTotal sums the amounts of the loaded line items.
func (t *Transaction) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	if t == nil {
		return total
	}
	for _, item := range t.Items {
		total = total.Add(item.Amount)
	}
	return total
}

// TransactionItem ties a beat sale to one obligation. Price is the gross line
// price; Amount is the share of it owed to the parent obligation.
type TransactionItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID uuid.UUID       `gorm:"column:transaction_id;type:uuid;not null"`
	BeatID        uuid.UUID       `gorm:"column:beat_id;type:uuid;not null"`
	LicenseID     uuid.UUID       `gorm:"column:license_id;type:uuid;not null"`
	Name          string          `gorm:"column:name;not null"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
