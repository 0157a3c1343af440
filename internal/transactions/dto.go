package transactions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// TransactionDTO is the API shape of a transaction and, when loaded, its tree.
type TransactionDTO struct {
	ID                   uuid.UUID               `json:"id"`
	Code                 string                  `json:"code"`
	Type                 enums.TransactionType   `json:"type"`
	Amount               decimal.Decimal         `json:"amount"`
	Status               enums.TransactionStatus `json:"status"`
	UserID               uuid.UUID               `json:"user_id"`
	ParentID             *uuid.UUID              `json:"parent_id,omitempty"`
	PayeeID              *uuid.UUID              `json:"payee_id,omitempty"`
	CorrelationID        *string                 `json:"correlation_id,omitempty"`
	GatewayTransactionID *string                 `json:"gateway_transaction_id,omitempty"`
	SourceTransactionID  *uuid.UUID              `json:"source_transaction_id,omitempty"`
	Items                []ItemDTO               `json:"items,omitempty"`
	Children             []TransactionDTO        `json:"children,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

type ItemDTO struct {
	BeatID    uuid.UUID       `json:"beat_id"`
	LicenseID uuid.UUID       `json:"license_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
}

// FromModel converts a transaction and whatever part of its tree is loaded.
func FromModel(t *models.Transaction) *TransactionDTO {
	if t == nil {
		return nil
	}
	dto := &TransactionDTO{
		ID:                   t.ID,
		Code:                 t.Code,
		Type:                 t.Type,
		Amount:               t.Amount,
		Status:               t.Status,
		UserID:               t.UserID,
		ParentID:             t.ParentID,
		PayeeID:              t.PayeeID,
		CorrelationID:        t.CorrelationID,
		GatewayTransactionID: t.GatewayTransactionID,
		SourceTransactionID:  t.SourceTransactionID,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
	for _, item := range t.Items {
		dto.Items = append(dto.Items, ItemDTO{
			BeatID:    item.BeatID,
			LicenseID: item.LicenseID,
			Name:      item.Name,
			Price:     item.Price,
			Amount:    item.Amount,
		})
	}
	for i := range t.Children {
		dto.Children = append(dto.Children, *FromModel(&t.Children[i]))
	}
	return dto
}
