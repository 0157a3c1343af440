// Package ledger keeps the append-only record of money movements produced by
// settlement. Rows are never updated; corrections are new entries.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// Entry is one movement. A nil Account books it against the platform.
type Entry struct {
	Transaction uuid.UUID
	Account     *uuid.UUID
	Actor       uuid.UUID
	Type        enums.LedgerEventType
	Amount      decimal.Decimal
	Metadata    map[string]any
}

func (e Entry) validate() error {
	switch {
	case e.Transaction == uuid.Nil:
		return errors.New("transaction id is required")
	case e.Actor == uuid.Nil:
		return errors.New("actor user id is required")
	case !e.Type.IsValid():
		return fmt.Errorf("invalid ledger event type %q", e.Type)
	case e.Amount.IsNegative():
		return errors.New("ledger amount must not be negative")
	}
	return nil
}

// Book writes and reads ledger_events.
type Book struct {
	db *gorm.DB
}

func NewBook(db *gorm.DB) *Book {
	return &Book{db: db}
}

func (b *Book) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return b.db
}

// Record validates every entry before inserting any, then writes them in one
// statement on tx (or the book's own connection when tx is nil).
func (b *Book) Record(ctx context.Context, tx *gorm.DB, entries ...Entry) ([]models.LedgerEvent, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	rows := make([]models.LedgerEvent, len(entries))
	for i, e := range entries {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("ledger entry %d: %w", i, err)
		}
		var meta json.RawMessage
		if len(e.Metadata) > 0 {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return nil, fmt.Errorf("ledger entry %d metadata: %w", i, err)
			}
			meta = raw
		}
		rows[i] = models.LedgerEvent{
			ID:            uuid.New(),
			TransactionID: e.Transaction,
			AccountID:     e.Account,
			ActorUserID:   e.Actor,
			Type:          e.Type,
			Amount:        e.Amount,
			Metadata:      meta,
		}
	}
	if err := b.conn(tx).WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ForTransaction lists a transaction's entries in booking order.
func (b *Book) ForTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.LedgerEvent, error) {
	var rows []models.LedgerEvent
	err := b.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// AccountTotal sums an account's entries of one type, e.g. everything a
// seller was credited.
func (b *Book) AccountTotal(ctx context.Context, accountID uuid.UUID, eventType enums.LedgerEventType) (decimal.Decimal, error) {
	var rows []models.LedgerEvent
	if err := b.db.WithContext(ctx).
		Select("amount").
		Where("account_id = ? AND type = ?", accountID, eventType).
		Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total, nil
}
