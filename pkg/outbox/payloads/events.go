package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/pkg/enums"
)

// CheckoutCreatedEvent is emitted once a root transaction and its obligations
// are persisted and the buyer has been handed a gateway redirect.
type CheckoutCreatedEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Code          string          `json:"code"`
	BuyerID       uuid.UUID       `json:"buyer_id"`
	Amount        decimal.Decimal `json:"amount"`
	ObligationIDs []uuid.UUID     `json:"obligation_ids"`
}

// TransactionSettledEvent reports a root reaching success.
type TransactionSettledEvent struct {
	TransactionID        uuid.UUID       `json:"transaction_id"`
	Code                 string          `json:"code"`
	BuyerID              uuid.UUID       `json:"buyer_id"`
	Amount               decimal.Decimal `json:"amount"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	PayoutIDs            []uuid.UUID     `json:"payout_ids"`
}

// TransactionFailedEvent reports a root moving to fail or vary.
type TransactionFailedEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	Code          string                  `json:"code"`
	BuyerID       uuid.UUID               `json:"buyer_id"`
	Status        enums.TransactionStatus `json:"status"`
	Reason        string                  `json:"reason,omitempty"`
}

// SellerPayoutCreatedEvent is emitted per beats_sell record.
type SellerPayoutCreatedEvent struct {
	PayoutID            uuid.UUID       `json:"payout_id"`
	SourceTransactionID uuid.UUID       `json:"source_transaction_id"`
	SellerID            uuid.UUID       `json:"seller_id"`
	Amount              decimal.Decimal `json:"amount"`
}

// LicenseDeletedEvent lets downstream caches drop a removed pricing tier.
type LicenseDeletedEvent struct {
	LicenseID uuid.UUID `json:"license_id"`
	SellerID  uuid.UUID `json:"seller_id"`
}
