package paypalwebhook

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/beatstore-backend/internal/gateway"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

// Payment statuses carried by payment_status.
const (
	PaymentStatusCompleted = "Completed"
	PaymentStatusFailed    = "Failed"
	PaymentStatusDenied    = "Denied"
)

// Notification is a decoded instant payment notification.
type Notification struct {
	TxnID         string
	PayerID       string
	PaymentStatus string
	Currency      string
	Gross         decimal.Decimal
	Custom        gateway.Reference
}

// EventID keys the idempotency guard. The same txn_id is redelivered once per
// payment_status change, so both are part of the key.
func (n *Notification) EventID() string {
	return n.TxnID + ":" + n.PaymentStatus
}

// ParseNotification decodes the form body. Verification with the gateway
// happens before this is trusted.
func ParseNotification(values url.Values) (*Notification, error) {
	n := &Notification{
		TxnID:         strings.TrimSpace(values.Get("txn_id")),
		PayerID:       strings.TrimSpace(values.Get("payer_id")),
		PaymentStatus: strings.TrimSpace(values.Get("payment_status")),
		Currency:      strings.TrimSpace(values.Get("mc_currency")),
	}
	if n.TxnID == "" || n.PaymentStatus == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "txn_id and payment_status are required")
	}

	if raw := strings.TrimSpace(values.Get("mc_gross")); raw != "" {
		gross, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid mc_gross")
		}
		n.Gross = gross
	}

	ref, err := gateway.ParseReference(values.Get("custom"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid custom payload")
	}
	n.Custom = ref
	return n, nil
}
