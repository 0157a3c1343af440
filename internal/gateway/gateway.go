// Package gateway is the boundary between settlement and the payment provider.
// Nothing outside the adapters sees provider field names.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the provider-reported state of a checkout.
type Status string

const (
	StatusNotInitiated Status = "NotInitiated"
	StatusFailed       Status = "Failed"
	StatusInProgress   Status = "InProgress"
	StatusCompleted    Status = "Completed"
)

// CodeInstrumentDeclined is the provider code for a declined funding instrument.
const CodeInstrumentDeclined = "10486"

// CodeUnavailable tags transport failures and open circuits.
const CodeUnavailable = "unavailable"

// Line is one purchased beat inside an obligation.
type Line struct {
	Name   string
	Number string
	Amount decimal.Decimal
}

// Obligation is one payee's share of a checkout.
type Obligation struct {
	CorrelationID string
	Payee         string
	Description   string
	Lines         []Line
}

// Amount sums the obligation's lines.
func (o Obligation) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Amount)
	}
	return total
}

// Reference ties a provider checkout back to its root transaction. It travels
// in the provider's custom field and comes back on notifications.
type Reference struct {
	Buyer       uuid.UUID `json:"buyer"`
	Transaction uuid.UUID `json:"transaction"`
}

// Encode renders the reference as the compact JSON stored at the provider.
func (r Reference) Encode() string {
	raw, _ := json.Marshal(r)
	return string(raw)
}

// ParseReference decodes a custom field written by Encode.
func ParseReference(raw string) (Reference, error) {
	var ref Reference
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return Reference{}, fmt.Errorf("decode reference: %w", err)
	}
	if ref.Buyer == uuid.Nil || ref.Transaction == uuid.Nil {
		return Reference{}, errors.New("reference must name buyer and transaction")
	}
	return ref, nil
}

// Checkout is everything the provider needs to authorize one root transaction.
type Checkout struct {
	Code        string
	Reference   Reference
	ReturnURL   string
	CancelURL   string
	NotifyURL   string
	Obligations []Obligation
}

type InitiateResult struct {
	Token       string
	RedirectURL string
}

// Outcome is the provider-reported state of one obligation's payment block.
type Outcome string

const (
	// OutcomeSettled means the payee was paid.
	OutcomeSettled Outcome = "settled"
	// OutcomePending means the block may still settle.
	OutcomePending Outcome = "pending"
	// OutcomeFailed means the block will not settle.
	OutcomeFailed Outcome = "failed"
)

// ObligationResult is the provider's view of one obligation.
type ObligationResult struct {
	CorrelationID        string
	GatewayTransactionID string
	// Outcome defaults to settled when the provider reported a transaction id
	// and no error code.
	Outcome   Outcome
	ErrorCode string
}

// Settled reports whether the payee of this block has been paid.
func (o ObligationResult) Settled() bool {
	if o.ErrorCode != "" || o.GatewayTransactionID == "" {
		return false
	}
	return o.Outcome == "" || o.Outcome == OutcomeSettled
}

type StatusResult struct {
	Status      Status
	PayerID     string
	Obligations []ObligationResult
}

// ObligationFor returns the block reported for correlationID.
func (r *StatusResult) ObligationFor(correlationID string) (ObligationResult, bool) {
	if r == nil || correlationID == "" {
		return ObligationResult{}, false
	}
	for _, o := range r.Obligations {
		if o.CorrelationID == correlationID {
			return o, true
		}
	}
	return ObligationResult{}, false
}

// TransactionIDFor returns the provider transaction id reported for correlationID.
func (r *StatusResult) TransactionIDFor(correlationID string) string {
	o, _ := r.ObligationFor(correlationID)
	return o.GatewayTransactionID
}

// Gateway is the port settlement and checkout depend on.
type Gateway interface {
	Initiate(ctx context.Context, checkout Checkout) (*InitiateResult, error)
	FetchStatus(ctx context.Context, token string) (*StatusResult, error)
	Capture(ctx context.Context, token, payerID string, checkout Checkout) error
	CheckoutURL(token string) string
}

// GatewayError is any provider-reported or transport failure.
type GatewayError struct {
	Code    string
	Message string
	cause   error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsDeclined reports the retryable declined-instrument case.
func (e *GatewayError) IsDeclined() bool {
	return e != nil && e.Code == CodeInstrumentDeclined
}

// AsGatewayError extracts a *GatewayError from err's chain.
func AsGatewayError(err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return nil
}
