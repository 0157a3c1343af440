package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/pkg/paypal"
)

type expressCheckoutClient interface {
	SetExpressCheckout(ctx context.Context, req paypal.SetExpressCheckoutRequest) (string, error)
	GetExpressCheckoutDetails(ctx context.Context, token string) (*paypal.CheckoutDetails, error)
	DoExpressCheckoutPayment(ctx context.Context, token, payerID string, payments []paypal.PaymentRequest) (*paypal.PaymentResult, error)
	CheckoutURL(token string) string
}

// PayPal adapts Express Checkout parallel payments to the Gateway port. Each
// obligation becomes one PAYMENTREQUEST block addressed by its correlation id.
type PayPal struct {
	client expressCheckoutClient
}

// NewPayPal wraps an NVP client.
func NewPayPal(client expressCheckoutClient) (*PayPal, error) {
	if client == nil {
		return nil, errors.New("paypal client required")
	}
	return &PayPal{client: client}, nil
}

func (p *PayPal) Initiate(ctx context.Context, checkout Checkout) (*InitiateResult, error) {
	token, err := p.client.SetExpressCheckout(ctx, paypal.SetExpressCheckoutRequest{
		ReturnURL: checkout.ReturnURL,
		CancelURL: checkout.CancelURL,
		Payments:  paymentRequests(checkout),
	})
	if err != nil {
		return nil, translate(err)
	}
	return &InitiateResult{Token: token, RedirectURL: p.client.CheckoutURL(token)}, nil
}

func (p *PayPal) FetchStatus(ctx context.Context, token string) (*StatusResult, error) {
	details, err := p.client.GetExpressCheckoutDetails(ctx, token)
	if err != nil {
		return nil, translate(err)
	}
	result := &StatusResult{
		Status:  statusFromCheckout(details.CheckoutStatus),
		PayerID: details.PayerID,
	}
	for _, payment := range details.Payments {
		result.Obligations = append(result.Obligations, ObligationResult{
			CorrelationID:        payment.RequestID,
			GatewayTransactionID: payment.TransactionID,
			Outcome:              outcomeFromPayment(payment),
			ErrorCode:            blockErrorCode(payment),
		})
	}
	return result, nil
}

func (p *PayPal) Capture(ctx context.Context, token, payerID string, checkout Checkout) error {
	if _, err := p.client.DoExpressCheckoutPayment(ctx, token, payerID, paymentRequests(checkout)); err != nil {
		return translate(err)
	}
	return nil
}

func (p *PayPal) CheckoutURL(token string) string {
	return p.client.CheckoutURL(token)
}

func paymentRequests(checkout Checkout) []paypal.PaymentRequest {
	custom := ""
	if checkout.Reference.Transaction != uuid.Nil {
		custom = checkout.Reference.Encode()
	}
	out := make([]paypal.PaymentRequest, 0, len(checkout.Obligations))
	for _, obligation := range checkout.Obligations {
		req := paypal.PaymentRequest{
			RequestID:     obligation.CorrelationID,
			SellerAccount: obligation.Payee,
			Description:   obligation.Description,
			Custom:        custom,
			NotifyURL:     checkout.NotifyURL,
		}
		for _, line := range obligation.Lines {
			req.Items = append(req.Items, paypal.LineItem{
				Name:     line.Name,
				Number:   line.Number,
				Quantity: 1,
				Amount:   line.Amount,
			})
		}
		out = append(out, req)
	}
	return out
}

// statusFromCheckout treats anything unrecognized as still in progress so
// the root is polled again rather than failed.
func statusFromCheckout(raw string) Status {
	switch raw {
	case paypal.CheckoutStatusNotInitiated:
		return StatusNotInitiated
	case paypal.CheckoutStatusFailed:
		return StatusFailed
	case paypal.CheckoutStatusCompleted:
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// outcomeFromPayment reads PAYMENTINFO_n_PAYMENTSTATUS. GetExpressCheckoutDetails
// leaves it blank for blocks that went through, so a blank status with a
// transaction id counts as settled.
func outcomeFromPayment(payment paypal.PaymentInfo) Outcome {
	if blockErrorCode(payment) != "" {
		return OutcomeFailed
	}
	switch strings.ToLower(strings.TrimSpace(payment.PaymentStatus)) {
	case "failed", "denied", "expired", "voided", "reversed", "refunded", "canceled-reversal":
		return OutcomeFailed
	case "pending", "in-progress":
		return OutcomePending
	case "", "none":
		if payment.TransactionID == "" {
			return OutcomePending
		}
		return OutcomeSettled
	default:
		return OutcomeSettled
	}
}

// blockErrorCode drops the "0" PayPal reports for blocks without an error.
func blockErrorCode(payment paypal.PaymentInfo) string {
	if code := strings.TrimSpace(payment.ErrorCode); code != "0" {
		return code
	}
	return ""
}

func translate(err error) error {
	var apiErr *paypal.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.LongMessage
		if msg == "" {
			msg = apiErr.ShortMessage
		}
		return &GatewayError{Code: apiErr.Code, Message: msg, cause: err}
	}
	return &GatewayError{Code: CodeUnavailable, Message: err.Error(), cause: err}
}
