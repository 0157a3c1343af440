package paypal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CheckoutStatus values reported by GetExpressCheckoutDetails.
const (
	CheckoutStatusNotInitiated = "PaymentActionNotInitiated"
	CheckoutStatusFailed       = "PaymentActionFailed"
	CheckoutStatusInProgress   = "PaymentActionInProgress"
	CheckoutStatusCompleted    = "PaymentActionCompleted"
)

const paymentActionSale = "Sale"

// LineItem is one L_PAYMENTREQUEST_n_*m entry.
type LineItem struct {
	Name      string
	Number    string
	Quantity  int
	Amount    decimal.Decimal
	TaxAmount decimal.Decimal
}

// PaymentRequest is one PAYMENTREQUEST_n block: a single payee.
type PaymentRequest struct {
	RequestID     string
	SellerAccount string
	Description   string
	// Custom and NotifyURL are echoed back on instant payment notifications.
	Custom    string
	NotifyURL string
	Items     []LineItem
}

// ItemAmount sums the line amounts.
func (p PaymentRequest) ItemAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range p.Items {
		total = total.Add(item.Amount.Mul(decimal.NewFromInt(int64(quantity(item)))))
	}
	return total
}

// TaxAmount sums the line taxes.
func (p PaymentRequest) TaxAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range p.Items {
		total = total.Add(item.TaxAmount.Mul(decimal.NewFromInt(int64(quantity(item)))))
	}
	return total
}

// SetExpressCheckoutRequest opens a parallel-payment checkout.
type SetExpressCheckoutRequest struct {
	ReturnURL string
	CancelURL string
	Payments  []PaymentRequest
}

// PaymentInfo is the per-block outcome reported by the gateway.
type PaymentInfo struct {
	RequestID     string
	TransactionID string
	PaymentStatus string
	ErrorCode     string
	Amount        decimal.Decimal
}

// CheckoutDetails is the decoded GetExpressCheckoutDetails response.
type CheckoutDetails struct {
	Token          string
	CheckoutStatus string
	PayerID        string
	Custom         string
	Payments       []PaymentInfo
}

// PaymentResult is the decoded DoExpressCheckoutPayment response.
type PaymentResult struct {
	Token    string
	Payments []PaymentInfo
}

// SetExpressCheckout registers the payment blocks and returns the EC token.
func (c *Client) SetExpressCheckout(ctx context.Context, req SetExpressCheckoutRequest) (string, error) {
	if len(req.Payments) == 0 {
		return "", errors.New("at least one payment request is required")
	}
	params := url.Values{}
	params.Set("RETURNURL", req.ReturnURL)
	params.Set("CANCELURL", req.CancelURL)
	params.Set("NOSHIPPING", "1")
	c.encodePayments(params, req.Payments)

	values, err := c.call(ctx, "SetExpressCheckout", params)
	if err != nil {
		return "", err
	}
	token := values.Get("TOKEN")
	if token == "" {
		return "", errors.New("paypal SetExpressCheckout returned no token")
	}
	return token, nil
}

// GetExpressCheckoutDetails reads the checkout status and per-block outcomes.
func (c *Client) GetExpressCheckoutDetails(ctx context.Context, token string) (*CheckoutDetails, error) {
	params := url.Values{}
	params.Set("TOKEN", token)

	values, err := c.call(ctx, "GetExpressCheckoutDetails", params)
	if err != nil {
		return nil, err
	}
	return &CheckoutDetails{
		Token:          values.Get("TOKEN"),
		CheckoutStatus: values.Get("CHECKOUTSTATUS"),
		PayerID:        values.Get("PAYERID"),
		Custom:         values.Get("CUSTOM"),
		Payments:       decodePayments(values, "PAYMENTREQUEST", "PAYMENTREQUESTINFO"),
	}, nil
}

// DoExpressCheckoutPayment captures the approved checkout. The blocks must
// match the ones sent to SetExpressCheckout.
func (c *Client) DoExpressCheckoutPayment(ctx context.Context, token, payerID string, payments []PaymentRequest) (*PaymentResult, error) {
	params := url.Values{}
	params.Set("TOKEN", token)
	params.Set("PAYERID", payerID)
	c.encodePayments(params, payments)

	values, err := c.call(ctx, "DoExpressCheckoutPayment", params)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{
		Token:    values.Get("TOKEN"),
		Payments: decodePayments(values, "PAYMENTINFO", "PAYMENTINFO"),
	}, nil
}

func (c *Client) encodePayments(params url.Values, payments []PaymentRequest) {
	for i, payment := range payments {
		prefix := fmt.Sprintf("PAYMENTREQUEST_%d_", i)
		itemAmount := payment.ItemAmount()
		taxAmount := payment.TaxAmount()
		params.Set(prefix+"CURRENCYCODE", c.currency)
		params.Set(prefix+"AMT", formatAmount(itemAmount.Add(taxAmount)))
		params.Set(prefix+"TAXAMT", formatAmount(taxAmount))
		params.Set(prefix+"ITEMAMT", formatAmount(itemAmount))
		params.Set(prefix+"PAYMENTACTION", paymentActionSale)
		params.Set(prefix+"DESC", payment.Description)
		params.Set(prefix+"SELLERPAYPALACCOUNTID", payment.SellerAccount)
		params.Set(prefix+"PAYMENTREQUESTID", payment.RequestID)
		if payment.Custom != "" {
			params.Set(prefix+"CUSTOM", payment.Custom)
		}
		if payment.NotifyURL != "" {
			params.Set(prefix+"NOTIFYURL", payment.NotifyURL)
		}

		for j, item := range payment.Items {
			linePrefix := fmt.Sprintf("L_PAYMENTREQUEST_%d_", i)
			suffix := strconv.Itoa(j)
			name := item.Name
			if name == "" {
				name = item.Number
			}
			number := item.Number
			if number == "" {
				number = item.Name
			}
			params.Set(linePrefix+"NAME"+suffix, name)
			params.Set(linePrefix+"NUMBER"+suffix, number)
			params.Set(linePrefix+"QTY"+suffix, strconv.Itoa(quantity(item)))
			params.Set(linePrefix+"AMT"+suffix, formatAmount(item.Amount))
			params.Set(linePrefix+"TAXAMT"+suffix, formatAmount(item.TaxAmount))
		}
	}
}

// decodePayments walks indexed blocks until the request id runs out. The
// request id lives under requestPrefix; the rest under infoPrefix.
func decodePayments(values url.Values, requestPrefix, infoPrefix string) []PaymentInfo {
	var out []PaymentInfo
	for i := 0; ; i++ {
		requestID := values.Get(fmt.Sprintf("%s_%d_PAYMENTREQUESTID", requestPrefix, i))
		txnID := values.Get(fmt.Sprintf("%s_%d_TRANSACTIONID", infoPrefix, i))
		if txnID == "" {
			txnID = values.Get(fmt.Sprintf("%s_%d_TRANSACTIONID", requestPrefix, i))
		}
		if requestID == "" && txnID == "" {
			break
		}
		amount, _ := decimal.NewFromString(strings.TrimSpace(values.Get(fmt.Sprintf("%s_%d_AMT", requestPrefix, i))))
		out = append(out, PaymentInfo{
			RequestID:     requestID,
			TransactionID: txnID,
			PaymentStatus: values.Get(fmt.Sprintf("%s_%d_PAYMENTSTATUS", infoPrefix, i)),
			ErrorCode:     values.Get(fmt.Sprintf("%s_%d_ERRORCODE", infoPrefix, i)),
			Amount:        amount,
		})
	}
	return out
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func quantity(item LineItem) int {
	if item.Quantity <= 0 {
		return 1
	}
	return item.Quantity
}
