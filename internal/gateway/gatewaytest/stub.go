// Package gatewaytest provides an in-memory Gateway for tests.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/angelmondragon/beatstore-backend/internal/gateway"
)

// Stub records calls and answers from its fields. Status is returned for every
// FetchStatus; obligation results are synthesized from the last checkout seen
// when Obligations is empty.
type Stub struct {
	mu sync.Mutex

	Token      string
	InitErr    error
	Status     gateway.Status
	PayerID    string
	StatusErr  error
	CaptureErr error

	Obligations []gateway.ObligationResult

	Initiated   []gateway.Checkout
	Captured    []gateway.Checkout
	StatusCalls int
}

func (s *Stub) Initiate(ctx context.Context, checkout gateway.Checkout) (*gateway.InitiateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InitErr != nil {
		return nil, s.InitErr
	}
	s.Initiated = append(s.Initiated, checkout)
	token := s.Token
	if token == "" {
		token = "EC-" + checkout.Code
	}
	return &gateway.InitiateResult{Token: token, RedirectURL: s.CheckoutURL(token)}, nil
}

func (s *Stub) FetchStatus(ctx context.Context, token string) (*gateway.StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusCalls++
	if s.StatusErr != nil {
		return nil, s.StatusErr
	}
	result := &gateway.StatusResult{Status: s.Status, PayerID: s.PayerID}
	result.Obligations = append(result.Obligations, s.Obligations...)
	if len(result.Obligations) == 0 && len(s.Initiated) > 0 {
		last := s.Initiated[len(s.Initiated)-1]
		for _, o := range last.Obligations {
			result.Obligations = append(result.Obligations, gateway.ObligationResult{
				CorrelationID:        o.CorrelationID,
				GatewayTransactionID: "GW-" + o.CorrelationID,
			})
		}
	}
	return result, nil
}

func (s *Stub) Capture(ctx context.Context, token, payerID string, checkout gateway.Checkout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Captured = append(s.Captured, checkout)
	return s.CaptureErr
}

func (s *Stub) CheckoutURL(token string) string {
	return "https://gateway.test/checkoutnow?token=" + token
}

// SetStatus changes the status reported by later FetchStatus calls.
func (s *Stub) SetStatus(status gateway.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}
