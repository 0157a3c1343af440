package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "idempotency key reused", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeRefused, status: http.StatusUnprocessableEntity, publicMsg: "payment refused", retryable: true, detailsOK: true},
		{code: CodeGateway, status: http.StatusBadGateway, publicMsg: "payment gateway error", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeWalksWrappedChain(t *testing.T) {
	base := New(CodeRefused, "declined").WithDetails(map[string]any{"redirect_url": "https://example.com"})
	wrapped := fmt.Errorf("finalize: %w", base)
	if !IsCode(wrapped, CodeRefused) {
		t.Fatalf("expected wrapped error to carry %s", CodeRefused)
	}
	if IsCode(wrapped, CodeGateway) {
		t.Fatalf("did not expect %s", CodeGateway)
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestChainWalksWrappedAndJoinedErrors(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeGateway, cause, "capture checkout")
	if got := Chain(err); len(got) != 2 {
		t.Fatalf("expected two chain entries, got %v", got)
	}

	joined := fmt.Errorf("settle: %w", stdErrors.Join(cause, stdErrors.New("ledger down")))
	if got := Chain(joined); len(got) != 4 {
		t.Fatalf("expected wrapper, join and both branches, got %v", got)
	}
	if Chain(nil) != nil {
		t.Fatal("nil error has no chain")
	}
}

func TestReasonOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(CodeValidation, "empty").WithReason("empty_cart"))
	if got := ReasonOf(err); got != "empty_cart" {
		t.Fatalf("expected empty_cart, got %q", got)
	}
	if got := ReasonOf(New(CodeValidation, "no details")); got != "" {
		t.Fatalf("expected empty reason, got %q", got)
	}
	if got := ReasonOf(stdErrors.New("plain")); got != "" {
		t.Fatalf("expected empty reason for untyped error, got %q", got)
	}
}

func TestWithReasonMergesMapDetails(t *testing.T) {
	err := New(CodeNotFound, "missing").
		WithDetails(map[string]any{"token": "EC-1"}).
		WithReason("unknown_transaction")

	details, ok := err.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected map details, got %T", err.Details())
	}
	if details["token"] != "EC-1" || details["reason"] != "unknown_transaction" {
		t.Fatalf("unexpected details %v", details)
	}

	replaced := New(CodeValidation, "bad").WithDetails("plain").WithReason("bad_input")
	if ReasonOf(replaced) != "bad_input" {
		t.Fatalf("expected reason to replace non-map details")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("dial tcp: refused"), "ping redis")
	if got := err.Error(); got != "DEPENDENCY_ERROR: ping redis: dial tcp: refused" {
		t.Fatalf("unexpected error string %q", got)
	}
	if got := New(CodeNotFound, "gone").Error(); got != "NOT_FOUND: gone" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestClientMessageHiddenForInternalCodes(t *testing.T) {
	for _, code := range []Code{CodeInternal, CodeDependency} {
		if MetadataFor(code).ClientMessage {
			t.Fatalf("code %s must not expose its own message", code)
		}
	}
	if !MetadataFor(CodeRefused).ClientMessage {
		t.Fatalf("refusals carry their message to the buyer")
	}
}
