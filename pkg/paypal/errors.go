package paypal

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	ackSuccess            = "Success"
	ackSuccessWithWarning = "SuccessWithWarning"
	ackFailure            = "Failure"
	ackFailureWithWarning = "FailureWithWarning"

	// CodeInstrumentDeclined asks the buyer to pick another funding source.
	CodeInstrumentDeclined = "10486"
)

// APIError is a Failure ACK returned by the NVP API.
type APIError struct {
	Ack           string
	Code          string
	ShortMessage  string
	LongMessage   string
	CorrelationID string
}

func (e *APIError) Error() string {
	msg := e.LongMessage
	if msg == "" {
		msg = e.ShortMessage
	}
	if msg == "" {
		msg = "paypal error"
	}
	if e.Code == "" {
		return msg
	}
	return fmt.Sprintf("%s (code %s)", msg, e.Code)
}

// IsDeclined reports whether the buyer's funding source was refused.
func (e *APIError) IsDeclined() bool {
	return e != nil && e.Code == CodeInstrumentDeclined
}

func apiErrorFrom(values url.Values) *APIError {
	ack := values.Get("ACK")
	switch ack {
	case ackSuccess, ackSuccessWithWarning:
		return nil
	}
	if ack == "" && values.Get("L_ERRORCODE0") == "" {
		return &APIError{ShortMessage: "paypal response missing ACK"}
	}
	return &APIError{
		Ack:           ack,
		Code:          strings.TrimSpace(values.Get("L_ERRORCODE0")),
		ShortMessage:  values.Get("L_SHORTMESSAGE0"),
		LongMessage:   values.Get("L_LONGMESSAGE0"),
		CorrelationID: values.Get("CORRELATIONID"),
	}
}
