package paypal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	ipnVerified = "VERIFIED"
	ipnInvalid  = "INVALID"
)

// VerifyIPN posts the notification back with cmd=_notify-validate. The raw
// body must be forwarded untouched, in the order it was received.
func (c *Client) VerifyIPN(ctx context.Context, rawBody []byte) (bool, error) {
	body := "cmd=_notify-validate"
	if len(rawBody) > 0 {
		body += "&" + string(rawBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.ipn, strings.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build ipn verification: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("ipn verification: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false, fmt.Errorf("read ipn verification: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ipn verification responded %d", resp.StatusCode)
	}

	switch strings.TrimSpace(string(raw)) {
	case ipnVerified:
		return true, nil
	case ipnInvalid:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected ipn verification body %q", strings.TrimSpace(string(raw)))
	}
}
