package paypal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

const (
	sandboxEnv = "sandbox"
	liveEnv    = "live"

	apiVersion      = "204"
	maxResponseSize = 1 << 20
)

var (
	errCredentialsRequired = errors.New("paypal api credentials are required")
	errInvalidPayPalEnv    = fmt.Errorf("paypal environment must be %q or %q", sandboxEnv, liveEnv)
	errLoggerRequired      = errors.New("paypal logger is required")
)

type endpoints struct {
	nvp      string
	ipn      string
	checkout string
}

var endpointsByEnv = map[string]endpoints{
	sandboxEnv: {
		nvp:      "https://api-3t.sandbox.paypal.com/nvp",
		ipn:      "https://ipnpb.sandbox.paypal.com/cgi-bin/webscr",
		checkout: "https://www.sandbox.paypal.com/checkoutnow",
	},
	liveEnv: {
		nvp:      "https://api-3t.paypal.com/nvp",
		ipn:      "https://ipnpb.paypal.com/cgi-bin/webscr",
		checkout: "https://www.paypal.com/checkoutnow",
	},
}

// Client speaks the Express Checkout NVP API. Every outbound call goes through
// a bounded http.Client and a circuit breaker.
type Client struct {
	http        *http.Client
	endpoints   endpoints
	environment string
	user        string
	password    string
	signature   string
	currency    string
	breaker     *gobreaker.CircuitBreaker[url.Values]
	logger      *logger.Logger
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithHTTPClient swaps the transport used for NVP and IPN calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithEndpoints overrides the NVP, IPN and checkout base URLs.
func WithEndpoints(nvp, ipn, checkout string) Option {
	return func(c *Client) {
		if nvp != "" {
			c.endpoints.nvp = nvp
		}
		if ipn != "" {
			c.endpoints.ipn = ipn
		}
		if checkout != "" {
			c.endpoints.checkout = checkout
		}
	}
}

// NewClient validates the credentials and wires the breaker.
func NewClient(ctx context.Context, cfg config.PayPalConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	user := strings.TrimSpace(cfg.User)
	password := strings.TrimSpace(cfg.Password)
	signature := strings.TrimSpace(cfg.Signature)
	if user == "" || password == "" || signature == "" {
		return nil, errCredentialsRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "USD"
	}

	c := &Client{
		http:        &http.Client{Timeout: timeout},
		endpoints:   endpointsByEnv[env],
		environment: env,
		user:        user,
		password:    password,
		signature:   signature,
		currency:    currency,
		logger:      logg,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(cfg)

	logg.Info(ctx, fmt.Sprintf("paypal client initialized (%s)", env))
	return c, nil
}

func newBreaker(cfg config.PayPalConfig) *gobreaker.CircuitBreaker[url.Values] {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[url.Values](gobreaker.Settings{
		Name:        "paypal-nvp",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// API-level failures (declines, bad tokens) are answers, not outages.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || errors.As(err, &apiErr)
		},
	})
}

// Environment reports the normalized PayPal environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Currency returns the ISO currency used for every payment block.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// CheckoutURL builds the buyer approval URL for an Express Checkout token.
func (c *Client) CheckoutURL(token string) string {
	return c.endpoints.checkout + "?token=" + url.QueryEscape(token)
}

// call executes one NVP method and returns the decoded response.
func (c *Client) call(ctx context.Context, method string, params url.Values) (url.Values, error) {
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("METHOD", method)
	form.Set("VERSION", apiVersion)
	form.Set("USER", c.user)
	form.Set("PWD", c.password)
	form.Set("SIGNATURE", c.signature)

	c.log(ctx, "request", method, params, nil)

	values, err := c.breaker.Execute(func() (url.Values, error) {
		return c.post(ctx, c.endpoints.nvp, form.Encode())
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("paypal %s: circuit open: %w", method, err)
		}
		c.log(ctx, "error", method, nil, err)
		return nil, err
	}

	if apiErr := apiErrorFrom(values); apiErr != nil {
		c.log(ctx, "error", method, values, apiErr)
		return nil, apiErr
	}

	c.log(ctx, "response", method, values, nil)
	return values, nil
}

func (c *Client) post(ctx context.Context, endpoint, body string) (url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build paypal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read paypal response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("paypal responded %d", resp.StatusCode)
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("decode paypal response: %w", err)
	}
	return values, nil
}

func (c *Client) log(ctx context.Context, phase, method string, values url.Values, err error) {
	if c == nil || c.logger == nil {
		return
	}
	fields := map[string]any{
		"operation": method,
		"phase":     phase,
	}
	for k, v := range values {
		if len(v) == 0 {
			continue
		}
		fields[strings.ToLower(k)] = redact(k, v[0])
	}
	ctx = c.logger.WithFields(ctx, fields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paypal %s", method), err)
	default:
		c.logger.Debug(ctx, fmt.Sprintf("paypal %s", phase))
	}
}

func redact(key string, value string) string {
	upper := strings.ToUpper(key)
	for _, sensitive := range []string{"USER", "PWD", "SIGNATURE", "EMAIL", "PAYERID", "SHIPTO", "FIRSTNAME", "LASTNAME"} {
		if strings.Contains(upper, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidPayPalEnv
	}
}
