package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	PayPal       PayPalConfig
	Checkout     CheckoutConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.useSQLite()
	}
	// report every invalid section at once rather than one per deploy
	if err := errors.Join(
		cfg.DB.ensureDSN(),
		cfg.Checkout.validate(),
		cfg.Outbox.validate(),
		cfg.RateLimit.validate(),
	); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BEATSTORE_APP_ENV" required:"true"`
	Port         string `envconfig:"BEATSTORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BEATSTORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BEATSTORE_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"BEATSTORE_PUBLIC_URL" default:"http://localhost:3000"`
	// APIURL is where the gateway posts notifications back to.
	APIURL      string   `envconfig:"BEATSTORE_API_URL" default:"http://localhost:8080"`
	CORSOrigins []string `envconfig:"BEATSTORE_CORS_ORIGINS" default:"http://localhost:3000"`
	// MetricsAddr enables a /metrics listener on the background workers.
	MetricsAddr string `envconfig:"BEATSTORE_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BEATSTORE_DB_DSN"`
	Driver string `envconfig:"BEATSTORE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BEATSTORE_DB_HOST"`
	Port     int    `envconfig:"BEATSTORE_DB_PORT" default:"5432"`
	User     string `envconfig:"BEATSTORE_DB_USER"`
	Password string `envconfig:"BEATSTORE_DB_PASSWORD"`
	Name     string `envconfig:"BEATSTORE_DB_NAME"`
	SSLMode  string `envconfig:"BEATSTORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BEATSTORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BEATSTORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BEATSTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BEATSTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery logs statements slower than this at warn; zero disables it.
	SlowQuery time.Duration `envconfig:"BEATSTORE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BEATSTORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BEATSTORE_REDIS_ADDR"`
	Password     string        `envconfig:"BEATSTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"BEATSTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BEATSTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BEATSTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BEATSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BEATSTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BEATSTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BEATSTORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BEATSTORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BEATSTORE_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BEATSTORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BEATSTORE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"BEATSTORE_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// PayPalConfig holds the Express Checkout (NVP) credentials.
type PayPalConfig struct {
	Env       string `envconfig:"BEATSTORE_PAYPAL_ENV" default:"sandbox"`
	User      string `envconfig:"BEATSTORE_PAYPAL_USER" required:"true"`
	Password  string `envconfig:"BEATSTORE_PAYPAL_PASSWORD" required:"true"`
	Signature string `envconfig:"BEATSTORE_PAYPAL_SIGNATURE" required:"true"`
	// Receiver is the platform account collecting the tax obligation.
	Receiver string        `envconfig:"BEATSTORE_PAYPAL_RECEIVER" required:"true"`
	Currency string        `envconfig:"BEATSTORE_PAYPAL_CURRENCY" default:"USD"`
	Timeout  time.Duration `envconfig:"BEATSTORE_PAYPAL_TIMEOUT" default:"15s"`

	// Circuit breaker settings for outbound NVP calls.
	BreakerMaxFailures uint32        `envconfig:"BEATSTORE_PAYPAL_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"BEATSTORE_PAYPAL_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

// Environment returns the normalized PayPal environment (sandbox/live).
func (p PayPalConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(p.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// CheckoutConfig carries the pricing and redirect settings for the checkout flow.
type CheckoutConfig struct {
	TaxRate     string        `envconfig:"BEATSTORE_CHECKOUT_TAX_RATE" default:"0.10"`
	ReturnPath  string        `envconfig:"BEATSTORE_CHECKOUT_RETURN_PATH" default:"/checkout/complete"`
	CancelPath  string        `envconfig:"BEATSTORE_CHECKOUT_CANCEL_PATH" default:"/cart"`
	NotifyPath  string        `envconfig:"BEATSTORE_CHECKOUT_NOTIFY_PATH" default:"/api/v1/webhooks/paypal"`
	Description string        `envconfig:"BEATSTORE_CHECKOUT_DESCRIPTION" default:"Beatstore purchase"`
	AbandonTTL  time.Duration `envconfig:"BEATSTORE_CHECKOUT_ABANDON_TTL" default:"0s"`
}

// TaxRateDecimal parses the configured platform tax rate.
func (c CheckoutConfig) TaxRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", EnvCheckoutTaxRate, c.TaxRate, err)
	}
	return rate, nil
}

func (c CheckoutConfig) validate() error {
	rate, err := c.TaxRateDecimal()
	if err != nil {
		return err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in [0, 1), got %s", EnvCheckoutTaxRate, rate)
	}
	if c.AbandonTTL < 0 {
		return fmt.Errorf("%s must not be negative", EnvCheckoutAbandonTTL)
	}
	return nil
}

type GCPConfig struct {
	ProjectID string `envconfig:"BEATSTORE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	TransactionsTopic string `envconfig:"BEATSTORE_PUBSUB_TRANSACTIONS_TOPIC" default:"bs-transaction-events"`
	CheckoutTopic     string `envconfig:"BEATSTORE_PUBSUB_CHECKOUT_TOPIC" default:"bs-checkout-events"`
	// CreateTopics creates missing topics at startup instead of failing.
	// Meant for the emulator and dev projects.
	CreateTopics bool `envconfig:"BEATSTORE_PUBSUB_CREATE_TOPICS" default:"false"`
}

type OutboxConfig struct {
	BatchSize        int           `envconfig:"BEATSTORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollInterval     time.Duration `envconfig:"BEATSTORE_OUTBOX_PUBLISH_POLL_INTERVAL" default:"500ms"`
	MaxAttempts      int           `envconfig:"BEATSTORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays    int           `envconfig:"BEATSTORE_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays int           `envconfig:"BEATSTORE_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

func (o OutboxConfig) validate() error {
	switch {
	case o.BatchSize <= 0:
		return errors.New("outbox batch size must be positive")
	case o.MaxAttempts <= 0:
		return errors.New("outbox max attempts must be positive")
	case o.PollInterval <= 0:
		return errors.New("outbox poll interval must be positive")
	}
	return nil
}

// Days converts a day count into a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// CronConfig drives the cron worker. Interval is the abandoned checkout sweep
// cadence; outbox retention runs every RetentionInterval.
type CronConfig struct {
	Tick              time.Duration `envconfig:"BEATSTORE_CRON_TICK" default:"1m"`
	Interval          time.Duration `envconfig:"BEATSTORE_CRON_INTERVAL" default:"15m"`
	RetentionInterval time.Duration `envconfig:"BEATSTORE_CRON_RETENTION_INTERVAL" default:"24h"`
	LockTTL           time.Duration `envconfig:"BEATSTORE_CRON_LOCK_TTL" default:"10m"`
}

// RateLimitConfig bounds anonymous guest cart creation per client IP.
// A zero limit disables the check.
type RateLimitConfig struct {
	GuestCartLimit  int64         `envconfig:"BEATSTORE_RATE_LIMIT_GUEST_CARTS" default:"20"`
	GuestCartWindow time.Duration `envconfig:"BEATSTORE_RATE_LIMIT_GUEST_CART_WINDOW" default:"1m"`
}

func (r RateLimitConfig) validate() error {
	if r.GuestCartLimit > 0 && r.GuestCartWindow <= 0 {
		return errors.New("guest cart rate limit needs a positive window")
	}
	return nil
}

const defaultSQLiteDSN = "file:beatstore.db?cache=shared"

func (db *DBConfig) useSQLite() {
	db.Driver = "sqlite"
	if db.DSN == "" {
		db.DSN = defaultSQLiteDSN
	}
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
