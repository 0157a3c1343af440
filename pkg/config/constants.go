package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "BEATSTORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "BEATSTORE_APP_ENV"
	EnvPort     = "BEATSTORE_APP_PORT"
	EnvLogLvl   = "BEATSTORE_LOG_LEVEL"
	EnvDBDSN    = "BEATSTORE_DB_DSN"
	EnvDBHost   = "BEATSTORE_DB_HOST"
	EnvDBUser   = "BEATSTORE_DB_USER"
	EnvDBName   = "BEATSTORE_DB_NAME"
	EnvDBPass   = "BEATSTORE_DB_PASSWORD"
	EnvDBPort   = "BEATSTORE_DB_PORT"
	EnvRedisURL = "BEATSTORE_REDIS_URL"

	EnvJWTSecret  = "BEATSTORE_JWT_SECRET"
	EnvJWTIssuer  = "BEATSTORE_JWT_ISSUER"
	EnvJWTExpMins = "BEATSTORE_JWT_EXPIRATION_MINUTES"

	EnvPayPalEnv       = "BEATSTORE_PAYPAL_ENV"
	EnvPayPalUser      = "BEATSTORE_PAYPAL_USER"
	EnvPayPalPassword  = "BEATSTORE_PAYPAL_PASSWORD"
	EnvPayPalSignature = "BEATSTORE_PAYPAL_SIGNATURE"
	EnvPayPalReceiver  = "BEATSTORE_PAYPAL_RECEIVER"

	EnvCheckoutTaxRate    = "BEATSTORE_CHECKOUT_TAX_RATE"
	EnvCheckoutAbandonTTL = "BEATSTORE_CHECKOUT_ABANDON_TTL"

	EnvGCPProjectID = "BEATSTORE_GCP_PROJECT_ID"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
