package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// EnvPrefix namespaces every environment variable consumed by the platform.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Checkout     CheckoutConfig
	Paystack     PaystackConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Checkout.FeeRate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SOKOHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"SOKOHUB_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SOKOHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SOKOHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SOKOHUB_DB_DSN"`
	Driver string `envconfig:"SOKOHUB_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SOKOHUB_DB_HOST"`
	Port     int    `envconfig:"SOKOHUB_DB_PORT" default:"5432"`
	User     string `envconfig:"SOKOHUB_DB_USER"`
	Password string `envconfig:"SOKOHUB_DB_PASSWORD"`
	Name     string `envconfig:"SOKOHUB_DB_NAME"`
	SSLMode  string `envconfig:"SOKOHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SOKOHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SOKOHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SOKOHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SOKOHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SOKOHUB_REDIS_URL"`
	Address      string        `envconfig:"SOKOHUB_REDIS_ADDR"`
	Password     string        `envconfig:"SOKOHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"SOKOHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SOKOHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SOKOHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SOKOHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SOKOHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SOKOHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SOKOHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SOKOHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SOKOHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CheckoutConfig carries the platform economics applied at checkout and
// settlement time.
type CheckoutConfig struct {
	// PlatformFeeRate is a decimal fraction, e.g. "0.05" for 5%.
	PlatformFeeRate string `envconfig:"SOKOHUB_PLATFORM_FEE_RATE" default:"0.05"`
	// MinimumOrderKobo is the smallest per-shop order total accepted.
	MinimumOrderKobo int64 `envconfig:"SOKOHUB_MINIMUM_ORDER_KOBO" default:"400000"`
	// DeliveryLeadDays sets estimated_delivery_at = settled_at + lead.
	DeliveryLeadDays int `envconfig:"SOKOHUB_DELIVERY_LEAD_DAYS" default:"7"`
	// PayoutDelayDays schedules seller payout after delivery confirmation.
	PayoutDelayDays int `envconfig:"SOKOHUB_PAYOUT_DELAY_DAYS" default:"1"`
}

// FeeRate parses the configured platform fee rate.
func (c CheckoutConfig) FeeRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.PlatformFeeRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid platform fee rate %q: %w", c.PlatformFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("platform fee rate %q must be in [0,1)", c.PlatformFeeRate)
	}
	return rate, nil
}

type PaystackConfig struct {
	SecretKey   string        `envconfig:"SOKOHUB_PAYSTACK_SECRET_KEY"`
	BaseURL     string        `envconfig:"SOKOHUB_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string        `envconfig:"SOKOHUB_PAYSTACK_CALLBACK_URL"`
	Timeout     time.Duration `envconfig:"SOKOHUB_PAYSTACK_TIMEOUT" default:"15s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SOKOHUB_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SOKOHUB_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"SOKOHUB_PUBSUB_ORDERS_TOPIC" default:"sokohub-order-events"`
	OrdersSubscription string `envconfig:"SOKOHUB_PUBSUB_ORDERS_SUBSCRIPTION"`
}

// RateLimitConfig throttles the checkout surface. A zero window or
// limit disables the throttle.
type RateLimitConfig struct {
	CheckoutWindow time.Duration `envconfig:"SOKOHUB_CHECKOUT_RATE_WINDOW" default:"1m"`
	CheckoutLimit  int64         `envconfig:"SOKOHUB_CHECKOUT_RATE_LIMIT" default:"10"`
}

// CronConfig sets the cadence of the maintenance worker.
type CronConfig struct {
	Interval time.Duration `envconfig:"SOKOHUB_CRON_INTERVAL" default:"1h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SOKOHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SOKOHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SOKOHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for _, pair := range []struct{ name, value string }{
		{"SOKOHUB_DB_HOST", db.Host},
		{"SOKOHUB_DB_USER", db.User},
		{"SOKOHUB_DB_NAME", db.Name},
	} {
		if pair.value == "" {
			missing = append(missing, pair.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either SOKOHUB_DB_DSN or %s are required", strings.Join(missing, ", "))
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
