package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	aws_pkg "github.com/yashrajoria/seatserve/backend/pkg/aws"
	"github.com/yashrajoria/seatserve/backend/pkg/gateway"
	"github.com/yashrajoria/seatserve/backend/pkg/pricing"
	"github.com/yashrajoria/seatserve/backend/pkg/store"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Port  string
	Env   string
	Store store.Config

	RedisURL string

	GatewayProvider     string
	GatewayKeyID        string
	GatewayKeySecret    string
	GatewaySecretName   string
	GatewayBaseURL      string
	GatewayTimeout      time.Duration
	GatewayMaxRetries   uint64
	StripeAPIKey        string
	StripeWebhookSecret string

	Currency      string
	MerchantName  string
	PricingPolicy string

	PendingTimeout time.Duration
	SweepInterval  time.Duration

	EventBus          string
	EventsSNSTopicARN string
	KafkaBrokers      []string
	KafkaTopic        string

	GatewayEventsQueueURL  string
	ReconciliationQueueURL string

	AllowedOrigins     []string
	CloudWatchEnabled  bool
	RateLimitPerMinute int
	RateLimitBurst     int
}

// secretMapGetter is satisfied by aws_pkg.SecretsClient.
type secretMapGetter interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads configuration from the environment (and .env when
// present) with an optional Secrets Manager override.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8087"),
		Env:  getEnv("ENV", "development"),
		Store: store.Config{
			Driver:           getEnv("STORE_DRIVER", store.DriverPostgres),
			PostgresUser:     os.Getenv("POSTGRES_USER"),
			PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
			PostgresDB:       os.Getenv("POSTGRES_DB"),
			PostgresHost:     os.Getenv("POSTGRES_HOST"),
			PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
			PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),
			MongoURI:         os.Getenv("MONGO_URI"),
			MongoDB:          getEnv("MONGO_DB", "seatserve"),
		},
		RedisURL:               os.Getenv("REDIS_URL"),
		GatewayProvider:        getEnv("GATEWAY_PROVIDER", gateway.ProviderRazorpay),
		GatewayKeyID:           os.Getenv("GATEWAY_KEY_ID"),
		GatewayKeySecret:       os.Getenv("GATEWAY_KEY_SECRET"),
		GatewaySecretName:      os.Getenv("GATEWAY_SECRET_NAME"),
		GatewayBaseURL:         os.Getenv("GATEWAY_BASE_URL"),
		StripeAPIKey:           os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret:    os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:               getEnv("CURRENCY", "INR"),
		MerchantName:           getEnv("MERCHANT_NAME", "Movie Food"),
		PricingPolicy:          getEnv("PRICING_POLICY", pricing.PolicyGST),
		EventBus:               getEnv("EVENT_BUS", "none"),
		EventsSNSTopicARN:      os.Getenv("EVENTS_SNS_TOPIC_ARN"),
		KafkaBrokers:           splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:             getEnv("KAFKA_TOPIC", "checkout-events"),
		GatewayEventsQueueURL:  os.Getenv("GATEWAY_EVENTS_QUEUE_URL"),
		ReconciliationQueueURL: os.Getenv("RECONCILIATION_QUEUE_URL"),
		AllowedOrigins:         splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		CloudWatchEnabled:      os.Getenv("CLOUDWATCH_ENABLED") == "true",
	}

	var err error
	if cfg.GatewayTimeout, err = getDuration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PendingTimeout, err = getDuration("PENDING_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.GatewayMaxRetries, err = strconv.ParseUint(getEnv("GATEWAY_MAX_RETRIES", "3"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_MAX_RETRIES: %w", err)
	}
	if cfg.RateLimitPerMinute, err = strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "60")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(getEnv("RATE_LIMIT_BURST", "20")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	// Override credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		awsCfg, err := aws_pkg.LoadAWSConfig(context.Background())
		if err != nil {
			return nil, err
		}
		applySecrets(context.Background(), cfg, aws_pkg.NewSecretsClient(awsCfg))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySecrets overlays values stored under checkout/DB_CREDENTIALS and
// checkout/GATEWAY. Missing secrets leave the environment values alone.
func applySecrets(ctx context.Context, cfg *Config, sm secretMapGetter) {
	if m, err := sm.GetSecretMap(ctx, "checkout/DB_CREDENTIALS"); err == nil {
		override(&cfg.Store.PostgresUser, m["POSTGRES_USER"])
		override(&cfg.Store.PostgresPassword, m["POSTGRES_PASSWORD"])
		override(&cfg.Store.PostgresDB, m["POSTGRES_DB"])
		override(&cfg.Store.PostgresHost, m["POSTGRES_HOST"])
		override(&cfg.Store.PostgresPort, m["POSTGRES_PORT"])
		override(&cfg.Store.MongoURI, m["MONGO_URI"])
	}
	if m, err := sm.GetSecretMap(ctx, "checkout/GATEWAY"); err == nil {
		override(&cfg.GatewayKeyID, m["GATEWAY_KEY_ID"])
		override(&cfg.GatewayKeySecret, m["GATEWAY_KEY_SECRET"])
		override(&cfg.StripeAPIKey, m["STRIPE_API_KEY"])
		override(&cfg.StripeWebhookSecret, m["STRIPE_WEBHOOK_SECRET"])
	}
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case store.DriverPostgres:
		if c.Store.PostgresUser == "" || c.Store.PostgresPassword == "" || c.Store.PostgresDB == "" || c.Store.PostgresHost == "" {
			return fmt.Errorf("database config incomplete")
		}
	case store.DriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	case store.DriverMemory:
		if c.Env == "production" {
			return fmt.Errorf("in-memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	hasSecret := c.GatewayKeySecret != "" || c.GatewaySecretName != ""
	switch c.GatewayProvider {
	case gateway.ProviderRazorpay:
		if c.GatewayKeyID == "" || !hasSecret {
			return fmt.Errorf("razorpay requires GATEWAY_KEY_ID and GATEWAY_KEY_SECRET or GATEWAY_SECRET_NAME")
		}
	case gateway.ProviderStripe:
		if c.StripeAPIKey == "" || c.StripeWebhookSecret == "" || !hasSecret {
			return fmt.Errorf("stripe requires STRIPE_API_KEY, STRIPE_WEBHOOK_SECRET and a signing secret")
		}
	case gateway.ProviderSandbox:
		if c.Env == "production" {
			return fmt.Errorf("sandbox gateway is not allowed in production")
		}
		if !hasSecret {
			c.GatewayKeySecret = "sandbox_secret"
		}
	default:
		return fmt.Errorf("unknown GATEWAY_PROVIDER %q", c.GatewayProvider)
	}

	if _, err := pricing.PolicyByName(c.PricingPolicy); err != nil {
		return err
	}

	switch c.EventBus {
	case "", "none":
	case "sns":
		if c.EventsSNSTopicARN == "" {
			return fmt.Errorf("EVENTS_SNS_TOPIC_ARN is required when EVENT_BUS=sns")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENT_BUS=kafka")
		}
	default:
		return fmt.Errorf("unknown EVENT_BUS %q", c.EventBus)
	}

	if c.PendingTimeout <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("PENDING_TIMEOUT and SWEEP_INTERVAL must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// UsesAWS reports whether any AWS client is needed.
func (c *Config) UsesAWS() bool {
	return c.CloudWatchEnabled || c.EventBus == "sns" || c.GatewaySecretName != "" ||
		c.GatewayEventsQueueURL != "" || c.ReconciliationQueueURL != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
