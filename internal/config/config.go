package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	// Headless CMS (product and page content).
	CMSBaseURL     string
	CMSSpaceID     string
	CMSEnvironment string
	CMSAccessToken string
	CMSCacheTTL    time.Duration

	// Carrier pricing API.
	USPSBaseURL          string
	USPSClientID         string
	USPSClientSecret     string
	OriginZIP            string
	ShippingMaxAttempts  int
	ShippingRetryBackoff time.Duration
	ShippingStaggerStep  time.Duration
	ShippingCallTimeout  time.Duration

	// Payment gateways.
	PaymentProvider        string
	PaymentCallbackBaseURL string
	PayUAPIKey             string
	PayUMerchantID         string
	PayUAccountID          string
	PayUBaseURL            string
	PayUTestMode           bool
	StripeSecretKey        string
	StripeWebhookSecret    string
	StripeBaseURL          string

	// Pricing.
	TaxRateBps   int
	CurrencyCode string

	// In-memory store lifetimes.
	CartTTL  time.Duration
	OrderTTL time.Duration

	IdempotencyTTL   time.Duration
	WebhookReplayTTL time.Duration

	// Transactional email.
	EmailEnabled  bool
	EmailFrom     string
	MerchantEmail string
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string

	// Identity provider token validation.
	AuthIssuer   string
	AuthAudience string
	AuthJWKSURL  string

	// Rate limiting for carrier-backed endpoints.
	ShippingRateLimit string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CMSBaseURL:     valueOrDefault(k.String("CMS_BASE_URL"), "https://cdn.contentful.com"),
		CMSSpaceID:     k.String("CMS_SPACE_ID"),
		CMSEnvironment: valueOrDefault(k.String("CMS_ENVIRONMENT"), "master"),
		CMSAccessToken: k.String("CMS_ACCESS_TOKEN"),
		CMSCacheTTL:    parseDuration(k.String("CMS_CACHE_TTL"), "5m"),

		USPSBaseURL:          valueOrDefault(k.String("USPS_BASE_URL"), "https://apis.usps.com"),
		USPSClientID:         k.String("USPS_CLIENT_ID"),
		USPSClientSecret:     k.String("USPS_CLIENT_SECRET"),
		OriginZIP:            k.String("SHIPPING_ORIGIN_ZIP"),
		ShippingMaxAttempts:  parseInt(k.String("SHIPPING_MAX_ATTEMPTS"), 3),
		ShippingRetryBackoff: parseDuration(k.String("SHIPPING_RETRY_BACKOFF"), "100ms"),
		ShippingStaggerStep:  parseDuration(k.String("SHIPPING_STAGGER_STEP"), "100ms"),
		ShippingCallTimeout:  parseDuration(k.String("SHIPPING_CALL_TIMEOUT"), "10s"),

		PaymentProvider:        valueOrDefault(k.String("PAYMENT_PROVIDER"), "payu"),
		PaymentCallbackBaseURL: k.String("PAYMENT_CALLBACK_BASE_URL"),
		PayUAPIKey:             k.String("PAYU_API_KEY"),
		PayUMerchantID:         k.String("PAYU_MERCHANT_ID"),
		PayUAccountID:          k.String("PAYU_ACCOUNT_ID"),
		PayUBaseURL:            k.String("PAYU_BASE_URL"),
		PayUTestMode:           parseBool(k.String("PAYU_TEST_MODE")),
		StripeSecretKey:        k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:    k.String("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:          valueOrDefault(k.String("STRIPE_BASE_URL"), "https://api.stripe.com"),

		TaxRateBps:   parseInt(k.String("PRICING_TAX_RATE_BPS"), 0),
		CurrencyCode: valueOrDefault(k.String("CURRENCY_CODE"), "USD"),

		CartTTL:  parseDuration(k.String("CART_TTL"), "2h"),
		OrderTTL: parseDuration(k.String("ORDER_TTL"), "24h"),

		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		WebhookReplayTTL: parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "48h"),

		EmailEnabled:  parseBool(k.String("EMAIL_ENABLED")),
		EmailFrom:     k.String("EMAIL_FROM"),
		MerchantEmail: k.String("MERCHANT_EMAIL"),
		SMTPHost:      k.String("SMTP_HOST"),
		SMTPPort:      parseInt(k.String("SMTP_PORT"), 587),
		SMTPUsername:  k.String("SMTP_USERNAME"),
		SMTPPassword:  k.String("SMTP_PASSWORD"),

		AuthIssuer:   k.String("AUTH_ISSUER"),
		AuthAudience: k.String("AUTH_AUDIENCE"),
		AuthJWKSURL:  k.String("AUTH_JWKS_URL"),

		ShippingRateLimit: valueOrDefault(k.String("SHIPPING_RATE_LIMIT"), "30-M"),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.USPSClientID == "" || cfg.USPSClientSecret == "" {
		return nil, errors.New("USPS_CLIENT_ID and USPS_CLIENT_SECRET are required")
	}
	if cfg.CMSAccessToken == "" {
		return nil, errors.New("CMS_ACCESS_TOKEN is required")
	}
	if !zipPattern.MatchString(cfg.OriginZIP) {
		return nil, errors.New("SHIPPING_ORIGIN_ZIP must be a 5-digit ZIP code")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
