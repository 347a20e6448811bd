// Package config loads all runtime configuration once at startup.
// Components receive the resulting struct through their constructors;
// nothing reads the process environment mid-request.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"

	"mcplabs.co.uk/licensing/models"
)

type Config struct {
	Port         string `envconfig:"PORT" default:"8080"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"licensing.db"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"INFO"`
	SentryDSN    string `envconfig:"SENTRY_DSN"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	// SkipSignatureCheck disables Stripe webhook signature verification.
	// Only for local development and tests.
	SkipSignatureCheck bool `envconfig:"STRIPE_SKIP_SIGNATURE_CHECK" default:"false"`

	// StripePrices maps "product/tier/period" to a Stripe price id,
	// e.g. STRIPE_PRICES="github/startup/annual:price_123,github/startup/monthly:price_456".
	StripePrices map[string]string `envconfig:"STRIPE_PRICES"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     string `envconfig:"SMTP_PORT"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	EmailFrom    string `envconfig:"EMAIL_FROM" default:"licenses@mcplabs.co.uk"`

	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	var result *multierror.Error

	if c.StripeSecretKey == "" {
		result = multierror.Append(result, errors.New("STRIPE_SECRET_KEY is required"))
	}
	if c.StripeWebhookSecret == "" && !c.SkipSignatureCheck {
		result = multierror.Append(result, errors.New("STRIPE_WEBHOOK_SECRET is required unless signature checks are disabled"))
	}
	if c.RateLimitRequests < 0 {
		result = multierror.Append(result, errors.New("RATE_LIMIT_REQUESTS must not be negative"))
	}

	return result.ErrorOrNil()
}

// PriceID resolves the configured Stripe price for a (product, tier,
// period) triple. The second return is false when no price is configured.
func (c *Config) PriceID(productID string, tier models.Tier, period models.BillingPeriod) (string, bool) {
	id, ok := c.StripePrices[fmt.Sprintf("%s/%s/%s", productID, tier, period)]
	return id, ok && id != ""
}
