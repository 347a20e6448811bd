package config

import (
	"strings"
	"testing"

	"mcplabs.co.uk/licensing/models"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DatabasePath != "licensing.db" {
		t.Errorf("Expected default database path, got %s", cfg.DatabasePath)
	}
	if cfg.RateLimitRequests != 60 {
		t.Errorf("Expected default rate limit 60, got %d", cfg.RateLimitRequests)
	}
	if cfg.SkipSignatureCheck {
		t.Error("Signature checks must be on by default")
	}
}

func TestLoad_MissingStripeSecret(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected error for missing STRIPE_SECRET_KEY")
	}
	if !strings.Contains(err.Error(), "STRIPE_SECRET_KEY") {
		t.Errorf("Error should name the missing variable, got: %v", err)
	}
}

func TestLoad_WebhookSecretOptionalWhenSkipping(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("STRIPE_SKIP_SIGNATURE_CHECK", "true")

	if _, err := Load(); err != nil {
		t.Fatalf("Load returned error with signature checks disabled: %v", err)
	}
}

func TestLoad_AggregatesErrors(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("RATE_LIMIT_REQUESTS", "-1")

	_, err := Load()
	if err == nil {
		t.Fatal("Expected aggregated validation errors")
	}
	for _, want := range []string{"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "RATE_LIMIT_REQUESTS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %s, got: %v", want, err)
		}
	}
}

func TestPriceID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STRIPE_PRICES", "github/startup/annual:price_123,github/startup/monthly:price_456")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	id, ok := cfg.PriceID("github", models.TierStartup, models.BillingAnnual)
	if !ok || id != "price_123" {
		t.Errorf("Expected price_123, got %q (ok=%v)", id, ok)
	}

	id, ok = cfg.PriceID("github", models.TierStartup, models.BillingMonthly)
	if !ok || id != "price_456" {
		t.Errorf("Expected price_456, got %q (ok=%v)", id, ok)
	}

	if _, ok := cfg.PriceID("github", models.TierEnterprise, models.BillingAnnual); ok {
		t.Error("Expected no price for unconfigured triple")
	}
}
