package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mcplabs.co.uk/licensing/internal/config"
	"mcplabs.co.uk/licensing/models"
	"mcplabs.co.uk/licensing/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	cfg := &config.Config{
		SkipSignatureCheck: true,
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
		StripePrices: map[string]string{
			"github/startup/annual":  "price_startup_annual",
			"github/business/annual": "price_business_annual",
		},
	}
	return NewServer(cfg, store), store
}

func seedTestCustomer(t *testing.T, store storage.Storage, email string) *models.Customer {
	t.Helper()
	customer := &models.Customer{
		ID:               "cust-" + email,
		Email:            email,
		StripeCustomerID: "cus_test",
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := store.SaveCustomer(context.Background(), customer); err != nil {
		t.Fatalf("Failed to seed customer: %v", err)
	}
	return customer
}

func seedTestLicense(t *testing.T, store storage.Storage, key, subscriptionID string, expiresAt time.Time) *models.License {
	t.Helper()
	seedTestCustomer(t, store, "holder@example.com")
	license := &models.License{
		ID:                   "lic-" + subscriptionID + key[len(key)-6:],
		Key:                  key,
		CustomerID:           "cust-holder@example.com",
		ProductID:            "github",
		Tier:                 models.TierStartup,
		Status:               models.StatusActive,
		MaxDevelopers:        10,
		BillingPeriod:        models.BillingAnnual,
		StripeSubscriptionID: subscriptionID,
		AmountPaid:           39900,
		Currency:             "usd",
		ExpiresAt:            expiresAt,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
	if err := store.SaveLicense(context.Background(), license); err != nil {
		t.Fatalf("Failed to seed license: %v", err)
	}
	return license
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
	if _, ok := body["webhooks"]; !ok {
		t.Error("Expected webhook counters in health response")
	}
}
