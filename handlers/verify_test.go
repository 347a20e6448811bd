package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"mcplabs.co.uk/licensing/internal/license"
	"mcplabs.co.uk/licensing/models"
)

func generateKey(t *testing.T, tier models.Tier) string {
	t.Helper()
	key, err := license.Generate(tier)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

func TestVerifyLicenseSuccess(t *testing.T) {
	s, store := newTestServer(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	key := generateKey(t, models.TierBusiness)
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	lic := seedTestLicense(t, store, key, "sub_verify", expiry)
	lic.Tier = models.TierBusiness
	lic.MaxDevelopers = 50
	if err := store.SaveLicense(context.Background(), lic); err != nil {
		t.Fatalf("Failed to update license: %v", err)
	}

	w := postJSON(t, s, "/api/v1/licenses/verify", VerifyRequest{
		LicenseKey: key,
		ProductID:  "github",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["valid"] != true {
		t.Error("Expected valid=true")
	}
	if body["tier"] != "business" {
		t.Errorf("Expected tier business, got %v", body["tier"])
	}
	if body["tier_name"] != "Business License" {
		t.Errorf("Expected tier name Business License, got %v", body["tier_name"])
	}
	if body["max_developers"] != float64(50) {
		t.Errorf("Expected 50 max developers, got %v", body["max_developers"])
	}
	if body["status"] != models.StatusActive {
		t.Errorf("Expected active status, got %v", body["status"])
	}
}

func TestVerifyLicenseMissingFields(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		req  VerifyRequest
	}{
		{"missing key", VerifyRequest{ProductID: "github"}},
		{"missing product", VerifyRequest{LicenseKey: "MCP-1.0-STAR-AAAABBBBCCCC-000000"}},
		{"missing both", VerifyRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, s, "/api/v1/licenses/verify", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
			body := decodeBody(t, w)
			if body["valid"] != false {
				t.Error("Expected valid=false")
			}
		})
	}
}

// Unknown keys, wrong-product lookups, and malformed keys must all
// produce the same 404 body, so a caller cannot probe which part failed.
func TestVerifyLicenseNotFoundIndistinguishable(t *testing.T) {
	s, store := newTestServer(t)

	key := generateKey(t, models.TierStartup)
	seedTestLicense(t, store, key, "sub_probe", time.Now().AddDate(1, 0, 0))

	unknownKey := generateKey(t, models.TierStartup)

	tests := []struct {
		name string
		req  VerifyRequest
	}{
		{"unknown key", VerifyRequest{LicenseKey: unknownKey, ProductID: "github"}},
		{"wrong product", VerifyRequest{LicenseKey: key, ProductID: "gitlab"}},
		{"malformed key", VerifyRequest{LicenseKey: "not-a-license-key", ProductID: "github"}},
		{"tampered checksum", VerifyRequest{LicenseKey: key[:len(key)-6] + "AAAAAA", ProductID: "github"}},
	}

	var firstBody string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, s, "/api/v1/licenses/verify", tt.req)
			if w.Code != http.StatusNotFound {
				t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
			}
			if firstBody == "" {
				firstBody = w.Body.String()
			} else if w.Body.String() != firstBody {
				t.Errorf("Not-found bodies differ:\n%s\n%s", firstBody, w.Body.String())
			}
			body := decodeBody(t, w)
			if body["message"] != "Invalid license key or product ID. Purchase a license at https://mcplabs.co.uk" {
				t.Errorf("Unexpected message: %v", body["message"])
			}
		})
	}
}

func TestVerifyLicenseInactive(t *testing.T) {
	s, store := newTestServer(t)

	key := generateKey(t, models.TierStartup)
	lic := seedTestLicense(t, store, key, "sub_inactive", time.Now().AddDate(1, 0, 0))
	if err := store.UpdateLicenseStatus(context.Background(), lic.ID, models.StatusCancelled); err != nil {
		t.Fatalf("Failed to cancel license: %v", err)
	}

	w := postJSON(t, s, "/api/v1/licenses/verify", VerifyRequest{
		LicenseKey: key,
		ProductID:  "github",
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != models.StatusCancelled {
		t.Errorf("Expected cancelled status in body, got %v", body["status"])
	}
	if body["message"] != "License status: cancelled. Contact support@mcplabs.co.uk" {
		t.Errorf("Unexpected message: %v", body["message"])
	}
}

func TestVerifyLicenseExpiredLazyTransition(t *testing.T) {
	s, store := newTestServer(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	key := generateKey(t, models.TierStartup)
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lic := seedTestLicense(t, store, key, "sub_expired", expiry)

	w := postJSON(t, s, "/api/v1/licenses/verify", VerifyRequest{
		LicenseKey: key,
		ProductID:  "github",
	})

	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] != "License expired" {
		t.Errorf("Unexpected error: %v", body["error"])
	}
	if body["message"] != "License expired on 2026-01-01T00:00:00Z. Renew at https://mcplabs.co.uk" {
		t.Errorf("Unexpected message: %v", body["message"])
	}

	// The row is still marked active until someone reads it past expiry;
	// this read must have flipped it.
	stored, err := store.GetLicense(context.Background(), lic.ID)
	if err != nil {
		t.Fatalf("Failed to read license: %v", err)
	}
	if stored.Status != models.StatusExpired {
		t.Errorf("Expected persisted expired status, got %s", stored.Status)
	}
}

func TestVerifyLicenseBadJSON(t *testing.T) {
	s, _ := newTestServer(t)

	w := postJSON(t, s, "/api/v1/licenses/verify", "not an object")
	if w.Code == http.StatusOK {
		t.Errorf("Expected failure for non-object body, got %d", w.Code)
	}
}
