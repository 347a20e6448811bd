package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"mcplabs.co.uk/licensing/internal/license"
	"mcplabs.co.uk/licensing/internal/logger"
	"mcplabs.co.uk/licensing/models"
)

type VerifyRequest struct {
	LicenseKey string `json:"license_key"`
	ProductID  string `json:"product_id"`
}

type VerifyResponse struct {
	Valid         bool      `json:"valid"`
	Tier          string    `json:"tier"`
	TierName      string    `json:"tier_name"`
	ProductID     string    `json:"product_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	Status        string    `json:"status"`
	MaxDevelopers int       `json:"max_developers"`
	Features      []string  `json:"features"`
	CheckedAt     time.Time `json:"checked_at"`
}

// verifyError is the {valid:false, error, message} failure body. Extra
// fields appear only where documented; this endpoint is a trust boundary
// and must not return more than promised.
type verifyError struct {
	Valid     bool       `json:"valid"`
	ErrorText string     `json:"error"`
	Message   string     `json:"message"`
	Status    string     `json:"status,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	code int
}

func (e *verifyError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.code)
	return nil
}

// Identical body for unknown key and wrong product: the response must
// not reveal which of the two mismatched.
func verifyNotFound() *verifyError {
	return &verifyError{
		ErrorText: "License not found",
		Message:   "Invalid license key or product ID. Purchase a license at https://mcplabs.co.uk",
		code:      http.StatusNotFound,
	}
}

// VerifyLicense is the entitlement check exposed to client software. Any
// process holding a key string may call it; the key is format-validated
// before the store is touched.
func (s *Server) VerifyLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		_ = render.Render(w, r, &verifyError{
			ErrorText: "Invalid request",
			Message:   "Request body must be JSON",
			code:      http.StatusBadRequest,
		})
		return
	}

	if req.LicenseKey == "" || req.ProductID == "" {
		_ = render.Render(w, r, &verifyError{
			ErrorText: "Missing required fields",
			Message:   "Both license_key and product_id are required",
			code:      http.StatusBadRequest,
		})
		return
	}

	if !license.Validate(req.LicenseKey) {
		// Malformed keys take the not-found path so the response does
		// not reveal whether the shape or the lookup failed.
		_ = render.Render(w, r, verifyNotFound())
		return
	}

	lic, err := s.Storage.FindLicenseByKeyAndProduct(ctx, req.LicenseKey, req.ProductID)
	if err != nil {
		logger.Error("License lookup failed", map[string]interface{}{
			"error":      err.Error(),
			"product_id": req.ProductID,
		})
		_ = render.Render(w, r, &verifyError{
			ErrorText: "Internal server error",
			Message:   "Verification is temporarily unavailable",
			code:      http.StatusInternalServerError,
		})
		return
	}
	if lic == nil {
		_ = render.Render(w, r, verifyNotFound())
		return
	}

	if lic.Status != models.StatusActive {
		_ = render.Render(w, r, &verifyError{
			ErrorText: "License inactive",
			Message:   "License status: " + lic.Status + ". Contact support@mcplabs.co.uk",
			Status:    lic.Status,
			code:      http.StatusForbidden,
		})
		return
	}

	now := s.now()
	if lic.Expired(now) {
		// Lazy transition: whoever reads an overdue license expires it.
		if err := s.Storage.UpdateLicenseStatus(ctx, lic.ID, models.StatusExpired); err != nil {
			logger.Error("Failed to expire license", map[string]interface{}{
				"error":      err.Error(),
				"license_id": lic.ID,
			})
		}

		expiresAt := lic.ExpiresAt
		_ = render.Render(w, r, &verifyError{
			ErrorText: "License expired",
			Message:   "License expired on " + expiresAt.Format(time.RFC3339) + ". Renew at https://mcplabs.co.uk",
			ExpiresAt: &expiresAt,
			code:      http.StatusForbidden,
		})
		return
	}

	if !lic.Tier.Valid() {
		// Unreachable given the data model, but a corrupt row must not
		// leak through as a valid entitlement.
		logger.Error("License row carries unknown tier", map[string]interface{}{
			"license_id": lic.ID,
			"tier":       string(lic.Tier),
		})
		_ = render.Render(w, r, &verifyError{
			ErrorText: "Invalid license tier",
			Message:   "Contact support@mcplabs.co.uk",
			code:      http.StatusInternalServerError,
		})
		return
	}

	render.JSON(w, r, VerifyResponse{
		Valid:         true,
		Tier:          string(lic.Tier),
		TierName:      lic.Tier.DisplayName(),
		ProductID:     lic.ProductID,
		ExpiresAt:     lic.ExpiresAt,
		Status:        lic.Status,
		MaxDevelopers: lic.Tier.MaxDevelopers(),
		Features:      []string{"all"},
		CheckedAt:     now.UTC(),
	})
}
