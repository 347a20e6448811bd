package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Webhook business-rule failures. The billing provider must not retry
// these, so they map to 4xx responses.
var (
	ErrUnknownCustomer = errors.New("no customer account matches the checkout email")
	ErrMissingTier     = errors.New("checkout session carries no tier metadata")
	ErrLicenseNotFound = errors.New("no license matches the subscription")
)

// ConfigurationError means a (product, tier, period) triple has no Stripe
// price configured. Fatal for the request; retrying will not help.
type ConfigurationError struct {
	ProductID string
	Tier      string
	Period    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no price configured for %s/%s/%s", e.ProductID, e.Tier, e.Period)
}

// UpstreamError carries a billing-provider rejection back to the caller
// with the provider's own message.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("stripe rejected the request: %s", e.Message)
}

// apiError is the {error:true, message} response body used by the
// checkout and webhook endpoints.
type apiError struct {
	IsError bool   `json:"error"`
	Message string `json:"message"`

	status int
}

func (e *apiError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.status)
	return nil
}

func errInvalidRequest(message string) render.Renderer {
	return &apiError{IsError: true, Message: message, status: http.StatusBadRequest}
}

func errServerError(message string) render.Renderer {
	return &apiError{IsError: true, Message: message, status: http.StatusInternalServerError}
}

func errUpstream(message string) render.Renderer {
	return &apiError{IsError: true, Message: message, status: http.StatusBadGateway}
}
