package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/stripe/stripe-go/v82"

	"mcplabs.co.uk/licensing/internal/logger"
	"mcplabs.co.uk/licensing/internal/products"
	"mcplabs.co.uk/licensing/models"
)

type CheckoutRequest struct {
	ProductID     string `json:"productId" validate:"required"`
	Tier          string `json:"tier" validate:"required,oneof=startup business enterprise"`
	BillingPeriod string `json:"billingPeriod" validate:"omitempty,oneof=monthly annual"`
	PriceID       string `json:"priceId"`
	CustomerEmail string `json:"customerEmail" validate:"omitempty,email"`
	SuccessURL    string `json:"successUrl" validate:"required,url"`
	CancelURL     string `json:"cancelUrl" validate:"required,url"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// CreateCheckout builds a subscription-mode Stripe checkout session for
// the requested (product, tier, period) and returns the redirect URL.
func (s *Server) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		_ = render.Render(w, r, errInvalidRequest("Invalid JSON body"))
		return
	}

	if err := s.validate.Struct(req); err != nil {
		_ = render.Render(w, r, errInvalidRequest(err.Error()))
		return
	}

	if !products.Exists(req.ProductID) {
		_ = render.Render(w, r, errInvalidRequest("Unknown product: "+req.ProductID))
		return
	}

	tier, _ := models.ParseTier(req.Tier)
	period := models.BillingAnnual
	if req.BillingPeriod != "" {
		period, _ = models.ParseBillingPeriod(req.BillingPeriod)
	}

	url, err := s.initiateCheckout(&req, tier, period)
	if err != nil {
		var confErr *ConfigurationError
		var upErr *UpstreamError
		switch {
		case errors.As(err, &confErr):
			logger.Error("Checkout misconfigured", map[string]interface{}{
				"product_id": confErr.ProductID,
				"tier":       confErr.Tier,
				"period":     confErr.Period,
			})
			_ = render.Render(w, r, errServerError(confErr.Error()))
		case errors.As(err, &upErr):
			logger.Error("Stripe rejected checkout session", map[string]interface{}{
				"status_code": upErr.StatusCode,
				"message":     upErr.Message,
			})
			_ = render.Render(w, r, errUpstream(upErr.Message))
		default:
			logger.Error("Failed to create checkout session", map[string]interface{}{
				"error": err.Error(),
			})
			_ = render.Render(w, r, errServerError("Failed to create checkout session"))
		}
		return
	}

	logger.Info("Checkout session created", map[string]interface{}{
		"product_id": req.ProductID,
		"tier":       string(tier),
		"period":     string(period),
	})

	render.JSON(w, r, CheckoutResponse{URL: url})
}

func (s *Server) initiateCheckout(req *CheckoutRequest, tier models.Tier, period models.BillingPeriod) (string, error) {
	priceID := req.PriceID
	if priceID == "" {
		var ok bool
		priceID, ok = s.Config.PriceID(req.ProductID, tier, period)
		if !ok {
			return "", &ConfigurationError{ProductID: req.ProductID, Tier: string(tier), Period: string(period)}
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.AddMetadata("product_id", req.ProductID)
	params.AddMetadata("tier", string(tier))
	params.AddMetadata("billing_period", string(period))
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	sess, err := s.createSession(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return "", &UpstreamError{StatusCode: stripeErr.HTTPStatusCode, Message: stripeErr.Msg}
		}
		return "", err
	}

	return sess.URL, nil
}
