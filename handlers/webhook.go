package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"mcplabs.co.uk/licensing/internal/email"
	"mcplabs.co.uk/licensing/internal/license"
	"mcplabs.co.uk/licensing/internal/logger"
	"mcplabs.co.uk/licensing/internal/products"
	"mcplabs.co.uk/licensing/models"
)

// outcome is what an event handler did with a delivery. Failures travel
// separately as errors.
type outcome int

const (
	outcomeApplied outcome = iota
	outcomeSkipped
)

type eventHandler func(ctx context.Context, event *stripe.Event) (outcome, error)

// eventHandlers is the reconciler dispatch table. Event types absent
// from the table are acknowledged and counted as skipped; there is no
// silent fallthrough.
func (s *Server) eventHandlers() map[stripe.EventType]eventHandler {
	return map[stripe.EventType]eventHandler{
		"checkout.session.completed":    s.handleCheckoutCompleted,
		"invoice.payment_succeeded":     s.handleInvoicePaymentSucceeded,
		"invoice.payment_failed":        s.handleInvoicePaymentFailed,
		"customer.subscription.updated": s.handleSubscriptionUpdated,
		"customer.subscription.deleted": s.handleSubscriptionDeleted,
	}
}

const maxWebhookBodyBytes = int64(65536)

func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.Stats.Received.Inc()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		s.Stats.Failed.Inc()
		_ = render.Render(w, r, errServerError("Failed to read payload"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Error("Failed to parse webhook JSON", map[string]interface{}{
			"error": err.Error(),
		})
		s.Stats.Failed.Inc()
		_ = render.Render(w, r, errInvalidRequest("Invalid event payload"))
		return
	}

	if !s.Config.SkipSignatureCheck {
		signatureHeader := r.Header.Get("Stripe-Signature")
		event, err = webhook.ConstructEvent(payload, signatureHeader, s.Config.StripeWebhookSecret)
		if err != nil {
			logger.Error("Webhook signature verification failed", map[string]interface{}{
				"error":     err.Error(),
				"signature": signatureHeader,
			})
			s.Stats.Failed.Inc()
			_ = render.Render(w, r, errInvalidRequest("Invalid signature"))
			return
		}
	}

	logger.Info("Stripe event received", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	handler, known := s.events[event.Type]
	if !known {
		logger.Info("Unhandled webhook event type", map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
		})
		s.Stats.Skipped.Inc()
		render.JSON(w, r, map[string]bool{"received": true})
		return
	}

	result, err := handler(ctx, &event)
	if err != nil {
		s.Stats.Failed.Inc()
		logger.Error("Webhook event failed", map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
			"error":      err.Error(),
		})
		if isBusinessError(err) {
			_ = render.Render(w, r, errInvalidRequest(err.Error()))
		} else {
			_ = render.Render(w, r, errServerError("Failed to process event"))
		}
		return
	}

	switch result {
	case outcomeApplied:
		s.Stats.Applied.Inc()
	case outcomeSkipped:
		s.Stats.Skipped.Inc()
	}

	logger.Info("Webhook processed", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
		"applied":    result == outcomeApplied,
	})

	render.JSON(w, r, map[string]bool{"received": true})
}

// Business-rule failures get a 4xx so the provider stops retrying;
// anything else is a 5xx and the provider will redeliver.
func isBusinessError(err error) bool {
	return errors.Is(err, ErrUnknownCustomer) ||
		errors.Is(err, ErrMissingTier) ||
		errors.Is(err, ErrLicenseNotFound)
}

func (s *Server) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) (outcome, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	customerEmail := session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		customerEmail = session.CustomerDetails.Email
	}
	if customerEmail == "" {
		return outcomeSkipped, fmt.Errorf("%w: session %s has no email", ErrUnknownCustomer, session.ID)
	}

	tier, ok := models.ParseTier(session.Metadata["tier"])
	if !ok {
		return outcomeSkipped, fmt.Errorf("%w: session %s", ErrMissingTier, session.ID)
	}

	productID := session.Metadata["product_id"]
	if productID == "" {
		productID = products.DefaultProductID
	}
	period, ok := models.ParseBillingPeriod(session.Metadata["billing_period"])
	if !ok {
		period = models.BillingAnnual
	}

	var subscriptionID string
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	var paymentIntentID string
	if session.PaymentIntent != nil {
		paymentIntentID = session.PaymentIntent.ID
	}

	// Redelivery guard: one license per subscription. Sessions without a
	// subscription fall back to the payment intent for identity.
	existing, err := s.Storage.FindLicenseBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("license lookup failed: %w", err)
	}
	if existing == nil && subscriptionID == "" {
		existing, err = s.Storage.FindLicenseByPaymentIntentID(ctx, paymentIntentID)
		if err != nil {
			return outcomeSkipped, fmt.Errorf("license lookup failed: %w", err)
		}
	}
	if existing != nil {
		logger.Info("License already minted for session", map[string]interface{}{
			"subscription_id":   subscriptionID,
			"payment_intent_id": paymentIntentID,
			"license_id":        existing.ID,
		})
		return outcomeSkipped, nil
	}

	customer, err := s.Storage.FindCustomerByEmail(ctx, customerEmail)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("customer lookup failed: %w", err)
	}
	if customer == nil {
		return outcomeSkipped, fmt.Errorf("%w: %s", ErrUnknownCustomer, customerEmail)
	}

	key, err := license.Generate(tier)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to generate license key: %w", err)
	}

	now := s.now()
	lic := &models.License{
		ID:                    uuid.Must(uuid.NewRandom()).String(),
		Key:                   key,
		CustomerID:            customer.ID,
		ProductID:             productID,
		Tier:                  tier,
		Status:                models.StatusActive,
		MaxDevelopers:         tier.MaxDevelopers(),
		BillingPeriod:         period,
		StripeSubscriptionID:  subscriptionID,
		StripePaymentIntentID: paymentIntentID,
		AmountPaid:            session.AmountTotal,
		Currency:              string(session.Currency),
		ExpiresAt:             period.Advance(now),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.Storage.SaveLicense(ctx, lic); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to save license: %w", err)
	}

	logger.Info("License created", map[string]interface{}{
		"license_id":      lic.ID,
		"customer_id":     customer.ID,
		"product_id":      productID,
		"tier":            string(tier),
		"billing_period":  string(period),
		"subscription_id": subscriptionID,
	})

	s.sendLicenseEmail(customerEmail, lic)

	return outcomeApplied, nil
}

// invoicePayload pulls the subscription reference out of an invoice
// event, covering both the flat and the parent-nested payload shapes
// Stripe has shipped.
type invoicePayload struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	return p.Parent.SubscriptionDetails.Subscription
}

func (s *Server) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) (outcome, error) {
	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	subscriptionID := inv.subscriptionID()
	if subscriptionID == "" {
		// One-off invoice, nothing to reconcile.
		return outcomeSkipped, nil
	}

	// The conditional update can lose to a concurrent delivery; re-read
	// and retry. A CAS miss caused by this same invoice means the work
	// is already done.
	for attempt := 0; attempt < 3; attempt++ {
		lic, err := s.Storage.FindLicenseBySubscriptionID(ctx, subscriptionID)
		if err != nil {
			return outcomeSkipped, fmt.Errorf("license lookup failed: %w", err)
		}
		if lic == nil {
			return outcomeSkipped, fmt.Errorf("%w: %s", ErrLicenseNotFound, subscriptionID)
		}
		if inv.ID != "" && lic.LastInvoiceID == inv.ID {
			return outcomeSkipped, nil
		}

		now := s.now()
		base := lic.ExpiresAt
		if now.After(base) {
			base = now
		}
		newExpiry := lic.BillingPeriod.Advance(base)

		ok, err := s.Storage.ExtendLicense(ctx, subscriptionID, lic.ExpiresAt, newExpiry, inv.ID)
		if err != nil {
			return outcomeSkipped, fmt.Errorf("failed to extend license: %w", err)
		}
		if ok {
			logger.Info("License extended", map[string]interface{}{
				"license_id":      lic.ID,
				"subscription_id": subscriptionID,
				"invoice_id":      inv.ID,
				"expires_at":      newExpiry.Format(time.RFC3339),
			})
			return outcomeApplied, nil
		}
	}

	return outcomeSkipped, fmt.Errorf("could not extend license for subscription %s after retries", subscriptionID)
}

func (s *Server) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) (outcome, error) {
	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	subscriptionID := inv.subscriptionID()
	if subscriptionID == "" {
		return outcomeSkipped, nil
	}

	return s.transitionBySubscription(ctx, subscriptionID, models.StatusExpired)
}

// subscriptionPayload is the slice of a subscription object the
// reconciler cares about.
type subscriptionPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) (outcome, error) {
	var sub subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	if sub.Status != "active" {
		return outcomeSkipped, nil
	}

	lic, err := s.Storage.FindLicenseBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("license lookup failed: %w", err)
	}
	// Updates arrive for subscriptions that never minted a license here
	// (e.g. created before this service); nothing to reconcile.
	if lic == nil || lic.Status == models.StatusActive {
		return outcomeSkipped, nil
	}

	if err := s.Storage.UpdateLicenseStatus(ctx, lic.ID, models.StatusActive); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to reactivate license: %w", err)
	}

	logger.Info("License reactivated", map[string]interface{}{
		"license_id":      lic.ID,
		"subscription_id": sub.ID,
	})
	return outcomeApplied, nil
}

func (s *Server) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) (outcome, error) {
	var sub subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	return s.transitionBySubscription(ctx, sub.ID, models.StatusCancelled)
}

func (s *Server) transitionBySubscription(ctx context.Context, subscriptionID, status string) (outcome, error) {
	lic, err := s.Storage.FindLicenseBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("license lookup failed: %w", err)
	}
	if lic == nil {
		return outcomeSkipped, fmt.Errorf("%w: %s", ErrLicenseNotFound, subscriptionID)
	}
	if lic.Status == status {
		return outcomeSkipped, nil
	}

	if err := s.Storage.UpdateLicenseStatus(ctx, lic.ID, status); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to update license status: %w", err)
	}

	logger.Info("License status changed", map[string]interface{}{
		"license_id":      lic.ID,
		"subscription_id": subscriptionID,
		"status":          status,
	})
	return outcomeApplied, nil
}

func (s *Server) sendLicenseEmail(to string, lic *models.License) {
	if !s.Email.Enabled() {
		return
	}

	productName := lic.ProductID
	if p, ok := products.Get(lic.ProductID); ok {
		productName = p.Name
	}

	if err := s.Email.Send(to, "Your MCP Labs license key", email.LicenseBody(lic, productName)); err != nil {
		// License row is already persisted; delivery is best-effort.
		logger.Error("Failed to send license email", map[string]interface{}{
			"error":      err.Error(),
			"email":      to,
			"license_id": lic.ID,
		})
		return
	}

	logger.Info("License email sent", map[string]interface{}{
		"email":      to,
		"license_id": lic.ID,
	})
}
