package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"go.uber.org/atomic"

	"mcplabs.co.uk/licensing/internal/config"
	"mcplabs.co.uk/licensing/internal/email"
	"mcplabs.co.uk/licensing/internal/ratelimit"
	"mcplabs.co.uk/licensing/storage"
)

// WebhookStats counts reconciler outcomes since process start.
type WebhookStats struct {
	Received atomic.Int64
	Applied  atomic.Int64
	Skipped  atomic.Int64
	Failed   atomic.Int64
}

type Server struct {
	Router  chi.Router
	Storage storage.Storage
	Config  *config.Config
	Email   *email.Sender
	Stats   *WebhookStats

	validate *validator.Validate
	events   map[stripe.EventType]eventHandler

	// createSession is swapped out in tests to avoid calling Stripe.
	createSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

	// now is swapped out in tests to pin expiry arithmetic.
	now func() time.Time
}

func NewServer(cfg *config.Config, store storage.Storage) *Server {
	s := &Server{
		Storage:       store,
		Config:        cfg,
		Email:         email.New(cfg),
		Stats:         &WebhookStats{},
		validate:      validator.New(),
		createSession: session.New,
		now:           time.Now,
	}
	s.events = s.eventHandlers()

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Stripe-Signature"},
	}))

	limiter := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow)

	r.Get("/health", s.Health)
	r.Post("/api/v1/checkout", s.CreateCheckout)
	r.Post("/api/v1/webhooks/stripe", s.StripeWebhook)
	r.With(ratelimit.Middleware(limiter)).Post("/api/v1/licenses/verify", s.VerifyLicense)

	s.Router = r
	return s
}

type healthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Webhooks  webhookCounts `json:"webhooks"`
}

type webhookCounts struct {
	Received int64 `json:"received"`
	Applied  int64 `json:"applied"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Webhooks: webhookCounts{
			Received: s.Stats.Received.Load(),
			Applied:  s.Stats.Applied.Load(),
			Skipped:  s.Stats.Skipped.Load(),
			Failed:   s.Stats.Failed.Load(),
		},
	})
}
