package models

import "time"

const (
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

type License struct {
	ID                    string
	Key                   string
	CustomerID            string
	ProductID             string
	Tier                  Tier
	Status                string
	MaxDevelopers         int
	BillingPeriod         BillingPeriod
	StripeSubscriptionID  string
	StripePaymentIntentID string
	LastInvoiceID         string
	AmountPaid            int64
	Currency              string
	ExpiresAt             time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Expired reports whether the expiry timestamp has passed, regardless of
// the stored status. A caller that finds an active license expired by
// time is expected to persist the expired status.
func (l *License) Expired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}
