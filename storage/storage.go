// Package storage persists customers and licenses. Two implementations:
// SQLite for production and an in-memory map store for tests. Lookups
// that find nothing return (nil, nil); an error always means I/O.
package storage

import (
	"context"
	"time"

	"mcplabs.co.uk/licensing/models"
)

type Storage interface {
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	SaveCustomer(ctx context.Context, customer *models.Customer) error

	GetLicense(ctx context.Context, id string) (*models.License, error)
	FindLicenseByKey(ctx context.Context, key string) (*models.License, error)
	FindLicenseByKeyAndProduct(ctx context.Context, key, productID string) (*models.License, error)
	FindLicenseBySubscriptionID(ctx context.Context, subscriptionID string) (*models.License, error)
	FindLicenseByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.License, error)
	FindLicensesByCustomer(ctx context.Context, customerID string) ([]*models.License, error)
	SaveLicense(ctx context.Context, license *models.License) error
	UpdateLicenseStatus(ctx context.Context, id, status string) error

	// ExtendLicense advances the expiry of the license owned by
	// subscriptionID in a single conditional update. The write applies
	// only if the stored expiry still equals priorExpiry and the stored
	// last invoice differs from invoiceID, which makes concurrent
	// deliveries lose the race cleanly and same-invoice redelivery a
	// no-op. An empty invoiceID carries no identity, so it skips the
	// invoice comparison and gates on the expiry alone. Returns whether
	// a row was updated. A successful extension also sets the status
	// back to active.
	ExtendLicense(ctx context.Context, subscriptionID string, priorExpiry, newExpiry time.Time, invoiceID string) (bool, error)

	Close() error
}
