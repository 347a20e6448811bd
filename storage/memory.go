package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcplabs.co.uk/licensing/models"
)

// MemoryStorage keeps everything in maps. Used by tests; the mutex gives
// it the same conditional-update semantics as the SQLite store under
// concurrent webhook deliveries.
type MemoryStorage struct {
	mu        sync.RWMutex
	customers map[string]models.Customer
	licenses  map[string]models.License
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		customers: make(map[string]models.Customer),
		licenses:  make(map[string]models.License),
	}
}

func (m *MemoryStorage) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	customer, exists := m.customers[id]
	if !exists {
		return nil, nil
	}
	return &customer, nil
}

func (m *MemoryStorage) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, customer := range m.customers {
		if customer.Email == email {
			c := customer
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) SaveCustomer(ctx context.Context, customer *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.customers[customer.ID] = *customer
	return nil
}

func (m *MemoryStorage) GetLicense(ctx context.Context, id string) (*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	license, exists := m.licenses[id]
	if !exists {
		return nil, nil
	}
	return &license, nil
}

func (m *MemoryStorage) FindLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, license := range m.licenses {
		if license.Key == key {
			l := license
			return &l, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FindLicenseByKeyAndProduct(ctx context.Context, key, productID string) (*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, license := range m.licenses {
		if license.Key == key && license.ProductID == productID {
			l := license
			return &l, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FindLicenseBySubscriptionID(ctx context.Context, subscriptionID string) (*models.License, error) {
	if subscriptionID == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, license := range m.licenses {
		if license.StripeSubscriptionID == subscriptionID {
			l := license
			return &l, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FindLicenseByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.License, error) {
	if paymentIntentID == "" {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, license := range m.licenses {
		if license.StripePaymentIntentID == paymentIntentID {
			l := license
			return &l, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FindLicensesByCustomer(ctx context.Context, customerID string) ([]*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var licenses []*models.License
	for _, license := range m.licenses {
		if license.CustomerID == customerID {
			l := license
			licenses = append(licenses, &l)
		}
	}
	return licenses, nil
}

func (m *MemoryStorage) SaveLicense(ctx context.Context, license *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.customers[license.CustomerID]; !exists {
		return fmt.Errorf("customer %s not found", license.CustomerID)
	}

	m.licenses[license.ID] = *license
	return nil
}

func (m *MemoryStorage) UpdateLicenseStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	license, exists := m.licenses[id]
	if !exists {
		return fmt.Errorf("license %s not found", id)
	}

	license.Status = status
	license.UpdatedAt = time.Now()
	m.licenses[id] = license
	return nil
}

func (m *MemoryStorage) ExtendLicense(ctx context.Context, subscriptionID string, priorExpiry, newExpiry time.Time, invoiceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, license := range m.licenses {
		if license.StripeSubscriptionID != subscriptionID {
			continue
		}
		if !license.ExpiresAt.Equal(priorExpiry) {
			return false, nil
		}
		if invoiceID != "" && license.LastInvoiceID == invoiceID {
			return false, nil
		}

		license.ExpiresAt = newExpiry
		license.Status = models.StatusActive
		license.LastInvoiceID = invoiceID
		license.UpdatedAt = time.Now()
		m.licenses[id] = license
		return true, nil
	}
	return false, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
