package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"mcplabs.co.uk/licensing/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStorage struct {
	db   *sql.DB
	path string
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStorage{db: db, path: path}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

const customerColumns = `id, email, stripe_customer_id, created_at, updated_at`

func (s *SQLiteStorage) scanCustomer(row *sql.Row) (*models.Customer, error) {
	var customer models.Customer
	err := row.Scan(
		&customer.ID,
		&customer.Email,
		&customer.StripeCustomerID,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *SQLiteStorage) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = ?`
	return s.scanCustomer(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStorage) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE email = ?`
	return s.scanCustomer(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStorage) SaveCustomer(ctx context.Context, customer *models.Customer) error {
	query := `INSERT OR REPLACE INTO customers (` + customerColumns + `) VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		customer.ID,
		customer.Email,
		customer.StripeCustomerID,
		customer.CreatedAt.UTC(),
		customer.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

const licenseColumns = `id, key, customer_id, product_id, tier, status, max_developers,
	billing_period, stripe_subscription_id, stripe_payment_intent_id, last_invoice_id,
	amount_paid, currency, expires_at, created_at, updated_at`

func scanLicense(scan func(dest ...any) error) (*models.License, error) {
	var l models.License
	err := scan(
		&l.ID,
		&l.Key,
		&l.CustomerID,
		&l.ProductID,
		&l.Tier,
		&l.Status,
		&l.MaxDevelopers,
		&l.BillingPeriod,
		&l.StripeSubscriptionID,
		&l.StripePaymentIntentID,
		&l.LastInvoiceID,
		&l.AmountPaid,
		&l.Currency,
		&l.ExpiresAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *SQLiteStorage) GetLicense(ctx context.Context, id string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE id = ?`
	return scanLicense(s.db.QueryRowContext(ctx, query, id).Scan)
}

func (s *SQLiteStorage) FindLicenseByKey(ctx context.Context, key string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = ?`
	return scanLicense(s.db.QueryRowContext(ctx, query, key).Scan)
}

func (s *SQLiteStorage) FindLicenseByKeyAndProduct(ctx context.Context, key, productID string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = ? AND product_id = ?`
	return scanLicense(s.db.QueryRowContext(ctx, query, key, productID).Scan)
}

func (s *SQLiteStorage) FindLicenseBySubscriptionID(ctx context.Context, subscriptionID string) (*models.License, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE stripe_subscription_id = ?`
	return scanLicense(s.db.QueryRowContext(ctx, query, subscriptionID).Scan)
}

func (s *SQLiteStorage) FindLicenseByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.License, error) {
	if paymentIntentID == "" {
		return nil, nil
	}
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE stripe_payment_intent_id = ?`
	return scanLicense(s.db.QueryRowContext(ctx, query, paymentIntentID).Scan)
}

func (s *SQLiteStorage) FindLicensesByCustomer(ctx context.Context, customerID string) ([]*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE customer_id = ?`

	rows, err := s.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*models.License
	for rows.Next() {
		license, err := scanLicense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, license)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licenses: %w", err)
	}

	return licenses, nil
}

func (s *SQLiteStorage) SaveLicense(ctx context.Context, license *models.License) error {
	query := `INSERT OR REPLACE INTO licenses (` + licenseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		license.ID,
		license.Key,
		license.CustomerID,
		license.ProductID,
		license.Tier,
		license.Status,
		license.MaxDevelopers,
		license.BillingPeriod,
		license.StripeSubscriptionID,
		license.StripePaymentIntentID,
		license.LastInvoiceID,
		license.AmountPaid,
		license.Currency,
		license.ExpiresAt.UTC(),
		license.CreatedAt.UTC(),
		license.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save license: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateLicenseStatus(ctx context.Context, id, status string) error {
	query := `UPDATE licenses SET status = ?, updated_at = ? WHERE id = ?`

	_, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update license status: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ExtendLicense(ctx context.Context, subscriptionID string, priorExpiry, newExpiry time.Time, invoiceID string) (bool, error) {
	// An invoice without an id cannot be deduplicated; gate on the
	// expiry alone in that case.
	query := `UPDATE licenses
		SET expires_at = ?, status = ?, last_invoice_id = ?, updated_at = ?
		WHERE stripe_subscription_id = ? AND expires_at = ? AND (? = '' OR last_invoice_id <> ?)`

	res, err := s.db.ExecContext(ctx, query,
		newExpiry.UTC(),
		models.StatusActive,
		invoiceID,
		time.Now().UTC(),
		subscriptionID,
		priorExpiry.UTC(),
		invoiceID,
		invoiceID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to extend license: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
