package store

import (
	"fmt"

	"github.com/soyeahso/autoreply/internal/domain"
)

// CatalogStore reads the active service/package/payment catalog used for
// system prompt construction.
type CatalogStore struct {
	db *DB
}

// NewCatalogStore creates a catalog store using the given database.
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// ActiveServices returns all active services.
func (s *CatalogStore) ActiveServices() ([]domain.Service, error) {
	rows, err := s.db.sql.Query(`SELECT id, name, description FROM services WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	defer rows.Close()

	var out []domain.Service
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// ActivePackages returns all active packages.
func (s *CatalogStore) ActivePackages() ([]domain.Package, error) {
	rows, err := s.db.sql.Query(`
		SELECT id, service_id, name, price, currency, description
		FROM packages WHERE active = 1 ORDER BY service_id, price`)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	defer rows.Close()

	var out []domain.Package
	for rows.Next() {
		var p domain.Package
		if err := rows.Scan(&p.ID, &p.ServiceID, &p.Name, &p.Price, &p.Currency, &p.Description); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActivePaymentMethods returns all active payment methods.
func (s *CatalogStore) ActivePaymentMethods() ([]domain.PaymentMethod, error) {
	rows, err := s.db.sql.Query(`SELECT id, name, account, holder FROM payment_methods WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing payment methods: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentMethod
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Account, &m.Holder); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
