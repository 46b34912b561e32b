package store

import (
	"fmt"
	"time"

	"github.com/soyeahso/autoreply/internal/domain"
)

// AccountStore persists account connection status fields.
type AccountStore struct {
	db *DB
}

// NewAccountStore creates an account store using the given database.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

// UpdateStatus records the connection state and, when known, the phone
// identity of an account. The row is created on first update.
func (s *AccountStore) UpdateStatus(accountID string, state domain.ConnState, phone string) error {
	_, err := s.db.sql.Exec(`
		INSERT INTO accounts (id, status, phone, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			phone = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE accounts.phone END,
			updated_at = excluded.updated_at`,
		accountID, string(state), phone)
	if err != nil {
		return fmt.Errorf("updating account %q status: %w", accountID, err)
	}
	return nil
}

// SaveChallenge stores the latest credential-challenge artifact (QR payload)
// for operator consumption.
func (s *AccountStore) SaveChallenge(accountID, artifact string) error {
	_, err := s.db.sql.Exec(`
		INSERT INTO accounts (id, challenge, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			challenge = excluded.challenge,
			updated_at = excluded.updated_at`,
		accountID, artifact)
	if err != nil {
		return fmt.Errorf("saving challenge for %q: %w", accountID, err)
	}
	return nil
}

// TouchActivity records the last send/receive activity time for an account.
func (s *AccountStore) TouchActivity(accountID string, t time.Time) error {
	_, err := s.db.sql.Exec(`UPDATE accounts SET last_activity = ? WHERE id = ?`,
		t.UTC().Format(time.DateTime), accountID)
	if err != nil {
		return fmt.Errorf("touching account %q activity: %w", accountID, err)
	}
	return nil
}
