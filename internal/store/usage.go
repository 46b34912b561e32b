package store

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/soyeahso/autoreply/internal/domain"
)

// UsageStore appends per-call usage log rows.
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a usage store using the given database.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// Append records one generation result.
func (s *UsageStore) Append(res domain.GenerationResult) error {
	_, err := s.db.sql.Exec(`
		INSERT INTO usage_logs (id, provider_id, provider_kind, input_tokens, output_tokens, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), res.ProviderID, string(res.ProviderKind),
		res.InputTokens, res.OutputTokens, res.LatencyMs)
	if err != nil {
		return fmt.Errorf("appending usage log: %w", err)
	}
	return nil
}

// CountForProvider returns how many usage rows exist for a provider.
func (s *UsageStore) CountForProvider(providerID string) (int, error) {
	var n int
	err := s.db.sql.QueryRow(`SELECT COUNT(*) FROM usage_logs WHERE provider_id = ?`, providerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting usage for %q: %w", providerID, err)
	}
	return n, nil
}

// AuditStore appends audit log rows.
type AuditStore struct {
	db *DB
}

// NewAuditStore creates an audit store using the given database.
func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append records one audit entry.
func (s *AuditStore) Append(actor, action, detail string) error {
	_, err := s.db.sql.Exec(`INSERT INTO audit_logs (actor, action, detail) VALUES (?, ?, ?)`,
		actor, action, detail)
	if err != nil {
		return fmt.Errorf("appending audit log: %w", err)
	}
	return nil
}
