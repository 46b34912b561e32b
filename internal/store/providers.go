package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/soyeahso/autoreply/internal/domain"
)

// dateOnly is the storage format for provider reset dates.
const dateOnly = "2006-01-02"

// ProviderStore persists generation provider configs and their quota counters.
type ProviderStore struct {
	db *DB
}

// NewProviderStore creates a provider store using the given database.
func NewProviderStore(db *DB) *ProviderStore {
	return &ProviderStore{db: db}
}

// ListActive returns all active providers ordered by priority descending.
func (s *ProviderStore) ListActive() ([]domain.ProviderConfig, error) {
	rows, err := s.db.sql.Query(`
		SELECT id, kind, credential, model, endpoint, daily_limit, used_today, priority, active, last_reset
		FROM providers WHERE active = 1 ORDER BY priority DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}
	defer rows.Close()

	var configs []domain.ProviderConfig
	for rows.Next() {
		cfg, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Get returns one provider by ID.
func (s *ProviderStore) Get(id string) (*domain.ProviderConfig, error) {
	row := s.db.sql.QueryRow(`
		SELECT id, kind, credential, model, endpoint, daily_limit, used_today, priority, active, last_reset
		FROM providers WHERE id = ?`, id)
	cfg, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("provider %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Upsert inserts or replaces a provider row. Used for config-seeded providers.
func (s *ProviderStore) Upsert(cfg domain.ProviderConfig) error {
	lastReset := cfg.LastReset
	if lastReset.IsZero() {
		lastReset = time.Now().UTC()
	}
	_, err := s.db.sql.Exec(`
		INSERT INTO providers (id, kind, credential, model, endpoint, daily_limit, used_today, priority, active, last_reset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			credential = excluded.credential,
			model = excluded.model,
			endpoint = excluded.endpoint,
			daily_limit = excluded.daily_limit,
			priority = excluded.priority,
			active = excluded.active`,
		cfg.ID, string(cfg.Kind), cfg.Credential, cfg.Model, cfg.Endpoint,
		cfg.DailyLimit, cfg.UsedToday, cfg.Priority, boolInt(cfg.Active),
		lastReset.Format(dateOnly))
	if err != nil {
		return fmt.Errorf("upserting provider %q: %w", cfg.ID, err)
	}
	return nil
}

// IncrementUsage bumps the persisted used_today counter after a successful call.
func (s *ProviderStore) IncrementUsage(id string) error {
	_, err := s.db.sql.Exec(`UPDATE providers SET used_today = used_today + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing usage for %q: %w", id, err)
	}
	return nil
}

// ResetUsage zeroes used_today and advances last_reset for one provider.
func (s *ProviderStore) ResetUsage(id string, day time.Time) error {
	_, err := s.db.sql.Exec(`UPDATE providers SET used_today = 0, last_reset = ? WHERE id = ?`,
		day.Format(dateOnly), id)
	if err != nil {
		return fmt.Errorf("resetting usage for %q: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(r rowScanner) (domain.ProviderConfig, error) {
	var cfg domain.ProviderConfig
	var kind, lastReset string
	var active int
	err := r.Scan(&cfg.ID, &kind, &cfg.Credential, &cfg.Model, &cfg.Endpoint,
		&cfg.DailyLimit, &cfg.UsedToday, &cfg.Priority, &active, &lastReset)
	if err != nil {
		return cfg, err
	}
	cfg.Kind = domain.ProviderKind(kind)
	cfg.Active = active != 0
	cfg.LastReset, _ = time.Parse(dateOnly, lastReset)
	return cfg, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
