// Package orchestrator produces generated replies by trying configured
// providers in priority order under per-provider daily quotas.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/soyeahso/autoreply/internal/logging"
	"github.com/soyeahso/autoreply/internal/provider"
)

// ErrAllProvidersExhausted is returned when no provider has remaining quota.
var ErrAllProvidersExhausted = errors.New("orchestrator: all providers exhausted")

// GenerationError is returned when the retry budget runs out.
type GenerationError struct {
	Attempts int
	LastErr  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("orchestrator: generation failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *GenerationError) Unwrap() error { return e.LastErr }

// ProviderStore is the persistence surface the orchestrator consumes.
type ProviderStore interface {
	ListActive() ([]domain.ProviderConfig, error)
	IncrementUsage(id string) error
	ResetUsage(id string, day time.Time) error
}

// UsageStore records per-call usage rows.
type UsageStore interface {
	Append(res domain.GenerationResult) error
}

// Catalog supplies the active offering rendered into the system prompt.
type Catalog interface {
	ActiveServices() ([]domain.Service, error)
	ActivePackages() ([]domain.Package, error)
	ActivePaymentMethods() ([]domain.PaymentMethod, error)
}

// Config tunes the orchestrator.
type Config struct {
	BasePrompt   string
	MaxTokens    int
	Temperature  *float64
	MaxAttempts  int // retry budget per Generate call, default 3
	HistoryLimit int // conversation turns handed to the provider, default 10
}

// Conversation is the context a reply is generated for.
type Conversation struct {
	Customer domain.CustomerContext
	Turns    []domain.Turn
}

// ProviderStat is one provider's quota view, for operational inspection.
type ProviderStat struct {
	ID       string              `json:"id"`
	Kind     domain.ProviderKind `json:"kind"`
	Priority int                 `json:"priority"`
	Used     int                 `json:"used"`
	Limit    int                 `json:"limit"`
	Tripped  bool                `json:"tripped"`
}

// entry is one pool slot. tripped marks a provider that failed during a call;
// it stays excluded until the next reload or daily reset so one bad backend
// cannot burn the whole retry budget, without corrupting the quota counter.
type entry struct {
	cfg     domain.ProviderConfig
	client  provider.Client
	tripped bool
}

// Orchestrator holds the provider pool and runs the failover generation loop.
type Orchestrator struct {
	cfg       Config
	providers ProviderStore
	usage     UsageStore
	catalog   Catalog
	newClient func(domain.ProviderConfig) (provider.Client, error)
	log       *logging.Logger

	mu   sync.Mutex
	pool []*entry
	now  func() time.Time
}

// New creates an orchestrator. Call Reload before the first Generate.
func New(cfg Config, providers ProviderStore, usage UsageStore, catalog Catalog, log *logging.Logger) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Orchestrator{
		cfg:       cfg,
		providers: providers,
		usage:     usage,
		catalog:   catalog,
		newClient: provider.New,
		log:       log.Sub("orchestrator"),
		now:       time.Now,
	}
}

// Reload rebuilds the in-memory pool from persistence, ordered by priority
// descending. Tripped markers are cleared.
func (o *Orchestrator) Reload() error {
	configs, err := o.providers.ListActive()
	if err != nil {
		return fmt.Errorf("orchestrator: loading providers: %w", err)
	}

	pool := make([]*entry, 0, len(configs))
	for _, cfg := range configs {
		client, err := o.newClient(cfg)
		if err != nil {
			o.log.Warn().Str("provider", cfg.ID).Err(err).Msg("skipping provider")
			continue
		}
		pool = append(pool, &entry{cfg: cfg, client: client})
	}

	o.mu.Lock()
	o.pool = pool
	o.mu.Unlock()

	o.log.Info().Int("providers", len(pool)).Msg("provider pool reloaded")
	return nil
}

// Generate produces a reply for the conversation, failing over across
// providers. It returns ErrAllProvidersExhausted when no provider has quota
// left, or a GenerationError once the retry budget is spent.
func (o *Orchestrator) Generate(ctx context.Context, convo Conversation) (*domain.GenerationResult, error) {
	system, err := o.buildSystemPrompt(convo.Customer)
	if err != nil {
		return nil, err
	}

	history := convo.Turns
	if len(history) > o.cfg.HistoryLimit {
		history = history[len(history)-o.cfg.HistoryLimit:]
	}

	req := provider.Request{
		System:      system,
		History:     history,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		ent := o.reserve()
		if ent == nil {
			// Nothing left to try; further attempts cannot succeed.
			return nil, ErrAllProvidersExhausted
		}

		res, err := ent.client.Generate(ctx, req)
		if err != nil {
			lastErr = err
			o.trip(ent)
			o.log.Warn().
				Str("provider", ent.cfg.ID).
				Int("attempt", attempt).
				Err(err).
				Msg("provider failed, trying next")
			continue
		}

		if err := o.usage.Append(*res); err != nil {
			o.log.Error().Str("provider", ent.cfg.ID).Err(err).Msg("recording usage failed")
		}
		if err := o.providers.IncrementUsage(ent.cfg.ID); err != nil {
			o.log.Error().Str("provider", ent.cfg.ID).Err(err).Msg("persisting usage counter failed")
		}

		o.log.Info().
			Str("provider", ent.cfg.ID).
			Int("inputTokens", res.InputTokens).
			Int("outputTokens", res.OutputTokens).
			Int64("latencyMs", res.LatencyMs).
			Msg("response generated")
		return res, nil
	}

	return nil, &GenerationError{Attempts: o.cfg.MaxAttempts, LastErr: lastErr}
}

// reserve picks the highest-priority available provider and counts the
// attempt against its in-memory quota in the same critical section, so two
// concurrent calls cannot both take a provider's last slot.
func (o *Orchestrator) reserve() *entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ent := range o.pool {
		if ent.tripped || ent.cfg.UsedToday >= ent.cfg.DailyLimit {
			continue
		}
		ent.cfg.UsedToday++
		return ent
	}
	return nil
}

func (o *Orchestrator) trip(ent *entry) {
	o.mu.Lock()
	ent.tripped = true
	o.mu.Unlock()
}

// ResetStale zeroes the persisted counters of every active provider whose
// last reset predates the current calendar day, then reloads the pool. It
// scans persistence, not the in-memory pool, so providers skipped during
// Reload are reset too.
func (o *Orchestrator) ResetStale() error {
	today := o.now().UTC().Truncate(24 * time.Hour)

	configs, err := o.providers.ListActive()
	if err != nil {
		return fmt.Errorf("orchestrator: loading providers: %w", err)
	}

	var stale []string
	for _, cfg := range configs {
		if cfg.LastReset.UTC().Truncate(24 * time.Hour).Before(today) {
			stale = append(stale, cfg.ID)
		}
	}

	for _, id := range stale {
		if err := o.providers.ResetUsage(id, today); err != nil {
			o.log.Error().Str("provider", id).Err(err).Msg("daily reset failed")
			continue
		}
		o.log.Info().Str("provider", id).Msg("daily quota reset")
	}

	if len(stale) == 0 {
		return nil
	}
	return o.Reload()
}

// Stats returns the current quota view of the pool.
func (o *Orchestrator) Stats() []ProviderStat {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := make([]ProviderStat, 0, len(o.pool))
	for _, ent := range o.pool {
		stats = append(stats, ProviderStat{
			ID:       ent.cfg.ID,
			Kind:     ent.cfg.Kind,
			Priority: ent.cfg.Priority,
			Used:     ent.cfg.UsedToday,
			Limit:    ent.cfg.DailyLimit,
			Tripped:  ent.tripped,
		})
	}
	return stats
}
