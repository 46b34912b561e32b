package orchestrator

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/soyeahso/autoreply/internal/logging"
	"github.com/soyeahso/autoreply/internal/ratelimit"
)

// idleEviction is how long a recipient may stay in the rate window with no
// traffic before the sweep drops its entry.
const idleEviction = time.Hour

// Sweeper runs the hourly maintenance pass: daily quota resets for providers
// whose reset date went stale, and rate-window eviction for idle recipients.
type Sweeper struct {
	orch   *Orchestrator
	window *ratelimit.Window
	cron   *cron.Cron
	log    *logging.Logger
}

// NewSweeper creates the maintenance sweeper.
func NewSweeper(orch *Orchestrator, window *ratelimit.Window, log *logging.Logger) *Sweeper {
	return &Sweeper{
		orch:   orch,
		window: window,
		cron:   cron.New(),
		log:    log.Sub("sweep"),
	}
}

// Start registers the hourly job and starts the cron ticker.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@hourly", s.run); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Msg("maintenance sweep scheduled hourly")
	return nil
}

// Stop stops the cron ticker.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

func (s *Sweeper) run() {
	if err := s.orch.ResetStale(); err != nil {
		s.log.Error().Err(err).Msg("quota reset sweep failed")
	}
	if s.window != nil {
		if n := s.window.EvictIdle(idleEviction); n > 0 {
			s.log.Debug().Int("evicted", n).Msg("rate window entries evicted")
		}
	}
}
