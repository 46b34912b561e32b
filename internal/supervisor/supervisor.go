// Package supervisor owns the live protocol connections. It keeps at most one
// session per account, reconnects transient drops with linear backoff, and
// gates outbound sends behind the per-recipient rate window.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/soyeahso/autoreply/internal/events"
	"github.com/soyeahso/autoreply/internal/ingest"
	"github.com/soyeahso/autoreply/internal/logging"
	"github.com/soyeahso/autoreply/internal/protocol"
	"github.com/soyeahso/autoreply/internal/ratelimit"
	"github.com/soyeahso/autoreply/internal/session"
)

var (
	// ErrNotConnected is returned when a send targets an account that has no
	// connected session.
	ErrNotConnected = errors.New("supervisor: account not connected")
	// ErrRateLimited is returned when the recipient's send window is full.
	ErrRateLimited = errors.New("supervisor: recipient rate limited")
	// ErrSendFailed wraps dispatch failures from the underlying link.
	ErrSendFailed = errors.New("supervisor: send failed")
	// ErrUnknownAccount is returned when an operation names an account the
	// supervisor is not managing.
	ErrUnknownAccount = errors.New("supervisor: unknown account")
	// ErrShuttingDown is returned when new sessions are refused during shutdown.
	ErrShuttingDown = errors.New("supervisor: shutting down")
)

const logoutTimeout = 5 * time.Second

// AccountStore is the persistence surface the supervisor needs for account
// status bookkeeping.
type AccountStore interface {
	UpdateStatus(accountID string, state domain.ConnState, phone string) error
	SaveChallenge(accountID, artifact string) error
	TouchActivity(accountID string, t time.Time) error
}

// Config tunes reconnect behaviour.
type Config struct {
	// BaseDelay is multiplied by the attempt number to produce each
	// reconnect wait.
	BaseDelay time.Duration
	// MaxAttempts caps consecutive reconnect attempts before the account is
	// marked disconnected for good.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Options carries the supervisor's collaborators.
type Options struct {
	Config   Config
	Dialer   protocol.Dialer
	Sessions *session.Store
	Accounts AccountStore
	Bus      *events.Bus
	Window   *ratelimit.Window
	Log      *logging.Logger
}

// instance is one managed account connection. Its fields are guarded by the
// supervisor mutex.
type instance struct {
	accountID string
	link      protocol.Link
	session   domain.AccountSession

	// ctx is cancelled when the instance is replaced, disconnected or the
	// supervisor shuts down, which abandons any pending reconnect wait.
	ctx    context.Context
	cancel context.CancelFunc
}

// Supervisor manages protocol connections for many accounts.
type Supervisor struct {
	cfg      Config
	dialer   protocol.Dialer
	sessions *session.Store
	accounts AccountStore
	bus      *events.Bus
	window   *ratelimit.Window
	pipeline *ingest.Pipeline
	log      *logging.Logger

	mu           sync.Mutex
	instances    map[string]*instance
	shuttingDown bool

	now         func() time.Time
	typingDelay func() time.Duration

	// sleep waits out one reconnect delay. It reports false when ctx is
	// cancelled before the delay elapses.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a supervisor. No connections are opened until Initialize.
func New(opts Options) *Supervisor {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Supervisor{
		cfg:       opts.Config.withDefaults(),
		dialer:    opts.Dialer,
		sessions:  opts.Sessions,
		accounts:  opts.Accounts,
		bus:       opts.Bus,
		window:    opts.Window,
		pipeline:  ingest.New(log),
		log:       log.Sub("supervisor"),
		instances: make(map[string]*instance),
		now:       time.Now,
		typingDelay: func() time.Duration {
			return time.Second + rand.N(2*time.Second)
		},
		sleep: func(ctx context.Context, d time.Duration) bool {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(d):
				return true
			}
		},
	}
}

// Initialize opens (or reopens) the connection for an account. Calling it for
// an account that already has a session tears the old session down first, so
// re-initialization is always safe. A failure on the first open leaves the
// account disconnected and is returned to the caller; later drops are handled
// by the reconnect loop instead.
func (s *Supervisor) Initialize(ctx context.Context, accountID string) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	prev := s.instances[accountID]
	delete(s.instances, accountID)
	s.mu.Unlock()

	if prev != nil {
		s.log.Info().Str("account", accountID).Msg("replacing existing session")
		prev.cancel()
		if err := prev.link.Close(); err != nil {
			s.log.Debug().Err(err).Str("account", accountID).Msg("closing replaced link")
		}
	}

	material, err := s.sessions.LoadOrCreate(accountID)
	if err != nil {
		return fmt.Errorf("loading session material for %q: %w", accountID, err)
	}

	link, err := s.dialer.Dial(accountID, material)
	if err != nil {
		s.markDisconnected(accountID)
		return fmt.Errorf("dialing link for %q: %w", accountID, err)
	}

	ictx, cancel := context.WithCancel(context.Background())
	inst := &instance{
		accountID: accountID,
		link:      link,
		ctx:       ictx,
		cancel:    cancel,
		session: domain.AccountSession{
			AccountID: accountID,
			State:     domain.StateConnecting,
		},
	}

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		cancel()
		_ = link.Close()
		return ErrShuttingDown
	}
	s.instances[accountID] = inst
	s.mu.Unlock()

	if err := s.accounts.UpdateStatus(accountID, domain.StateConnecting, ""); err != nil {
		s.log.Warn().Err(err).Str("account", accountID).Msg("recording connecting status")
	}

	if err := link.Open(ctx); err != nil {
		s.drop(inst)
		cancel()
		_ = link.Close()
		s.markDisconnected(accountID)
		return fmt.Errorf("opening link for %q: %w", accountID, err)
	}

	s.log.Info().Str("account", accountID).Msg("session initializing")
	go s.eventLoop(inst, link)
	return nil
}

// Disconnect intentionally terminates an account's session. The server-side
// logout is best effort; local state is cleared regardless.
func (s *Supervisor) Disconnect(ctx context.Context, accountID string) error {
	s.mu.Lock()
	inst := s.instances[accountID]
	delete(s.instances, accountID)
	s.mu.Unlock()
	if inst == nil {
		return ErrUnknownAccount
	}

	inst.cancel()
	lctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	if err := inst.link.Logout(lctx); err != nil {
		s.log.Debug().Err(err).Str("account", accountID).Msg("logout failed, closing anyway")
	}
	cancel()
	if err := inst.link.Close(); err != nil {
		s.log.Debug().Err(err).Str("account", accountID).Msg("closing link")
	}

	s.markDisconnected(accountID)
	s.bus.Publish(events.Event{
		Type:      events.TypeDisconnected,
		AccountID: accountID,
		Reason:    domain.ReasonManual,
	})
	s.log.Info().Str("account", accountID).Msg("session disconnected on request")
	return nil
}

// Send delivers a text or media message from an account to a recipient. The
// account must be connected and the recipient's rate window must have room.
// A short typing simulation runs before dispatch; its failures never abort
// the send.
func (s *Supervisor) Send(ctx context.Context, accountID, recipient, text string, media *domain.MediaOptions) (*domain.SendResult, error) {
	s.mu.Lock()
	inst := s.instances[accountID]
	var link protocol.Link
	connected := false
	if inst != nil {
		link = inst.link
		connected = inst.session.State == domain.StateConnected
	}
	s.mu.Unlock()

	if inst == nil || !connected {
		return nil, ErrNotConnected
	}
	if !s.window.Allow(recipient) {
		s.log.Warn().Str("account", accountID).Str("to", recipient).Msg("send rejected by rate window")
		return nil, ErrRateLimited
	}

	s.simulateTyping(ctx, link, recipient)

	id, err := link.Send(ctx, protocol.Outbound{To: recipient, Text: text, Media: media})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.window.Record(recipient)
	now := s.now()
	s.mu.Lock()
	if s.instances[accountID] == inst {
		inst.session.LastActivity = now
	}
	s.mu.Unlock()
	if err := s.accounts.TouchActivity(accountID, now); err != nil {
		s.log.Warn().Err(err).Str("account", accountID).Msg("recording send activity")
	}

	s.log.Debug().Str("account", accountID).Str("to", recipient).Str("id", id).Msg("message sent")
	return &domain.SendResult{MessageID: id, Timestamp: now}, nil
}

// Session returns the supervisor's view of an account, if managed.
func (s *Supervisor) Session(accountID string) (domain.AccountSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.instances[accountID]
	if inst == nil {
		return domain.AccountSession{}, false
	}
	return inst.session, true
}

// ActiveAccounts returns the sorted IDs of all managed accounts.
func (s *Supervisor) ActiveAccounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.instances))
	for id := range s.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown terminates every session concurrently. One account's teardown
// failure does not stop the others; the first error is returned after all
// teardowns finish. New Initialize calls are refused from this point on.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	insts := make([]*instance, 0, len(s.instances))
	for _, inst := range s.instances {
		insts = append(insts, inst)
	}
	s.instances = make(map[string]*instance)
	s.mu.Unlock()

	var g errgroup.Group
	for _, inst := range insts {
		g.Go(func() error {
			inst.cancel()
			lctx, cancel := context.WithTimeout(ctx, logoutTimeout)
			if err := inst.link.Logout(lctx); err != nil {
				s.log.Debug().Err(err).Str("account", inst.accountID).Msg("logout during shutdown")
			}
			cancel()
			if err := inst.link.Close(); err != nil {
				return fmt.Errorf("closing link for %q: %w", inst.accountID, err)
			}
			s.markDisconnected(inst.accountID)
			return nil
		})
	}
	err := g.Wait()
	s.log.Info().Int("accounts", len(insts)).Msg("supervisor shut down")
	return err
}

// eventLoop consumes one link's event stream until it closes or the instance
// is superseded.
func (s *Supervisor) eventLoop(inst *instance, link protocol.Link) {
	for ev := range link.Events() {
		if !s.current(inst) {
			return
		}
		switch ev.Kind {
		case protocol.EventChallenge:
			s.handleChallenge(inst, ev)
		case protocol.EventOpen:
			s.handleOpen(inst, ev)
		case protocol.EventMessage:
			s.handleMessage(inst, ev)
		case protocol.EventClose:
			s.handleClose(inst, link, ev)
			return
		}
	}
}

func (s *Supervisor) handleChallenge(inst *instance, ev protocol.Event) {
	if err := s.accounts.SaveChallenge(inst.accountID, ev.QR); err != nil {
		s.log.Warn().Err(err).Str("account", inst.accountID).Msg("persisting challenge")
	}
	s.bus.Publish(events.Event{
		Type:      events.TypeQR,
		AccountID: inst.accountID,
		QR:        ev.QR,
	})
	s.log.Info().Str("account", inst.accountID).Msg("credential challenge received")
}

func (s *Supervisor) handleOpen(inst *instance, ev protocol.Event) {
	now := s.now()
	s.mu.Lock()
	inst.session.State = domain.StateConnected
	inst.session.ReconnectAttempts = 0
	inst.session.PhoneIdentity = ev.Identity
	inst.session.LastActivity = now
	s.mu.Unlock()

	if err := s.accounts.UpdateStatus(inst.accountID, domain.StateConnected, ev.Identity); err != nil {
		s.log.Warn().Err(err).Str("account", inst.accountID).Msg("recording connected status")
	}
	s.bus.Publish(events.Event{
		Type:      events.TypeConnected,
		AccountID: inst.accountID,
		Identity:  ev.Identity,
	})
	s.log.Info().Str("account", inst.accountID).Str("identity", ev.Identity).Msg("session connected")
}

func (s *Supervisor) handleMessage(inst *instance, ev protocol.Event) {
	msg, ok := s.pipeline.Parse(inst.accountID, ev.Message)
	if !ok {
		return
	}

	now := s.now()
	s.mu.Lock()
	inst.session.LastActivity = now
	s.mu.Unlock()

	raw, err := json.Marshal(ev.Message)
	if err != nil {
		raw = nil
	}
	s.bus.Publish(events.Event{
		Type:      events.TypeMessage,
		AccountID: inst.accountID,
		Message:   msg,
		Raw:       raw,
	})
}

func (s *Supervisor) handleClose(inst *instance, link protocol.Link, ev protocol.Event) {
	_ = link.Close()

	if ev.LoggedOut {
		s.drop(inst)
		inst.cancel()
		if err := s.sessions.Delete(inst.accountID); err != nil {
			s.log.Error().Err(err).Str("account", inst.accountID).Msg("purging session material")
		}
		s.markDisconnected(inst.accountID)
		s.bus.Publish(events.Event{
			Type:      events.TypeDisconnected,
			AccountID: inst.accountID,
			Reason:    domain.ReasonLoggedOut,
		})
		s.log.Warn().Str("account", inst.accountID).Int("code", ev.Code).Msg("logged out remotely, session purged")
		return
	}

	if !s.current(inst) {
		return
	}
	s.mu.Lock()
	inst.session.State = domain.StateConnecting
	s.mu.Unlock()
	s.log.Warn().Str("account", inst.accountID).Int("code", ev.Code).Msg("connection lost, scheduling reconnect")
	go s.reconnect(inst)
}

// reconnect retries the connection with a linearly growing delay until it
// succeeds, the attempt cap is reached, or the instance is abandoned.
func (s *Supervisor) reconnect(inst *instance) {
	for {
		s.mu.Lock()
		if s.shuttingDown || s.instances[inst.accountID] != inst {
			s.mu.Unlock()
			return
		}
		inst.session.ReconnectAttempts++
		attempt := inst.session.ReconnectAttempts
		s.mu.Unlock()

		if attempt > s.cfg.MaxAttempts {
			s.giveUp(inst)
			return
		}

		delay := time.Duration(attempt) * s.cfg.BaseDelay
		s.log.Info().
			Str("account", inst.accountID).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("reconnecting")

		if !s.sleep(inst.ctx, delay) {
			return
		}
		if !s.current(inst) {
			return
		}

		material, err := s.sessions.LoadOrCreate(inst.accountID)
		if err != nil {
			s.log.Error().Err(err).Str("account", inst.accountID).Msg("reloading session material")
			continue
		}
		link, err := s.dialer.Dial(inst.accountID, material)
		if err != nil {
			s.log.Warn().Err(err).Str("account", inst.accountID).Msg("reconnect dial failed")
			continue
		}
		if err := link.Open(inst.ctx); err != nil {
			_ = link.Close()
			s.log.Warn().Err(err).Str("account", inst.accountID).Msg("reconnect open failed")
			continue
		}

		s.mu.Lock()
		if s.shuttingDown || s.instances[inst.accountID] != inst {
			s.mu.Unlock()
			_ = link.Close()
			return
		}
		inst.link = link
		s.mu.Unlock()

		s.eventLoop(inst, link)
		return
	}
}

func (s *Supervisor) giveUp(inst *instance) {
	s.drop(inst)
	inst.cancel()
	s.markDisconnected(inst.accountID)
	s.bus.Publish(events.Event{
		Type:      events.TypeDisconnected,
		AccountID: inst.accountID,
		Reason:    domain.ReasonMaxReconnect,
	})
	s.log.Error().
		Str("account", inst.accountID).
		Int("attempts", s.cfg.MaxAttempts).
		Msg("reconnect attempts exhausted")
}

// simulateTyping announces presence around a send so replies do not appear
// instantaneous. Every step is best effort.
func (s *Supervisor) simulateTyping(ctx context.Context, link protocol.Link, to string) {
	if err := link.SendPresence(ctx, to, protocol.PresenceSubscribe); err != nil {
		s.log.Debug().Err(err).Str("to", to).Msg("presence subscribe failed")
	}
	if err := link.SendPresence(ctx, to, protocol.PresenceComposing); err != nil {
		s.log.Debug().Err(err).Str("to", to).Msg("presence composing failed")
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.typingDelay()):
	}
	if err := link.SendPresence(ctx, to, protocol.PresencePaused); err != nil {
		s.log.Debug().Err(err).Str("to", to).Msg("presence paused failed")
	}
}

// current reports whether inst is still the live instance for its account.
func (s *Supervisor) current(inst *instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.shuttingDown && s.instances[inst.accountID] == inst
}

// drop removes inst from the table if it is still the live instance.
func (s *Supervisor) drop(inst *instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instances[inst.accountID] == inst {
		delete(s.instances, inst.accountID)
	}
}

func (s *Supervisor) markDisconnected(accountID string) {
	s.mu.Lock()
	if inst := s.instances[accountID]; inst != nil {
		inst.session.State = domain.StateDisconnected
	}
	s.mu.Unlock()
	if err := s.accounts.UpdateStatus(accountID, domain.StateDisconnected, ""); err != nil {
		s.log.Warn().Err(err).Str("account", accountID).Msg("recording disconnected status")
	}
}
