package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/autoreply/internal/config"
	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/soyeahso/autoreply/internal/events"
	"github.com/soyeahso/autoreply/internal/orchestrator"
	"github.com/soyeahso/autoreply/internal/protocol"
	"github.com/soyeahso/autoreply/internal/ratelimit"
	"github.com/soyeahso/autoreply/internal/responder"
	"github.com/soyeahso/autoreply/internal/session"
	"github.com/soyeahso/autoreply/internal/store"
	"github.com/soyeahso/autoreply/internal/supervisor"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the autoresponder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			paths.Resolve(&cfg)

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			db, err := store.Open(cfg.Database.Path, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			accountStore := store.NewAccountStore(db)
			providerStore := store.NewProviderStore(db)
			usageStore := store.NewUsageStore(db)
			auditStore := store.NewAuditStore(db)
			catalogStore := store.NewCatalogStore(db)

			// Seed configured providers. Existing rows keep their usage counters.
			for _, p := range cfg.Providers {
				err := providerStore.Upsert(domain.ProviderConfig{
					ID:         p.ID,
					Kind:       domain.ProviderKind(p.Kind),
					Credential: p.APIKey,
					Model:      p.Model,
					Endpoint:   p.Endpoint,
					DailyLimit: p.DailyLimit,
					Priority:   p.Priority,
					Active:     true,
				})
				if err != nil {
					return fmt.Errorf("seeding provider %q: %w", p.ID, err)
				}
			}

			sessions, err := session.NewStore(cfg.Sessions.Dir, []byte(cfg.Sessions.Secret), log)
			if err != nil {
				return err
			}

			bus := events.NewBus(log)
			defer bus.Close()
			window := ratelimit.New(
				time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
				cfg.RateLimit.MaxPerWindow,
			)

			orch := orchestrator.New(orchestrator.Config{
				BasePrompt:   cfg.Orchestrator.BasePrompt,
				MaxTokens:    cfg.Orchestrator.MaxTokens,
				Temperature:  cfg.Orchestrator.Temperature,
				MaxAttempts:  cfg.Orchestrator.MaxAttempts,
				HistoryLimit: cfg.Orchestrator.HistoryLimit,
			}, providerStore, usageStore, catalogStore, log)
			if err := orch.Reload(); err != nil {
				return fmt.Errorf("loading provider pool: %w", err)
			}

			sup := supervisor.New(supervisor.Options{
				Config: supervisor.Config{
					BaseDelay:   time.Duration(cfg.Reconnect.BaseDelayMs) * time.Millisecond,
					MaxAttempts: cfg.Reconnect.MaxAttempts,
				},
				Dialer: &protocol.WSDialer{
					URL:    cfg.Gateway.URL,
					Origin: cfg.Gateway.Origin,
					Log:    log,
				},
				Sessions: sessions,
				Accounts: accountStore,
				Bus:      bus,
				Window:   window,
				Log:      log,
			})

			sweeper := orchestrator.NewSweeper(orch, window, log)
			if err := sweeper.Start(); err != nil {
				return fmt.Errorf("starting maintenance sweep: %w", err)
			}
			defer sweeper.Stop()

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			resp := responder.New(orch, sup, log)
			go resp.Run(ctx, bus.Subscribe(256))

			for _, acct := range cfg.Accounts {
				if err := sup.Initialize(ctx, acct); err != nil {
					log.Error().Err(err).Str("account", acct).Msg("account initialization failed")
				}
			}
			if err := auditStore.Append("system", "serve.start", fmt.Sprintf("%d account(s)", len(cfg.Accounts))); err != nil {
				log.Warn().Err(err).Msg("recording start audit entry")
			}

			log.Info().
				Int("accounts", len(cfg.Accounts)).
				Int("providers", len(cfg.Providers)).
				Str("gateway", cfg.Gateway.URL).
				Msg("autoresponder running")

			<-ctx.Done()
			log.Info().Msg("shutting down")

			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := sup.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("shutdown finished with errors")
			}
			if err := auditStore.Append("system", "serve.stop", ""); err != nil {
				log.Warn().Err(err).Msg("recording stop audit entry")
			}
			return nil
		},
	}

	return cmd
}
