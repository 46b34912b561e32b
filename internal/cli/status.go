package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/autoreply/internal/config"
	"github.com/soyeahso/autoreply/internal/store"
	"github.com/soyeahso/autoreply/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show autoresponder status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("autoreply %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:   %s\n", paths.Config)
			fmt.Printf("Data:     %s\n", paths.Data)
			fmt.Printf("Sessions: %s\n", paths.Sessions)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Config:   not found (using defaults)")
				} else {
					fmt.Printf("Config:   error loading: %v\n", err)
				}
				return nil
			}
			paths.Resolve(&cfg)

			fmt.Printf("Gateway:  %s\n", cfg.Gateway.URL)
			if len(cfg.Accounts) > 0 {
				for _, acct := range cfg.Accounts {
					fmt.Printf("Account:  %s\n", acct)
				}
			} else {
				fmt.Println("Account:  (none configured)")
			}

			// Provider quota view from the database, falling back to config
			// when no database exists yet.
			if _, err := os.Stat(cfg.Database.Path); err == nil {
				db, err := store.Open(cfg.Database.Path, log)
				if err != nil {
					return fmt.Errorf("opening database: %w", err)
				}
				defer db.Close()

				providers, err := store.NewProviderStore(db).ListActive()
				if err != nil {
					return fmt.Errorf("listing providers: %w", err)
				}
				for _, p := range providers {
					fmt.Printf("Provider: id=%s kind=%s priority=%d usage=%d/%d\n",
						p.ID, p.Kind, p.Priority, p.UsedToday, p.DailyLimit)
				}
				if len(providers) == 0 {
					fmt.Println("Provider: (none active)")
				}
			} else {
				for _, p := range cfg.Providers {
					fmt.Printf("Provider: id=%s kind=%s priority=%d (not seeded yet)\n",
						p.ID, p.Kind, p.Priority)
				}
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
