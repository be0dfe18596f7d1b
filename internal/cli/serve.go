package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hawkfin/hawkd/internal/agent"
	"github.com/hawkfin/hawkd/internal/config"
	"github.com/hawkfin/hawkd/internal/dashboard"
	"github.com/hawkfin/hawkd/internal/gateway"
	"github.com/hawkfin/hawkd/internal/ident"
	"github.com/hawkfin/hawkd/internal/logging"
	"github.com/hawkfin/hawkd/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hawkd gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if cfg.Logging.ConsoleStyle == "json" {
				level := logLevel
				if level == "" {
					level = cfg.Logging.Level
				}
				log = logging.NewJSON(nil, level)
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			dbPath := cfg.Store.Path
			if dbPath == "" {
				dbPath = paths.DB
			}
			db, err := store.Open(dbPath, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			log.Info().Str("path", dbPath).Msg("session store ready")

			sessions := store.NewSessionStore(db)
			positions := store.NewPositionStore(db)
			gen := ident.NewGenerator(store.NewCounterStore(db), log)

			client := agent.NewClient(cfg.Agent, log)
			engine := agent.NewEngine(client, agent.PolicyFromConfig(cfg.Agent.Retry), log)
			svc := agent.NewService(gen, sessions, engine, log)
			stats := agent.NewStatsService(sessions)

			// The refresher publishes into the gateway; the gateway serves
			// the refresher's snapshots. Wire through a late-bound pointer.
			var srv *gateway.Server
			agg := dashboard.NewAggregator(cfg.Dashboard.TopEntities, log)
			refresher := dashboard.NewRefresher(agg, positions, db.Notifier(),
				func(m *dashboard.Metrics) {
					if srv != nil {
						srv.Broadcast(gateway.EventMetricsUpdated, m)
					}
				}, log)

			srv = gateway.New(cfg.Gateway, log,
				gateway.WithAgent(svc),
				gateway.WithSessions(sessions),
				gateway.WithStats(stats),
				gateway.WithDashboard(refresher),
			)

			unsubscribe := db.Notifier().Subscribe(store.TableSessions, func(ev store.ChangeEvent) {
				srv.Broadcast(gateway.EventSessionChanged, map[string]string{
					"table": ev.Table,
					"op":    ev.Op,
					"key":   ev.Key,
				})
			})
			defer unsubscribe()

			if cfg.Dashboard.CurrencyFilter != "" {
				if _, err := refresher.SetFilter(cfg.Dashboard.CurrencyFilter); err != nil {
					log.Warn().Err(err).Msg("applying configured currency filter failed")
				}
			}
			if err := refresher.Start(cfg.Dashboard.RefreshCron); err != nil {
				return err
			}
			defer refresher.Stop()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
