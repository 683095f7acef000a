/*
main.go - Application entry point

PURPOSE:
  Initializes and runs the billing engine. Three commands:

    billingd serve    Run the HTTP service with the reconciliation sweep
    billingd export   Write the board analytics CSV to stdout or a file
    billingd sync     One-shot time-tracking sync for a single card

STARTUP SEQUENCE (serve):
  1. Load .env (TOGGL_API_TOKEN) and the TOML config file
  2. Initialize the SQLite store
  3. Build the reconciler from the configured tables
  4. Start the reconciliation sweeper and the HTTP server
  5. On SIGINT/SIGTERM: stop the sweeper, drain requests (30s), close
     the database

CONFIGURATION:
  --config   Path to TOML config (tables, port, sweep interval)
  --db       SQLite database path; overrides the config file;
             use ":memory:" for an in-memory database
  Secrets come from the environment, loaded from .env when present.
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/billing-engine/analytics"
	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/config"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/store/sqlite"
)

var (
	configPath string
	dbPath     string
)

func main() {
	root := &cobra.Command{
		Use:   "billingd",
		Short: "Billing ledger engine for task-board cards",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "billing.toml", "path to TOML config file")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")

	root.AddCommand(serveCmd(), exportCmd(), syncCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and wires the service.
func setup(log *zap.Logger) (config.Config, *billing.Service, *sqlite.Store, error) {
	// Best-effort: a missing .env just means the token comes from the
	// real environment (or sync stays disabled).
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if dbPath != "" {
		cfg.Server.DBPath = dbPath
	}

	store, err := sqlite.New(cfg.Server.DBPath)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	service := billing.New(store, store, cfg.Reconciler(), log)
	service.Toggl = cfg.TogglClient()
	if cfg.Toggl.SyncWindowDays > 0 {
		service.SyncWindow = time.Duration(cfg.Toggl.SyncWindowDays) * 24 * time.Hour
	}
	return cfg, service, store, nil
}

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg, service, store, err := setup(log)
			if err != nil {
				return err
			}
			defer store.Close()

			if port != 0 {
				cfg.Server.Port = port
			}

			handler := api.NewHandler(service, log)
			router := api.NewRouter(handler, cfg.Server.CORSOrigins)

			sweeper := api.NewSweeper(service, cfg.Server.SweepInterval.Duration, log)
			sweeper.Start()
			defer sweeper.Stop()

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("server starting", zap.Int("port", cfg.Server.Port))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			log.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	return cmd
}

func exportCmd() *cobra.Command {
	var out, label, status string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the board analytics CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := zap.NewNop()
			_, service, store, err := setup(log)
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := analytics.Collect(cmd.Context(), service.Cards, service.Records, service.Reconciler)
			if err != nil {
				return err
			}
			rows = analytics.Apply(rows, analytics.Filter{Label: label, Status: analytics.Status(status)})

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return analytics.WriteCSV(w, rows)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&label, "label", "", "filter by billing label")
	cmd.Flags().StringVar(&status, "status", "", "filter by status: active|paid")
	return cmd
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <card-id>",
		Short: "Pull time-tracking hours for one card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()

			_, service, store, err := setup(log)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := service.SyncHours(cmd.Context(), ledger.CardID(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d entries: %s hours @ $%s/h = $%s\n",
				result.Matched,
				result.Hours.StringFixed(2),
				result.Rate.String(),
				result.TimeValue.String())
			return nil
		},
	}
	return cmd
}
