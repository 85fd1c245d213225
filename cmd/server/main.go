/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the kyudo club console server.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve         Run the HTTP server (default when no command is given)
  migrate       Apply the database schema and exit
  seed          Reset the database and load a demo scenario
  create-admin  Create an administrator account

STARTUP SEQUENCE (serve):
  1. Load and validate configuration (config.Load)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Start the audit dispatcher
  5. Create API handler and router
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Drain the audit queue
  4. Close database connection

EXAMPLES:
  # Run with a config file
  ./server --config=./kyudo.yaml

  # Ephemeral database with demo data
  KYUDO_DB=":memory:" KYUDO_ENABLE_SCENARIOS=true ./server

  # Bootstrap the first administrator
  ./server create-admin --email=admin@club.example --password=... --name=管理者

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/kyudo-console/api"
	"github.com/warp/kyudo-console/audit"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/config"
	"github.com/warp/kyudo-console/logging"
	"github.com/warp/kyudo-console/membership"
	"github.com/warp/kyudo-console/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is what every command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *sqlite.Store
	issuer *auth.Issuer
	audit  *audit.Dispatcher
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "kyudo-console",
		Short:         "Kyudo club management console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(configPath, func(a *app) error { return runServer(cmd.Context(), a) })
		},
	}
	root.RunE = serve.RunE

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(configPath, func(a *app) error {
				if err := a.store.Migrate(); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				a.logger.Info("schema applied", zap.String("db", a.cfg.DatabasePath))
				return nil
			})
		},
	}

	var scenarioID string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Reset the database and load a demo scenario",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(configPath, func(a *app) error {
				h := a.handler()
				return h.ApplyScenario(cmd.Context(), scenarioID)
			})
		},
	}
	seed.Flags().StringVar(&scenarioID, "scenario", "club-basics", "scenario id")

	var email, password, name string
	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(configPath, func(a *app) error {
				members := membership.NewService(a.store, a.issuer, a.audit)
				p, err := members.CreateAccount(cmd.Context(), auth.Identity{Role: auth.RoleAdmin}, membership.NewAccount{
					Email:       email,
					Password:    password,
					DisplayName: name,
					Role:        auth.RoleAdmin,
				})
				if err != nil {
					return err
				}
				a.logger.Info("administrator created", zap.String("account_id", p.AccountID), zap.String("email", p.Email))
				return nil
			})
		},
	}
	createAdmin.Flags().StringVar(&email, "email", "", "login email")
	createAdmin.Flags().StringVar(&password, "password", "", "initial password")
	createAdmin.Flags().StringVar(&name, "name", "Administrator", "display name")
	_ = createAdmin.MarkFlagRequired("email")
	_ = createAdmin.MarkFlagRequired("password")

	root.AddCommand(serve, migrate, seed, createAdmin)
	return root
}

// withApp loads configuration, opens the store and runs fn. Everything is
// released when fn returns.
func withApp(configPath string, fn func(a *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}

	dispatcher := audit.NewDispatcher(store, logger, cfg.AuditBuffer)
	dispatcher.Start()
	defer dispatcher.Stop()

	return fn(&app{cfg: cfg, logger: logger, store: store, issuer: issuer, audit: dispatcher})
}

func (a *app) handler() *api.Handler {
	return api.NewHandler(api.Deps{
		Store:        a.store,
		Issuer:       a.issuer,
		Audit:        a.audit,
		Logger:       a.logger,
		SecureCookie: a.cfg.SecureCookie,
	})
}

func runServer(ctx context.Context, a *app) error {
	router := api.NewRouter(a.handler(), api.RouterOptions{
		AllowedOrigins:  a.cfg.AllowedOrigins,
		EnableScenarios: a.cfg.EnableScenarios,
		Logger:          a.logger,
	})

	server := &http.Server{
		Addr:         a.cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.String("addr", a.cfg.Addr),
			zap.Bool("scenarios", a.cfg.EnableScenarios),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
