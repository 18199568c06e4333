package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Simplici0/bakecost/internal/catalog"
	"github.com/Simplici0/bakecost/internal/config"
	"github.com/Simplici0/bakecost/internal/db"
	"github.com/Simplici0/bakecost/internal/logging"
	"github.com/Simplici0/bakecost/internal/metrics"
	"github.com/Simplici0/bakecost/internal/migrations"
	"github.com/Simplici0/bakecost/internal/seed"
	"github.com/Simplici0/bakecost/internal/store"
)

const shutdownTimeout = 10 * time.Second

var verbose bool

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bakecost",
		Short:         "Bakery recipe cost calculator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSeedCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := setup()
			defer func() { _ = logger.Sync() }()

			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			return migrate(cmd.Context(), database, logger)
		},
	}
}

func newSeedCmd() *cobra.Command {
	var samples bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the admin user and, optionally, sample ingredients and a recipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := setup()
			defer func() { _ = logger.Sync() }()

			database, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			stats, err := seed.Run(cmd.Context(), database, seed.Config{
				AdminEmail:    cfg.AdminEmail,
				AdminPassword: cfg.AdminPassword,
				Samples:       samples,
			})
			if err != nil {
				return fmt.Errorf("seed database: %w", err)
			}
			logger.Info("seed complete", zap.Int("inserts", stats.Inserts))
			return nil
		},
	}
	cmd.Flags().BoolVar(&samples, "samples", true, "insert sample ingredients and a recipe")
	return cmd
}

func setup() (config.Config, *zap.Logger) {
	cfg, warnings := config.Load()

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger := logging.New(logging.Config{
		Level:       level,
		Format:      cfg.LogFormat,
		Development: cfg.IsDev(),
	})

	for _, w := range warnings {
		logger.Warn(w)
	}
	return cfg, logger
}

func migrate(ctx context.Context, database *sql.DB, logger *zap.Logger) error {
	applied, err := migrations.Up(ctx, database)
	if err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}
	version, err := migrations.Version(ctx, database)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("migrations applied", zap.Int("applied", applied), zap.Int64("version", version))
	return nil
}

func runServe(ctx context.Context) error {
	cfg, logger := setup()
	defer func() { _ = logger.Sync() }()

	mode, err := catalog.ParseTotalMode(cfg.DefaultTotalMode, catalog.ModeLive)
	if err != nil {
		return fmt.Errorf("DEFAULT_TOTAL_MODE: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if cfg.IsDev() {
		if err := migrate(ctx, database, logger); err != nil {
			return err
		}
	}

	if _, err := seed.Run(ctx, database, seed.Config{AdminEmail: cfg.AdminEmail, AdminPassword: cfg.AdminPassword}); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}

	secret := cfg.SessionSecret
	if cfg.AuthEnabled() && secret == "" {
		if secret, err = randomSecret(); err != nil {
			return err
		}
		logger.Warn("using an ephemeral session secret; sessions end on restart")
	}

	m := metrics.New()
	srv := &server{
		auth:    newAuthService(database, secret, cfg.AuthEnabled()),
		catalog: catalog.New(store.New(database), logger, m, mode),
		metrics: m,
		log:     logger.Named("http"),
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", httpServer.Addr),
			zap.String("default_mode", string(mode)),
			zap.Bool("auth", cfg.AuthEnabled()),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
