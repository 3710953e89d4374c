/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adfyer/apiserver/config"
	"github.com/adfyer/apiserver/internal/db"
	"github.com/adfyer/apiserver/internal/logging"
	"github.com/adfyer/apiserver/internal/store"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

var migrationsURL string

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Prepare the account store",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations (postgres) or ensure indexes (mongo)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.Setup(cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

		switch cfg.Store.Backend {
		case config.StorePostgres:
			return migratePostgres(cfg, logger)
		case config.StoreMongo:
			return ensureMongoIndexes(cmd.Context(), cfg, logger)
		case config.StoreMemory:
			logger.Info("memory store needs no migration")
			return nil
		default:
			return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)

	migrateUpCmd.Flags().StringVar(&migrationsURL, "source", "file://internal/db/migrations", "migration source URL")
}

func migratePostgres(cfg config.Config, logger *slog.Logger) error {
	migrator, err := migrate.New(migrationsURL, db.PostgresURL(cfg))
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("postgres schema is up to date")
			return nil
		}
		return fmt.Errorf("migrate up failed: %w", err)
	}

	version, _, _ := migrator.Version()
	logger.Info("postgres migrations applied", "version", version)
	return nil
}

func ensureMongoIndexes(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	client, coll, err := db.OpenMongo(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	if err := store.NewMongoAccountRepository(coll).EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes failed: %w", err)
	}
	logger.Info("mongo indexes ensured", "database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)
	return nil
}
