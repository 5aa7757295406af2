package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/obs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		file   string
		dbURL  string
		prune  bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:           "seeder",
		Short:         "Load the catalog YAML into the Postgres products table",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := obs.NewLoggerTo(os.Stderr, "console", "info")
			if err := godotenv.Load(); err != nil {
				logger.Debug().Msg("no .env file found, relying on environment variables")
			}
			if dbURL == "" {
				dbURL = os.Getenv("DATABASE_URL")
			}
			err := run(cmd.Context(), logger, file, dbURL, prune, dryRun)
			if err != nil {
				logger.Error().Err(err).Msg("seeding failed")
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", envOr("CATALOG_FILE", "./catalog.yaml"), "catalog YAML file")
	cmd.Flags().StringVar(&dbURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete products that are not in the file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without touching the database")
	return cmd
}

func run(ctx context.Context, logger zerolog.Logger, file, dbURL string, prune, dryRun bool) error {
	products, err := catalog.ReadFile(file)
	if err != nil {
		return err
	}
	logger.Info().Str("file", file).Int("products", len(products)).Msg("catalog file valid")
	if dryRun {
		return nil
	}
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	connConfig, err := pgx.ParseConfig(dbURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	connConfig.Tracer = obs.PGXTracer{}
	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = conn.Close(context.Background()) }()

	if _, err := conn.Exec(ctx, catalog.Schema); err != nil {
		return fmt.Errorf("create products table: %w", err)
	}

	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		src := catalog.PostgresSource{DB: tx}
		ids := make([]string, 0, len(products))
		for _, p := range products {
			if err := src.Upsert(ctx, p); err != nil {
				return err
			}
			ids = append(ids, p.ID)
		}
		if prune {
			tag, err := tx.Exec(ctx, `DELETE FROM products WHERE NOT (id = ANY($1))`, ids)
			if err != nil {
				return fmt.Errorf("prune products: %w", err)
			}
			logger.Info().Int64("deleted", tag.RowsAffected()).Msg("pruned products missing from file")
		}
		logger.Info().Int("upserted", len(ids)).Msg("catalog seeded")
		return nil
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
