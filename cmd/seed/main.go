package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"themis-assess/internal/config"
	"themis-assess/internal/logging"
	"themis-assess/internal/repository"
	"themis-assess/internal/services"
)

func main() {
	if err := seedCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func seedCmd() *cobra.Command {
	var (
		configPath string
		domain     string
		name       string
		dir        string
		migrate    bool
	)
	cmd := &cobra.Command{
		Use:          "themis-seed",
		Short:        "Load workflow definitions for a tenant",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if dir == "" {
				dir = cfg.Workflows.Dir
			}
			logger := logging.NewLogger(cfg.Log.Level)
			defer logger.Sync()
			return run(cmd.Context(), cfg, logger, domain, name, dir, migrate)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&domain, "domain", "localhost", "Tenant e-mail domain")
	cmd.Flags().StringVar(&name, "name", "Local Dev Tenant", "Tenant display name, used when the tenant is created")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory of workflow definitions (default: workflows.dir)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply database migrations first")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, domain, name, dir string, migrate bool) error {
	if migrate {
		if err := repository.ApplyMigrations(ctx, cfg.DSN()); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	tenant, err := services.EnsureTenant(ctx, store, domain, name)
	if err != nil {
		return fmt.Errorf("ensuring tenant %s: %w", domain, err)
	}
	logger.Info("Using tenant", "id", tenant.ID, "domain", tenant.Domain)

	registry, err := services.NewDefinitionRegistry(store, cfg.Workflows.CacheSize, logger)
	if err != nil {
		return err
	}
	seeded, err := services.SeedWorkflows(ctx, registry, tenant.ID, dir, logger)
	for name, controlID := range seeded {
		fmt.Printf("%s\t%s\n", controlID, name)
	}
	if err != nil {
		return err
	}
	logger.Info("Seeding complete", "workflows", len(seeded))
	return nil
}
