package main

import (
	"fmt"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/suggestbot/core/cmd"
	coredatabase "github.com/m3rciful/suggestbot/core/database"
	"github.com/m3rciful/suggestbot/core/logger"
	"github.com/m3rciful/suggestbot/internal/config"
	"github.com/m3rciful/suggestbot/internal/store"
)

func migrateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := corecmd.ResolveConfigPath(corecmd.Options{
				ConfigPath:        *configPath,
				ConfigEnvVar:      "CONFIG_PATH",
				DefaultConfigPath: defaultConfigPath,
			})
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()

			if cfg.Database.Driver == coredatabase.DriverMemory {
				return fmt.Errorf("migrate: database.driver is %q, nothing to migrate", coredatabase.DriverMemory)
			}
			return coredatabase.RunMigrations(cmd.Context(), cfg.Database, store.Migrations, store.MigrationsDir)
		},
	}
}
