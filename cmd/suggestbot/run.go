package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/suggestbot/core/bootstrap"
	corecmd "github.com/m3rciful/suggestbot/core/cmd"
	"github.com/m3rciful/suggestbot/core/metrics"
	coretelegram "github.com/m3rciful/suggestbot/core/telegram"
	"github.com/m3rciful/suggestbot/internal/bot"
	"github.com/m3rciful/suggestbot/internal/config"
	"github.com/m3rciful/suggestbot/internal/store"
)

const defaultConfigPath = "config.yaml"

func runCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(cmd.Context(), corecmd.Options{
				ConfigPath:        *configPath,
				ConfigEnvVar:      "CONFIG_PATH",
				DefaultConfigPath: defaultConfigPath,
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					return config.Load(path)
				},
				Bootstrap:   bootstrapApp,
				RunTelegram: coretelegram.RunTelegram,
			})
		},
	}
}

func bootstrapApp(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("unexpected config type %T", carrier)
	}

	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:        cfg.CoreConfig(),
		Database:      cfg.Database,
		Migrations:    store.Migrations,
		MigrationsDir: store.MigrationsDir,
	})
	if err != nil {
		return nil, err
	}

	var st store.Store = store.NewMemory()
	if res.DB != nil {
		st = store.NewPostgres(res.DB)
	}

	m, err := metrics.New()
	if err != nil {
		_ = res.Close()
		return nil, err
	}

	app, err := bot.New(bot.Options{
		Config:  cfg,
		Store:   st,
		Metrics: m,
		Closers: []func() error{res.Close},
	})
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	return app, nil
}
