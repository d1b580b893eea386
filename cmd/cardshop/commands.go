package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/cardshop/core/cmd"
	coredatabase "github.com/m3rciful/cardshop/core/database"
	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/shop/app"
)

const defaultConfigPath = "config.yaml"

func runnerOptions() corecmd.Options {
	return corecmd.Options{
		ConfigPath:        configPath,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := app.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.App, error) {
			a, err := app.New(context.Background(), cfg.(*app.Config), app.Overrides{})
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve both bot webhooks, /healthz and /metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return corecmd.Run(runnerOptions())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadWithLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Shutdown() }()
		if cfg.Storage.Backend != app.BackendPostgres {
			return errors.New("migrate: storage.backend is not postgres")
		}
		return coredatabase.RunMigrations(cfg.Database)
	},
}

var setWebhooksCmd = &cobra.Command{
	Use:   "set-webhooks",
	Short: "Register both bot webhooks at telegram.public_url",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadWithLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Shutdown() }()
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		return app.RegisterWebhooks(ctx, cfg)
	},
}

func loadWithLogger() (*app.Config, error) {
	path, err := corecmd.ResolveConfigPath(runnerOptions())
	if err != nil {
		return nil, err
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(&cfg.Config); err != nil {
		return nil, err
	}
	return cfg, nil
}
