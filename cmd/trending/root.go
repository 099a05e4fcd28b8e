package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/d60-Lab/trending/config"
	"github.com/d60-Lab/trending/internal/app"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "trending",
	Short:         "Trending score engine",
	Long:          "Tracks per-item view activity and keeps an exponentially decaying trending score for posts and users.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $TRENDING_CONFIG or ./config/config.yaml)")
	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		configPath = os.Getenv("TRENDING_CONFIG")
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}
