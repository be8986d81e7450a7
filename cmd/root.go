package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/geodispatch/app"
	"github.com/kilianp07/geodispatch/config"
	"github.com/kilianp07/geodispatch/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "geodispatch",
	Short:        "Delivery dispatch and geofencing service",
	RunE:         serve,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch service",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return runService(cfg, nil)
}

func runService(cfg *config.Config, before func(context.Context, *app.Service) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	if before != nil {
		if err := before(ctx, svc); err != nil {
			return err
		}
	}
	return svc.Run(ctx)
}

// loadOrDefault reads path when it exists and falls back to the defaults.
func loadOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(path)
}
