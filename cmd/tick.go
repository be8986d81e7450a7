package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/geodispatch/core/dispatch"
	"github.com/kilianp07/geodispatch/core/store"
	"github.com/kilianp07/geodispatch/infra/logger"
)

var (
	snapshotPath string
	tickAt       string
	tickCount    int
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run dispatch ticks on a snapshot and print the commits",
	RunE:  runTick,
}

func init() {
	tickCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "roster and deliveries snapshot (yaml or json)")
	tickCmd.Flags().StringVar(&tickAt, "at", "", "tick time in RFC3339, defaults to now")
	tickCmd.Flags().IntVar(&tickCount, "ticks", 1, "number of consecutive ticks")
	_ = tickCmd.MarkFlagRequired("snapshot")
	rootCmd.AddCommand(tickCmd)
}

func runTick(cmd *cobra.Command, args []string) error {
	cfg, err := loadOrDefault(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	now := time.Now().UTC()
	if tickAt != "" {
		if now, err = time.Parse(time.RFC3339, tickAt); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}
	seed, err := store.LoadSeedFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := seed.Apply(ctx, st); err != nil {
		return err
	}
	engine, err := dispatch.NewEngine(st, cfg.Dispatch, dispatch.WithLogger(logger.New("tick")))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	for i := 0; i < tickCount; i++ {
		res, err := engine.Tick(ctx, now.Add(time.Duration(i*cfg.Dispatch.TickIntervalSeconds)*time.Second))
		if err != nil {
			return err
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}
