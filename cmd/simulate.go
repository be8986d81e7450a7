package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/geodispatch/app"
)

var (
	simDrivers int
	simOrders  int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the service with a simulated fleet",
	Long: "Runs the service with simulated GPS fixes. An empty store is seeded " +
		"with a generated roster and orders, and simulated drivers pick up, " +
		"drive and complete what they are assigned.",
	RunE: simulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simDrivers, "drivers", 0, "number of simulated drivers")
	simulateCmd.Flags().IntVar(&simOrders, "orders", 0, "number of initial orders")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadOrDefault(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Location.Source = "simulator"
	if simDrivers > 0 {
		cfg.Simulator.Drivers = simDrivers
	}
	if simOrders > 0 {
		cfg.Simulator.Deliveries = simOrders
	}
	return runService(cfg, func(ctx context.Context, svc *app.Service) error {
		return svc.SeedSimulation(ctx)
	})
}
