package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quayside/berthd/app"
	"github.com/quayside/berthd/config"
	"github.com/quayside/berthd/core/state"
	"github.com/quayside/berthd/infra/logger"
	"github.com/quayside/berthd/internal/scenario"
)

var (
	cfgPath      string
	scenarioPath string
)

var rootCmd = &cobra.Command{
	Use:   "berthd",
	Short: "Berth allocation scheduling service",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file seeding the port state")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	seed, err := loadSeed()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg, seed)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

func loadSeed() (*state.Snapshot, error) {
	if scenarioPath == "" {
		return nil, nil
	}
	seed, err := scenario.Load(scenarioPath)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	return seed, nil
}

// oneShot builds a service for single commands: no live feed, no metrics
// endpoint, no journal file.
func oneShot() (*app.Service, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Feed.Broker = ""
	cfg.Metrics.Prometheus.Enabled = false
	cfg.Metrics.Influx.Enabled = false
	cfg.Journal.Backend = "nop"

	seed, err := loadSeed()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, seed)
}
