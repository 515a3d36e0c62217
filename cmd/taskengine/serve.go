package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the scheduler, watchdog, backup and metrics loops and block",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := wireEngines(cfg)
	if err != nil {
		return err
	}

	if err := eng.exec.Start(); err != nil {
		return fmt.Errorf("start execution engine: %w", err)
	}
	defer eng.exec.Stop()

	if cfg.Backup.Enabled {
		if err := eng.backup.Start(time.Duration(cfg.Backup.IntervalMinutes) * time.Minute); err != nil {
			return fmt.Errorf("start backup job: %w", err)
		}
		defer eng.backup.Stop()
	}

	if err := eng.metrics.StartHostSampling("30s"); err != nil {
		return fmt.Errorf("start metrics sampler: %w", err)
	}
	defer eng.metrics.StopHostSampling()

	fmt.Println("taskengine: serving, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("taskengine: shutting down")
	return nil
}
