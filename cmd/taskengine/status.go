package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print a summary of agents, executions and cache stats",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := wireEngines(cfg)
	if err != nil {
		return err
	}

	agents := eng.exec.Agents()
	executions := eng.exec.Executions()
	hits, requests, size := eng.storage.CacheStats()

	fmt.Printf("agents:      %d\n", len(agents))
	fmt.Printf("executions:  %d\n", len(executions))
	fmt.Printf("cache:       %d entries, %d/%d hits\n", size, hits, requests)
	return nil
}
