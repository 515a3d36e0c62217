// Package main implements the taskengine CLI, TaskForge's process
// entry point.
//
// This file is the registration hub; command bodies live in their own
// files for maintainability.
//
// # File Index
//
// Entry Point & Global State:
//   - main.go    - entry point, rootCmd, global flags, loadConfig()
//   - wiring.go  - wireEngines(): constructs one process's engines
//
// Commands:
//   - serve.go   - serveCmd: boots every background loop and blocks
//   - status.go  - statusCmd: prints agent/execution/cache counts
//   - submit.go  - submitCmd: submits a single ad-hoc task
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskforge/internal/config"
)

var (
	configPath string
	dataRoot   string
)

var rootCmd = &cobra.Command{
	Use:   "taskengine",
	Short: "TaskForge task orchestration engine",
	Long: `taskengine runs the TaskForge dependency-graph scheduler: a
security-gated storage layer, a dependency graph engine, a task
execution engine, and the orchestration glue between them.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults built-in if omitted)")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "", "override the configured data root")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(submitCmd)
}

// loadConfig reads --config if given, falling back to defaults, then
// applies --data-root on top.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}
	if dataRoot != "" {
		cfg.DataRoot = dataRoot
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
