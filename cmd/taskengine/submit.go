package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskforge/internal/core"
)

var (
	submitProjectID string
	submitHours      float64
	submitPriority   string
)

var submitCmd = &cobra.Command{
	Use:   "submit <title>",
	Short: "create a task and persist it to the storage engine",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitProjectID, "project", "", "owning project id (required)")
	submitCmd.Flags().Float64Var(&submitHours, "hours", 1, "estimated hours")
	submitCmd.Flags().StringVar(&submitPriority, "priority", string(core.PriorityMedium), "priority: critical|high|medium|low")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if submitProjectID == "" {
		return fmt.Errorf("--project is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, err := wireEngines(cfg)
	if err != nil {
		return err
	}

	task := &core.Task{
		ID:             core.NewID("task"),
		Title:          args[0],
		Status:         core.TaskPending,
		Priority:       core.TaskPriority(submitPriority),
		EstimatedHours: submitHours,
		ProjectID:      submitProjectID,
	}
	res := eng.storage.Tasks.Create(task)
	if !res.IsOk() {
		return fmt.Errorf("create task: %s", res.Err.Message)
	}
	fmt.Printf("created task %s\n", task.ID)
	return nil
}
