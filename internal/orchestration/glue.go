// Package orchestration is the thin glue layer of spec.md §4.5: it
// bridges the Dependency Graph Engine and the Task Execution Engine,
// submitting ready tasks for execution and committing execution outcomes
// back to the graph and the Storage Engine. Grounded on the teacher's
// campaign orchestrator (internal/campaign/orchestrator_execution.go +
// orchestrator_phases.go): phase -> task submission -> result collection
// -> next-phase unlock is structurally the same shape as graph-ready ->
// submit -> completion -> re-ready, generalized from campaign phases to
// dependency-graph ready-sets.
package orchestration

import (
	"github.com/robfig/cron/v3"

	"taskforge/internal/core"
	"taskforge/internal/events"
	"taskforge/internal/execution"
	"taskforge/internal/graph"
	"taskforge/internal/logging"
	"taskforge/internal/storage"
)

// defaultResourceFootprint fills in memoryMB/cpuWeight when a task doesn't
// specify them (spec.md §4.5: "sensible defaults if not specified").
const (
	defaultMemoryMB  = 256
	defaultCPUWeight = 0.5

	// repeatedFailureThreshold is how many dependent tasks (direct or
	// transitive) must end up blocked by the same root failure before Glue
	// emits a
	// replanSuggested diagnostic (SPEC_FULL.md §12 supplemented feature).
	repeatedFailureThreshold = 2
)

// Glue wires one project's Graph to the shared Execution Engine and
// Storage Engine.
type Glue struct {
	g       *graph.Graph
	storage *storage.Engine
	exec    *execution.Engine
	bus     *events.Bus
	log     *logging.Logger

	maxRetries int
	submitted  map[string]bool
	poller     *cron.Cron
}

// New builds a Glue instance for one project graph.
func New(g *graph.Graph, storageEngine *storage.Engine, execEngine *execution.Engine, bus *events.Bus, maxRetries int) *Glue {
	gl := &Glue{
		g: g, storage: storageEngine, exec: execEngine, bus: bus,
		log: logging.Get(logging.CategoryOrchestration),
		maxRetries: maxRetries,
		submitted:  make(map[string]bool),
	}
	bus.Subscribe(events.ExecutionCompleted, gl.onExecutionCompleted)
	bus.Subscribe(events.TaskTimeout, gl.onFinalFailure)
	return gl
}

// Start begins polling the graph's ready-set on the given interval,
// ticked by robfig/cron like every other TaskForge background loop
// (SPEC_FULL.md §11).
func (gl *Glue) Start(interval string) error {
	gl.poller = cron.New()
	_, err := gl.poller.AddFunc("@every "+interval, gl.submitReady)
	if err != nil {
		return err
	}
	gl.poller.Start()
	return nil
}

// Stop halts the ready-set poller.
func (gl *Glue) Stop() {
	if gl.poller != nil {
		ctx := gl.poller.Stop()
		<-ctx.Done()
	}
}

// submitReady resolves every newly-ready task and submits it to the
// execution engine with resource requirements derived from estimatedHours
// (spec.md §4.5).
func (gl *Glue) submitReady() {
	for _, taskID := range gl.g.ReadyTasks() {
		if gl.submitted[taskID] {
			continue
		}
		task, ok := gl.g.Task(taskID)
		if !ok {
			continue
		}
		gl.submitted[taskID] = true
		resources := resourceRequirementsFor(task)
		gl.exec.Submit(taskID, task.Priority, resources, gl.maxRetries)
		gl.bus.Emit(events.TaskSubmitted, map[string]any{"taskId": taskID})
	}
}

// resourceRequirementsFor derives a footprint from estimatedHours, using
// defaultMemoryMB/defaultCPUWeight since the task carries no explicit resource
// metadata of its own (the core data model only tracks estimatedHours —
// richer per-task resource hints are future scope, per spec.md §9).
func resourceRequirementsFor(task *core.Task) core.ResourceRequirements {
	return core.ResourceRequirements{
		MemoryMB:                 defaultMemoryMB,
		CPUWeight:                defaultCPUWeight,
		EstimatedDurationMinutes: task.EstimatedHours * 60,
	}
}

// onExecutionCompleted updates the graph node and commits the status
// change to storage (spec.md §4.5).
func (gl *Glue) onExecutionCompleted(event events.Event) {
	taskID, _ := event.Payload["taskId"].(string)
	success, _ := event.Payload["success"].(bool)
	final, _ := event.Payload["final"].(bool)
	if taskID == "" {
		return
	}

	if !success {
		if final {
			gl.onFinalFailure(event)
		}
		return
	}

	if err := gl.g.SetTaskStatus(taskID, core.TaskCompleted); err != nil {
		gl.log.Warn("commit completion for %s: %v", taskID, err)
		return
	}
	delete(gl.submitted, taskID)
	gl.commitStatus(taskID, core.TaskCompleted)
}

// onFinalFailure marks a finally-failed task failed and its dependents
// blocked (spec.md §4.5). If enough dependents end up blocked it emits a
// replanSuggested diagnostic event.
func (gl *Glue) onFinalFailure(event events.Event) {
	taskID, _ := event.Payload["taskId"].(string)
	if taskID == "" {
		return
	}

	if err := gl.g.SetTaskStatus(taskID, core.TaskFailed); err != nil {
		gl.log.Warn("commit failure for %s: %v", taskID, err)
		return
	}
	gl.commitStatus(taskID, core.TaskFailed)

	blocked := gl.blockDependents(taskID)
	if len(blocked) >= repeatedFailureThreshold {
		gl.bus.Emit(events.ReplanSuggested, map[string]any{
			"rootTaskId":   taskID,
			"blockedTasks": blocked,
		})
	}
}

// blockDependents recursively marks every transitive dependent of a failed
// task as blocked (diagnostic-only status, spec.md §3) and commits each to
// storage.
func (gl *Glue) blockDependents(taskID string) []string {
	task, ok := gl.g.Task(taskID)
	if !ok {
		return nil
	}
	var blocked []string
	for _, dependentID := range task.Dependents {
		dependent, ok := gl.g.Task(dependentID)
		if !ok || dependent.Status != core.TaskPending {
			continue
		}
		if err := gl.g.SetTaskStatus(dependentID, core.TaskBlocked); err != nil {
			continue
		}
		gl.commitStatus(dependentID, core.TaskBlocked)
		blocked = append(blocked, dependentID)
		blocked = append(blocked, gl.blockDependents(dependentID)...)
	}
	return blocked
}

func (gl *Glue) commitStatus(taskID string, status core.TaskStatus) {
	res := gl.storage.Tasks.Update(taskID, func(t *core.Task) { t.Status = status })
	if !res.IsOk() {
		gl.log.Warn("storage commit for %s: %v", taskID, res.Err)
	}
}
