package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/config"
	"taskforge/internal/core"
	"taskforge/internal/events"
	"taskforge/internal/execution"
	"taskforge/internal/graph"
	"taskforge/internal/security"
	"taskforge/internal/storage"
)

func newHarness(t *testing.T) (*graph.Graph, *storage.Engine, *execution.Engine, *events.Bus) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataRoot = t.TempDir()
	gate := security.New(&cfg.Security, cfg.Audit.RetentionDays)
	storageEngine, err := storage.New(cfg, gate)
	require.NoError(t, err)

	bus := events.NewBus()
	execEngine := execution.New(cfg, bus, core.SystemClock{})
	g := graph.New("proj-1")
	return g, storageEngine, execEngine, bus
}

func TestGlueSubmitsReadyTaskAndCommitsCompletion(t *testing.T) {
	g, storageEngine, execEngine, bus := newHarness(t)

	task := &core.Task{ID: "task-1", Title: "do it", Status: core.TaskPending, Priority: core.PriorityMedium, EstimatedHours: 1, ProjectID: "proj-1"}
	require.Nil(t, g.AddTask(task))
	require.True(t, storageEngine.Tasks.Create(task).IsOk())

	agent := &core.Agent{ID: "agent-1", Status: core.AgentIdle, Capacity: core.ResourceUsage{MemoryMB: 1024, CPUWeight: 1, MaxConcurrentTasks: 1}}
	require.Nil(t, execEngine.RegisterAgent(agent))

	gl := New(g, storageEngine, execEngine, bus, 0)
	gl.submitReady()

	executions := execEngine.Executions()
	require.Len(t, executions, 1)
	assert.Equal(t, "task-1", executions[0].TaskID)

	bus.Emit(events.ExecutionCompleted, map[string]any{"executionId": executions[0].ExecutionID, "taskId": "task-1", "success": true})

	updated, ok := g.Task("task-1")
	require.True(t, ok)
	assert.Equal(t, core.TaskCompleted, updated.Status)

	stored := storageEngine.Tasks.Get("task-1")
	require.True(t, stored.IsOk())
	assert.Equal(t, core.TaskCompleted, stored.Value.Status)
}

func TestGlueBlocksDependentsOnFinalFailure(t *testing.T) {
	g, storageEngine, execEngine, bus := newHarness(t)
	_ = execEngine

	root := &core.Task{ID: "root", Status: core.TaskPending, Priority: core.PriorityMedium, EstimatedHours: 1, ProjectID: "proj-1"}
	dep := &core.Task{ID: "dependent", Status: core.TaskPending, Priority: core.PriorityMedium, EstimatedHours: 1, ProjectID: "proj-1"}
	require.Nil(t, g.AddTask(root))
	require.Nil(t, g.AddTask(dep))
	require.Nil(t, g.AddDependency("dependent", "root", core.DepTask, 1, false, ""))
	require.True(t, storageEngine.Tasks.Create(root).IsOk())
	require.True(t, storageEngine.Tasks.Create(dep).IsOk())

	gl := New(g, storageEngine, execEngine, bus, 0)
	bus.Emit(events.TaskTimeout, map[string]any{"executionId": "exec-x", "taskId": "root", "final": true})
	_ = gl

	rootTask, ok := g.Task("root")
	require.True(t, ok)
	assert.Equal(t, core.TaskFailed, rootTask.Status)

	depTask, ok := g.Task("dependent")
	require.True(t, ok)
	assert.Equal(t, core.TaskBlocked, depTask.Status)
}
