package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/config"
	"taskforge/internal/core"
	"taskforge/internal/events"
)

func newTestEngine(t *testing.T) (*Engine, *core.FakeClock) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Scheduling.Algorithm = config.AlgorithmPriorityFirst
	cfg.Scheduling.BatchSize = 10
	cfg.Watchdog.DefaultTimeout = time.Second
	cfg.Watchdog.WarningThreshold = 500 * time.Millisecond
	cfg.Watchdog.MaxRetries = 2
	cfg.Watchdog.StaleAgentThreshold = time.Second
	cfg.Watchdog.HeartbeatSweepInterval = 100 * time.Millisecond

	clock := core.NewFakeClock(time.Now())
	e := New(cfg, events.NewBus(), clock)
	return e, clock
}

func testAgent(id string) *core.Agent {
	return &core.Agent{
		ID:     id,
		Name:   id,
		Status: core.AgentIdle,
		Capacity: core.ResourceUsage{MemoryMB: 1024, CPUWeight: 1, MaxConcurrentTasks: 1},
	}
}

func TestPriorityFirstScheduling(t *testing.T) {
	e, _ := newTestEngine(t)
	require.Nil(t, e.RegisterAgent(testAgent("agent-1")))

	lo := e.Submit("task-lo", core.PriorityLow, core.ResourceRequirements{MemoryMB: 10, CPUWeight: 0.1, EstimatedDurationMinutes: 6}, 0)
	hi := e.Submit("task-hi", core.PriorityHigh, core.ResourceRequirements{MemoryMB: 10, CPUWeight: 0.1, EstimatedDurationMinutes: 6}, 0)

	e.tick()

	got, ok := e.Execution(hi.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, core.ExecRunning, got.Status, "high priority execution should be assigned first")

	stillQueued, ok := e.Execution(lo.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, core.ExecQueued, stillQueued.Status, "low priority execution should still be waiting: only one agent slot exists")
}

func TestInvalidTransitionRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	ex := e.Submit("task-1", core.PriorityMedium, core.ResourceRequirements{}, 0)

	err := e.Complete(ex.ExecutionID, core.ExecutionResult{Success: true})
	require.NotNil(t, err)
	assert.Equal(t, core.KindInvalidTransition, err.Kind)
}

func TestTimeoutRetriesThenFinal(t *testing.T) {
	e, clock := newTestEngine(t)
	require.Nil(t, e.RegisterAgent(testAgent("agent-1")))

	ex := e.Submit("task-1", core.PriorityMedium, core.ResourceRequirements{MemoryMB: 10, CPUWeight: 0.1}, 2)
	e.tick()

	running, ok := e.Execution(ex.ExecutionID)
	require.True(t, ok)
	require.Equal(t, core.ExecRunning, running.Status)

	clock.Advance(2 * time.Second)
	e.checkTimeouts()

	timedOut, ok := e.Execution(ex.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, core.ExecTimeout, timedOut.Status)

	var retried []*core.Execution
	for _, r := range e.Executions() {
		if r.TaskID == "task-1" && r.Status == core.ExecQueued {
			retried = append(retried, r)
		}
	}
	require.Len(t, retried, 1)
	assert.Equal(t, 1, retried[0].RetryCount)

	queuedFor := func() []*core.Execution {
		var out []*core.Execution
		for _, r := range e.Executions() {
			if r.TaskID == "task-1" && r.Status == core.ExecQueued {
				out = append(out, r)
			}
		}
		return out
	}

	// The first retry times out too: a second retry is queued with retryCount 2.
	e.tick()
	clock.Advance(2 * time.Second)
	e.checkTimeouts()
	retried = queuedFor()
	require.Len(t, retried, 1)
	assert.Equal(t, 2, retried[0].RetryCount)

	// The third attempt exhausts maxRetries=2: final timeout, nothing requeued.
	finalID := retried[0].ExecutionID
	e.tick()
	clock.Advance(2 * time.Second)
	e.checkTimeouts()
	final, ok := e.Execution(finalID)
	require.True(t, ok)
	assert.Equal(t, core.ExecTimeout, final.Status)
	assert.Empty(t, queuedFor())
}

func TestSweepStaleAgentsEvictsRunningExecution(t *testing.T) {
	e, clock := newTestEngine(t)
	require.Nil(t, e.RegisterAgent(testAgent("agent-1")))
	ex := e.Submit("task-1", core.PriorityMedium, core.ResourceRequirements{MemoryMB: 10, CPUWeight: 0.1}, 1)
	e.tick()

	running, ok := e.Execution(ex.ExecutionID)
	require.True(t, ok)
	require.Equal(t, core.ExecRunning, running.Status)

	clock.Advance(2 * time.Second)
	e.sweepStaleAgents()

	agent, ok := e.Agent("agent-1")
	require.True(t, ok)
	assert.Equal(t, core.AgentOffline, agent.Status)

	var retried []*core.Execution
	for _, r := range e.Executions() {
		if r.TaskID == "task-1" && r.Status == core.ExecQueued {
			retried = append(retried, r)
		}
	}
	require.Len(t, retried, 1, "eviction should retry the running execution")
	assert.Equal(t, 1, retried[0].RetryCount)
}

func TestUnregisterAgentCancelsRunningExecutions(t *testing.T) {
	e, _ := newTestEngine(t)
	require.Nil(t, e.RegisterAgent(testAgent("agent-1")))
	ex := e.Submit("task-1", core.PriorityMedium, core.ResourceRequirements{MemoryMB: 10, CPUWeight: 0.1}, 0)
	e.tick()

	require.Nil(t, e.UnregisterAgent("agent-1"))

	got, ok := e.Execution(ex.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, core.ExecCancelled, got.Status)
}
