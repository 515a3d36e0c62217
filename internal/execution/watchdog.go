package execution

import (
	"time"

	"taskforge/internal/core"
	"taskforge/internal/events"
)

// monitor tracks one running execution's timeout/warning deadlines
// (spec.md §4.4 Watchdog).
type monitor struct {
	startTime time.Time
	timeoutAt time.Time
	warningAt time.Time
	warned    bool
}

func (e *Engine) startMonitor(executionID string, start, timeoutAt time.Time, warningThreshold time.Duration) {
	e.monitorsMu.Lock()
	defer e.monitorsMu.Unlock()
	e.monitors[executionID] = &monitor{
		startTime: start,
		timeoutAt: timeoutAt,
		warningAt: start.Add(warningThreshold),
	}
}

func (e *Engine) stopMonitor(executionID string) {
	e.monitorsMu.Lock()
	defer e.monitorsMu.Unlock()
	delete(e.monitors, executionID)
}

// checkTimeouts is the watchdog's health-check tick (spec.md §4.4): fires
// every healthCheckInterval, transitioning overdue running executions to
// timeout and emitting a one-shot warning for those approaching it.
func (e *Engine) checkTimeouts() {
	now := e.clock.Now()

	e.monitorsMu.Lock()
	var timedOut, warn []string
	for id, m := range e.monitors {
		if now.After(m.timeoutAt) || now.Equal(m.timeoutAt) {
			timedOut = append(timedOut, id)
			continue
		}
		if !m.warned && (now.After(m.warningAt) || now.Equal(m.warningAt)) {
			m.warned = true
			warn = append(warn, id)
		}
	}
	e.monitorsMu.Unlock()

	for _, id := range warn {
		e.mu.RLock()
		ex, ok := e.executions[id]
		e.mu.RUnlock()
		if ok && ex.Status == core.ExecRunning {
			e.bus.Emit(events.TaskWarning, map[string]any{"executionId": id, "taskId": ex.TaskID})
		}
	}

	for _, id := range timedOut {
		e.timeoutExecution(id)
	}
}

// timeoutExecution transitions a running execution to timeout, releases
// its agent's resources, and retries it if budget remains (spec.md §4.4).
func (e *Engine) timeoutExecution(executionID string) {
	e.mu.Lock()
	ex, ok := e.executions[executionID]
	if !ok || ex.Status != core.ExecRunning {
		e.mu.Unlock()
		return
	}
	if err := e.transitionLocked(ex, core.ExecTimeout); err != nil {
		e.mu.Unlock()
		return
	}
	ex.CompletedAt = e.clock.Now()
	agentID := ex.AgentID
	e.releaseAgentResourcesLocked(agentID, ex.Resources)
	e.recordAgentOutcomeLocked(agentID, ex, false)
	retried := e.maybeRetryLocked(ex)
	e.mu.Unlock()

	e.stopMonitor(executionID)
	if retried {
		e.log.Warn("execution %s timed out, retrying task %s", executionID, ex.TaskID)
		e.bus.Emit(events.ExecutionRetry, map[string]any{"executionId": executionID, "taskId": ex.TaskID})
	} else {
		e.log.Warn("execution %s final timeout for task %s, no retries remaining", executionID, ex.TaskID)
		e.bus.Emit(events.TaskTimeout, map[string]any{"executionId": executionID, "taskId": ex.TaskID, "final": true})
	}
}
