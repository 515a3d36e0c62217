// Package execution implements the Task Execution Engine (spec.md §4.4):
// agent registry, execution state machine, scheduler and watchdog.
// Grounded on the teacher's internal/core/shard_manager.go (mutex-guarded
// registry of named workers with capacity/usage bookkeeping) and
// internal/campaign's orchestrator loop (bounded-parallelism batch
// dispatch over a results channel), generalized to spec.md §4.4's agent
// and execution vocabulary.
package execution

import (
	"time"

	"taskforge/internal/core"
	"taskforge/internal/events"
)

// agentTable is the mutex-free-read part of Engine's agent bookkeeping;
// its methods are only ever called with Engine.mu held, mirroring the
// teacher's shard_manager convention of a single guarded map rather than a
// separate lock per subsystem.
type agentTable map[string]*core.Agent

// RegisterAgent adds a new agent in idle status (spec.md §4.4
// registerAgent).
func (e *Engine) RegisterAgent(agent *core.Agent) *core.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if agent.ID == "" {
		return core.NewError(core.KindValidation, "agent id required")
	}
	if agent.Status == "" {
		agent.Status = core.AgentIdle
	}
	agent.Metadata.LastHeartbeat = e.clock.Now()
	e.agents[agent.ID] = agent
	e.log.Info("agent %s registered", agent.ID)
	e.bus.Emit(events.AgentRegistered, map[string]any{"agentId": agent.ID})
	return nil
}

// UnregisterAgent removes an agent and cancels its running executions
// (spec.md §4.4 unregisterAgent).
func (e *Engine) UnregisterAgent(agentID string) *core.Error {
	e.mu.Lock()
	if _, ok := e.agents[agentID]; !ok {
		e.mu.Unlock()
		return core.NewError(core.KindValidation, "unknown agent %s", agentID)
	}
	var toCancel []string
	for id, ex := range e.executions {
		if ex.AgentID == agentID && (ex.Status == core.ExecRunning || ex.Status == core.ExecQueued) {
			toCancel = append(toCancel, id)
		}
	}
	delete(e.agents, agentID)
	e.mu.Unlock()

	for _, id := range toCancel {
		_ = e.CancelExecution(id)
	}
	e.log.Info("agent %s unregistered, cancelled %d executions", agentID, len(toCancel))
	e.bus.Emit(events.AgentUnregistered, map[string]any{"agentId": agentID})
	return nil
}

// UpdateAgentStatus refreshes an agent's status, usage and heartbeat
// (spec.md §4.4 updateStatus).
func (e *Engine) UpdateAgentStatus(agentID string, status core.AgentStatus, usage *core.ResourceUsage) *core.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	agent, ok := e.agents[agentID]
	if !ok {
		return core.NewError(core.KindValidation, "unknown agent %s", agentID)
	}
	agent.Status = status
	if usage != nil {
		agent.CurrentUsage = *usage
	}
	agent.Metadata.LastHeartbeat = e.clock.Now()
	e.bus.Emit(events.AgentStatusUpdated, map[string]any{"agentId": agentID, "status": string(status)})
	return nil
}

// Agent returns a copy of the agent record.
func (e *Engine) Agent(agentID string) (*core.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[agentID]
	if !ok {
		return nil, false
	}
	clone := *a
	return &clone, true
}

// Agents returns a snapshot of every registered agent.
func (e *Engine) Agents() []*core.Agent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*core.Agent, 0, len(e.agents))
	for _, a := range e.agents {
		clone := *a
		out = append(out, &clone)
	}
	return out
}

// sweepStaleAgentsLocked downgrades agents whose heartbeat is older than
// staleAfter to offline and collects their running executions for eviction
// (spec.md §4.4 agent management). Caller must hold e.mu.
func (e *Engine) sweepStaleAgentsLocked(staleAfter time.Duration) []string {
	now := e.clock.Now()
	var evicted []string
	for id, agent := range e.agents {
		if agent.Status == core.AgentOffline {
			continue
		}
		if now.Sub(agent.Metadata.LastHeartbeat) > staleAfter {
			agent.Status = core.AgentOffline
			for exID, ex := range e.executions {
				if ex.AgentID == id && ex.Status == core.ExecRunning {
					evicted = append(evicted, exID)
				}
			}
			e.log.Warn("agent %s stale, marked offline", id)
		}
	}
	return evicted
}

// sweepStaleAgents is the heartbeat sweeper's cron tick: it downgrades
// stale agents and evicts each of their running executions to retry,
// exactly like a watchdog timeout (spec.md §4.4 "heartbeats older than a
// configured stale threshold downgrade the agent to offline and evict its
// running executions to retry").
func (e *Engine) sweepStaleAgents() {
	e.mu.Lock()
	evicted := e.sweepStaleAgentsLocked(e.cfg.Watchdog.StaleAgentThreshold)
	e.mu.Unlock()

	for _, id := range evicted {
		e.evictRunningExecution(id)
	}
}

// evictRunningExecution transitions a running execution to failed (its
// agent went offline mid-run) and retries it if budget remains.
func (e *Engine) evictRunningExecution(executionID string) {
	e.mu.Lock()
	ex, ok := e.executions[executionID]
	if !ok || ex.Status != core.ExecRunning {
		e.mu.Unlock()
		return
	}
	if err := e.transitionLocked(ex, core.ExecFailed); err != nil {
		e.mu.Unlock()
		return
	}
	ex.CompletedAt = e.clock.Now()
	ex.Result = &core.ExecutionResult{Success: false, Error: "agent heartbeat stale"}
	agentID := ex.AgentID
	e.releaseAgentResourcesLocked(agentID, ex.Resources)
	e.recordAgentOutcomeLocked(agentID, ex, false)
	retried := e.maybeRetryLocked(ex)
	e.mu.Unlock()

	e.stopMonitor(executionID)
	if retried {
		e.log.Warn("execution %s evicted from stale agent %s, retrying task %s", executionID, agentID, ex.TaskID)
		e.bus.Emit(events.ExecutionRetry, map[string]any{"executionId": executionID, "taskId": ex.TaskID})
	} else {
		e.log.Warn("execution %s final failure for task %s, stale agent %s, no retries remaining", executionID, ex.TaskID, agentID)
		e.bus.Emit(events.ExecutionCompleted, map[string]any{"executionId": executionID, "taskId": ex.TaskID, "success": false, "final": true})
	}
}
