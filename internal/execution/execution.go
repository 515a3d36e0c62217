package execution

import (
	"taskforge/internal/core"
	"taskforge/internal/events"
)

// validTransitions is the Execution state machine table of spec.md §4.4.
// Retries never transition a record from timeout/failed back to queued —
// they create a brand-new Execution for the same taskId instead, so those
// two states have no outgoing edges here.
var validTransitions = map[core.ExecutionStatus][]core.ExecutionStatus{
	core.ExecQueued:  {core.ExecRunning, core.ExecCancelled},
	core.ExecRunning: {core.ExecCompleted, core.ExecTimeout, core.ExecFailed, core.ExecCancelled},
}

func canTransition(from, to core.ExecutionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (e *Engine) transitionLocked(ex *core.Execution, to core.ExecutionStatus) *core.Error {
	if !canTransition(ex.Status, to) {
		return core.NewError(core.KindInvalidTransition, "execution %s cannot go from %s to %s", ex.ExecutionID, ex.Status, to)
	}
	ex.Status = to
	return nil
}

// Submit enqueues a new execution for a task (spec.md §4.4, triggered by
// orchestration on graph.ready).
func (e *Engine) Submit(taskID string, priority core.TaskPriority, resources core.ResourceRequirements, maxRetries int) *core.Execution {
	e.mu.Lock()
	defer e.mu.Unlock()

	ex := &core.Execution{
		ExecutionID: core.NewID("exec"),
		TaskID:      taskID,
		Status:      core.ExecQueued,
		Priority:    priority,
		ScheduledAt: e.clock.Now(),
		MaxRetries:  maxRetries,
		Resources:   resources,
	}
	e.executions[ex.ExecutionID] = ex
	e.log.Debug("execution %s queued for task %s", ex.ExecutionID, taskID)
	e.bus.Emit(events.TaskSubmitted, map[string]any{"executionId": ex.ExecutionID, "taskId": taskID})
	return ex
}

// Complete marks an execution finished successfully (spec.md §4.4
// complete()).
func (e *Engine) Complete(executionID string, result core.ExecutionResult) *core.Error {
	e.mu.Lock()
	ex, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return core.NewError(core.KindValidation, "unknown execution %s", executionID)
	}
	if err := e.transitionLocked(ex, core.ExecCompleted); err != nil {
		e.mu.Unlock()
		return err
	}
	ex.CompletedAt = e.clock.Now()
	ex.Result = &result
	agentID := ex.AgentID
	e.releaseAgentResourcesLocked(agentID, ex.Resources)
	e.recordAgentOutcomeLocked(agentID, ex, true)
	e.mu.Unlock()

	e.stopMonitor(executionID)
	e.bus.Emit(events.ExecutionCompleted, map[string]any{"executionId": executionID, "taskId": ex.TaskID, "success": true})
	return nil
}

// Fail marks an execution failed and retries it if budget remains (spec.md
// §4.4 failure semantics: agent-side execution errors surface as failed and
// retry up to maxRetries).
func (e *Engine) Fail(executionID string, reason string) *core.Error {
	e.mu.Lock()
	ex, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return core.NewError(core.KindValidation, "unknown execution %s", executionID)
	}
	if err := e.transitionLocked(ex, core.ExecFailed); err != nil {
		e.mu.Unlock()
		return err
	}
	ex.CompletedAt = e.clock.Now()
	ex.Result = &core.ExecutionResult{Success: false, Error: reason}
	agentID := ex.AgentID
	e.releaseAgentResourcesLocked(agentID, ex.Resources)
	e.recordAgentOutcomeLocked(agentID, ex, false)
	retried := e.maybeRetryLocked(ex)
	e.mu.Unlock()

	e.stopMonitor(executionID)
	if retried {
		e.bus.Emit(events.ExecutionRetry, map[string]any{"executionId": executionID, "taskId": ex.TaskID})
	} else {
		e.bus.Emit(events.ExecutionCompleted, map[string]any{"executionId": executionID, "taskId": ex.TaskID, "success": false, "final": true})
	}
	return nil
}

// CancelExecution cancels a queued or running execution (spec.md §4.4
// cancel()).
func (e *Engine) CancelExecution(executionID string) *core.Error {
	e.mu.Lock()
	ex, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return core.NewError(core.KindValidation, "unknown execution %s", executionID)
	}
	if err := e.transitionLocked(ex, core.ExecCancelled); err != nil {
		e.mu.Unlock()
		return err
	}
	ex.CompletedAt = e.clock.Now()
	if ex.AgentID != "" {
		e.releaseAgentResourcesLocked(ex.AgentID, ex.Resources)
	}
	e.mu.Unlock()

	e.stopMonitor(executionID)
	e.bus.Emit(events.ExecutionCancelled, map[string]any{"executionId": executionID, "taskId": ex.TaskID})
	return nil
}

// maybeRetryLocked creates a fresh queued execution for the same task if
// retryCount < maxRetries, per spec.md §4.4. Caller must hold e.mu.
func (e *Engine) maybeRetryLocked(ex *core.Execution) bool {
	if ex.RetryCount >= ex.MaxRetries {
		return false
	}
	next := &core.Execution{
		ExecutionID: core.NewID("exec"),
		TaskID:      ex.TaskID,
		Status:      core.ExecQueued,
		Priority:    ex.Priority,
		ScheduledAt: e.clock.Now(),
		RetryCount:  ex.RetryCount + 1,
		MaxRetries:  ex.MaxRetries,
		Resources:   ex.Resources,
	}
	e.executions[next.ExecutionID] = next
	return true
}

// Execution returns a copy of the execution record.
func (e *Engine) Execution(executionID string) (*core.Execution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ex, ok := e.executions[executionID]
	if !ok {
		return nil, false
	}
	clone := *ex
	return &clone, true
}

func (e *Engine) releaseAgentResourcesLocked(agentID string, resources core.ResourceRequirements) {
	if agentID == "" {
		return
	}
	agent, ok := e.agents[agentID]
	if !ok {
		return
	}
	agent.CurrentUsage.MemoryMB -= resources.MemoryMB
	agent.CurrentUsage.CPUWeight -= resources.CPUWeight
	if agent.ActiveTasks > 0 {
		agent.ActiveTasks--
	}
	if agent.ActiveTasks == 0 && agent.Status == core.AgentBusy {
		agent.Status = core.AgentIdle
	}
}

func (e *Engine) recordAgentOutcomeLocked(agentID string, ex *core.Execution, success bool) {
	if agentID == "" {
		return
	}
	agent, ok := e.agents[agentID]
	if !ok {
		return
	}
	agent.Metadata.TotalTasksExecuted++
	duration := ex.CompletedAt.Sub(ex.StartedAt).Seconds()
	n := float64(agent.Metadata.TotalTasksExecuted)
	agent.Metadata.AverageExecutionTime += (duration - agent.Metadata.AverageExecutionTime) / n
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	agent.Metadata.SuccessRate += (outcome - agent.Metadata.SuccessRate) / n
}
