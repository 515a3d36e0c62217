package execution

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"taskforge/internal/config"
	"taskforge/internal/core"
	"taskforge/internal/events"
)

// tick runs one scheduler pass (spec.md §4.4 Scheduler): sort the queue,
// take up to batchSize, dispatch each to its optimal agent. Dispatch of the
// batch is bounded by batchSemaphore and rate-limited by dispatchLimiter
// (SPEC_FULL.md §11: golang.org/x/sync/semaphore + golang.org/x/time/rate),
// mirroring the teacher orchestrator's bounded-parallelism runPhase loop
// generalized from "run phase tasks" to "dispatch queued executions".
func (e *Engine) tick() {
	e.mu.RLock()
	var queued []*core.Execution
	for _, ex := range e.executions {
		if ex.Status == core.ExecQueued {
			clone := *ex
			queued = append(queued, &clone)
		}
	}
	agentsSnapshot := make([]*core.Agent, 0, len(e.agents))
	for _, a := range e.agents {
		clone := *a
		agentsSnapshot = append(agentsSnapshot, &clone)
	}
	e.mu.RUnlock()

	sortQueue(queued, e.cfg.Scheduling.Algorithm)
	if len(queued) > e.cfg.Scheduling.BatchSize {
		queued = queued[:e.cfg.Scheduling.BatchSize]
	}

	var wg sync.WaitGroup
	for _, ex := range queued {
		ex := ex
		agentID, ok := e.pickOptimalAgent(ex, agentsSnapshot)
		if !ok {
			continue // unassigned executions remain queued, spec.md §4.4 step 5
		}
		// Reserve the pick on the snapshot so lower-ranked executions later in
		// this batch do not select a slot an earlier one already took.
		for _, a := range agentsSnapshot {
			if a.ID == agentID {
				a.CurrentUsage.MemoryMB += ex.Resources.MemoryMB
				a.CurrentUsage.CPUWeight += ex.Resources.CPUWeight
				a.ActiveTasks++
				if a.ActiveTasks >= a.Capacity.MaxConcurrentTasks {
					a.Status = core.AgentBusy
				}
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			if err := e.batchSemaphore.Acquire(ctx, 1); err != nil {
				return
			}
			defer e.batchSemaphore.Release(1)
			if err := e.dispatchLimiter.Wait(ctx); err != nil {
				return
			}
			e.assign(ex.ExecutionID, agentID)
		}()
	}
	wg.Wait()
}

// sortQueue orders the queue per the configured scheduling algorithm
// (spec.md §4.4 step 1). Ties always break on the lower executionId
// string so scheduling stays deterministic for tests.
func sortQueue(queue []*core.Execution, algo config.SchedulingAlgorithm) {
	score := func(ex *core.Execution) float64 {
		switch algo {
		case config.AlgorithmEarliestDeadline:
			if ex.TimeoutAt.IsZero() {
				return math.MaxFloat64
			}
			return float64(ex.TimeoutAt.UnixNano())
		case config.AlgorithmShortestJob:
			return ex.Resources.EstimatedDurationMinutes
		case config.AlgorithmResourceBalanced:
			return ex.Resources.MemoryMB + ex.Resources.CPUWeight*100
		case config.AlgorithmHybridOptimal:
			return -hybridScore(ex)
		default: // priorityFirst
			return float64(ex.Priority.Rank())
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		si, sj := score(queue[i]), score(queue[j])
		if si != sj {
			return si < sj
		}
		return queue[i].ExecutionID < queue[j].ExecutionID
	})
}

// hybridScore sums the four [0,25] subscores of spec.md §4.4
// hybridOptimal: priority rank, urgency, resource penalty, duration
// penalty. Higher is more urgent to schedule.
func hybridScore(ex *core.Execution) float64 {
	priorityScore := 25.0 - float64(ex.Priority.Rank())*25.0/3.0

	urgencyScore := 12.5
	if !ex.TimeoutAt.IsZero() {
		remaining := time.Until(ex.TimeoutAt).Minutes()
		switch {
		case remaining <= 0:
			urgencyScore = 25
		case remaining > 1440:
			urgencyScore = 0
		default:
			urgencyScore = 25 * (1 - remaining/1440)
		}
	}

	footprint := ex.Resources.MemoryMB/8192 + ex.Resources.CPUWeight/16
	resourcePenalty := 25 * (1 - math.Min(footprint, 1))

	durationPenalty := 25.0
	if ex.Resources.EstimatedDurationMinutes > 0 {
		durationPenalty = 25 * (1 - math.Min(ex.Resources.EstimatedDurationMinutes/480, 1))
	}

	return priorityScore + urgencyScore + resourcePenalty + durationPenalty
}

// pickOptimalAgent selects the eligible agent maximising
// utilizationScore+performanceScore (spec.md §4.4 step 3).
func (e *Engine) pickOptimalAgent(ex *core.Execution, agents []*core.Agent) (string, bool) {
	var best *core.Agent
	bestScore := -1.0
	for _, agent := range agents {
		if !eligible(agent, ex.Resources) {
			continue
		}
		score := utilizationScore(agent) + performanceScore(agent)
		if score > bestScore {
			bestScore = score
			best = agent
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

func eligible(agent *core.Agent, req core.ResourceRequirements) bool {
	if agent.Status != core.AgentIdle {
		return false
	}
	freeMem := agent.Capacity.MemoryMB - agent.CurrentUsage.MemoryMB
	freeCPU := agent.Capacity.CPUWeight - agent.CurrentUsage.CPUWeight
	freeSlots := agent.Capacity.MaxConcurrentTasks - agent.ActiveTasks
	return freeMem >= req.MemoryMB && freeCPU >= req.CPUWeight && freeSlots >= 1
}

func utilizationScore(agent *core.Agent) float64 {
	memUse := safeRatio(agent.CurrentUsage.MemoryMB, agent.Capacity.MemoryMB)
	cpuUse := safeRatio(agent.CurrentUsage.CPUWeight, agent.Capacity.CPUWeight)
	taskUse := safeRatio(float64(agent.ActiveTasks), float64(agent.Capacity.MaxConcurrentTasks))
	mean := (memUse + cpuUse + taskUse) / 3
	return (1 - mean) * 50
}

func performanceScore(agent *core.Agent) float64 {
	return agent.Metadata.SuccessRate * 50
}

func safeRatio(used, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return used / capacity
}

// assign commits an execution to an agent (spec.md §4.4 step 4): status ->
// running, resources deducted, agent busy, watchdog started.
func (e *Engine) assign(executionID, agentID string) {
	e.mu.Lock()
	ex, ok := e.executions[executionID]
	if !ok {
		e.mu.Unlock()
		return
	}
	agent, ok := e.agents[agentID]
	if !ok {
		e.mu.Unlock()
		return
	}
	// tick picks against a snapshot taken once per batch, and the live agent
	// can change between that snapshot and this call. Re-validate
	// eligibility against the live agent state under the lock before
	// committing; an execution that no longer fits is left ExecQueued and
	// gets reconsidered on the next tick (spec.md §5: "double-booking is
	// impossible").
	if !eligible(agent, ex.Resources) {
		e.mu.Unlock()
		return
	}
	if err := e.transitionLocked(ex, core.ExecRunning); err != nil {
		e.mu.Unlock()
		e.log.Warn("assign %s: %v", executionID, err)
		return
	}
	ex.AgentID = agentID
	ex.StartedAt = e.clock.Now()
	timeout := e.cfg.Watchdog.DefaultTimeout
	if ex.Resources.EstimatedDurationMinutes > 0 {
		timeout = time.Duration(ex.Resources.EstimatedDurationMinutes) * time.Minute
	}
	ex.TimeoutAt = ex.StartedAt.Add(timeout)

	agent.CurrentUsage.MemoryMB += ex.Resources.MemoryMB
	agent.CurrentUsage.CPUWeight += ex.Resources.CPUWeight
	agent.ActiveTasks++
	if agent.ActiveTasks >= agent.Capacity.MaxConcurrentTasks {
		agent.Status = core.AgentBusy
	}
	e.mu.Unlock()

	e.startMonitor(ex.ExecutionID, ex.StartedAt, ex.TimeoutAt, e.cfg.Watchdog.WarningThreshold)
	e.bus.Emit(events.TaskAssigned, map[string]any{"executionId": executionID, "agentId": agentID, "taskId": ex.TaskID})
}
