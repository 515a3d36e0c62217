// Package core holds the data model shared by every TaskForge engine:
// tasks, projects, epics, dependency edges, agents and executions, plus
// the typed Result/Error convention used at every public boundary.
package core

import "time"

// TaskStatus is the lifecycle state of a Task node in the dependency graph.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskTimeout   TaskStatus = "timeout"
	TaskBlocked   TaskStatus = "blocked" // diagnostic-only: dependents of a finally-failed task
)

// TaskPriority ranks tasks for scheduling purposes.
type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

// priorityRank maps a priority to a 0..3 rank used by scheduling subscores,
// lower is more urgent.
var priorityRank = map[TaskPriority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Rank returns the priority's scheduling rank (0 = most urgent).
func (p TaskPriority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// DependencyType classifies a dependency edge.
type DependencyType string

const (
	DepTask        DependencyType = "task"
	DepPackage     DependencyType = "package"
	DepFramework   DependencyType = "framework"
	DepTool        DependencyType = "tool"
	DepImport      DependencyType = "import"
	DepEnvironment DependencyType = "environment"
)

// Task is an atomic unit of work (spec.md §3).
type Task struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         TaskStatus `json:"status"`
	Priority       TaskPriority `json:"priority"`
	EstimatedHours float64    `json:"estimatedHours"`
	ProjectID      string     `json:"projectId"`
	EpicID         string     `json:"epicId,omitempty"`
	FilePaths      []string   `json:"filePaths,omitempty"`
	TaskType       string     `json:"taskType,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	// Denormalised caches rebuilt on load (spec.md §9): never the
	// source of truth, the graph's adjacency/reverseIndex are.
	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
	CriticalPath bool     `json:"criticalPath,omitempty"`
}

// Valid reports whether the task satisfies the data-model invariants
// (spec.md §3: estimatedHours > 0).
func (t *Task) Valid() bool {
	return t.ID != "" && t.EstimatedHours > 0
}

// Project owns many Tasks and Epics.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Epic groups tasks within a project.
type Epic struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TaskIDs     []string  `json:"taskIds,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Dependency is a directed edge: Dependent requires Dependency to finish
// before it may start.
type Dependency struct {
	ID          string         `json:"id"` // "from->to"
	Dependent   string         `json:"dependent"`
	Dependency  string         `json:"dependency"`
	Type        DependencyType `json:"type"`
	Weight      float64        `json:"weight"`
	Critical    bool           `json:"critical"`
	Description string         `json:"description,omitempty"`
}

// EdgeKey returns the canonical "from->to" key for an edge.
func EdgeKey(dependent, dependency string) string {
	return dependent + "->" + dependency
}

// AgentStatus is the lifecycle state of a worker agent.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
	AgentError   AgentStatus = "error"
)

// ResourceUsage describes a quantity of memory/CPU/slots, used both as an
// agent's capacity ceiling and as its currently-consumed usage.
type ResourceUsage struct {
	MemoryMB           float64 `json:"memoryMB"`
	CPUWeight          float64 `json:"cpuWeight"`
	MaxConcurrentTasks int     `json:"maxConcurrentTasks"`
}

// AgentMetadata tracks rolling performance counters for an agent.
type AgentMetadata struct {
	LastHeartbeat       time.Time `json:"lastHeartbeat"`
	TotalTasksExecuted  int       `json:"totalTasksExecuted"`
	AverageExecutionTime float64  `json:"averageExecutionTime"` // seconds
	SuccessRate         float64   `json:"successRate"`          // 0..1
}

// Agent is a worker that executes tasks.
type Agent struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Status       AgentStatus   `json:"status"`
	Capacity     ResourceUsage `json:"capacity"`
	CurrentUsage ResourceUsage `json:"currentUsage"`
	ActiveTasks  int           `json:"activeTasks"`
	Metadata     AgentMetadata `json:"metadata"`
}

// ExecutionStatus is the lifecycle state of a single task attempt.
type ExecutionStatus string

const (
	ExecQueued    ExecutionStatus = "queued"
	ExecRunning   ExecutionStatus = "running"
	ExecCompleted ExecutionStatus = "completed"
	ExecFailed    ExecutionStatus = "failed"
	ExecCancelled ExecutionStatus = "cancelled"
	ExecTimeout   ExecutionStatus = "timeout"
)

// ExecutionResult carries the outcome of a finished attempt.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ResourceRequirements is the footprint an execution asks an agent to reserve.
type ResourceRequirements struct {
	MemoryMB                 float64 `json:"memoryMB"`
	CPUWeight                float64 `json:"cpuWeight"`
	EstimatedDurationMinutes float64 `json:"estimatedDurationMinutes"`
}

// Execution is a single attempt to run one task on one agent (spec.md §3,
// state machine in spec.md §4.4).
type Execution struct {
	ExecutionID  string               `json:"executionId"`
	TaskID       string               `json:"taskId"`
	AgentID      string               `json:"agentId,omitempty"`
	Status       ExecutionStatus      `json:"status"`
	Priority     TaskPriority         `json:"priority"`
	ScheduledAt  time.Time            `json:"scheduledAt"`
	StartedAt    time.Time            `json:"startedAt,omitempty"`
	CompletedAt  time.Time            `json:"completedAt,omitempty"`
	RetryCount   int                  `json:"retryCount"`
	MaxRetries   int                  `json:"maxRetries"`
	TimeoutAt    time.Time            `json:"timeoutAt,omitempty"`
	Result       *ExecutionResult     `json:"result,omitempty"`
	Resources    ResourceRequirements `json:"resourceRequirements"`
}
