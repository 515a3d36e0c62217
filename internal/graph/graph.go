// Package graph implements the Dependency Graph Engine (spec.md §4.3): an
// in-memory DAG of tasks with typed, weighted dependency edges, cycle
// prevention, critical-path/parallel-batch analysis and checksum-verified
// serialisation. Grounded on other_examples/58b88f0b_fireflyframework-…
// internal-dag-graph.go.go (adjacency + reverse-index shape, deterministic
// insertion-ordered traversal) generalized to typed, weighted edges over
// TaskForge's task vocabulary (spec.md §3).
package graph

import (
	"sort"
	"sync"

	"taskforge/internal/core"
)

// Graph is the dependency graph for one project. adjacency maps a
// dependencyId to the set of dependentIds that require it; reverseIndex
// maps a dependentId to the set of dependencyIds it requires — the exact
// pair named in spec.md §3.
type Graph struct {
	mu sync.RWMutex

	projectID string
	nodes     map[string]*core.Task
	ordered   []string // insertion order, for deterministic tie-breaking
	edges     map[string]*core.Dependency // "from->to" -> edge

	adjacency   map[string]map[string]bool // dependencyId -> dependentIds
	reverseIndex map[string]map[string]bool // dependentId -> dependencyIds

	dirty    bool
	analysis *Analysis
}

// New creates an empty graph for a project.
func New(projectID string) *Graph {
	return &Graph{
		projectID:    projectID,
		nodes:        make(map[string]*core.Task),
		edges:        make(map[string]*core.Dependency),
		adjacency:    make(map[string]map[string]bool),
		reverseIndex: make(map[string]map[string]bool),
		dirty:        true,
	}
}

// ProjectID returns the owning project id.
func (g *Graph) ProjectID() string { return g.projectID }

// AddTask inserts a node. Idempotent on identical id with identical
// attributes; otherwise fails with KindConflict (spec.md §4.3 addTask).
func (g *Graph) AddTask(task *core.Task) *core.Error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.nodes[task.ID]; ok {
		if tasksEqual(existing, task) {
			return nil
		}
		return core.NewError(core.KindConflict, "task %s already exists with different attributes", task.ID)
	}

	g.nodes[task.ID] = task
	g.ordered = append(g.ordered, task.ID)
	g.adjacency[task.ID] = make(map[string]bool)
	g.reverseIndex[task.ID] = make(map[string]bool)
	g.dirty = true
	return nil
}

func tasksEqual(a, b *core.Task) bool {
	return a.Title == b.Title && a.Description == b.Description && a.Status == b.Status &&
		a.Priority == b.Priority && a.EstimatedHours == b.EstimatedHours &&
		a.ProjectID == b.ProjectID && a.EpicID == b.EpicID
}

// HasTask reports whether id is a known node.
func (g *Graph) HasTask(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Task returns a copy of the node's current task record.
func (g *Graph) Task(id string) (*core.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	clone := *t
	return &clone, true
}

// SetTaskStatus mutates a node's status, the only way the execution engine
// is allowed to touch a graph node (spec.md §3 ownership rules).
func (g *Graph) SetTaskStatus(id string, status core.TaskStatus) *core.Error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.nodes[id]
	if !ok {
		return core.NewError(core.KindValidation, "unknown task %s", id)
	}
	t.Status = status
	g.dirty = true
	return nil
}

// AddDependency adds a directed edge dept -> dep ("dept requires dep").
// Requires both endpoints present, dept != dep, and DAG preservation
// (spec.md §4.3).
func (g *Graph) AddDependency(dept, dep string, typ core.DependencyType, weight float64, critical bool, desc string) *core.Error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if dept == dep {
		return core.NewError(core.KindValidation, "self-dependency on %s", dept).WithDetail("kind", "selfDependency")
	}
	if _, ok := g.nodes[dept]; !ok {
		return core.NewError(core.KindValidation, "unknown task %s", dept).WithDetail("kind", "missingTask")
	}
	if _, ok := g.nodes[dep]; !ok {
		return core.NewError(core.KindValidation, "unknown task %s", dep).WithDetail("kind", "missingTask")
	}

	key := core.EdgeKey(dept, dep)
	if _, exists := g.edges[key]; exists {
		return core.NewError(core.KindConflict, "edge %s already exists", key)
	}

	if weight <= 0 {
		weight = 1
	}

	if g.reachesViaAdjacencyLocked(dept, dep) {
		return core.NewError(core.KindCycle, "adding %s would introduce a cycle", key)
	}

	g.edges[key] = &core.Dependency{
		ID: key, Dependent: dept, Dependency: dep, Type: typ,
		Weight: weight, Critical: critical, Description: desc,
	}
	g.adjacency[dep][dept] = true
	g.reverseIndex[dept][dep] = true

	g.nodes[dept].Dependencies = appendUnique(g.nodes[dept].Dependencies, dep)
	g.nodes[dep].Dependents = appendUnique(g.nodes[dep].Dependents, dept)

	g.dirty = true
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// RemoveDependency removes an edge; a no-op if absent (spec.md §4.3).
func (g *Graph) RemoveDependency(dept, dep string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := core.EdgeKey(dept, dep)
	if _, ok := g.edges[key]; !ok {
		return
	}
	delete(g.edges, key)
	delete(g.adjacency[dep], dept)
	delete(g.reverseIndex[dept], dep)
	g.nodes[dept].Dependencies = removeValue(g.nodes[dept].Dependencies, dep)
	g.nodes[dep].Dependents = removeValue(g.nodes[dep].Dependents, dept)
	g.dirty = true
}

func removeValue(list []string, v string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}

// reachesViaAdjacencyLocked asks "does dept already reach dep via a DFS
// traversal of adjacency?" (spec.md §4.3's cycle check, run before every
// mutation commits). Caller must hold g.mu.
func (g *Graph) reachesViaAdjacencyLocked(dept, dep string) bool {
	visited := map[string]bool{}
	stack := []string{dept}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range g.adjacency[n] {
			if next == dep {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// ReadyTasks returns ids whose status is pending and whose every
// dependency is completed (spec.md §4.3 readyTasks, the Ready-task
// invariant of spec.md §8).
func (g *Graph) ReadyTasks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ready []string
	for _, id := range g.ordered {
		t := g.nodes[id]
		if t.Status != core.TaskPending {
			continue
		}
		allDone := true
		for dep := range g.reverseIndex[id] {
			if g.nodes[dep].Status != core.TaskCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}
	return ready
}

// NodeCount returns the number of tasks in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of dependency edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Edges returns a snapshot of all edges, sorted by key for determinism.
func (g *Graph) Edges() []*core.Dependency {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*core.Dependency, 0, len(g.edges))
	for _, e := range g.edges {
		clone := *e
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Nodes returns all task ids in insertion order.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.ordered))
	copy(out, g.ordered)
	return out
}

// markClean stores a freshly computed Analysis and clears the dirty flag.
// Caller must hold g.mu (write lock).
func (g *Graph) markClean(a *Analysis) {
	g.analysis = a
	g.dirty = false
}
