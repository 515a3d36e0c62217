package graph

// IssueSeverity distinguishes structural errors from advisory warnings
// (spec.md §4.3 validate()).
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// IssueKind names the specific rule an Issue violates.
type IssueKind string

const (
	IssueCycle           IssueKind = "cycle"
	IssueMissingTask     IssueKind = "missingTask"
	IssueSelfDependency  IssueKind = "selfDependency"
	IssueConflict        IssueKind = "conflict"
	IssueRedundant       IssueKind = "redundant"
	IssueInefficient     IssueKind = "inefficient"
	IssuePotentialIssue  IssueKind = "potentialIssue"
)

// Issue is a single validate() finding.
type Issue struct {
	Severity IssueSeverity
	Kind     IssueKind
	TaskID   string
	EdgeID   string
	Message  string
}

// Validate runs the full diagnostic sweep named in spec.md §4.3: cycle
// detection, dangling references, and advisory warnings for redundant or
// suspicious edges. AddDependency already rejects cycles and missing
// endpoints at insert time, and Load (serialize.go) rebuilds graphs through
// the same AddTask/AddDependency path, so those error-severity checks are
// defensive.
func (g *Graph) Validate() []Issue {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var issues []Issue

	for _, cycle := range g.detectCyclesLocked() {
		issues = append(issues, Issue{
			Severity: SeverityError, Kind: IssueCycle,
			Message: "cycle detected: " + joinCycle(cycle),
		})
	}

	for key, edge := range g.edges {
		if _, ok := g.nodes[edge.Dependent]; !ok {
			issues = append(issues, Issue{Severity: SeverityError, Kind: IssueMissingTask, EdgeID: key, TaskID: edge.Dependent, Message: "edge references unknown dependent " + edge.Dependent})
		}
		if _, ok := g.nodes[edge.Dependency]; !ok {
			issues = append(issues, Issue{Severity: SeverityError, Kind: IssueMissingTask, EdgeID: key, TaskID: edge.Dependency, Message: "edge references unknown dependency " + edge.Dependency})
		}
		if edge.Dependent == edge.Dependency {
			issues = append(issues, Issue{Severity: SeverityError, Kind: IssueSelfDependency, EdgeID: key, TaskID: edge.Dependent, Message: "self-dependency on " + edge.Dependent})
		}
	}

	for key, edge := range g.edges {
		if g.hasAlternatePathLocked(edge.Dependent, edge.Dependency, key) {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Kind: IssueRedundant, EdgeID: key,
				Message: "edge " + key + " is redundant: an alternate path already connects its endpoints",
			})
		}

		if dep, ok := g.nodes[edge.Dependency]; ok && edge.Weight > 3 && dep.EstimatedHours < 0.5 {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Kind: IssueInefficient, EdgeID: key,
				Message: "edge " + key + " assigns high weight to a near-trivial dependency",
			})
		}

		dept, deptOk := g.nodes[edge.Dependent]
		dep, depOk := g.nodes[edge.Dependency]
		if deptOk && depOk && dept.Priority.Rank() == 0 && dep.Priority.Rank() >= 2 {
			issues = append(issues, Issue{
				Severity: SeverityWarning, Kind: IssuePotentialIssue, EdgeID: key,
				Message: "critical task " + dept.ID + " is blocked by low-priority task " + dep.ID,
			})
		}
	}

	return issues
}

// detectCyclesLocked is DetectCycles without re-acquiring the read lock, for
// use from Validate which already holds it.
func (g *Graph) detectCyclesLocked() [][]string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var cycles [][]string
	var path []string
	onPath := make(map[string]int)

	var visit func(node string)
	visit = func(node string) {
		color[node] = gray
		path = append(path, node)
		onPath[node] = len(path) - 1
		for dept := range g.reverseIndex[node] {
			switch color[dept] {
			case white:
				visit(dept)
			case gray:
				start := onPath[dept]
				cycles = append(cycles, append([]string{}, path[start:]...))
			}
		}
		path = path[:len(path)-1]
		delete(onPath, node)
		color[node] = black
	}
	for _, id := range g.ordered {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

// hasAlternatePathLocked reports whether dept can still reach dep while
// ignoring the edge keyed skipEdge, meaning that edge is not the only path
// connecting them.
func (g *Graph) hasAlternatePathLocked(dept, dep, skipEdge string) bool {
	visited := map[string]bool{}
	stack := []string{dept}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for d := range g.reverseIndex[n] {
			key := edgeKeyFor(n, d)
			if key == skipEdge {
				continue
			}
			if d == dep {
				return true
			}
			if !visited[d] {
				visited[d] = true
				stack = append(stack, d)
			}
		}
	}
	return false
}

func edgeKeyFor(dept, dep string) string { return dept + "->" + dep }

func joinCycle(cycle []string) string {
	out := ""
	for i, id := range cycle {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}
