package graph

// DetectCycles runs a full white/gray/black DFS over the graph and returns
// every cycle found as an ordered list of task ids (spec.md §4.3
// detectCycles). AddDependency already refuses any edge that would create a
// cycle, and Load rebuilds graphs through AddDependency as well, so in
// normal operation this returns nil; it is a standalone diagnostic (Validate
// runs the same traversal through detectCyclesLocked).
func (g *Graph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var cycles [][]string

	var path []string
	onPath := make(map[string]int) // node -> index in path

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
				cycle := append([]string{}, path[start:]...)
				cycles = append(cycles, cycle)
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
