package graph

import "taskforge/internal/core"

// Analysis bundles the three read-only computations spec.md §4.3 names:
// topologicalOrder, criticalPath and parallelBatches. Graph caches the last
// Analysis and recomputes only when the graph has been mutated since
// (spec.md §4.3: "memoized, invalidated on any mutation").
type Analysis struct {
	TopoOrder       []string
	CriticalPath    []string
	CriticalHours   float64
	ParallelBatches [][]string
}

// Analyze returns the memoized Analysis, recomputing it first if the graph
// has changed since the last call.
func (g *Graph) Analyze() (*Analysis, *core.Error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.dirty && g.analysis != nil {
		return g.analysis, nil
	}

	order, err := g.topologicalOrderLocked()
	if err != nil {
		return nil, err
	}
	path, hours := g.criticalPathLocked(order)
	batches := g.parallelBatchesLocked(order)

	a := &Analysis{TopoOrder: order, CriticalPath: path, CriticalHours: hours, ParallelBatches: batches}
	g.markClean(a)
	return a, nil
}

// topologicalOrderLocked runs Kahn's algorithm over the reverseIndex
// (dependent -> dependencies) so dependencies precede their dependents in
// the returned order, breaking ties by insertion order for determinism.
// Caller must hold g.mu.
func (g *Graph) topologicalOrderLocked() ([]string, *core.Error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.reverseIndex[id])
	}

	var queue []string
	for _, id := range g.ordered {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var order []string
	for len(queue) > 0 {
		// deterministic pop: earliest insertion-order entry in queue
		idx := 0
		for i, id := range queue {
			if g.insertionIndex(id) < g.insertionIndex(queue[idx]) {
				idx = i
			}
			_ = i
		}
		node := queue[idx]
		queue = append(queue[:idx], queue[idx+1:]...)
		order = append(order, node)

		dependents := make([]string, 0, len(g.adjacency[node]))
		for dept := range g.adjacency[node] {
			dependents = append(dependents, dept)
		}
		sortByInsertion(g, dependents)
		for _, dept := range dependents {
			inDegree[dept]--
			if inDegree[dept] == 0 {
				queue = append(queue, dept)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, core.NewError(core.KindCycle, "graph contains a cycle: topological sort covered %d/%d nodes", len(order), len(g.nodes))
	}
	return order, nil
}

func (g *Graph) insertionIndex(id string) int {
	for i, n := range g.ordered {
		if n == id {
			return i
		}
	}
	return len(g.ordered)
}

func sortByInsertion(g *Graph, ids []string) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && g.insertionIndex(ids[j-1]) > g.insertionIndex(ids[j]); j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// criticalPathLocked computes the longest weighted path through the DAG.
// Each node's distance is its own estimatedHours, scaled by the weight of
// whichever incoming dependency edge yields the longest path to it (spec.md
// §4.3: "node weight = estimatedHours × incomingEdge.weight"); ties prefer
// the predecessor with the earlier topological index. Side effect: sets
// core.Task.CriticalPath true on the chosen path's nodes and false on every
// other node (spec.md §4.3: "marks node.criticalPath = true on the chosen
// path"). Caller must hold g.mu.
func (g *Graph) criticalPathLocked(order []string) ([]string, float64) {
	dist := make(map[string]float64, len(order))
	pred := make(map[string]string, len(order))
	topoIndex := make(map[string]int, len(order))
	for i, id := range order {
		topoIndex[id] = i
	}

	for _, id := range order {
		task := g.nodes[id]
		deps := make([]string, 0, len(g.reverseIndex[id]))
		for dep := range g.reverseIndex[id] {
			deps = append(deps, dep)
		}
		if len(deps) == 0 {
			dist[id] = task.EstimatedHours
			continue
		}
		sortByTopo(deps, topoIndex)
		best := -1.0
		var bestPred string
		for _, dep := range deps {
			weight := 1.0
			if edge, ok := g.edges[core.EdgeKey(id, dep)]; ok {
				weight = edge.Weight
			}
			candidate := dist[dep] + task.EstimatedHours*weight
			if candidate > best || (candidate == best && topoIndex[dep] < topoIndex[bestPred]) {
				best = candidate
				bestPred = dep
			}
		}
		dist[id] = best
		pred[id] = bestPred
	}

	var end string
	bestDist := -1.0
	for _, id := range order {
		if dist[id] > bestDist || (dist[id] == bestDist && topoIndex[id] < topoIndex[end]) {
			bestDist = dist[id]
			end = id
		}
	}
	if end == "" {
		return nil, 0
	}

	var path []string
	for n := end; n != ""; n = pred[n] {
		path = append([]string{n}, path...)
		if _, ok := pred[n]; !ok {
			break
		}
	}

	onPath := make(map[string]bool, len(path))
	for _, id := range path {
		onPath[id] = true
	}
	for _, id := range order {
		g.nodes[id].CriticalPath = onPath[id]
	}

	return path, bestDist
}

func sortByTopo(ids []string, topoIndex map[string]int) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && topoIndex[ids[j-1]] > topoIndex[ids[j]]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// parallelBatchesLocked peels the DAG into layers: batch 0 is every node
// with no dependencies, batch k+1 is every remaining node whose
// dependencies are all satisfied by batches 0..k (spec.md §4.3
// parallelBatches). Caller must hold g.mu.
func (g *Graph) parallelBatchesLocked(order []string) [][]string {
	resolved := make(map[string]bool, len(order))
	var batches [][]string
	remaining := append([]string{}, order...)

	for len(remaining) > 0 {
		var batch []string
		var next []string
		for _, id := range remaining {
			ready := true
			for dep := range g.reverseIndex[id] {
				if !resolved[dep] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, id)
			} else {
				next = append(next, id)
			}
		}
		if len(batch) == 0 {
			break // shouldn't happen on a validated DAG
		}
		for _, id := range batch {
			resolved[id] = true
		}
		batches = append(batches, batch)
		remaining = next
	}
	return batches
}

// BatchDuration returns the duration of a parallel batch: the slowest task
// in it, since batch members run concurrently (spec.md §4.3).
func (g *Graph) BatchDuration(batch []string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	max := 0.0
	for _, id := range batch {
		if h := g.nodes[id].EstimatedHours; h > max {
			max = h
		}
	}
	return max
}
