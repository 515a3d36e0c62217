package graph

import (
	"encoding/json"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"taskforge/internal/core"
	"taskforge/internal/storage"
)

// Format selects the on-disk encoding for a graph file (spec.md §4.3 save()
// supports both json and yaml).
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const recordVersion = "1.0.0"

// graphMetadata is the "metadata" object of spec.md §6's serialised-graph
// contract: derived, read-only summary data alongside the raw nodes/edges.
type graphMetadata struct {
	TotalNodes       int             `json:"totalNodes" yaml:"totalNodes"`
	TotalEdges       int             `json:"totalEdges" yaml:"totalEdges"`
	CriticalPath     []string        `json:"criticalPath" yaml:"criticalPath"`
	TopologicalOrder []string        `json:"topologicalOrder" yaml:"topologicalOrder"`
	ParallelBatches  [][]string      `json:"parallelBatches" yaml:"parallelBatches"`
	Metrics          map[string]any  `json:"metrics" yaml:"metrics"`
}

// record is the on-disk shape of a saved graph (spec.md §6: "{ version,
// projectId, timestamp, format, checksum, nodes, edges, adjacencyList,
// reverseIndex, metadata{...} }"), with a checksum computed over everything
// but the checksum and timestamp fields themselves (storage.Checksum).
//
// The field is named "timestamp", not "savedAt": storage.Checksum's strip
// list excludes a JSON/YAML key literally named "timestamp" (spec.md §6
// checksum contract, "`timestamp` fields removed"), so the wire name here
// must match it exactly or the stamp leaks into the hash and breaks the
// round-trip invariant (spec.md §8: checksum(deserialize(serialize(g))) =
// checksum(g)).
type record struct {
	ProjectID     string               `json:"projectId" yaml:"projectId"`
	Version       string               `json:"version" yaml:"version"`
	Timestamp     time.Time            `json:"timestamp" yaml:"timestamp"`
	Format        Format               `json:"format" yaml:"format"`
	Tasks         []*core.Task         `json:"nodes" yaml:"nodes"`
	Edges         []*core.Dependency   `json:"edges" yaml:"edges"`
	AdjacencyList map[string][]string  `json:"adjacencyList" yaml:"adjacencyList"`
	ReverseIndex  map[string][]string  `json:"reverseIndex" yaml:"reverseIndex"`
	Metadata      graphMetadata        `json:"metadata" yaml:"metadata"`
	Checksum      uint32               `json:"checksum" yaml:"checksum"`
}

func (g *Graph) toRecord(format Format, analysis *Analysis) *record {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tasks := make([]*core.Task, 0, len(g.nodes))
	for _, id := range g.ordered {
		tasks = append(tasks, g.nodes[id])
	}
	edges := make([]*core.Dependency, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	adjacencyList := make(map[string][]string, len(g.adjacency))
	for id, set := range g.adjacency {
		adjacencyList[id] = sortedSetKeys(set)
	}
	reverseIndex := make(map[string][]string, len(g.reverseIndex))
	for id, set := range g.reverseIndex {
		reverseIndex[id] = sortedSetKeys(set)
	}

	return &record{
		ProjectID:     g.projectID,
		Version:       recordVersion,
		Format:        format,
		Tasks:         tasks,
		Edges:         edges,
		AdjacencyList: adjacencyList,
		ReverseIndex:  reverseIndex,
		Metadata: graphMetadata{
			TotalNodes:       len(tasks),
			TotalEdges:       len(edges),
			CriticalPath:     analysis.CriticalPath,
			TopologicalOrder: analysis.TopoOrder,
			ParallelBatches:  analysis.ParallelBatches,
			Metrics:          map[string]any{"criticalHours": analysis.CriticalHours},
		},
	}
}

func sortedSetKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Serialize encodes the graph in the requested format, stamping a fresh
// timestamp and checksum over its content (spec.md §4.3). The analysis
// (topological order, critical path, parallel batches) is recomputed first
// so the metadata block reflects the current graph.
func (g *Graph) Serialize(format Format) ([]byte, error) {
	analysis, aerr := g.Analyze()
	if aerr != nil {
		return nil, aerr
	}
	rec := g.toRecord(format, analysis)
	rec.Timestamp = time.Now()

	checksum, err := storage.Checksum(rec)
	if err != nil {
		return nil, err
	}
	rec.Checksum = checksum

	switch format {
	case FormatYAML:
		return yaml.Marshal(rec)
	default:
		return json.MarshalIndent(rec, "", "  ")
	}
}

// Save persists the graph through the Storage Engine (spec.md §9 open
// question (a): graph persistence routes exclusively through the Storage
// Engine, never direct file I/O from this package). The previous file
// content, if any, is preserved as a ".backup" sibling first.
func (g *Graph) Save(engine *storage.Engine, format Format) error {
	data, err := g.Serialize(format)
	if err != nil {
		return err
	}
	path := engine.GraphPath(g.projectID) + extensionFor(format)
	return engine.WriteGraphFile(path, data, true)
}

func extensionFor(format Format) string {
	if format == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// Load reads a graph back from the Storage Engine and verifies its
// checksum (spec.md §4.3 load() + §7 corruption recovery). On a checksum
// mismatch it falls back to the ".backup" sibling written by the previous
// Save; if that also fails to verify, it returns a KindCorruption error.
func Load(engine *storage.Engine, projectID string, format Format) (*Graph, *core.Error) {
	path := engine.GraphPath(projectID) + extensionFor(format)
	data, err := engine.ReadGraphFile(path)
	if err != nil {
		return nil, core.NewError(core.KindSystem, "read graph %s: %v", path, err)
	}

	g, verifyErr := decode(projectID, data, format)
	if verifyErr == nil {
		return g, nil
	}

	backup, err := engine.ReadGraphBackup(path)
	if err != nil {
		return nil, core.NewError(core.KindCorruption, "graph %s is corrupt and no backup exists: %v", projectID, verifyErr)
	}
	g, verifyErr = decode(projectID, backup, format)
	if verifyErr != nil {
		return nil, core.NewError(core.KindCorruption, "graph %s and its backup are both corrupt: %v", projectID, verifyErr)
	}
	return g, nil
}

// decode unmarshals and checksum-verifies one record, then rebuilds a Graph
// from it via the normal AddTask/AddDependency path so every invariant
// (DAG preservation included) is re-checked on load.
func decode(projectID string, data []byte, format Format) (*Graph, *core.Error) {
	var rec record
	var err error
	if format == FormatYAML {
		err = yaml.Unmarshal(data, &rec)
	} else {
		err = json.Unmarshal(data, &rec)
	}
	if err != nil {
		return nil, core.NewError(core.KindCorruption, "decode graph: %v", err)
	}

	stored := rec.Checksum
	rec.Checksum = 0
	computed, cerr := storage.Checksum(rec)
	if cerr != nil {
		return nil, core.NewError(core.KindCorruption, "checksum graph: %v", cerr)
	}
	if computed != stored {
		return nil, core.NewError(core.KindCorruption, "checksum mismatch for graph %s: stored=%d computed=%d", projectID, stored, computed)
	}

	g := New(projectID)
	for _, t := range rec.Tasks {
		if aerr := g.AddTask(t); aerr != nil {
			return nil, aerr
		}
	}
	for _, e := range rec.Edges {
		if aerr := g.AddDependency(e.Dependent, e.Dependency, e.Type, e.Weight, e.Critical, e.Description); aerr != nil {
			return nil, aerr
		}
	}
	return g, nil
}

// IntegrityCheck reports whether a previously-saved graph file's stored
// checksum still matches its content, without fully reconstructing the
// graph (spec.md §4.3 integrityCheck). It runs only when called; the backup
// loop does not invoke it.
func IntegrityCheck(engine *storage.Engine, projectID string, format Format) (bool, *core.Error) {
	path := engine.GraphPath(projectID) + extensionFor(format)
	data, err := engine.ReadGraphFile(path)
	if err != nil {
		return false, core.NewError(core.KindSystem, "read graph %s: %v", path, err)
	}
	if _, verr := decode(projectID, data, format); verr != nil {
		return false, nil
	}
	return true, nil
}

// Delta is an incremental change set applied to an already-loaded graph
// without a full reload (spec.md §4.3 update()).
type Delta struct {
	AddTasks        []*core.Task
	RemoveTaskIDs   []string
	AddDependencies []*core.Dependency
	RemoveDependencies [][2]string // [dependent, dependency]
}

// ApplyDelta applies an incremental change set in place, returning the
// first error encountered (if any, the graph may be partially updated —
// callers needing atomicity should operate on a cloned graph first).
func (g *Graph) ApplyDelta(d Delta) *core.Error {
	for _, t := range d.AddTasks {
		if err := g.AddTask(t); err != nil {
			return err
		}
	}
	for _, pair := range d.RemoveDependencies {
		g.RemoveDependency(pair[0], pair[1])
	}
	for _, e := range d.AddDependencies {
		if err := g.AddDependency(e.Dependent, e.Dependency, e.Type, e.Weight, e.Critical, e.Description); err != nil {
			return err
		}
	}
	for _, id := range d.RemoveTaskIDs {
		g.removeTask(id)
	}
	return nil
}

// removeTask drops a node and every edge touching it.
func (g *Graph) removeTask(id string) {
	g.mu.Lock()
	deps := make([]string, 0, len(g.reverseIndex[id]))
	for dep := range g.reverseIndex[id] {
		deps = append(deps, dep)
	}
	depts := make([]string, 0, len(g.adjacency[id]))
	for dept := range g.adjacency[id] {
		depts = append(depts, dept)
	}
	g.mu.Unlock()

	for _, dep := range deps {
		g.RemoveDependency(id, dep)
	}
	for _, dept := range depts {
		g.RemoveDependency(dept, id)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, id)
	delete(g.adjacency, id)
	delete(g.reverseIndex, id)
	for i, n := range g.ordered {
		if n == id {
			g.ordered = append(g.ordered[:i], g.ordered[i+1:]...)
			break
		}
	}
	g.dirty = true
}
