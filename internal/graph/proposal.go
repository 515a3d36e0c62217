package graph

import (
	"sort"
	"strings"

	"taskforge/internal/core"
)

// Proposal is a suggested dependency edge the caller may choose to accept
// via AddDependency (spec.md §4.3 "intelligent edge proposal").
type Proposal struct {
	Dependent  string
	Dependency string
	Type       core.DependencyType
	Confidence float64
	Reason     string
}

// Confidence weights are fixed heuristic constants, not a learned model
// (SPEC_FULL.md §13 open question (b)): keyword-pair rules score highest
// since they encode an explicit ordering intent, shared-file-path rules
// next, and bare type/phase heuristics lowest.
const (
	confidenceKeywordPair  = 0.82
	confidenceSharedFile   = 0.68
	confidencePhaseByWord  = 0.55
)

// phasePairs lists (earlier, later) keyword pairs: a task matching "later"
// is proposed to depend on a task matching "earlier" (spec.md §4.3: e.g.
// "setup before implement", "implement before test").
var phasePairs = [][2]string{
	{"setup", "implement"},
	{"design", "implement"},
	{"implement", "test"},
	{"implement", "review"},
	{"database", "api"},
	{"schema", "migration"},
	{"api", "frontend"},
	{"environment", "deploy"},
	{"deploy", "monitor"},
}

// ProposeEdges scans every pair of tasks and proposes dependency edges from
// keyword ordering, shared file paths, and type-phase heuristics. Grounded
// on the keyword/TF-IDF proposal pass of the teacher's campaign planner
// (internal/campaign), simplified here to fixed keyword tables per the
// confidence-weighting decision above.
func ProposeEdges(tasks []*core.Task) []Proposal {
	var proposals []Proposal

	for _, dept := range tasks {
		for _, dep := range tasks {
			if dept.ID == dep.ID {
				continue
			}

			if pair, ok := matchesPhasePair(dept, dep); ok {
				proposals = append(proposals, Proposal{
					Dependent: dept.ID, Dependency: dep.ID, Type: core.DepTask,
					Confidence: confidenceKeywordPair,
					Reason:     "keyword phase ordering: " + pair[0] + " -> " + pair[1],
				})
				continue
			}

			if shared := sharedFilePath(dept, dep); shared != "" {
				proposals = append(proposals, Proposal{
					Dependent: dept.ID, Dependency: dep.ID, Type: core.DepTask,
					Confidence: confidenceSharedFile,
					Reason:     "both tasks touch " + shared,
				})
				continue
			}

			if dept.TaskType != "" && dep.TaskType != "" && isLaterPhase(dept.TaskType, dep.TaskType) {
				proposals = append(proposals, Proposal{
					Dependent: dept.ID, Dependency: dep.ID, Type: core.DepTask,
					Confidence: confidencePhaseByWord,
					Reason:     "task type ordering: " + dep.TaskType + " before " + dept.TaskType,
				})
			}
		}
	}

	sort.SliceStable(proposals, func(i, j int) bool { return proposals[i].Confidence > proposals[j].Confidence })
	return proposals
}

func matchesPhasePair(dept, dep *core.Task) ([2]string, bool) {
	deptText := strings.ToLower(dept.Title + " " + dept.Description)
	depText := strings.ToLower(dep.Title + " " + dep.Description)
	for _, pair := range phasePairs {
		earlier, later := pair[0], pair[1]
		if strings.Contains(depText, earlier) && strings.Contains(deptText, later) {
			return pair, true
		}
	}
	return [2]string{}, false
}

func sharedFilePath(a, b *core.Task) string {
	for _, p := range a.FilePaths {
		for _, q := range b.FilePaths {
			if p == q {
				return p
			}
		}
	}
	return ""
}

// isLaterPhase reports whether taskType "later" conventionally follows
// "earlier" in the same phase-pair table, applied to bare type tags rather
// than free-text titles.
func isLaterPhase(later, earlier string) bool {
	for _, pair := range phasePairs {
		if pair[0] == earlier && pair[1] == later {
			return true
		}
	}
	return false
}
