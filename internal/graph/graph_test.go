package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/core"
)

func newTask(id string, hours float64) *core.Task {
	return &core.Task{ID: id, Title: id, Status: core.TaskPending, Priority: core.PriorityMedium, EstimatedHours: hours}
}

func TestSimpleChainTopologicalOrder(t *testing.T) {
	g := New("proj-1")
	a, b, c := newTask("A", 1), newTask("B", 2), newTask("C", 3)
	require.Nil(t, g.AddTask(a))
	require.Nil(t, g.AddTask(b))
	require.Nil(t, g.AddTask(c))

	require.Nil(t, g.AddDependency("B", "A", core.DepTask, 1, false, ""))
	require.Nil(t, g.AddDependency("C", "B", core.DepTask, 1, false, ""))

	analysis, err := g.Analyze()
	require.Nil(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, analysis.TopoOrder)
	assert.Equal(t, []string{"A", "B", "C"}, analysis.CriticalPath)
	assert.Equal(t, 6.0, analysis.CriticalHours)
}

func TestDiamondCriticalPath(t *testing.T) {
	g := New("proj-2")
	require.Nil(t, g.AddTask(newTask("A", 1)))
	require.Nil(t, g.AddTask(newTask("B", 5)))
	require.Nil(t, g.AddTask(newTask("C", 2)))
	require.Nil(t, g.AddTask(newTask("D", 1)))

	require.Nil(t, g.AddDependency("B", "A", core.DepTask, 1, false, ""))
	require.Nil(t, g.AddDependency("C", "A", core.DepTask, 1, false, ""))
	require.Nil(t, g.AddDependency("D", "B", core.DepTask, 1, false, ""))
	require.Nil(t, g.AddDependency("D", "C", core.DepTask, 1, false, ""))

	analysis, err := g.Analyze()
	require.Nil(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, analysis.CriticalPath)
	assert.Equal(t, 7.0, analysis.CriticalHours)
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	g := New("proj-3")
	require.Nil(t, g.AddTask(newTask("A", 1)))
	require.Nil(t, g.AddTask(newTask("B", 1)))
	require.Nil(t, g.AddDependency("A", "B", core.DepTask, 1, false, ""))

	err := g.AddDependency("B", "A", core.DepTask, 1, false, "")
	require.NotNil(t, err)
	assert.Equal(t, core.KindCycle, err.Kind)
}

func TestAddDependencyRejectsSelfDependency(t *testing.T) {
	g := New("proj-4")
	require.Nil(t, g.AddTask(newTask("A", 1)))
	err := g.AddDependency("A", "A", core.DepTask, 1, false, "")
	require.NotNil(t, err)
	assert.Equal(t, core.KindValidation, err.Kind)
}

func TestReadyTasks(t *testing.T) {
	g := New("proj-5")
	require.Nil(t, g.AddTask(newTask("A", 1)))
	require.Nil(t, g.AddTask(newTask("B", 1)))
	require.Nil(t, g.AddDependency("B", "A", core.DepTask, 1, false, ""))

	assert.ElementsMatch(t, []string{"A"}, g.ReadyTasks())

	require.Nil(t, g.SetTaskStatus("A", core.TaskCompleted))
	assert.ElementsMatch(t, []string{"B"}, g.ReadyTasks())
}

func TestParallelBatches(t *testing.T) {
	g := New("proj-6")
	require.Nil(t, g.AddTask(newTask("A", 1)))
	require.Nil(t, g.AddTask(newTask("B", 1)))
	require.Nil(t, g.AddTask(newTask("C", 1)))
	require.Nil(t, g.AddDependency("C", "A", core.DepTask, 1, false, ""))
	require.Nil(t, g.AddDependency("C", "B", core.DepTask, 1, false, ""))

	analysis, err := g.Analyze()
	require.Nil(t, err)
	require.Len(t, analysis.ParallelBatches, 2)
	assert.ElementsMatch(t, []string{"A", "B"}, analysis.ParallelBatches[0])
	assert.ElementsMatch(t, []string{"C"}, analysis.ParallelBatches[1])
}

func TestDetectCyclesEmptyOnAcyclicGraph(t *testing.T) {
	g := New("proj-7")
	require.Nil(t, g.AddTask(newTask("A", 1)))
	assert.Empty(t, g.DetectCycles())
}

func TestValidateFlagsRedundantEdge(t *testing.T) {
	g := New("proj-8")
	require.Nil(t, g.AddTask(newTask("A", 1)))
	require.Nil(t, g.AddTask(newTask("B", 1)))
	require.Nil(t, g.AddTask(newTask("C", 1)))
	require.Nil(t, g.AddDependency("B", "A", core.DepTask, 1, false, ""))
	require.Nil(t, g.AddDependency("C", "B", core.DepTask, 1, false, ""))
	require.Nil(t, g.AddDependency("C", "A", core.DepTask, 1, false, ""))

	issues := g.Validate()
	found := false
	for _, issue := range issues {
		if issue.Kind == IssueRedundant && issue.EdgeID == "C->A" {
			found = true
		}
	}
	assert.True(t, found, "expected C->A to be flagged redundant given path C->B->A")
}

func TestProposeEdgesKeywordPair(t *testing.T) {
	tasks := []*core.Task{
		{ID: "setup-1", Title: "Setup database schema", EstimatedHours: 1},
		{ID: "impl-1", Title: "Implement API using the schema", EstimatedHours: 2},
	}
	proposals := ProposeEdges(tasks)
	require.NotEmpty(t, proposals)
	assert.Equal(t, "impl-1", proposals[0].Dependent)
	assert.Equal(t, "setup-1", proposals[0].Dependency)
}
