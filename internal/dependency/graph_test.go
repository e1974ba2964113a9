package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(nodes ...Node) *Graph {
	g := New()
	for _, n := range nodes {
		g.AddNode(n)
	}
	return g
}

func TestTopologicalOrderPlacesDependenciesFirst(t *testing.T) {
	g := buildGraph(
		Node{ID: "dashboard", DependsOn: []NodeID{"coordinator"}},
		Node{ID: "coordinator", DependsOn: []NodeID{"patient", "doctor", "booking"}},
		Node{ID: "patient"},
		Node{ID: "doctor"},
		Node{ID: "booking"},
	)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 5)

	position := make(map[NodeID]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	for _, id := range order {
		for _, dep := range g.Dependencies(id) {
			assert.Less(t, position[dep], position[id], "%s must come after its dependency %s", id, dep)
		}
	}
}

func TestTopologicalOrderBreaksTiesByDeclarationOrder(t *testing.T) {
	g := buildGraph(
		Node{ID: "patient"},
		Node{ID: "doctor"},
		Node{ID: "booking"},
	)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"patient", "doctor", "booking"}, order)
}

func TestTopologicalOrderDetectsCycle(t *testing.T) {
	g := buildGraph(
		Node{ID: "a", DependsOn: []NodeID{"b"}},
		Node{ID: "b", DependsOn: []NodeID{"c"}},
		Node{ID: "c", DependsOn: []NodeID{"a"}},
	)

	_, err := g.TopologicalOrder()
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.NotEmpty(t, cycleErr.Cycle)
	assert.Equal(t, cycleErr.Cycle[0], cycleErr.Cycle[len(cycleErr.Cycle)-1], "cycle must close on its first member")
	assert.Contains(t, err.Error(), "dependency cycle:")
}

func TestTopologicalOrderSelfDependency(t *testing.T) {
	g := buildGraph(Node{ID: "a", DependsOn: []NodeID{"a"}})

	_, err := g.TopologicalOrder()
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []NodeID{"a", "a"}, cycleErr.Cycle)
}

func TestTopologicalOrderIgnoresUnknownDependencies(t *testing.T) {
	g := buildGraph(Node{ID: "a", DependsOn: []NodeID{"ghost"}})

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"a"}, order)
}

func TestDependents(t *testing.T) {
	g := buildGraph(
		Node{ID: "patient"},
		Node{ID: "coordinator", DependsOn: []NodeID{"patient"}},
		Node{ID: "dashboard", DependsOn: []NodeID{"coordinator"}},
	)

	assert.Equal(t, []NodeID{"coordinator"}, g.Dependents("patient"))
	assert.Equal(t, []NodeID{"dashboard"}, g.Dependents("coordinator"))
	assert.Empty(t, g.Dependents("dashboard"))
}

func TestTransitiveDependents(t *testing.T) {
	g := buildGraph(
		Node{ID: "patient"},
		Node{ID: "doctor"},
		Node{ID: "coordinator", DependsOn: []NodeID{"patient", "doctor"}},
		Node{ID: "dashboard", DependsOn: []NodeID{"coordinator"}},
	)

	assert.Equal(t, []NodeID{"coordinator", "dashboard"}, g.TransitiveDependents("patient"))
	assert.Empty(t, g.TransitiveDependents("dashboard"))
}

func TestAddNodeReplacesExisting(t *testing.T) {
	g := buildGraph(
		Node{ID: "a", DependsOn: []NodeID{"b"}},
		Node{ID: "b"},
	)
	g.AddNode(Node{ID: "a"})

	assert.Equal(t, 2, g.Len())
	assert.Empty(t, g.Dependencies("a"))
}
