// Package dependency provides the service dependency graph: a DAG over
// service names that yields a deterministic startup order and the dependent
// sets needed for cascade stops.
package dependency

import (
	"fmt"
	"strings"
)

// NodeID identifies a node in the graph. For services this is the service name.
type NodeID string

// Node is one service in the dependency graph.
type Node struct {
	ID        NodeID
	DependsOn []NodeID
}

// Graph is a directed graph over service nodes. Declaration order is
// preserved and used as the tie-break in TopologicalOrder so startup logs
// are reproducible across runs.
type Graph struct {
	nodes map[NodeID]*Node
	order []NodeID // insertion order
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[NodeID]*Node),
	}
}

// AddNode adds or replaces a node.
func (g *Graph) AddNode(n Node) {
	if _, exists := g.nodes[n.ID]; !exists {
		g.order = append(g.order, n.ID)
	}
	copied := n
	copied.DependsOn = append([]NodeID(nil), n.DependsOn...)
	g.nodes[n.ID] = &copied
}

// Get returns the node with the given ID, or nil.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dependencies returns the direct dependencies of id.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	n := g.nodes[id]
	if n == nil {
		return nil
	}
	return append([]NodeID(nil), n.DependsOn...)
}

// Dependents returns the nodes that directly depend on id, in declaration order.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var dependents []NodeID
	for _, candidate := range g.order {
		for _, dep := range g.nodes[candidate].DependsOn {
			if dep == id {
				dependents = append(dependents, candidate)
				break
			}
		}
	}
	return dependents
}

// TransitiveDependents returns every node that directly or indirectly
// depends on id, in declaration order.
func (g *Graph) TransitiveDependents(id NodeID) []NodeID {
	affected := map[NodeID]bool{}
	var visit func(NodeID)
	visit = func(current NodeID) {
		for _, dep := range g.Dependents(current) {
			if !affected[dep] {
				affected[dep] = true
				visit(dep)
			}
		}
	}
	visit(id)

	var result []NodeID
	for _, candidate := range g.order {
		if affected[candidate] {
			result = append(result, candidate)
		}
	}
	return result
}

// CycleError reports a dependency cycle. Cycle holds the members in order,
// with the first node repeated at the end.
type CycleError struct {
	Cycle []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, id := range e.Cycle {
		parts[i] = string(id)
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> "))
}

// TopologicalOrder returns every node with all of its dependencies strictly
// before it. Nodes with no ordering constraint between them keep their
// declaration order. Returns a *CycleError when the graph is not a DAG.
// Dependencies pointing outside the graph are ignored here; the config
// loader rejects them before a graph is ever built.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	indegree := make(map[NodeID]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = 0
	}
	for _, id := range g.order {
		for _, dep := range g.nodes[id].DependsOn {
			if _, known := g.nodes[dep]; known {
				indegree[id]++
			}
		}
	}

	var result []NodeID
	placed := make(map[NodeID]bool, len(g.nodes))
	for len(result) < len(g.order) {
		advanced := false
		// Always scan from the front so ties resolve by declaration order.
		for _, id := range g.order {
			if placed[id] || indegree[id] != 0 {
				continue
			}
			placed[id] = true
			result = append(result, id)
			for _, dependent := range g.Dependents(id) {
				indegree[dependent]--
			}
			advanced = true
			break
		}
		if !advanced {
			return nil, &CycleError{Cycle: g.findCycle(placed)}
		}
	}
	return result, nil
}

// findCycle locates one cycle among the nodes not yet placed by the
// topological sort, so the error can name it.
func (g *Graph) findCycle(placed map[NodeID]bool) []NodeID {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[NodeID]int, len(g.nodes))
	var stack []NodeID
	var cycle []NodeID

	var visit func(NodeID) bool
	visit = func(id NodeID) bool {
		state[id] = inStack
		stack = append(stack, id)
		for _, dep := range g.nodes[id].DependsOn {
			if _, known := g.nodes[dep]; !known {
				continue
			}
			switch state[dep] {
			case inStack:
				// Found it: slice the stack from the first occurrence of dep.
				for i, member := range stack {
					if member == dep {
						cycle = append(append([]NodeID(nil), stack[i:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.order {
		if placed[id] || state[id] != unvisited {
			continue
		}
		if visit(id) {
			return cycle
		}
	}
	return nil
}
