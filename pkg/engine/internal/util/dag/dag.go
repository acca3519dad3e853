// Package dag provides a generic directed acyclic graph used to hold the
// operators of a physical plan.
package dag

import (
	"fmt"
	"slices"
)

// Node is a vertex of a [Graph]. IDs must be unique within a graph.
type Node interface {
	comparable
	ID() string
}

type nodeSet[NodeType Node] map[NodeType]struct{}

func (s nodeSet[NodeType]) Add(n NodeType)           { s[n] = struct{}{} }
func (s nodeSet[NodeType]) Contains(n NodeType) bool { _, ok := s[n]; return ok }

// Edge connects a parent to one of its children. Parents consume the output
// of their children.
type Edge[NodeType Node] struct {
	Parent, Child NodeType
}

// Graph is a directed acyclic graph. The order of children is the order in
// which their edges were added.
type Graph[NodeType Node] struct {
	nodes    nodeSet[NodeType]
	ordered  []NodeType
	parents  map[NodeType][]NodeType
	children map[NodeType][]NodeType
}

// Add inserts n into the graph. Adding a node twice is an error.
func (g *Graph[NodeType]) Add(n NodeType) error {
	if g.nodes == nil {
		g.nodes = make(nodeSet[NodeType])
		g.parents = make(map[NodeType][]NodeType)
		g.children = make(map[NodeType][]NodeType)
	}
	if g.nodes.Contains(n) {
		return fmt.Errorf("node %s already exists", n.ID())
	}
	g.nodes.Add(n)
	g.ordered = append(g.ordered, n)
	return nil
}

// AddEdge connects e.Parent to e.Child. Both nodes must exist.
func (g *Graph[NodeType]) AddEdge(e Edge[NodeType]) error {
	if !g.nodes.Contains(e.Parent) {
		return fmt.Errorf("parent node %s does not exist", e.Parent.ID())
	}
	if !g.nodes.Contains(e.Child) {
		return fmt.Errorf("child node %s does not exist", e.Child.ID())
	}
	if e.Parent == e.Child {
		return fmt.Errorf("node %s cannot be its own child", e.Parent.ID())
	}
	g.children[e.Parent] = append(g.children[e.Parent], e.Child)
	g.parents[e.Child] = append(g.parents[e.Child], e.Parent)
	return nil
}

// Len returns the number of nodes.
func (g *Graph[NodeType]) Len() int { return len(g.ordered) }

// Nodes returns all nodes in insertion order.
func (g *Graph[NodeType]) Nodes() []NodeType { return slices.Clone(g.ordered) }

// Children returns the children of n.
func (g *Graph[NodeType]) Children(n NodeType) []NodeType { return g.children[n] }

// Parents returns the parents of n.
func (g *Graph[NodeType]) Parents(n NodeType) []NodeType { return g.parents[n] }

// Roots returns all nodes without parents in insertion order.
func (g *Graph[NodeType]) Roots() []NodeType {
	var roots []NodeType
	for _, n := range g.ordered {
		if len(g.parents[n]) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Leaves returns all nodes without children in insertion order.
func (g *Graph[NodeType]) Leaves() []NodeType {
	var leaves []NodeType
	for _, n := range g.ordered {
		if len(g.children[n]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}
