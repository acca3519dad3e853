// Package physical holds the physical plan of a streaming pipeline: a DAG of
// operators whose expressions reference resolved column positions only.
package physical

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/streamdb/pkg/engine/internal/util/dag"
)

// NodeType represents the type of a node in the physical plan.
type NodeType uint32

const (
	_ NodeType = iota // zero-value is an invalid type

	NodeTypeTableScan
	NodeTypeProjection
	NodeTypeFilter
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeTableScan:
		return "TableScan"
	case NodeTypeProjection:
		return "Projection"
	case NodeTypeFilter:
		return "Filter"
	default:
		return "Undefined"
	}
}

// Node represents a single operation in a physical execution plan. Every
// node has a fixed output schema which is the input schema of its parent.
type Node interface {
	// ID returns a string that uniquely identifies a node in the plan. It is
	// also used as the diagnostic name of the operator.
	ID() string
	// Type returns the node type.
	Type() NodeType
	// Schema returns the output schema of the node.
	Schema() *arrow.Schema
	// Accept dispatches the node to the matching method of v.
	Accept(v Visitor) error
	isNode()
}

var _ Node = (*TableScan)(nil)
var _ Node = (*Projection)(nil)
var _ Node = (*Filter)(nil)

func (*TableScan) isNode()  {}
func (*Projection) isNode() {}
func (*Filter) isNode()     {}

// Plan is a physical execution plan. Edges point from the consuming operator
// to the operators that produce its input.
type Plan struct {
	graph dag.Graph[Node]
}

// Add inserts n into the plan.
func (p *Plan) Add(n Node) error {
	return p.graph.Add(n)
}

// Connect makes child an input of parent.
func (p *Plan) Connect(parent, child Node) error {
	return p.graph.AddEdge(dag.Edge[Node]{Parent: parent, Child: child})
}

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int { return p.graph.Len() }

// Nodes returns all nodes in insertion order.
func (p *Plan) Nodes() []Node { return p.graph.Nodes() }

// Children returns the inputs of n.
func (p *Plan) Children(n Node) []Node { return p.graph.Children(n) }

// Parents returns the consumers of n.
func (p *Plan) Parents(n Node) []Node { return p.graph.Parents(n) }

// Roots returns all nodes nothing consumes.
func (p *Plan) Roots() []Node { return p.graph.Roots() }

// Root returns the single root of the plan.
func (p *Plan) Root() (Node, error) {
	roots := p.graph.Roots()
	if len(roots) != 1 {
		return nil, fmt.Errorf("plan has %d roots, expected exactly one", len(roots))
	}
	return roots[0], nil
}

// Walk visits every node reachable from n. With [dag.PostOrderWalk] inputs are
// visited before their consumers.
func (p *Plan) Walk(n Node, f dag.WalkFunc[Node], order dag.WalkOrder) error {
	return p.graph.Walk(n, f, order)
}
