package compiler

import (
	"fmt"

	"github.com/grafana/streamdb/pkg/engine/internal/errors"
	"github.com/grafana/streamdb/pkg/engine/planner/egraph"
)

// Resolver rewrites column references into positions of the output schema
// of one operator.
type Resolver struct {
	graph   *egraph.Graph
	catalog egraph.Catalog
}

// NewResolver returns a resolver over g. cat is only used to name columns in
// errors.
func NewResolver(g *egraph.Graph, cat egraph.Catalog) *Resolver {
	return &Resolver{graph: g, catalog: cat}
}

// Resolve rebuilds the tree of class expr so that it can be evaluated over
// the rows produced by class context. Every class found at position p of
// context's schema becomes the resolved index #p; the first position wins
// when a class appears more than once. A column missing from the schema
// fails with [errors.ErrUnresolvedColumn].
//
// The result is a plain tree: shared subexpressions are duplicated.
func (r *Resolver) Resolve(expr, context egraph.ClassID) (*egraph.Expr, error) {
	a, err := r.graph.Analysis(context)
	if err != nil {
		return nil, err
	}

	positions := make(map[egraph.ClassID]int, len(a.Schema))
	for i, id := range a.Schema {
		id = r.graph.Find(id)
		if _, ok := positions[id]; !ok {
			positions[id] = i
		}
	}

	out := &egraph.Expr{}
	if _, err := r.resolve(out, expr, context, positions); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) resolve(out *egraph.Expr, id, context egraph.ClassID, positions map[egraph.ClassID]int) (egraph.ClassID, error) {
	id = r.graph.Find(id)
	if p, ok := positions[id]; ok {
		return out.Add(egraph.IndexNode(p)), nil
	}

	n := r.graph.Node(id)
	switch {
	case n.Kind == egraph.KindColumn:
		return 0, fmt.Errorf("%w: %s not found in the output of %s", errors.ErrUnresolvedColumn, r.columnName(n), r.graph.String(context))
	case n.Kind.IsRelational():
		return 0, fmt.Errorf("%w: %s inside an expression", errors.ErrUnsupportedPlanNode, n.Kind)
	}

	resolved := n
	resolved.Children = make([]egraph.ClassID, len(n.Children))
	for i, child := range n.Children {
		c, err := r.resolve(out, child, context, positions)
		if err != nil {
			return 0, err
		}
		resolved.Children[i] = c
	}
	return out.Add(resolved), nil
}

func (r *Resolver) columnName(n egraph.Node) string {
	if r.catalog != nil {
		if col, err := r.catalog.GetColumn(n.Column); err == nil {
			return fmt.Sprintf("column %q (%s)", col.Name(), n.Column)
		}
	}
	return fmt.Sprintf("column %s", n.Column)
}
