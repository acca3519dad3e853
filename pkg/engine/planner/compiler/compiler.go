// Package compiler turns a bound plan held in an expression graph into a
// physical plan of streaming operators.
package compiler

import (
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/internal/errors"
	"github.com/grafana/streamdb/pkg/engine/planner/egraph"
	"github.com/grafana/streamdb/pkg/engine/planner/physical"
	"github.com/grafana/streamdb/pkg/engine/types"
)

// Sources gives the compiler access to live table and view streams.
type Sources interface {
	// Source returns the stream of table id and the column id stored at
	// each position of its row layout.
	Source(id catalog.TableID) (physical.Source, []catalog.ColumnID, error)
}

// Compiler compiles bound plans into physical plans.
type Compiler struct {
	graph    *egraph.Graph
	catalog  egraph.Catalog
	sources  Sources
	resolver *Resolver
}

// New returns a compiler for plans held in g.
func New(g *egraph.Graph, cat egraph.Catalog, sources Sources) *Compiler {
	return &Compiler{
		graph:    g,
		catalog:  cat,
		sources:  sources,
		resolver: NewResolver(g, cat),
	}
}

// Compile builds one physical operator per relational node reachable from
// root. Compilation is synchronous and does not start anything: on error no
// operator exists yet.
//
// Panics caused by a malformed plan are reported as [errors.ErrInternal].
func (c *Compiler) Compile(root egraph.ClassID) (plan *physical.Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			plan, err = nil, fmt.Errorf("%w: compiling %d: %v", errors.ErrInternal, root, r)
		}
	}()

	b := &builder{Compiler: c, plan: &physical.Plan{}, ids: make(map[string]int)}
	if _, err := b.build(root); err != nil {
		return nil, err
	}
	return b.plan, nil
}

type builder struct {
	*Compiler
	plan *physical.Plan
	ids  map[string]int
}

func (b *builder) build(id egraph.ClassID) (physical.Node, error) {
	n := b.graph.Node(id)
	switch n.Kind {
	case egraph.KindScan:
		return b.buildScan(id, n)
	case egraph.KindProj:
		return b.buildProjection(id, n)
	case egraph.KindFilter:
		return b.buildFilter(id, n)
	}
	return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedPlanNode, n.Kind)
}

func (b *builder) buildScan(id egraph.ClassID, n egraph.Node) (physical.Node, error) {
	table := b.graph.Node(n.Children[0])
	if table.Kind != egraph.KindTable {
		return nil, fmt.Errorf("%w: scan of %s", errors.ErrInternal, table.Kind)
	}
	src, layout, err := b.sources.Source(table.Table)
	if err != nil {
		return nil, err
	}

	columns := b.graph.Node(n.Children[1])
	positions := make([]int, len(columns.Children))
	for i, colID := range columns.Children {
		col := b.graph.Node(colID)
		if col.Kind != egraph.KindColumn || col.Column.Table != table.Table {
			return nil, fmt.Errorf("%w: scan of %s requests %s", errors.ErrUnresolvedColumn, src.Name(), b.graph.String(colID))
		}
		pos := slices.Index(layout, col.Column.Column)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %s not stored by %s", errors.ErrUnresolvedColumn, b.resolver.columnName(col), src.Name())
		}
		positions[i] = pos
	}

	scan := physical.NewTableScan(b.nodeID(id), src, positions)
	if err := b.plan.Add(scan); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInternal, err)
	}
	return scan, nil
}

func (b *builder) buildProjection(id egraph.ClassID, n egraph.Node) (physical.Node, error) {
	list, childID := n.Children[0], n.Children[1]
	child, err := b.build(childID)
	if err != nil {
		return nil, err
	}

	a, err := b.graph.Analysis(id)
	if err != nil {
		return nil, err
	}

	elems := b.graph.Node(list).Children
	exprs := make([]physical.Expression, len(elems))
	fields := make([]arrow.Field, len(elems))
	for i, elem := range elems {
		resolved, err := b.resolver.Resolve(elem, childID)
		if err != nil {
			return nil, err
		}
		if exprs[i], err = lower(resolved, resolved.Root()); err != nil {
			return nil, err
		}
		fields[i] = types.Field(b.columnName(elem, exprs[i], child.Schema()), a.Types[i])
	}

	proj := physical.NewProjection(b.nodeID(id), exprs, fields)
	return proj, b.connect(proj, child)
}

func (b *builder) buildFilter(id egraph.ClassID, n egraph.Node) (physical.Node, error) {
	cond, childID := n.Children[0], n.Children[1]
	child, err := b.build(childID)
	if err != nil {
		return nil, err
	}

	resolved, err := b.resolver.Resolve(cond, childID)
	if err != nil {
		return nil, err
	}
	predicate, err := lower(resolved, resolved.Root())
	if err != nil {
		return nil, err
	}

	filter := physical.NewFilter(b.nodeID(id), predicate, child.Schema())
	return filter, b.connect(filter, child)
}

func (b *builder) connect(parent, child physical.Node) error {
	if err := b.plan.Add(parent); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInternal, err)
	}
	if err := b.plan.Connect(parent, child); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInternal, err)
	}
	return nil
}

// nodeID returns the diagnostic name of the operator built for class id. A
// class compiled more than once gets a numeric suffix.
func (b *builder) nodeID(id egraph.ClassID) string {
	name := b.graph.String(id)
	b.ids[name]++
	if n := b.ids[name]; n > 1 {
		return fmt.Sprintf("%s[%d]", name, n)
	}
	return name
}

// columnName names an output column of a projection: forwarded input columns
// keep their name, computed columns are named after their expression.
func (b *builder) columnName(elem egraph.ClassID, expr physical.Expression, input *arrow.Schema) string {
	if idx, ok := expr.(*physical.ColumnIndexExpr); ok {
		return input.Field(idx.Index).Name
	}
	if n := b.graph.Node(elem); n.Kind == egraph.KindColumn {
		if col, err := b.catalog.GetColumn(n.Column); err == nil {
			return col.Name()
		}
	}
	return b.graph.String(elem)
}

var binaryOps = map[egraph.Kind]types.BinOpKind{
	egraph.KindAdd: types.BinOpKindAdd,
	egraph.KindSub: types.BinOpKindSub,
	egraph.KindMul: types.BinOpKindMul,
	egraph.KindDiv: types.BinOpKindDiv,
	egraph.KindMod: types.BinOpKindMod,
	egraph.KindEq:  types.BinOpKindEq,
	egraph.KindNeq: types.BinOpKindNeq,
	egraph.KindLt:  types.BinOpKindLt,
	egraph.KindLte: types.BinOpKindLte,
	egraph.KindGt:  types.BinOpKindGt,
	egraph.KindGte: types.BinOpKindGte,
	egraph.KindAnd: types.BinOpKindAnd,
	egraph.KindOr:  types.BinOpKindOr,
}

var unaryOps = map[egraph.Kind]types.UnaryOpKind{
	egraph.KindNot:    types.UnaryOpKindNot,
	egraph.KindNeg:    types.UnaryOpKindNeg,
	egraph.KindIsNull: types.UnaryOpKindIsNull,
}

// lower converts a resolved expression tree into a physical expression.
func lower(e *egraph.Expr, id egraph.ClassID) (physical.Expression, error) {
	n := e.Node(id)
	switch n.Kind {
	case egraph.KindColumnIndex:
		return &physical.ColumnIndexExpr{Index: n.Index}, nil
	case egraph.KindLiteral:
		return &physical.LiteralExpr{Literal: n.Value}, nil
	case egraph.KindColumn:
		return nil, fmt.Errorf("%w: column %s", errors.ErrUnresolvedColumn, n.Column)
	}

	if op, ok := binaryOps[n.Kind]; ok {
		left, err := lower(e, n.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := lower(e, n.Children[1])
		if err != nil {
			return nil, err
		}
		return &physical.BinaryExpr{Left: left, Right: right, Op: op}, nil
	}
	if op, ok := unaryOps[n.Kind]; ok {
		left, err := lower(e, n.Children[0])
		if err != nil {
			return nil, err
		}
		return &physical.UnaryExpr{Left: left, Op: op}, nil
	}
	return nil, fmt.Errorf("%w: %s in a scalar expression", errors.ErrUnsupportedPlanNode, n.Kind)
}
