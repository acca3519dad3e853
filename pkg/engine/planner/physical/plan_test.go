package physical

import (
	"context"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"

	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/internal/util/dag"
	"github.com/grafana/streamdb/pkg/engine/types"
)

type staticSource struct {
	name   string
	schema *arrow.Schema
}

func (s *staticSource) Name() string                     { return s.name }
func (s *staticSource) Schema() *arrow.Schema            { return s.schema }
func (s *staticSource) Subscribe() (Subscription, error) { return closedSubscription{}, nil }

type closedSubscription struct{}

func (closedSubscription) Next(context.Context) (changes.Batch, error) { return changes.Batch{}, io.EOF }
func (closedSubscription) Close()                                      {}

func newTestPlan(t *testing.T) (*Plan, *Filter, *Projection, *TableScan) {
	t.Helper()
	src := &staticSource{name: "t", schema: arrow.NewSchema([]arrow.Field{
		types.Field("_rowid_", types.KindInt64.NotNull()),
		types.Field("a", types.KindInt32.Nullable()),
		types.Field("b", types.KindString.Nullable()),
	}, nil)}

	scan := NewTableScan("scan", src, []int{2, 1})
	proj := NewProjection("proj", []Expression{
		&ColumnIndexExpr{Index: 1},
		&BinaryExpr{Left: &ColumnIndexExpr{Index: 1}, Right: NewLiteral(int32(1)), Op: types.BinOpKindAdd},
	}, []arrow.Field{
		types.Field("a", types.KindInt32.Nullable()),
		types.Field("a + 1", types.KindInt64.Nullable()),
	})
	filter := NewFilter("filter", &UnaryExpr{Left: &ColumnIndexExpr{Index: 0}, Op: types.UnaryOpKindIsNull}, proj.Schema())

	var p Plan
	for _, n := range []Node{filter, proj, scan} {
		require.NoError(t, p.Add(n))
	}
	require.NoError(t, p.Connect(filter, proj))
	require.NoError(t, p.Connect(proj, scan))
	return &p, filter, proj, scan
}

func TestTableScanSchema(t *testing.T) {
	_, _, _, scan := newTestPlan(t)

	require.Equal(t, 2, scan.Schema().NumFields())
	require.Equal(t, "b", scan.Schema().Field(0).Name)
	require.Equal(t, "a", scan.Schema().Field(1).Name)
}

func TestPlan(t *testing.T) {
	p, filter, proj, scan := newTestPlan(t)

	root, err := p.Root()
	require.NoError(t, err)
	require.Equal(t, Node(filter), root)
	require.Equal(t, []Node{proj}, p.Children(filter))
	require.Equal(t, []Node{proj}, p.Parents(scan))

	var order []NodeType
	require.NoError(t, p.Walk(root, func(n Node) error {
		order = append(order, n.Type())
		return nil
	}, dag.PostOrderWalk))
	require.Equal(t, []NodeType{NodeTypeTableScan, NodeTypeProjection, NodeTypeFilter}, order)

	require.NoError(t, p.Add(NewFilter("other", NewLiteral(true), scan.Schema())))
	_, err = p.Root()
	require.Error(t, err)
}

func TestPrintAsTree(t *testing.T) {
	p, _, _, _ := newTestPlan(t)

	require.Equal(t, `Filter predicate=IS_NULL(#0)
└── Projection expressions=(#1, ADD(#1, 1))
    └── TableScan source=t positions=(2, 1)
`, PrintAsTree(p))
}

func TestExpressionTypes(t *testing.T) {
	tests := []struct {
		name     string
		expr     Expression
		expected ExpressionType
	}{
		{
			name:     "UnaryExpression",
			expr:     &UnaryExpr{Op: types.UnaryOpKindNot, Left: NewLiteral(true)},
			expected: ExprTypeUnary,
		},
		{
			name:     "BinaryExpression",
			expr:     &BinaryExpr{Op: types.BinOpKindEq, Left: &ColumnIndexExpr{Index: 0}, Right: NewLiteral("foo")},
			expected: ExprTypeBinary,
		},
		{
			name:     "LiteralExpression",
			expr:     NewLiteral(nil),
			expected: ExprTypeLiteral,
		},
		{
			name:     "ColumnIndexExpression",
			expr:     &ColumnIndexExpr{Index: 3},
			expected: ExprTypeColumnIndex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.expr.Type())
			require.Equal(t, tt.name, tt.expr.Type().String())
		})
	}
}
