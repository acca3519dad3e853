package egraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/types"
)

func TestParse(t *testing.T) {
	e, err := Parse("(filter (and (<= $2.1 -3) (<> $2.0 'it''s')) (scan $2 (list $2.0 $2.1)))")
	require.NoError(t, err)

	require.Equal(t, KindFilter, e.Node(e.Root()).Kind)
	require.Equal(t, "(filter (and (<= $2.1 -3) (<> $2.0 'it''s')) (scan $2 (list $2.0 $2.1)))", e.String())

	var literals []types.Literal
	for _, n := range e.Nodes {
		if n.Kind == KindLiteral {
			literals = append(literals, n.Value)
		}
	}
	require.Equal(t, []types.Literal{types.NewLiteral(int32(-3)), types.NewLiteral("it's")}, literals)
}

func TestParse_Atoms(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Node
	}{
		{"$3", TableNode(3)},
		{"$3.4294967295", ColumnNode(catalog.ColumnRef{Table: 3, Column: catalog.RowIDColumnID})},
		{"#2", IndexNode(2)},
		{"NULL", LiteralNode(types.NewNullLiteral())},
		{"false", LiteralNode(types.NewLiteral(false))},
		{"4294967296", LiteralNode(types.NewLiteral(int64(4294967296)))},
		{"1.0", LiteralNode(types.NewLiteral(1.0))},
	} {
		t.Run(tc.in, func(t *testing.T) {
			e, err := Parse(tc.in)
			require.NoError(t, err)
			require.Equal(t, []Node{tc.want}, e.Nodes)
			require.Equal(t, tc.want, e.Node(e.Root()))
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{
		"",
		"(proj (list $0.0)",
		"(proj (list $0.0))",
		"(frobnicate 1)",
		"(list 1))",
		"$x.1",
		"#-1",
		"'open",
		"abc",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
		})
	}
}

type testNames map[string]map[string]catalog.ColumnID

func (n testNames) TableID(name string) (catalog.TableID, error) {
	if name == "orders" {
		return 4, nil
	}
	return 0, fmt.Errorf("table %s not found", name)
}

func (n testNames) ColumnID(table catalog.TableID, name string) (catalog.ColumnID, error) {
	if id, ok := n["orders"][name]; ok && table == 4 {
		return id, nil
	}
	return 0, fmt.Errorf("column %s not found", name)
}

func TestParseWithNames(t *testing.T) {
	names := testNames{"orders": {"id": 0, "amount": 1}}

	e, err := ParseWithNames("(proj (list $orders.amount $4.0) (scan $orders (list $orders.id $orders.amount)))", names)
	require.NoError(t, err)
	require.Equal(t, "(proj (list $4.1 $4.0) (scan $4 (list $4.0 $4.1)))", e.String())

	_, err = ParseWithNames("(scan $users (list $users.id))", names)
	var nameErr *NameError
	require.ErrorAs(t, err, &nameErr)
	require.Equal(t, "$users", nameErr.Ref)

	_, err = ParseWithNames("(scan $orders (list $orders.total))", names)
	require.ErrorAs(t, err, &nameErr)
	require.Equal(t, "$orders.total", nameErr.Ref)

	_, err = ParseWithNames("(scan $orders (list $orders.))", names)
	require.Error(t, err)
	require.False(t, errors.As(err, &nameErr))
}
