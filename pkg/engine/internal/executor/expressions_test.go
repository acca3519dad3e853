package executor

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/planner/physical"
	"github.com/grafana/streamdb/pkg/engine/types"
)

var exprSchema = arrow.NewSchema([]arrow.Field{
	types.Field("i", types.KindInt32.Nullable()),
	types.Field("l", types.KindInt64.Nullable()),
	types.Field("f", types.KindFloat64.Nullable()),
	types.Field("s", types.KindString.Nullable()),
	types.Field("b", types.KindBool.Nullable()),
}, nil)

func newExprRecord(t *testing.T) arrow.Record {
	t.Helper()
	b := newBatch(t, exprSchema,
		ins(int32(1), int64(10), 0.5, "a", true),
		ins(int32(-4), int64(3), 2.0, "b", false),
		ins(nil, nil, nil, nil, nil),
	)
	return b.Record
}

func col(i int) physical.Expression { return &physical.ColumnIndexExpr{Index: i} }

func bin(op types.BinOpKind, l, r physical.Expression) physical.Expression {
	return &physical.BinaryExpr{Left: l, Right: r, Op: op}
}

func values(arr arrow.Array) []any {
	out := make([]any, arr.Len())
	for i := range out {
		out[i] = changes.Value(arr, i)
	}
	return out
}

func TestEvaluator(t *testing.T) {
	rec := newExprRecord(t)
	defer rec.Release()

	e := newExpressionEvaluator(memory.DefaultAllocator)

	for _, tc := range []struct {
		name     string
		expr     physical.Expression
		wantType arrow.DataType
		want     []any
	}{
		{
			name:     "int32 plus int32 stays int32",
			expr:     bin(types.BinOpKindAdd, col(0), physical.NewLiteral(int32(1))),
			wantType: arrow.PrimitiveTypes.Int32,
			want:     []any{int32(2), int32(-3), nil},
		},
		{
			name:     "int32 times int64 widens",
			expr:     bin(types.BinOpKindMul, col(0), col(1)),
			wantType: arrow.PrimitiveTypes.Int64,
			want:     []any{int64(10), int64(-12), nil},
		},
		{
			name:     "integer and double",
			expr:     bin(types.BinOpKindSub, col(1), col(2)),
			wantType: arrow.PrimitiveTypes.Float64,
			want:     []any{9.5, 1.0, nil},
		},
		{
			name:     "integer modulo",
			expr:     bin(types.BinOpKindMod, col(1), physical.NewLiteral(int32(4))),
			wantType: arrow.PrimitiveTypes.Int64,
			want:     []any{int64(2), int64(3), nil},
		},
		{
			name:     "negation",
			expr:     &physical.UnaryExpr{Left: col(0), Op: types.UnaryOpKindNeg},
			wantType: arrow.PrimitiveTypes.Int32,
			want:     []any{int32(-1), int32(4), nil},
		},
		{
			name:     "string comparison",
			expr:     bin(types.BinOpKindLt, col(3), physical.NewLiteral("b")),
			wantType: arrow.FixedWidthTypes.Boolean,
			want:     []any{true, false, nil},
		},
		{
			name:     "mixed numeric comparison",
			expr:     bin(types.BinOpKindEq, col(2), physical.NewLiteral(int32(2))),
			wantType: arrow.FixedWidthTypes.Boolean,
			want:     []any{false, true, nil},
		},
		{
			name:     "false and null is false",
			expr:     bin(types.BinOpKindAnd, col(4), physical.NewLiteral(nil)),
			wantType: arrow.FixedWidthTypes.Boolean,
			want:     []any{nil, false, nil},
		},
		{
			name:     "true or null is true",
			expr:     bin(types.BinOpKindOr, col(4), physical.NewLiteral(nil)),
			wantType: arrow.FixedWidthTypes.Boolean,
			want:     []any{true, nil, nil},
		},
		{
			name:     "is null",
			expr:     &physical.UnaryExpr{Left: col(3), Op: types.UnaryOpKindIsNull},
			wantType: arrow.FixedWidthTypes.Boolean,
			want:     []any{false, false, true},
		},
		{
			name:     "not",
			expr:     &physical.UnaryExpr{Left: col(4), Op: types.UnaryOpKindNot},
			wantType: arrow.FixedWidthTypes.Boolean,
			want:     []any{false, true, nil},
		},
		{
			name:     "comparison with null literal",
			expr:     bin(types.BinOpKindEq, physical.NewLiteral(nil), physical.NewLiteral(nil)),
			wantType: arrow.FixedWidthTypes.Boolean,
			want:     []any{nil, nil, nil},
		},
		{
			name:     "string literal",
			expr:     physical.NewLiteral("x"),
			wantType: arrow.BinaryTypes.String,
			want:     []any{"x", "x", "x"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			arr, err := e.eval(tc.expr, rec)
			require.NoError(t, err)
			defer arr.Release()

			require.True(t, arrow.TypeEqual(tc.wantType, arr.DataType()), "got type %s", arr.DataType())
			require.Equal(t, tc.want, values(arr))
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	rec := newExprRecord(t)
	defer rec.Release()

	e := newExpressionEvaluator(nil)

	for _, tc := range []struct {
		name string
		expr physical.Expression
		err  error
	}{
		{
			name: "integer division by zero",
			expr: bin(types.BinOpKindDiv, col(1), physical.NewLiteral(int64(0))),
			err:  errDivisionByZero,
		},
		{
			name: "int32 overflow",
			expr: bin(types.BinOpKindMul, col(0), physical.NewLiteral(int32(1<<30))),
			err:  errOutOfRange,
		},
		{
			name: "int64 addition overflow",
			expr: bin(types.BinOpKindAdd, col(1), physical.NewLiteral(int64(math.MaxInt64))),
			err:  errOutOfRange,
		},
		{
			name: "int64 subtraction overflow",
			expr: bin(types.BinOpKindSub, physical.NewLiteral(int64(math.MinInt64)), col(1)),
			err:  errOutOfRange,
		},
		{
			name: "int64 multiplication overflow",
			expr: bin(types.BinOpKindMul, col(1), physical.NewLiteral(int64(math.MaxInt64/4))),
			err:  errOutOfRange,
		},
		{
			// (l - 4) is -1 in the second row.
			name: "int64 division overflow",
			expr: bin(types.BinOpKindDiv, physical.NewLiteral(int64(math.MinInt64)), bin(types.BinOpKindSub, col(1), physical.NewLiteral(int64(4)))),
			err:  errOutOfRange,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.eval(tc.expr, rec)
			require.ErrorIs(t, err, tc.err)
		})
	}

	for _, expr := range []physical.Expression{
		col(9),
		bin(types.BinOpKindAdd, col(3), physical.NewLiteral(int32(1))),
		bin(types.BinOpKindAnd, col(0), col(4)),
		bin(types.BinOpKindLt, col(3), col(0)),
		&physical.UnaryExpr{Left: col(3), Op: types.UnaryOpKindNot},
	} {
		t.Run(expr.String(), func(t *testing.T) {
			_, err := e.eval(expr, rec)
			require.Error(t, err)
		})
	}
}

func TestEvaluator_DoubleDivisionByZero(t *testing.T) {
	rec := newExprRecord(t)
	defer rec.Release()

	arr, err := newExpressionEvaluator(nil).eval(bin(types.BinOpKindDiv, col(2), physical.NewLiteral(0.0)), rec)
	require.NoError(t, err)
	defer arr.Release()
	require.True(t, arr.IsValid(0))
}

func TestIntArithmetic_Bounds(t *testing.T) {
	for _, tc := range []struct {
		op   types.BinOpKind
		a, b int64
		want int64
	}{
		{types.BinOpKindAdd, math.MaxInt64, 0, math.MaxInt64},
		{types.BinOpKindAdd, math.MinInt64, math.MaxInt64, -1},
		{types.BinOpKindSub, math.MinInt64, 0, math.MinInt64},
		{types.BinOpKindSub, -1, math.MaxInt64, math.MinInt64},
		{types.BinOpKindMul, math.MinInt64, 1, math.MinInt64},
		{types.BinOpKindMul, -1, math.MaxInt64, -math.MaxInt64},
		{types.BinOpKindDiv, math.MinInt64, 1, math.MinInt64},
		{types.BinOpKindMod, math.MinInt64, -1, 0},
	} {
		got, err := intArithmetic(tc.op, tc.a, tc.b)
		require.NoError(t, err, "%d %s %d", tc.a, tc.op, tc.b)
		require.Equal(t, tc.want, got)
	}

	_, err := intArithmetic(types.BinOpKindMul, math.MinInt64, -1)
	require.ErrorIs(t, err, errOutOfRange)
	_, err = intArithmetic(types.BinOpKindMul, -1, math.MinInt64)
	require.ErrorIs(t, err, errOutOfRange)
}
