package executor

import (
	"cmp"
	"errors"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/streamdb/pkg/engine/planner/physical"
	"github.com/grafana/streamdb/pkg/engine/types"
)

var (
	errDivisionByZero = errors.New("division by zero")
	errOutOfRange     = errors.New("integer out of range")
)

type expressionEvaluator struct {
	mem memory.Allocator
}

func newExpressionEvaluator(mem memory.Allocator) expressionEvaluator {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return expressionEvaluator{mem: mem}
}

// eval evaluates expr for every row of input. The returned array has
// input.NumRows() entries and must be released by the caller.
func (e expressionEvaluator) eval(expr physical.Expression, input arrow.Record) (arrow.Array, error) {
	rows := int(input.NumRows())

	switch expr := expr.(type) {
	case *physical.ColumnIndexExpr:
		if expr.Index < 0 || int64(expr.Index) >= input.NumCols() {
			return nil, fmt.Errorf("column index %d out of range for %d columns", expr.Index, input.NumCols())
		}
		arr := input.Column(expr.Index)
		arr.Retain()
		return arr, nil

	case *physical.LiteralExpr:
		return e.broadcast(expr.Literal, rows)

	case *physical.UnaryExpr:
		arg, err := e.eval(expr.Left, input)
		if err != nil {
			return nil, err
		}
		defer arg.Release()
		return e.evalUnary(expr.Op, arg)

	case *physical.BinaryExpr:
		lhs, err := e.eval(expr.Left, input)
		if err != nil {
			return nil, err
		}
		defer lhs.Release()

		rhs, err := e.eval(expr.Right, input)
		if err != nil {
			return nil, err
		}
		defer rhs.Release()
		return e.evalBinary(expr.Op, lhs, rhs)
	}

	return nil, fmt.Errorf("unknown expression: %v", expr)
}

// broadcast returns an array repeating lit n times.
func (e expressionEvaluator) broadcast(lit types.Literal, n int) (arrow.Array, error) {
	if lit.IsNull() {
		return array.NewNull(n), nil
	}
	builder := array.NewBuilder(e.mem, types.ToArrow(lit.Kind()))
	defer builder.Release()
	builder.Reserve(n)

	switch builder := builder.(type) {
	case *array.BooleanBuilder:
		value := lit.Any().(bool)
		for range n {
			builder.Append(value)
		}
	case *array.Int32Builder:
		value := lit.Any().(int32)
		for range n {
			builder.Append(value)
		}
	case *array.Int64Builder:
		value := lit.Any().(int64)
		for range n {
			builder.Append(value)
		}
	case *array.Float64Builder:
		value := lit.Any().(float64)
		for range n {
			builder.Append(value)
		}
	case *array.StringBuilder:
		value := lit.Any().(string)
		for range n {
			builder.Append(value)
		}
	default:
		return nil, fmt.Errorf("unsupported literal %s", lit)
	}
	return builder.NewArray(), nil
}

func (e expressionEvaluator) evalUnary(op types.UnaryOpKind, arg arrow.Array) (arrow.Array, error) {
	n := arg.Len()
	kind := types.FromArrow(arg.DataType())

	switch op {
	case types.UnaryOpKindIsNull:
		builder := array.NewBooleanBuilder(e.mem)
		defer builder.Release()
		for i := range n {
			builder.Append(arg.IsNull(i))
		}
		return builder.NewArray(), nil

	case types.UnaryOpKindNot:
		if kind == types.KindNull {
			return nullBooleans(e.mem, n), nil
		}
		values, ok := arg.(*array.Boolean)
		if !ok {
			return nil, fmt.Errorf("%s: unsupported argument type %s", op, arg.DataType())
		}
		builder := array.NewBooleanBuilder(e.mem)
		defer builder.Release()
		for i := range n {
			if values.IsNull(i) {
				builder.AppendNull()
				continue
			}
			builder.Append(!values.Value(i))
		}
		return builder.NewArray(), nil

	case types.UnaryOpKindNeg:
		if kind == types.KindNull {
			return array.NewNull(n), nil
		}
		if !kind.IsNumeric() {
			return nil, fmt.Errorf("%s: unsupported argument type %s", op, arg.DataType())
		}
		in := column{kind: kind, arr: arg}
		out := newColumnBuilder(e.mem, kind)
		defer out.Release()
		for i := range n {
			switch {
			case arg.IsNull(i):
				out.AppendNull()
			case kind == types.KindFloat64:
				out.appendFloat(-in.float(i))
			default:
				if err := out.appendInt(-in.int(i)); err != nil {
					return nil, err
				}
			}
		}
		return out.NewArray(), nil
	}
	return nil, fmt.Errorf("unsupported unary operator %s", op)
}

func (e expressionEvaluator) evalBinary(op types.BinOpKind, lhs, rhs arrow.Array) (arrow.Array, error) {
	if lhs.Len() != rhs.Len() {
		return nil, fmt.Errorf("%s: operands have %d and %d rows", op, lhs.Len(), rhs.Len())
	}
	l := column{kind: types.FromArrow(lhs.DataType()), arr: lhs}
	r := column{kind: types.FromArrow(rhs.DataType()), arr: rhs}

	switch {
	case op.IsLogical():
		return e.evalLogical(op, l, r)
	case op.IsArithmetic():
		return e.evalArithmetic(op, l, r)
	case op.IsComparison():
		return e.evalComparison(op, l, r)
	}
	return nil, fmt.Errorf("unsupported binary operator %s", op)
}

func (e expressionEvaluator) evalArithmetic(op types.BinOpKind, l, r column) (arrow.Array, error) {
	kind := types.Promote(l.kind, r.kind)
	if kind == types.KindNull {
		return array.NewNull(l.arr.Len()), nil
	}
	if !kind.IsNumeric() {
		return nil, fmt.Errorf("%s: unsupported operand types %s and %s", op, l.arr.DataType(), r.arr.DataType())
	}

	out := newColumnBuilder(e.mem, kind)
	defer out.Release()

	for i := range l.arr.Len() {
		if l.isNull(i) || r.isNull(i) {
			out.AppendNull()
			continue
		}

		if kind == types.KindFloat64 {
			a, b := l.float(i), r.float(i)
			var v float64
			switch op {
			case types.BinOpKindAdd:
				v = a + b
			case types.BinOpKindSub:
				v = a - b
			case types.BinOpKindMul:
				v = a * b
			case types.BinOpKindDiv:
				v = a / b
			case types.BinOpKindMod:
				v = math.Mod(a, b)
			}
			out.appendFloat(v)
			continue
		}

		v, err := intArithmetic(op, l.int(i), r.int(i))
		if err != nil {
			return nil, err
		}
		if err := out.appendInt(v); err != nil {
			return nil, err
		}
	}
	return out.NewArray(), nil
}

// intArithmetic applies op to a and b, failing with errOutOfRange when the
// result does not fit into an int64.
func intArithmetic(op types.BinOpKind, a, b int64) (int64, error) {
	switch op {
	case types.BinOpKindAdd:
		v := a + b
		if (b > 0 && v < a) || (b < 0 && v > a) {
			return 0, errOutOfRange
		}
		return v, nil
	case types.BinOpKindSub:
		v := a - b
		if (b < 0 && v < a) || (b > 0 && v > a) {
			return 0, errOutOfRange
		}
		return v, nil
	case types.BinOpKindMul:
		v := a * b
		if a != 0 && (v/a != b || (a == -1 && b == math.MinInt64)) {
			return 0, errOutOfRange
		}
		return v, nil
	case types.BinOpKindDiv:
		if b == 0 {
			return 0, errDivisionByZero
		}
		if a == math.MinInt64 && b == -1 {
			return 0, errOutOfRange
		}
		return a / b, nil
	case types.BinOpKindMod:
		if b == 0 {
			return 0, errDivisionByZero
		}
		if b == -1 {
			return 0, nil
		}
		return a % b, nil
	}
	return 0, fmt.Errorf("%s is not an arithmetic operator", op)
}

func (e expressionEvaluator) evalComparison(op types.BinOpKind, l, r column) (arrow.Array, error) {
	kind := types.Promote(l.kind, r.kind)
	if kind == types.KindNull {
		return nullBooleans(e.mem, l.arr.Len()), nil
	}
	if kind == types.KindInvalid {
		return nil, fmt.Errorf("%s: cannot compare %s and %s", op, l.arr.DataType(), r.arr.DataType())
	}

	builder := array.NewBooleanBuilder(e.mem)
	defer builder.Release()

	for i := range l.arr.Len() {
		if l.isNull(i) || r.isNull(i) {
			builder.AppendNull()
			continue
		}

		var c int
		switch kind {
		case types.KindFloat64:
			c = cmp.Compare(l.float(i), r.float(i))
		case types.KindInt32, types.KindInt64:
			c = cmp.Compare(l.int(i), r.int(i))
		case types.KindString:
			c = cmp.Compare(l.str(i), r.str(i))
		case types.KindBool:
			c = cmp.Compare(boolToInt(l.bool(i)), boolToInt(r.bool(i)))
		}

		switch op {
		case types.BinOpKindEq:
			builder.Append(c == 0)
		case types.BinOpKindNeq:
			builder.Append(c != 0)
		case types.BinOpKindLt:
			builder.Append(c < 0)
		case types.BinOpKindLte:
			builder.Append(c <= 0)
		case types.BinOpKindGt:
			builder.Append(c > 0)
		case types.BinOpKindGte:
			builder.Append(c >= 0)
		}
	}
	return builder.NewArray(), nil
}

// evalLogical implements three-valued AND and OR.
func (e expressionEvaluator) evalLogical(op types.BinOpKind, l, r column) (arrow.Array, error) {
	for _, c := range []column{l, r} {
		if c.kind != types.KindBool && c.kind != types.KindNull {
			return nil, fmt.Errorf("%s: unsupported operand type %s", op, c.arr.DataType())
		}
	}

	builder := array.NewBooleanBuilder(e.mem)
	defer builder.Release()

	for i := range l.arr.Len() {
		lNull, rNull := l.isNull(i), r.isNull(i)
		var lv, rv bool
		if !lNull {
			lv = l.bool(i)
		}
		if !rNull {
			rv = r.bool(i)
		}

		switch op {
		case types.BinOpKindAnd:
			switch {
			case (!lNull && !lv) || (!rNull && !rv):
				builder.Append(false)
			case lNull || rNull:
				builder.AppendNull()
			default:
				builder.Append(true)
			}
		case types.BinOpKindOr:
			switch {
			case (!lNull && lv) || (!rNull && rv):
				builder.Append(true)
			case lNull || rNull:
				builder.AppendNull()
			default:
				builder.Append(false)
			}
		}
	}
	return builder.NewArray(), nil
}

// column gives typed access to the values of an array, widening integers.
type column struct {
	kind types.Kind
	arr  arrow.Array
}

func (c column) isNull(i int) bool { return c.kind == types.KindNull || c.arr.IsNull(i) }

func (c column) int(i int) int64 {
	switch arr := c.arr.(type) {
	case *array.Int32:
		return int64(arr.Value(i))
	case *array.Int64:
		return arr.Value(i)
	}
	return 0
}

func (c column) float(i int) float64 {
	switch arr := c.arr.(type) {
	case *array.Int32:
		return float64(arr.Value(i))
	case *array.Int64:
		return float64(arr.Value(i))
	case *array.Float64:
		return arr.Value(i)
	}
	return 0
}

func (c column) str(i int) string {
	if arr, ok := c.arr.(*array.String); ok {
		return arr.Value(i)
	}
	return ""
}

func (c column) bool(i int) bool {
	if arr, ok := c.arr.(*array.Boolean); ok {
		return arr.Value(i)
	}
	return false
}

// columnBuilder builds numeric result arrays of a fixed kind.
type columnBuilder struct {
	array.Builder
	kind types.Kind
}

func newColumnBuilder(mem memory.Allocator, kind types.Kind) *columnBuilder {
	return &columnBuilder{Builder: array.NewBuilder(mem, types.ToArrow(kind)), kind: kind}
}

func (b *columnBuilder) appendInt(v int64) error {
	switch builder := b.Builder.(type) {
	case *array.Int32Builder:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return errOutOfRange
		}
		builder.Append(int32(v))
	case *array.Int64Builder:
		builder.Append(v)
	case *array.Float64Builder:
		builder.Append(float64(v))
	}
	return nil
}

func (b *columnBuilder) appendFloat(v float64) {
	if builder, ok := b.Builder.(*array.Float64Builder); ok {
		builder.Append(v)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
