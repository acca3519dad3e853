package physical

import (
	"fmt"

	"github.com/grafana/streamdb/pkg/engine/types"
)

// ExpressionType represents the type of expression in the physical plan.
type ExpressionType uint32

const (
	_ ExpressionType = iota // zero-value is an invalid type

	ExprTypeUnary
	ExprTypeBinary
	ExprTypeLiteral
	ExprTypeColumnIndex
)

// String returns the string representation of the [ExpressionType].
func (t ExpressionType) String() string {
	switch t {
	case ExprTypeUnary:
		return "UnaryExpression"
	case ExprTypeBinary:
		return "BinaryExpression"
	case ExprTypeLiteral:
		return "LiteralExpression"
	case ExprTypeColumnIndex:
		return "ColumnIndexExpression"
	default:
		panic(fmt.Sprintf("unknown expression type %d", t))
	}
}

// Expression is the common interface for all expressions in a physical plan.
// Expressions never name columns: column references are positions in the
// input of the operator that evaluates them.
type Expression interface {
	fmt.Stringer
	Type() ExpressionType
	isExpr()
}

// UnaryExpr applies Op to Left.
type UnaryExpr struct {
	Left Expression
	Op   types.UnaryOpKind
}

func (*UnaryExpr) isExpr() {}

func (e *UnaryExpr) String() string {
	return fmt.Sprintf("%s(%s)", e.Op, e.Left)
}

// Type returns the type of the [UnaryExpr].
func (*UnaryExpr) Type() ExpressionType {
	return ExprTypeUnary
}

// BinaryExpr applies Op to Left and Right.
type BinaryExpr struct {
	Left, Right Expression
	Op          types.BinOpKind
}

func (*BinaryExpr) isExpr() {}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("%s(%s, %s)", e.Op, e.Left, e.Right)
}

// Type returns the type of the [BinaryExpr].
func (*BinaryExpr) Type() ExpressionType {
	return ExprTypeBinary
}

// LiteralExpr is a constant.
type LiteralExpr struct {
	types.Literal
}

func (*LiteralExpr) isExpr() {}

// String returns the string representation of the literal value.
func (e *LiteralExpr) String() string {
	return e.Literal.String()
}

// Type returns the type of the [LiteralExpr].
func (*LiteralExpr) Type() ExpressionType {
	return ExprTypeLiteral
}

// NewLiteral returns a literal expression holding value. nil creates NULL.
func NewLiteral(value any) *LiteralExpr {
	return &LiteralExpr{Literal: types.NewLiteral(value)}
}

// ColumnIndexExpr is the value of column Index of the input row. The index has
// no meaning outside the operator the expression belongs to.
type ColumnIndexExpr struct {
	Index int
}

func (*ColumnIndexExpr) isExpr() {}

// String returns the index in #n notation.
func (e *ColumnIndexExpr) String() string {
	return fmt.Sprintf("#%d", e.Index)
}

// Type returns the type of the [ColumnIndexExpr].
func (*ColumnIndexExpr) Type() ExpressionType {
	return ExprTypeColumnIndex
}
