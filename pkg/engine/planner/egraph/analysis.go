package egraph

import (
	"fmt"

	"github.com/grafana/streamdb/pkg/engine/internal/errors"
	"github.com/grafana/streamdb/pkg/engine/types"
)

// Analysis summarizes the output of a class.
//
// For relational classes Schema lists, per output column, the class the
// column originates from and Types holds the column types. Lists have one
// entry per element. Scalar classes have no schema and exactly one type.
type Analysis struct {
	Schema []ClassID
	Types  []types.DataType
}

// Type returns the type of a scalar class.
func (a *Analysis) Type() types.DataType {
	if len(a.Types) == 0 {
		return types.DataType{}
	}
	return a.Types[0]
}

// Analysis returns the memoized analysis of class id, computing it and the
// analyses of its children first when needed.
func (g *Graph) Analysis(id ClassID) (*Analysis, error) {
	if err := g.checkID(id); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInternal, err)
	}
	id = g.Find(id)
	c := g.classes[id]
	if c.analysis != nil {
		return c.analysis, nil
	}

	a, err := g.analyze(g.Node(id))
	if err != nil {
		return nil, err
	}
	c.analysis = a
	return a, nil
}

func (g *Graph) analyze(n Node) (*Analysis, error) {
	children := make([]*Analysis, len(n.Children))
	for i, c := range n.Children {
		a, err := g.Analysis(c)
		if err != nil {
			return nil, err
		}
		children[i] = a
	}

	switch n.Kind {
	case KindTable:
		return &Analysis{}, nil

	case KindColumn:
		col, err := g.catalog.GetColumn(n.Column)
		if err != nil {
			return nil, err
		}
		return scalar(col.DataType()), nil

	case KindColumnIndex:
		// Resolved indexes carry no type of their own.
		return scalar(types.DataType{}), nil

	case KindLiteral:
		return scalar(n.Value.Type()), nil

	case KindList:
		a := &Analysis{
			Schema: make([]ClassID, len(n.Children)),
			Types:  make([]types.DataType, len(n.Children)),
		}
		for i, c := range n.Children {
			a.Schema[i] = c
			a.Types[i] = children[i].Type()
		}
		return a, nil

	case KindScan:
		// (scan table columns): the requested columns are the schema.
		return children[1], nil

	case KindProj:
		// (proj exprs child): the projected expressions are the schema.
		return children[0], nil

	case KindFilter:
		return children[1], nil

	case KindJoin:
		left, right := children[1], children[2]
		return &Analysis{
			Schema: concat(left.Schema, right.Schema),
			Types:  concat(left.Types, right.Types),
		}, nil

	case KindAgg:
		aggs, groupBy := children[0], children[1]
		return &Analysis{
			Schema: concat(groupBy.Schema, aggs.Schema),
			Types:  concat(groupBy.Types, aggs.Types),
		}, nil
	}

	switch {
	case n.Kind.IsBinary():
		return binaryType(n.Kind, children[0].Type(), children[1].Type())
	case n.Kind.IsUnary():
		return unaryType(n.Kind, children[0].Type())
	case n.Kind.IsAggregate():
		return aggregateType(n.Kind, children[0].Type())
	}
	return nil, fmt.Errorf("%w: cannot analyze node kind %s", errors.ErrInternal, n.Kind)
}

func binaryType(k Kind, l, r types.DataType) (*Analysis, error) {
	nullable := l.Nullable || r.Nullable
	switch k {
	case KindAdd, KindSub, KindMul, KindDiv, KindMod:
		if !numericOrNull(l.Kind) || !numericOrNull(r.Kind) {
			return nil, typeError(k, l, r)
		}
		return scalar(types.DataType{Kind: types.Promote(l.Kind, r.Kind), Nullable: nullable}), nil

	case KindEq, KindNeq, KindLt, KindLte, KindGt, KindGte:
		if types.Promote(l.Kind, r.Kind) == types.KindInvalid {
			return nil, typeError(k, l, r)
		}
		return scalar(types.DataType{Kind: types.KindBool, Nullable: nullable}), nil

	case KindAnd, KindOr:
		if !boolOrNull(l.Kind) || !boolOrNull(r.Kind) {
			return nil, typeError(k, l, r)
		}
		return scalar(types.DataType{Kind: types.KindBool, Nullable: nullable}), nil
	}
	return nil, fmt.Errorf("%w: %s is not a binary operator", errors.ErrInternal, k)
}

func unaryType(k Kind, t types.DataType) (*Analysis, error) {
	switch k {
	case KindNot:
		if !boolOrNull(t.Kind) {
			return nil, fmt.Errorf("%w: cannot apply %s to %s", errors.ErrType, k, t)
		}
		return scalar(types.DataType{Kind: types.KindBool, Nullable: t.Nullable}), nil
	case KindNeg:
		if !numericOrNull(t.Kind) {
			return nil, fmt.Errorf("%w: cannot apply %s to %s", errors.ErrType, k, t)
		}
		return scalar(t), nil
	case KindIsNull:
		return scalar(types.KindBool.NotNull()), nil
	}
	return nil, fmt.Errorf("%w: %s is not a unary operator", errors.ErrInternal, k)
}

func aggregateType(k Kind, t types.DataType) (*Analysis, error) {
	switch k {
	case KindCount:
		return scalar(types.KindInt64.NotNull()), nil
	case KindSum:
		switch t.Kind {
		case types.KindInt32, types.KindInt64:
			return scalar(types.KindInt64.Nullable()), nil
		case types.KindFloat64:
			return scalar(types.KindFloat64.Nullable()), nil
		}
		return nil, fmt.Errorf("%w: cannot apply %s to %s", errors.ErrType, k, t)
	case KindMin, KindMax:
		return scalar(t.Kind.Nullable()), nil
	}
	return nil, fmt.Errorf("%w: %s is not an aggregate", errors.ErrInternal, k)
}

func scalar(t types.DataType) *Analysis {
	return &Analysis{Types: []types.DataType{t}}
}

func numericOrNull(k types.Kind) bool { return k.IsNumeric() || k == types.KindNull }
func boolOrNull(k types.Kind) bool    { return k == types.KindBool || k == types.KindNull }

func typeError(k Kind, l, r types.DataType) error {
	return fmt.Errorf("%w: cannot apply %s to %s and %s", errors.ErrType, k, l, r)
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}
