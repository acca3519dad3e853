package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Literal is a typed constant value. Literals are comparable with ==.
type Literal struct {
	kind  Kind
	value any
}

// NewLiteral creates a literal from a Go value. Supported types are nil, bool,
// int32, int, int64, float64 and string.
func NewLiteral(v any) Literal {
	switch v := v.(type) {
	case nil:
		return Literal{kind: KindNull}
	case bool:
		return Literal{kind: KindBool, value: v}
	case int32:
		return Literal{kind: KindInt32, value: v}
	case int:
		return Literal{kind: KindInt64, value: int64(v)}
	case int64:
		return Literal{kind: KindInt64, value: v}
	case float64:
		return Literal{kind: KindFloat64, value: v}
	case string:
		return Literal{kind: KindString, value: v}
	}
	panic(fmt.Sprintf("unsupported literal type %T", v))
}

// NewNullLiteral returns the NULL literal.
func NewNullLiteral() Literal { return Literal{kind: KindNull} }

// Kind returns the kind of the literal.
func (l Literal) Kind() Kind { return l.kind }

// Type returns the data type of the literal. Only NULL is nullable.
func (l Literal) Type() DataType {
	return DataType{Kind: l.kind, Nullable: l.kind == KindNull}
}

// Any returns the Go value held by the literal.
func (l Literal) Any() any { return l.value }

// IsNull reports whether l is the NULL literal.
func (l Literal) IsNull() bool { return l.kind == KindNull }

func (l Literal) String() string {
	switch l.kind {
	case KindNull:
		return "null"
	case KindString:
		return "'" + strings.ReplaceAll(l.value.(string), "'", "''") + "'"
	case KindFloat64:
		s := strconv.FormatFloat(l.value.(float64), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eIN") {
			s += ".0"
		}
		return s
	case KindInvalid:
		return typeInvalid
	}
	return fmt.Sprint(l.value)
}

// Coerce converts v into the Go representation of kind k. It accepts the
// values produced by JSON decoding (json.Number, float64, string, bool) as well
// as native Go integers.
func Coerce(v any, k Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case KindBool:
		switch v := v.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}
	case KindInt32:
		n, err := coerceInt(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("value %d overflows %s", n, k)
		}
		return int32(n), nil
	case KindInt64:
		return coerceInt(v)
	case KindFloat64:
		switch v := v.(type) {
		case float64:
			return v, nil
		case json.Number:
			return v.Float64()
		case string:
			return strconv.ParseFloat(v, 64)
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case KindString:
		switch v := v.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		}
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, k)
}

func coerceInt(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows bigint", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to an integer", v)
}
