package types

import (
	"fmt"
	"strings"
)

const (
	typeInvalid = "invalid"
)

// Kind is the kind of a scalar value, either stored in a column or held by a
// literal.
type Kind uint8

const (
	KindInvalid Kind = iota // zero-value is an invalid kind

	KindNull    // NULL value.
	KindBool    // Boolean value.
	KindInt32   // Signed 32bit integer value.
	KindInt64   // Signed 64bit integer value.
	KindFloat64 // 64bit floating point value.
	KindString  // UTF-8 string value.
)

var kindNames = map[Kind]string{
	KindNull:    "null",
	KindBool:    "boolean",
	KindInt32:   "int",
	KindInt64:   "bigint",
	KindFloat64: "double",
	KindString:  "string",
}

// String returns the SQL name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return typeInvalid
}

// IsNumeric reports whether values of kind k support arithmetic.
func (k Kind) IsNumeric() bool {
	return k == KindInt32 || k == KindInt64 || k == KindFloat64
}

// Nullable returns a nullable [DataType] of kind k.
func (k Kind) Nullable() DataType { return DataType{Kind: k, Nullable: true} }

// NotNull returns a non-nullable [DataType] of kind k.
func (k Kind) NotNull() DataType { return DataType{Kind: k} }

// ParseKind parses a SQL type name such as "int" or "varchar".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "int4", "integer":
		return KindInt32, nil
	case "bigint", "int8":
		return KindInt64, nil
	case "double", "float", "float8":
		return KindFloat64, nil
	case "string", "text", "varchar":
		return KindString, nil
	case "null":
		return KindNull, nil
	}
	return KindInvalid, fmt.Errorf("unknown data type %q", s)
}

// DataType is the type of a column or an expression.
type DataType struct {
	Kind     Kind
	Nullable bool
}

func (t DataType) String() string {
	if t.Nullable {
		return t.Kind.String()
	}
	return t.Kind.String() + " not null"
}

// Promote returns the type that arithmetic over a and b produces. Integers
// widen to bigint and anything mixed with a double becomes a double.
func Promote(a, b Kind) Kind {
	switch {
	case a == KindNull:
		return b
	case b == KindNull:
		return a
	case a == b:
		return a
	case a == KindFloat64 || b == KindFloat64:
		return KindFloat64
	case a.IsNumeric() && b.IsNumeric():
		return KindInt64
	}
	return KindInvalid
}
