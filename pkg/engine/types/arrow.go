package types

import "github.com/apache/arrow-go/v18/arrow"

var toArrow = map[Kind]arrow.DataType{
	KindNull:    arrow.Null,
	KindBool:    arrow.FixedWidthTypes.Boolean,
	KindInt32:   arrow.PrimitiveTypes.Int32,
	KindInt64:   arrow.PrimitiveTypes.Int64,
	KindFloat64: arrow.PrimitiveTypes.Float64,
	KindString:  arrow.BinaryTypes.String,
}

// ToArrow returns the arrow type columns of kind k are stored as.
func ToArrow(k Kind) arrow.DataType {
	if dt, ok := toArrow[k]; ok {
		return dt
	}
	return arrow.Null
}

// FromArrow returns the kind stored in arrow columns of type dt.
func FromArrow(dt arrow.DataType) Kind {
	switch dt.ID() {
	case arrow.NULL:
		return KindNull
	case arrow.BOOL:
		return KindBool
	case arrow.INT32:
		return KindInt32
	case arrow.INT64:
		return KindInt64
	case arrow.FLOAT64:
		return KindFloat64
	case arrow.STRING:
		return KindString
	}
	return KindInvalid
}

// Field returns an arrow field named name holding values of type t.
func Field(name string, t DataType) arrow.Field {
	return arrow.Field{Name: name, Type: ToArrow(t.Kind), Nullable: t.Nullable}
}
