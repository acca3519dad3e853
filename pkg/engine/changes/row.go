package changes

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/streamdb/pkg/engine/types"
)

// Row is a decoded row of a [Batch].
type Row struct {
	Op     Op
	Values []any
}

func (r Row) String() string {
	return fmt.Sprintf("%s%v", r.Op, r.Values)
}

// Rows decodes all rows of b. It is meant for tests and diagnostics; operators
// work on the columnar record directly.
func Rows(b Batch) []Row {
	rows := make([]Row, b.NumRows())
	for i := range rows {
		values := make([]any, b.Record.NumCols())
		for c := range values {
			values[c] = Value(b.Record.Column(c), i)
		}
		rows[i] = Row{Op: b.Ops[i], Values: values}
	}
	return rows
}

// Value returns the Go value at index i of arr, or nil when it is null.
func Value(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch arr := arr.(type) {
	case *array.Boolean:
		return arr.Value(i)
	case *array.Int32:
		return arr.Value(i)
	case *array.Int64:
		return arr.Value(i)
	case *array.Float64:
		return arr.Value(i)
	case *array.String:
		return arr.Value(i)
	}
	return nil
}

// Builder accumulates rows into a [Batch] of a fixed schema.
type Builder struct {
	schema *arrow.Schema
	rb     *array.RecordBuilder
	ops    []Op
}

// NewBuilder returns a builder for batches with the given schema.
func NewBuilder(mem memory.Allocator, schema *arrow.Schema) *Builder {
	return &Builder{
		schema: schema,
		rb:     array.NewRecordBuilder(mem, schema),
	}
}

// Append adds a row. Values are converted to the column types with
// [types.Coerce]; nil appends a null.
func (b *Builder) Append(op Op, values ...any) error {
	if len(values) != b.schema.NumFields() {
		return fmt.Errorf("row has %d values, schema has %d columns", len(values), b.schema.NumFields())
	}

	// Validate the complete row before touching any builder, so a bad row
	// leaves the builder unchanged.
	coerced := make([]any, len(values))
	for i, v := range values {
		field := b.schema.Field(i)
		if v == nil {
			if !field.Nullable {
				return fmt.Errorf("column %s is not nullable", field.Name)
			}
			continue
		}
		c, err := types.Coerce(v, types.FromArrow(field.Type))
		if err != nil {
			return fmt.Errorf("column %s: %w", field.Name, err)
		}
		coerced[i] = c
	}

	for i, v := range coerced {
		appendValue(b.rb.Field(i), v)
	}
	b.ops = append(b.ops, op)
	return nil
}

// Len returns the number of rows appended since the last Build.
func (b *Builder) Len() int { return len(b.ops) }

// Build returns the accumulated rows as a batch and resets the builder.
func (b *Builder) Build() Batch {
	rec := b.rb.NewRecord()
	ops := b.ops
	b.ops = nil
	return Batch{Ops: ops, Record: rec}
}

// Release releases the underlying arrow builders.
func (b *Builder) Release() { b.rb.Release() }

func appendValue(builder array.Builder, v any) {
	if v == nil {
		builder.AppendNull()
		return
	}
	switch builder := builder.(type) {
	case *array.BooleanBuilder:
		builder.Append(v.(bool))
	case *array.Int32Builder:
		builder.Append(v.(int32))
	case *array.Int64Builder:
		builder.Append(v.(int64))
	case *array.Float64Builder:
		builder.Append(v.(float64))
	case *array.StringBuilder:
		builder.Append(v.(string))
	default:
		builder.AppendNull()
	}
}
