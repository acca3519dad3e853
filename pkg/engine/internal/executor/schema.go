package executor

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// newRecord creates a record of schema from cols. Unlike [array.NewRecord] it
// returns an error instead of panicking when a column does not match the data
// type of its field.
//
// The returned record holds its own references to cols.
func newRecord(schema *arrow.Schema, cols []arrow.Array, rows int64) (arrow.Record, error) {
	if len(cols) != schema.NumFields() {
		return nil, fmt.Errorf("schema has %d fields, got %d columns", schema.NumFields(), len(cols))
	}
	for i, col := range cols {
		field := schema.Field(i)
		if !arrow.TypeEqual(col.DataType(), field.Type) {
			return nil, fmt.Errorf("column %s has type %s, expected %s", field.Name, col.DataType(), field.Type)
		}
		if int64(col.Len()) != rows {
			return nil, fmt.Errorf("column %s has %d rows, expected %d", field.Name, col.Len(), rows)
		}
	}
	return array.NewRecord(schema, cols, rows), nil
}

// nullBooleans returns a boolean array of n nulls.
func nullBooleans(mem memory.Allocator, n int) arrow.Array {
	builder := array.NewBooleanBuilder(mem)
	defer builder.Release()
	builder.AppendNulls(n)
	return builder.NewArray()
}
