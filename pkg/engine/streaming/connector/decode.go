package connector

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	jsoniter "github.com/json-iterator/go"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/types"
)

// A Sink receives the rows produced by a connector. Batches carry the
// table's user columns in catalog order. The sink does not take ownership
// of the batch.
type Sink interface {
	Write(ctx context.Context, b changes.Batch) error
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(ctx context.Context, b changes.Batch) error

func (f SinkFunc) Write(ctx context.Context, b changes.Batch) error { return f(ctx, b) }

var jsonConfig = jsoniter.Config{UseNumber: true}.Froze()

// Schema returns the arrow schema of the batches a connector writes for a
// table with the given columns.
func Schema(columns []catalog.ColumnDesc) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = types.Field(c.Name, c.Type)
	}
	return arrow.NewSchema(fields, nil)
}

// rowDecoder turns JSON objects into insert rows. Object keys are matched to
// column names; absent keys become NULL.
type rowDecoder struct {
	columns []catalog.ColumnDesc
	builder *changes.Builder
}

func newRowDecoder(columns []catalog.ColumnDesc) *rowDecoder {
	return &rowDecoder{
		columns: columns,
		builder: changes.NewBuilder(memory.DefaultAllocator, Schema(columns)),
	}
}

// Append decodes a JSON object and appends it as an insert. Malformed input
// leaves the pending batch untouched.
func (d *rowDecoder) Append(data []byte) error {
	var obj map[string]any
	if err := jsonConfig.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decoding row: %w", err)
	}

	values := make([]any, len(d.columns))
	for i, c := range d.columns {
		values[i] = obj[c.Name]
	}
	return d.builder.Append(changes.Insert, values...)
}

func (d *rowDecoder) Len() int { return d.builder.Len() }

// Flush writes the pending rows to sink. It is a no-op without pending rows.
func (d *rowDecoder) Flush(ctx context.Context, sink Sink) (int, error) {
	n := d.builder.Len()
	if n == 0 {
		return 0, nil
	}
	b := d.builder.Build()
	defer b.Release()
	return n, sink.Write(ctx, b)
}

// Discard drops the pending rows.
func (d *rowDecoder) Discard() {
	b := d.builder.Build()
	b.Release()
}

func (d *rowDecoder) Release() { d.builder.Release() }
