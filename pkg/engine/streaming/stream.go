package streaming

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/atomic"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/streaming/feed"
)

// Stream is the live change stream of a table or materialized view.
type Stream struct {
	id     catalog.TableID
	feed   *feed.Feed
	layout []catalog.ColumnID

	// base tables lead every row with a row id assigned on write.
	base   bool
	rowIDs atomic.Int64
	rows   func(n int)
}

// ID returns the id of the table or view.
func (s *Stream) ID() catalog.TableID { return s.id }

// Name returns the table or view name.
func (s *Stream) Name() string { return s.feed.Name() }

// Schema returns the row layout of the batches published on the stream.
func (s *Stream) Schema() *arrow.Schema { return s.feed.Schema() }

// Layout returns the column id stored at every position of the row layout.
func (s *Stream) Layout() []catalog.ColumnID { return s.layout }

// Subscribe starts a subscription observing the batches published from now
// on.
func (s *Stream) Subscribe() (*feed.Subscription, error) {
	return s.feed.NewSubscription()
}

// Write publishes rows into the stream of a base table. b holds the user
// columns in catalog order. Every row is assigned a fresh row id, deleted
// rows included: a delete retracts by value and does not name the row id of
// the insert it cancels. Write blocks until all subscribers accepted the
// batch and does not take over the caller's reference to b.
func (s *Stream) Write(ctx context.Context, b changes.Batch) error {
	if !s.base {
		return fmt.Errorf("%s: rows can only be written to base tables", s.Name())
	}
	if b.Record == nil || b.NumRows() == 0 {
		return nil
	}

	schema := s.feed.Schema()
	if got, want := int(b.Record.NumCols()), schema.NumFields()-1; got != want {
		return fmt.Errorf("%s: batch has %d columns, table has %d", s.Name(), got, want)
	}
	for i, col := range b.Record.Columns() {
		if field := schema.Field(i + 1); !arrow.TypeEqual(col.DataType(), field.Type) {
			return fmt.Errorf("%s: column %s has type %s, expected %s", s.Name(), field.Name, col.DataType(), field.Type)
		}
	}

	n := int(b.NumRows())
	last := s.rowIDs.Add(int64(n))

	ids := array.NewInt64Builder(memory.DefaultAllocator)
	defer ids.Release()
	ids.Reserve(n)
	for id := last - int64(n); id < last; id++ {
		ids.Append(id)
	}
	rowIDs := ids.NewArray()
	defer rowIDs.Release()

	columns := append([]arrow.Array{rowIDs}, b.Record.Columns()...)
	rec := array.NewRecord(schema, columns, int64(n))
	out := b.WithRecord(rec)
	defer out.Release()

	if err := s.feed.Publish(ctx, out); err != nil {
		return err
	}
	if s.rows != nil {
		s.rows(n)
	}
	return nil
}
