// Package changes defines the change batches that flow between streaming
// operators.
package changes

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Op tags a row of a [Batch] as inserted or deleted.
type Op uint8

const (
	Insert Op = iota
	Delete
)

func (op Op) String() string {
	switch op {
	case Insert:
		return "+"
	case Delete:
		return "-"
	}
	return fmt.Sprintf("Op(%d)", op)
}

// Batch is an immutable group of inserted and deleted rows. Row i of Record is
// tagged with Ops[i].
//
// Batches are reference counted through their arrow record. Whoever receives a
// Batch from a pipeline or a subscription owns one reference and must Release
// it.
type Batch struct {
	Ops    []Op
	Record arrow.Record
}

// NewBatch creates a batch from a record and its row tags.
func NewBatch(rec arrow.Record, ops []Op) (Batch, error) {
	if int64(len(ops)) != rec.NumRows() {
		return Batch{}, fmt.Errorf("batch has %d rows but %d row operations", rec.NumRows(), len(ops))
	}
	return Batch{Ops: ops, Record: rec}, nil
}

// Ack returns the single-row acknowledgment batch that completes a DDL
// statement. It has no columns.
func Ack() Batch {
	rec := array.NewRecord(arrow.NewSchema(nil, nil), nil, 1)
	return Batch{Ops: []Op{Insert}, Record: rec}
}

// NumRows returns the number of rows in b.
func (b Batch) NumRows() int64 {
	if b.Record == nil {
		return 0
	}
	return b.Record.NumRows()
}

// Schema returns the arrow schema of the batch.
func (b Batch) Schema() *arrow.Schema { return b.Record.Schema() }

// Retain increases the reference count of the underlying record.
func (b Batch) Retain() {
	if b.Record != nil {
		b.Record.Retain()
	}
}

// Release decreases the reference count of the underlying record.
func (b Batch) Release() {
	if b.Record != nil {
		b.Record.Release()
	}
}

// WithRecord returns a batch holding rec with the same row tags as b. rec
// must have as many rows as b.
func (b Batch) WithRecord(rec arrow.Record) Batch {
	return Batch{Ops: b.Ops, Record: rec}
}
