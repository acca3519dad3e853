package physical

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// TableScan subscribes to the change stream of a table or view and emits
// only the requested columns, in the requested order.
type TableScan struct {
	id string

	// Source is the stream the scan subscribes to.
	Source Source
	// Positions are the indexes of the requested columns in the row layout
	// of Source.
	Positions []int

	schema *arrow.Schema
}

// NewTableScan creates a scan of the given positions of src.
func NewTableScan(id string, src Source, positions []int) *TableScan {
	fields := make([]arrow.Field, len(positions))
	for i, pos := range positions {
		fields[i] = src.Schema().Field(pos)
	}
	return &TableScan{
		id:        id,
		Source:    src,
		Positions: positions,
		schema:    arrow.NewSchema(fields, nil),
	}
}

// ID implements the [Node] interface.
func (s *TableScan) ID() string { return s.id }

// Type implements the [Node] interface.
func (*TableScan) Type() NodeType { return NodeTypeTableScan }

// Schema implements the [Node] interface.
func (s *TableScan) Schema() *arrow.Schema { return s.schema }

// Accept implements the [Node] interface.
func (s *TableScan) Accept(v Visitor) error { return v.VisitTableScan(s) }
