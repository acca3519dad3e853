package physical

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Filter forwards the rows of its input for which Predicate evaluates to
// true. The output schema is the input schema.
type Filter struct {
	id string

	Predicate Expression

	schema *arrow.Schema
}

// NewFilter creates a filter over an input with the given schema.
func NewFilter(id string, predicate Expression, input *arrow.Schema) *Filter {
	return &Filter{id: id, Predicate: predicate, schema: input}
}

// ID implements the [Node] interface.
func (f *Filter) ID() string { return f.id }

// Type implements the [Node] interface.
func (*Filter) Type() NodeType { return NodeTypeFilter }

// Schema implements the [Node] interface.
func (f *Filter) Schema() *arrow.Schema { return f.schema }

// Accept implements the [Node] interface.
func (f *Filter) Accept(v Visitor) error { return v.VisitFilter(f) }
