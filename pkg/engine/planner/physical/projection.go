package physical

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Projection evaluates one expression per output column over every row of
// its input.
type Projection struct {
	id string

	// Expressions reference columns of the input by position.
	Expressions []Expression

	schema *arrow.Schema
}

// NewProjection creates a projection. fields describe the output column of
// each expression.
func NewProjection(id string, exprs []Expression, fields []arrow.Field) *Projection {
	return &Projection{
		id:          id,
		Expressions: exprs,
		schema:      arrow.NewSchema(fields, nil),
	}
}

// ID implements the [Node] interface.
func (p *Projection) ID() string { return p.id }

// Type implements the [Node] interface.
func (*Projection) Type() NodeType { return NodeTypeProjection }

// Schema implements the [Node] interface.
func (p *Projection) Schema() *arrow.Schema { return p.schema }

// Accept implements the [Node] interface.
func (p *Projection) Accept(v Visitor) error { return v.VisitProjection(p) }
