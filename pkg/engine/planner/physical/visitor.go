package physical

// Visitor defines the interface for objects that can visit each type of
// physical plan node.
type Visitor interface {
	VisitTableScan(*TableScan) error
	VisitProjection(*Projection) error
	VisitFilter(*Filter) error
}
