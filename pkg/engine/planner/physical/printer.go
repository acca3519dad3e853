package physical

import (
	"strings"

	"github.com/grafana/streamdb/pkg/engine/planner/internal/tree"
)

// BuildTree converts a physical plan node and its children into a tree structure
// that can be used for visualization and debugging purposes.
func BuildTree(p *Plan, n Node) *tree.Node {
	root := toTreeNode(n)
	for _, child := range p.Children(n) {
		root.Children = append(root.Children, BuildTree(p, child))
	}
	return root
}

func toTreeNode(n Node) *tree.Node {
	v := &treeVisitor{node: tree.NewNode(n.Type().String(), n.ID())}
	_ = n.Accept(v)
	return v.node
}

// treeVisitor attaches the properties of the visited node to a tree node.
type treeVisitor struct {
	node *tree.Node
}

func (v *treeVisitor) VisitTableScan(n *TableScan) error {
	v.node.Properties = []tree.Property{
		tree.NewProperty("source", false, n.Source.Name()),
		tree.NewProperty("positions", true, toAnySlice(n.Positions)...),
	}
	return nil
}

func (v *treeVisitor) VisitProjection(n *Projection) error {
	v.node.Properties = []tree.Property{
		tree.NewProperty("expressions", true, toAnySlice(n.Expressions)...),
	}
	return nil
}

func (v *treeVisitor) VisitFilter(n *Filter) error {
	v.node.Properties = []tree.Property{
		tree.NewProperty("predicate", false, n.Predicate),
	}
	return nil
}

func toAnySlice[T any](s []T) []any {
	ret := make([]any, len(s))
	for i := range s {
		ret[i] = s[i]
	}
	return ret
}

// PrintAsTree converts a physical [Plan] into a human-readable tree
// representation, one tree per root.
func PrintAsTree(p *Plan) string {
	results := make([]string, 0, len(p.Roots()))

	for _, root := range p.Roots() {
		sb := &strings.Builder{}
		tree.NewPrinter(sb).Print(BuildTree(p, root))
		results = append(results, sb.String())
	}

	return strings.Join(results, "\n")
}
