package egraph

import (
	"strconv"
	"strings"
)

// Expr is a flattened expression tree. Children of an entry address earlier
// entries of Nodes; the last entry is the root.
type Expr struct {
	Nodes []Node
}

// Add appends n and returns its position.
func (e *Expr) Add(n Node) ClassID {
	e.Nodes = append(e.Nodes, n)
	return ClassID(len(e.Nodes) - 1)
}

// Root returns the position of the root entry.
func (e *Expr) Root() ClassID { return ClassID(len(e.Nodes) - 1) }

// Node returns the entry at position id.
func (e *Expr) Node(id ClassID) Node { return e.Nodes[id] }

// String returns the s-expression form of e, as accepted by [Parse].
func (e *Expr) String() string {
	if len(e.Nodes) == 0 {
		return ""
	}
	var sb strings.Builder
	e.write(&sb, e.Root())
	return sb.String()
}

func (e *Expr) write(sb *strings.Builder, id ClassID) {
	n := e.Nodes[id]
	switch n.Kind {
	case KindTable:
		sb.WriteByte('$')
		sb.WriteString(strconv.FormatUint(uint64(n.Table), 10))
		return
	case KindColumn:
		sb.WriteByte('$')
		sb.WriteString(strconv.FormatUint(uint64(n.Column.Table), 10))
		sb.WriteByte('.')
		sb.WriteString(strconv.FormatUint(uint64(n.Column.Column), 10))
		return
	case KindColumnIndex:
		sb.WriteByte('#')
		sb.WriteString(strconv.Itoa(n.Index))
		return
	case KindLiteral:
		sb.WriteString(n.Value.String())
		return
	}

	sb.WriteByte('(')
	sb.WriteString(n.Kind.String())
	for _, c := range n.Children {
		sb.WriteByte(' ')
		e.write(sb, c)
	}
	sb.WriteByte(')')
}
