package egraph

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/types"
)

// ClassID is the stable handle of an equivalence class. Inside an [Expr] the
// same type addresses entries of the expression.
type ClassID uint32

// Kind is the kind of a [Node]. The set of kinds is closed.
type Kind uint8

const (
	KindInvalid Kind = iota

	KindTable       // Reference to a catalog table.
	KindColumn      // Reference to a catalog column.
	KindColumnIndex // Resolved position in the input schema of one operator.
	KindLiteral     // Constant value.
	KindList        // Ordered list of expressions.

	KindScan   // (scan table list)
	KindProj   // (proj list child)
	KindFilter // (filter cond child)
	KindJoin   // (join cond left right)
	KindAgg    // (agg aggs groupby child)

	KindAdd
	KindSub
	KindMul
	KindDiv
	KindMod
	KindEq
	KindNeq
	KindLt
	KindLte
	KindGt
	KindGte
	KindAnd
	KindOr

	KindNot
	KindNeg
	KindIsNull

	KindCount
	KindSum
	KindMin
	KindMax
)

var kindNames = map[Kind]string{
	KindTable:       "table",
	KindColumn:      "column",
	KindColumnIndex: "index",
	KindLiteral:     "literal",
	KindList:        "list",
	KindScan:        "scan",
	KindProj:        "proj",
	KindFilter:      "filter",
	KindJoin:        "join",
	KindAgg:         "agg",
	KindAdd:         "+",
	KindSub:         "-",
	KindMul:         "*",
	KindDiv:         "/",
	KindMod:         "%",
	KindEq:          "=",
	KindNeq:         "<>",
	KindLt:          "<",
	KindLte:         "<=",
	KindGt:          ">",
	KindGte:         ">=",
	KindAnd:         "and",
	KindOr:          "or",
	KindNot:         "not",
	KindNeg:         "neg",
	KindIsNull:      "isnull",
	KindCount:       "count",
	KindSum:         "sum",
	KindMin:         "min",
	KindMax:         "max",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "invalid"
}

// IsRelational reports whether nodes of kind k produce rows.
func (k Kind) IsRelational() bool { return k >= KindScan && k <= KindAgg }

// IsBinary reports whether k is a binary scalar operator.
func (k Kind) IsBinary() bool { return k >= KindAdd && k <= KindOr }

// IsUnary reports whether k is a unary scalar operator.
func (k Kind) IsUnary() bool { return k >= KindNot && k <= KindIsNull }

// IsAggregate reports whether k is an aggregate call.
func (k Kind) IsAggregate() bool { return k >= KindCount && k <= KindMax }

// arity returns the number of children nodes of kind k take, or -1 when it
// is variable.
func (k Kind) arity() int {
	switch {
	case k == KindList:
		return -1
	case k == KindJoin || k == KindAgg:
		return 3
	case k.IsRelational(), k.IsBinary():
		return 2
	case k.IsUnary(), k.IsAggregate():
		return 1
	}
	return 0
}

// Node is a single plan operator. Only the fields relevant for its Kind are
// set. Children refer to equivalence classes.
type Node struct {
	Kind     Kind
	Table    catalog.TableID
	Column   catalog.ColumnRef
	Index    int
	Value    types.Literal
	Children []ClassID
}

func TableNode(id catalog.TableID) Node     { return Node{Kind: KindTable, Table: id} }
func ColumnNode(ref catalog.ColumnRef) Node { return Node{Kind: KindColumn, Column: ref} }
func IndexNode(i int) Node                  { return Node{Kind: KindColumnIndex, Index: i} }
func LiteralNode(v types.Literal) Node      { return Node{Kind: KindLiteral, Value: v} }
func ListNode(children ...ClassID) Node     { return Node{Kind: KindList, Children: children} }

// OpNode returns an operator node of kind k.
func OpNode(k Kind, children ...ClassID) Node { return Node{Kind: k, Children: children} }

// mapChildren returns a copy of n with every child replaced by f(child).
func (n Node) mapChildren(f func(ClassID) ClassID) Node {
	if len(n.Children) == 0 {
		return n
	}
	out := n
	out.Children = make([]ClassID, len(n.Children))
	for i, c := range n.Children {
		out.Children[i] = f(c)
	}
	return out
}

func (n Node) equal(o Node) bool {
	return n.Kind == o.Kind &&
		n.Table == o.Table &&
		n.Column == o.Column &&
		n.Index == o.Index &&
		n.Value == o.Value &&
		slices.Equal(n.Children, o.Children)
}

func (n Node) hash() uint64 {
	var buf [8]byte
	d := xxhash.New()

	_, _ = d.Write([]byte{byte(n.Kind)})
	switch n.Kind {
	case KindTable:
		binary.LittleEndian.PutUint32(buf[:4], uint32(n.Table))
		_, _ = d.Write(buf[:4])
	case KindColumn:
		binary.LittleEndian.PutUint32(buf[:4], uint32(n.Column.Table))
		binary.LittleEndian.PutUint32(buf[4:], uint32(n.Column.Column))
		_, _ = d.Write(buf[:])
	case KindColumnIndex:
		binary.LittleEndian.PutUint64(buf[:], uint64(n.Index))
		_, _ = d.Write(buf[:])
	case KindLiteral:
		_, _ = d.Write([]byte{byte(n.Value.Kind())})
		_, _ = d.WriteString(n.Value.String())
	}
	for _, c := range n.Children {
		binary.LittleEndian.PutUint32(buf[:4], uint32(c))
		_, _ = d.Write(buf[:4])
	}
	return d.Sum64()
}
