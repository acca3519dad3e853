package tree

import (
	"fmt"
	"io"
	"strings"
)

const (
	branch = "├── "
	last   = "└── "
	indent = "│   "
	space  = "    "
)

// Printer writes trees to an io.Writer.
type Printer struct {
	w io.Writer
}

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes root and all of its descendants, one node per line.
func (p *Printer) Print(root *Node) {
	p.printNode(root, "", "")
}

func (p *Printer) printNode(n *Node, linePrefix, childPrefix string) {
	fmt.Fprintf(p.w, "%s%s\n", linePrefix, formatNode(n))
	for i, child := range n.Children {
		if i == len(n.Children)-1 {
			p.printNode(child, childPrefix+last, childPrefix+space)
		} else {
			p.printNode(child, childPrefix+branch, childPrefix+indent)
		}
	}
}

func formatNode(n *Node) string {
	var sb strings.Builder
	sb.WriteString(n.Name)
	for _, prop := range n.Properties {
		sb.WriteByte(' ')
		sb.WriteString(prop.Key)
		sb.WriteByte('=')
		if prop.IsMultiValue {
			sb.WriteByte('(')
		}
		for i, v := range prop.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprint(&sb, v)
		}
		if prop.IsMultiValue {
			sb.WriteByte(')')
		}
	}
	return sb.String()
}
