// Package tree renders hierarchical plans as indented text.
package tree

// Property is a key-value pair attached to a [Node]. Single values print as
// key=value, multi values as key=(v1, v2).
type Property struct {
	Key          string
	Values       []any
	IsMultiValue bool
}

// NewProperty creates a property. multi selects the list notation.
func NewProperty(key string, multi bool, values ...any) Property {
	return Property{
		Key:          key,
		Values:       values,
		IsMultiValue: multi,
	}
}

// Node is an entry of the printed tree.
type Node struct {
	ID         string
	Name       string
	Properties []Property
	Children   []*Node
}

// NewNode creates a node with the given name, identifier and properties.
func NewNode(name, id string, properties ...Property) *Node {
	return &Node{
		ID:         id,
		Name:       name,
		Properties: properties,
	}
}

// AddChild creates a node and appends it to the children of n.
func (n *Node) AddChild(name, id string, properties []Property) *Node {
	child := NewNode(name, id, properties...)
	n.Children = append(n.Children, child)
	return child
}
