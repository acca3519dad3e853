package dag

import "errors"

// WalkOrder is the order in which a vertex and its children are visited.
type WalkOrder uint8

const (
	// PreOrderWalk visits a vertex before its children.
	PreOrderWalk WalkOrder = iota

	// PostOrderWalk visits a vertex after all of its children. Children are
	// therefore always processed before the operators that consume them.
	PostOrderWalk
)

// WalkFunc is invoked for every vertex reached by [Graph.Walk]. A non-nil
// error stops the walk.
type WalkFunc[NodeType Node] func(n NodeType) error

// Walk visits every vertex reachable from n depth-first, each exactly once,
// and returns the first error returned by f.
func (g *Graph[NodeType]) Walk(n NodeType, f WalkFunc[NodeType], order WalkOrder) error {
	if order != PreOrderWalk && order != PostOrderWalk {
		return errors.New("unsupported walk order")
	}
	return g.walk(n, f, order, make(nodeSet[NodeType]))
}

func (g *Graph[NodeType]) walk(n NodeType, f WalkFunc[NodeType], order WalkOrder, visited nodeSet[NodeType]) error {
	if visited.Contains(n) {
		return nil
	}
	visited.Add(n)

	if order == PreOrderWalk {
		if err := f(n); err != nil {
			return err
		}
	}
	for _, child := range g.children[n] {
		if err := g.walk(child, f, order, visited); err != nil {
			return err
		}
	}
	if order == PostOrderWalk {
		return f(n)
	}
	return nil
}
