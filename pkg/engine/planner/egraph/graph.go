// Package egraph implements the shared-subexpression graph that holds a bound
// query plan. Nodes are grouped into equivalence classes; every class carries
// a lazily computed [Analysis] describing its output schema and types.
package egraph

import (
	"fmt"
	"slices"

	"github.com/grafana/streamdb/pkg/engine/catalog"
)

// Catalog is the catalog surface the graph consults while computing analyses.
type Catalog interface {
	GetColumn(ref catalog.ColumnRef) (*catalog.ColumnCatalog, error)
}

type nodeID uint32

type class struct {
	// members are kept sorted by insertion order.
	members  []nodeID
	analysis *Analysis
}

// Graph is a congruence-closed container of plan nodes. It is not safe for
// concurrent mutation; once built, concurrent readers must not call Analysis
// concurrently with each other either, since analyses are memoized lazily.
type Graph struct {
	catalog Catalog

	nodes   []Node
	classOf []ClassID
	classes []*class
	parents []ClassID
	memo    map[uint64][]nodeID
}

// New returns an empty graph resolving columns through cat.
func New(cat Catalog) *Graph {
	return &Graph{
		catalog: cat,
		memo:    make(map[uint64][]nodeID),
	}
}

// Len returns the number of classes ever created, including merged ones.
func (g *Graph) Len() int { return len(g.classes) }

// Find returns the canonical id of the class id belongs to.
func (g *Graph) Find(id ClassID) ClassID {
	for g.parents[id] != id {
		g.parents[id] = g.parents[g.parents[id]]
		id = g.parents[id]
	}
	return id
}

func (g *Graph) canonical(n Node) Node {
	return n.mapChildren(g.Find)
}

func (g *Graph) lookup(n Node, h uint64) (nodeID, bool) {
	for _, nid := range g.memo[h] {
		if g.canonical(g.nodes[nid]).equal(n) {
			return nid, true
		}
	}
	return 0, false
}

// Add inserts n and returns the class it belongs to. A node congruent to an
// existing one is not inserted twice.
func (g *Graph) Add(n Node) ClassID {
	n = g.canonical(n)
	h := n.hash()
	if nid, ok := g.lookup(n, h); ok {
		return g.Find(g.classOf[nid])
	}

	nid := nodeID(len(g.nodes))
	id := ClassID(len(g.classes))
	g.nodes = append(g.nodes, n)
	g.classOf = append(g.classOf, id)
	g.classes = append(g.classes, &class{members: []nodeID{nid}})
	g.parents = append(g.parents, id)
	g.memo[h] = append(g.memo[h], nid)
	return id
}

// AddExpr inserts all entries of e bottom-up and returns the class of its
// root.
func (g *Graph) AddExpr(e *Expr) ClassID {
	ids := make([]ClassID, len(e.Nodes))
	for i, n := range e.Nodes {
		ids[i] = g.Add(n.mapChildren(func(c ClassID) ClassID { return ids[c] }))
	}
	return ids[len(ids)-1]
}

// Union merges the classes of a and b and returns the resulting class. The
// class with the lower id survives. Callers must invoke [Graph.Rebuild] after
// a series of unions to restore congruence.
func (g *Graph) Union(a, b ClassID) ClassID {
	a, b = g.Find(a), g.Find(b)
	if a == b {
		return a
	}
	if b < a {
		a, b = b, a
	}
	g.parents[b] = a

	ca, cb := g.classes[a], g.classes[b]
	ca.members = append(ca.members, cb.members...)
	slices.Sort(ca.members)
	if ca.analysis == nil {
		ca.analysis = cb.analysis
	}
	g.classes[b] = nil
	return a
}

// Rebuild restores congruence after unions: nodes that became equal because
// their children were merged end up in the same class.
func (g *Graph) Rebuild() {
	for {
		merged := false
		memo := make(map[uint64][]nodeID, len(g.memo))
		for i, n := range g.nodes {
			nid := nodeID(i)
			n = g.canonical(n)
			h := n.hash()

			var dup bool
			for _, other := range memo[h] {
				if !g.canonical(g.nodes[other]).equal(n) {
					continue
				}
				if g.Find(g.classOf[other]) != g.Find(g.classOf[nid]) {
					g.Union(g.classOf[other], g.classOf[nid])
					merged = true
				}
				dup = true
				break
			}
			if !dup {
				memo[h] = append(memo[h], nid)
			}
		}
		g.memo = memo
		if !merged {
			return
		}
	}
}

// Node returns the representative of class id: the member inserted first.
// Its children are canonical class ids.
func (g *Graph) Node(id ClassID) Node {
	c := g.classes[g.Find(id)]
	return g.canonical(g.nodes[c.members[0]])
}

// Members returns all nodes of class id in insertion order.
func (g *Graph) Members(id ClassID) []Node {
	c := g.classes[g.Find(id)]
	nodes := make([]Node, len(c.members))
	for i, nid := range c.members {
		nodes[i] = g.canonical(g.nodes[nid])
	}
	return nodes
}

// Extract returns the expression rooted at class id built from class
// representatives. Shared classes appear once.
func (g *Graph) Extract(id ClassID) *Expr {
	e := &Expr{}
	seen := make(map[ClassID]ClassID)

	var visit func(ClassID) ClassID
	visit = func(id ClassID) ClassID {
		id = g.Find(id)
		if pos, ok := seen[id]; ok {
			return pos
		}
		n := g.Node(id).mapChildren(visit)
		pos := e.Add(n)
		seen[id] = pos
		return pos
	}
	visit(id)
	return e
}

// String returns the s-expression of class id.
func (g *Graph) String(id ClassID) string {
	return g.Extract(id).String()
}

func (g *Graph) checkID(id ClassID) error {
	if int(id) >= len(g.classes) {
		return fmt.Errorf("class %d does not exist", id)
	}
	return nil
}
