package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type testNode string

func (n testNode) ID() string { return string(n) }

// newTestGraph builds
//
//	a -> b -> d
//	a -> c -> d
func newTestGraph(t *testing.T) *Graph[testNode] {
	t.Helper()
	var g Graph[testNode]
	for _, n := range []testNode{"a", "b", "c", "d"} {
		require.NoError(t, g.Add(n))
	}
	for _, e := range []Edge[testNode]{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}} {
		require.NoError(t, g.AddEdge(e))
	}
	return &g
}

func TestGraph(t *testing.T) {
	g := newTestGraph(t)

	require.Equal(t, 4, g.Len())
	require.Equal(t, []testNode{"a"}, g.Roots())
	require.Equal(t, []testNode{"d"}, g.Leaves())
	require.Equal(t, []testNode{"b", "c"}, g.Children("a"))
	require.Equal(t, []testNode{"b", "c"}, g.Parents("d"))

	require.Error(t, g.Add("a"))
	require.Error(t, g.AddEdge(Edge[testNode]{"a", "x"}))
	require.Error(t, g.AddEdge(Edge[testNode]{"a", "a"}))
}

func TestGraph_Walk(t *testing.T) {
	g := newTestGraph(t)

	var visited []testNode
	record := func(n testNode) error {
		visited = append(visited, n)
		return nil
	}

	require.NoError(t, g.Walk("a", record, PreOrderWalk))
	require.Equal(t, []testNode{"a", "b", "d", "c"}, visited)

	visited = nil
	require.NoError(t, g.Walk("a", record, PostOrderWalk))
	require.Equal(t, []testNode{"d", "b", "c", "a"}, visited)

	errStop := errors.New("stop")
	err := g.Walk("a", func(n testNode) error {
		if n == "d" {
			return errStop
		}
		return nil
	}, PostOrderWalk)
	require.ErrorIs(t, err, errStop)
}
