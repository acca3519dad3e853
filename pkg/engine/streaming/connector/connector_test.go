package connector

import (
	"context"
	"sync"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/types"
)

var testColumns = []catalog.ColumnDesc{
	{Name: "id", Type: types.KindInt64.NotNull()},
	{Name: "name", Type: types.KindString.Nullable()},
	{Name: "ok", Type: types.KindBool.Nullable()},
}

// recordingSink keeps every row written to it.
type recordingSink struct {
	mtx  sync.Mutex
	rows []changes.Row
}

func (s *recordingSink) Write(_ context.Context, b changes.Batch) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.rows = append(s.rows, changes.Rows(b)...)
	return nil
}

func (s *recordingSink) Rows() []changes.Row {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]changes.Row(nil), s.rows...)
}

func (s *recordingSink) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.rows)
}

func insert(values ...any) changes.Row {
	return changes.Row{Op: changes.Insert, Values: values}
}

func TestRowDecoder(t *testing.T) {
	d := newRowDecoder(testColumns)
	defer d.Release()

	require.NoError(t, d.Append([]byte(`{"id": 1, "name": "a", "ok": true, "extra": 5}`)))
	require.NoError(t, d.Append([]byte(`{"id": 2}`)))
	require.Error(t, d.Append([]byte(`{"name": "no id"}`)))
	require.Error(t, d.Append([]byte(`{"id": "x"}`)))
	require.Error(t, d.Append([]byte(`[1, 2]`)))
	require.Equal(t, 2, d.Len())

	var sink recordingSink
	n, err := d.Flush(t.Context(), &sink)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []changes.Row{
		insert(int64(1), "a", true),
		insert(int64(2), nil, nil),
	}, sink.Rows())

	n, err = d.Flush(t.Context(), &sink)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNew(t *testing.T) {
	var sink recordingSink

	svc, err := New(Options{Kind: KindDatagen, Datagen: DatagenOptions{RowsPerSecond: 1}}, "t", testColumns, &sink, log.NewNopLogger(), nil)
	require.NoError(t, err)
	require.IsType(t, &DatagenSource{}, svc)

	_, err = New(Options{Kind: "pulsar"}, "t", testColumns, &sink, log.NewNopLogger(), nil)
	require.Error(t, err)
}
