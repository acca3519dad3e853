package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/streamdb/pkg/engine/internal/errors"
	"github.com/grafana/streamdb/pkg/engine/types"
)

func newTestTable(t *testing.T) *TableCatalog {
	t.Helper()
	table, err := NewTableCatalog(0, "t", Base, []ColumnDesc{
		{Name: "a", Type: types.KindInt32.Nullable()},
		{Name: "b", Type: types.KindString.Nullable()},
	}, nil)
	require.NoError(t, err)
	return table
}

func columnIDs(cols []*ColumnCatalog) map[string]ColumnID {
	ids := make(map[string]ColumnID, len(cols))
	for _, c := range cols {
		ids[c.Name()] = c.ID()
	}
	return ids
}

func TestTableCatalog_AllColumns(t *testing.T) {
	table := newTestTable(t)

	require.Equal(t, map[string]ColumnID{"a": 0, "b": 1}, columnIDs(table.AllColumns()))

	withRowID := table.AllColumnsWithRowID()
	require.Len(t, withRowID, 3)
	require.Equal(t, RowIDColumnID, withRowID[0].ID())
	require.True(t, withRowID[0].IsRowID())
	require.Equal(t, types.KindInt64.NotNull(), withRowID[0].DataType())
	require.Equal(t, map[string]ColumnID{RowIDColumnName: RowIDColumnID, "a": 0, "b": 1}, columnIDs(withRowID))
}

func TestTableCatalog_AddColumn(t *testing.T) {
	table := newTestTable(t)

	t.Run("duplicate name", func(t *testing.T) {
		_, err := table.AddColumn(ColumnDesc{Name: "a", Type: types.KindFloat64.Nullable()})
		require.ErrorIs(t, err, errors.ErrDuplicated)

		id, ok := table.ColumnIDByName("a")
		require.True(t, ok)
		require.Equal(t, ColumnID(0), id)

		col, ok := table.ColumnByName("a")
		require.True(t, ok)
		require.Equal(t, types.KindInt32, col.DataType().Kind)
		require.Len(t, table.AllColumns(), 2)
	})

	t.Run("rowid name is reserved", func(t *testing.T) {
		_, err := table.AddColumn(ColumnDesc{Name: RowIDColumnName, Type: types.KindInt64.Nullable()})
		require.ErrorIs(t, err, errors.ErrDuplicated)
	})

	t.Run("append", func(t *testing.T) {
		id, err := table.AddColumn(ColumnDesc{Name: "c", Type: types.KindBool.Nullable()})
		require.NoError(t, err)
		require.Equal(t, ColumnID(2), id)
		require.True(t, table.ContainsColumn("c"))
		require.Len(t, table.AllColumnsWithRowID(), 4)
	})
}

func TestNewTableCatalog_DuplicateColumns(t *testing.T) {
	_, err := NewTableCatalog(0, "t", Base, []ColumnDesc{
		{Name: "a", Type: types.KindInt32.Nullable()},
		{Name: "a", Type: types.KindInt32.Nullable()},
	}, nil)
	require.ErrorIs(t, err, errors.ErrDuplicated)
}
