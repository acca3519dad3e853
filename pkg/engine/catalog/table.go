package catalog

import (
	"slices"
	"sync"

	"github.com/grafana/streamdb/pkg/engine/internal/errors"
	"github.com/grafana/streamdb/pkg/engine/types"
)

// TableID identifies a table, materialized view or source.
type TableID uint32

// TableType is the type of a table.
type TableType uint8

const (
	// Base is a table written to by DML or a source connector.
	Base TableType = iota
	// System is a table maintained by the engine itself.
	System
	// MaterializedView is a table backed by a streaming pipeline.
	MaterializedView
)

func (t TableType) String() string {
	switch t {
	case Base:
		return "table"
	case System:
		return "system table"
	case MaterializedView:
		return "materialized view"
	}
	return "unknown"
}

// TableCatalog is the catalog entry of a table. Every table carries the
// implicit row-identity column next to its user columns.
type TableCatalog struct {
	id   TableID
	name string
	typ  TableType

	mtx         sync.RWMutex
	columnIdxs  map[string]ColumnID
	columns     map[ColumnID]*ColumnCatalog
	nextID      ColumnID
	primaryKeys []ColumnID
}

// NewTableCatalog creates a table entry. Columns get ids in declaration order
// starting at 0.
func NewTableCatalog(id TableID, name string, typ TableType, columns []ColumnDesc, primaryKeys []ColumnID) (*TableCatalog, error) {
	t := &TableCatalog{
		id:          id,
		name:        name,
		typ:         typ,
		columnIdxs:  make(map[string]ColumnID, len(columns)+1),
		columns:     make(map[ColumnID]*ColumnCatalog, len(columns)+1),
		primaryKeys: primaryKeys,
	}
	t.columnIdxs[RowIDColumnName] = RowIDColumnID
	t.columns[RowIDColumnID] = NewColumnCatalog(RowIDColumnID, ColumnDesc{
		Name: RowIDColumnName,
		Type: types.KindInt64.NotNull(),
	})

	for _, col := range columns {
		if _, err := t.AddColumn(col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddColumn appends a column and returns its id. It fails with
// [errors.ErrDuplicated] when a column of the same name exists, leaving the
// table unchanged.
func (t *TableCatalog) AddColumn(desc ColumnDesc) (ColumnID, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if _, ok := t.columnIdxs[desc.Name]; ok {
		return 0, errors.Duplicated("column", desc.Name)
	}
	id := t.nextID
	t.nextID++
	t.columnIdxs[desc.Name] = id
	t.columns[id] = NewColumnCatalog(id, desc)
	return id, nil
}

// ContainsColumn reports whether the table has a column named name.
func (t *TableCatalog) ContainsColumn(name string) bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	_, ok := t.columnIdxs[name]
	return ok
}

// AllColumns returns the user columns ordered by id.
func (t *TableCatalog) AllColumns() []*ColumnCatalog {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	cols := make([]*ColumnCatalog, 0, len(t.columns)-1)
	for id, col := range t.columns {
		if id != RowIDColumnID {
			cols = append(cols, col)
		}
	}
	slices.SortFunc(cols, func(a, b *ColumnCatalog) int { return int(a.id) - int(b.id) })
	return cols
}

// AllColumnsWithRowID returns the row-identity column followed by the user
// columns ordered by id. This is the row layout of the table's change feed.
func (t *TableCatalog) AllColumnsWithRowID() []*ColumnCatalog {
	user := t.AllColumns()

	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return append([]*ColumnCatalog{t.columns[RowIDColumnID]}, user...)
}

// ColumnIDByName returns the id of the column named name.
func (t *TableCatalog) ColumnIDByName(name string) (ColumnID, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	id, ok := t.columnIdxs[name]
	return id, ok
}

// ColumnByID returns the column with the given id.
func (t *TableCatalog) ColumnByID(id ColumnID) (*ColumnCatalog, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	col, ok := t.columns[id]
	return col, ok
}

// ColumnByName returns the column named name.
func (t *TableCatalog) ColumnByName(name string) (*ColumnCatalog, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	id, ok := t.columnIdxs[name]
	if !ok {
		return nil, false
	}
	return t.columns[id], true
}

func (t *TableCatalog) ID() TableID             { return t.id }
func (t *TableCatalog) Name() string            { return t.name }
func (t *TableCatalog) Type() TableType         { return t.typ }
func (t *TableCatalog) PrimaryKeys() []ColumnID { return slices.Clone(t.primaryKeys) }

func (t *TableCatalog) IsBase() bool             { return t.typ == Base }
func (t *TableCatalog) IsSystem() bool           { return t.typ == System }
func (t *TableCatalog) IsMaterializedView() bool { return t.typ == MaterializedView }
