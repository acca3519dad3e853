// Package catalog holds the table and column definitions the streaming core
// consults while compiling plans.
package catalog

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/grafana/streamdb/pkg/engine/internal/errors"
)

// DatabaseCatalog is the set of all tables known to the engine. It is safe for
// concurrent use.
type DatabaseCatalog struct {
	mtx    sync.RWMutex
	nextID TableID
	tables map[TableID]*TableCatalog
	names  map[string]TableID
}

// NewDatabaseCatalog returns an empty catalog.
func NewDatabaseCatalog() *DatabaseCatalog {
	return &DatabaseCatalog{
		tables: make(map[TableID]*TableCatalog),
		names:  make(map[string]TableID),
	}
}

// CreateTable registers a new table and assigns it the next free id.
// primaryKey names columns of the table.
func (c *DatabaseCatalog) CreateTable(name string, typ TableType, columns []ColumnDesc, primaryKey []string) (*TableCatalog, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, ok := c.names[name]; ok {
		return nil, errors.Duplicated(typ.String(), name)
	}

	pk := make([]ColumnID, 0, len(primaryKey))
	for _, key := range primaryKey {
		idx := slices.IndexFunc(columns, func(d ColumnDesc) bool { return d.Name == key })
		if idx < 0 {
			return nil, fmt.Errorf("primary key of %s: %w", name, errors.NotFound("column", key))
		}
		pk = append(pk, ColumnID(idx))
	}

	table, err := NewTableCatalog(c.nextID, name, typ, columns, pk)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}
	c.nextID++
	c.tables[table.ID()] = table
	c.names[name] = table.ID()
	return table, nil
}

// DropTable removes a table from the catalog.
func (c *DatabaseCatalog) DropTable(id TableID) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	table, ok := c.tables[id]
	if !ok {
		return errors.NotFound("table", strconv.Itoa(int(id)))
	}
	delete(c.tables, id)
	delete(c.names, table.Name())
	return nil
}

// GetTable returns the table with the given id.
func (c *DatabaseCatalog) GetTable(id TableID) (*TableCatalog, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	t, ok := c.tables[id]
	return t, ok
}

// GetTableByName returns the table named name.
func (c *DatabaseCatalog) GetTableByName(name string) (*TableCatalog, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	id, ok := c.names[name]
	if !ok {
		return nil, false
	}
	return c.tables[id], true
}

// GetColumn returns the column ref points to.
func (c *DatabaseCatalog) GetColumn(ref ColumnRef) (*ColumnCatalog, error) {
	table, ok := c.GetTable(ref.Table)
	if !ok {
		return nil, errors.NotFound("table", strconv.Itoa(int(ref.Table)))
	}
	col, ok := table.ColumnByID(ref.Column)
	if !ok {
		return nil, fmt.Errorf("table %s: %w", table.Name(), errors.NotFound("column", ref.String()))
	}
	return col, nil
}

// Tables returns all tables ordered by id.
func (c *DatabaseCatalog) Tables() []*TableCatalog {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	tables := make([]*TableCatalog, 0, len(c.tables))
	for _, t := range c.tables {
		tables = append(tables, t)
	}
	slices.SortFunc(tables, func(a, b *TableCatalog) int { return int(a.id) - int(b.id) })
	return tables
}
