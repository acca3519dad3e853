package catalog

import (
	"fmt"
	"math"

	"github.com/grafana/streamdb/pkg/engine/types"
)

// ColumnID identifies a column within its table.
type ColumnID uint32

// RowIDColumnID is the reserved id of the implicit row-identity column. User
// column ids are assigned from 0 upwards and never reach it.
const RowIDColumnID ColumnID = math.MaxUint32

// RowIDColumnName is the name of the implicit row-identity column.
const RowIDColumnName = "_rowid_"

// ColumnRef identifies a column of a table across the whole catalog.
type ColumnRef struct {
	Table  TableID
	Column ColumnID
}

func (r ColumnRef) String() string {
	return fmt.Sprintf("$%d.%d", r.Table, r.Column)
}

// ColumnDesc describes a column as declared by the user.
type ColumnDesc struct {
	Name string         `yaml:"name"`
	Type types.DataType `yaml:"-"`
}

// ColumnCatalog is a column registered in a table.
type ColumnCatalog struct {
	id   ColumnID
	desc ColumnDesc
}

// NewColumnCatalog creates a column entry.
func NewColumnCatalog(id ColumnID, desc ColumnDesc) *ColumnCatalog {
	return &ColumnCatalog{id: id, desc: desc}
}

func (c *ColumnCatalog) ID() ColumnID             { return c.id }
func (c *ColumnCatalog) Name() string             { return c.desc.Name }
func (c *ColumnCatalog) DataType() types.DataType { return c.desc.Type }
func (c *ColumnCatalog) Desc() ColumnDesc         { return c.desc }

// IsRowID reports whether c is the implicit row-identity column.
func (c *ColumnCatalog) IsRowID() bool { return c.id == RowIDColumnID }
