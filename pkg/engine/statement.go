package engine

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/changes"
	enginerrors "github.com/grafana/streamdb/pkg/engine/internal/errors"
	"github.com/grafana/streamdb/pkg/engine/planner/egraph"
	"github.com/grafana/streamdb/pkg/engine/types"
)

// Statement is a statement understood by [Engine.Execute].
type Statement interface {
	fmt.Stringer
	// Kind names the statement for logs and metrics.
	Kind() string
	isStatement()
}

// CreateTable creates a base or system table. A "connector" key in With
// attaches a source connector to the table.
type CreateTable struct {
	Name       string
	Type       catalog.TableType
	Columns    []catalog.ColumnDesc
	PrimaryKey []string
	With       map[string]string
}

func (*CreateTable) isStatement() {}
func (*CreateTable) Kind() string { return "create_table" }

func (s *CreateTable) String() string {
	return fmt.Sprintf("CREATE %s %s (%d columns)", s.Type, s.Name, len(s.Columns))
}

func (s *CreateTable) validate() error {
	if s.Name == "" {
		return errors.New("table name is empty")
	}
	for _, c := range s.Columns {
		switch c.Type.Kind {
		case types.KindInvalid, types.KindNull:
			return fmt.Errorf("%w: column %s has no valid type", enginerrors.ErrType, c.Name)
		}
	}
	return nil
}

// CreateMaterializedView creates a view maintained by a streaming pipeline.
// Plan is the bound plan in s-expression form; tables and columns may be
// referenced by id ($0.1) or by name ($orders.amount). Columns optionally
// names the view's columns.
type CreateMaterializedView struct {
	Name    string
	Plan    string
	Columns []string
}

func (*CreateMaterializedView) isStatement() {}
func (*CreateMaterializedView) Kind() string { return "create_materialized_view" }

func (s *CreateMaterializedView) String() string {
	return fmt.Sprintf("CREATE MATERIALIZED VIEW %s AS %s", s.Name, s.Plan)
}

// Insert writes rows into a base table. Op selects whether the rows are
// inserted or deleted.
type Insert struct {
	Table string
	Op    changes.Op
	Rows  [][]any
}

func (*Insert) isStatement() {}
func (*Insert) Kind() string { return "insert" }

func (s *Insert) String() string {
	return fmt.Sprintf("WRITE %s %s (%d rows)", s.Op, s.Table, len(s.Rows))
}

// Drop drops a table or materialized view.
type Drop struct {
	Name string
}

func (*Drop) isStatement()      {}
func (*Drop) Kind() string      { return "drop" }
func (s *Drop) String() string { return "DROP " + s.Name }

// Phase is the stage of statement processing an error occurred in.
type Phase string

const (
	PhaseParse   Phase = "parse"
	PhaseBind    Phase = "bind"
	PhaseExecute Phase = "execute"
)

// Error is returned by the statement layer. It records the phase that
// failed and wraps the cause.
type Error struct {
	Phase Phase
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s error: %v", e.Phase, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// viewColumns derives the columns of a view from the output schema of its
// plan. Unnamed columns are named after their position and duplicate names
// get a numeric suffix.
func viewColumns(g *egraph.Graph, root egraph.ClassID, cat *catalog.DatabaseCatalog, names []string) ([]catalog.ColumnDesc, error) {
	a, err := g.Analysis(root)
	if err != nil {
		return nil, err
	}
	if len(a.Schema) == 0 {
		return nil, fmt.Errorf("%s is not a relational plan", g.String(root))
	}
	if len(names) > 0 && len(names) != len(a.Schema) {
		return nil, fmt.Errorf("view has %d columns, %d names given", len(a.Schema), len(names))
	}

	used := make(map[string]int, len(a.Schema))
	columns := make([]catalog.ColumnDesc, len(a.Schema))
	for i, id := range a.Schema {
		name := "col" + strconv.Itoa(i)
		switch {
		case len(names) > 0:
			name = names[i]
		case g.Node(id).Kind == egraph.KindColumn:
			if col, err := cat.GetColumn(g.Node(id).Column); err == nil {
				name = col.Name()
			}
		}

		if n := used[name]; n > 0 {
			if len(names) > 0 {
				return nil, enginerrors.Duplicated("column", name)
			}
			used[name] = n + 1
			name = name + "_" + strconv.Itoa(n)
		}
		used[name]++

		columns[i] = catalog.ColumnDesc{Name: name, Type: a.Types[i]}
	}
	return columns, nil
}
