// Package engine is the statement layer of streamdb. It binds DDL and writes
// against the catalog and drives the stream manager.
package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/changes"
	enginerrors "github.com/grafana/streamdb/pkg/engine/internal/errors"
	"github.com/grafana/streamdb/pkg/engine/planner/egraph"
	"github.com/grafana/streamdb/pkg/engine/streaming"
	"github.com/grafana/streamdb/pkg/engine/streaming/connector"
	"github.com/grafana/streamdb/pkg/engine/streaming/feed"
)

// Errors callers can match with [errors.Is].
var (
	ErrDuplicated          = enginerrors.ErrDuplicated
	ErrNotFound            = enginerrors.ErrNotFound
	ErrUnresolvedColumn    = enginerrors.ErrUnresolvedColumn
	ErrUnsupportedPlanNode = enginerrors.ErrUnsupportedPlanNode
	ErrConnectorConfig     = enginerrors.ErrConnectorConfig
	ErrInternal            = enginerrors.ErrInternal
	ErrType                = enginerrors.ErrType
	ErrNotImplemented      = enginerrors.ErrNotImplemented
)

var tracer = otel.Tracer("pkg/engine")

// Config configures the engine.
type Config struct {
	Streaming streaming.Config `yaml:"streaming"`
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.Streaming.RegisterFlagsWithPrefix(prefix+"streaming.", f)
}

func (cfg *Config) Validate() error {
	return cfg.Streaming.Validate()
}

// Params holds parameters for constructing a new [Engine].
type Params struct {
	Logger     log.Logger            // Logger for optional log messages.
	Registerer prometheus.Registerer // Registerer for optional metrics.

	Config Config // Config for the Engine.
}

// validate validates p and applies defaults.
func (p *Params) validate() error {
	if p.Logger == nil {
		p.Logger = log.NewNopLogger()
	}
	if p.Registerer == nil {
		p.Registerer = prometheus.NewRegistry()
	}
	return p.Config.Validate()
}

// Engine executes statements against a catalog of tables and materialized
// views. Statements are executed one at a time.
type Engine struct {
	services.Service

	logger  log.Logger
	metrics *metrics

	catalog *catalog.DatabaseCatalog
	manager *streaming.Manager

	// ddl serializes statements that change the catalog.
	ddl sync.Mutex
}

// New creates a new Engine. The engine must be started before statements
// are executed.
func New(params Params) (*Engine, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	cat := catalog.NewDatabaseCatalog()
	e := &Engine{
		logger:  params.Logger,
		metrics: newMetrics(params.Registerer),
		catalog: cat,
		manager: streaming.NewManager(params.Config.Streaming, cat, params.Logger, params.Registerer),
	}
	e.Service = services.NewIdleService(e.starting, e.stopping)
	return e, nil
}

func (e *Engine) starting(ctx context.Context) error {
	return services.StartAndAwaitRunning(ctx, e.manager)
}

func (e *Engine) stopping(_ error) error {
	return services.StopAndAwaitTerminated(context.Background(), e.manager)
}

// Catalog returns the catalog of the engine.
func (e *Engine) Catalog() *catalog.DatabaseCatalog { return e.catalog }

// Execute executes stmt. DDL statements return the single-row
// acknowledgment batch; the caller must release the returned batch.
func (e *Engine) Execute(ctx context.Context, stmt Statement) (changes.Batch, error) {
	ctx, span := tracer.Start(ctx, "Engine.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("statement", stmt.String()))

	start := time.Now()
	logger := log.With(e.logger, "statement", stmt.Kind())

	var (
		result changes.Batch
		err    error
	)
	switch stmt := stmt.(type) {
	case *CreateTable:
		result, err = e.CreateTable(ctx, stmt)
	case *CreateMaterializedView:
		result, err = e.CreateMaterializedView(ctx, stmt)
	case *Insert:
		err = e.Write(ctx, stmt.Table, stmt.Op, stmt.Rows...)
		if err == nil {
			result = changes.Ack()
		}
	case *Drop:
		result, err = e.Drop(ctx, stmt.Name)
	default:
		err = &Error{Phase: PhaseBind, Err: fmt.Errorf("%w: statement %T", enginerrors.ErrNotImplemented, stmt)}
	}

	e.metrics.observe(stmt.Kind(), err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "statement failed")
		level.Warn(logger).Log("msg", "statement failed", "err", err)
		return changes.Batch{}, err
	}
	span.SetStatus(codes.Ok, "")
	level.Debug(logger).Log("msg", "executed statement", "duration", time.Since(start))
	return result, nil
}

// CreateTable registers a table in the catalog and creates its stream. When
// the WITH options name a connector, the connector is started as well. On
// failure the catalog is left unchanged.
func (e *Engine) CreateTable(ctx context.Context, stmt *CreateTable) (changes.Batch, error) {
	if err := stmt.validate(); err != nil {
		return changes.Batch{}, &Error{Phase: PhaseBind, Err: err}
	}

	e.ddl.Lock()
	defer e.ddl.Unlock()

	typ := stmt.Type
	if typ == catalog.MaterializedView {
		return changes.Batch{}, &Error{Phase: PhaseBind, Err: fmt.Errorf("use CreateMaterializedView to create %s", stmt.Name)}
	}

	table, err := e.catalog.CreateTable(stmt.Name, typ, stmt.Columns, stmt.PrimaryKey)
	if err != nil {
		return changes.Batch{}, &Error{Phase: PhaseExecute, Err: err}
	}

	if _, err := e.manager.CreateTableFeed(table.ID()); err != nil {
		e.dropFromCatalog(table.ID())
		return changes.Batch{}, &Error{Phase: PhaseExecute, Err: err}
	}
	if connector.HasConnector(stmt.With) {
		if err := e.manager.CreateSourceConnector(ctx, table.ID(), stmt.With); err != nil {
			e.dropStream(table.ID())
			e.dropFromCatalog(table.ID())
			return changes.Batch{}, &Error{Phase: PhaseExecute, Err: err}
		}
	}

	level.Info(e.logger).Log("msg", "created table", "table", table.Name(), "id", table.ID(), "type", table.Type())
	return changes.Ack(), nil
}

// CreateMaterializedView parses and binds the view's plan, registers the view
// in the catalog and starts its pipeline. On failure the catalog is left
// unchanged.
func (e *Engine) CreateMaterializedView(ctx context.Context, stmt *CreateMaterializedView) (changes.Batch, error) {
	expr, err := egraph.ParseWithNames(stmt.Plan, catalogNames{e.catalog})
	if err != nil {
		var nameErr *egraph.NameError
		if errors.As(err, &nameErr) {
			return changes.Batch{}, &Error{Phase: PhaseBind, Err: err}
		}
		return changes.Batch{}, &Error{Phase: PhaseParse, Err: err}
	}

	e.ddl.Lock()
	defer e.ddl.Unlock()

	g := egraph.New(e.catalog)
	root := g.AddExpr(expr)
	columns, err := viewColumns(g, root, e.catalog, stmt.Columns)
	if err != nil {
		return changes.Batch{}, &Error{Phase: PhaseBind, Err: err}
	}

	view, err := e.catalog.CreateTable(stmt.Name, catalog.MaterializedView, columns, nil)
	if err != nil {
		return changes.Batch{}, &Error{Phase: PhaseExecute, Err: err}
	}
	if _, err := e.manager.CreateMaterializedView(ctx, view.ID(), g, root); err != nil {
		e.dropFromCatalog(view.ID())
		return changes.Batch{}, &Error{Phase: PhaseExecute, Err: err}
	}

	level.Info(e.logger).Log("msg", "created materialized view", "view", view.Name(), "id", view.ID(), "plan", g.String(root))
	return changes.Ack(), nil
}

// Write publishes rows into the base table named table. Values are given in
// catalog column order and converted to the column types.
func (e *Engine) Write(ctx context.Context, table string, op changes.Op, rows ...[]any) error {
	t, ok := e.catalog.GetTableByName(table)
	if !ok {
		return &Error{Phase: PhaseBind, Err: enginerrors.NotFound("table", table)}
	}
	if t.IsMaterializedView() {
		return &Error{Phase: PhaseBind, Err: fmt.Errorf("cannot write into materialized view %s", table)}
	}

	columns := make([]catalog.ColumnDesc, 0)
	for _, c := range t.AllColumns() {
		columns = append(columns, c.Desc())
	}

	b := changes.NewBuilder(memory.DefaultAllocator, connector.Schema(columns))
	defer b.Release()
	for i, row := range rows {
		if err := b.Append(op, row...); err != nil {
			return &Error{Phase: PhaseExecute, Err: fmt.Errorf("row %d: %w", i, err)}
		}
	}
	batch := b.Build()
	defer batch.Release()

	s, err := e.manager.Stream(t.ID())
	if err != nil {
		return &Error{Phase: PhaseExecute, Err: err}
	}
	if err := s.Write(ctx, batch); err != nil {
		return &Error{Phase: PhaseExecute, Err: err}
	}
	return nil
}

// Subscribe returns a subscription to the changes of the named table or
// view, starting with the next published batch.
func (e *Engine) Subscribe(name string) (*feed.Subscription, error) {
	t, ok := e.catalog.GetTableByName(name)
	if !ok {
		return nil, &Error{Phase: PhaseBind, Err: enginerrors.NotFound("table", name)}
	}
	s, err := e.manager.Stream(t.ID())
	if err != nil {
		return nil, &Error{Phase: PhaseExecute, Err: err}
	}
	sub, err := s.Subscribe()
	if err != nil {
		return nil, &Error{Phase: PhaseExecute, Err: err}
	}
	return sub, nil
}

// Drop stops the stream of the named table or view and removes it from the
// catalog. Views reading from it observe the end of their input.
func (e *Engine) Drop(_ context.Context, name string) (changes.Batch, error) {
	e.ddl.Lock()
	defer e.ddl.Unlock()

	t, ok := e.catalog.GetTableByName(name)
	if !ok {
		return changes.Batch{}, &Error{Phase: PhaseBind, Err: enginerrors.NotFound("table", name)}
	}
	if err := e.manager.Drop(t.ID()); err != nil && !errors.Is(err, enginerrors.ErrNotFound) {
		return changes.Batch{}, &Error{Phase: PhaseExecute, Err: err}
	}
	if err := e.catalog.DropTable(t.ID()); err != nil {
		return changes.Batch{}, &Error{Phase: PhaseExecute, Err: err}
	}
	level.Info(e.logger).Log("msg", "dropped table", "table", name, "id", t.ID())
	return changes.Ack(), nil
}

func (e *Engine) dropStream(id catalog.TableID) {
	if err := e.manager.Drop(id); err != nil {
		level.Warn(e.logger).Log("msg", "failed to drop stream", "id", id, "err", err)
	}
}

func (e *Engine) dropFromCatalog(id catalog.TableID) {
	if err := e.catalog.DropTable(id); err != nil {
		level.Warn(e.logger).Log("msg", "failed to roll back catalog entry", "id", id, "err", err)
	}
}

// catalogNames resolves named references of view plans.
type catalogNames struct {
	catalog *catalog.DatabaseCatalog
}

func (n catalogNames) TableID(name string) (catalog.TableID, error) {
	t, ok := n.catalog.GetTableByName(name)
	if !ok {
		return 0, enginerrors.NotFound("table", name)
	}
	return t.ID(), nil
}

func (n catalogNames) ColumnID(table catalog.TableID, name string) (catalog.ColumnID, error) {
	t, ok := n.catalog.GetTable(table)
	if !ok {
		return 0, enginerrors.NotFound("table", strconv.Itoa(int(table)))
	}
	id, ok := t.ColumnIDByName(name)
	if !ok {
		return 0, enginerrors.NotFound("column", t.Name()+"."+name)
	}
	return id, nil
}
