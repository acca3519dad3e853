// Package streaming owns the live change streams of tables and materialized
// views and the pipelines and connectors that feed them.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	enginerrors "github.com/grafana/streamdb/pkg/engine/internal/errors"
	"github.com/grafana/streamdb/pkg/engine/internal/executor"
	"github.com/grafana/streamdb/pkg/engine/planner/compiler"
	"github.com/grafana/streamdb/pkg/engine/planner/egraph"
	"github.com/grafana/streamdb/pkg/engine/planner/physical"
	"github.com/grafana/streamdb/pkg/engine/streaming/connector"
	"github.com/grafana/streamdb/pkg/engine/streaming/feed"
	"github.com/grafana/streamdb/pkg/engine/types"
)

const (
	streamTypeTable = "table"
	streamTypeView  = "view"
)

// Manager is the registry of live streams. Every table and materialized view
// has at most one stream, identified by its catalog id.
type Manager struct {
	services.Service

	cfg     Config
	catalog *catalog.DatabaseCatalog
	logger  log.Logger
	reg     prometheus.Registerer
	metrics *metrics

	// ctx bounds the lifetime of every view pipeline.
	ctx    context.Context
	cancel context.CancelFunc

	mtx sync.Mutex
	// A nil stream marks an id reserved by a creation in progress.
	entries map[catalog.TableID]*entry
}

type entry struct {
	typ    string
	stream *Stream

	connector services.Service

	runID  ulid.ULID
	cancel context.CancelFunc
	done   chan struct{}
}

var _ compiler.Sources = (*Manager)(nil)

func NewManager(cfg Config, cat *catalog.DatabaseCatalog, logger log.Logger, reg prometheus.Registerer) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:     cfg,
		catalog: cat,
		logger:  log.With(logger, "component", "stream-manager"),
		reg:     reg,
		metrics: newMetrics(reg),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[catalog.TableID]*entry),
	}
	m.Service = services.NewIdleService(nil, m.stopping)
	return m
}

// CreateTableFeed creates the stream of base or system table id. Its rows
// lead with the row id column followed by the user columns in catalog order.
func (m *Manager) CreateTableFeed(id catalog.TableID) (*Stream, error) {
	table, ok := m.catalog.GetTable(id)
	if !ok {
		return nil, enginerrors.NotFound("table", strconv.Itoa(int(id)))
	}
	if table.IsMaterializedView() {
		return nil, fmt.Errorf("%s is a materialized view", table.Name())
	}

	cols := table.AllColumnsWithRowID()
	layout := make([]catalog.ColumnID, len(cols))
	fields := make([]arrow.Field, len(cols))
	for i, col := range cols {
		layout[i] = col.ID()
		fields[i] = types.Field(col.Name(), col.DataType())
	}

	s := &Stream{
		id:     id,
		feed:   feed.New(table.Name(), arrow.NewSchema(fields, nil), m.cfg.FeedCapacity),
		layout: layout,
		base:   true,
		rows:   func(n int) { m.metrics.rowsWritten.Add(float64(n)) },
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	if _, exists := m.entries[id]; exists {
		return nil, enginerrors.Duplicated("stream", table.Name())
	}
	m.entries[id] = &entry{typ: streamTypeTable, stream: s}
	m.metrics.streams.WithLabelValues(streamTypeTable).Inc()

	level.Debug(m.logger).Log("msg", "created table stream", "table", table.Name(), "id", id)
	return s, nil
}

// CreateSourceConnector starts the connector described by the WITH options
// of table id. The connector writes into the table's stream until the table
// is dropped or the manager stops.
func (m *Manager) CreateSourceConnector(ctx context.Context, id catalog.TableID, with map[string]string) error {
	opts, err := connector.Parse(with)
	if err != nil {
		return err
	}

	m.mtx.Lock()
	e, ok := m.entries[id]
	if !ok || e.stream == nil {
		m.mtx.Unlock()
		return enginerrors.NotFound("stream", strconv.Itoa(int(id)))
	}
	s := e.stream
	if !s.base {
		m.mtx.Unlock()
		return fmt.Errorf("%w: %s is not a base table", enginerrors.ErrConnectorConfig, s.Name())
	}
	if e.connector != nil {
		m.mtx.Unlock()
		return enginerrors.Duplicated("connector", s.Name())
	}

	table, ok := m.catalog.GetTable(id)
	if !ok {
		m.mtx.Unlock()
		return enginerrors.NotFound("table", s.Name())
	}
	columns := make([]catalog.ColumnDesc, 0, len(s.layout)-1)
	for _, col := range table.AllColumns() {
		columns = append(columns, col.Desc())
	}

	svc, err := connector.New(opts, s.Name(), columns, s, m.logger, m.reg)
	if err != nil {
		m.mtx.Unlock()
		return err
	}
	e.connector = svc
	m.mtx.Unlock()

	if err := services.StartAndAwaitRunning(ctx, svc); err != nil {
		m.mtx.Lock()
		e.connector = nil
		m.mtx.Unlock()
		return fmt.Errorf("starting %s connector of %s: %w", opts.Kind, s.Name(), err)
	}
	level.Info(m.logger).Log("msg", "started source connector", "table", s.Name(), "connector", opts.Kind)
	return nil
}

// CreateMaterializedView compiles the plan rooted at root and starts it. The
// id is reserved before compilation: when it is already taken, the existing
// stream is left untouched and [enginerrors.ErrDuplicated] is returned. When
// compilation fails nothing is started and the id is released.
func (m *Manager) CreateMaterializedView(ctx context.Context, id catalog.TableID, g *egraph.Graph, root egraph.ClassID) (*Stream, error) {
	if err := m.reserve(id); err != nil {
		return nil, err
	}

	e, err := m.startView(ctx, id, g, root)
	if err != nil {
		m.mtx.Lock()
		delete(m.entries, id)
		m.mtx.Unlock()
		return nil, err
	}

	m.mtx.Lock()
	m.entries[id] = e
	m.mtx.Unlock()
	m.metrics.streams.WithLabelValues(streamTypeView).Inc()
	return e.stream, nil
}

func (m *Manager) reserve(id catalog.TableID) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if e, exists := m.entries[id]; exists {
		name := strconv.Itoa(int(id))
		if e.stream != nil {
			name = e.stream.Name()
		}
		return enginerrors.Duplicated("stream", name)
	}
	m.entries[id] = &entry{typ: streamTypeView}
	return nil
}

func (m *Manager) startView(ctx context.Context, id catalog.TableID, g *egraph.Graph, root egraph.ClassID) (*entry, error) {
	plan, err := compiler.New(g, m.catalog, m).Compile(root)
	if err != nil {
		return nil, err
	}
	output, err := plan.Root()
	if err != nil {
		return nil, err
	}

	name := "view-" + strconv.Itoa(int(id))
	if table, ok := m.catalog.GetTable(id); ok {
		name = table.Name()
	}
	schema := output.Schema()
	layout := make([]catalog.ColumnID, schema.NumFields())
	for i := range layout {
		layout[i] = catalog.ColumnID(i)
	}

	e := &entry{
		typ: streamTypeView,
		stream: &Stream{
			id:     id,
			feed:   feed.New(name, schema, m.cfg.FeedCapacity),
			layout: layout,
		},
		runID: ulid.Make(),
		done:  make(chan struct{}),
	}
	logger := log.With(m.logger, "view", name, "run_id", e.runID)
	level.Debug(logger).Log("msg", "compiled materialized view", "plan", physical.PrintAsTree(plan))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(m.ctx)
	pipeline, err := executor.Run(runCtx, executor.Config{HandoffCapacity: m.cfg.HandoffCapacity}, plan, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	e.cancel = cancel

	go m.pump(runCtx, e, pipeline, logger)

	level.Info(logger).Log("msg", "started materialized view", "operators", plan.Len())
	return e, nil
}

// pump publishes the output of a view pipeline into the view's stream. A
// runtime failure of the pipeline closes the stream with that error.
func (m *Manager) pump(ctx context.Context, e *entry, pipeline executor.Pipeline, logger log.Logger) {
	defer close(e.done)
	defer pipeline.Close()

	f := e.stream.feed
	for {
		b, err := pipeline.Read(ctx)
		switch {
		case errors.Is(err, executor.EOF):
			level.Debug(logger).Log("msg", "view input ended")
			f.Close()
			return
		case err != nil && ctx.Err() != nil:
			f.Close()
			return
		case err != nil:
			level.Error(logger).Log("msg", "materialized view failed", "err", err)
			m.metrics.viewFailures.Inc()
			f.CloseWithError(err)
			return
		}

		rows := b.NumRows()
		err = f.Publish(ctx, b)
		b.Release()
		if err != nil {
			if ctx.Err() == nil {
				level.Error(logger).Log("msg", "publishing view batch failed", "err", err)
				f.CloseWithError(err)
			}
			f.Close()
			return
		}
		m.metrics.viewBatches.Inc()
		m.metrics.viewRows.Add(float64(rows))
	}
}

// Source implements [compiler.Sources].
func (m *Manager) Source(id catalog.TableID) (physical.Source, []catalog.ColumnID, error) {
	s, err := m.Stream(id)
	if err != nil {
		return nil, nil, err
	}
	return s.feed, s.layout, nil
}

// Stream returns the stream of table or view id.
func (m *Manager) Stream(id catalog.TableID) (*Stream, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	e, ok := m.entries[id]
	if !ok || e.stream == nil {
		return nil, enginerrors.NotFound("stream", strconv.Itoa(int(id)))
	}
	return e.stream, nil
}

// Drop stops the connector or pipeline feeding stream id and closes the
// stream. Subscribers of the stream observe its end.
func (m *Manager) Drop(id catalog.TableID) error {
	m.mtx.Lock()
	e, ok := m.entries[id]
	if !ok || e.stream == nil {
		m.mtx.Unlock()
		return enginerrors.NotFound("stream", strconv.Itoa(int(id)))
	}
	delete(m.entries, id)
	m.mtx.Unlock()

	return m.stop(e)
}

func (m *Manager) stop(e *entry) error {
	var err error
	if e.connector != nil {
		err = services.StopAndAwaitTerminated(context.Background(), e.connector)
	}
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	e.stream.feed.Close()
	m.metrics.streams.WithLabelValues(e.typ).Dec()

	level.Debug(m.logger).Log("msg", "stopped stream", "name", e.stream.Name())
	return err
}

func (m *Manager) stopping(_ error) error {
	m.mtx.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for id, e := range m.entries {
		if e.stream != nil {
			entries = append(entries, e)
			delete(m.entries, id)
		}
	}
	m.mtx.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error { return m.stop(e) })
	}
	err := g.Wait()
	m.cancel()
	return err
}
