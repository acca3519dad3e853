package connector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/types"
)

const datagenTick = 100 * time.Millisecond

// DatagenSource synthesizes rows at a fixed rate. Values are derived from a
// sequence number, so two generators over the same table produce the same
// rows.
type DatagenSource struct {
	services.Service

	opts    DatagenOptions
	columns []catalog.ColumnDesc
	sink    Sink
	builder *changes.Builder
	seq     int64
	metrics *metrics
	logger  log.Logger
}

func NewDatagenSource(opts DatagenOptions, columns []catalog.ColumnDesc, sink Sink, logger log.Logger, reg prometheus.Registerer) *DatagenSource {
	s := &DatagenSource{
		opts:    opts,
		columns: columns,
		sink:    sink,
		metrics: newMetrics(reg, KindDatagen),
		logger:  log.With(logger, "connector", KindDatagen),
	}
	s.Service = services.NewBasicService(s.starting, s.running, s.stopping)
	return s
}

func (s *DatagenSource) starting(_ context.Context) error {
	s.builder = changes.NewBuilder(memory.DefaultAllocator, Schema(s.columns))
	return nil
}

// running returns once MaxRows rows were written.
func (s *DatagenSource) running(ctx context.Context) error {
	perTick := int(math.Ceil(float64(s.opts.RowsPerSecond) * datagenTick.Seconds()))

	ticker := time.NewTicker(datagenTick)
	defer ticker.Stop()

	for {
		n := perTick
		if s.opts.MaxRows > 0 {
			n = min(n, s.opts.MaxRows-int(s.seq))
		}
		if n <= 0 {
			level.Info(s.logger).Log("msg", "generated all rows", "rows", s.seq)
			return nil
		}
		if err := s.generate(ctx, n); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *DatagenSource) generate(ctx context.Context, n int) error {
	values := make([]any, len(s.columns))
	for range n {
		for i, c := range s.columns {
			values[i] = generateValue(c, s.seq)
		}
		if err := s.builder.Append(changes.Insert, values...); err != nil {
			return err
		}
		s.seq++
	}

	b := s.builder.Build()
	defer b.Release()
	if err := s.sink.Write(ctx, b); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	s.metrics.observeRows(n)
	return nil
}

func (s *DatagenSource) stopping(_ error) error {
	if s.builder != nil {
		s.builder.Release()
	}
	s.metrics.unregister()
	return nil
}

func generateValue(c catalog.ColumnDesc, seq int64) any {
	switch c.Type.Kind {
	case types.KindBool:
		return seq%2 == 0
	case types.KindInt32:
		return int32(seq % math.MaxInt32)
	case types.KindInt64:
		return seq
	case types.KindFloat64:
		return float64(seq) / 2
	case types.KindString:
		return fmt.Sprintf("%s-%d", c.Name, seq)
	}
	return nil
}
