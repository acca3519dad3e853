package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	streams      *prometheus.GaugeVec
	rowsWritten  prometheus.Counter
	viewBatches  prometheus.Counter
	viewRows     prometheus.Counter
	viewFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		streams: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "streamdb_streams",
			Help: "Number of live table and materialized view streams.",
		}, []string{"type"}),
		rowsWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "streamdb_table_rows_written_total",
			Help: "Total number of rows written into base tables.",
		}),
		viewBatches: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "streamdb_view_batches_total",
			Help: "Total number of change batches published by materialized views.",
		}),
		viewRows: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "streamdb_view_rows_total",
			Help: "Total number of rows published by materialized views.",
		}),
		viewFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "streamdb_view_failures_total",
			Help: "Total number of materialized view pipelines stopped by a runtime error.",
		}),
	}
}
