package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

type metrics struct {
	statements *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		statements: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "streamdb_engine_statements_total",
			Help: "Total number of statements executed by the engine.",
		}, []string{"statement", "status"}),
		duration: promauto.With(r).NewHistogramVec(prometheus.HistogramOpts{
			Name:                        "streamdb_engine_statement_duration_seconds",
			Help:                        "Time spent executing statements.",
			Buckets:                     prometheus.DefBuckets,
			NativeHistogramBucketFactor: 1.1,
		}, []string{"statement"}),
	}
}

func (m *metrics) observe(statement string, err error, d time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusFailure
	}
	m.statements.WithLabelValues(statement, status).Inc()
	m.duration.WithLabelValues(statement).Observe(d.Seconds())
}
