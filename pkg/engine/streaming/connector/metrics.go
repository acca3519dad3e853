package connector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grafana/streamdb/pkg/engine/internal/util/ewma"
)

const rateWindow = time.Minute

type metrics struct {
	reg prometheus.Registerer

	rows           prometheus.Counter
	decodeFailures prometheus.Counter
	rowsRate       prometheus.GaugeFunc

	rate *ewma.Rate
}

func newMetrics(reg prometheus.Registerer, kind Kind) *metrics {
	if reg != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"connector": string(kind)}, reg)
	}
	rate := ewma.NewRate(rateWindow)
	return &metrics{
		reg:  reg,
		rate: rate,
		rows: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "streamdb_connector_rows_total",
			Help: "Total number of rows written into tables by source connectors.",
		}),
		decodeFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "streamdb_connector_decode_failures_total",
			Help: "Total number of source records that could not be decoded into a row.",
		}),
		rowsRate: promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Name: "streamdb_connector_rows_per_second",
			Help: "Moving average over one minute of the rows per second written by source connectors.",
		}, rate.Value),
	}
}

func (m *metrics) observeRows(n int) {
	m.rows.Add(float64(n))
	m.rate.Observe(n, time.Now())
}

// unregister removes the metrics so a connector for the same table can be
// created again.
func (m *metrics) unregister() {
	if m.reg == nil {
		return
	}
	m.reg.Unregister(m.rows)
	m.reg.Unregister(m.decodeFailures)
	m.reg.Unregister(m.rowsRate)
}
