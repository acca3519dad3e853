package connector

import (
	"github.com/go-kit/log"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/streamdb/pkg/engine/catalog"
)

// New creates the connector described by opts for the named table. The
// returned service is not started.
func New(opts Options, table string, columns []catalog.ColumnDesc, sink Sink, logger log.Logger, reg prometheus.Registerer) (services.Service, error) {
	logger = log.With(logger, "table", table)
	if reg != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"table": table}, reg)
	}

	switch opts.Kind {
	case KindKafka:
		return NewKafkaSource(opts.Kafka, columns, sink, logger, reg), nil
	case KindObjStore:
		s, err := NewObjStoreSource(opts.ObjStore, columns, sink, logger, reg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindDatagen:
		return NewDatagenSource(opts.Datagen, columns, sink, logger, reg), nil
	}
	return nil, invalid(KeyConnector, string(opts.Kind), "unknown connector")
}
