package connector

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/internal/errors"
)

// KafkaSource consumes JSON objects from a Kafka topic, one row per record.
type KafkaSource struct {
	services.Service

	opts    KafkaOptions
	client  *kgo.Client
	decoder *rowDecoder
	sink    Sink
	reg     prometheus.Registerer
	metrics *metrics
	logger  log.Logger
}

// NewKafkaSource returns a source for the topic in opts. The client connects
// when the service starts.
func NewKafkaSource(opts KafkaOptions, columns []catalog.ColumnDesc, sink Sink, logger log.Logger, reg prometheus.Registerer) *KafkaSource {
	logger = log.With(logger, "connector", KindKafka, "topic", opts.Topic)

	s := &KafkaSource{
		opts:    opts,
		decoder: newRowDecoder(columns),
		sink:    sink,
		reg:     reg,
		metrics: newMetrics(reg, KindKafka),
		logger:  logger,
	}
	s.Service = services.NewBasicService(s.starting, s.running, s.stopping)
	return s
}

func (s *KafkaSource) starting(_ context.Context) error {
	offset := kgo.NewOffset().AtStart()
	if s.opts.StartupMode == StartupLatest {
		offset = kgo.NewOffset().AtEnd()
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(s.opts.Brokers...),
		kgo.ConsumeTopics(s.opts.Topic),
		kgo.ConsumeResetOffset(offset),
		kgo.WithLogger(newKafkaLogger(s.logger)),
	}
	if s.opts.GroupID != "" {
		opts = append(opts, kgo.ConsumerGroup(s.opts.GroupID))
	}
	if s.reg != nil {
		opts = append(opts, kgo.WithHooks(kprom.NewMetrics("streamdb_kafka_source", kprom.Registerer(s.reg))))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		// stopping is not called when starting fails.
		s.decoder.Release()
		s.metrics.unregister()
		return fmt.Errorf("%w: creating kafka client: %w", errors.ErrConnectorConfig, err)
	}
	s.client = client
	return nil
}

func (s *KafkaSource) running(ctx context.Context) error {
	level.Info(s.logger).Log("msg", "started kafka source", "brokers", fmt.Sprint(s.opts.Brokers))

	for {
		fetches := s.client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			level.Warn(s.logger).Log("msg", "fetch failed", "partition", partition, "err", err)
		})

		fetches.EachRecord(func(r *kgo.Record) {
			if err := s.decoder.Append(r.Value); err != nil {
				s.metrics.decodeFailures.Inc()
				level.Warn(s.logger).Log("msg", "skipping record", "partition", r.Partition, "offset", r.Offset, "err", err)
			}
		})

		n, err := s.decoder.Flush(ctx, s.sink)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("writing rows: %w", err)
		}
		s.metrics.observeRows(n)
	}
}

func (s *KafkaSource) stopping(_ error) error {
	if s.client != nil {
		s.client.Close()
	}
	s.decoder.Release()
	s.metrics.unregister()
	level.Info(s.logger).Log("msg", "stopped kafka source")
	return nil
}

// kafkaLogger adapts a go-kit logger to [kgo.Logger].
type kafkaLogger struct {
	logger log.Logger
}

func newKafkaLogger(l log.Logger) *kafkaLogger {
	return &kafkaLogger{logger: log.With(l, "component", "kafka_client")}
}

// Level keeps kgo from building debug messages nobody reads.
func (l *kafkaLogger) Level() kgo.LogLevel {
	return kgo.LogLevelInfo
}

func (l *kafkaLogger) Log(lev kgo.LogLevel, msg string, keyvals ...any) {
	keyvals = append([]any{"msg", msg}, keyvals...)
	switch lev {
	case kgo.LogLevelDebug:
		level.Debug(l.logger).Log(keyvals...)
	case kgo.LogLevelInfo:
		level.Info(l.logger).Log(keyvals...)
	case kgo.LogLevelWarn:
		level.Warn(l.logger).Log(keyvals...)
	case kgo.LogLevelError:
		level.Error(l.logger).Log(keyvals...)
	}
}
