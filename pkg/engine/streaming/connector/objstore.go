package connector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"

	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/internal/errors"
)

const maxLineSize = 1 << 20

// ObjStoreSource polls a bucket for new objects holding newline-delimited
// JSON rows. Every object is read once, in lexical order of its name.
type ObjStoreSource struct {
	services.Service

	opts    ObjStoreOptions
	bucket  objstore.Bucket
	decoder *rowDecoder
	sink    Sink
	seen    map[string]struct{}
	metrics *metrics
	logger  log.Logger
}

// NewObjStoreSource returns a source reading from the local directory
// opts.Path.
func NewObjStoreSource(opts ObjStoreOptions, columns []catalog.ColumnDesc, sink Sink, logger log.Logger, reg prometheus.Registerer) (*ObjStoreSource, error) {
	bucket, err := filesystem.NewBucket(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", errors.ErrConnectorConfig, opts.Path, err)
	}
	return newObjStoreSource(bucket, opts, columns, sink, logger, reg), nil
}

func newObjStoreSource(bucket objstore.Bucket, opts ObjStoreOptions, columns []catalog.ColumnDesc, sink Sink, logger log.Logger, reg prometheus.Registerer) *ObjStoreSource {
	s := &ObjStoreSource{
		opts:    opts,
		bucket:  bucket,
		decoder: newRowDecoder(columns),
		sink:    sink,
		seen:    make(map[string]struct{}),
		metrics: newMetrics(reg, KindObjStore),
		logger:  log.With(logger, "connector", KindObjStore, "path", opts.Path, "prefix", opts.Prefix),
	}
	s.Service = services.NewBasicService(nil, s.running, s.stopping)
	return s
}

func (s *ObjStoreSource) running(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.poll(ctx); err != nil {
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

// poll reads every object not read before. Objects that fail to load are
// retried on the next poll.
func (s *ObjStoreSource) poll(ctx context.Context) error {
	var names []string
	err := s.bucket.Iter(ctx, s.opts.Prefix, func(name string) error {
		if strings.HasSuffix(name, objstore.DirDelim) {
			return nil
		}
		if _, ok := s.seen[name]; !ok {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		level.Warn(s.logger).Log("msg", "listing objects failed", "err", err)
		return nil
	}
	slices.Sort(names)

	for _, name := range names {
		if err := s.readObject(ctx, name); err != nil {
			level.Warn(s.logger).Log("msg", "reading object failed", "object", name, "err", err)
			s.decoder.Discard()
			continue
		}
		n, err := s.decoder.Flush(ctx, s.sink)
		if err != nil {
			return fmt.Errorf("writing rows of %s: %w", name, err)
		}
		s.seen[name] = struct{}{}
		s.metrics.observeRows(n)
		level.Debug(s.logger).Log("msg", "read object", "object", name, "rows", n)
	}
	return nil
}

func (s *ObjStoreSource) readObject(ctx context.Context, name string) error {
	rc, err := s.bucket.Get(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := s.decoder.Append(data); err != nil {
			s.metrics.decodeFailures.Inc()
			level.Warn(s.logger).Log("msg", "skipping line", "object", name, "line", line, "err", err)
		}
	}
	return scanner.Err()
}

func (s *ObjStoreSource) stopping(_ error) error {
	s.decoder.Release()
	s.metrics.unregister()
	return s.bucket.Close()
}
