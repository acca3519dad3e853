package executor

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/planner/physical"
)

// newScanPipeline re-projects every batch received on sub to the requested
// positions of the scan. The subscription is closed together with the
// pipeline.
func newScanPipeline(scan *physical.TableScan, sub physical.Subscription) *genericPipeline {
	p := newGenericPipeline(func(ctx context.Context, _ []Pipeline) (changes.Batch, error) {
		batch, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return changes.Batch{}, EOF
		} else if err != nil {
			return changes.Batch{}, err
		}
		defer batch.Release()

		cols := make([]arrow.Array, len(scan.Positions))
		for i, pos := range scan.Positions {
			if int64(pos) >= batch.Record.NumCols() {
				return changes.Batch{}, fmt.Errorf("scan of %s: position %d out of range for %d columns", scan.Source.Name(), pos, batch.Record.NumCols())
			}
			cols[i] = batch.Record.Column(pos)
		}

		rec, err := newRecord(scan.Schema(), cols, batch.NumRows())
		if err != nil {
			return changes.Batch{}, fmt.Errorf("scan of %s: %w", scan.Source.Name(), err)
		}
		return batch.WithRecord(rec), nil
	})
	p.onClose = sub.Close
	return p
}
