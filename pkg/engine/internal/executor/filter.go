package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/planner/physical"
)

// newFilterPipeline forwards the rows of input for which the predicate of
// filter is true. Rows where it is false or NULL are dropped; batches left
// without rows are skipped.
func newFilterPipeline(input Pipeline, filter *physical.Filter, evaluator expressionEvaluator) *genericPipeline {
	return newGenericPipeline(func(ctx context.Context, inputs []Pipeline) (changes.Batch, error) {
		for {
			batch, err := inputs[0].Read(ctx)
			if err != nil {
				return changes.Batch{}, err
			}

			filtered, err := applyPredicate(batch, filter, evaluator)
			batch.Release()
			if err != nil {
				return changes.Batch{}, err
			}
			if filtered.NumRows() == 0 {
				filtered.Release()
				continue
			}
			return filtered, nil
		}
	}, input)
}

func applyPredicate(batch changes.Batch, filter *physical.Filter, evaluator expressionEvaluator) (changes.Batch, error) {
	res, err := evaluator.eval(filter.Predicate, batch.Record)
	if err != nil {
		return changes.Batch{}, fmt.Errorf("filter %s: evaluating %s: %w", filter.ID(), filter.Predicate, err)
	}
	defer res.Release()

	var include func(int) bool
	switch mask := res.(type) {
	case *array.Boolean:
		include = func(i int) bool { return mask.IsValid(i) && mask.Value(i) }
	case *array.Null:
		include = func(int) bool { return false }
	default:
		return changes.Batch{}, fmt.Errorf("filter %s: predicate returned non-boolean type %s", filter.ID(), res.DataType())
	}
	return filterBatch(evaluator.mem, batch, include)
}

// filterBatch returns a batch holding the rows of batch for which include
// returns true. Contiguous runs of kept rows are sliced out of the input
// columns and concatenated.
func filterBatch(mem memory.Allocator, batch changes.Batch, include func(int) bool) (changes.Batch, error) {
	type run struct{ start, end int64 }

	var (
		runs []run
		ops  []changes.Op
	)
	for i := range int(batch.NumRows()) {
		if !include(i) {
			continue
		}
		ops = append(ops, batch.Ops[i])
		if n := len(runs); n > 0 && runs[n-1].end == int64(i) {
			runs[n-1].end++
		} else {
			runs = append(runs, run{start: int64(i), end: int64(i) + 1})
		}
	}

	if len(ops) == int(batch.NumRows()) {
		batch.Retain()
		return batch, nil
	}

	cols := make([]arrow.Array, batch.Record.NumCols())
	defer func() {
		for _, col := range cols {
			if col != nil {
				col.Release()
			}
		}
	}()

	for c := range cols {
		src := batch.Record.Column(c)
		switch len(runs) {
		case 0:
			cols[c] = array.NewSlice(src, 0, 0)
		case 1:
			cols[c] = array.NewSlice(src, runs[0].start, runs[0].end)
		default:
			slices := make([]arrow.Array, len(runs))
			for i, r := range runs {
				slices[i] = array.NewSlice(src, r.start, r.end)
			}
			concatenated, err := array.Concatenate(slices, mem)
			for _, s := range slices {
				s.Release()
			}
			if err != nil {
				return changes.Batch{}, fmt.Errorf("concatenating column %d: %w", c, err)
			}
			cols[c] = concatenated
		}
	}

	rec := array.NewRecord(batch.Schema(), cols, int64(len(ops)))
	return changes.Batch{Ops: ops, Record: rec}, nil
}
