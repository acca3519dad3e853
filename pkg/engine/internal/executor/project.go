package executor

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/planner/physical"
)

// newProjectPipeline evaluates the expressions of proj over every batch of
// input. Output batches keep the cardinality and row tags of their input.
func newProjectPipeline(input Pipeline, proj *physical.Projection, evaluator expressionEvaluator) *genericPipeline {
	return newGenericPipeline(func(ctx context.Context, inputs []Pipeline) (changes.Batch, error) {
		batch, err := inputs[0].Read(ctx)
		if err != nil {
			return changes.Batch{}, err
		}
		defer batch.Release()

		cols := make([]arrow.Array, 0, len(proj.Expressions))
		defer func() {
			for _, col := range cols {
				col.Release()
			}
		}()

		for _, expr := range proj.Expressions {
			col, err := evaluator.eval(expr, batch.Record)
			if err != nil {
				return changes.Batch{}, fmt.Errorf("projection %s: evaluating %s: %w", proj.ID(), expr, err)
			}
			cols = append(cols, col)
		}

		rec, err := newRecord(proj.Schema(), cols, batch.NumRows())
		if err != nil {
			return changes.Batch{}, fmt.Errorf("projection %s: %w", proj.ID(), err)
		}
		return batch.WithRecord(rec), nil
	}, input)
}
