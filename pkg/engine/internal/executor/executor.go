// Package executor runs physical plans as graphs of concurrently scheduled
// streaming operators.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/grafana/streamdb/pkg/engine/planner/physical"
)

var tracer = otel.Tracer("pkg/engine/internal/executor")

type Config struct {
	// HandoffCapacity is the number of batches an operator may produce ahead
	// of its consumer.
	HandoffCapacity int
	Allocator       memory.Allocator
}

// Run instantiates one operator per node of plan and starts each of them in
// its own goroutine. The returned pipeline yields the output of the plan's
// root; closing it stops every operator of the plan.
//
// Scans subscribe to their sources before any operator starts. If that
// fails, the operators built so far are closed and nothing is left running.
//
// ctx bounds the lifetime of all operators.
func Run(ctx context.Context, cfg Config, plan *physical.Plan, logger log.Logger) (Pipeline, error) {
	if plan == nil {
		return nil, errors.New("plan is nil")
	}
	root, err := plan.Root()
	if err != nil {
		return nil, err
	}

	c := &Context{
		plan:      plan,
		capacity:  cfg.HandoffCapacity,
		logger:    logger,
		evaluator: newExpressionEvaluator(cfg.Allocator),
	}
	pipeline, err := c.execute(ctx, root)
	if err != nil {
		return nil, err
	}

	for _, p := range c.spawned {
		p.start(ctx)
	}
	level.Debug(logger).Log("msg", "started pipeline", "root", root.ID(), "operators", len(c.spawned))
	return pipeline, nil
}

// Context is the execution context
type Context struct {
	logger    log.Logger
	plan      *physical.Plan
	evaluator expressionEvaluator
	capacity  int

	spawned []*spawnedPipeline
}

func (c *Context) execute(ctx context.Context, node physical.Node) (Pipeline, error) {
	children := c.plan.Children(node)
	inputs := make([]Pipeline, 0, len(children))
	for _, child := range children {
		input, err := c.execute(ctx, child)
		if err != nil {
			closeAll(inputs)
			return nil, err
		}
		inputs = append(inputs, input)
	}

	var (
		pipeline Pipeline
		err      error
	)
	switch n := node.(type) {
	case *physical.TableScan:
		pipeline, err = c.executeTableScan(ctx, n)
	case *physical.Projection:
		pipeline, err = c.executeSingleInput(n, inputs, func(input Pipeline) Pipeline {
			return newProjectPipeline(input, n, c.evaluator)
		})
	case *physical.Filter:
		pipeline, err = c.executeSingleInput(n, inputs, func(input Pipeline) Pipeline {
			return newFilterPipeline(input, n, c.evaluator)
		})
	default:
		err = fmt.Errorf("invalid node type: %T", node)
	}
	if err != nil {
		closeAll(inputs)
		return nil, err
	}

	spawned := newSpawnedPipeline(node.ID(), tracePipeline("physical."+node.Type().String(), pipeline), c.capacity, c.logger)
	c.spawned = append(c.spawned, spawned)
	return spawned, nil
}

func (c *Context) executeTableScan(ctx context.Context, node *physical.TableScan) (Pipeline, error) {
	_, span := tracer.Start(ctx, "Context.executeTableScan", trace.WithAttributes(
		attribute.String("source", node.Source.Name()),
		attribute.IntSlice("positions", node.Positions),
	))
	defer span.End()

	sub, err := node.Source.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", node.Source.Name(), err)
	}
	return newScanPipeline(node, sub), nil
}

func (c *Context) executeSingleInput(node physical.Node, inputs []Pipeline, build func(Pipeline) Pipeline) (Pipeline, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%s expects exactly 1 input, got %d", node.Type(), len(inputs))
	}
	return build(inputs[0]), nil
}

func closeAll(pipelines []Pipeline) {
	for _, p := range pipelines {
		p.Close()
	}
}
