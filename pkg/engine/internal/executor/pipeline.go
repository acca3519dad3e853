package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel/codes"

	"github.com/grafana/streamdb/pkg/engine/changes"
)

// Pipeline is a lazily pulled sequence of change batches.
type Pipeline interface {
	// Read returns the next batch of the pipeline. The caller owns the batch
	// and must release it. Read returns EOF once the input is exhausted and
	// the terminal error of the pipeline after a failure.
	Read(context.Context) (changes.Batch, error)
	// Close releases the resources of the pipeline. Implementations must
	// close all of the pipeline's inputs.
	Close()
}

var (
	EOF = errors.New("pipeline exhausted") //nolint:revive,staticcheck

	// ErrClosed is returned by Read after the pipeline was closed.
	ErrClosed = errors.New("pipeline is closed")
)

type readFunc func(context.Context, []Pipeline) (changes.Batch, error)

type genericPipeline struct {
	inputs  []Pipeline
	read    readFunc
	onClose func()
}

func newGenericPipeline(read readFunc, inputs ...Pipeline) *genericPipeline {
	return &genericPipeline{
		read:   read,
		inputs: inputs,
	}
}

var _ Pipeline = (*genericPipeline)(nil)

// Read implements Pipeline.
func (p *genericPipeline) Read(ctx context.Context) (changes.Batch, error) {
	if p.read == nil {
		return changes.Batch{}, EOF
	}
	return p.read(ctx, p.inputs)
}

// Close implements Pipeline.
func (p *genericPipeline) Close() {
	if p.onClose != nil {
		p.onClose()
	}
	for _, inp := range p.inputs {
		inp.Close()
	}
}

type result struct {
	batch changes.Batch
	err   error
}

// spawnedPipeline runs the wrapped pipeline in its own goroutine and hands its
// batches to a single consumer over a bounded channel. The goroutine blocks
// while the channel is full, so a slow consumer holds back its producer.
type spawnedPipeline struct {
	Pipeline // the pipeline that is wrapped

	name   string
	logger log.Logger
	ch     chan result
	done   chan struct{}
	cancel context.CancelCauseFunc

	mtx     sync.Mutex
	started bool
	closed  bool

	// terminal is the sticky EOF or error once the producer stopped. It is
	// only accessed by the consumer.
	terminal error
}

var _ Pipeline = (*spawnedPipeline)(nil)

// newSpawnedPipeline wraps p. capacity is the number of batches that may wait
// in the handoff channel; 0 makes every handoff a rendezvous.
func newSpawnedPipeline(name string, p Pipeline, capacity int, logger log.Logger) *spawnedPipeline {
	return &spawnedPipeline{
		Pipeline: p,
		name:     name,
		logger:   logger,
		ch:       make(chan result, capacity),
		done:     make(chan struct{}),
	}
}

// start launches the producer goroutine unless it is already running. The
// goroutine runs until the input is exhausted, a read fails or the pipeline
// is closed. start reports false once the pipeline is closed.
func (p *spawnedPipeline) start(ctx context.Context) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.closed {
		return false
	}
	if p.started {
		return true
	}
	p.started = true

	ctx, p.cancel = context.WithCancelCause(ctx)
	go p.run(ctx)
	return true
}

func (p *spawnedPipeline) run(ctx context.Context) {
	defer close(p.done)
	defer close(p.ch)

	for {
		var r result
		r.batch, r.err = p.Pipeline.Read(ctx)
		if r.err != nil && ctx.Err() != nil {
			// Closed while reading: nobody is listening anymore.
			return
		}

		select {
		case <-ctx.Done():
			r.batch.Release()
			return
		case p.ch <- r:
		}

		if r.err != nil {
			if !errors.Is(r.err, EOF) {
				level.Debug(p.logger).Log("msg", "operator failed", "operator", p.name, "err", r.err)
			}
			return
		}
	}
}

// Read implements [Pipeline].
func (p *spawnedPipeline) Read(ctx context.Context) (changes.Batch, error) {
	if p.terminal != nil {
		return changes.Batch{}, p.terminal
	}
	if !p.start(ctx) {
		return changes.Batch{}, ErrClosed
	}

	select {
	case <-ctx.Done():
		return changes.Batch{}, ctx.Err()
	case r, ok := <-p.ch:
		if !ok {
			p.terminal = ErrClosed
			return changes.Batch{}, p.terminal
		}
		if r.err != nil {
			p.terminal = r.err
		}
		return r.batch, r.err
	}
}

// Close implements [Pipeline]. It stops the producer goroutine, waits for it
// to exit and then closes the wrapped pipeline together with its inputs.
func (p *spawnedPipeline) Close() {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return
	}
	p.closed = true
	started := p.started
	p.mtx.Unlock()

	if started {
		p.cancel(ErrClosed)
		<-p.done
		for r := range p.ch {
			r.batch.Release()
		}
	}
	p.Pipeline.Close()
}

type tracedPipeline struct {
	name  string
	inner Pipeline
}

var _ Pipeline = (*tracedPipeline)(nil)

// tracePipeline wraps a [Pipeline] to record each call to Read with a span.
func tracePipeline(name string, pipeline Pipeline) *tracedPipeline {
	return &tracedPipeline{
		name:  name,
		inner: pipeline,
	}
}

func (p *tracedPipeline) Read(ctx context.Context) (changes.Batch, error) {
	ctx, span := tracer.Start(ctx, p.name+".Read")
	defer span.End()

	res, err := p.inner.Read(ctx)
	if err != nil && !errors.Is(err, EOF) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return res, err
}

func (p *tracedPipeline) Close() { p.inner.Close() }
