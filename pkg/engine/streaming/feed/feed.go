// Package feed implements the multi-subscriber change feed of a table or
// materialized view.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/planner/physical"
)

var (
	// ErrClosed is returned when publishing to or subscribing to a closed
	// feed.
	ErrClosed = errors.New("feed is closed")

	// ErrUnsubscribed is returned by Next after the subscription was closed.
	ErrUnsubscribed = errors.New("subscription is closed")
)

// Feed distributes change batches to any number of subscribers. Every
// subscriber observes the batches published after it subscribed, in publish
// order. There is no replay of earlier batches.
type Feed struct {
	name     string
	schema   *arrow.Schema
	capacity int

	// pubMtx serializes publishers so all subscribers see the same order.
	pubMtx sync.Mutex

	mtx    sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	err    error
	done   chan struct{}
}

var _ physical.Source = (*Feed)(nil)

// New creates a feed of batches with the given schema. capacity is the number
// of batches buffered per subscriber before publishers block.
func New(name string, schema *arrow.Schema, capacity int) *Feed {
	return &Feed{
		name:     name,
		schema:   schema,
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
		done:     make(chan struct{}),
	}
}

// Name returns the name of the table or view the feed belongs to.
func (f *Feed) Name() string { return f.name }

// Schema returns the row layout of the batches on the feed.
func (f *Feed) Schema() *arrow.Schema { return f.schema }

// Subscribe implements [physical.Source].
func (f *Feed) Subscribe() (physical.Subscription, error) {
	return f.NewSubscription()
}

// NewSubscription registers a new subscriber.
func (f *Feed) NewSubscription() (*Subscription, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.closed {
		return nil, fmt.Errorf("%s: %w", f.name, ErrClosed)
	}

	s := &Subscription{
		feed: f,
		ch:   make(chan changes.Batch, f.capacity),
		done: make(chan struct{}),
	}
	f.subs[s] = struct{}{}
	return s, nil
}

// NumSubscribers returns the number of active subscriptions.
func (f *Feed) NumSubscribers() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return len(f.subs)
}

// Publish hands batch to every current subscriber. It blocks until each of
// them accepted the batch, unsubscribed, or ctx is done. Publish does not take
// over the caller's reference to batch.
func (f *Feed) Publish(ctx context.Context, batch changes.Batch) error {
	if err := f.checkSchema(batch); err != nil {
		return err
	}

	f.pubMtx.Lock()
	defer f.pubMtx.Unlock()

	f.mtx.Lock()
	if f.closed {
		f.mtx.Unlock()
		return fmt.Errorf("%s: %w", f.name, ErrClosed)
	}
	subs := make([]*Subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mtx.Unlock()

	for _, s := range subs {
		batch.Retain()
		select {
		case s.ch <- batch:
		case <-s.done:
			batch.Release()
		case <-f.done:
			batch.Release()
			return fmt.Errorf("%s: %w", f.name, ErrClosed)
		case <-ctx.Done():
			batch.Release()
			return ctx.Err()
		}
	}
	return nil
}

func (f *Feed) checkSchema(batch changes.Batch) error {
	if batch.Record == nil {
		return fmt.Errorf("%s: batch without record", f.name)
	}
	got := batch.Schema()
	if got.NumFields() != f.schema.NumFields() {
		return fmt.Errorf("%s: batch has %d columns, feed has %d", f.name, got.NumFields(), f.schema.NumFields())
	}
	for i := range got.NumFields() {
		if !arrow.TypeEqual(got.Field(i).Type, f.schema.Field(i).Type) {
			return fmt.Errorf("%s: column %d has type %s, feed expects %s", f.name, i, got.Field(i).Type, f.schema.Field(i).Type)
		}
	}
	return nil
}

// Close ends the feed. Subscribers receive the batches already handed to
// them and then io.EOF.
func (f *Feed) Close() { f.CloseWithError(nil) }

// CloseWithError ends the feed. Subscribers receive the batches already
// handed to them and then err, or io.EOF when err is nil.
func (f *Feed) CloseWithError(err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.err = err
	close(f.done)
}

// Err returns the error the feed was closed with.
func (f *Feed) Err() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.err
}

func (f *Feed) unsubscribe(s *Subscription) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	delete(f.subs, s)
}

// Subscription is a single consumer of a [Feed]. It must not be used from
// multiple goroutines at once.
type Subscription struct {
	feed      *Feed
	ch        chan changes.Batch
	done      chan struct{}
	closeOnce sync.Once
}

var _ physical.Subscription = (*Subscription)(nil)

// Next blocks until the next batch is available. It returns io.EOF, or the
// error the feed was closed with, once the feed ended.
func (s *Subscription) Next(ctx context.Context) (changes.Batch, error) {
	select {
	case b := <-s.ch:
		return b, nil
	case <-s.done:
		return changes.Batch{}, ErrUnsubscribed
	case <-ctx.Done():
		return changes.Batch{}, ctx.Err()
	case <-s.feed.done:
		// Deliver what was handed over before the feed ended.
		select {
		case b := <-s.ch:
			return b, nil
		default:
		}
		if err := s.feed.Err(); err != nil {
			return changes.Batch{}, err
		}
		return changes.Batch{}, io.EOF
	}
}

// Close detaches the subscription from its feed and releases batches that
// were not consumed.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.feed.unsubscribe(s)
		for {
			select {
			case b := <-s.ch:
				b.Release()
			default:
				return
			}
		}
	})
}
