package physical

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/grafana/streamdb/pkg/engine/changes"
)

// Source is a live change stream a [TableScan] reads from: the change feed of
// a table or of a materialized view.
type Source interface {
	// Name returns the name of the table or view.
	Name() string
	// Schema returns the row layout of every batch published on the stream.
	Schema() *arrow.Schema
	// Subscribe starts a new subscription. It observes only batches
	// published after Subscribe returns.
	Subscribe() (Subscription, error)
}

// Subscription is a single consumer of a [Source].
type Subscription interface {
	// Next blocks until the next batch is available. The caller owns the
	// returned batch. Next returns io.EOF when the source was closed.
	Next(ctx context.Context) (changes.Batch, error)
	// Close detaches the subscription from its source.
	Close()
}
