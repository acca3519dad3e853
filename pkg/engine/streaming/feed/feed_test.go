package feed

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/types"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	types.Field("_rowid_", types.KindInt64.NotNull()),
	types.Field("a", types.KindInt32.Nullable()),
}, nil)

func newBatch(t *testing.T, rows ...[]any) changes.Batch {
	t.Helper()
	b := changes.NewBuilder(memory.DefaultAllocator, testSchema)
	defer b.Release()
	for _, row := range rows {
		require.NoError(t, b.Append(changes.Insert, row...))
	}
	return b.Build()
}

func next(t *testing.T, s *Subscription) []changes.Row {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	b, err := s.Next(ctx)
	require.NoError(t, err)
	defer b.Release()
	return changes.Rows(b)
}

func publishAsync(f *Feed, b changes.Batch) <-chan error {
	errs := make(chan error, 1)
	go func() { errs <- f.Publish(context.Background(), b) }()
	return errs
}

func TestFeed_SubscribersSeeOnlyLaterBatches(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := New("t", testSchema, 1)
	early, err := f.NewSubscription()
	require.NoError(t, err)
	defer early.Close()

	first := newBatch(t, []any{int64(0), int32(1)})
	defer first.Release()
	require.NoError(t, f.Publish(t.Context(), first))

	late, err := f.NewSubscription()
	require.NoError(t, err)
	defer late.Close()

	second := newBatch(t, []any{int64(1), int32(2)})
	defer second.Release()
	errs := publishAsync(f, second)

	require.Equal(t, []changes.Row{{Op: changes.Insert, Values: []any{int64(0), int32(1)}}}, next(t, early))
	require.Equal(t, []changes.Row{{Op: changes.Insert, Values: []any{int64(1), int32(2)}}}, next(t, early))
	require.Equal(t, []changes.Row{{Op: changes.Insert, Values: []any{int64(1), int32(2)}}}, next(t, late))
	require.NoError(t, <-errs)
}

func TestFeed_Backpressure(t *testing.T) {
	f := New("t", testSchema, 0)
	s, err := f.NewSubscription()
	require.NoError(t, err)
	defer s.Close()

	b := newBatch(t, []any{int64(0), nil})
	defer b.Release()

	// Nobody reads: the publisher blocks until its context expires.
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.Publish(ctx, b), context.DeadlineExceeded)

	// Once the subscriber leaves, publishing no longer waits for it.
	s.Close()
	require.Equal(t, 0, f.NumSubscribers())
	require.NoError(t, f.Publish(t.Context(), b))

	_, err = s.Next(t.Context())
	require.ErrorIs(t, err, ErrUnsubscribed)
}

func TestFeed_Close(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := New("t", testSchema, 1)
	s, err := f.NewSubscription()
	require.NoError(t, err)
	defer s.Close()

	b := newBatch(t, []any{int64(0), int32(7)})
	defer b.Release()
	require.NoError(t, f.Publish(t.Context(), b))
	f.Close()

	// Batches handed over before Close are still delivered.
	require.Len(t, next(t, s), 1)
	_, err = s.Next(t.Context())
	require.ErrorIs(t, err, io.EOF)

	require.ErrorIs(t, f.Publish(t.Context(), b), ErrClosed)
	_, err = f.NewSubscription()
	require.ErrorIs(t, err, ErrClosed)
}

func TestFeed_CloseWithError(t *testing.T) {
	f := New("v", testSchema, 0)
	s, err := f.NewSubscription()
	require.NoError(t, err)
	defer s.Close()

	errBoom := errors.New("boom")
	f.CloseWithError(errBoom)
	_, err = s.Next(t.Context())
	require.ErrorIs(t, err, errBoom)
}

func TestFeed_CloseUnblocksPublisher(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := New("t", testSchema, 0)
	s, err := f.NewSubscription()
	require.NoError(t, err)
	defer s.Close()

	b := newBatch(t, []any{int64(0), int32(1)})
	defer b.Release()
	errs := publishAsync(f, b)

	f.Close()
	select {
	case err := <-errs:
		// The subscriber might have been handed the batch first.
		if err != nil {
			require.ErrorIs(t, err, ErrClosed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("publisher still blocked after Close")
	}
}

func TestFeed_SchemaMismatch(t *testing.T) {
	f := New("t", arrow.NewSchema([]arrow.Field{types.Field("a", types.KindString.Nullable())}, nil), 0)
	b := newBatch(t, []any{int64(0), int32(1)})
	defer b.Release()
	require.Error(t, f.Publish(t.Context(), b))
}
