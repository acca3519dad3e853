package executor

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grafana/streamdb/pkg/engine/changes"
	"github.com/grafana/streamdb/pkg/engine/planner/physical"
	"github.com/grafana/streamdb/pkg/engine/streaming/feed"
	"github.com/grafana/streamdb/pkg/engine/types"
)

var tableSchema = arrow.NewSchema([]arrow.Field{
	types.Field("_rowid_", types.KindInt64.NotNull()),
	types.Field("a", types.KindInt32.Nullable()),
	types.Field("b", types.KindString.Nullable()),
}, nil)

type testRow struct {
	op     changes.Op
	values []any
}

func ins(values ...any) testRow { return testRow{op: changes.Insert, values: values} }
func del(values ...any) testRow { return testRow{op: changes.Delete, values: values} }

func newBatch(t *testing.T, schema *arrow.Schema, rows ...testRow) changes.Batch {
	t.Helper()
	b := changes.NewBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for _, row := range rows {
		require.NoError(t, b.Append(row.op, row.values...))
	}
	return b.Build()
}

// publish publishes batches in the background and releases them afterwards.
func publish(t *testing.T, f *feed.Feed, batches ...changes.Batch) <-chan error {
	t.Helper()
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		for _, b := range batches {
			err := f.Publish(context.Background(), b)
			b.Release()
			if err != nil {
				errs <- err
				return
			}
		}
	}()
	return errs
}

func readRows(t *testing.T, p Pipeline) []changes.Row {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	b, err := p.Read(ctx)
	require.NoError(t, err)
	defer b.Release()
	return changes.Rows(b)
}

func newPlan(t *testing.T, nodes ...physical.Node) *physical.Plan {
	t.Helper()
	var p physical.Plan
	for _, n := range nodes {
		require.NoError(t, p.Add(n))
	}
	for i := 0; i+1 < len(nodes); i++ {
		require.NoError(t, p.Connect(nodes[i], nodes[i+1]))
	}
	return &p
}

func TestRun_ProjectionOverScan(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := feed.New("t", tableSchema, 0)
	defer f.Close()

	scan := physical.NewTableScan("scan", f, []int{1})
	proj := physical.NewProjection("proj", []physical.Expression{
		&physical.BinaryExpr{Left: &physical.ColumnIndexExpr{Index: 0}, Right: physical.NewLiteral(int64(10)), Op: types.BinOpKindMul},
		&physical.ColumnIndexExpr{Index: 0},
	}, []arrow.Field{
		types.Field("a * 10", types.KindInt64.Nullable()),
		types.Field("a", types.KindInt32.Nullable()),
	})

	p, err := Run(t.Context(), Config{}, newPlan(t, proj, scan), log.NewNopLogger())
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, 1, f.NumSubscribers())

	errs := publish(t, f,
		newBatch(t, tableSchema, ins(int64(0), int32(1), "x"), ins(int64(1), nil, "y")),
		newBatch(t, tableSchema, del(int64(0), int32(1), "x")),
	)

	require.Equal(t, []changes.Row{
		{Op: changes.Insert, Values: []any{int64(10), int32(1)}},
		{Op: changes.Insert, Values: []any{nil, nil}},
	}, readRows(t, p))
	require.Equal(t, []changes.Row{
		{Op: changes.Delete, Values: []any{int64(10), int32(1)}},
	}, readRows(t, p))
	require.NoError(t, <-errs)
}

func TestRun_Filter(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := feed.New("t", tableSchema, 0)
	defer f.Close()

	scan := physical.NewTableScan("scan", f, []int{2, 1})
	filter := physical.NewFilter("filter", &physical.BinaryExpr{
		Left:  &physical.ColumnIndexExpr{Index: 1},
		Right: physical.NewLiteral(int32(2)),
		Op:    types.BinOpKindGte,
	}, scan.Schema())

	p, err := Run(t.Context(), Config{HandoffCapacity: 1}, newPlan(t, filter, scan), log.NewNopLogger())
	require.NoError(t, err)
	defer p.Close()

	errs := publish(t, f,
		newBatch(t, tableSchema, ins(int64(0), int32(1), "a")),
		newBatch(t, tableSchema,
			ins(int64(1), int32(2), "b"),
			ins(int64(2), nil, "c"),
			del(int64(3), int32(5), "d"),
			ins(int64(4), int32(0), "e"),
			ins(int64(5), int32(3), "f"),
		),
	)

	// The first batch has no matching rows and is skipped entirely.
	require.Equal(t, []changes.Row{
		{Op: changes.Insert, Values: []any{"b", int32(2)}},
		{Op: changes.Delete, Values: []any{"d", int32(5)}},
		{Op: changes.Insert, Values: []any{"f", int32(3)}},
	}, readRows(t, p))
	require.NoError(t, <-errs)
}

func TestRun_RuntimeErrorIsTerminal(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := feed.New("t", tableSchema, 0)
	defer f.Close()

	scan := physical.NewTableScan("scan", f, []int{1})
	proj := physical.NewProjection("proj", []physical.Expression{
		&physical.BinaryExpr{Left: physical.NewLiteral(int32(1)), Right: &physical.ColumnIndexExpr{Index: 0}, Op: types.BinOpKindDiv},
	}, []arrow.Field{types.Field("1 / a", types.KindInt32.Nullable())})

	p, err := Run(t.Context(), Config{}, newPlan(t, proj, scan), log.NewNopLogger())
	require.NoError(t, err)
	defer p.Close()

	errs := publish(t, f, newBatch(t, tableSchema, ins(int64(0), int32(0), "x")))

	_, err = p.Read(t.Context())
	require.ErrorIs(t, err, errDivisionByZero)
	_, err = p.Read(t.Context())
	require.ErrorIs(t, err, errDivisionByZero)
	require.NoError(t, <-errs)
}

func TestRun_EndOfInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := feed.New("t", tableSchema, 0)
	scan := physical.NewTableScan("scan", f, []int{0})

	p, err := Run(t.Context(), Config{}, newPlan(t, scan), log.NewNopLogger())
	require.NoError(t, err)
	defer p.Close()

	f.Close()
	_, err = p.Read(t.Context())
	require.ErrorIs(t, err, EOF)
}

func TestRun_CloseStopsAllOperators(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := feed.New("t", tableSchema, 0)
	defer f.Close()

	scan := physical.NewTableScan("scan", f, []int{1, 2})
	filter := physical.NewFilter("filter", &physical.UnaryExpr{
		Left: &physical.UnaryExpr{Left: &physical.ColumnIndexExpr{Index: 0}, Op: types.UnaryOpKindIsNull},
		Op:   types.UnaryOpKindNot,
	}, scan.Schema())
	proj := physical.NewProjection("proj", []physical.Expression{&physical.ColumnIndexExpr{Index: 1}}, []arrow.Field{
		types.Field("b", types.KindString.Nullable()),
	})

	p, err := Run(t.Context(), Config{}, newPlan(t, proj, filter, scan), log.NewNopLogger())
	require.NoError(t, err)

	errs := publish(t, f, newBatch(t, tableSchema, ins(int64(0), int32(1), "x")))
	require.Equal(t, []changes.Row{{Op: changes.Insert, Values: []any{"x"}}}, readRows(t, p))
	require.NoError(t, <-errs)

	// All operators are idle waiting for input. Closing the output must stop
	// every one of them and release the subscription of the scan.
	p.Close()
	require.Equal(t, 0, f.NumSubscribers())

	_, err = p.Read(t.Context())
	require.ErrorIs(t, err, ErrClosed)
}

func TestRun_SubscribeFailureStartsNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	open := feed.New("open", tableSchema, 0)
	defer open.Close()
	closed := feed.New("closed", tableSchema, 0)
	closed.Close()

	// A filter over a scan of a closed feed: the scan cannot subscribe.
	scan := physical.NewTableScan("scan", closed, []int{1})
	filter := physical.NewFilter("filter", physical.NewLiteral(true), scan.Schema())

	_, err := Run(t.Context(), Config{}, newPlan(t, filter, scan), log.NewNopLogger())
	require.ErrorIs(t, err, feed.ErrClosed)
	require.Equal(t, 0, open.NumSubscribers())
}
