package connector

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDatagenSource(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var sink recordingSink
	reg := prometheus.NewRegistry()
	src := NewDatagenSource(DatagenOptions{RowsPerSecond: 100, MaxRows: 25}, testColumns, &sink, log.NewNopLogger(), reg)

	require.NoError(t, src.StartAsync(t.Context()))
	require.NoError(t, src.AwaitTerminated(t.Context()))

	rows := sink.Rows()
	require.Len(t, rows, 25)
	require.Equal(t, insert(int64(0), "name-0", true), rows[0])
	require.Equal(t, insert(int64(7), "name-7", false), rows[7])
	require.Equal(t, insert(int64(24), "name-24", true), rows[24])

	require.Equal(t, 25.0, testutil.ToFloat64(src.metrics.rows))
	require.Positive(t, src.metrics.rate.Value())

	// Stopped connectors leave nothing registered.
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)
}
