package connector

import (
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/services"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"go.uber.org/goleak"

	"github.com/grafana/streamdb/pkg/engine/changes"
)

func TestObjStoreSource(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bucket := objstore.NewInMemBucket()
	upload := func(name, content string) {
		require.NoError(t, bucket.Upload(t.Context(), name, strings.NewReader(content)))
	}

	upload("in/002.json", `{"id": 3}`+"\n")
	upload("in/001.json", `{"id": 1, "name": "a"}`+"\n\n"+`{"id": "bad"}`+"\n"+`{"id": 2, "ok": true}`+"\n")
	upload("other/001.json", `{"id": 100}`+"\n")

	var sink recordingSink
	src := newObjStoreSource(bucket, ObjStoreOptions{
		Path:         "mem",
		Prefix:       "in/",
		PollInterval: 10 * time.Millisecond,
	}, testColumns, &sink, log.NewNopLogger(), nil)

	require.NoError(t, services.StartAndAwaitRunning(t.Context(), src))

	require.Eventually(t, func() bool { return sink.Len() == 3 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []changes.Row{
		insert(int64(1), "a", nil),
		insert(int64(2), nil, true),
		insert(int64(3), nil, nil),
	}, sink.Rows())

	// Objects already read are not read again.
	upload("in/003.json", `{"id": 4}`)
	require.Eventually(t, func() bool { return sink.Len() == 4 }, 5*time.Second, 10*time.Millisecond)
	require.Never(t, func() bool { return sink.Len() != 4 }, 50*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, insert(int64(4), nil, nil), sink.Rows()[3])

	require.NoError(t, services.StopAndAwaitTerminated(t.Context(), src))
}
