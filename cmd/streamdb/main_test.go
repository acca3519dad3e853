package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grafana/streamdb/pkg/engine"
	"github.com/grafana/streamdb/pkg/engine/catalog"
	"github.com/grafana/streamdb/pkg/engine/types"
)

const testConfig = `
http_listen_address: ":9000"
log_level: debug
engine:
  streaming:
    feed_capacity: 4
tables:
  - name: orders
    columns:
      - {name: id, type: bigint, not_null: true}
      - {name: amount, type: double}
    primary_key: [id]
views:
  - name: large_orders
    plan: "(proj (list $orders.id) (filter (> $orders.amount 100) (scan $orders (list $orders.id $orders.amount))))"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, testConfig)

	cfg, err := loadConfig([]string{"-config.file", path, "-engine.streaming.handoff-capacity", "2"}, flag.NewFlagSet("test", flag.ContinueOnError))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, ":9000", cfg.HTTPListenAddress)
	require.Equal(t, "debug", cfg.LogLevel.String())
	require.Equal(t, 4, cfg.Engine.Streaming.FeedCapacity)
	require.Equal(t, 2, cfg.Engine.Streaming.HandoffCapacity)
	require.Len(t, cfg.Tables, 1)
	require.Len(t, cfg.Views, 1)

	stmt, err := cfg.Tables[0].statement()
	require.NoError(t, err)
	require.Equal(t, catalog.Base, stmt.Type)
	require.Equal(t, []catalog.ColumnDesc{
		{Name: "id", Type: types.KindInt64.NotNull()},
		{Name: "amount", Type: types.KindFloat64.Nullable()},
	}, stmt.Columns)
	require.Equal(t, []string{"id"}, stmt.PrimaryKey)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, testConfig)

	cfg, err := loadConfig([]string{"-config.file", path, "-server.http-listen-address", ":9100", "-log.level", "warn"}, flag.NewFlagSet("test", flag.ContinueOnError))
	require.NoError(t, err)
	require.Equal(t, ":9100", cfg.HTTPListenAddress)
	require.Equal(t, "warn", cfg.LogLevel.String())
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(nil, flag.NewFlagSet("test", flag.ContinueOnError))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":8080", cfg.HTTPListenAddress)
	require.Equal(t, "info", cfg.LogLevel.String())
	require.Empty(t, cfg.Tables)
}

func TestConfig_Validate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		config string
		err    string
	}{
		{
			name:   "unknown column type",
			config: "tables: [{name: t, columns: [{name: a, type: decimal}]}]",
			err:    `unknown data type "decimal"`,
		},
		{
			name:   "table without name",
			config: "tables: [{columns: [{name: a, type: int}]}]",
			err:    "tables need a name",
		},
		{
			name:   "view without plan",
			config: "views: [{name: v}]",
			err:    "views need a name and a plan",
		},
		{
			name:   "view shadows table",
			config: "tables: [{name: t}]\nviews: [{name: t, plan: '(scan $t (list))'}]",
			err:    "view t has the name of another table or view",
		},
		{
			name:   "negative feed capacity",
			config: "engine: {streaming: {feed_capacity: -1}}",
			err:    "feed capacity must not be negative",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loadConfig([]string{"-config.file", writeConfig(t, tc.config)}, flag.NewFlagSet("test", flag.ContinueOnError))
			require.NoError(t, err)
			require.ErrorContains(t, cfg.Validate(), tc.err)
		})
	}
}

func TestBootstrap(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg, err := loadConfig([]string{"-config.file", writeConfig(t, testConfig)}, flag.NewFlagSet("test", flag.ContinueOnError))
	require.NoError(t, err)

	e, err := engine.New(engine.Params{Logger: log.NewNopLogger(), Registerer: prometheus.NewRegistry(), Config: cfg.Engine})
	require.NoError(t, err)
	handler := newHandler(e, prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, services.StartAndAwaitRunning(t.Context(), e))
	defer func() {
		require.NoError(t, services.StopAndAwaitTerminated(context.Background(), e))
	}()

	require.NoError(t, bootstrap(t.Context(), e, cfg, log.NewNopLogger()))

	view, ok := e.Catalog().GetTableByName("large_orders")
	require.True(t, ok)
	require.True(t, view.IsMaterializedView())
	require.Len(t, view.AllColumns(), 1)
	require.Equal(t, "id", view.AllColumns()[0].Name())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
