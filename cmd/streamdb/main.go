// Command streamdb runs the streaming engine as a process: it creates the
// tables and materialized views named in its configuration, exposes metrics
// and readiness over HTTP and runs until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grafana/streamdb/pkg/engine"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cfg, err := loadConfig(os.Args[1:], fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "validating config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	if err := run(cfg, logger); err != nil {
		level.Error(logger).Log("msg", "error running streamdb", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *Config) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, cfg.LogLevel.Option)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func run(cfg *Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e, err := engine.New(engine.Params{
		Logger:     logger,
		Registerer: reg,
		Config:     cfg.Engine,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	if err := services.StartAndAwaitRunning(ctx, e); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		if err := services.StopAndAwaitTerminated(context.Background(), e); err != nil {
			level.Error(logger).Log("msg", "error stopping engine", "err", err)
		}
	}()

	if err := bootstrap(ctx, e, cfg, logger); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPListenAddress,
		Handler:           newHandler(e, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case <-ctx.Done():
		level.Info(logger).Log("msg", "received shutdown signal")
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// bootstrap creates the configured tables and then the configured views.
func bootstrap(ctx context.Context, e *engine.Engine, cfg *Config, logger log.Logger) error {
	for _, t := range cfg.Tables {
		stmt, err := t.statement()
		if err != nil {
			return err
		}
		ack, err := e.Execute(ctx, stmt)
		if err != nil {
			return fmt.Errorf("creating table %s: %w", t.Name, err)
		}
		ack.Release()
	}
	for _, v := range cfg.Views {
		ack, err := e.Execute(ctx, v.statement())
		if err != nil {
			return fmt.Errorf("creating view %s: %w", v.Name, err)
		}
		ack.Release()
	}
	level.Info(logger).Log("msg", "bootstrapped catalog", "tables", len(cfg.Tables), "views", len(cfg.Views))
	return nil
}

func newHandler(e *engine.Engine, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if s := e.State(); s != services.Running {
			http.Error(w, fmt.Sprintf("engine is %s", s), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready\n"))
	})
	return mux
}
