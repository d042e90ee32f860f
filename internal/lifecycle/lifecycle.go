// Package lifecycle drives the worker's process lifecycle: startup
// ordering (registry build, listener bind, readiness file), and
// graceful shutdown on SIGTERM/SIGINT.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/open-lambda/ol-wasm-worker/internal/bindings"
	"github.com/open-lambda/ol-wasm-worker/internal/config"
	"github.com/open-lambda/ol-wasm-worker/internal/dispatcher"
	"github.com/open-lambda/ol-wasm-worker/internal/ipcclient"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
	"github.com/open-lambda/ol-wasm-worker/internal/metrics"
	"github.com/open-lambda/ol-wasm-worker/internal/registry"
	"github.com/open-lambda/ol-wasm-worker/internal/wasmcache"
)

// ReadyFileName is the readiness signal file created after the
// listener is bound, and removed at shutdown.
const ReadyFileName = "./ol-wasm.ready"

// Run drives the worker's full lifecycle: build the registry, bind
// the listener, signal readiness, serve until SIGTERM/SIGINT, then
// drain and clean up. Returns a non-nil error only for a startup
// failure (a nonzero exit code on startup failure); a clean shutdown
// always returns nil.
func Run(ctx context.Context, cfg *config.Config, logger *logging.ColoredLogger) error {
	lifecycleLog := logger.For(logging.ComponentLifecycle)

	// WithMemoryCapacityFromMax defaults to false: memory starts small
	// and grows on demand rather than pre-allocating each instance's
	// maximum, matching a dynamic-memory sizing policy.
	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig())

	ipc := ipcclient.New()
	host, err := bindings.NewHost(ctx, runtime, logger, ipc)
	if err != nil {
		return fmt.Errorf("building host bindings: %w", err)
	}

	m := metrics.New()
	cache := wasmcache.New(runtime, logger).WithMetrics(m)

	reg, err := registry.Build(ctx, cfg.RegistryPath, cache, host, registry.Options{
		CacheDir:         cfg.CacheDir,
		ConfigValues:     cfg.ConfigValues,
		IPCEndpoint:      cfg.ListenAddress,
		MaxIdleInstances: cfg.MaxIdleInstances,
	}, logger)
	if err != nil {
		return fmt.Errorf("building function registry: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("binding listen address %q: %w", cfg.ListenAddress, err)
	}

	if err := os.WriteFile(ReadyFileName, []byte{}, 0o644); err != nil {
		return fmt.Errorf("creating readiness file: %w", err)
	}
	defer os.Remove(ReadyFileName)

	d := dispatcher.New(reg, host, logger, m)
	server := &http.Server{Handler: d}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})

	if cfg.EnableCPUProfiler {
		group.Go(func() error {
			return serveProfiler(groupCtx, cfg.ProfilerAddress, lifecycleLog)
		})
	}

	group.Go(func() error {
		return serveMetrics(groupCtx, cfg.MetricsAddress, m, lifecycleLog)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	lifecycleLog.Info("worker ready", zap.String("listen_address", cfg.ListenAddress))

	select {
	case sig := <-sigCh:
		lifecycleLog.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-groupCtx.Done():
		lifecycleLog.Warn("background task failed, shutting down")
	}

	_ = server.Shutdown(context.Background())
	reg.Close(context.Background())
	_ = host.Close(context.Background())
	_ = cache.Close(context.Background())
	_ = runtime.Close(context.Background())

	if err := group.Wait(); err != nil {
		lifecycleLog.Error("shutdown with error", zap.Error(err))
	}

	lifecycleLog.Info("shutdown complete")
	return nil
}

func serveProfiler(ctx context.Context, addr string, logger *logging.ComponentLogger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{Addr: addr, Handler: mux}
	logger.Info("cpu profiler listening", zap.String("address", addr))
	return serveUntilShutdown(ctx, server)
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *logging.ComponentLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	logger.Info("metrics listening", zap.String("address", addr))
	return serveUntilShutdown(ctx, server)
}

func serveUntilShutdown(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		_ = server.Shutdown(context.Background())
		return nil
	case err := <-errCh:
		return err
	}
}
