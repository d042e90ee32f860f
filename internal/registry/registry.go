package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/open-lambda/ol-wasm-worker/internal/bindings"
	ourerrors "github.com/open-lambda/ol-wasm-worker/internal/errors"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
	"github.com/open-lambda/ol-wasm-worker/internal/wasmcache"
)

// Registry is the read-only, startup-built map from function name to
// Function record. Safe for concurrent Get calls; never
// mutated after Build returns.
type Registry struct {
	functions map[string]*Function
	logger    *logging.ComponentLogger
}

// Options carries the per-function state every minted instance in
// this registry will share: the immutable config map and the IPC
// endpoint instances use for self-targeted function calls.
type Options struct {
	CacheDir         string
	ConfigValues     map[string]string
	IPCEndpoint      string
	MaxIdleInstances int
}

// Build enumerates registryDir for *.wasm files: each is compiled (or
// loaded from cache) via cache, wrapped in a Function, and published
// under its filename stem. Unreadable or non-wasm entries are logged
// and skipped, never fatal; a compile failure for an otherwise-valid
// .wasm file IS fatal, since a bad function should prevent the worker
// from serving at all.
func Build(ctx context.Context, registryDir string, cache *wasmcache.Cache, host *bindings.Host, opts Options, logger *logging.ColoredLogger) (*Registry, error) {
	entries, err := os.ReadDir(registryDir)
	if err != nil {
		return nil, ourerrors.NewStartupError(fmt.Sprintf("reading registry directory %q", registryDir), err)
	}

	compLogger := logger.For(logging.ComponentRegistry)
	reg := &Registry{functions: make(map[string]*Function), logger: compLogger}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".wasm") {
			compLogger.Debug("skipping non-wasm entry", zap.String("name", name))
			continue
		}

		stem := strings.TrimSuffix(name, filepath.Ext(name))
		sourcePath := filepath.Join(registryDir, name)

		compiled, err := cache.LoadOrCompile(ctx, sourcePath, opts.CacheDir)
		if err != nil {
			if _, isCompileErr := err.(*ourerrors.CompileError); isCompileErr {
				return nil, fmt.Errorf("loading function %q: %w", stem, err)
			}
			compLogger.Warn("skipping unreadable entry", zap.String("name", name), zap.Error(err))
			continue
		}

		maxIdle := opts.MaxIdleInstances
		reg.functions[stem] = newFunction(stem, compiled, host, opts.ConfigValues, opts.IPCEndpoint, maxIdle, logger)
		compLogger.Info("registered function", zap.String("name", stem))
	}

	return reg, nil
}

// Get looks up a Function by name. Lock-free: the registry is never
// mutated after Build returns.
func (r *Registry) Get(name string) (*Function, bool) {
	fn, ok := r.functions[name]
	return fn, ok
}

// Close releases every function's compiled module and pool. Call only
// once, at process shutdown.
func (r *Registry) Close(ctx context.Context) {
	var wg sync.WaitGroup
	for _, fn := range r.functions {
		wg.Add(1)
		go func(fn *Function) {
			defer wg.Done()
			if err := fn.Close(ctx); err != nil {
				r.logger.Warn("error closing function", zap.String("name", fn.Name), zap.Error(err))
			}
		}(fn)
	}
	wg.Wait()
}
