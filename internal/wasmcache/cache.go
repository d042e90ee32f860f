// Package wasmcache implements the Artifact Cache: map source .wasm
// file to a compiled, instantiation-ready Module, with an mtime-based
// on-disk freshness check. Compilation itself is delegated to the
// wazero.Runtime passed to New. The on-disk artifact holds the raw
// .wasm bytes, so a fresh artifact is still compiled again in each
// new process; compiled modules are reused only in memory, keyed by
// absolute source path, for the life of this Cache.
package wasmcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"golang.org/x/sync/singleflight"

	ourerrors "github.com/open-lambda/ol-wasm-worker/internal/errors"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
)

// hitMissRecorder is the subset of internal/metrics.Metrics this
// package depends on, kept as a local interface so tests can build a
// Cache without wiring a real Prometheus registry.
type hitMissRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// Cache compiles and caches WASM modules by source path.
type Cache struct {
	runtime wazero.Runtime
	logger  *logging.ComponentLogger
	metrics hitMissRecorder // optional; nil is fine

	mu       sync.RWMutex
	compiled map[string]wazero.CompiledModule // keyed by absolute source path

	group singleflight.Group // collapses concurrent compiles of the same source
}

// New builds an Artifact Cache backed by runtime.
func New(runtime wazero.Runtime, logger *logging.ColoredLogger) *Cache {
	return &Cache{
		runtime:  runtime,
		logger:   logger.For(logging.ComponentCache),
		compiled: make(map[string]wazero.CompiledModule),
	}
}

// WithMetrics attaches a hit/miss recorder, returning c for chaining.
func (c *Cache) WithMetrics(m hitMissRecorder) *Cache {
	c.metrics = m
	return c
}

func (c *Cache) recordHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
}

func (c *Cache) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
}

// LoadOrCompile implements the Artifact Cache contract:
// load_or_compile(source_path, cache_dir) -> Module. A missing source
// file or a compile failure is fatal to the caller (the registry
// treats it as a startup-time error for that one function); a cache
// I/O failure is tolerated and simply forces a recompile.
func (c *Cache) LoadOrCompile(ctx context.Context, sourcePath, cacheDir string) (wazero.CompiledModule, error) {
	absPath, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, ourerrors.NewStartupError(fmt.Sprintf("resolving path %s", sourcePath), err)
	}

	c.mu.RLock()
	if m, ok := c.compiled[absPath]; ok {
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.group.Do(absPath, func() (interface{}, error) {
		return c.compileAndCache(ctx, absPath, cacheDir)
	})
	if err != nil {
		return nil, err
	}
	return result.(wazero.CompiledModule), nil
}

func (c *Cache) compileAndCache(ctx context.Context, absPath, cacheDir string) (wazero.CompiledModule, error) {
	// Double-checked: another goroutine may have finished compiling
	// this source while we waited to enter the singleflight group.
	c.mu.RLock()
	if m, ok := c.compiled[absPath]; ok {
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	srcInfo, err := os.Stat(absPath)
	if err != nil {
		return nil, ourerrors.NewStartupError(fmt.Sprintf("missing source %s", absPath), err)
	}

	stem := stemOf(absPath)
	artifactPath := filepath.Join(cacheDir, stem+".bin")

	fresh := false
	if artInfo, err := os.Stat(artifactPath); err == nil {
		fresh = artInfo.ModTime().After(srcInfo.ModTime())
	}

	wasmBytes, err := os.ReadFile(absPath)
	if err != nil {
		return nil, ourerrors.NewStartupError(fmt.Sprintf("reading source %s", absPath), err)
	}

	if fresh {
		if cached, err := os.ReadFile(artifactPath); err == nil {
			if module, err := c.runtime.CompileModule(ctx, cached); err == nil {
				c.recordHit()
				c.store(absPath, module)
				return module, nil
			}
			c.logger.Warn("cached artifact failed to recompile, falling back to source")
		}
	}

	c.recordMiss()
	module, err := c.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, ourerrors.NewCompileError(stem, fmt.Sprintf("compiling %s", absPath), err)
	}

	if err := writeArtifact(cacheDir, artifactPath, wasmBytes); err != nil {
		c.logger.Warn("failed to persist artifact cache entry, continuing without it")
	}

	c.store(absPath, module)
	return module, nil
}

func (c *Cache) store(absPath string, module wazero.CompiledModule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.compiled[absPath]; ok {
		// Another goroutine won the race; keep the existing one and
		// discard ours to avoid leaking a duplicate compiled module.
		if existing != module {
			_ = module.Close(context.Background())
		}
		return
	}
	c.compiled[absPath] = module
}

// writeArtifact persists wasmBytes under artifactPath, creating
// cacheDir if necessary. Races on mkdir are tolerated: "already
// exists" counts as success, since two compiles racing to cache the
// same source is expected under concurrent first requests.
func writeArtifact(cacheDir, artifactPath string, wasmBytes []byte) error {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return ourerrors.NewCacheError(cacheDir, "creating cache directory", err)
	}

	tmp := artifactPath + ".tmp"
	if err := os.WriteFile(tmp, wasmBytes, 0o644); err != nil {
		return ourerrors.NewCacheError(artifactPath, "writing artifact", err)
	}
	if err := os.Rename(tmp, artifactPath); err != nil {
		return ourerrors.NewCacheError(artifactPath, "finalizing artifact", err)
	}
	return nil
}

func stemOf(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// Close closes every compiled module this cache holds.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for path, module := range c.compiled {
		if err := module.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing module for %s: %w", path, err)
		}
	}
	c.compiled = make(map[string]wazero.CompiledModule)
	return firstErr
}
