package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/open-lambda/ol-wasm-worker/internal/bindings"
	"github.com/open-lambda/ol-wasm-worker/internal/ipcclient"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
	"github.com/open-lambda/ol-wasm-worker/internal/wasmcache"
)

// minimalWASM is a nop module exporting _start, standing in for a
// real guest binary wherever only successful compilation matters.
var minimalWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0a, 0x01, 0x06, 0x5f, 0x73, 0x74, 0x61, 0x72, 0x74, 0x00, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

func newTestLogger(t *testing.T) *logging.ColoredLogger {
	t.Helper()
	logger, err := logging.New("console", -1, false)
	if err != nil {
		t.Fatalf("building logger: %v", err)
	}
	return logger
}

func newTestHost(t *testing.T) (context.Context, *wasmcache.Cache, *bindings.Host, *logging.ColoredLogger) {
	t.Helper()
	ctx := context.Background()
	logger := newTestLogger(t)

	runtime := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = runtime.Close(ctx) })

	host, err := bindings.NewHost(ctx, runtime, logger, ipcclient.New())
	if err != nil {
		t.Fatalf("building host: %v", err)
	}
	t.Cleanup(func() { _ = host.Close(ctx) })

	cache := wasmcache.New(runtime, logger)
	return ctx, cache, host, logger
}

func TestBuild_RegistersWasmAndSkipsOthers(t *testing.T) {
	ctx, cache, host, logger := newTestHost(t)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "echo.wasm"), minimalWASM, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not wasm"), 0o644); err != nil {
		t.Fatalf("writing non-wasm entry: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatalf("making subdir: %v", err)
	}

	reg, err := Build(ctx, dir, cache, host, Options{CacheDir: filepath.Join(dir, "cache")}, logger)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer reg.Close(ctx)

	fn, ok := reg.Get("echo")
	if !ok {
		t.Fatal("expected function \"echo\" to be registered")
	}
	if fn.Name != "echo" {
		t.Fatalf("got name %q, want \"echo\"", fn.Name)
	}

	if _, ok := reg.Get("README"); ok {
		t.Fatal("non-wasm entry should not be registered")
	}
	if _, ok := reg.Get("subdir"); ok {
		t.Fatal("directory entry should not be registered")
	}
}

func TestBuild_CompileFailureIsFatal(t *testing.T) {
	ctx, cache, host, logger := newTestHost(t)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "broken.wasm"), []byte("not a real wasm module"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	_, err := Build(ctx, dir, cache, host, Options{CacheDir: filepath.Join(dir, "cache")}, logger)
	if err == nil {
		t.Fatal("expected a fatal error for an unparsable .wasm file")
	}
}

func TestBuild_MissingDirectoryIsFatal(t *testing.T) {
	ctx, cache, host, logger := newTestHost(t)

	_, err := Build(ctx, filepath.Join(t.TempDir(), "does-not-exist"), cache, host, Options{}, logger)
	if err == nil {
		t.Fatal("expected a fatal error for a missing registry directory")
	}
}

func TestGet_UnknownNameReturnsFalse(t *testing.T) {
	ctx, cache, host, logger := newTestHost(t)
	dir := t.TempDir()

	reg, err := Build(ctx, dir, cache, host, Options{CacheDir: filepath.Join(dir, "cache")}, logger)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer reg.Close(ctx)

	if _, ok := reg.Get("nonexistent"); ok {
		t.Fatal("expected Get to report false for an unregistered name")
	}
}
