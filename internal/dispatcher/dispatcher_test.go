package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/open-lambda/ol-wasm-worker/internal/bindings"
	"github.com/open-lambda/ol-wasm-worker/internal/ipcclient"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
	"github.com/open-lambda/ol-wasm-worker/internal/metrics"
	"github.com/open-lambda/ol-wasm-worker/internal/registry"
	"github.com/open-lambda/ol-wasm-worker/internal/wasmcache"
)

// echoGuestWASM is a hand-assembled module exporting "f": it reads the
// current call's args via ol_args.get_args and immediately writes them
// back via ol_args.set_result, giving the dispatcher a real guest to
// drive end to end without a toolchain-built fixture.
var echoGuestWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,

	// types: (i32)->(i64), (i32,i32)->(), ()->()
	0x01, 0x0e, 0x03, 0x60, 0x01, 0x7f, 0x01, 0x7e, 0x60, 0x02, 0x7f, 0x7f, 0x00, 0x60, 0x00, 0x00,

	// imports: ol_args.get_args (type 0), ol_args.set_result (type 1)
	0x02, 0x29, 0x02,
	0x07, 0x6f, 0x6c, 0x5f, 0x61, 0x72, 0x67, 0x73, 0x08, 0x67, 0x65, 0x74, 0x5f, 0x61, 0x72, 0x67, 0x73, 0x00, 0x00,
	0x07, 0x6f, 0x6c, 0x5f, 0x61, 0x72, 0x67, 0x73, 0x0a, 0x73, 0x65, 0x74, 0x5f, 0x72, 0x65, 0x73, 0x75, 0x6c, 0x74, 0x00, 0x01,

	// functions: internal_alloc_buffer (type 0), f (type 2)
	0x03, 0x03, 0x02, 0x00, 0x02,

	// memory: one page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// globals: mutable i32 bump pointer, initial 1024
	0x06, 0x07, 0x01, 0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b,

	// exports: memory, f (func 3), internal_alloc_buffer (func 2)
	0x07, 0x26, 0x03,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	0x01, 0x66, 0x00, 0x03,
	0x15, 0x69, 0x6e, 0x74, 0x65, 0x72, 0x6e, 0x61, 0x6c, 0x5f, 0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x5f, 0x62, 0x75, 0x66, 0x66, 0x65, 0x72, 0x00, 0x02,

	// code: internal_alloc_buffer body, f body
	0x0a, 0x34, 0x02,
	0x12, 0x01, 0x01, 0x7f, 0x23, 0x00, 0x21, 0x01, 0x20, 0x01, 0x20, 0x00, 0x6a, 0x24, 0x00, 0x20, 0x01, 0xad, 0x0b,
	0x1f, 0x01, 0x03, 0x7f,
	0x41, 0x08, 0x10, 0x02, 0xa7, 0x21, 0x00,
	0x20, 0x00, 0x10, 0x00, 0xa7, 0x21, 0x01,
	0x20, 0x00, 0x28, 0x02, 0x00, 0x21, 0x02,
	0x20, 0x01, 0x20, 0x02, 0x10, 0x01, 0x0b,
}

// trapGuestWASM exports "f" as an unconditional trap, for exercising
// the dispatcher's trap-and-discard path.
var trapGuestWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x05, 0x01, 0x01, 0x66, 0x00, 0x00,
	0x0a, 0x05, 0x01, 0x03, 0x00, 0x00, 0x0b,
}

func newTestDispatcher(t *testing.T, files map[string][]byte) *Dispatcher {
	t.Helper()
	ctx := context.Background()

	logger, err := logging.New("console", -1, false)
	if err != nil {
		t.Fatalf("building logger: %v", err)
	}

	runtime := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = runtime.Close(ctx) })

	host, err := bindings.NewHost(ctx, runtime, logger, ipcclient.New())
	if err != nil {
		t.Fatalf("building host: %v", err)
	}
	t.Cleanup(func() { _ = host.Close(ctx) })

	dir := t.TempDir()
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(dir, name), contents, 0o644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}

	cache := wasmcache.New(runtime, logger)
	reg, err := registry.Build(ctx, dir, cache, host, registry.Options{CacheDir: filepath.Join(dir, "cache")}, logger)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { reg.Close(ctx) })

	return New(reg, host, logger, metrics.New())
}

func TestHandleRun_EchoesArgs(t *testing.T) {
	d := newTestDispatcher(t, map[string][]byte{"echo.wasm": echoGuestWASM})

	req := httptest.NewRequest(http.MethodPost, "/run/echo", strings.NewReader("hello"))
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("got body %q, want %q", rec.Body.String(), "hello")
	}
}

func TestHandleRun_InstanceReuse(t *testing.T) {
	d := newTestDispatcher(t, map[string][]byte{"echo.wasm": echoGuestWASM})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/run/echo", strings.NewReader("round"))
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != "round" {
			t.Fatalf("iteration %d: got (%d, %q)", i, rec.Code, rec.Body.String())
		}
	}

	fn, _ := d.reg.Get("echo")
	if got := fn.Pool.Len(); got != 1 {
		t.Fatalf("got %d idle echo instances after sequential calls, want 1 (one instance reused)", got)
	}
}

func TestHandleRun_UnknownFunction(t *testing.T) {
	d := newTestDispatcher(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/run/nope", strings.NewReader(""))
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", rec.Code)
	}
}

func TestHandleRun_TrapIsolatesInstance(t *testing.T) {
	d := newTestDispatcher(t, map[string][]byte{"boom.wasm": trapGuestWASM})

	req := httptest.NewRequest(http.MethodPost, "/run/boom", strings.NewReader(""))
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500 on trap", rec.Code)
	}

	// A second call must mint a fresh instance rather than reuse the
	// trapped one; it should still trap the same way, not hang or panic.
	req2 := httptest.NewRequest(http.MethodPost, "/run/boom", strings.NewReader(""))
	rec2 := httptest.NewRecorder()
	d.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500 on second trap", rec2.Code)
	}
}

func TestHandleStatus_AlwaysOK(t *testing.T) {
	d := newTestDispatcher(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}
