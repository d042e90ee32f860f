// Package instance defines the live activation of a compiled WASM
// module: its BindingsData (per-instance state threaded through every
// host call) and the single-assignment Result Handle that the guest's
// set_result binding writes into.
package instance

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// ResultHandle is a single-assignment cell holding an optional byte
// slice. Created per request, shared between the dispatcher (reader)
// and the guest-invoked set_result binding (writer). A second write is
// a guest contract violation.
type ResultHandle struct {
	mu      sync.Mutex
	written bool
	value   []byte
}

// NewResultHandle returns a fresh, unwritten handle.
func NewResultHandle() *ResultHandle {
	return &ResultHandle{}
}

// Set stores value exactly once. Returns false if the handle was
// already written — the caller must treat that as a contract
// violation and trap the instance.
func (h *ResultHandle) Set(value []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.written {
		return false
	}
	h.written = true
	h.value = value
	return true
}

// Get returns the written value, or (nil, false) if set_result was
// never called — the dispatcher treats that as an empty body.
func (h *ResultHandle) Get() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.written
}

// BindingsData is the per-instance state threaded through every host
// call: the current invocation's arguments, the result handle it must
// write to, the function's immutable configuration map, and the IPC
// endpoint used for self-targeted function calls.
type BindingsData struct {
	Args         []byte
	ResultHandle *ResultHandle
	ConfigValues map[string]string // shared across instances of the same function
	IPCEndpoint  string            // shared across instances of the same function
}

// Refit replaces the per-request fields (Args, ResultHandle) ahead of
// reusing a warm instance. ConfigValues and IPCEndpoint are immutable
// for the function's lifetime and are never touched here.
func (b *BindingsData) Refit(args []byte, result *ResultHandle) {
	b.Args = args
	b.ResultHandle = result
}

// Instance is a live activation of a module with its own linear
// memory and its own BindingsData. Mutable during a call, quiescent
// between calls.
type Instance struct {
	ID       uint64
	Module   api.Module
	Bindings *BindingsData
}

// EntryPoint returns the guest's conventionally-named entry function.
func (i *Instance) EntryPoint() api.Function {
	return i.Module.ExportedFunction("f")
}

// Allocator returns the guest's internal_alloc_buffer export.
func (i *Instance) Allocator() api.Function {
	return i.Module.ExportedFunction("internal_alloc_buffer")
}

// Close releases the instance's module (and its linear memory).
func (i *Instance) Close(ctx context.Context) error {
	return i.Module.Close(ctx)
}
