package bindings

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	ourerrors "github.com/open-lambda/ol-wasm-worker/internal/errors"
)

// requireRead borrows a region of guest memory, panicking (which
// wazero turns into a guest trap) if the offset/length is out of
// range. Callers must not retain the returned slice across a
// suspension point: the guest's memory may be relocated by growth.
func requireRead(mem api.Memory, field string, offset, length uint32) []byte {
	buf, ok := mem.Read(offset, length)
	if !ok {
		panic(fmt.Errorf("out of bounds reading %s (offset=%d len=%d)", field, offset, length))
	}
	return buf
}

// requireReadString is requireRead, decoded as UTF-8. Decode failure
// is fatal to the current call.
func requireReadString(mem api.Memory, field string, offset, length uint32) string {
	buf := requireRead(mem, field, offset, length)
	if !utf8.Valid(buf) {
		panic(fmt.Errorf("invalid UTF-8 in %s", field))
	}
	return string(buf)
}

// requireWriteU64 stores a little-endian u64 into guest memory,
// panicking on an out-of-range offset.
func requireWriteU64(mem api.Memory, offset uint32, v uint64) {
	if !mem.WriteUint64Le(offset, v) {
		panic(fmt.Errorf("out of bounds writing u64 at offset=%d", offset))
	}
}

// callAllocate calls back into the guest's internal_alloc_buffer
// export, the in-guest allocator invocation the ABI requires.
// Panics (trapping the instance) if the guest has no allocator
// export, the call errors, returns negative, or the returned region
// would run past the end of guest memory.
func callAllocate(ctx context.Context, mod api.Module, size uint32) uint32 {
	allocFn := mod.ExportedFunction("internal_alloc_buffer")
	if allocFn == nil {
		panic(ourerrors.ErrAllocationFailed)
	}

	results, err := allocFn.Call(ctx, uint64(size))
	if err != nil {
		panic(fmt.Errorf("internal_alloc_buffer trapped: %w", err))
	}
	if len(results) == 0 {
		panic(ourerrors.ErrAllocationFailed)
	}

	offset := int64(results[0])
	if offset < 0 {
		panic(ourerrors.ErrAllocationFailed)
	}

	memSize := uint64(mod.Memory().Size())
	if uint64(offset)+uint64(size) > memSize {
		panic(ourerrors.ErrAllocationFailed)
	}

	return uint32(offset)
}

// writeBytes copies data into guest memory at a freshly allocated
// buffer, returning its offset. Re-derives the memory view after the
// allocator call, since the guest may have grown memory in response.
func writeBytes(ctx context.Context, mod api.Module, data []byte) uint32 {
	offset := callAllocate(ctx, mod, uint32(len(data)))
	if len(data) == 0 {
		return offset
	}
	if !mod.Memory().Write(offset, data) {
		panic(fmt.Errorf("out of bounds writing %d bytes at offset=%d", len(data), offset))
	}
	return offset
}
