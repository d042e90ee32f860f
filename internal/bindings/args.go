package bindings

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// instantiateArgsModule links the ol_args host module:
// get_args, set_result, get_unix_time, get_random_value.
func instantiateArgsModule(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64
	return r.NewHostModuleBuilder("ol_args").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(getArgs), []api.ValueType{i32}, []api.ValueType{i64}).
		WithParameterNames("len_out_ptr").
		Export("get_args").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(setResult), []api.ValueType{i32, i32}, []api.ValueType{}).
		WithParameterNames("buf_ptr", "buf_len").
		Export("set_result").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(getUnixTime), []api.ValueType{}, []api.ValueType{i64}).
		Export("get_unix_time").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(getRandomValue), []api.ValueType{i32, i32}, []api.ValueType{}).
		WithParameterNames("buf_ptr", "buf_len").
		Export("get_random_value").
		Instantiate(ctx)
}

// getArgs copies the instance's current args into a freshly allocated
// guest buffer, writing the length out-param and returning the
// buffer's offset. Empty args return 0/0, the documented sentinel.
func getArgs(ctx context.Context, mod api.Module, stack []uint64) {
	lenOutPtr := uint32(stack[0])

	b := bindingsFrom(ctx)
	if b == nil {
		panic(fmt.Errorf("get_args invoked outside a bound call"))
	}

	if len(b.Args) == 0 {
		requireWriteU64(mod.Memory(), lenOutPtr, 0)
		stack[0] = 0
		return
	}

	offset := writeBytes(ctx, mod, b.Args)
	requireWriteU64(mod.Memory(), lenOutPtr, uint64(len(b.Args)))
	stack[0] = uint64(offset)
}

// setResult copies buf_len bytes from guest memory into the
// instance's Result Handle. A second write is a guest contract
// violation and traps the instance.
func setResult(ctx context.Context, mod api.Module, stack []uint64) {
	bufPtr := uint32(stack[0])
	bufLen := uint32(stack[1])

	b := bindingsFrom(ctx)
	if b == nil {
		panic(fmt.Errorf("set_result invoked outside a bound call"))
	}

	buf := requireRead(mod.Memory(), "result buffer", bufPtr, bufLen)
	value := make([]byte, len(buf))
	copy(value, buf)

	if !b.ResultHandle.Set(value) {
		panic(fmt.Errorf("set_result called more than once on the same instance"))
	}
}

// getUnixTime returns host wall-clock seconds since the Unix epoch.
func getUnixTime(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(time.Now().Unix())
}

// getRandomValue fills the guest-side buffer with cryptographically
// seeded random bytes.
func getRandomValue(_ context.Context, mod api.Module, stack []uint64) {
	bufPtr := uint32(stack[0])
	bufLen := uint32(stack[1])

	if bufLen == 0 {
		return
	}

	randBytes := make([]byte, bufLen)
	if _, err := rand.Read(randBytes); err != nil {
		panic(fmt.Errorf("reading random bytes: %w", err))
	}
	if !mod.Memory().Write(bufPtr, randBytes) {
		panic(fmt.Errorf("out of bounds writing %d random bytes at offset=%d", bufLen, bufPtr))
	}
}
