package bindings

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/open-lambda/ol-wasm-worker/internal/callresult"
)

// instantiateConfigModule links the ol_config host module:
// get_config_value.
func instantiateConfigModule(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64
	return r.NewHostModuleBuilder("ol_config").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(getConfigValue), []api.ValueType{i32, i32, i32}, []api.ValueType{i64}).
		WithParameterNames("key_ptr", "key_len", "len_out_ptr").
		Export("get_config_value").
		Instantiate(ctx)
}

// getConfigValue looks key up in the instance's immutable config map,
// encodes a Call Result, and copies it into a freshly allocated guest
// buffer.
func getConfigValue(ctx context.Context, mod api.Module, stack []uint64) {
	keyPtr := uint32(stack[0])
	keyLen := uint32(stack[1])
	lenOutPtr := uint32(stack[2])

	b := bindingsFrom(ctx)
	if b == nil {
		panic(fmt.Errorf("get_config_value invoked outside a bound call"))
	}

	key := requireReadString(mod.Memory(), "config key", keyPtr, keyLen)

	var result callresult.CallResult
	if value, ok := b.ConfigValues[key]; ok {
		result = callresult.Success([]byte(value))
	} else {
		result = callresult.Failuref("no config value for key %q", key)
	}

	writeCallResult(ctx, mod, lenOutPtr, result, stack)
}

// writeCallResult serializes r, copies it into a guest-allocated
// buffer, writes its length through lenOutPtr, and places the buffer's
// offset into the function's single i64 return slot (stack[0]).
func writeCallResult(ctx context.Context, mod api.Module, lenOutPtr uint32, r callresult.CallResult, stack []uint64) {
	encoded, err := callresult.Encode(r)
	if err != nil {
		panic(fmt.Errorf("encoding call result: %w", err))
	}

	offset := writeBytes(ctx, mod, encoded)
	requireWriteU64(mod.Memory(), lenOutPtr, uint64(len(encoded)))
	stack[0] = uint64(offset)
}
