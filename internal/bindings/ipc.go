package bindings

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/open-lambda/ol-wasm-worker/internal/callresult"
	"github.com/open-lambda/ol-wasm-worker/internal/ipcclient"
)

// instantiateIPCModule links the ol_ipc host module:
// function_call, http_post, http_get. All three are suspending
// bindings: the blocking HTTP round-trip runs on the
// calling goroutine, which already owns the instance exclusively, so
// no extra suspension machinery is needed.
func instantiateIPCModule(ctx context.Context, r wazero.Runtime, client *ipcclient.Client) (api.Module, error) {
	h := &ipcHost{client: client}
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64

	return r.NewHostModuleBuilder("ol_ipc").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.functionCall), []api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i64}).
		WithParameterNames("name_ptr", "name_len", "args_ptr", "args_len", "len_out_ptr").
		Export("function_call").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.httpPost), []api.ValueType{i32, i32, i32, i32, i32, i32, i32}, []api.ValueType{i64}).
		WithParameterNames("addr_ptr", "addr_len", "path_ptr", "path_len", "body_ptr", "body_len", "len_out_ptr").
		Export("http_post").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(h.httpGet), []api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i64}).
		WithParameterNames("addr_ptr", "addr_len", "path_ptr", "path_len", "len_out_ptr").
		Export("http_get").
		Instantiate(ctx)
}

type ipcHost struct {
	client *ipcclient.Client
}

// functionCall performs an HTTP POST to http://<ipc_endpoint>/run/<name>
// with args as the body. The response body becomes Ok(bytes); a
// transport error becomes Err(message).
func (h *ipcHost) functionCall(ctx context.Context, mod api.Module, stack []uint64) {
	namePtr := uint32(stack[0])
	nameLen := uint32(stack[1])
	argsPtr := uint32(stack[2])
	argsLen := uint32(stack[3])
	lenOutPtr := uint32(stack[4])

	b := bindingsFrom(ctx)
	if b == nil {
		panic(fmt.Errorf("function_call invoked outside a bound call"))
	}

	mem := mod.Memory()
	name := requireReadString(mem, "function name", namePtr, nameLen)
	args := cloneBytes(requireRead(mem, "call args", argsPtr, argsLen))

	var result callresult.CallResult
	body, err := h.client.FunctionCall(ctx, b.IPCEndpoint, name, args)
	if err != nil {
		result = callresult.Failuref("function_call %q: %s", name, err)
	} else {
		result = callresult.Success(body)
	}

	writeCallResult(ctx, mod, lenOutPtr, result, stack)
}

// httpPost performs an arbitrary outbound HTTP POST. path must begin
// with "/" per the guest contract; a violation is
// reported as Err rather than a trap, since it is data the guest
// controls, not a host-side invariant.
func (h *ipcHost) httpPost(ctx context.Context, mod api.Module, stack []uint64) {
	addrPtr := uint32(stack[0])
	addrLen := uint32(stack[1])
	pathPtr := uint32(stack[2])
	pathLen := uint32(stack[3])
	bodyPtr := uint32(stack[4])
	bodyLen := uint32(stack[5])
	lenOutPtr := uint32(stack[6])

	mem := mod.Memory()
	addr := requireReadString(mem, "http_post addr", addrPtr, addrLen)
	path := requireReadString(mem, "http_post path", pathPtr, pathLen)
	body := cloneBytes(requireRead(mem, "http_post body", bodyPtr, bodyLen))

	var result callresult.CallResult
	if !hasLeadingSlash(path) {
		result = callresult.Failuref("http_post path %q must begin with /", path)
	} else if respBody, err := h.client.Post(ctx, addr, path, body); err != nil {
		result = callresult.Failuref("http_post %s%s: %s", addr, path, err)
	} else {
		result = callresult.Success(respBody)
	}

	writeCallResult(ctx, mod, lenOutPtr, result, stack)
}

// httpGet performs an arbitrary outbound HTTP GET.
func (h *ipcHost) httpGet(ctx context.Context, mod api.Module, stack []uint64) {
	addrPtr := uint32(stack[0])
	addrLen := uint32(stack[1])
	pathPtr := uint32(stack[2])
	pathLen := uint32(stack[3])
	lenOutPtr := uint32(stack[4])

	mem := mod.Memory()
	addr := requireReadString(mem, "http_get addr", addrPtr, addrLen)
	path := requireReadString(mem, "http_get path", pathPtr, pathLen)

	var result callresult.CallResult
	if !hasLeadingSlash(path) {
		result = callresult.Failuref("http_get path %q must begin with /", path)
	} else if respBody, err := h.client.Get(ctx, addr, path); err != nil {
		result = callresult.Failuref("http_get %s%s: %s", addr, path, err)
	} else {
		result = callresult.Success(respBody)
	}

	writeCallResult(ctx, mod, lenOutPtr, result, stack)
}

func hasLeadingSlash(path string) bool {
	return len(path) > 0 && path[0] == '/'
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
