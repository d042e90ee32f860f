// Package bindings implements the Host-Binding ABI: the four host
// modules a guest WASM function imports from — ol_args,
// ol_log, ol_config, ol_ipc — plus the memory-marshalling primitives
// and per-instance context plumbing they share.
//
// Host modules are instantiated once against the shared wazero
// runtime, not once per guest instance; the per-instance state they
// need (the current call's args, its Result Handle, the function's
// config map, its IPC endpoint) is threaded through context.Context
// via WithBindings/bindingsFrom rather than closed over per instance.
package bindings

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/open-lambda/ol-wasm-worker/internal/instance"
	"github.com/open-lambda/ol-wasm-worker/internal/ipcclient"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
)

// Host owns the four host modules shared by every guest instance
// compiled against one wazero.Runtime.
type Host struct {
	runtime wazero.Runtime
	logger  *logging.ComponentLogger
	ipc     *ipcclient.Client

	args   api.Module
	log    api.Module
	config api.Module
	ipcMod api.Module
}

// NewHost instantiates all four host modules against runtime. Call
// once per process (or per test); the returned Host is safe for
// concurrent use by every instance minted afterward.
func NewHost(ctx context.Context, runtime wazero.Runtime, logger *logging.ColoredLogger, ipc *ipcclient.Client) (*Host, error) {
	h := &Host{
		runtime: runtime,
		logger:  logger.For(logging.ComponentBindings),
		ipc:     ipc,
	}

	var err error
	if h.args, err = instantiateArgsModule(ctx, runtime); err != nil {
		return nil, fmt.Errorf("instantiating ol_args: %w", err)
	}
	if h.log, err = instantiateLogModule(ctx, runtime, logger); err != nil {
		return nil, fmt.Errorf("instantiating ol_log: %w", err)
	}
	if h.config, err = instantiateConfigModule(ctx, runtime); err != nil {
		return nil, fmt.Errorf("instantiating ol_config: %w", err)
	}
	if h.ipcMod, err = instantiateIPCModule(ctx, runtime, ipc); err != nil {
		return nil, fmt.Errorf("instantiating ol_ipc: %w", err)
	}

	return h, nil
}

// Close releases the four host modules. Call once at process
// shutdown, after every guest instance has already been closed.
func (h *Host) Close(ctx context.Context) error {
	for _, mod := range []api.Module{h.args, h.log, h.config, h.ipcMod} {
		if mod == nil {
			continue
		}
		if err := mod.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Mint instantiates compiled as a new guest Instance: a fresh module
// instance (which links against the Host's four host modules by
// import name resolution), a BindingsData seeded for this call, and —
// if the guest exports it — exactly one call to _initialize_instance.
// instanceID should be unique per minted instance for log correlation;
// callers typically draw it from an atomic counter.
func (h *Host) Mint(
	ctx context.Context,
	compiled wazero.CompiledModule,
	instanceID uint64,
	args []byte,
	result *instance.ResultHandle,
	configValues map[string]string,
	ipcEndpoint string,
) (*instance.Instance, error) {
	bindings := &instance.BindingsData{
		Args:         args,
		ResultHandle: result,
		ConfigValues: configValues,
		IPCEndpoint:  ipcEndpoint,
	}

	instCtx := WithBindings(ctx, bindings)

	cfg := wazero.NewModuleConfig().
		WithName(fmt.Sprintf("fn-%d", instanceID)).
		WithStartFunctions() // suppress the default _start invocation; this runtime drives entry points explicitly

	mod, err := h.runtime.InstantiateModule(instCtx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiating guest module: %w", err)
	}

	inst := &instance.Instance{ID: instanceID, Module: mod, Bindings: bindings}

	if initFn := mod.ExportedFunction("_initialize_instance"); initFn != nil {
		if _, err := initFn.Call(instCtx); err != nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("_initialize_instance trapped: %w", err)
		}
	}

	return inst, nil
}
