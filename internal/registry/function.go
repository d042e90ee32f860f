// Package registry implements the Function Registry: a read-only,
// startup-built map from function name to a Function record pairing a
// compiled Module with its own Instance Pool.
package registry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"

	"github.com/open-lambda/ol-wasm-worker/internal/bindings"
	"github.com/open-lambda/ol-wasm-worker/internal/instance"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
	"github.com/open-lambda/ol-wasm-worker/internal/pool"
)

// Function pairs a compiled Module with the per-function Instance
// Pool and the state every minted instance of it shares.
type Function struct {
	Name     string
	compiled wazero.CompiledModule

	host         *bindings.Host
	configValues map[string]string
	ipcEndpoint  string
	nextID       atomic.Uint64

	Pool *pool.Pool
}

// newFunction wraps compiled under name, wiring a Pool whose MintFunc
// links a fresh instance against host and seeds it with the
// function's shared config/endpoint.
func newFunction(name string, compiled wazero.CompiledModule, host *bindings.Host, configValues map[string]string, ipcEndpoint string, maxIdle int, logger *logging.ColoredLogger) *Function {
	fn := &Function{
		Name:         name,
		compiled:     compiled,
		host:         host,
		configValues: configValues,
		ipcEndpoint:  ipcEndpoint,
	}
	fn.Pool = pool.New(maxIdle, fn.mint, logger)
	return fn
}

func (fn *Function) mint(ctx context.Context, args []byte, result *instance.ResultHandle) (*instance.Instance, error) {
	id := fn.nextID.Add(1)
	inst, err := fn.host.Mint(ctx, fn.compiled, id, args, result, fn.configValues, fn.ipcEndpoint)
	if err != nil {
		return nil, fmt.Errorf("minting instance of %q: %w", fn.Name, err)
	}
	return inst, nil
}

// Close releases the function's compiled module and drains its pool.
// Call only at process shutdown.
func (fn *Function) Close(ctx context.Context) error {
	fn.Pool.Close(ctx)
	return fn.compiled.Close(ctx)
}
