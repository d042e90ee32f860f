// Package pool implements the per-function Instance Pool: a bounded
// free-list of warm instances that can be cheaply refitted for a new
// request, with create-on-miss and discard-on-fail semantics.
package pool

import (
	"context"

	"github.com/open-lambda/ol-wasm-worker/internal/instance"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
)

// DefaultMaxIdleInstances is the free-list capacity used when a
// function's configuration doesn't set one explicitly.
const DefaultMaxIdleInstances = 100

// MintFunc creates a brand-new, fully initialized Instance: it links
// host-import bindings against the module's import list, builds a new
// BindingsData seeded with args/result/config/endpoint, and calls
// _initialize_instance exactly once if the module exports it. Minting
// is the slow path; frequent acquisition should be served from the
// free-list instead.
type MintFunc func(ctx context.Context, args []byte, result *instance.ResultHandle) (*instance.Instance, error)

// Pool is a bounded FIFO of idle instances for one function.
// Invariants: (I1) an instance in the pool has no in-flight call;
// (I2) an instance outside the pool is held by exactly one request;
// (I3) the pool never exceeds capacity — surplus returns are
// discarded, releasing the instance's memory.
type Pool struct {
	freelist chan *instance.Instance
	capacity int
	mint     MintFunc
	logger   *logging.ComponentLogger
}

// New builds a Pool with the given capacity and mint function.
func New(capacity int, mint MintFunc, logger *logging.ColoredLogger) *Pool {
	if capacity <= 0 {
		capacity = DefaultMaxIdleInstances
	}
	return &Pool{
		freelist: make(chan *instance.Instance, capacity),
		capacity: capacity,
		mint:     mint,
		logger:   logger.For(logging.ComponentPool),
	}
}

// Acquire never fails from the pool's own perspective: it either pops
// a warm instance and refits it, or mints a new one. A mint failure
// (e.g. a host-import linking error) is returned to the caller, who
// treats it as a per-request failure rather than a pool invariant
// violation.
func (p *Pool) Acquire(ctx context.Context, args []byte, result *instance.ResultHandle) (*instance.Instance, error) {
	select {
	case inst := <-p.freelist:
		inst.Bindings.Refit(args, result)
		return inst, nil
	default:
	}

	inst, err := p.mint(ctx, args, result)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// MarkIdle returns inst to the free-list if there is room, otherwise
// drops it (closing its module and releasing its memory).
func (p *Pool) MarkIdle(ctx context.Context, inst *instance.Instance) {
	select {
	case p.freelist <- inst:
	default:
		p.logger.Debug("free-list full, discarding returned instance")
		_ = inst.Close(ctx)
	}
}

// Discard drops inst unconditionally — used when the guest left the
// instance in an unknown state (a trap). Instance state after a trap
// is considered corrupt and must never reach the free-list.
func (p *Pool) Discard(ctx context.Context, inst *instance.Instance) {
	_ = inst.Close(ctx)
}

// Len reports the current free-list size, for observability.
func (p *Pool) Len() int {
	return len(p.freelist)
}

// Capacity reports the pool's configured capacity.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Close drains the free-list, closing every idle instance. Call only
// once no more requests will acquire from this pool (process
// shutdown).
func (p *Pool) Close(ctx context.Context) {
	for {
		select {
		case inst := <-p.freelist:
			_ = inst.Close(ctx)
		default:
			return
		}
	}
}
