package bindings

import (
	"context"

	"github.com/open-lambda/ol-wasm-worker/internal/instance"
)

type bindingsContextKey struct{}

// WithBindings attaches b to ctx so that any host binding invoked
// during a guest call driven with the returned context can recover
// the calling instance's per-instance state.
func WithBindings(ctx context.Context, b *instance.BindingsData) context.Context {
	return context.WithValue(ctx, bindingsContextKey{}, b)
}

// bindingsFrom recovers the BindingsData stashed by WithBindings. A
// nil return means a host binding was invoked outside of a properly
// set up guest call — a host-side bug, not a guest contract
// violation, so callers should panic loudly rather than silently no-op.
func bindingsFrom(ctx context.Context) *instance.BindingsData {
	b, _ := ctx.Value(bindingsContextKey{}).(*instance.BindingsData)
	return b
}
