// Package dispatcher implements the worker's HTTP front end:
// POST /run/{name} and GET /status, wired with chi.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-lambda/ol-wasm-worker/internal/bindings"
	ourerrors "github.com/open-lambda/ol-wasm-worker/internal/errors"
	"github.com/open-lambda/ol-wasm-worker/internal/instance"
	"github.com/open-lambda/ol-wasm-worker/internal/logging"
	"github.com/open-lambda/ol-wasm-worker/internal/metrics"
	"github.com/open-lambda/ol-wasm-worker/internal/registry"
)

// Dispatcher owns the HTTP router that fronts the worker.
type Dispatcher struct {
	reg     *registry.Registry
	host    *bindings.Host
	logger  *logging.ComponentLogger
	metrics *metrics.Metrics
	router  chi.Router
}

// New builds a Dispatcher with its routes mounted.
func New(reg *registry.Registry, host *bindings.Host, logger *logging.ColoredLogger, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		reg:     reg,
		host:    host,
		logger:  logger.For(logging.ComponentDispatcher),
		metrics: m,
	}

	r := chi.NewRouter()
	r.Use(uuidRequestID)
	r.Use(middleware.Recoverer)
	r.Use(d.logRequest)
	r.Post("/run/{name}", d.handleRun)
	r.Get("/status", d.handleStatus)
	d.router = r

	return d
}

// ServeHTTP lets Dispatcher be used directly as an http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.router.ServeHTTP(w, r)
}

// uuidRequestID stamps each request with a UUID correlation id under
// chi's own request-id context key, so middleware.GetReqID and chi's
// structured logging integrations keep working, but the id itself is
// human-legible across worker restarts (chi's default is a
// process-local incrementing counter).
func uuidRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (d *Dispatcher) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		d.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// handleRun is POST /run/{name}: look up the function, on miss
// return 500; otherwise acquire an instance, install the request's
// args and a fresh Result Handle, drive the entry point, and respond
// with its output (or the trap message, on a trap).
func (d *Dispatcher) handleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	fn, ok := d.reg.Get(name)
	if !ok {
		d.metrics.RecordRequest(name, "not_found", 0)
		http.Error(w, fmt.Sprintf("no such function: %q", name), http.StatusInternalServerError)
		return
	}

	args, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("reading request body: %v", err), http.StatusBadRequest)
		return
	}

	start := time.Now()
	result := instance.NewResultHandle()

	inst, err := fn.Pool.Acquire(r.Context(), args, result)
	if err != nil {
		d.metrics.RecordRequest(name, "mint_error", time.Since(start))
		http.Error(w, fmt.Sprintf("minting instance: %v", err), http.StatusInternalServerError)
		return
	}

	callCtx := bindings.WithBindings(r.Context(), inst.Bindings)
	entry := inst.EntryPoint()
	if entry == nil {
		fn.Pool.Discard(r.Context(), inst)
		d.metrics.RecordRequest(name, "no_entry_point", time.Since(start))
		http.Error(w, fmt.Sprintf("function %q exports no entry point", name), http.StatusInternalServerError)
		return
	}

	_, callErr := entry.Call(callCtx)
	if callErr != nil {
		trapErr := ourerrors.NewTrapError(inst.ID, callErr.Error(), callErr)
		fn.Pool.Discard(r.Context(), inst)
		d.metrics.RecordRequest(name, "trap", time.Since(start))
		d.logger.Error("instance trapped", zap.String("name", name), zap.Uint64("instance_id", inst.ID), zap.Error(trapErr))
		http.Error(w, trapErr.Error(), http.StatusInternalServerError)
		return
	}

	fn.Pool.MarkIdle(r.Context(), inst)
	d.metrics.RecordRequest(name, "ok", time.Since(start))
	d.metrics.SetPoolIdle(name, fn.Pool.Len())

	body, _ := result.Get()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleStatus is GET /status: always 200, empty body.
func (d *Dispatcher) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
