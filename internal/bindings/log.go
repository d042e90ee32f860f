package bindings

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/open-lambda/ol-wasm-worker/internal/logging"
)

// instantiateLogModule links the ol_log host module:
// log_info, log_debug, log_error, log_fatal, all sharing the same
// (msg_ptr, msg_len) shape and differing only in severity.
func instantiateLogModule(ctx context.Context, r wazero.Runtime, logger *logging.ColoredLogger) (api.Module, error) {
	h := &logHost{logger: logger.For(logging.ComponentBindings)}
	i32 := api.ValueTypeI32

	builder := r.NewHostModuleBuilder("ol_log")
	for _, fn := range []struct {
		export string
		fn     func(context.Context, api.Module, []uint64)
	}{
		{"log_info", h.logInfo},
		{"log_debug", h.logDebug},
		{"log_error", h.logError},
		{"log_fatal", h.logFatal},
	} {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(fn.fn), []api.ValueType{i32, i32}, []api.ValueType{}).
			WithParameterNames("msg_ptr", "msg_len").
			Export(fn.export)
	}
	return builder.Instantiate(ctx)
}

type logHost struct {
	logger *logging.ComponentLogger
}

func (h *logHost) readMessage(mod api.Module, stack []uint64) string {
	ptr := uint32(stack[0])
	length := uint32(stack[1])
	return requireReadString(mod.Memory(), "log message", ptr, length)
}

func (h *logHost) logInfo(_ context.Context, mod api.Module, stack []uint64) {
	h.logger.Info(fmt.Sprintf("Program: %s", h.readMessage(mod, stack)))
}

func (h *logHost) logDebug(_ context.Context, mod api.Module, stack []uint64) {
	h.logger.Debug(fmt.Sprintf("Program: %s", h.readMessage(mod, stack)))
}

func (h *logHost) logError(_ context.Context, mod api.Module, stack []uint64) {
	h.logger.Error(fmt.Sprintf("Program: %s", h.readMessage(mod, stack)))
}

// logFatal is advisory only — it does not terminate the process or the
// instance. It logs at error severity.
func (h *logHost) logFatal(_ context.Context, mod api.Module, stack []uint64) {
	h.logger.Error(fmt.Sprintf("Program: %s", h.readMessage(mod, stack)))
}
