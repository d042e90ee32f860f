// Package logging wraps zap with component-tagged, optionally colored
// output, matching the structured-logging idiom used across the rest
// of this worker's ambient stack.
package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
	Gray    = "\033[90m"

	BrightRed    = "\033[91m"
	BrightGreen  = "\033[92m"
	BrightYellow = "\033[93m"
	BrightBlue   = "\033[94m"
	BrightCyan   = "\033[96m"
	BrightWhite  = "\033[97m"
)

// ColoredLogger wraps zap.Logger with component-tagged colored output.
type ColoredLogger struct {
	*zap.Logger
	enableColors bool
}

// Component identifies which worker subsystem emitted a log line.
type Component string

const (
	ComponentRegistry   Component = "REGISTRY"
	ComponentCache      Component = "CACHE"
	ComponentPool       Component = "POOL"
	ComponentBindings   Component = "BINDINGS"
	ComponentIPC        Component = "IPC"
	ComponentDispatcher Component = "DISPATCHER"
	ComponentLifecycle  Component = "LIFECYCLE"
)

func componentColor(c Component) string {
	switch c {
	case ComponentRegistry:
		return BrightBlue
	case ComponentCache:
		return BrightYellow
	case ComponentPool:
		return Green
	case ComponentBindings:
		return Magenta
	case ComponentIPC:
		return BrightCyan
	case ComponentDispatcher:
		return Blue
	case ComponentLifecycle:
		return Yellow
	default:
		return White
	}
}

func levelColor(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return Gray
	case zapcore.InfoLevel:
		return BrightWhite
	case zapcore.WarnLevel:
		return BrightYellow
	case zapcore.ErrorLevel:
		return BrightRed
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return Red
	default:
		return White
	}
}

func coloredConsoleEncoder(enableColors bool) zapcore.Encoder {
	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		timeStr := t.Format("2006-01-02T15:04:05.000Z0700")
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%s", Dim, timeStr, Reset))
		} else {
			enc.AppendString(timeStr)
		}
	}
	config.EncodeLevel = func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		levelStr := strings.ToUpper(level.String())
		if enableColors {
			enc.AppendString(fmt.Sprintf("%s%s%-5s%s", levelColor(level), Bold, levelStr, Reset))
		} else {
			enc.AppendString(fmt.Sprintf("%-5s", levelStr))
		}
	}
	return zapcore.NewConsoleEncoder(config)
}

// New builds a logger in either "console" (colored, human-oriented) or
// "json" format, at the given minimum level.
func New(format string, level zapcore.Level, enableColors bool) (*ColoredLogger, error) {
	var encoder zapcore.Encoder
	switch format {
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		enableColors = false
	default:
		encoder = coloredConsoleEncoder(enableColors)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &ColoredLogger{Logger: logger, enableColors: enableColors}, nil
}

func (l *ColoredLogger) tag(component Component, msg string) string {
	if l.enableColors {
		return fmt.Sprintf("%s[%s]%s %s", componentColor(component), component, Reset, msg)
	}
	return fmt.Sprintf("[%s] %s", component, msg)
}

func (l *ColoredLogger) ComponentInfo(component Component, msg string, fields ...zap.Field) {
	l.Info(l.tag(component, msg), fields...)
}

func (l *ColoredLogger) ComponentWarn(component Component, msg string, fields ...zap.Field) {
	l.Warn(l.tag(component, msg), fields...)
}

func (l *ColoredLogger) ComponentError(component Component, msg string, fields ...zap.Field) {
	l.Error(l.tag(component, msg), fields...)
}

func (l *ColoredLogger) ComponentDebug(component Component, msg string, fields ...zap.Field) {
	l.Debug(l.tag(component, msg), fields...)
}

// For returns a sub-logger tagged for a specific component, so callers
// don't have to pass the component on every call site.
func (l *ColoredLogger) For(component Component) *ComponentLogger {
	return &ComponentLogger{parent: l, component: component}
}

// ComponentLogger is a ColoredLogger bound to one fixed Component.
type ComponentLogger struct {
	parent    *ColoredLogger
	component Component
}

func (c *ComponentLogger) Info(msg string, fields ...zap.Field)  { c.parent.ComponentInfo(c.component, msg, fields...) }
func (c *ComponentLogger) Warn(msg string, fields ...zap.Field)  { c.parent.ComponentWarn(c.component, msg, fields...) }
func (c *ComponentLogger) Error(msg string, fields ...zap.Field) { c.parent.ComponentError(c.component, msg, fields...) }
func (c *ComponentLogger) Debug(msg string, fields ...zap.Field) { c.parent.ComponentDebug(c.component, msg, fields...) }
