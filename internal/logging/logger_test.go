package logging

import (
	"bufio"
	"io"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

// captureStdout redirects os.Stdout for the duration of fn, returning
// everything written to it. New() always logs to os.Stdout directly,
// so this is the only way to observe its output without a toolchain
// run to wire in a custom zapcore.WriteSyncer.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	original := os.Stdout
	os.Stdout = w

	fn()

	os.Stdout = original
	w.Close()

	var sb strings.Builder
	reader := bufio.NewReader(r)
	io.Copy(&sb, reader)
	return sb.String()
}

func TestNew_JSONFormatDisablesColors(t *testing.T) {
	out := captureStdout(t, func() {
		logger, err := New("json", zapcore.InfoLevel, true)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		logger.For(ComponentCache).Info("hello")
		_ = logger.Sync()
	})

	if strings.Contains(out, "\033[") {
		t.Fatalf("expected no ANSI escapes in JSON output, got %q", out)
	}
	if !strings.Contains(out, `"msg"`) {
		t.Fatalf("expected JSON-encoded output, got %q", out)
	}
	if !strings.Contains(out, "[CACHE]") {
		t.Fatalf("expected component tag in message, got %q", out)
	}
}

func TestNew_ConsoleFormatWithColorsTagsComponent(t *testing.T) {
	out := captureStdout(t, func() {
		logger, err := New("console", zapcore.InfoLevel, true)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		logger.For(ComponentPool).Warn("watch out")
		_ = logger.Sync()
	})

	if !strings.Contains(out, "POOL") {
		t.Fatalf("expected component name in output, got %q", out)
	}
	if !strings.Contains(out, "\033[") {
		t.Fatalf("expected ANSI escapes when colors are enabled, got %q", out)
	}
}

func TestNew_LevelFiltersBelowThreshold(t *testing.T) {
	out := captureStdout(t, func() {
		logger, err := New("json", zapcore.WarnLevel, false)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		sub := logger.For(ComponentDispatcher)
		sub.Debug("should not appear")
		sub.Info("should not appear either")
		sub.Warn("should appear")
		_ = logger.Sync()
	})

	if strings.Contains(out, "should not appear") {
		t.Fatalf("expected debug/info to be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("expected the warn-level line to appear, got %q", out)
	}
}
