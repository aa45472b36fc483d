package pkg

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	orig := GetLogLevel()
	defer SetLogLevel(orig)

	SetLogLevel(slog.LevelDebug)
	if got := GetLogLevel(); got != slog.LevelDebug {
		t.Errorf("GetLogLevel() = %v, want %v", got, slog.LevelDebug)
	}
}

func TestLogIncludesComponent(t *testing.T) {
	orig := DefaultLogger
	defer SetLogger(orig)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogInfo(ComponentPort, "port opened", "rxSize", 512)

	out := buf.String()
	if !strings.Contains(out, "component=port") {
		t.Errorf("log output missing component attribute: %q", out)
	}
	if !strings.Contains(out, "rxSize=512") {
		t.Errorf("log output missing caller attribute: %q", out)
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger.Info("hello")

	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("JSON logger output unexpected: %q", buf.String())
	}
}
