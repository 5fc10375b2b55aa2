package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: slog.LevelInfo}, &buf).WithComponent(ComponentReconcile)

	logger.Info("done", FieldCommitmentID, "c-1")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=reconcile") || !strings.Contains(out, "commitment_id=c-1") {
		t.Errorf("log output = %q", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Errorf("component logged more than once: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(NewWithWriter(Config{Level: slog.LevelDebug}, &buf))
	ctx := context.Background()

	sl.LogReconciled(ctx, "owner-1", "c-1", 2, 1)
	sl.LogError(ctx, "write failed", errors.New("disk full"), ComponentStorage, OpUpdate, nil)

	out := buf.String()
	for _, want := range []string{"level=WARN", "reassigned=2", "orphaned=1", "level=ERROR", `error="disk full"`, "component=storage"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %q", want, out)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var got *Logger
	h := Middleware(Default(ComponentApp))(
		RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
			ComponentMiddleware(ComponentHTTP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = FromContext(r.Context())
			}))))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("FromContext() = %+v, want http component logger", got)
	}
	if FromContext(context.Background()).Component() != "unknown" {
		t.Errorf("FromContext() without logger should fall back to the default")
	}
}
