package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func newJSONLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   NewHandler(buf, "json", slog.LevelDebug),
	})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerAddsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, ComponentApp).WithComponent(ComponentIngest)

	l.Info("hello", FieldUserID, 7)

	if strings.Count(buf.String(), `"component"`) != 1 {
		t.Fatalf("component should appear once: %s", buf.String())
	}
	lines := decodeLines(t, &buf)
	if lines[0][FieldComponent] != ComponentIngest || lines[0][FieldUserID] != float64(7) {
		t.Errorf("unexpected record: %v", lines[0])
	}
}

func TestNewHandlerText(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: "x", Handler: NewHandler(&buf, "text", slog.LevelWarn)})
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "msg=kept") {
		t.Fatalf("unexpected text output: %q", buf.String())
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newJSONLogger(&buf, ComponentApp))
	ctx := context.Background()

	sl.LogFileIngested(ctx, 42, "sept.xlsx", "added", 10, 9, 3)
	sl.LogError(ctx, "boom", errors.New("bad"), ComponentStorage, OpAppend, nil)

	r := httptest.NewRequest(http.MethodGet, "/users/42/stats", nil)
	sl.LogHTTPEnd(ctx, r, http.StatusNotFound, 12, "10.0.0.1")

	lines := decodeLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0][FieldSourceFile] != "sept.xlsx" || lines[0][FieldOutcome] != "added" || lines[0][FieldComponent] != ComponentIngest {
		t.Errorf("unexpected ingest line: %v", lines[0])
	}
	if lines[1][FieldError] != "bad" || lines[1]["level"] != "ERROR" {
		t.Errorf("unexpected error line: %v", lines[1])
	}
	if lines[2]["level"] != "WARN" || lines[2][FieldStatusCode] != float64(404) {
		t.Errorf("unexpected http line: %v", lines[2])
	}
}

func TestMiddlewareCarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	base := newJSONLogger(&buf, ComponentHTTP)

	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0][FieldRequestID] != "req-1" {
		t.Fatalf("request id not propagated: %v", lines)
	}

	if FromContext(context.Background()).Component() != "unknown" {
		t.Errorf("fallback logger should report the unknown component")
	}
}
