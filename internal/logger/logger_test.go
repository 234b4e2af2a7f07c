package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, "socialpay-sync", func(ctx context.Context) string { return "req-1" })

	log.Info(context.Background(), "state reconciled", "contract", "0xabc", "partial", false)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "state reconciled" {
		t.Errorf("msg = %v", rec["msg"])
	}
	if rec["service"] != "socialpay-sync" {
		t.Errorf("service = %v", rec["service"])
	}
	if rec["contract"] != "0xabc" {
		t.Errorf("contract = %v", rec["contract"])
	}
	if rec["correlation_id"] != "req-1" {
		t.Errorf("correlation_id = %v", rec["correlation_id"])
	}
	src, _ := rec["source"].(string)
	if !strings.HasPrefix(src, "logger/logger_test.go:") {
		t.Errorf("source = %q, want caller location", src)
	}
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "", nil)

	log.Debug(context.Background(), "debug")
	log.Info(context.Background(), "info")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	log.Warn(context.Background(), "warn")
	if !strings.Contains(buf.String(), `"msg":"warn"`) {
		t.Fatalf("expected warn record, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
