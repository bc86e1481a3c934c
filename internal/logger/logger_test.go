package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "crossarb", nil)

	ctx := context.Background()
	log.Info(ctx, "ignored")
	log.Warn(ctx, "kept", "venue", "binance")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %s", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "kept" {
		t.Errorf("msg = %v, want kept", rec["msg"])
	}
	if rec["venue"] != "binance" {
		t.Errorf("venue = %v, want binance", rec["venue"])
	}
	if rec["service"] != "crossarb" {
		t.Errorf("service = %v, want crossarb", rec["service"])
	}
}

func TestLogger_EventsHook(t *testing.T) {
	var buf bytes.Buffer
	var got []Record
	log := New(&buf, LevelDebug, "crossarb", func(_ context.Context, r Record) {
		got = append(got, r)
	})

	log.Error(context.Background(), "boom", "count", 10)

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Level != LevelError {
		t.Errorf("level = %s, want %s", got[0].Level, LevelError)
	}
	if got[0].Attrs["count"] != int64(10) {
		t.Errorf("count attr = %v (%T), want 10", got[0].Attrs["count"], got[0].Attrs["count"])
	}
}

func TestShortFile(t *testing.T) {
	if got := shortFile("/root/module/business/arbitrage/app/loop.go", 42); got != "app/loop.go:42" {
		t.Errorf("shortFile = %s, want app/loop.go:42", got)
	}
}
