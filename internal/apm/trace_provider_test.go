package apm

import (
	"context"
	"io"
	"testing"

	"github.com/fd1az/crossarb/internal/logger"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders("x-honeycomb-team=abc, api-key = k ,broken,=nokey")

	if len(got) != 2 {
		t.Fatalf("expected 2 headers, got %d: %v", len(got), got)
	}
	if got["x-honeycomb-team"] != "abc" {
		t.Errorf("x-honeycomb-team = %q, want abc", got["x-honeycomb-team"])
	}
	if got["api-key"] != "k" {
		t.Errorf("api-key = %q, want k", got["api-key"])
	}
}

func TestNewTraceProvider_UnknownIsEmpty(t *testing.T) {
	tp, err := NewTraceProvider(context.Background(), Config{Provider: "jaeger"}, logger.New(io.Discard, logger.LevelError, "test", nil))
	if err != nil {
		t.Fatalf("NewTraceProvider: %v", err)
	}
	if _, ok := tp.(emptyProvider); !ok {
		t.Errorf("expected emptyProvider, got %T", tp)
	}
	if err := tp.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
