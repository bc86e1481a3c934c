package redis

import (
	"testing"
	"time"

	"github.com/fd1az/crossarb/business/ledger/domain"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "crossarb:stats"},
		{"bot1:", "bot1:stats"},
		{" prod ", "prod:stats"},
	}
	for _, tt := range tests {
		if got := NewKeys(tt.prefix).Stats(); got != tt.want {
			t.Errorf("NewKeys(%q).Stats() = %q, want %q", tt.prefix, got, tt.want)
		}
	}

	k := NewKeys("x")
	if k.Paused() != "x:paused" || k.Config() != "x:config" || k.Lock("withdraw:BTC") != "x:lock:withdraw:BTC" {
		t.Errorf("unexpected keys: %s %s %s", k.Paused(), k.Config(), k.Lock("withdraw:BTC"))
	}
}

func TestStatsFieldsRoundTrip(t *testing.T) {
	in := domain.Stats{LastRun: time.Unix(1700000000, 0), Ticks: 42, Tracks: 3, Trades: 1}

	raw := map[string]string{}
	for k, v := range statsFields(in) {
		raw[k] = v.(string)
	}
	out, err := parseStats(raw)
	if err != nil {
		t.Fatalf("parseStats: %v", err)
	}
	if !out.LastRun.Equal(in.LastRun) || out.Ticks != 42 || out.Tracks != 3 || out.Trades != 1 || out.Paused {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestParseStats(t *testing.T) {
	st, err := parseStats(map[string]string{"paused": "1"})
	if err != nil || !st.Paused {
		t.Errorf("paused field: %+v %v", st, err)
	}
	if _, err := parseStats(map[string]string{"ticks": "many"}); err == nil {
		t.Error("expected error for bad counter")
	}
	st, err = parseStats(nil)
	if err != nil || !st.LastRun.IsZero() {
		t.Errorf("empty hash: %+v %v", st, err)
	}
}
