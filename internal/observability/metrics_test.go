package observability

import (
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFirstAudioLatency(time.Second)
	m.ObserveToolCall("take_photo", "ok", time.Millisecond)
	m.ObserveVoiceTransition("idle", "listening")
	m.SetActiveSessions(1)
	m.ObserveBargeIn()
}

func TestMetricsCountToolCalls(t *testing.T) {
	m := NewMetrics("test_obs_" + strconv.FormatInt(time.Now().UnixNano(), 10))
	m.ObserveToolCall("search_internet", "failed", 30*time.Millisecond)
	m.ObserveToolCall("search_internet", "failed", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("search_internet", "failed")); got != 2 {
		t.Fatalf("tool_calls_total = %v, want 2", got)
	}
	m.ObserveBargeIn()
	if got := testutil.ToFloat64(m.BargeIns); got != 1 {
		t.Fatalf("barge_ins_total = %v, want 1", got)
	}
}
