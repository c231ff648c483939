package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestMonitor_CountersIncrementIndependently(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.IncTestTotal()
	m.IncTestTotal()
	m.IncTestFullSuccess()
	m.IncToolCallTotal()
	m.IncToolCallFailed()
	m.IncError()

	stats := m.GetStats()
	if stats["tests_total"].(uint64) != 2 {
		t.Fatalf("got tests_total=%v, want 2", stats["tests_total"])
	}
	if stats["tests_full_success"].(uint64) != 1 {
		t.Fatalf("got tests_full_success=%v, want 1", stats["tests_full_success"])
	}
	if stats["tool_calls_total"].(uint64) != 1 {
		t.Fatalf("got tool_calls_total=%v, want 1", stats["tool_calls_total"])
	}
	if stats["errors_total"].(uint64) != 1 {
		t.Fatalf("got errors_total=%v, want 1", stats["errors_total"])
	}
}

func TestMonitor_RecordTestLatencyFeedsAverage(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.RecordTestLatency(100 * time.Millisecond)
	m.RecordTestLatency(300 * time.Millisecond)

	stats := m.GetStats()
	avg := stats["avg_latency_ms"].(float64)
	if avg < 199 || avg > 201 {
		t.Fatalf("got avg_latency_ms=%v, want ~200", avg)
	}
}

func TestMonitor_SnapshotHistoryIsBoundedByLimit(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.historyLimit = 3
	for i := 0; i < 5; i++ {
		m.Snapshot()
	}
	if got := len(m.GetHistory()); got != 3 {
		t.Fatalf("got %d history entries, want bounded to 3", got)
	}
}

func TestMonitor_GetDashboardDataCombinesStatsAndHistory(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.IncTestTotal()
	m.Snapshot()

	data := m.GetDashboardData()
	if data.Stats["tests_total"].(uint64) != 1 {
		t.Fatalf("expected dashboard stats to reflect counters")
	}
	if len(data.History) != 1 {
		t.Fatalf("got %d history entries, want 1", len(data.History))
	}
}

func TestPrometheusHandler_ServesCounterLines(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.IncTestTotal()
	m.IncTestTotal()
	m.IncTestFullSuccess()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m.PrometheusHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "evalharness_tests_total 2") {
		t.Fatalf("expected evalharness_tests_total counter line in output:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE evalharness_tests_total counter") {
		t.Fatalf("expected a TYPE line for evalharness_tests_total:\n%s", body)
	}
	if !strings.Contains(body, "evalharness_tests_full_success_total 1") {
		t.Fatalf("expected evalharness_tests_full_success_total counter line:\n%s", body)
	}
}
