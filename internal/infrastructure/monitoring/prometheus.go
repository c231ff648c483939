package monitoring

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// PrometheusHandler returns an http.Handler that serves Prometheus text format
// metrics without pulling in the full prometheus/client_golang dependency.
// Mount it at "/metrics" in the optional status server.
func (m *Monitor) PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(m.metrics.StartTime).Seconds()

		lines := []struct {
			name string
			help string
			typ  string
			val  interface{}
		}{
			{"evalharness_tests_total", "Total tests executed", "counter", atomic.LoadUint64(&m.metrics.TestsTotal)},
			{"evalharness_tests_full_success_total", "Tests classified as full success", "counter", atomic.LoadUint64(&m.metrics.TestsFullSuccess)},
			{"evalharness_tests_partial_total", "Tests classified as partial success", "counter", atomic.LoadUint64(&m.metrics.TestsPartial)},
			{"evalharness_tests_failure_total", "Tests classified as failure", "counter", atomic.LoadUint64(&m.metrics.TestsFailure)},

			{"evalharness_tool_calls_total", "Total simulated tool calls", "counter", atomic.LoadUint64(&m.metrics.ToolCallsTotal)},
			{"evalharness_tool_calls_success_total", "Successful simulated tool calls", "counter", atomic.LoadUint64(&m.metrics.ToolCallsSuccess)},
			{"evalharness_tool_calls_failed_total", "Failed simulated tool calls", "counter", atomic.LoadUint64(&m.metrics.ToolCallsFailed)},

			{"evalharness_model_calls_total", "Total LLM calls issued", "counter", atomic.LoadUint64(&m.metrics.ModelCallsTotal)},
			{"evalharness_model_calls_throttled_total", "LLM calls that hit a throttle response", "counter", atomic.LoadUint64(&m.metrics.ModelCallsThrottled)},
			{"evalharness_model_calls_retried_total", "LLM calls retried after a transient error", "counter", atomic.LoadUint64(&m.metrics.ModelCallsRetried)},

			{"evalharness_errors_total", "Total unclassified errors encountered", "counter", atomic.LoadUint64(&m.metrics.ErrorsTotal)},

			{"evalharness_active_workers", "Number of worker goroutines currently executing a test", "gauge", atomic.LoadInt64(&m.metrics.ActiveWorkers)},
			{"evalharness_uptime_seconds", "Process uptime in seconds", "gauge", uptime},

			{"evalharness_memory_alloc_bytes", "Current memory allocation in bytes", "gauge", memStats.Alloc},
			{"evalharness_memory_sys_bytes", "Total memory obtained from OS", "gauge", memStats.Sys},
			{"evalharness_goroutines", "Number of goroutines", "gauge", runtime.NumGoroutine()},
			{"evalharness_gc_pause_total_ns", "Total GC pause time in nanoseconds", "counter", memStats.PauseTotalNs},
			{"evalharness_gc_cycles_total", "Total number of completed GC cycles", "counter", memStats.NumGC},
		}

		for _, l := range lines {
			fmt.Fprintf(w, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", l.name, l.typ)
			switch v := l.val.(type) {
			case uint64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int64:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case int:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			case float64:
				fmt.Fprintf(w, "%s %f\n", l.name, v)
			case uint32:
				fmt.Fprintf(w, "%s %d\n", l.name, v)
			}
			fmt.Fprintln(w)
		}

		testCount := atomic.LoadUint64(&m.metrics.TestLatencyCount)
		if testCount > 0 {
			avgMs := float64(atomic.LoadUint64(&m.metrics.TestLatencySum)) / float64(testCount) / 1e6
			fmt.Fprintf(w, "# HELP evalharness_test_latency_avg_ms Average end-to-end test latency in milliseconds\n")
			fmt.Fprintf(w, "# TYPE evalharness_test_latency_avg_ms gauge\n")
			fmt.Fprintf(w, "evalharness_test_latency_avg_ms %f\n\n", avgMs)
		}
	})
}
