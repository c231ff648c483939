package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/evalharness/evalharness/internal/domain/service"
	"go.uber.org/zap"
)

func newTestLimiter(kind service.ProviderKind) *AdaptiveRateLimiter {
	return New(kind, nil, zap.NewNop())
}

func TestNew_SeedsProfileDefaults(t *testing.T) {
	l := newTestLimiter(service.ProviderConservative)
	workers, qps := l.CurrentLimits()
	if workers != 5 || qps != 10 {
		t.Fatalf("got workers=%d qps=%f, want 5/10", workers, qps)
	}
}

func TestRecordThrottle_DownscalesWithinBounds(t *testing.T) {
	l := newTestLimiter(service.ProviderModerate)
	l.RecordThrottle("rate limit exceeded")
	workers, qps := l.CurrentLimits()
	if workers >= 5 || qps >= 10 {
		t.Fatalf("expected downscale, got workers=%d qps=%f", workers, qps)
	}
	if workers < l.profile.MinWorkers || qps < l.profile.MinQPS {
		t.Fatalf("downscale broke bounds: workers=%d qps=%f", workers, qps)
	}
}

func TestRecordThrottle_CooldownBlocksSecondDownscaleImmediately(t *testing.T) {
	l := newTestLimiter(service.ProviderModerate)
	l.RecordThrottle("rate limit")
	w1, q1 := l.CurrentLimits()
	l.RecordThrottle("rate limit")
	w2, q2 := l.CurrentLimits()
	if w1 != w2 || q1 != q2 {
		t.Fatalf("expected cooldown to block second downscale, got (%d,%f) -> (%d,%f)", w1, q1, w2, q2)
	}
}

func TestRecordSuccess_UpscalesAfterStableStreakAndRatio(t *testing.T) {
	l := newTestLimiter(service.ProviderModerate)
	for i := 0; i < 10; i++ {
		l.RecordSuccess()
	}
	workers, qps := l.CurrentLimits()
	if workers <= 5 && qps <= 10 {
		t.Fatalf("expected upscale after stable streak, got workers=%d qps=%f", workers, qps)
	}
}

func TestShouldRetry_MatchesThrottleVocabulary(t *testing.T) {
	l := newTestLimiter(service.ProviderModerate)
	cases := []struct {
		msg  string
		want bool
	}{
		{"429 Too Many Requests", true},
		{"rate limit exceeded", true},
		{"invalid api key", false},
		{"connection reset by peer", false},
	}
	for _, c := range cases {
		if got := l.ShouldRetry(c.msg); got != c.want {
			t.Errorf("ShouldRetry(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func TestRetryDelay_HighThroughputIsFixed(t *testing.T) {
	l := newTestLimiter(service.ProviderHighThroughput)
	if got := l.RetryDelay(); got != 0.1 {
		t.Fatalf("got %f, want 0.1", got)
	}
}

func TestRetryDelay_MonotonicWithConsecutiveThrottles(t *testing.T) {
	l := newTestLimiter(service.ProviderConservative)
	d0 := l.RetryDelay()
	l.RecordThrottle("rate limit")
	d1 := l.RetryDelay()
	if d1 <= d0 {
		t.Fatalf("expected retry delay to grow after a throttle, got d0=%f d1=%f", d0, d1)
	}
}

func TestAwaitSlot_RespectsContextCancellation(t *testing.T) {
	l := newTestLimiter(service.ProviderConservative)
	l.currentQPS = 0.1 // force a long wait
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		l.AwaitSlot(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitSlot did not return after context cancellation")
	}
}

func TestStats_SuccessRatioReflectsRingBuffer(t *testing.T) {
	l := newTestLimiter(service.ProviderModerate)
	for i := 0; i < 5; i++ {
		l.RecordSuccess()
	}
	l.RecordThrottle("rate limit")
	stats := l.Stats()
	if stats.TotalSuccess != 5 || stats.TotalThrottles != 1 {
		t.Fatalf("got %+v", stats)
	}
	if stats.SuccessRatio <= 0 || stats.SuccessRatio >= 1 {
		t.Fatalf("expected a mixed success ratio, got %f", stats.SuccessRatio)
	}
}
