// Package ratelimiter implements the AdaptiveRateLimiter (C2), structured
// like the teacher's CircuitBreaker (internal/infrastructure/llm/circuit_breaker.go):
// one mutex-guarded state struct, outcome callbacks that may transition
// state, and a cooldown gate on how often transitions can happen. The
// numeric policy — profile tables, backoff/recovery factors, auto-recovery
// curve — is grounded on original_source/adaptive_rate_limiter.py.
package ratelimiter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/evalharness/evalharness/internal/domain/service"
	"go.uber.org/zap"
)

// Profile holds the §4.1 table of per-ProviderKind defaults.
type Profile struct {
	InitialWorkers  int
	InitialQPS      float64
	MinWorkers      int
	MaxWorkers      int
	MinQPS          float64
	MaxQPS          float64
	BackoffFactor   float64
	RecoveryFactor  float64
	StableThreshold int
}

// Profiles maps each ProviderKind to its §4.1 defaults.
var Profiles = map[service.ProviderKind]Profile{
	service.ProviderHighThroughput: {
		InitialWorkers: 80, InitialQPS: 150, MinWorkers: 1, MaxWorkers: 150,
		MinQPS: 1, MaxQPS: 300, BackoffFactor: 0.95, RecoveryFactor: 3.0, StableThreshold: 1,
	},
	service.ProviderModerate: {
		InitialWorkers: 5, InitialQPS: 10, MinWorkers: 1, MaxWorkers: 50,
		MinQPS: 1, MaxQPS: 100, BackoffFactor: 0.7, RecoveryFactor: 1.8, StableThreshold: 3,
	},
	service.ProviderConservative: {
		InitialWorkers: 5, InitialQPS: 10, MinWorkers: 1, MaxWorkers: 15,
		MinQPS: 1, MaxQPS: 25, BackoffFactor: 0.5, RecoveryFactor: 1.5, StableThreshold: 10,
	},
}

const (
	downscaleCooldown = 5 * time.Second
	upscaleCooldown    = 3 * time.Second
	autoRecoverWindow  = 30 * time.Second
	ringBufferSize     = 100
	maxAwaitStep       = 20 * time.Millisecond
)

// AdaptiveRateLimiter is C2's concrete implementation.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	profile  Profile
	kind     service.ProviderKind
	logger   *zap.Logger

	currentWorkers int
	currentQPS     float64

	consecutiveSuccesses int
	consecutiveThrottles int

	lastDownscaleAt time.Time
	lastUpscaleAt   time.Time
	lastThrottleAt  time.Time
	recoveryAttempts int

	lastRequestAt time.Time

	// ring buffer of outcome tags: true = success, false = throttle/error
	outcomes    [ringBufferSize]bool
	outcomeN    int // number of entries written so far, capped at ringBufferSize
	outcomeHead int

	totalSuccess   int64
	totalThrottles int64
	totalErrors    int64
}

// New builds a limiter for kind, applying profile defaults; overrides may
// be nil to accept every default.
func New(kind service.ProviderKind, overrides *Profile, logger *zap.Logger) *AdaptiveRateLimiter {
	profile, ok := Profiles[kind]
	if !ok {
		profile = Profiles[service.ProviderModerate]
		kind = service.ProviderModerate
	}
	if overrides != nil {
		profile = mergeOverrides(profile, *overrides)
	}
	return &AdaptiveRateLimiter{
		profile:        profile,
		kind:           kind,
		logger:         logger.With(zap.String("component", "ratelimiter"), zap.String("kind", string(kind))),
		currentWorkers: profile.InitialWorkers,
		currentQPS:     profile.InitialQPS,
	}
}

func mergeOverrides(base, override Profile) Profile {
	if override.InitialWorkers > 0 {
		base.InitialWorkers = override.InitialWorkers
	}
	if override.InitialQPS > 0 {
		base.InitialQPS = override.InitialQPS
	}
	if override.MinWorkers > 0 {
		base.MinWorkers = override.MinWorkers
	}
	if override.MaxWorkers > 0 {
		base.MaxWorkers = override.MaxWorkers
	}
	if override.MinQPS > 0 {
		base.MinQPS = override.MinQPS
	}
	if override.MaxQPS > 0 {
		base.MaxQPS = override.MaxQPS
	}
	if override.BackoffFactor > 0 {
		base.BackoffFactor = override.BackoffFactor
	}
	if override.RecoveryFactor > 0 {
		base.RecoveryFactor = override.RecoveryFactor
	}
	if override.StableThreshold > 0 {
		base.StableThreshold = override.StableThreshold
	}
	return base
}

var _ service.RateLimiter = (*AdaptiveRateLimiter)(nil)

// AwaitSlot blocks until the caller may issue one request, consuming its
// QPS budget (§4.1 QPS gate). The short-wait policy caps each sleep at
// 20ms so bursts of workers stay responsive to cancellation.
func (l *AdaptiveRateLimiter) AwaitSlot(ctx context.Context) {
	for {
		l.mu.Lock()
		qps := l.currentQPS
		if qps <= 0 {
			l.lastRequestAt = time.Now()
			l.mu.Unlock()
			return
		}
		now := time.Now()
		interval := time.Duration(float64(time.Second) / qps)
		elapsed := now.Sub(l.lastRequestAt)
		wait := interval - elapsed
		if wait <= 0 {
			l.lastRequestAt = now
			l.mu.Unlock()
			return
		}
		if wait > maxAwaitStep {
			wait = maxAwaitStep
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RecordSuccess implements §4.1's success branch: auto-recovery within the
// idle window takes priority over the stable-streak upscale check.
func (l *AdaptiveRateLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalSuccess++
	l.pushOutcome(true)
	l.consecutiveSuccesses++
	l.consecutiveThrottles = 0

	now := time.Now()
	if !l.lastThrottleAt.IsZero() && now.Sub(l.lastThrottleAt) > autoRecoverWindow && l.belowCaps() {
		l.autoRecover(now)
		return
	}

	reducedThreshold := l.profile.StableThreshold / 2
	if reducedThreshold < 3 {
		reducedThreshold = 3
	}
	if l.consecutiveSuccesses >= reducedThreshold && l.successRatio() >= 0.7 {
		l.tryUpscale(now)
	}
}

// RecordThrottle implements §4.1's throttle branch.
func (l *AdaptiveRateLimiter) RecordThrottle(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalThrottles++
	l.pushOutcome(false)
	l.consecutiveSuccesses = 0
	l.consecutiveThrottles++
	l.lastThrottleAt = time.Now()
	l.recoveryAttempts = 0
	l.slowDown()
}

// RecordError implements §4.1: non-throttle errors are counted but never
// trigger an adjustment.
func (l *AdaptiveRateLimiter) RecordError(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalErrors++
	l.pushOutcome(false)
}

func (l *AdaptiveRateLimiter) belowCaps() bool {
	return l.currentWorkers < l.profile.MaxWorkers || l.currentQPS < l.profile.MaxQPS
}

// autoRecover applies ×1.2 for the first two attempts after an idle
// throttle-free window, ×1.5 thereafter (§9 Open Question resolution).
func (l *AdaptiveRateLimiter) autoRecover(now time.Time) {
	if now.Sub(l.lastUpscaleAt) < upscaleCooldown {
		return
	}
	l.recoveryAttempts++
	factor := 1.2
	if l.recoveryAttempts > 2 {
		factor = 1.5
	}
	l.scaleUp(factor, now)
}

func (l *AdaptiveRateLimiter) tryUpscale(now time.Time) {
	if now.Sub(l.lastUpscaleAt) < upscaleCooldown {
		return
	}
	l.scaleUp(l.profile.RecoveryFactor, now)
}

func (l *AdaptiveRateLimiter) scaleUp(factor float64, now time.Time) {
	workers := int(float64(l.currentWorkers) * factor)
	if workers > l.profile.MaxWorkers {
		workers = l.profile.MaxWorkers
	}
	if workers < l.currentWorkers {
		workers = l.currentWorkers
	}
	qps := l.currentQPS * factor
	if qps > l.profile.MaxQPS {
		qps = l.profile.MaxQPS
	}
	l.currentWorkers = workers
	l.currentQPS = qps
	l.lastUpscaleAt = now
	l.logger.Debug("limiter upscaled",
		zap.Int("workers", l.currentWorkers), zap.Float64("qps", l.currentQPS), zap.Float64("factor", factor))
}

// slowDown applies the §4.1 throttle-factor ladder: 0.9 / 0.75 / 0.6 /
// backoff_factor by consecutive-throttle count, with a 5s cooldown and an
// Azure-style (high-throughput) override of a flat 0.95.
func (l *AdaptiveRateLimiter) slowDown() {
	now := time.Now()
	if now.Sub(l.lastDownscaleAt) < downscaleCooldown {
		return
	}

	var factor float64
	if l.kind == "high_throughput" {
		factor = 0.95
	} else {
		switch l.consecutiveThrottles {
		case 1:
			factor = 0.9
		case 2:
			factor = 0.75
		case 3:
			factor = 0.6
		default:
			factor = l.profile.BackoffFactor
		}
	}

	workers := int(float64(l.currentWorkers) * factor)
	if workers < l.profile.MinWorkers {
		workers = l.profile.MinWorkers
	}
	qps := l.currentQPS * factor
	if qps < l.profile.MinQPS {
		qps = l.profile.MinQPS
	}
	l.currentWorkers = workers
	l.currentQPS = qps
	l.lastDownscaleAt = now
	l.logger.Debug("limiter downscaled",
		zap.Int("workers", l.currentWorkers), zap.Float64("qps", l.currentQPS), zap.Float64("factor", factor))
}

// RetryDelay implements §4.1: fixed 0.1s for high-throughput, otherwise
// min(5, 0.2 * 1.2^consecutiveThrottles).
func (l *AdaptiveRateLimiter) RetryDelay() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.kind == service.ProviderHighThroughput {
		return 0.1
	}
	delay := 0.2
	for i := 0; i < l.consecutiveThrottles; i++ {
		delay *= 1.2
	}
	if delay > 5.0 {
		delay = 5.0
	}
	return delay
}

// ShouldRetry matches the throttle vocabulary and records the throttle as
// a side effect, per §4.1's contract.
func (l *AdaptiveRateLimiter) ShouldRetry(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, p := range []string{"rate limit", "429", "tpm/rpm", "too many requests", "throttle"} {
		if strings.Contains(lower, p) {
			l.RecordThrottle(errMsg)
			return true
		}
	}
	return false
}

// CurrentLimits returns the current (workers, qps) pair.
func (l *AdaptiveRateLimiter) CurrentLimits() (int, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentWorkers, l.currentQPS
}

// Stats returns observability counters: raw counts plus the success ratio
// over the trailing outcome ring buffer, as a float in [0, 1].
func (l *AdaptiveRateLimiter) Stats() service.RateLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return service.RateLimiterStats{
		CurrentWorkers: l.currentWorkers,
		CurrentQPS:     l.currentQPS,
		TotalSuccess:   l.totalSuccess,
		TotalThrottles: l.totalThrottles,
		TotalErrors:    l.totalErrors,
		SuccessRatio:   l.successRatio(),
	}
}

func (l *AdaptiveRateLimiter) pushOutcome(success bool) {
	l.outcomes[l.outcomeHead] = success
	l.outcomeHead = (l.outcomeHead + 1) % ringBufferSize
	if l.outcomeN < ringBufferSize {
		l.outcomeN++
	}
}

func (l *AdaptiveRateLimiter) successRatio() float64 {
	if l.outcomeN == 0 {
		return 1.0
	}
	hits := 0
	for i := 0; i < l.outcomeN; i++ {
		if l.outcomes[i] {
			hits++
		}
	}
	return float64(hits) / float64(l.outcomeN)
}
