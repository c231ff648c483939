package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMirror publishes a limiter's (workers, qps) to Redis each time
// Publish is called, purely informational: gating itself always stays
// in-process per §5 ("Limiter counters: owned by limiter; mutation only
// through its methods"). The limiter does not call Publish itself, and the
// CLI does not construct a RedisMirror.
type RedisMirror struct {
	client   *redis.Client
	keyPrefix string
	logger   *zap.Logger
}

// NewRedisMirror builds a mirror against an already-constructed client.
func NewRedisMirror(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisMirror {
	return &RedisMirror{client: client, keyPrefix: keyPrefix, logger: logger.With(zap.String("component", "ratelimiter-mirror"))}
}

// Publish writes the provider's current limits to a Redis hash. Failures
// are logged and swallowed — this path is observability, never a gate.
func (m *RedisMirror) Publish(ctx context.Context, providerName string, workers int, qps float64) {
	if m == nil || m.client == nil {
		return
	}
	key := fmt.Sprintf("%s:%s", m.keyPrefix, providerName)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := m.client.HSet(ctx, key, map[string]interface{}{
		"workers":    workers,
		"qps":        qps,
		"updated_at": time.Now().Unix(),
	}).Err()
	if err != nil {
		m.logger.Debug("redis mirror publish failed", zap.Error(err))
	}
}
