package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"echowaves-backend/pkg/config"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/metrics"
)

// ErrRedisDegraded is returned by Safe* operations while Redis is unhealthy
var ErrRedisDegraded = errors.New("redis is in degraded mode")

var (
	redisDegradedMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_degraded_mode",
		Help: "Indicates if Redis is in degraded mode (1 = degraded, 0 = healthy)",
	})
	redisHealthCheckTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_health_check_total",
		Help: "Total number of Redis health checks",
	}, []string{"result"})
)

// RedisClient wraps Redis client with degraded mode support
type RedisClient struct {
	Client         *redis.Client
	metrics        *metrics.Metrics
	degradedMode   bool
	degradedModeMu sync.RWMutex
	healthCheckMu  sync.Mutex
}

// NewRedisDB creates a new Redis client from config with degraded mode support.
// m may be nil.
func NewRedisDB(cfg config.RedisConfig, m *metrics.Metrics) *RedisClient {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		DialTimeout:  cfg.Timeout,
	})

	return &RedisClient{
		Client:  client,
		metrics: m,
	}
}

// Close closes the Redis client connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// StartHealthCheck starts a background goroutine that periodically checks Redis health
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.HealthCheck(ctx); err != nil {
					logger.Warn("Redis health check failed", zap.Error(err))
				}
			}
		}
	}()
}

// IsDegraded returns true if Redis is in degraded mode
func (r *RedisClient) IsDegraded() bool {
	r.degradedModeMu.RLock()
	defer r.degradedModeMu.RUnlock()
	return r.degradedMode
}

// setDegradedState sets the degraded mode state and updates metrics
func (r *RedisClient) setDegradedState(degraded bool) {
	r.degradedModeMu.Lock()
	defer r.degradedModeMu.Unlock()

	if r.degradedMode == degraded {
		return
	}
	r.degradedMode = degraded
	if degraded {
		redisDegradedMode.Set(1)
		logger.Warn("Redis entered degraded mode")
	} else {
		redisDegradedMode.Set(0)
		logger.Info("Redis recovered from degraded mode")
	}
}

// HealthCheck performs a health check on Redis and updates degraded mode
// It uses a mutex to prevent concurrent health checks from overwhelming Redis
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.healthCheckMu.Lock()
	defer r.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		r.setDegradedState(true)
		redisHealthCheckTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.setDegradedState(false)
	redisHealthCheckTotal.WithLabelValues("success").Inc()
	return nil
}

// SafePublish performs a PUBLISH operation with degraded mode handling
func (r *RedisClient) SafePublish(ctx context.Context, channel string, message interface{}) error {
	if r.IsDegraded() {
		return fmt.Errorf("%w, publish skipped", ErrRedisDegraded)
	}
	start := time.Now()
	err := r.Client.Publish(ctx, channel, message).Err()
	if r.metrics != nil {
		r.metrics.RecordRedisCommand("publish", time.Since(start), err)
	}
	return err
}

// SafeSubscribe performs a SUBSCRIBE operation with degraded mode handling
func (r *RedisClient) SafeSubscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	if r.IsDegraded() {
		return nil, fmt.Errorf("%w, subscribe skipped", ErrRedisDegraded)
	}
	return r.Client.Subscribe(ctx, channels...), nil
}
