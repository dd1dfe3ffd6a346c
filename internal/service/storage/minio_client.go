package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"echowaves-backend/pkg/config"
	"echowaves-backend/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerHalfOpen
	CircuitBreakerOpen
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxFailures  int
	Timeout      time.Duration
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns default circuit breaker settings
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		Timeout:      10 * time.Second,
		ResetTimeout: 30 * time.Second,
	}
}

// bucketAPI is the subset of *minio.Client used here
type bucketAPI interface {
	ObjectPresigner
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// MinioClient wraps the MinIO client with a circuit breaker. Attachment URL
// resolution happens on the broadcast path, so a dead blob service must fail fast.
type MinioClient struct {
	client bucketAPI
	config *CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

// NewMinioClient creates a MinIO client from config
func NewMinioClient(cfg config.MinIOConfig) (*MinioClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return newMinioClient(client), nil
}

func newMinioClient(client bucketAPI) *MinioClient {
	return &MinioClient{
		client: client,
		config: DefaultCircuitBreakerConfig(),
		state:  CircuitBreakerClosed,
		now:    time.Now,
	}
}

// EnsureBucket creates the bucket when it does not exist yet
func (c *MinioClient) EnsureBucket(ctx context.Context, bucketName string) error {
	exists, err := c.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	logger.Info("Created attachment bucket", zap.String("bucket", bucketName))
	return nil
}

// PresignedGetObject signs a download URL through the circuit breaker
func (c *MinioClient) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	if !c.allow() {
		return nil, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	u, err := c.client.PresignedGetObject(callCtx, bucketName, objectName, expires, reqParams)
	if err != nil {
		c.onFailure(err)
		return nil, err
	}
	c.onSuccess()
	return u, nil
}

// allow reports whether a call may proceed, moving an open breaker to
// half-open once ResetTimeout has passed
func (c *MinioClient) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CircuitBreakerOpen {
		return true
	}
	if c.now().Sub(c.lastFailure) >= c.config.ResetTimeout {
		c.state = CircuitBreakerHalfOpen
		return true
	}
	return false
}

func (c *MinioClient) onSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures = 0
	c.state = CircuitBreakerClosed
	c.lastFailure = time.Time{}
}

func (c *MinioClient) onFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.lastFailure = c.now()
	logger.Warn("MinIO operation failed", zap.Error(err), zap.Int("failures", c.failures))

	if c.state == CircuitBreakerHalfOpen || c.failures >= c.config.MaxFailures {
		c.state = CircuitBreakerOpen
		logger.Warn("MinIO circuit breaker opened", zap.Int("failures", c.failures))
	}
}

// GetState returns the current circuit breaker state
func (c *MinioClient) GetState() CircuitBreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
