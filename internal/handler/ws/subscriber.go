package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"echowaves-backend/internal/database"
	"echowaves-backend/pkg/metrics"
)

// Subscriber opens a live feed of one broker channel
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers raw payloads until closed
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// RedisSubscriber subscribes through Redis pub/sub
type RedisSubscriber struct {
	client *database.RedisClient
}

// NewRedisSubscriber creates a subscriber on the shared Redis client
func NewRedisSubscriber(client *database.RedisClient) *RedisSubscriber {
	return &RedisSubscriber{client: client}
}

// Subscribe waits for Redis to confirm the subscription before returning
func (s *RedisSubscriber) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub, err := s.client.SafeSubscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go sub.pump()
	metrics.ChatRedisSubscriptionActive.Inc()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		metrics.ChatRedisSubscriptionActive.Dec()
		err = s.pubsub.Close()
	})
	return err
}
