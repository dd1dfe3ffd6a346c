package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
	"echowaves-backend/pkg/config"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/metrics"
)

// Store loads the rows a job refers to
type Store interface {
	GetMessage(ctx context.Context, messageID int64) (*domain.Message, error)
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
}

// MessagePublisher is implemented by *Publisher
type MessagePublisher interface {
	Publish(ctx context.Context, msg *domain.Message, conv *domain.Conversation) error
	PublishRetraction(ctx context.Context, messageID int64, conv *domain.Conversation) error
}

type jobKind int

const (
	jobCreated jobKind = iota
	jobHidden
)

type job struct {
	kind           jobKind
	messageID      int64
	conversationID int64
}

// Dispatcher hands committed messages to a pool of publish workers. Enqueue
// never blocks: when the queue is full the broadcast is dropped.
type Dispatcher struct {
	store     Store
	publisher MessagePublisher
	workers   int
	jobTTL    time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher sized from cfg
func NewDispatcher(store Store, publisher MessagePublisher, cfg config.BroadcastConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		workers:   workers,
		// loading rows plus the publish itself
		jobTTL: 2 * timeout,
		jobs:   make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	logger.Info("Broadcast dispatcher started", zap.Int("workers", d.workers), zap.Int("queue_size", cap(d.jobs)))
}

// Stop refuses new jobs and waits for queued ones until ctx expires, then
// aborts whatever is still in flight.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// Enqueue schedules a broadcast of a committed message
func (d *Dispatcher) Enqueue(messageID int64) bool {
	return d.enqueue(job{kind: jobCreated, messageID: messageID})
}

// EnqueueRetraction schedules a message_hidden event
func (d *Dispatcher) EnqueueRetraction(messageID, conversationID int64) bool {
	return d.enqueue(job{kind: jobHidden, messageID: messageID, conversationID: conversationID})
}

func (d *Dispatcher) enqueue(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.ChatBroadcastDroppedTotal.Inc()
		return false
	}
	select {
	case d.jobs <- j:
		metrics.ChatBroadcastQueueLength.Set(float64(len(d.jobs)))
		return true
	default:
		metrics.ChatBroadcastDroppedTotal.Inc()
		logger.Warn("Broadcast queue full, dropping message", zap.Int64("message_id", j.messageID))
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		metrics.ChatBroadcastQueueLength.Set(float64(len(d.jobs)))
		d.process(j)
	}
}

func (d *Dispatcher) process(j job) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ChatBroadcastPanicTotal.Inc()
			logger.Error("Panic in broadcast worker",
				zap.Int64("message_id", j.messageID),
				zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.jobTTL)
	defer cancel()

	var err error
	switch j.kind {
	case jobCreated:
		err = d.publishCreated(ctx, j.messageID)
	case jobHidden:
		err = d.publishHidden(ctx, j.messageID, j.conversationID)
	}
	if err != nil {
		logger.Warn("Broadcast failed",
			zap.Int64("message_id", j.messageID),
			zap.Error(err))
	}
}

func (d *Dispatcher) publishCreated(ctx context.Context, messageID int64) error {
	// reload so a message hidden after commit is not broadcast
	msg, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.ChatBroadcastSkippedTotal.WithLabelValues("missing").Inc()
			return nil
		}
		return err
	}
	if !msg.Published() {
		metrics.ChatBroadcastSkippedTotal.WithLabelValues("hidden").Inc()
		return nil
	}

	conv, err := d.store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	return d.publisher.Publish(ctx, msg, conv)
}

func (d *Dispatcher) publishHidden(ctx context.Context, messageID, conversationID int64) error {
	conv, err := d.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.ChatBroadcastSkippedTotal.WithLabelValues("missing").Inc()
			return nil
		}
		return err
	}
	return d.publisher.PublishRetraction(ctx, messageID, conv)
}
