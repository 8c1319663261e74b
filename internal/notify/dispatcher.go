// Package notify hands offline-recipient notifications to a message broker
// without blocking the sender.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"chathub/internal/logx"
	"chathub/internal/models"
	"chathub/internal/observability"
)

var (
	// ErrQueueFull is returned when the hand-off queue is saturated.
	ErrQueueFull = errors.New("notification queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("notification dispatcher closed")
)

const (
	DefaultQueueSize      = 1024
	DefaultWorkers        = 4
	DefaultPublishTimeout = 5 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

type Config struct {
	QueueSize      int
	Workers        int
	PublishTimeout time.Duration
	RoutingKey     string
}

// Dispatcher queues notifications in memory and publishes them from a fixed
// worker pool. Acceptance means queued, not delivered.
type Dispatcher struct {
	publisher  Publisher
	routingKey string
	timeout    time.Duration

	queue chan models.Notification
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(publisher Publisher, cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}

	d := &Dispatcher{
		publisher:  publisher,
		routingKey: cfg.RoutingKey,
		timeout:    cfg.PublishTimeout,
		queue:      make(chan models.Notification, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues n without waiting for the broker.
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- n:
		return nil
	default:
		observability.IncNotificationDropped()
		l := logx.Ctx(ctx)
		l.Warn().Str("receiver_id", n.ReceiverID).Str("message_id", n.MessageID).Msg("notification queue full")
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.publish(n)
	}
}

func (d *Dispatcher) publish(n models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	key := d.routingKey
	if key == "" {
		key = n.ReceiverID
	}
	if err := d.publisher.Publish(ctx, key, n); err != nil {
		l := logx.L()
		l.Error().Err(err).Str("receiver_id", n.ReceiverID).Str("message_id", n.MessageID).Msg("notification publish failed")
	}
}

// Close stops accepting notifications, drains the queue and closes the publisher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return d.publisher.Close()
}
