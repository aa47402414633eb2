// Package notify delivers pipeline notifications out of band. Business
// operations enqueue after their transaction commits; workers deliver and
// log failures, which never reach the caller.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/domain/models"
)

// Notifier accepts notifications without blocking and without reporting
// delivery errors.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Sender performs the actual delivery of one notification.
type Sender interface {
	Send(ctx context.Context, n models.Notification) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n models.Notification) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, n models.Notification) error {
	return f(ctx, n)
}

// Dispatcher is a bounded in-process queue drained by worker goroutines.
type Dispatcher struct {
	queue       chan models.Notification
	sender      Sender
	workers     int
	sendTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
}

// NewDispatcher builds a dispatcher; call Start before notifications are sent.
func NewDispatcher(sender Sender, queueSize, workers int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		queue:       make(chan models.Notification, queueSize),
		sender:      sender,
		workers:     workers,
		sendTimeout: 15 * time.Second,
		logger:      logger,
		now:         time.Now,
	}
}

// Notify enqueues n. A full or stopped queue drops the notification with a
// warning. The request context is not propagated to delivery.
func (d *Dispatcher) Notify(_ context.Context, n models.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notification dropped: dispatcher stopped", zap.String("event", string(n.Event)), zap.String("recipient", n.Recipient))
		return
	}

	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification dropped: queue full", zap.String("event", string(n.Event)), zap.String("recipient", n.Recipient))
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.logger.Info("starting notification dispatcher", zap.Int("workers", d.workers), zap.Int("queue_size", cap(d.queue)))
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Stop closes the queue and waits for queued notifications to be delivered.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sender panicked", zap.String("event", string(n.Event)), zap.Any("panic", r))
		}
	}()

	if err := d.sender.Send(ctx, n); err != nil {
		d.logger.Error("failed to deliver notification",
			zap.String("event", string(n.Event)),
			zap.String("recipient", n.Recipient),
			zap.Error(err))
		return
	}
	d.logger.Debug("notification delivered", zap.String("event", string(n.Event)), zap.String("recipient", n.Recipient))
}

// LogSender records notifications in the log instead of delivering them.
// Used when no messaging channel is configured.
func LogSender(logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return SenderFunc(func(_ context.Context, n models.Notification) error {
		logger.Info("notification",
			zap.String("event", string(n.Event)),
			zap.String("recipient", n.Recipient),
			zap.String("payload", fmt.Sprint(n.Payload)))
		return nil
	})
}
