package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskmanager/task-api/internal/api/metrics"
	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

const (
	defaultWorkers = 2
	defaultBuffer  = 128
	sendTimeout    = 5 * time.Second
)

var _ ports.Notifier = (*Dispatcher)(nil)

// Dispatcher delivers notifications on a fixed pool of background workers.
// Notify never blocks the caller: when the queue is full the notification is
// dropped and logged.
type Dispatcher struct {
	queue   chan domain.Notification
	workers int
	sender  ports.MailSender
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Non-positive sizes fall back to defaults.
func NewDispatcher(workers, buffer int, sender ports.MailSender, log zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Dispatcher{
		queue:   make(chan domain.Notification, buffer),
		workers: workers,
		sender:  sender,
		log:     log,
	}
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(ctx, i)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Notify enqueues a notification. The request context is deliberately not
// carried over: delivery outlives the request that triggered it.
func (d *Dispatcher) Notify(_ context.Context, kind domain.NotificationKind, email, name string) {
	n := domain.Notification{Kind: kind, Email: email, Name: name}

	select {
	case d.queue <- n:
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
	default:
		metrics.NotificationsTotal.WithLabelValues(string(kind), "dropped").Inc()
		d.log.Warn().Str("kind", string(kind)).Msg("notification queue full, dropping")
	}
}

func (d *Dispatcher) runWorker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
			d.deliver(ctx, id, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, worker int, n domain.Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "failed").Inc()
		d.log.Error().Err(err).
			Str("kind", string(n.Kind)).
			Int("worker_id", worker).
			Msg("notification delivery failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "sent").Inc()
}
