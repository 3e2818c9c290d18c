package mailer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-ohms-auth/app/observability/metrics"
)

var ErrQueueFull = errors.New("mail queue is full")
var ErrDispatcherClosed = errors.New("mail dispatcher is closed")

const sendTimeout = 30 * time.Second

var _ EmailNotifier = (*AsyncNotifier)(nil)

type job struct {
	ctx       context.Context
	recipient string
	subject   string
	body      string
}

// AsyncNotifier queues messages and delivers them from a fixed set of
// workers, so a slow relay never blocks a request. Delivery failures are
// logged and counted, never returned to the caller.
type AsyncNotifier struct {
	next   EmailNotifier
	logger *slog.Logger
	jobs   chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncNotifier(next EmailNotifier, workers, queue int, logger *slog.Logger) *AsyncNotifier {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = 64
	}
	n := &AsyncNotifier{
		next:   next,
		logger: logger,
		jobs:   make(chan job, queue),
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	return n
}

// Send enqueues the message. It only fails when the queue is full or the
// dispatcher has been closed.
func (n *AsyncNotifier) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrDispatcherClosed
	}

	select {
	case n.jobs <- job{ctx: context.WithoutCancel(ctx), recipient: recipient, subject: subject, body: htmlBody}:
		return nil
	default:
		n.logger.WarnContext(ctx, "Mail queue full, dropping message", slog.String("subject", subject))
		n.record(ctx, "dropped")
		return ErrQueueFull
	}
}

func (n *AsyncNotifier) worker() {
	defer n.wg.Done()
	for j := range n.jobs {
		ctx, cancel := context.WithTimeout(j.ctx, sendTimeout)
		err := n.next.Send(ctx, j.recipient, j.subject, j.body)
		cancel()
		if err != nil {
			n.logger.ErrorContext(j.ctx, "Mail delivery failed",
				slog.String("subject", j.subject),
				slog.Any("error", err),
			)
			n.record(j.ctx, "failed")
			continue
		}
		n.record(j.ctx, "sent")
	}
}

func (n *AsyncNotifier) record(ctx context.Context, outcome string) {
	metrics.Get().MailDeliveriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (n *AsyncNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.jobs)
	n.mu.Unlock()
	n.wg.Wait()
}
