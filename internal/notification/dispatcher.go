package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cedar-wallet/cedar_wallet/internal/metrics"
)

const (
	defaultQueueSize = 1024
	deliveryTimeout  = 5 * time.Second
	drainTimeout     = 3 * time.Second
)

type namedNotifier struct {
	name string
	n    Notifier
}

// Dispatcher fans events out to notifiers from a background goroutine so
// publishing never waits on a downstream system.
type Dispatcher struct {
	queue     chan Event
	notifiers []namedNotifier
	logger    *slog.Logger
}

// NewDispatcher builds a dispatcher with a bounded queue.
func NewDispatcher(size int, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Dispatcher{queue: make(chan Event, size), logger: logger}
}

// Register adds a notifier. Call before Run.
func (d *Dispatcher) Register(name string, n Notifier) {
	d.notifiers = append(d.notifiers, namedNotifier{name: name, n: n})
}

// Publish enqueues event, dropping it when the queue is full.
func (d *Dispatcher) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case d.queue <- event:
	default:
		metrics.EventDropped()
		d.logger.Warn("event queue full, dropping event",
			slog.String("type", event.Type), slog.String("transaction_id", event.TransactionID))
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		case <-ctx.Done():
			d.drain()
			return nil
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-d.queue:
			d.deliver(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	for _, nn := range d.notifiers {
		sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
		err := nn.n.Send(sendCtx, event)
		cancel()
		if err != nil {
			metrics.EventSinkFailed(nn.name)
			d.logger.Error("event delivery failed",
				slog.String("notifier", nn.name),
				slog.String("type", event.Type),
				slog.String("transaction_id", event.TransactionID),
				slog.Any("error", err))
		}
	}
}
