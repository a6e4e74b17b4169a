package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trustline/internal/events/metrics"
)

const defaultBuffer = 1024

// Publisher hands lifecycle events to the background worker without ever
// blocking the caller. When the buffer is full the event is dropped and
// counted; domain operations must not stall on observability.
type Publisher struct {
	inbox   chan Event
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithBuffer sets the inbox capacity.
func WithBuffer(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan Event, n)
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// WithClock overrides the time source. Used in tests.
func WithClock(clock func() time.Time) PublisherOption {
	return func(p *Publisher) { p.clock = clock }
}

// NewPublisher constructs a Publisher.
func NewPublisher(opts ...PublisherOption) *Publisher {
	p := &Publisher{
		inbox: make(chan Event, defaultBuffer),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Inbox is the channel the Worker consumes from.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Emit enqueues an event, stamping its ID and timestamp. It never blocks.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.clock()
	}
	p.metrics.IncEmitted(string(event.Type))

	select {
	case p.inbox <- event:
	default:
		p.metrics.IncDropped()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "event buffer full, dropping event",
				"type", event.Type,
				"subject", event.Subject,
			)
		}
	}
}

// Close stops accepting events and lets the worker drain what remains.
func (p *Publisher) Close() {
	close(p.inbox)
}
