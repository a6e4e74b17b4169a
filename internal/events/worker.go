package events

import (
	"context"
	"log/slog"

	"trustline/internal/events/metrics"
)

// Sink receives events for delivery outside the process, e.g. Kafka.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
}

// Worker consumes events from the publisher's inbox, persists them to the
// log, and forwards them to external sinks. Sink failures are counted and
// logged, never retried here; the persisted log is the source of truth.
type Worker struct {
	store   Store
	sinks   []Sink
	inbox   <-chan Event
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the structured logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

// WithWorkerMetrics sets the metrics recorder.
func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithSinks attaches external delivery sinks.
func WithSinks(sinks ...Sink) WorkerOption {
	return func(w *Worker) { w.sinks = append(w.sinks, sinks...) }
}

// NewWorker constructs a Worker over the given store and inbox.
func NewWorker(store Store, inbox <-chan Event, opts ...WorkerOption) *Worker {
	w := &Worker{store: store, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes events until the context is cancelled or the inbox closes.
// On cancellation it drains whatever is already buffered before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.process(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	// Persist with a fresh context; the run context is already cancelled.
	ctx := context.Background()
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.process(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, event Event) {
	if err := w.store.Append(ctx, event); err != nil {
		if w.logger != nil {
			w.logger.ErrorContext(ctx, "event log append failed",
				"type", event.Type,
				"error", err,
			)
		}
	} else {
		w.metrics.IncPersisted()
	}

	for _, sink := range w.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			w.metrics.IncSinkFailure(sink.Name())
			if w.logger != nil {
				w.logger.WarnContext(ctx, "event sink delivery failed",
					"sink", sink.Name(),
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}
