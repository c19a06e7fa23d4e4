// Package inline processes ingestion events in-process when no broker is configured.
package inline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrClosed = errors.New("inline dispatcher closed")

// Dispatcher runs the subscribed handler on a background goroutine for every
// published document. Publishing before Subscribe buffers up to the queue size.
type Dispatcher struct {
	events  chan string
	timeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func New(queueSize int, handlerTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		events:  make(chan string, queueSize),
		timeout: handlerTimeout,
		done:    make(chan struct{}),
	}
}

// PublishDocumentIngested waits for buffer space until ctx ends or the
// dispatcher is closed.
func (d *Dispatcher) PublishDocumentIngested(ctx context.Context, documentID string) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	select {
	case d.events <- documentID:
		return nil
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubscribeDocumentIngested blocks until ctx is done or Close is called.
// Events still buffered at that point are dropped and counted in the log.
func (d *Dispatcher) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	for {
		select {
		case <-ctx.Done():
			d.logDropped("context_done")
			return nil
		case <-d.done:
			d.logDropped("closed")
			return nil
		case documentID := <-d.events:
			d.handle(ctx, handler, documentID)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, handler func(context.Context, string) error, documentID string) {
	var cancel context.CancelFunc
	handlerCtx := ctx
	if d.timeout > 0 {
		handlerCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := handler(handlerCtx, documentID); err != nil {
		slog.Error("document_processing_failed", "document_id", documentID, "error", err)
	}
}

func (d *Dispatcher) logDropped(reason string) {
	if n := len(d.events); n > 0 {
		slog.Warn("inline_events_dropped", "count", n, "reason", reason)
	}
}

func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}
