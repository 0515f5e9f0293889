package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull means the buffer had no room; the message was dropped.
	ErrQueueFull = errors.New("notification queue full")
	// ErrDispatcherClosed means Emit was called after Close.
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Dispatcher decouples the purchase path from the broker.  Emit makes a
// single non-blocking enqueue attempt; a background worker publishes each
// message once and logs failures.
type Dispatcher struct {
	pub     Publisher
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan TicketPurchased
	done   chan struct{}
}

// NewDispatcher buffers up to size messages.  timeout bounds each publish.
func NewDispatcher(pub Publisher, size int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		pub:     pub,
		logger:  logger.Named("dispatcher"),
		timeout: timeout,
		ch:      make(chan TicketPurchased, size),
		done:    make(chan struct{}),
	}
}

// Emit hands msg to the worker without blocking.
func (d *Dispatcher) Emit(msg TicketPurchased) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the worker.  When ctx is cancelled the dispatcher stops
// accepting messages and publishes what is already buffered before the
// worker exits.  Close also drains the buffer.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				d.drain(context.WithoutCancel(ctx))
				return
			case msg, ok := <-d.ch:
				if !ok {
					return
				}
				d.publish(ctx, msg)
			}
		}
	}()
}

// drain rejects further Emits and publishes the buffered messages.
func (d *Dispatcher) drain(ctx context.Context) {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()
	n := 0
	for msg := range d.ch {
		d.publish(ctx, msg)
		n++
	}
	if n > 0 {
		d.logger.Info("notification buffer drained on shutdown", zap.Int("messages", n))
	}
}

func (d *Dispatcher) publish(ctx context.Context, msg TicketPurchased) {
	pctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.pub.Publish(pctx, msg); err != nil {
		d.logger.Warn("publish ticket notification failed",
			zap.Uint64("ticket_id", msg.TicketID),
			zap.Uint64("event_id", msg.EventID),
			zap.Error(err))
		return
	}
	d.logger.Debug("ticket notification published", zap.Uint64("ticket_id", msg.TicketID))
}

// Close stops accepting messages and waits for the worker to finish.
// Start must have been called.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()
	<-d.done
}
