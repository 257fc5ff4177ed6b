// Package transport provides the bounded, single-goroutine fan-in queue
// used by every outbound direction in the bridge: the engine's
// device-bound serial writer, and each subscribed topic's device-bound
// queue, both owned by the link engine.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// AsyncTx is a reusable asynchronous transmitter that funnels sends
// through a single goroutine. Send is non-blocking: if the internal
// buffer is full, it invokes the configured OnDrop hook and returns its
// error (usually an overflow sentinel) instead of blocking the producer
// behind a slow or wedged consumer.
//
// Life-cycle:
//
//	a := NewAsyncTx[T](ctx, buf, sendFn, hooks)
//	a.Send(item)
//	a.Close()
//
// After Close returns no more items will be processed. Callers should not
// send after Close.
//
// Grounded on internal/transport.AsyncTx (can.Frame-specific in the
// teacher), generalized with a type parameter so the same primitive backs
// both the serial write path (T = []byte, already-encoded frames) and a
// per-topic subscriber queue (T = []byte, raw payloads).
type AsyncTx[T any] struct {
	mu     sync.Mutex
	ch     chan T
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(T) error
	hooks  Hooks
	closed atomic.Bool
}

// Hooks customize AsyncTx behavior.
type Hooks struct {
	// OnError is called when send returns a non-nil error (item not delivered).
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func()
	// OnDrop is called when the buffer is full; its returned error is
	// returned from Send. If nil, the overflow is silent.
	OnDrop func() error
}

// NewAsyncTx constructs an AsyncTx with a buffered channel of size buf.
func NewAsyncTx[T any](parent context.Context, buf int, send func(T) error, hooks Hooks) *AsyncTx[T] {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx[T]{
		ch:     make(chan T, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx[T]) loop() {
	defer a.wg.Done()
	for {
		select {
		case item, ok := <-a.ch:
			if !ok {
				return
			}
			if err := a.send(item); err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter()
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// ErrAsyncTxClosed is returned by Send once the transmitter has been closed.
var ErrAsyncTxClosed = errors.New("transport: async tx closed")

// Send queues an item for asynchronous transmission, or returns the drop
// error (if any) when the buffer is full.
func (a *AsyncTx[T]) Send(item T) error {
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- item:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Depth reports the number of items currently queued.
func (a *AsyncTx[T]) Depth() int { return len(a.ch) }

// Close stops the worker and waits for an in-progress send to finish.
// Items still queued when Close is called may be discarded unsent.
func (a *AsyncTx[T]) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
