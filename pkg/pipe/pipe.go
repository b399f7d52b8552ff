// Package pipe implements an unbounded, ordered, single-producer/single-consumer
// queue with independently closable ends.
package pipe

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Send once either end is closed, and by receive
	// operations once the producer end is closed and the queue is drained.
	ErrClosed = errors.New("pipe: closed")

	// ErrTimeout is returned by RecvTimeout when nothing arrived in time.
	ErrTimeout = errors.New("pipe: receive timeout")
)

type queue[T any] struct {
	mx    sync.Mutex
	items []T

	notify chan struct{}
	txDone chan struct{}
	rxDone chan struct{}
	txOnce sync.Once
	rxOnce sync.Once
}

// Tx is the producer end of a pipe.
type Tx[T any] struct{ q *queue[T] }

// Rx is the consumer end of a pipe.
type Rx[T any] struct{ q *queue[T] }

// New constructs a pipe and returns both of its ends.
func New[T any]() (*Tx[T], *Rx[T]) {
	q := &queue[T]{
		notify: make(chan struct{}, 1),
		txDone: make(chan struct{}),
		rxDone: make(chan struct{}),
	}
	return &Tx[T]{q}, &Rx[T]{q}
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Send enqueues v. It never blocks.
func (tx *Tx[T]) Send(v T) error {
	q := tx.q
	if isDone(q.txDone) || isDone(q.rxDone) {
		return ErrClosed
	}

	q.mx.Lock()
	q.items = append(q.items, v)
	q.mx.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close marks the producer end as gone. Queued items stay readable.
func (tx *Tx[T]) Close() error {
	tx.q.txOnce.Do(func() { close(tx.q.txDone) })
	return nil
}

// Closed returns a channel that is closed once the consumer end is closed.
func (tx *Tx[T]) Closed() <-chan struct{} { return tx.q.rxDone }

// TryRecv dequeues the oldest item without blocking. ok is false when the
// queue is empty.
func (rx *Rx[T]) TryRecv() (v T, ok bool, err error) {
	q := rx.q
	if isDone(q.rxDone) {
		return v, false, ErrClosed
	}

	q.mx.Lock()
	if len(q.items) > 0 {
		v = q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mx.Unlock()
		return v, true, nil
	}
	q.mx.Unlock()

	if isDone(q.txDone) {
		// Send may have raced with Close.
		q.mx.Lock()
		empty := len(q.items) == 0
		q.mx.Unlock()
		if empty {
			return v, false, ErrClosed
		}
		return rx.TryRecv()
	}
	return v, false, nil
}

// RecvTimeout waits up to d for the next item.
func (rx *Rx[T]) RecvTimeout(d time.Duration) (T, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		v, ok, err := rx.TryRecv()
		if ok || err != nil {
			return v, err
		}

		select {
		case <-rx.q.notify:
		case <-rx.q.txDone:
		case <-rx.q.rxDone:
		case <-timer.C:
			var zero T
			return zero, ErrTimeout
		}
	}
}

// Ready returns a channel that receives a value after items were enqueued.
// It may fire spuriously.
func (rx *Rx[T]) Ready() <-chan struct{} { return rx.q.notify }

// Len returns the number of queued items.
func (rx *Rx[T]) Len() int {
	rx.q.mx.Lock()
	defer rx.q.mx.Unlock()
	return len(rx.q.items)
}

// Close marks the consumer end as gone. Further sends fail with ErrClosed.
func (rx *Rx[T]) Close() error {
	rx.q.rxOnce.Do(func() { close(rx.q.rxDone) })
	return nil
}

// Closed returns a channel that is closed once the producer end is closed.
func (rx *Rx[T]) Closed() <-chan struct{} { return rx.q.txDone }
