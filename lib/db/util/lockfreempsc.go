// Package util
//
// This file implements a lock-free Multi-Producer Single-Consumer (MPSC) queue.
// The registry uses it as the lifecycle event feed: any goroutine that mutates
// a world pushes events, and a single observer drains them from Recv().
//
// Guarantees:
//
//   - Lock-free writes: producers append with atomic compare-and-swap
//   - Unbounded: the queue grows as needed, two pointers per element
//   - Single consumer: one goroutine forwards elements to the Recv() channel
//   - Per-producer FIFO: elements pushed by one goroutine arrive in push
//     order; elements of concurrent producers interleave in completion order
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element in the queue
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFreeMPSC is a lock-free multi-producer single-consumer queue backed by
// a linked list with a sentinel head.
type LockFreeMPSC[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan T
	consumer sync.WaitGroup
	closed   atomic.Bool
	pending  atomic.Int64
	inflight atomic.Int64 // producers between the closed check and linking their node

	// wakes the consumer when it is parked on an empty list
	mu   sync.Mutex
	cond *sync.Cond
}

// NewLockFreeMPSC creates a queue and starts its forwarding goroutine
func NewLockFreeMPSC[T any]() *LockFreeMPSC[T] {
	sentinel := &node[T]{}

	q := &LockFreeMPSC[T]{
		out: make(chan T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push appends value to the queue.
// Returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *LockFreeMPSC[T]) Push(value T) bool {
	q.inflight.Add(1)
	defer q.inflight.Add(-1)
	if q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// a failed CAS means another producer already advanced the tail
				q.tail.CompareAndSwap(tailNode, newNode)
				q.pending.Add(1)
				q.wake()
				return true
			}
		} else {
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin briefly at low contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the consumer under the mutex so the signal cannot slip in
// between its emptiness check and its Wait.
func (q *LockFreeMPSC[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume forwards elements to the output channel until the queue is closed
// and empty.
func (q *LockFreeMPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	var zero T
	for {
		head := q.head.Load()
		next := head.next.Load()

		if next != nil {
			value := next.value
			q.head.Store(next)
			q.out <- value
			q.pending.Add(-1)
			next.value = zero
			continue
		}

		if q.closed.Load() {
			// a producer that passed the closed check may still be linking
			if q.inflight.Load() > 0 {
				runtime.Gosched()
				continue
			}
			if q.head.Load().next.Load() == nil {
				return
			}
			continue
		}

		q.mu.Lock()
		if q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}

// Recv returns the channel the consumer reads from. It is closed once the
// queue is closed and every pushed element has been delivered.
func (q *LockFreeMPSC[T]) Recv() <-chan T {
	return q.out
}

// Close prevents further pushes. Every element a Push accepted is still
// delivered. The consumer goroutine only exits once the channel returned by
// Recv has been drained.
func (q *LockFreeMPSC[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// IsClosed reports whether Close was called
func (q *LockFreeMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of pushed elements not yet received
func (q *LockFreeMPSC[T]) Len() int {
	return int(q.pending.Load())
}
