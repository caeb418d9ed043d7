// Package deque provides the shared work queue a thread pool's workers steal
// from.
//
// Producers push at the back, workers steal from the front, so work is
// started in submission order. Steal never blocks; StealWait parks the caller
// until work arrives. Len is an atomic read so idle workers can poll it
// without taking the lock.
package deque

import (
	"sync"
	"sync/atomic"
)

const minCapacity = 16

// Deque is an unbounded multi-producer multi-consumer FIFO ring.
type Deque[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	buf   []T
	head  int
	count int
	size  atomic.Int64
}

// New creates an empty deque.
func New[T any]() *Deque[T] {
	d := &Deque[T]{buf: make([]T, minCapacity)}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Len returns the number of queued items without locking.
func (d *Deque[T]) Len() int {
	return int(d.size.Load())
}

// Push appends v at the back and wakes one parked stealer.
func (d *Deque[T]) Push(v T) {
	d.mu.Lock()
	d.pushLocked(v)
	d.mu.Unlock()
	d.cond.Signal()
}

// PushN appends n copies produced by fn under one lock hold and wakes every
// parked stealer.
func (d *Deque[T]) PushN(n int, fn func(i int) T) {
	if n <= 0 {
		return
	}
	d.mu.Lock()
	for i := range n {
		d.pushLocked(fn(i))
	}
	d.mu.Unlock()
	d.cond.Broadcast()
}

func (d *Deque[T]) pushLocked(v T) {
	if d.count == len(d.buf) {
		d.grow()
	}
	d.buf[(d.head+d.count)%len(d.buf)] = v
	d.count++
	d.size.Add(1)
}

func (d *Deque[T]) grow() {
	buf := make([]T, len(d.buf)*2)
	n := copy(buf, d.buf[d.head:])
	copy(buf[n:], d.buf[:d.head])
	d.buf = buf
	d.head = 0
}

// Steal removes the front item. ok is false when the deque is empty.
func (d *Deque[T]) Steal() (v T, ok bool) {
	if d.size.Load() == 0 {
		return v, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return v, false
	}
	return d.popLocked(), true
}

// StealWait removes the front item, blocking while the deque is empty.
func (d *Deque[T]) StealWait() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.count == 0 {
		d.cond.Wait()
	}
	return d.popLocked()
}

func (d *Deque[T]) popLocked() T {
	var zero T
	v := d.buf[d.head]
	d.buf[d.head] = zero
	d.head = (d.head + 1) % len(d.buf)
	d.count--
	d.size.Add(-1)
	return v
}
