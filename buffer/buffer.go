package buffer

import (
	"sync"
	"sync/atomic"
)

// Buffer is a thread-safe FIFO exchange queue.
// The zero value is ready to use.
type Buffer[T any] struct {
	pending atomic.Int64
	mu      sync.Mutex
	queue   []T
}

// New creates a buffer with room for capacity values before growing.
func New[T any](capacity int) *Buffer[T] {
	b := &Buffer[T]{}
	if capacity > 0 {
		b.queue = make([]T, 0, capacity)
	}
	return b
}

// Send appends v to the queue.
func (b *Buffer[T]) Send(v T) {
	b.mu.Lock()
	b.queue = append(b.queue, v)
	b.pending.Add(1)
	b.mu.Unlock()
}

// SendAll appends vs under a single lock hold.
func (b *Buffer[T]) SendAll(vs ...T) {
	if len(vs) == 0 {
		return
	}
	b.mu.Lock()
	b.queue = append(b.queue, vs...)
	b.pending.Add(int64(len(vs)))
	b.mu.Unlock()
}

// IsSome reports whether values are waiting. It does not lock.
func (b *Buffer[T]) IsSome() bool {
	return b.pending.Load() > 0
}

// Len returns the number of waiting values. It does not lock.
func (b *Buffer[T]) Len() int {
	return int(b.pending.Load())
}

// Receive drains every value sent before the call, in send order.
// The returned slice is owned by the caller.
func (b *Buffer[T]) Receive() []T {
	if !b.IsSome() {
		return nil
	}

	b.mu.Lock()
	out := b.queue
	b.queue = make([]T, 0, cap(out))
	b.pending.Add(-int64(len(out)))
	b.mu.Unlock()

	return out
}

// ReceiveCopy returns a copy of the waiting values without draining them.
func (b *Buffer[T]) ReceiveCopy() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil
	}
	out := make([]T, len(b.queue))
	copy(out, b.queue)
	return out
}
