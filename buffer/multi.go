package buffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// ErrShardCount is the panic value for a Multi created without shards.
var ErrShardCount = errors.New("buffer: shard count must be positive")

// shard is one independently locked partition of a Multi.
// The padding keeps neighbouring shard locks on separate cache lines.
type shard[T any] struct {
	mu    sync.Mutex
	queue []T
	_     cpu.CacheLinePad
}

// Multi is a sharded exchange queue for many concurrent producers.
type Multi[T any] struct {
	shards  []shard[T]
	cursor  atomic.Uint64
	pending atomic.Int64
}

// NewMulti creates a Multi with the given number of shards.
// It panics if shards is not positive.
func NewMulti[T any](shards int) *Multi[T] {
	if shards <= 0 {
		panic(fmt.Errorf("%w: got %d", ErrShardCount, shards))
	}
	return &Multi[T]{shards: make([]shard[T], shards)}
}

// Shards returns the number of shards.
func (m *Multi[T]) Shards() int { return len(m.shards) }

// Send appends v to the next shard in round-robin order.
func (m *Multi[T]) Send(v T) {
	i := (m.cursor.Add(1) - 1) % uint64(len(m.shards))
	m.push(int(i), v) //nolint:gosec // i < len(shards)
}

// SendSeed appends v to shard seed mod Shards().
// Producers with seeds in different residue classes never contend.
func (m *Multi[T]) SendSeed(v T, seed uint) {
	m.push(m.ShardFor(seed), v)
}

// ShardFor returns the shard index SendSeed uses for seed.
func (m *Multi[T]) ShardFor(seed uint) int {
	return int(seed % uint(len(m.shards))) //nolint:gosec // result < len(shards)
}

func (m *Multi[T]) push(i int, v T) {
	s := &m.shards[i]
	s.mu.Lock()
	s.queue = append(s.queue, v)
	m.pending.Add(1)
	s.mu.Unlock()
}

// IsSome reports whether any shard holds values. It does not lock.
func (m *Multi[T]) IsSome() bool {
	return m.pending.Load() > 0
}

// Len returns the number of waiting values across all shards.
func (m *Multi[T]) Len() int {
	return int(m.pending.Load())
}

// ShardLen returns the number of values waiting in shard i.
func (m *Multi[T]) ShardLen(i int) int {
	s := &m.shards[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Receive drains every shard into one slice. Shards are visited in index
// order, each shard yielding its values most recent first.
func (m *Multi[T]) Receive() []T {
	if !m.IsSome() {
		return nil
	}

	var out []T
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for j := len(s.queue) - 1; j >= 0; j-- {
			out = append(out, s.queue[j])
		}
		m.pending.Add(-int64(len(s.queue)))
		clear(s.queue)
		s.queue = s.queue[:0]
		s.mu.Unlock()
	}
	return out
}

// ReceiveCopy returns the waiting values in Receive order without draining.
func (m *Multi[T]) ReceiveCopy() []T {
	var out []T
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for j := len(s.queue) - 1; j >= 0; j-- {
			out = append(out, s.queue[j])
		}
		s.mu.Unlock()
	}
	return out
}
