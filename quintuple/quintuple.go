// Package quintuple provides a five-slot snapshot buffer.
//
// One producer publishes a new snapshot per tick with Set. Up to two
// consumers read the newest snapshot (GetLast), the one before it
// (GetPreLast), or both at once (GetPreLastAndLast) for interpolation.
//
// Four cursors are tracked: the slot each kind of read last took and the two
// most recently written slots. Each slot also counts the guards currently
// held on it. A write goes to the lowest slot that no cursor references;
// failing that, to any slot nobody reads that is not one of the two newest.
// With one newest reader and one pair reader holding their guards, at most
// three slots are read, so such a slot exists or the older published slot is
// unread and can be recycled. Readers and the writer therefore never wait on
// each other; the only shared lock is a short bookkeeping hold.
//
//	buf := quintuple.New(State{})
//	go func() { // simulation
//	    for {
//	        buf.Set(step())
//	    }
//	}()
//	g := buf.GetLast() // render
//	draw(g.Value())
//	g.Release()
//
// Reducing the slot count breaks the free-slot argument above.
package quintuple

import (
	"errors"
	"fmt"
	"sync"
)

// Slots is the number of payload slots.
const Slots = 5

// noSlot marks the absence of a pending write.
const noSlot = -1

// ErrWriteInFlight is the panic value for Set or Begin while another
// PendingWrite is outstanding.
var ErrWriteInFlight = errors.New("quintuple: write already in flight")

// ErrReleased is the panic value for using a Guard or PendingWrite after it
// was released, committed or discarded.
var ErrReleased = errors.New("quintuple: handle already released")

// slot readers share the lock; the writer takes it exclusively.
type slot[T any] struct {
	mu    sync.RWMutex
	value T
}

// cursors is the bookkeeping record. Every field is a slot index.
type cursors struct {
	preLastGet int
	lastGet    int
	preLastSet int
	lastSet    int
	pending    int
}

// Buffer is a five-slot snapshot buffer.
// Buffer must not be copied after creation.
type Buffer[T any] struct {
	slots [Slots]slot[T]

	// mu guards cur and readers.
	mu      sync.Mutex
	cur     cursors
	readers [Slots]int
}

// pick returns the slot for the next write. Caller holds b.mu.
func (b *Buffer[T]) pick() int {
	c := &b.cur
	unread := noSlot
	for i := range Slots {
		if b.readers[i] > 0 || i == c.lastSet || i == c.preLastSet {
			continue
		}
		if i != c.preLastGet && i != c.lastGet {
			return i
		}
		if unread == noSlot {
			unread = i
		}
	}
	if unread != noSlot {
		return unread
	}

	// Three older slots are read. Recycle the second newest; until the
	// write is published, PreLast aliases Last.
	if c.preLastSet != c.lastSet && b.readers[c.preLastSet] == 0 {
		i := c.preLastSet
		c.preLastSet = c.lastSet
		return i
	}

	// More guards are held than two consumers can hold. The write waits
	// for the oldest reads to be released.
	for i := range Slots {
		if i != c.lastSet && i != c.preLastSet {
			return i
		}
	}
	panic("quintuple: no slot to write")
}

// New creates a buffer whose every slot starts as initial.
// Before the second Set, GetLast and GetPreLast may both return initial.
func New[T any](initial T) *Buffer[T] {
	b := &Buffer[T]{cur: cursors{pending: noSlot}}
	for i := range b.slots {
		b.slots[i].value = initial
	}
	return b
}

// Guard is a read lock over one published slot.
type Guard[T any] struct {
	b *Buffer[T]
	i int
}

// acquire registers a reader on slot i. Caller holds b.mu.
func (b *Buffer[T]) acquire(i int) {
	b.readers[i]++
}

func (b *Buffer[T]) unread(i int) {
	b.mu.Lock()
	b.readers[i]--
	b.mu.Unlock()
}

// Value returns the guarded snapshot. The pointer is valid until Release.
func (g *Guard[T]) Value() *T {
	if g.b == nil {
		panic(ErrReleased)
	}
	return &g.b.slots[g.i].value
}

// Release unlocks the slot. Releasing twice panics.
func (g *Guard[T]) Release() {
	if g.b == nil {
		panic(ErrReleased)
	}
	b := g.b
	g.b = nil
	b.slots[g.i].mu.RUnlock()
	b.unread(g.i)
}

func (b *Buffer[T]) guard(i int) *Guard[T] {
	b.acquire(i)
	b.mu.Unlock()
	b.slots[i].mu.RLock()
	return &Guard[T]{b: b, i: i}
}

// GetLast locks and returns the most recently published snapshot.
func (b *Buffer[T]) GetLast() *Guard[T] {
	b.mu.Lock()
	i := b.cur.lastSet
	b.cur.lastGet = i
	return b.guard(i)
}

// GetPreLast locks and returns the snapshot published before the newest.
func (b *Buffer[T]) GetPreLast() *Guard[T] {
	b.mu.Lock()
	i := b.cur.preLastSet
	b.cur.preLastGet = i
	return b.guard(i)
}

// Pair is a read lock over the two newest snapshots.
type Pair[T any] struct {
	b         *Buffer[T]
	pre, last int
}

// Pre returns the older snapshot. Valid until Release.
func (p *Pair[T]) Pre() *T {
	if p.b == nil {
		panic(ErrReleased)
	}
	return &p.b.slots[p.pre].value
}

// Last returns the newer snapshot. Valid until Release.
func (p *Pair[T]) Last() *T {
	if p.b == nil {
		panic(ErrReleased)
	}
	return &p.b.slots[p.last].value
}

// Release unlocks both slots. Releasing twice panics.
func (p *Pair[T]) Release() {
	if p.b == nil {
		panic(ErrReleased)
	}
	b := p.b
	p.b = nil
	b.slots[p.pre].mu.RUnlock()
	if p.last != p.pre {
		b.slots[p.last].mu.RUnlock()
	}

	b.mu.Lock()
	b.readers[p.pre]--
	if p.last != p.pre {
		b.readers[p.last]--
	}
	b.mu.Unlock()
}

// GetPreLastAndLast captures both snapshots under one bookkeeping hold.
// Before the second Set both may be the same slot.
func (b *Buffer[T]) GetPreLastAndLast() *Pair[T] {
	b.mu.Lock()
	pre, last := b.cur.preLastSet, b.cur.lastSet
	b.cur.preLastGet = pre
	b.cur.lastGet = last
	b.acquire(pre)
	if last != pre {
		b.acquire(last)
	}
	b.mu.Unlock()

	b.slots[pre].mu.RLock()
	if last != pre {
		b.slots[last].mu.RLock()
	}
	return &Pair[T]{b: b, pre: pre, last: last}
}

// Last returns a copy of the newest snapshot.
func (b *Buffer[T]) Last() T {
	g := b.GetLast()
	defer g.Release()
	return *g.Value()
}

// PreLast returns a copy of the snapshot before the newest.
func (b *Buffer[T]) PreLast() T {
	g := b.GetPreLast()
	defer g.Release()
	return *g.Value()
}

// Set publishes v as the newest snapshot.
func (b *Buffer[T]) Set(v T) {
	i := b.reserve()

	s := &b.slots[i]
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()

	b.publish(i)
}

// reserve picks the free slot and marks it pending.
func (b *Buffer[T]) reserve() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cur.pending != noSlot {
		panic(fmt.Errorf("%w: slot %d", ErrWriteInFlight, b.cur.pending))
	}
	i := b.pick()
	b.cur.pending = i
	return i
}

func (b *Buffer[T]) publish(i int) {
	b.mu.Lock()
	b.cur.preLastSet = b.cur.lastSet
	b.cur.lastSet = i
	b.cur.pending = noSlot
	b.mu.Unlock()
}

func (b *Buffer[T]) abandon() {
	b.mu.Lock()
	b.cur.pending = noSlot
	b.mu.Unlock()
}

// PendingWrite owns the free slot until Commit or Discard.
// It is meant for writers that build the snapshot in place over several
// passes instead of copying a finished value in.
type PendingWrite[T any] struct {
	b *Buffer[T]
	i int
}

// Begin reserves the free slot for an in-place write and locks it.
// The slot keeps whatever an older snapshot left in it; callers overwrite
// what they need through Value. Only one PendingWrite may exist at a time.
func (b *Buffer[T]) Begin() *PendingWrite[T] {
	i := b.reserve()
	b.slots[i].mu.Lock()
	return &PendingWrite[T]{b: b, i: i}
}

// Value returns the slot being written. It may be called any number of
// times before Commit; each call returns the same slot.
func (w *PendingWrite[T]) Value() *T {
	if w.b == nil {
		panic(ErrReleased)
	}
	return &w.b.slots[w.i].value
}

// Commit publishes the slot as the newest snapshot.
func (w *PendingWrite[T]) Commit() {
	b := w.finish()
	b.publish(w.i)
}

// Discard releases the slot without publishing it. If the slot held the
// second newest snapshot, PreLast aliases Last until the next publish.
func (w *PendingWrite[T]) Discard() {
	b := w.finish()
	b.abandon()
}

func (w *PendingWrite[T]) finish() *Buffer[T] {
	if w.b == nil {
		panic(ErrReleased)
	}
	b := w.b
	w.b = nil
	b.slots[w.i].mu.Unlock()
	return b
}
