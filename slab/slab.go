// Package slab provides a dense arena addressed by stable keys.
//
// Values live contiguously in a dense slice so iteration is cache friendly,
// while callers hold opaque Keys that stay valid across other insertions and
// removals. Removal is O(1): the last dense element is swapped into the hole
// and the lookup entry that owned it is patched.
//
//	s := slab.New[Particle]()
//	k := s.Insert(Particle{X: 1})
//	if p, ok := s.GetMut(k); ok {
//	    p.X++
//	}
//	s.Remove(k)
//
// Keys carry a generation stamp. Once removed, a key never resolves again,
// even after its index is handed out to a newer value. A lookup slot whose
// 32-bit generation is exhausted is retired instead of wrapping, so the
// guarantee holds for the slab's whole lifetime.
//
// A Slab is not safe for concurrent use. Callers serialize access.
package slab

import (
	"errors"
	"fmt"
	"iter"
	"math"
)

// ErrMissingEntry is the failure for keys that were never issued by this slab
// or whose value was already removed.
var ErrMissingEntry = errors.New("slab: missing entry")

// absent marks a lookup entry with no live value.
const absent = -1

// retired is the generation of a lookup slot that is never reused.
const retired = math.MaxUint32

// Key identifies a value stored in a Slab.
// The zero Key is valid only if it was returned by Insert.
type Key uint64

func makeKey(index, gen uint32) Key {
	return Key(uint64(gen)<<32 | uint64(index))
}

// Index returns the lookup slot addressed by the key.
func (k Key) Index() uint32 { return uint32(k) }

// Generation returns the generation stamp of the key.
func (k Key) Generation() uint32 { return uint32(k >> 32) }

func (k Key) String() string {
	return fmt.Sprintf("%d@%d", k.Index(), k.Generation())
}

// entry is one lookup slot: the dense position of the value, or absent.
type entry struct {
	dense int32
	gen   uint32
}

// Slab is a stable-key dense arena.
//
// Invariants:
//   - the number of present lookup entries equals len(values)
//   - owners[i] is the lookup index whose entry points at values[i]
type Slab[T any] struct {
	values []T
	owners []uint32
	lookup []entry
	free   []uint32

	// genFloor is the first generation given to lookup slots created after
	// ShrinkToFit trimmed slots away, so keys to trimmed slots stay dead.
	genFloor uint32
}

// New creates an empty slab.
func New[T any]() *Slab[T] {
	return &Slab[T]{}
}

// WithCapacity creates an empty slab with room for n values.
func WithCapacity[T any](n int) *Slab[T] {
	if n < 0 {
		n = 0
	}
	return &Slab[T]{
		values: make([]T, 0, n),
		owners: make([]uint32, 0, n),
		lookup: make([]entry, 0, n),
	}
}

// Insert stores v and returns the key that addresses it until Remove.
// Recently freed lookup slots are reused first.
func (s *Slab[T]) Insert(v T) Key {
	var index uint32
	if n := len(s.free); n > 0 {
		index = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		index = uint32(len(s.lookup)) //nolint:gosec // slab size is bounded by memory long before 2^32
		s.lookup = append(s.lookup, entry{dense: absent, gen: s.genFloor})
	}

	e := &s.lookup[index]
	e.dense = int32(len(s.values)) //nolint:gosec // see above
	s.values = append(s.values, v)
	s.owners = append(s.owners, index)

	return makeKey(index, e.gen)
}

// resolve returns the dense position for k, or absent.
func (s *Slab[T]) resolve(k Key) int32 {
	index := k.Index()
	if int(index) >= len(s.lookup) {
		return absent
	}
	e := s.lookup[index]
	if e.dense == absent || e.gen != k.Generation() {
		return absent
	}
	return e.dense
}

// Contains reports whether k addresses a live value.
func (s *Slab[T]) Contains(k Key) bool {
	return s.resolve(k) != absent
}

// Get returns a copy of the value addressed by k.
func (s *Slab[T]) Get(k Key) (T, bool) {
	d := s.resolve(k)
	if d == absent {
		var zero T
		return zero, false
	}
	return s.values[d], true
}

// GetMut returns a pointer to the value addressed by k.
// The pointer is invalidated by the next Insert or Remove.
func (s *Slab[T]) GetMut(k Key) (*T, bool) {
	d := s.resolve(k)
	if d == absent {
		return nil, false
	}
	return &s.values[d], true
}

// MustGet is like Get but panics for unknown or removed keys.
func (s *Slab[T]) MustGet(k Key) T {
	d := s.resolve(k)
	if d == absent {
		panic(fmt.Errorf("%w: key %v", ErrMissingEntry, k))
	}
	return s.values[d]
}

// Remove deletes the value addressed by k and returns it.
// The last dense value moves into the freed position.
func (s *Slab[T]) Remove(k Key) (T, bool) {
	d := s.resolve(k)
	if d == absent {
		var zero T
		return zero, false
	}

	index := k.Index()
	removed := s.values[d]
	last := int32(len(s.values) - 1) //nolint:gosec // bounded by lookup size

	if d != last {
		s.values[d] = s.values[last]
		moved := s.owners[last]
		s.owners[d] = moved
		s.lookup[moved].dense = d
	}

	var zero T
	s.values[last] = zero
	s.values = s.values[:last]
	s.owners = s.owners[:last]

	e := &s.lookup[index]
	e.dense = absent
	e.gen++
	if e.gen != retired {
		s.free = append(s.free, index)
	}

	return removed, true
}

// Len returns the number of live values.
func (s *Slab[T]) Len() int { return len(s.values) }

// IsEmpty reports whether the slab holds no values.
func (s *Slab[T]) IsEmpty() bool { return len(s.values) == 0 }

// Values returns the dense value slice. Order changes on Remove.
// The slice aliases slab storage and is invalidated by Insert or Remove.
func (s *Slab[T]) Values() []T { return s.values }

// KeyAt returns the key of the value at dense position i, so a pass over
// Values can report keys back. It panics if i is out of range.
func (s *Slab[T]) KeyAt(i int) Key {
	index := s.owners[i]
	return makeKey(index, s.lookup[index].gen)
}

// All iterates over live keys and values in dense order.
// The slab must not be modified during iteration.
func (s *Slab[T]) All() iter.Seq2[Key, T] {
	return func(yield func(Key, T) bool) {
		for i, v := range s.values {
			index := s.owners[i]
			if !yield(makeKey(index, s.lookup[index].gen), v) {
				return
			}
		}
	}
}

// Clear removes every value. Outstanding keys stop resolving.
func (s *Slab[T]) Clear() {
	clear(s.values)
	s.values = s.values[:0]
	s.owners = s.owners[:0]
	s.free = s.free[:0]
	for i := len(s.lookup) - 1; i >= 0; i-- {
		e := &s.lookup[i]
		if e.dense != absent {
			e.dense = absent
			e.gen++
		}
		if e.gen != retired {
			s.free = append(s.free, uint32(i)) //nolint:gosec // bounded by lookup size
		}
	}
}

// ShrinkToFit trims trailing absent lookup slots, drops free-stack entries
// that referenced them and releases unused capacity. Trimming stops at a slot
// whose generation is nearly exhausted, which keeps genFloor below retired.
func (s *Slab[T]) ShrinkToFit() {
	n := len(s.lookup)
	for n > 0 && s.lookup[n-1].dense == absent {
		g := s.lookup[n-1].gen
		if g >= retired-1 {
			break
		}
		if g >= s.genFloor {
			s.genFloor = g + 1
		}
		n--
	}
	s.lookup = append([]entry(nil), s.lookup[:n]...)

	free := s.free[:0]
	for _, index := range s.free {
		if int(index) < n {
			free = append(free, index)
		}
	}
	s.free = append([]uint32(nil), free...)
	s.values = append([]T(nil), s.values...)
	s.owners = append([]uint32(nil), s.owners...)
}

// Check verifies the internal bookkeeping and returns a description of the
// first inconsistency found.
func (s *Slab[T]) Check() error {
	if len(s.owners) != len(s.values) {
		return fmt.Errorf("slab: %d owners for %d values", len(s.owners), len(s.values))
	}
	present := 0
	for i, e := range s.lookup {
		if e.dense == absent {
			continue
		}
		present++
		if int(e.dense) >= len(s.values) {
			return fmt.Errorf("slab: slot %d points past dense end (%d >= %d)", i, e.dense, len(s.values))
		}
		if s.owners[e.dense] != uint32(i) { //nolint:gosec // bounded by lookup size
			return fmt.Errorf("slab: slot %d points at dense %d owned by slot %d", i, e.dense, s.owners[e.dense])
		}
	}
	if present != len(s.values) {
		return fmt.Errorf("slab: %d present keys for %d values", present, len(s.values))
	}
	for _, index := range s.free {
		if int(index) >= len(s.lookup) {
			return fmt.Errorf("slab: free slot %d past lookup end", index)
		}
		if e := s.lookup[index]; e.dense != absent || e.gen == retired {
			return fmt.Errorf("slab: free slot %d is live or retired", index)
		}
	}
	return nil
}
