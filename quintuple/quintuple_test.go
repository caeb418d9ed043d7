package quintuple

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Publish / Read Tests
// =============================================================================

func TestBuffer_InitialAliases(t *testing.T) {
	b := New(7)

	if got := b.Last(); got != 7 {
		t.Errorf("Last() = %d, want 7", got)
	}
	if got := b.PreLast(); got != 7 {
		t.Errorf("PreLast() = %d, want 7", got)
	}

	b.Set(1)
	if got := b.Last(); got != 1 {
		t.Errorf("Last() after one Set = %d, want 1", got)
	}
	if got := b.PreLast(); got != 7 {
		t.Errorf("PreLast() after one Set = %d, want initial 7", got)
	}
}

func TestBuffer_FiveSets(t *testing.T) {
	b := New(0)
	for v := 1; v <= 5; v++ {
		b.Set(v)
	}

	last := b.GetLast()
	if got := *last.Value(); got != 5 {
		t.Errorf("GetLast() = %d, want 5", got)
	}
	last.Release()

	pre := b.GetPreLast()
	if got := *pre.Value(); got != 4 {
		t.Errorf("GetPreLast() = %d, want 4", got)
	}
	pre.Release()
}

func TestBuffer_PreLastAndLast(t *testing.T) {
	b := New(0)

	p := b.GetPreLastAndLast()
	if *p.Pre() != 0 || *p.Last() != 0 {
		t.Errorf("pair before sets = (%d, %d), want (0, 0)", *p.Pre(), *p.Last())
	}
	p.Release()

	b.Set(10)
	b.Set(20)
	p = b.GetPreLastAndLast()
	if *p.Pre() != 10 || *p.Last() != 20 {
		t.Errorf("pair = (%d, %d), want (10, 20)", *p.Pre(), *p.Last())
	}
	p.Release()
}

func TestBuffer_FreeSlotAvoidsCursors(t *testing.T) {
	b := New(0)
	for v := 1; v <= 50; v++ {
		b.Set(v)

		b.mu.Lock()
		c := b.cur
		b.mu.Unlock()
		if c.lastSet == c.preLastSet {
			t.Fatalf("after Set(%d): lastSet == preLastSet == %d", v, c.lastSet)
		}

		// Pin a different pair of read cursors every few rounds.
		switch v % 3 {
		case 0:
			b.GetLast().Release()
		case 1:
			b.GetPreLast().Release()
		default:
			b.GetPreLastAndLast().Release()
		}

		b.mu.Lock()
		c = b.cur
		f := b.pick()
		b.mu.Unlock()
		for _, used := range []int{c.preLastGet, c.lastGet, c.preLastSet, c.lastSet} {
			if f == used {
				t.Fatalf("pick() = %d collides with cursor set %+v", f, c)
			}
		}
	}
}

// A pair read moves both get cursors, so a GetLast guard taken earlier is no
// longer covered by any cursor. The writer must still avoid its slot.
func TestBuffer_WriterNotBlockedByStaleGuard(t *testing.T) {
	b := New(0)
	b.Set(1)
	b.Set(2)

	last := b.GetLast()
	b.GetPreLastAndLast().Release()
	b.Set(3)
	b.Set(4)
	b.GetPreLastAndLast().Release()

	done := make(chan struct{})
	go func() {
		for v := 5; v <= 8; v++ {
			b.Set(v)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Set blocked behind a GetLast guard after a pair read")
	}

	if got := *last.Value(); got != 2 {
		t.Errorf("held guard = %d, want 2", got)
	}
	last.Release()

	if got := b.Last(); got != 8 {
		t.Errorf("Last() = %d, want 8", got)
	}
	if got := b.PreLast(); got != 7 {
		t.Errorf("PreLast() = %d, want 7", got)
	}
}

// Both consumers hold their guards at once: three slots are read, and the
// writer recycles the second newest slot.
func TestBuffer_WriterNotBlockedByBothConsumers(t *testing.T) {
	b := New(0)
	b.Set(1)
	b.Set(2)
	last := b.GetLast()
	b.Set(3)
	b.Set(4)
	pair := b.GetPreLastAndLast()

	done := make(chan struct{})
	go func() {
		for v := 5; v <= 8; v++ {
			b.Set(v)
			if got := b.Last(); got != v {
				t.Errorf("Last() after Set(%d) = %d", v, got)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Set blocked with one newest and one pair reader held")
	}

	if *last.Value() != 2 {
		t.Errorf("newest guard = %d, want 2", *last.Value())
	}
	if *pair.Pre() != 3 || *pair.Last() != 4 {
		t.Errorf("pair guard = (%d, %d), want (3, 4)", *pair.Pre(), *pair.Last())
	}
	last.Release()
	pair.Release()

	if got := b.PreLast(); got != 7 {
		t.Errorf("PreLast() = %d, want 7", got)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.readers {
		if n != 0 {
			t.Errorf("readers[%d] = %d after every release, want 0", i, n)
		}
	}
}

func TestBuffer_WriterNotBlockedByReaders(t *testing.T) {
	b := New(0)
	b.Set(1)
	b.Set(2)

	// Two readers hold their guards across several writes.
	last := b.GetLast()
	pre := b.GetPreLast()

	done := make(chan struct{})
	go func() {
		for v := 3; v <= 20; v++ {
			b.Set(v)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Set blocked behind held read guards")
	}

	if *last.Value() != 2 || *pre.Value() != 1 {
		t.Errorf("held guards changed: last=%d pre=%d, want 2 and 1", *last.Value(), *pre.Value())
	}
	last.Release()
	pre.Release()

	if got := b.Last(); got != 20 {
		t.Errorf("Last() = %d, want 20", got)
	}
}

func TestGuard_DoubleRelease(t *testing.T) {
	b := New(0)
	g := b.GetLast()
	g.Release()

	defer func() {
		if r := recover(); r != ErrReleased {
			t.Errorf("recover() = %v, want ErrReleased", r)
		}
	}()
	g.Release()
}

// =============================================================================
// PendingWrite Tests
// =============================================================================

func TestPendingWrite_Commit(t *testing.T) {
	b := New([]int(nil))
	b.Set([]int{1})

	w := b.Begin()
	*w.Value() = []int{2}
	// Second pass over the same slot.
	*w.Value() = append(*w.Value(), 3)

	if got := b.Last(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Last() before Commit = %v, want [1]", got)
	}

	w.Commit()

	got := b.Last()
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Last() after Commit = %v, want [2 3]", got)
	}
	if pre := b.PreLast(); len(pre) != 1 || pre[0] != 1 {
		t.Errorf("PreLast() after Commit = %v, want [1]", pre)
	}
}

func TestPendingWrite_Discard(t *testing.T) {
	b := New(0)
	b.Set(1)

	w := b.Begin()
	*w.Value() = 99
	w.Discard()

	if got := b.Last(); got != 1 {
		t.Errorf("Last() after Discard = %d, want 1", got)
	}
	// The buffer accepts writes again.
	b.Set(2)
	if got := b.Last(); got != 2 {
		t.Errorf("Last() = %d, want 2", got)
	}
}

func TestPendingWrite_SecondWritePanics(t *testing.T) {
	b := New(0)
	w := b.Begin()
	defer w.Discard()

	defer func() {
		err, ok := recover().(error)
		if !ok || !errors.Is(err, ErrWriteInFlight) {
			t.Errorf("recover() = %v, want ErrWriteInFlight", err)
		}
	}()
	b.Set(1)
}

func TestPendingWrite_UseAfterCommit(t *testing.T) {
	b := New(0)
	w := b.Begin()
	w.Commit()

	defer func() {
		if r := recover(); r != ErrReleased {
			t.Errorf("recover() = %v, want ErrReleased", r)
		}
	}()
	w.Value()
}

// =============================================================================
// Concurrency
// =============================================================================

func TestBuffer_ConcurrentProducerConsumers(t *testing.T) {
	type snap struct{ a, b int }
	buf := New(snap{})
	const writes = 20000

	var stop atomic.Bool
	var wg sync.WaitGroup
	var torn atomic.Int64

	reader := func(get func() (snap, snap)) {
		defer wg.Done()
		prev := -1
		for !stop.Load() {
			last, pre := get()
			if last.a != last.b || pre.a != pre.b {
				torn.Add(1)
			}
			if last.a < prev {
				torn.Add(1)
			}
			prev = last.a
		}
	}

	wg.Add(2)
	go reader(func() (snap, snap) {
		g := buf.GetLast()
		defer g.Release()
		return *g.Value(), *g.Value()
	})
	go reader(func() (snap, snap) {
		p := buf.GetPreLastAndLast()
		defer p.Release()
		return *p.Last(), *p.Pre()
	})

	for i := 1; i <= writes; i++ {
		buf.Set(snap{i, i})
	}
	stop.Store(true)
	wg.Wait()

	if n := torn.Load(); n != 0 {
		t.Errorf("observed %d torn or out-of-order snapshots", n)
	}
	if got := buf.Last(); got.a != writes {
		t.Errorf("Last().a = %d, want %d", got.a, writes)
	}
}
