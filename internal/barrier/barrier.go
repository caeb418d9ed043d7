// Package barrier provides a resizable rendezvous barrier.
//
// A Barrier releases its waiters only when exactly Parties() goroutines have
// arrived. It is reusable: once a round releases, the next Wait starts a new
// round.
package barrier

import (
	"errors"
	"fmt"
	"sync"
)

// ErrParties is the panic value for a barrier with fewer than one party.
var ErrParties = errors.New("barrier: parties must be positive")

// Barrier is a reusable rendezvous point for a fixed number of parties.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	arrived int
	round   uint64
}

// New creates a barrier for n parties.
func New(n int) *Barrier {
	if n < 1 {
		panic(fmt.Errorf("%w: got %d", ErrParties, n))
	}
	b := &Barrier{parties: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Parties returns the number of goroutines a round waits for.
func (b *Barrier) Parties() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parties
}

// Wait blocks until Parties() goroutines have called Wait in this round.
// Exactly one caller per round, the last to arrive, gets leader == true.
func (b *Barrier) Wait() (leader bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	round := b.round
	b.arrived++
	if b.arrived >= b.parties {
		b.release()
		return true
	}
	for round == b.round {
		b.cond.Wait()
	}
	return false
}

// Resize changes the party count. If the goroutines already waiting meet the
// new count, the current round releases immediately.
func (b *Barrier) Resize(n int) {
	if n < 1 {
		panic(fmt.Errorf("%w: got %d", ErrParties, n))
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.parties = n
	if b.arrived > 0 && b.arrived >= b.parties {
		b.release()
	}
}

// Waiting returns the number of goroutines blocked in the current round.
func (b *Barrier) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}

func (b *Barrier) release() {
	b.arrived = 0
	b.round++
	b.cond.Broadcast()
}
