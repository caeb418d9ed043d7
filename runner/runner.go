// Package runner schedules a fixed set of systems, the per-frame functions of
// an application (simulate, render, poll input), either round robin on the
// calling goroutine or on one dedicated OS thread each.
//
//	r := runner.New()
//	r.Add(simulate)
//	r.Add(render)
//	r.RunMultiThread()
//	...
//	r.StopAndWait()
package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	cells "github.com/psincf/Cells-sub001"
	"github.com/psincf/Cells-sub001/internal/barrier"
)

// ErrUnjoined is the panic value when StopAndWait joins a system thread
// that left its loop without returning, e.g. through runtime.Goexit.
var ErrUnjoined = errors.New("runner: system thread exited abnormally")

// ErrStarted is the panic value for Add or RunMultiThread while system
// threads are running.
var ErrStarted = errors.New("runner: system threads already running")

// testHookBeforeStart, if set, runs on the driver just before it joins the
// start barrier.
var testHookBeforeStart func()

// System is one per-frame function.
type System func()

type thread struct {
	done chan struct{}

	// returned is set when the loop ends because the flag was cleared.
	returned atomic.Bool
}

// Runner runs registered systems while its running flag is set.
//
// Add, RunSingleThread, RunMultiThread and StopAndWait belong to the driver
// goroutine. Stop and Running may be called from anywhere, including from a
// system.
type Runner struct {
	systems []System
	running atomic.Bool

	mu      sync.Mutex
	threads []*thread

	log *slog.Logger
}

// New creates a runner with the running flag set.
func New() *Runner {
	r := &Runner{log: cells.Logger()}
	r.running.Store(true)
	return r
}

// SetLogger replaces the runner's logger. nil restores cells.Logger().
func (r *Runner) SetLogger(l *slog.Logger) {
	if l == nil {
		l = cells.Logger()
	}
	r.log = l
}

// Add registers a system. Systems run in registration order in
// RunSingleThread.
func (r *Runner) Add(s System) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.threads) > 0 {
		panic(ErrStarted)
	}
	r.systems = append(r.systems, s)
}

// Len returns the number of registered systems.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.systems)
}

// Running reports whether the running flag is set.
func (r *Runner) Running() bool { return r.running.Load() }

// RunSingleThread calls every system once, in registration order, on the
// calling goroutine. It stops early if the running flag is cleared, so a
// system may end the frame by calling Stop.
func (r *Runner) RunSingleThread() {
	for _, s := range r.systems {
		if !r.running.Load() {
			return
		}
		s()
	}
}

// RunMultiThread sets the running flag and starts one OS thread per system,
// each calling its system in a loop until the flag is cleared. It returns
// once every thread has reached the start barrier, and no system runs before
// that point.
func (r *Runner) RunMultiThread() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.threads) > 0 {
		panic(ErrStarted)
	}

	r.running.Store(true)
	start := barrier.New(len(r.systems) + 1)
	for i, s := range r.systems {
		t := &thread{done: make(chan struct{})}
		r.threads = append(r.threads, t)
		go r.loop(i, s, start, t)
	}
	if testHookBeforeStart != nil {
		testHookBeforeStart()
	}
	start.Wait()

	r.log.Info("runner: systems started", "threads", len(r.systems))
}

func (r *Runner) loop(i int, s System, start *barrier.Barrier, t *thread) {
	runtime.LockOSThread()
	defer close(t.done)

	start.Wait()
	for r.running.Load() {
		s()
	}
	t.returned.Store(true)
	r.log.Debug("runner: system stopped", "system", i)
}

// Stop clears the running flag. Systems finish their current call and
// their threads exit.
func (r *Runner) Stop() {
	r.running.Store(false)
}

// StopAndWait clears the running flag and joins every system thread. It
// panics with ErrUnjoined if a system thread ended without returning from its
// loop; every thread is joined first.
func (r *Runner) StopAndWait() {
	r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.threads)
	joined := 0
	for len(r.threads) > 0 {
		last := len(r.threads) - 1
		t := r.threads[last]
		<-t.done
		if t.returned.Load() {
			joined++
		}
		r.threads[last] = nil
		r.threads = r.threads[:last]
	}
	if joined != n {
		r.log.Error("runner: system threads exited abnormally", "threads", n-joined)
		panic(fmt.Errorf("%w: %d of %d", ErrUnjoined, n-joined, n))
	}

	if n > 0 {
		r.log.Info("runner: systems joined", "threads", n)
	}
}

// Threads returns the number of system threads not yet joined.
func (r *Runner) Threads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}
