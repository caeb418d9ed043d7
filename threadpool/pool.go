package threadpool

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/psincf/Cells-sub001/internal/affinity"
	"github.com/psincf/Cells-sub001/internal/barrier"
	"github.com/psincf/Cells-sub001/internal/deque"
)

// ErrThreadCount is the panic value for a negative SetThreads argument.
var ErrThreadCount = errors.New("threadpool: thread count must not be negative")

// ErrClosed is the panic value for resizing a closed pool.
var ErrClosed = errors.New("threadpool: pool is closed")

// spinBudget is the number of empty polls before an idle worker starts
// yielding the processor.
const spinBudget = 64

// workItem is either a task or a shutdown sentinel.
type workItem struct {
	task     func(worker int)
	shutdown bool
}

// worker is the driver's handle on one worker thread.
type worker struct {
	// index is the worker's position in Pool.workers. It changes when a
	// removal swaps this worker into a freed position.
	index atomic.Int64
	done  chan struct{}
}

// Pool is a resizable work-stealing pool of OS threads.
//
// Submission (Spawn, Scope.Spawn) is safe from any goroutine. Driver
// operations (SetThreads, the barrier and sync calls, the Wait and Each
// variants, Close) are serialized internally.
type Pool struct {
	// mu serializes driver operations and guards workers and barrier.
	mu      sync.Mutex
	workers []*worker
	barrier *barrier.Barrier

	// barrierPending is set between LockBarrier and UnlockBarrier.
	barrierPending bool

	queue   *deque.Deque[workItem]
	exited  chan *worker
	threads atomic.Int64
	spawned atomic.Int64
	closed  atomic.Bool

	opts options
	log  *slog.Logger
}

// New creates a pool with n workers.
// If n is 0 or negative, GOMAXPROCS is used.
func New(n int, opts ...Option) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.resolve()

	p := &Pool{
		queue:   deque.New[workItem](),
		exited:  make(chan *worker),
		barrier: barrier.New(1),
		opts:    o,
		log:     o.logger,
	}
	p.SetThreads(n)
	return p
}

// Threads returns the current number of workers.
func (p *Pool) Threads() int {
	return int(p.threads.Load())
}

// Queued returns the number of items waiting in the queue.
// This is an approximation while workers are stealing.
func (p *Pool) Queued() int {
	return p.queue.Len()
}

// IsRunning reports whether the pool has not been closed.
func (p *Pool) IsRunning() bool {
	return !p.closed.Load()
}

// SetThreads resizes the pool to n workers.
//
// An outstanding LockBarrier is released first. Growing spawns workers;
// shrinking queues one shutdown sentinel per removed worker and waits for
// each to exit. Work queued before the call runs before any worker exits.
// Finally the barrier is resized for n workers plus the driver. Work still
// queued once the pool is down to zero workers runs on the caller.
func (p *Pool) SetThreads(n int) {
	if n < 0 {
		panic(fmt.Errorf("%w: got %d", ErrThreadCount, n))
	}
	if p.closed.Load() {
		panic(ErrClosed)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.setThreadsLocked(n)
}

func (p *Pool) setThreadsLocked(n int) {
	p.unlockBarrierLocked()

	old := len(p.workers)
	switch {
	case n > old:
		for range n - old {
			p.spawnWorker()
		}
	case n < old:
		p.removeWorkers(old - n)
	}

	p.barrier.Resize(n + 1)
	p.threads.Store(int64(n))

	if n != old {
		p.log.Debug("threadpool: resized", "from", old, "to", n)
	}
	if n == 0 {
		p.runStranded()
	}
}

// runStranded runs queued tasks on the caller while the pool has no
// workers. Submitters call it after pushing: either their push precedes the
// drain at the end of a shrink to zero, or they observe zero threads.
func (p *Pool) runStranded() {
	for p.Threads() == 0 {
		item, ok := p.queue.Steal()
		if !ok {
			return
		}
		item.task(0)
	}
}

func (p *Pool) spawnWorker() {
	w := &worker{done: make(chan struct{})}
	w.index.Store(int64(len(p.workers)))
	p.workers = append(p.workers, w)

	cpu := -1
	if len(p.opts.cpus) > 0 {
		seq := p.spawned.Load()
		cpu = p.opts.cpus[seq%int64(len(p.opts.cpus))]
	}
	p.spawned.Add(1)

	go p.run(w, cpu)
}

// removeWorkers retires k workers. Each exiting worker reports itself on the
// exit channel; its current index is read only after it is gone, so earlier
// relabels are always observed.
func (p *Pool) removeWorkers(k int) {
	p.queue.PushN(k, func(int) workItem { return workItem{shutdown: true} })

	for range k {
		w := <-p.exited
		<-w.done

		i := int(w.index.Load())
		last := len(p.workers) - 1
		moved := p.workers[last]
		p.workers[i] = moved
		moved.index.Store(int64(i))
		p.workers[last] = nil
		p.workers = p.workers[:last]

		p.log.Debug("threadpool: worker exited", "index", i, "remaining", len(p.workers))
	}
}

// run is the worker loop. The goroutine never unlocks its OS thread, so the
// thread is retired when the worker exits.
func (p *Pool) run(w *worker, cpu int) {
	runtime.LockOSThread()
	defer close(w.done)

	if cpu >= 0 {
		if err := affinity.Pin(cpu); err != nil {
			p.log.Warn("threadpool: cpu pinning failed", "cpu", cpu, "err", err)
		}
	}

	for {
		item := p.next()
		if item.shutdown {
			p.exited <- w
			return
		}
		item.task(int(w.index.Load()))
	}
}

// next steals the next work item, idling according to the pool's strategy.
func (p *Pool) next() workItem {
	if p.opts.idle == IdlePark {
		return p.queue.StealWait()
	}
	for spins := 0; ; spins++ {
		if item, ok := p.queue.Steal(); ok {
			return item
		}
		if spins >= spinBudget {
			runtime.Gosched()
		}
	}
}

// Spawn queues task to run once on some worker and returns immediately.
// If the pool is closed, this is a no-op.
func (p *Pool) Spawn(task func()) {
	if task == nil || p.closed.Load() {
		return
	}
	p.queue.Push(workItem{task: func(int) { task() }})
	p.runStranded()
}

// SpawnWait runs task once on some worker and waits for it to finish.
// With no workers, including after Close, the task runs on the caller.
func (p *Pool) SpawnWait(task func()) {
	if task == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.workers) == 0 {
		task()
		return
	}
	p.unlockBarrierLocked()
	p.queue.Push(workItem{task: func(int) { task() }})
	p.syncSpinLocked()
}

// SpawnEach runs task exactly once on every current worker and returns
// immediately. task receives the index of the worker running it.
//
// Each worker checks in after its run and spins until all have, so no
// worker can pick up a second copy.
func (p *Pool) SpawnEach(task func(worker int)) {
	if task == nil || p.closed.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.unlockBarrierLocked()
	p.spawnEachLocked(task)
}

// SpawnEachWait runs task exactly once on every current worker and waits
// until all runs have finished.
func (p *Pool) SpawnEachWait(task func(worker int)) {
	if task == nil || p.closed.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.unlockBarrierLocked()
	p.spawnEachLocked(task)
	p.syncSpinLocked()
}

// spawnEachLocked queues one copy of task per worker.
func (p *Pool) spawnEachLocked(task func(worker int)) {
	n := int64(len(p.workers))
	if n == 0 {
		return
	}

	var arrived atomic.Int64
	p.queue.PushN(int(n), func(int) workItem {
		return workItem{task: func(w int) {
			task(w)
			arrived.Add(1)
			for arrived.Load() < n {
				runtime.Gosched()
			}
		}}
	})
}

// LockBarrier parks every worker on the rendezvous barrier. Work queued
// earlier runs first. Until UnlockBarrier the workers take no new work.
// Calling it while already locked does nothing.
func (p *Pool) LockBarrier() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lockBarrierLocked()
}

func (p *Pool) lockBarrierLocked() {
	if p.barrierPending {
		return
	}
	b := p.barrier
	p.queue.PushN(len(p.workers), func(int) workItem {
		return workItem{task: func(int) { b.Wait() }}
	})
	p.barrierPending = true
}

// UnlockBarrier joins the barrier from the driver, releasing every worker
// parked by LockBarrier at once. Blocks until all workers have arrived.
// Calling it without a pending LockBarrier does nothing.
func (p *Pool) UnlockBarrier() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlockBarrierLocked()
}

func (p *Pool) unlockBarrierLocked() {
	if !p.barrierPending {
		return
	}
	p.barrier.Wait()
	p.barrierPending = false
	p.log.Debug("threadpool: barrier released", "workers", len(p.workers))
}

// SyncBarrier is LockBarrier followed by UnlockBarrier: it returns once every
// worker has finished the work queued before the call.
func (p *Pool) SyncBarrier() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lockBarrierLocked()
	p.unlockBarrierLocked()
}

// SyncSpin is SyncBarrier with busy-waiting: each worker checks in and spins
// until the driver, also spinning, has seen all of them.
// An outstanding LockBarrier is released first.
func (p *Pool) SyncSpin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlockBarrierLocked()
	p.syncSpinLocked()
}

func (p *Pool) syncSpinLocked() {
	n := int64(len(p.workers))
	if n == 0 {
		return
	}

	var arrived atomic.Int64
	var release atomic.Bool
	p.queue.PushN(int(n), func(int) workItem {
		return workItem{task: func(int) {
			arrived.Add(1)
			for !release.Load() {
				runtime.Gosched()
			}
		}}
	})

	for arrived.Load() < n {
		runtime.Gosched()
	}
	release.Store(true)
}

// ExecuteAll runs every function in work on the pool and waits for all of
// them. If the pool is closed, this is a no-op.
func (p *Pool) ExecuteAll(work []func()) {
	if len(work) == 0 || p.closed.Load() {
		return
	}
	p.Scope(func(s *Scope) {
		for _, fn := range work {
			s.Spawn(fn)
		}
	})
}

// Close releases an outstanding barrier, lets queued work finish and stops
// every worker. Close is safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.setThreadsLocked(0)
}
