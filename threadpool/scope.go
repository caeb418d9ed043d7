package threadpool

import "sync"

// Scope collects tasks that may borrow data owned by the goroutine that
// opened it. Pool.Scope does not return until every task spawned through the
// Scope has finished, so the borrowed data outlives all of them.
//
// A Scope is only valid inside the function passed to Pool.Scope.
type Scope struct {
	p  *Pool
	wg sync.WaitGroup
}

// Scope calls fn with a fresh Scope and waits for every task it spawned.
// An outstanding LockBarrier is released first.
//
// Tasks must not call driver operations on the same pool (SetThreads,
// SpawnWait, the barrier calls, nested Scope): those wait on the workers
// the tasks occupy.
func (p *Pool) Scope(fn func(s *Scope)) {
	p.mu.Lock()
	p.unlockBarrierLocked()
	p.mu.Unlock()

	s := &Scope{p: p}
	fn(s)
	s.wg.Wait()
}

// Spawn queues task on the pool. When the pool has no workers or is closed,
// task runs on the caller before Spawn returns.
func (s *Scope) Spawn(task func()) {
	if task == nil {
		return
	}
	s.wg.Add(1)

	if s.p.closed.Load() || s.p.Threads() == 0 {
		defer s.wg.Done()
		task()
		return
	}
	s.p.queue.Push(workItem{task: func(int) {
		defer s.wg.Done()
		task()
	}})
	s.p.runStranded()
}

// SpawnEach runs task exactly once on every current worker, like
// Pool.SpawnEach. With no workers it runs task(0) on the caller.
func (s *Scope) SpawnEach(task func(worker int)) {
	if task == nil {
		return
	}
	p := s.p

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.workers)
	if n == 0 || p.closed.Load() {
		task(0)
		return
	}

	p.unlockBarrierLocked()
	s.wg.Add(n)
	p.spawnEachLocked(func(w int) {
		defer s.wg.Done()
		task(w)
	})
}
