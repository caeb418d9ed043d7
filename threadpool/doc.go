// Package threadpool provides a resizable work-stealing pool of OS threads
// with barrier-based lockstep synchronization for frame loops.
//
// # Workers
//
// Every worker is a goroutine locked to its own OS thread. Workers steal from
// one shared FIFO queue; an idle worker spins and yields (IdleSpin, the
// default) or parks on a condition variable (IdlePark) until work arrives.
// A shutdown sentinel makes the worker that steals it report itself on the
// pool's exit channel and end, taking its OS thread with it.
//
// # Submission
//
//	pool := threadpool.New(4)
//	defer pool.Close()
//
//	pool.Spawn(func() { ... })                   // once, fire and forget
//	pool.SpawnWait(func() { ... })               // once, wait for it
//	pool.SpawnEach(func(worker int) { ... })     // once on every worker
//	pool.SpawnEachWait(func(worker int) { ... }) // ... and wait
//
// Tasks that capture caller-owned data (a slice being filled, a frame being
// built) go through Scope, which returns only after every task spawned in it
// has finished:
//
//	pool.Scope(func(s *threadpool.Scope) {
//	    for i := range rows {
//	        s.Spawn(func() { shade(rows[i]) })
//	    }
//	})
//
// # Lockstep
//
// LockBarrier parks every worker on a rendezvous barrier; UnlockBarrier has the
// driver join it and releases them together. SyncBarrier does both.
// SyncSpin does the same with busy-waiting instead of blocking: lower wake
// latency, but every participant burns its core while waiting.
//
// # Resizing
//
// SetThreads first releases an outstanding barrier, then grows or shrinks the
// worker set, then resizes the barrier for the new worker count plus the
// driver. Shrinking waits for each removed worker to exit. With zero workers,
// submitted tasks run on the submitting goroutine instead of waiting in the
// queue.
//
// # Failure
//
// Panics inside tasks are not recovered. The pool is an internal fail-fast
// library: a panicking task takes the process down.
package threadpool
