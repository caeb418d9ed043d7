package threadpool

import (
	"fmt"
	"sync/atomic"
	"testing"
)

func BenchmarkPool_ExecuteAll(b *testing.B) {
	for _, workers := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			pool := New(workers)
			defer pool.Close()

			var sink atomic.Int64
			work := make([]func(), 64)
			for i := range work {
				work[i] = func() { sink.Add(1) }
			}

			b.ResetTimer()
			for b.Loop() {
				pool.ExecuteAll(work)
			}
		})
	}
}

func BenchmarkPool_SyncBarrier(b *testing.B) {
	pool := New(4)
	defer pool.Close()
	for b.Loop() {
		pool.SyncBarrier()
	}
}

func BenchmarkPool_SyncSpin(b *testing.B) {
	pool := New(4)
	defer pool.Close()
	for b.Loop() {
		pool.SyncSpin()
	}
}

func BenchmarkPool_SpawnEachWait(b *testing.B) {
	pool := New(4)
	defer pool.Close()
	for b.Loop() {
		pool.SpawnEachWait(func(int) {})
	}
}
