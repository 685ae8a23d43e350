// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_StartIfAvailable(t *testing.T) {
	pool := NewWithParallelism(1)
	release := make(chan struct{})
	var wg sync.WaitGroup
	started := 0
	// goroutineToParallelismRatio workers fit, the next one must be refused.
	for range goroutineToParallelismRatio {
		wg.Add(1)
		ok := pool.StartIfAvailable(func() {
			defer wg.Done()
			<-release
		})
		require.True(t, ok)
		started++
	}
	assert.False(t, pool.StartIfAvailable(func() {}))
	close(release)
	wg.Wait()
	assert.Equal(t, goroutineToParallelismRatio, started)

	disabled := NewWithParallelism(0)
	assert.False(t, disabled.IsEnabled())
	assert.False(t, disabled.StartIfAvailable(func() {}))
	var ran bool
	disabled.WaitToStart(func() { ran = true })
	assert.True(t, ran)
}

func TestPool_ParallelFor(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := NewWithParallelism(parallelism)
		for _, n := range []int{0, 1, 7, 64, 1001} {
			counts := make([]int32, n)
			var calls atomic.Int32
			pool.ParallelFor(n, 4, func(start, end int) {
				calls.Add(1)
				for ii := start; ii < end; ii++ {
					atomic.AddInt32(&counts[ii], 1)
				}
			})
			for ii, c := range counts {
				require.Equal(t, int32(1), c, "parallelism=%d, n=%d: index %d visited %d times", parallelism, n, ii, c)
			}
			assert.Equal(t, int32(pool.NumChunks(n, 4)), calls.Load())
		}
	}

	// Nil pool runs inline.
	var nilPool *Pool
	total := 0
	nilPool.ParallelFor(10, 1, func(start, end int) { total += end - start })
	assert.Equal(t, 10, total)
}

func TestPool_ParallelForNested(t *testing.T) {
	pool := NewWithParallelism(2)
	var sum atomic.Int64
	done := make(chan struct{})
	go func() {
		pool.ParallelFor(8, 1, func(start, end int) {
			for ii := start; ii < end; ii++ {
				pool.ParallelFor(100, 10, func(s, e int) {
					sum.Add(int64(e - s))
				})
			}
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested ParallelFor deadlocked")
	}
	assert.Equal(t, int64(800), sum.Load())
}

func TestPool_ParallelForPanic(t *testing.T) {
	for _, parallelism := range []int{0, 2, -1} {
		pool := NewWithParallelism(parallelism)
		var visited atomic.Int32
		// The first chunk goes to a worker goroutine when parallelism is enabled: its panic must still reach
		// the caller, after every other chunk finished.
		assert.PanicsWithValue(t, "chunk 0 failed", func() {
			pool.ParallelFor(64, 1, func(start, end int) {
				if start == 0 {
					panic("chunk 0 failed")
				}
				visited.Add(int32(end - start))
			})
		}, "parallelism=%d", parallelism)
		chunkSize, _ := pool.chunking(64, 1)
		assert.Equal(t, int32(64-chunkSize), visited.Load(), "parallelism=%d", parallelism)
	}
}
