// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements a soft-bounded pool of goroutines used by the kernels to split
// independent work (output channels, channel packs, GEMM row panels) across CPU cores.
package workerspool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool of workers. The zero value is not usable, create it with New or NewWithParallelism.
//
// A nil *Pool is accepted by ParallelFor and runs everything inline.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	// The actual number of goroutines is higher than that -- because of waits and such.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning     int

	// extraParallelism is temporarily increased when a worked goes to sleep.
	extraParallelism atomic.Int32
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return NewWithParallelism(runtime.NumCPU())
}

// NewWithParallelism returns a new Pool with the given soft limit: 0 disables parallelism
// (everything runs inline) and -1 means unlimited.
func NewWithParallelism(maxParallelism int) *Pool {
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsEnabled returns whether parallelism is enabled (maxParallelism is != 0)
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism is a soft-target for parallelism (the limit of goroutines is higher that this).
// If set to 0 parallelism is disabled.
// If set to -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism.
//
// You should only change the parallelism before any workers start running. If changed during the execution
// the behavior is undefined.
func (w *Pool) SetMaxParallelism(maxParallelism int) {
	w.maxParallelism = maxParallelism
}

const goroutineToParallelismRatio = 2

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with workerPool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= goroutineToParallelismRatio*w.maxParallelism+int(w.extraParallelism.Load())
}

// WaitToStart waits until there is a worker available to run the task.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.IsUnlimited() {
		go task()
		return

	} else if w.maxParallelism == 0 {
		task()
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.lockedRunTaskInGoroutine(task)
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with workerPool.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// StartIfAvailable runs the task in a separate goroutine, if there are enough workers left.
// It returns true if it found workers to run the function, false otherwise.
//
// It's up to the client to synchronize the end of the function execution.
func (w *Pool) StartIfAvailable(task func()) bool {
	if w.IsUnlimited() {
		go task()
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lockedIsFull() {
		return false
	}
	w.lockedRunTaskInGoroutine(task)
	return true
}

// WorkerIsAsleep indicates the worker (the one that called the method) is going to sleep waiting
// for other workers, and temporarily increases the available number of workers.
//
// Call WorkerRestarted when the worker is ready to run again.
func (w *Pool) WorkerIsAsleep() {
	w.extraParallelism.Add(1)
}

// WorkerRestarted indicates the worker (the one that called the method) is ready to run again.
// It should only be called after WorkerIsAsleep.
func (w *Pool) WorkerRestarted() {
	w.extraParallelism.Add(-1)
}

// chunking returns the chunk size and the number of chunks ParallelFor uses for n items.
func (w *Pool) chunking(n, minChunk int) (chunkSize, numChunks int) {
	if n <= 0 {
		return 0, 0
	}
	minChunk = max(minChunk, 1)
	if w == nil || !w.IsEnabled() {
		return n, 1
	}
	target := w.maxParallelism
	if target < 0 {
		target = runtime.NumCPU()
	}
	numChunks = max(1, min(target, (n+minChunk-1)/minChunk))
	chunkSize = (n + numChunks - 1) / numChunks
	return chunkSize, (n + chunkSize - 1) / chunkSize
}

// NumChunks returns how many chunks ParallelFor splits n items into, given minChunk.
func (w *Pool) NumChunks(n, minChunk int) int {
	_, numChunks := w.chunking(n, minChunk)
	return numChunks
}

// ParallelFor splits the range [0, n) into contiguous chunks of at least minChunk indices and calls
// fn(start, end) once per chunk. Chunks run on pool workers when available, and inline otherwise.
// It returns only after every chunk finished.
//
// Chunks never overlap, so fn may write to disjoint regions of a shared output without locking;
// any scratch space must be allocated inside fn.
//
// If fn panics in any chunk, ParallelFor waits for the other chunks and then re-panics with the first value
// recovered, on the calling goroutine, where it can be caught (e.g. with exceptions.TryCatch).
func (w *Pool) ParallelFor(n, minChunk int, fn func(start, end int)) {
	chunkSize, numChunks := w.chunking(n, minChunk)
	if numChunks == 0 {
		return
	}
	if numChunks == 1 {
		fn(0, n)
		return
	}
	var (
		wg        sync.WaitGroup
		panicOnce sync.Once
		panicked  any
	)
	runChunk := func(start, end int) {
		defer func() {
			if r := recover(); r != nil {
				panicOnce.Do(func() { panicked = r })
			}
		}()
		fn(start, end)
	}
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		if end == n {
			// The calling goroutine takes the last chunk.
			runChunk(start, end)
			break
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			runChunk(start, end)
		}
		if !w.StartIfAvailable(task) {
			task()
		}
	}
	w.WorkerIsAsleep()
	wg.Wait()
	w.WorkerRestarted()
	if panicked != nil {
		panic(panicked)
	}
}
