// Package parallel runs indexed work items over a fixed-size worker pool.
// A Run invocation hands its callback an opaque token; passing that token
// to a nested Run forces the inner loop onto the calling goroutine, so a
// parallel region can never recursively oversubscribe the pool.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Token marks execution inside an active parallel region. Callbacks receive
// it from Run and must hand it to any nested Run call.
type Token struct {
	_ [0]func() // not comparable to a fresh literal by accident
}

// Runner executes batches of indexed work.
type Runner struct {
	workers int
}

// NewRunner returns a runner with the given worker count. Zero or negative
// selects GOMAXPROCS.
func NewRunner(workers int) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{workers: workers}
}

// Workers returns the configured worker count.
func (r *Runner) Workers() int { return r.workers }

// Run invokes fn for every index in [0, n). With a nil token and more than
// one worker the indices are pulled from a shared counter by r.Workers()
// goroutines; otherwise they run in order on the calling goroutine. The
// first error stops the remaining work and is returned after all workers
// have wound down.
func (r *Runner) Run(tok *Token, n int, fn func(tok *Token, i int) error) error {
	if n <= 0 {
		return nil
	}
	if tok != nil || r.workers <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := fn(tok, i); err != nil {
				return err
			}
		}
		return nil
	}

	inner := &Token{}
	workers := r.workers
	if workers > n {
		workers = n
	}

	var (
		next     atomic.Int64
		abort    atomic.Bool
		once     sync.Once
		firstErr error
		wg       sync.WaitGroup
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				if abort.Load() {
					return
				}
				i := int(next.Add(1)) - 1
				if i >= n {
					return
				}
				if err := fn(inner, i); err != nil {
					once.Do(func() { firstErr = err })
					abort.Store(true)
					return
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}
