// Package monitor turns a fit run's progress trace into artifacts: a PNG
// convergence plot and a self-contained HTML report. Observability only;
// nothing here feeds back into the optimizer.
package monitor

import (
	"sync"

	"github.com/grain-metrics/laguerre/internal/fit"
)

// Recorder accumulates per-iteration optimizer progress for later
// rendering. Wire it to a fitter via the Progress hook. Safe for concurrent
// use.
type Recorder struct {
	mu    sync.Mutex
	trace []fit.Progress
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe appends one progress snapshot. It has the signature of the
// fitter's Progress hook.
func (r *Recorder) Observe(p fit.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = append(r.trace, p)
}

// Trace returns a copy of the recorded snapshots in arrival order.
func (r *Recorder) Trace() []fit.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fit.Progress, len(r.trace))
	copy(out, r.trace)
	return out
}

// Len returns the number of recorded snapshots.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trace)
}
