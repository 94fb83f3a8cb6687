package fit

import (
	"math"
	"sync"

	"github.com/grain-metrics/laguerre/internal/geom"
)

// history is a bounded trailing window of per-iteration costs, consulted by
// the termination and injection plateau checks.
type history struct {
	vals []float64
	size int
}

func newHistory(size int) *history {
	if size < 1 {
		size = 1
	}
	return &history{size: size}
}

// push appends a cost, evicting the oldest entry once the window is full.
func (h *history) push(v float64) {
	h.vals = append(h.vals, v)
	if len(h.vals) > h.size {
		h.vals = h.vals[1:]
	}
}

// plateau reports whether the newest tau entries all lie within delta of
// the newest, relative to the newest. The newest entry is returned as the
// plateau value.
func (h *history) plateau(tau int, delta float64) (float64, bool) {
	if tau < 1 || len(h.vals) < tau {
		return 0, false
	}
	last := h.vals[len(h.vals)-1]
	for k := 2; k <= tau; k++ {
		if math.Abs(last-h.vals[len(h.vals)-k]) > delta*last {
			return 0, false
		}
	}
	return last, true
}

func (h *history) clear() {
	h.vals = h.vals[:0]
}

// bestRecord keeps the lowest-cost configuration seen anywhere in the run.
// Sampling workers register concurrently; the cost only ever decreases.
type bestRecord struct {
	mu   sync.Mutex
	gens []*geom.Weighted
	cost float64
}

// register replaces the record when c is strictly lower. The caller must
// not mutate gens afterwards.
func (b *bestRecord) register(gens []*geom.Weighted, c float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c < b.cost {
		b.gens = gens
		b.cost = c
	}
}
