// Package cost scores candidate generator sets against the extracted
// interface test points. The discrepancy of a tessellation is the mean
// squared signed distance of every test point to the separating half-space
// of its cell pair; the fitter calls Total millions of times, so the
// evaluator precomputes flat adjacency and point tables instead of chasing
// the pair map in the hot loop.
package cost

import (
	"github.com/grain-metrics/laguerre/internal/extract"
	"github.com/grain-metrics/laguerre/internal/geom"
)

// Evaluator computes tessellation discrepancies over a fixed test-point
// table. It is immutable after construction and safe for concurrent use.
type Evaluator struct {
	cells int

	// indicesAll[i] holds every neighbor of cell i; indicesReduced[i] only
	// the neighbors j > i, so each unordered pair is visited exactly once
	// when totalling over all cells.
	indicesAll     [][]int
	indicesReduced [][]int

	// point slices aligned with the index lists above
	pointsAll     [][][]geom.Vec3
	pointsReduced [][][]geom.Vec3
}

// New builds an evaluator over the extraction result.
func New(in *extract.Interfaces) *Evaluator {
	cells := in.NumCells()
	e := &Evaluator{
		cells:          cells,
		indicesAll:     make([][]int, cells),
		indicesReduced: make([][]int, cells),
		pointsAll:      make([][][]geom.Vec3, cells),
		pointsReduced:  make([][][]geom.Vec3, cells),
	}
	for i := 0; i < cells; i++ {
		for _, j := range in.Neighbors(i) {
			pts := in.Points(i, j)
			e.indicesAll[i] = append(e.indicesAll[i], j)
			e.pointsAll[i] = append(e.pointsAll[i], pts)
			if j > i {
				e.indicesReduced[i] = append(e.indicesReduced[i], j)
				e.pointsReduced[i] = append(e.pointsReduced[i], pts)
			}
		}
	}
	return e
}

// NumCells returns the number of cells the evaluator covers.
func (e *Evaluator) NumCells() int { return e.cells }

// Total returns the mean squared signed distance of all test points to
// their pair's separating half-space, visiting each unordered pair once.
// Pairs with an absent generator, or whose half-space construction fails on
// near-coincident centers, contribute nothing. NaN when no pair could be
// evaluated.
func (e *Evaluator) Total(gens []*geom.Weighted) float64 {
	var sum float64
	var n int
	for i := range e.indicesReduced {
		s, c := e.accumulate(gens, i, e.indicesReduced[i], e.pointsReduced[i])
		sum += s
		n += c
	}
	return sum / float64(n)
}

// ForCell returns the mean squared signed distance of the test points on
// cell i's interfaces, over all of its neighbors. NaN when nothing could be
// evaluated (absent cell, or every neighbor absent or degenerate).
func (e *Evaluator) ForCell(gens []*geom.Weighted, i int) float64 {
	sum, n := e.accumulate(gens, i, e.indicesAll[i], e.pointsAll[i])
	return sum / float64(n)
}

// AdjacentIndices returns a copy of cell i's neighbor indices.
func (e *Evaluator) AdjacentIndices(i int) []int {
	out := make([]int, len(e.indicesAll[i]))
	copy(out, e.indicesAll[i])
	return out
}

func (e *Evaluator) accumulate(gens []*geom.Weighted, i int, indices []int, points [][]geom.Vec3) (float64, int) {
	pi := gens[i]
	if pi == nil {
		return 0, 0
	}

	var sum float64
	var n int
	for k, j := range indices {
		pj := gens[j]
		if pj == nil {
			continue
		}
		hs, err := geom.SeparatingHalfSpace(*pi, *pj)
		if err != nil {
			// near-coincident generators have no radical plane; their
			// test points drop out of this evaluation
			continue
		}
		for _, p := range points[k] {
			d := hs.SignedDistance(p)
			sum += d * d
			n++
		}
	}
	return sum, n
}
