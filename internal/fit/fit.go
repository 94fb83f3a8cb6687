// Package fit searches for Laguerre generators reproducing an extracted
// interface geometry, using the cross-entropy method: sample M candidate
// configurations from per-cell Gaussians, refit the Gaussians to the elite
// (lowest-cost) subset, and repeat until the distributions collapse or the
// cost plateaus. Variance injection widens the distributions again when
// progress stalls before collapse.
package fit

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/grain-metrics/laguerre/internal/cost"
	"github.com/grain-metrics/laguerre/internal/extract"
	"github.com/grain-metrics/laguerre/internal/geom"
	"github.com/grain-metrics/laguerre/internal/monitoring"
	"github.com/grain-metrics/laguerre/internal/parallel"
)

// eps bounds both the sigma-collapse and the cost convergence criterion.
const eps = 1e-10

// Params holds the cross-entropy tuning knobs.
type Params struct {
	// Samples is the number of configurations drawn per iteration (M).
	Samples int
	// Rho is the elite fraction; ceil(Rho*Samples) samples form the elite set.
	Rho float64

	// TauInject and DeltaInject control variance injection: inject once the
	// last TauInject recorded costs all lie within relative DeltaInject of
	// the newest. DeltaInject 0 disables injection entirely.
	TauInject   int
	DeltaInject float64
	// Injections bounds how many injections may run: negative means
	// unlimited, zero disables.
	Injections int
	// Gamma throttles injection: when a plateau's cost divided by the cost
	// at the previous injection exceeds Gamma, injections are disabled for
	// the rest of the run.
	Gamma float64
	// Kappa scales the injected deviation, kappa*sqrt(local cell cost).
	Kappa float64

	// TauTerminate and DeltaTerminate control termination: stop once the
	// last TauTerminate recorded costs all lie within relative
	// DeltaTerminate of the newest.
	TauTerminate   int
	DeltaTerminate float64

	// Seed keys the sample streams; a fixed seed gives identical
	// trajectories regardless of worker count.
	Seed uint64
}

// DefaultParams returns the standard tuning from the reference paper.
func DefaultParams() Params {
	return Params{
		Samples:        4000,
		Rho:            0.05,
		TauInject:      10,
		DeltaInject:    0.05,
		Injections:     -1,
		Gamma:          0.9,
		Kappa:          0.25,
		TauTerminate:   10,
		DeltaTerminate: 0.01,
	}
}

// Status is the terminal state of a fit run.
type Status int

const (
	// StatusConverged means the sampling distributions collapsed below eps
	// or the mean configuration's cost fell below eps.
	StatusConverged Status = iota + 1
	// StatusTerminated means the cost plateaued within DeltaTerminate for
	// TauTerminate iterations.
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Progress reports one optimizer iteration to an observer.
type Progress struct {
	Iteration      int
	MaxSigmaCoord  float64
	MaxSigmaRadius float64
	MuCost         float64
	EliteMin       float64
	EliteMax       float64
	Injected       bool
	Injections     int
}

// Result is the outcome of a fit run.
type Result struct {
	// Generators holds the best configuration found; nil entries mark
	// absent cells. Index i corresponds to label i+1.
	Generators []*geom.Weighted
	Cost       float64
	Iterations int
	Injections int
	Status     Status
}

// deviation is a per-cell standard deviation, one value per sampled
// component.
type deviation struct {
	coord geom.Vec3
	r     float64
}

// Fitter runs the cross-entropy search over one extraction result.
type Fitter struct {
	in     *extract.Interfaces
	eval   *cost.Evaluator
	runner *parallel.Runner
	params Params

	// Progress, when set, is called once per iteration after the
	// distribution update. It runs on the optimizer goroutine.
	Progress func(Progress)
}

// New returns a fitter over the extraction result. The evaluator must have
// been built from the same extraction.
func New(in *extract.Interfaces, eval *cost.Evaluator, runner *parallel.Runner, params Params) *Fitter {
	return &Fitter{in: in, eval: eval, runner: runner, params: params}
}

// Run executes the optimization to completion and returns the best
// generator set found.
func (f *Fitter) Run() (*Result, error) {
	p := f.params
	if p.Samples < 1 {
		return nil, fmt.Errorf("sample count %d must be positive", p.Samples)
	}
	if !(p.Rho > 0 && p.Rho <= 1) {
		return nil, fmt.Errorf("elite fraction %g must be in (0, 1]", p.Rho)
	}
	eliteSize := int(math.Ceil(p.Rho * float64(p.Samples)))

	cells := f.in.NumCells()
	mu := make([]*geom.Weighted, cells)
	sigma := make([]*deviation, cells)
	for i := 0; i < cells; i++ {
		if !f.in.Present(i) {
			continue
		}
		r := radiusByVolume(f.in.Volume(i))
		mu[i] = &geom.Weighted{Center: f.in.Centroid(i), R: r}
	}
	for i := 0; i < cells; i++ {
		if mu[i] == nil {
			continue
		}
		r := mu[i].R
		s := math.Sqrt(f.eval.ForCell(mu, i))
		if math.IsNaN(s) || s < r/20 {
			s = r / 20
		}
		sigma[i] = &deviation{coord: geom.Vec3{X: s, Y: s, Z: s}, r: s}
	}

	muCost := f.eval.Total(mu)
	monitoring.Logf("fit: %d cells, initial cost %.6f", cells, muCost)
	best := &bestRecord{gens: cloneGenerators(mu), cost: math.Inf(1)}
	hist := newHistory(maxInt(p.TauInject, p.TauTerminate))

	var (
		status       Status
		iter         int
		injections   int
		injectOK     = true
		prevInjected = math.Inf(1)
	)

	buf := make([]float32, p.Samples*cells*4)
	costs := make([]float64, p.Samples)

	for {
		sigC, sigR := maxSigma(sigma)
		if math.Max(sigC, sigR) <= eps {
			status = StatusConverged
			break
		}
		iter++

		if err := f.sampleBatch(iter, mu, sigma, buf, costs, best); err != nil {
			return nil, err
		}

		sorted := append([]float64(nil), costs...)
		sortCosts(sorted)
		threshold := sorted[eliteSize-1]
		eliteMin := sorted[0]
		monitoring.Debugf("fit iteration %d: maxSigma=(%.6f, %.6f) elite=[%.6f, %.6f]",
			iter, sigC, sigR, eliteMin, threshold)
		if math.IsInf(threshold, 0) || math.IsNaN(threshold) {
			return nil, fmt.Errorf("elite set threshold is not finite after iteration %d", iter)
		}

		f.refit(buf, costs, threshold, mu, sigma)

		// the refit mean almost always beats any individual sample
		muCost = f.eval.Total(mu)
		best.register(cloneGenerators(mu), muCost)
		hist.push(muCost)

		prog := Progress{
			Iteration:      iter,
			MaxSigmaCoord:  sigC,
			MaxSigmaRadius: sigR,
			MuCost:         muCost,
			EliteMin:       eliteMin,
			EliteMax:       threshold,
			Injections:     injections,
		}

		if muCost < eps {
			status = StatusConverged
			f.emit(prog)
			break
		}
		if _, flat := hist.plateau(p.TauTerminate, p.DeltaTerminate); flat {
			status = StatusTerminated
			f.emit(prog)
			break
		}

		if injectOK && p.DeltaInject > 0 && (p.Injections < 0 || injections < p.Injections) {
			if plateau, flat := hist.plateau(p.TauInject, p.DeltaInject); flat {
				if p.Gamma < plateau/prevInjected {
					monitoring.Logf("fit: skipping variance injection, cost only fell to %d%% of previous plateau; injections disabled",
						int(math.Round(100*plateau/prevInjected)))
					injectOK = false
				} else {
					prevInjected = plateau
					injections++
					monitoring.Logf("fit: injecting variance (%d/%s)", injections, injectionBudget(p.Injections))
					f.inject(mu, sigma)
					hist.clear()
					prog.Injected = true
					prog.Injections = injections
				}
			}
		}

		f.emit(prog)
	}

	monitoring.Logf("fit %s after %d iterations (cost=%.6f, injections=%d)",
		status, iter, best.cost, injections)
	return &Result{
		Generators: best.gens,
		Cost:       best.cost,
		Iterations: iter,
		Injections: injections,
		Status:     status,
	}, nil
}

// sampleBatch draws p.Samples configurations, storing each sample's
// generator components in its own float32 slot of buf and its cost in
// costs. Every sample derives its own random stream from (seed, iteration,
// index), so worker scheduling never changes the draws.
func (f *Fitter) sampleBatch(iter int, mu []*geom.Weighted, sigma []*deviation, buf []float32, costs []float64, best *bestRecord) error {
	cells := len(mu)
	return f.runner.Run(nil, f.params.Samples, func(_ *parallel.Token, n int) error {
		src := rand.NewPCG(f.params.Seed, uint64(iter)<<32|uint64(n))
		gens := make([]*geom.Weighted, cells)
		for i := 0; i < cells; i++ {
			if mu[i] == nil {
				continue
			}
			g := &geom.Weighted{
				Center: geom.Vec3{
					X: gauss(src, mu[i].Center.X, sigma[i].coord.X),
					Y: gauss(src, mu[i].Center.Y, sigma[i].coord.Y),
					Z: gauss(src, mu[i].Center.Z, sigma[i].coord.Z),
				},
				R: gaussNonNegative(src, mu[i].R, sigma[i].r),
			}
			gens[i] = g
			slot := buf[(n*cells+i)*4:]
			slot[0] = float32(g.Center.X)
			slot[1] = float32(g.Center.Y)
			slot[2] = float32(g.Center.Z)
			slot[3] = float32(g.R)
		}
		c := f.eval.Total(gens)
		costs[n] = c
		best.register(gens, c)
		return nil
	})
}

// refit replaces mu and sigma for every present cell with the elite set's
// sample mean and corrected standard deviation, component-wise. Statistics
// are computed in float64 from the reduced-precision sample buffer.
func (f *Fitter) refit(buf []float32, costs []float64, threshold float64, mu []*geom.Weighted, sigma []*deviation) {
	cells := len(mu)
	var xs, ys, zs, rs []float64
	for j := 0; j < cells; j++ {
		if mu[j] == nil {
			continue
		}
		xs, ys, zs, rs = xs[:0], ys[:0], zs[:0], rs[:0]
		for i := range costs {
			if costs[i] <= threshold {
				slot := buf[(i*cells+j)*4:]
				xs = append(xs, float64(slot[0]))
				ys = append(ys, float64(slot[1]))
				zs = append(zs, float64(slot[2]))
				rs = append(rs, float64(slot[3]))
			}
		}
		mx, sx := meanStddev(xs)
		my, sy := meanStddev(ys)
		mz, sz := meanStddev(zs)
		mr, sr := meanStddev(rs)
		mu[j] = &geom.Weighted{Center: geom.Vec3{X: mx, Y: my, Z: mz}, R: mr}
		sigma[j] = &deviation{coord: geom.Vec3{X: sx, Y: sy, Z: sz}, r: sr}
	}
}

// inject widens every present cell's sigma by kappa*sqrt(localCost), where
// localCost is the worst per-cell cost among the cell and its neighbors.
// Cells whose local cost is NaN keep their sigma.
func (f *Fitter) inject(mu []*geom.Weighted, sigma []*deviation) {
	cells := len(mu)
	perCell := make([]float64, cells)
	for j := 0; j < cells; j++ {
		if mu[j] != nil {
			perCell[j] = f.eval.ForCell(mu, j)
		} else {
			perCell[j] = math.NaN()
		}
	}
	local := append([]float64(nil), perCell...)
	for j := 0; j < cells; j++ {
		if mu[j] == nil {
			continue
		}
		for _, k := range f.eval.AdjacentIndices(j) {
			if local[j] < perCell[k] {
				local[j] = perCell[k]
			}
		}
	}
	for j := 0; j < cells; j++ {
		if sigma[j] == nil {
			continue
		}
		add := f.params.Kappa * math.Sqrt(local[j])
		if math.IsNaN(add) {
			continue
		}
		sigma[j].coord.X += add
		sigma[j].coord.Y += add
		sigma[j].coord.Z += add
		sigma[j].r += add
	}
}

func (f *Fitter) emit(p Progress) {
	if f.Progress != nil {
		f.Progress(p)
	}
}

// gauss draws one normal variate from the sample stream.
func gauss(src rand.Source, mean, sd float64) float64 {
	return distuv.Normal{Mu: mean, Sigma: sd, Src: src}.Rand()
}

// gaussNonNegative redraws until the variate is non-negative, giving a
// Gaussian truncated to [0, inf).
func gaussNonNegative(src rand.Source, mean, sd float64) float64 {
	for {
		if v := gauss(src, mean, sd); v >= 0 {
			return v
		}
	}
}

// sortCosts sorts ascending with NaN values last, so an undefined cost
// can never become the elite threshold.
func sortCosts(vals []float64) {
	sort.Slice(vals, func(i, j int) bool {
		if math.IsNaN(vals[i]) {
			return false
		}
		if math.IsNaN(vals[j]) {
			return true
		}
		return vals[i] < vals[j]
	})
}

// meanStddev returns the sample mean and the corrected (n-1) standard
// deviation.
func meanStddev(vals []float64) (float64, float64) {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(vals)-1))
}

// maxSigma returns the largest coordinate deviation and the largest radius
// deviation over all present cells.
func maxSigma(sigma []*deviation) (coord, radius float64) {
	for _, s := range sigma {
		if s == nil {
			continue
		}
		c := math.Max(s.coord.X, math.Max(s.coord.Y, s.coord.Z))
		if coord < c {
			coord = c
		}
		if radius < s.r {
			radius = s.r
		}
	}
	return coord, radius
}

// radiusByVolume returns the radius of the volume-equivalent sphere.
func radiusByVolume(volume float64) float64 {
	return math.Cbrt(volume * 3 / 4 / math.Pi)
}

func cloneGenerators(gens []*geom.Weighted) []*geom.Weighted {
	out := make([]*geom.Weighted, len(gens))
	for i, g := range gens {
		if g != nil {
			c := *g
			out[i] = &c
		}
	}
	return out
}

func injectionBudget(max int) string {
	if max < 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", max)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
