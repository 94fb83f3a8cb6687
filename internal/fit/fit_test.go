package fit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grain-metrics/laguerre/internal/cost"
	"github.com/grain-metrics/laguerre/internal/extract"
	"github.com/grain-metrics/laguerre/internal/geom"
	"github.com/grain-metrics/laguerre/internal/parallel"
	"github.com/grain-metrics/laguerre/internal/volume"
)

// rowFixture extracts a volume of equal 4x4x4 cells stacked along x, with
// interface planes at x = 3.5, 7.5, ...
func rowFixture(t *testing.T, cells int) (*extract.Interfaces, *cost.Evaluator) {
	t.Helper()
	vol, err := volume.New(4*cells, 4, 4)
	require.NoError(t, err)
	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4*cells; x++ {
				vol.Set(x, y, z, int32(x/4+1))
			}
		}
	}
	in, err := extract.Extract(vol, extract.Options{TestPointsPerFace: 10, Strictness: 0.5})
	require.NoError(t, err)
	return in, cost.New(in)
}

func TestFitTwoCellsConverges(t *testing.T) {
	in, eval := rowFixture(t, 2)
	params := DefaultParams()
	params.Samples = 400
	params.Seed = 7

	f := New(in, eval, parallel.NewRunner(4), params)
	res, err := f.Run()
	require.NoError(t, err)

	assert.Equal(t, StatusConverged, res.Status)
	assert.Greater(t, res.Iterations, 0)
	assert.Less(t, res.Iterations, 500)
	assert.Less(t, res.Cost, 1e-9)

	require.Len(t, res.Generators, 2)
	require.NotNil(t, res.Generators[0])
	require.NotNil(t, res.Generators[1])

	// the fitted separating plane must coincide with the voxel interface
	hs, err := geom.SeparatingHalfSpace(*res.Generators[0], *res.Generators[1])
	require.NoError(t, err)
	require.Greater(t, math.Abs(hs.Normal.X), 0.999)
	crossing := -(hs.Offset + 2*(hs.Normal.Y+hs.Normal.Z)) / hs.Normal.X
	assert.InDelta(t, 3.5, crossing, 1e-3)
}

func TestFitDeterministicAcrossWorkers(t *testing.T) {
	run := func(workers int) (*Result, []Progress) {
		in, eval := rowFixture(t, 2)
		params := DefaultParams()
		params.Samples = 150
		params.Seed = 42

		f := New(in, eval, parallel.NewRunner(workers), params)
		var trace []Progress
		f.Progress = func(p Progress) { trace = append(trace, p) }
		res, err := f.Run()
		require.NoError(t, err)
		return res, trace
	}

	resSeq, traceSeq := run(1)
	resPar, tracePar := run(4)

	require.Equal(t, traceSeq, tracePar)
	assert.Equal(t, resSeq.Cost, resPar.Cost)
	assert.Equal(t, resSeq.Status, resPar.Status)
	assert.Equal(t, resSeq.Iterations, resPar.Iterations)
	assert.Equal(t, resSeq.Generators, resPar.Generators)
}

func TestFitAbsentCellStaysAbsent(t *testing.T) {
	// cells 1 and 2 share an interface; cell 3 is separated by a wide
	// background gap and is dropped during extraction
	vol, err := volume.New(14, 4, 4)
	require.NoError(t, err)
	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 14; x++ {
				switch {
				case x < 4:
					vol.Set(x, y, z, 1)
				case x < 8:
					vol.Set(x, y, z, 2)
				case x >= 11:
					vol.Set(x, y, z, 3)
				}
			}
		}
	}
	in, err := extract.Extract(vol, extract.Options{TestPointsPerFace: 10, Strictness: 0.5})
	require.NoError(t, err)

	params := DefaultParams()
	params.Samples = 100
	params.Seed = 3
	f := New(in, cost.New(in), parallel.NewRunner(2), params)
	res, err := f.Run()
	require.NoError(t, err)

	require.Len(t, res.Generators, 3)
	assert.NotNil(t, res.Generators[0])
	assert.NotNil(t, res.Generators[1])
	assert.Nil(t, res.Generators[2])
}

func TestRunTerminationCheckedBeforeInjection(t *testing.T) {
	in, eval := rowFixture(t, 2)
	params := DefaultParams()
	params.Samples = 400
	params.Seed = 7
	params.TauTerminate = 3
	params.DeltaTerminate = 1e12
	params.TauInject = 3
	params.DeltaInject = 1e12

	f := New(in, eval, parallel.NewRunner(2), params)
	var trace []Progress
	f.Progress = func(p Progress) { trace = append(trace, p) }
	res, err := f.Run()
	require.NoError(t, err)

	// both plateau windows fill at iteration 3 under these tolerances; the
	// run must stop there without spending an injection
	assert.Equal(t, StatusTerminated, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 0, res.Injections)
	require.Len(t, trace, 3)
	assert.False(t, trace[2].Injected)
}

func TestRunInjectsOnPlateau(t *testing.T) {
	in, eval := rowFixture(t, 2)
	params := DefaultParams()
	params.Samples = 400
	params.Seed = 7
	params.TauInject = 3
	params.DeltaInject = 1e12
	// termination would need three bit-identical costs in a row, which
	// fresh Gaussian sampling never produces
	params.TauTerminate = 3
	params.DeltaTerminate = 0

	f := New(in, eval, parallel.NewRunner(2), params)
	var trace []Progress
	f.Progress = func(p Progress) { trace = append(trace, p) }
	res, err := f.Run()
	require.NoError(t, err)

	assert.Equal(t, StatusConverged, res.Status)
	assert.GreaterOrEqual(t, res.Injections, 1)

	// the first injection lands exactly when the window fills
	require.GreaterOrEqual(t, len(trace), 3)
	assert.Equal(t, 3, trace[2].Iteration)
	assert.True(t, trace[2].Injected)
	assert.Equal(t, 1, trace[2].Injections)
}

func TestInjectWidensSigmaByLocalCost(t *testing.T) {
	in, eval := rowFixture(t, 2)
	f := New(in, eval, parallel.NewRunner(1), DefaultParams())

	// bisector of these generators sits at x = 3.0, half a unit off the
	// interface plane, so both cells carry a per-cell cost of 0.25
	mu := []*geom.Weighted{
		{Center: geom.Vec3{X: 1, Y: 2, Z: 2}, R: 1},
		{Center: geom.Vec3{X: 5, Y: 2, Z: 2}, R: 1},
	}
	sigma := []*deviation{
		{coord: geom.Vec3{X: 0.1, Y: 0.1, Z: 0.1}, r: 0.1},
		{coord: geom.Vec3{X: 0.1, Y: 0.1, Z: 0.1}, r: 0.1},
	}
	f.inject(mu, sigma)

	// kappa * sqrt(0.25) = 0.125 added to every component
	for i := 0; i < 2; i++ {
		assert.InDelta(t, 0.225, sigma[i].coord.X, 1e-9)
		assert.InDelta(t, 0.225, sigma[i].coord.Y, 1e-9)
		assert.InDelta(t, 0.225, sigma[i].coord.Z, 1e-9)
		assert.InDelta(t, 0.225, sigma[i].r, 1e-9)
	}
}

func TestInjectSkipsUndefinedLocalCost(t *testing.T) {
	in, eval := rowFixture(t, 2)
	f := New(in, eval, parallel.NewRunner(1), DefaultParams())

	// the only neighbor is absent: cell 0's local cost is undefined and
	// its sigma must stay untouched
	mu := []*geom.Weighted{
		{Center: geom.Vec3{X: 1, Y: 2, Z: 2}, R: 1},
		nil,
	}
	sigma := []*deviation{
		{coord: geom.Vec3{X: 0.1, Y: 0.1, Z: 0.1}, r: 0.1},
		nil,
	}
	f.inject(mu, sigma)

	assert.InDelta(t, 0.1, sigma[0].coord.X, 1e-12)
	assert.InDelta(t, 0.1, sigma[0].r, 1e-12)
	assert.Nil(t, sigma[1])
}

func TestRunRejectsBadParams(t *testing.T) {
	in, eval := rowFixture(t, 2)

	params := DefaultParams()
	params.Samples = 0
	_, err := New(in, eval, parallel.NewRunner(1), params).Run()
	assert.Error(t, err)

	params = DefaultParams()
	params.Rho = 0
	_, err = New(in, eval, parallel.NewRunner(1), params).Run()
	assert.Error(t, err)

	params = DefaultParams()
	params.Rho = 1.5
	_, err = New(in, eval, parallel.NewRunner(1), params).Run()
	assert.Error(t, err)
}

func TestSortCostsNaNLast(t *testing.T) {
	vals := []float64{math.NaN(), 2, 1, math.NaN(), 3}
	sortCosts(vals)
	assert.Equal(t, []float64{1, 2, 3}, vals[:3])
	assert.True(t, math.IsNaN(vals[3]))
	assert.True(t, math.IsNaN(vals[4]))
}

func TestMeanStddev(t *testing.T) {
	mean, sd := meanStddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), sd, 1e-12)

	// single sample has an undefined corrected deviation
	mean, sd = meanStddev([]float64{3})
	assert.Equal(t, 3.0, mean)
	assert.True(t, math.IsNaN(sd))
}

func TestRadiusByVolume(t *testing.T) {
	assert.InDelta(t, 1, radiusByVolume(4*math.Pi/3), 1e-12)
	assert.InDelta(t, 3, radiusByVolume(36*math.Pi), 1e-12)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "converged", StatusConverged.String())
	assert.Equal(t, "terminated", StatusTerminated.String())
	assert.Equal(t, "unknown", Status(0).String())
}
