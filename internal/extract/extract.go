// Package extract turns a labeled volume into the geometric evidence the
// fitter optimizes against: for every pair of adjacent grains, a small set
// of test points approximating their shared interface, plus per-grain
// centroids and volumes. Interface voxels are found with a 26-neighborhood
// scan and condensed into test points by fitting a plane through them with
// orthogonal regression.
package extract

import (
	"fmt"
	"math"
	"sort"

	"github.com/grain-metrics/laguerre/internal/geom"
	"github.com/grain-metrics/laguerre/internal/monitoring"
	"github.com/grain-metrics/laguerre/internal/volume"
)

// DefaultTestPointsPerFace is the number of test points placed on each
// grain-pair interface when not overridden.
const DefaultTestPointsPerFace = 10

// DefaultStrictness is the default singular-value ratio above which a plane
// fit is rejected as too edge- or vertex-like.
const DefaultStrictness = 0.5

// Options controls test point extraction.
type Options struct {
	// TestPointsPerFace is the number of test points per interface, >= 1.
	TestPointsPerFace int

	// Strictness is the maximum allowed ratio of the smallest to the
	// second-smallest singular value of the interface voxel cloud. 1.0
	// accepts every fit; smaller values reject clouds without a clearly
	// dominant plane.
	Strictness float64
}

// Pair is a canonical unordered index pair: I < J always holds.
type Pair struct {
	I, J int
}

// MakePair builds the canonical pair for two distinct cell indices.
func MakePair(a, b int) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{I: a, J: b}
}

// Interfaces is the extraction result: the symmetric test-point table keyed
// by canonical pairs, and per-cell centroid/volume/presence bookkeeping.
type Interfaces struct {
	cells     int
	points    map[Pair][]geom.Vec3
	neighbors [][]int // sorted adjacent cell indices, per cell
	centroids []geom.Vec3
	volumes   []float64
	present   []bool
	perCell   []int // test points touching each cell
	total     int
}

// NumCells returns the number of labels (cells) in the volume, present or
// not.
func (in *Interfaces) NumCells() int { return in.cells }

// Present reports whether cell i takes part in the optimization.
func (in *Interfaces) Present(i int) bool { return in.present[i] }

// Centroid returns the voxel centroid of cell i. Only meaningful while
// Present(i).
func (in *Interfaces) Centroid(i int) geom.Vec3 { return in.centroids[i] }

// Volume returns the voxel count of cell i, zero when absent.
func (in *Interfaces) Volume(i int) float64 { return in.volumes[i] }

// TotalPoints returns the grand total of test points over all pairs.
func (in *Interfaces) TotalPoints() int { return in.total }

// CellPoints returns the number of test points on cell i's interfaces.
func (in *Interfaces) CellPoints(i int) int { return in.perCell[i] }

// Points returns the test points of the unordered pair (i, j), nil when the
// cells are not adjacent. The returned slice is shared; callers must not
// modify it.
func (in *Interfaces) Points(i, j int) []geom.Vec3 {
	return in.points[MakePair(i, j)]
}

// Neighbors returns the sorted indices of the cells adjacent to cell i. The
// returned slice is shared; callers must not modify it.
func (in *Interfaces) Neighbors(i int) []int {
	return in.neighbors[i]
}

// Extract scans the labeled volume and builds the test-point table.
//
// Cells that end up with no test points at all are marked absent with a
// diagnostic and dropped from the optimization. An entirely empty table is
// an error: without test points there is nothing to fit.
func Extract(vol *volume.Volume, opts Options) (*Interfaces, error) {
	if opts.TestPointsPerFace < 1 {
		return nil, fmt.Errorf("test points per face must be positive, got %d", opts.TestPointsPerFace)
	}
	if err := vol.Validate(); err != nil {
		return nil, err
	}

	cells := int(vol.MaxLabel())
	in := &Interfaces{
		cells:     cells,
		points:    make(map[Pair][]geom.Vec3),
		neighbors: make([][]int, cells),
		centroids: make([]geom.Vec3, cells),
		volumes:   make([]float64, cells),
		present:   make([]bool, cells),
		perCell:   make([]int, cells),
	}
	if cells == 0 {
		return nil, fmt.Errorf("no labeled regions in volume")
	}

	nx, ny, nz := vol.Dims()

	// first sweep: centroid and volume per label
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				label := vol.At(x, y, z)
				if label == 0 {
					continue
				}
				i := int(label) - 1
				in.centroids[i] = in.centroids[i].Add(geom.Vec3{X: float64(x), Y: float64(y), Z: float64(z)})
				in.volumes[i]++
			}
		}
	}
	for i := 0; i < cells; i++ {
		if in.volumes[i] > 0 {
			in.centroids[i] = in.centroids[i].Scale(1 / in.volumes[i])
		}
	}

	// second sweep: voxels whose 3x3x3 block holds exactly two distinct
	// positive labels sample the interface between those two cells
	pairVoxels := make(map[Pair][]geom.Vec3)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				a, b, n := blockLabels(vol, x, y, z, nx, ny, nz)
				if n != 2 {
					continue
				}
				p := MakePair(int(a)-1, int(b)-1)
				pairVoxels[p] = append(pairVoxels[p], geom.Vec3{X: float64(x), Y: float64(y), Z: float64(z)})
			}
		}
	}

	// fixed traversal order keeps extraction deterministic
	pairs := make([]Pair, 0, len(pairVoxels))
	for p := range pairVoxels {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].I != pairs[b].I {
			return pairs[a].I < pairs[b].I
		}
		return pairs[a].J < pairs[b].J
	})

	for _, p := range pairs {
		pts := testPointsForPair(pairVoxels[p], opts)
		in.points[p] = pts
		in.perCell[p.I] += len(pts)
		in.perCell[p.J] += len(pts)
		in.total += len(pts)
		in.neighbors[p.I] = append(in.neighbors[p.I], p.J)
		in.neighbors[p.J] = append(in.neighbors[p.J], p.I)
	}
	for i := range in.neighbors {
		sort.Ints(in.neighbors[i])
	}

	// cells with voxels but no interfaces cannot be fitted
	for i := 0; i < cells; i++ {
		in.present[i] = in.volumes[i] > 0
		if in.present[i] && in.perCell[i] == 0 {
			monitoring.Logf("extract: region with label %d is not adjacent to any other region, ignoring it", i+1)
			in.centroids[i] = geom.Vec3{}
			in.volumes[i] = 0
			in.present[i] = false
		}
	}

	if in.total <= 0 {
		return nil, fmt.Errorf("no test points detected in volume")
	}
	return in, nil
}

// blockLabels collects the distinct positive labels in the 3x3x3 block
// around (x, y, z), early-exiting past two. Returns the first two labels and
// the distinct count (capped at 3).
func blockLabels(vol *volume.Volume, x, y, z, nx, ny, nz int) (int32, int32, int) {
	var a, b int32
	n := 0
	for dz := -1; dz <= 1; dz++ {
		cz := z + dz
		if cz < 0 || cz >= nz {
			continue
		}
		for dy := -1; dy <= 1; dy++ {
			cy := y + dy
			if cy < 0 || cy >= ny {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				cx := x + dx
				if cx < 0 || cx >= nx {
					continue
				}
				l := vol.At(cx, cy, cz)
				if l <= 0 || l == a || l == b {
					continue
				}
				switch n {
				case 0:
					a = l
				case 1:
					b = l
				default:
					return a, b, 3
				}
				n++
			}
		}
	}
	return a, b, n
}

// testPointsForPair condenses one pair's interface voxels into test points:
// k points on a circle in the fitted interface plane, or the voxel centroid
// (repeated) when the fit fails or only one point is requested.
func testPointsForPair(voxels []geom.Vec3, opts Options) []geom.Vec3 {
	k := opts.TestPointsPerFace

	var centroid geom.Vec3
	for _, v := range voxels {
		centroid = centroid.Add(v)
	}
	centroid = centroid.Scale(1 / float64(len(voxels)))

	pts := make([]geom.Vec3, 0, k)
	if k > 1 {
		if plane, err := fitPlane(voxels, opts.Strictness); err == nil {
			rot := geom.RotationFromTo(geom.Vec3{Z: 1}, plane.Normal)
			radius := math.Sqrt(float64(len(voxels))) / 4
			for m := 0; m < k; m++ {
				phi := 2 * math.Pi / float64(k) * float64(m)
				c := geom.Vec3{X: radius * math.Cos(phi), Y: radius * math.Sin(phi)}
				pts = append(pts, rot.Apply(c).Add(centroid))
			}
		}
		for len(pts) < k {
			pts = append(pts, centroid)
		}
	} else {
		pts = append(pts, centroid)
	}
	return pts
}
