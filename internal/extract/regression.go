package extract

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/grain-metrics/laguerre/internal/geom"
)

// ErrNoFit reports that a point cloud does not support a plane fit; callers
// fall back to centroid-only test points.
var ErrNoFit = errors.New("no plane fit")

// machEps is the double-precision machine epsilon used for the singular
// value rank tolerance.
const machEps = 2.220446049250313e-16

// fitPlane estimates the interface plane through a voxel cloud by total
// least squares: the cloud is centered, decomposed with an SVD, and the
// right-singular vector of the smallest singular value becomes the plane
// normal.
//
// The fit is rejected (ErrNoFit) if the cloud spans fewer than two
// independent directions, or if the smallest singular value exceeds ratio
// times the second-smallest, meaning the cloud looks more like an edge or a
// blob than a plane. A ratio of 1 never rejects on shape.
func fitPlane(points []geom.Vec3, ratio float64) (geom.Plane, error) {
	n := len(points)
	if n < 3 {
		return geom.Plane{}, fmt.Errorf("%w: need at least 3 points, got %d", ErrNoFit, n)
	}

	var centroid geom.Vec3
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Scale(1 / float64(n))

	m := mat.NewDense(n, 3, nil)
	for i, p := range points {
		d := p.Sub(centroid)
		m.Set(i, 0, d.X)
		m.Set(i, 1, d.Y)
		m.Set(i, 2, d.Z)
	}

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return geom.Plane{}, fmt.Errorf("%w: SVD failed to converge", ErrNoFit)
	}
	s := svd.Values(nil) // descending

	tol := float64(max(n, 3)) * s[0] * machEps
	if s[1] <= tol {
		return geom.Plane{}, fmt.Errorf("%w: points are collinear", ErrNoFit)
	}
	if s[1]*ratio < s[2] {
		return geom.Plane{}, fmt.Errorf("%w: singular values %g/%g exceed ratio %g", ErrNoFit, s[2], s[1], ratio)
	}

	var v mat.Dense
	svd.VTo(&v)
	normal := geom.Vec3{X: v.At(0, 2), Y: v.At(1, 2), Z: v.At(2, 2)}

	// the centroid lies on the TLS plane, which fixes the origin distance
	return geom.NewPlane(normal, normal.Dot(centroid))
}
