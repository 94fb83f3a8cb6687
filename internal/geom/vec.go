// Package geom provides the 3D primitives the tessellation fitter is built
// on: vectors, weighted generator points, separating half-spaces, fitted
// planes and rotations. All math runs in float64; callers that store values
// in reduced precision convert at their own boundary.
package geom

import "math"

// doubleEps is the threshold under which a squared-length or vector norm is
// treated as exactly zero when constructing separating half-spaces.
const doubleEps = 1.11e-16

// epsZero is the tolerance for treating a normal vector as degenerate during
// normalization.
const epsZero = 1e-10

// Vec3 is an immutable 3D vector (or point).
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z}
}

// Scale returns s * v.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{s * v.X, s * v.Y, s * v.Z}
}

// Dot returns the scalar product v . w.
func (v Vec3) Dot(w Vec3) float64 {
	return v.X*w.X + v.Y*w.Y + v.Z*w.Z
}

// Cross returns the vector product v x w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		v.Y*w.Z - v.Z*w.Y,
		v.Z*w.X - v.X*w.Z,
		v.X*w.Y - v.Y*w.X,
	}
}

// Len returns the Euclidean norm of v.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

// Len2 returns the squared Euclidean norm of v.
func (v Vec3) Len2() float64 {
	return v.Dot(v)
}

// Weighted is a weighted generator point: the center and radius of one
// Laguerre cell.
type Weighted struct {
	Center Vec3
	R      float64
}

// PowerDistance returns the power distance |x-c|^2 - r^2 from x to the
// generator. The Laguerre cell of a generator is the locus where its power
// distance is minimal among all generators.
func (g Weighted) PowerDistance(x Vec3) float64 {
	return x.Sub(g.Center).Len2() - g.R*g.R
}

// almostEqual reports whether a and b agree within eps scaled by the larger
// magnitude of the operands (floored at 1).
func almostEqual(a, b, eps float64) bool {
	adjusted := eps * math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= adjusted
}

// almostZero reports whether a is within the scaled eps of zero.
func almostZero(a, eps float64) bool {
	return almostEqual(a, 0, eps)
}
