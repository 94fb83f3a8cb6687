package geom

import (
	"errors"
	"fmt"
)

// ErrDegenerate reports a geometric construction that has no well-defined
// result, such as a separating plane between coincident centers or a
// zero-length normal vector.
var ErrDegenerate = errors.New("degenerate geometry")

// HalfSpace is the point set {x : Normal.x + Offset <= 0}. Normal always has
// unit length.
type HalfSpace struct {
	Normal Vec3
	Offset float64
}

// NewHalfSpace builds a half-space from a (not necessarily unit) normal and
// offset, normalizing both. Fails with ErrDegenerate when the normal's
// length is numerically zero.
func NewHalfSpace(normal Vec3, offset float64) (HalfSpace, error) {
	l := normal.Len()
	if almostZero(l, epsZero) {
		return HalfSpace{}, fmt.Errorf("half-space normal has length %g: %w", l, ErrDegenerate)
	}
	return HalfSpace{Normal: normal.Scale(1 / l), Offset: offset / l}, nil
}

// SignedDistance returns the signed distance from x to the boundary plane:
// negative inside the half-space, positive outside.
func (h HalfSpace) SignedDistance(x Vec3) float64 {
	return h.Normal.Dot(x) + h.Offset
}

// SeparatingHalfSpace constructs the half-space of a's Laguerre cell with
// respect to b: the boundary is the radical plane of the two weighted
// points, and points with lower power distance to a than to b satisfy
// Normal.x + Offset <= 0.
//
// Fails with ErrDegenerate when the centers (nearly) coincide, in which case
// no radical plane exists.
func SeparatingHalfSpace(a, b Weighted) (HalfSpace, error) {
	raw := b.Center.Sub(a.Center).Scale(2)
	l := raw.Len()
	if l < doubleEps {
		return HalfSpace{}, fmt.Errorf("generators coincide at (%g, %g, %g): %w",
			a.Center.X, a.Center.Y, a.Center.Z, ErrDegenerate)
	}
	offset := a.Center.Len2() - b.Center.Len2() + b.R*b.R - a.R*a.R
	return NewHalfSpace(raw.Scale(1/l), offset/l)
}
