package geom

import "fmt"

// Plane is the point set {x : Normal.x = Dist} with a unit normal and a
// non-negative origin distance. The sign is canonical: a plane through the
// origin may keep either normal direction, every other plane has exactly one
// representation.
type Plane struct {
	Normal Vec3
	Dist   float64
}

// NewPlane builds a plane from a (not necessarily unit) normal and a signed
// origin distance, normalizing the normal and flipping the orientation if
// needed so that Dist >= 0. Fails with ErrDegenerate for a zero-length
// normal.
func NewPlane(normal Vec3, dist float64) (Plane, error) {
	l := normal.Len()
	if almostZero(l, epsZero) {
		return Plane{}, fmt.Errorf("plane normal has length %g: %w", l, ErrDegenerate)
	}
	n := normal.Scale(1 / l)
	d := dist / l
	if d < 0 {
		n = n.Scale(-1)
		d = -d
	}
	return Plane{Normal: n, Dist: d}, nil
}

// Translate returns the plane shifted by t, re-canonicalizing the sign.
func (p Plane) Translate(t Vec3) Plane {
	d := p.Dist + p.Normal.Dot(t)
	if d < 0 {
		return Plane{Normal: p.Normal.Scale(-1), Dist: -d}
	}
	return Plane{Normal: p.Normal, Dist: d}
}
