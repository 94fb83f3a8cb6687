package geom

import "math"

// epsRot is the parallelism tolerance for RotationFromTo; vectors whose dot
// product is within this of +-1 take the reflection-composition branch.
const epsRot = 1e-5

// Rotation is an orthonormal 3x3 matrix in row-major order.
type Rotation struct {
	m [3][3]float64
}

// Identity is the no-op rotation.
var Identity = Rotation{m: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}

// Apply returns the rotated vector R*v.
func (r Rotation) Apply(v Vec3) Vec3 {
	return Vec3{
		r.m[0][0]*v.X + r.m[0][1]*v.Y + r.m[0][2]*v.Z,
		r.m[1][0]*v.X + r.m[1][1]*v.Y + r.m[1][2]*v.Z,
		r.m[2][0]*v.X + r.m[2][1]*v.Y + r.m[2][2]*v.Z,
	}
}

// RotationFromTo builds the rotation that maps the unit vector from onto the
// unit vector to, after Moller and Hughes, "Efficiently Building a Matrix to
// Rotate One Vector to Another" (Journal of Graphics Tools 4(4), 1999). The
// near-parallel and near-antiparallel cases go through a composition of two
// reflections about a vector picked orthogonal to both inputs, which stays
// numerically stable where the general form's 1/(1+dot) blows up.
func RotationFromTo(from, to Vec3) Rotation {
	e := from.Dot(to)

	if almostEqual(math.Abs(e), 1, epsRot) {
		// pick the coordinate axis most nearly orthogonal to from
		var x Vec3
		ax, ay, az := math.Abs(from.X), math.Abs(from.Y), math.Abs(from.Z)
		switch {
		case ax < ay && ax < az:
			x = Vec3{X: 1}
		case ay <= ax && ay < az:
			x = Vec3{Y: 1}
		default:
			x = Vec3{Z: 1}
		}

		u := x.Sub(from)
		v := x.Sub(to)
		c1 := 2 / u.Dot(u)
		c2 := 2 / v.Dot(v)
		c3 := c1 * c2 * u.Dot(v)

		uc := [3]float64{u.X, u.Y, u.Z}
		vc := [3]float64{v.X, v.Y, v.Z}
		var r Rotation
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				r.m[i][j] = -c1*uc[i]*uc[j] - c2*vc[i]*vc[j] + c3*vc[i]*uc[j]
			}
			r.m[i][i] += 1
		}
		return r
	}

	v := from.Cross(to)
	h := 1 / (1 + e)
	hvx := h * v.X
	hvz := h * v.Z
	hvxy := hvx * v.Y
	hvxz := hvx * v.Z
	hvyz := hvz * v.Y

	return Rotation{m: [3][3]float64{
		{e + hvx*v.X, hvxy - v.Z, hvxz + v.Y},
		{hvxy + v.Z, e + h*v.Y*v.Y, hvyz - v.X},
		{hvxz - v.Y, hvyz + v.X, e + hvz*v.Z},
	}}
}
