package manifold

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// orientation returns the images of the X, Y and Z axes under the
// rotation taking +Z onto d. It reports false for a zero direction.
func orientation(d r3.Vec) ([3]r3.Vec, bool) {
	n := r3.Norm(d)
	if n == 0 {
		return [3]r3.Vec{}, false
	}
	d = r3.Scale(1/n, d)
	z := r3.Vec{Z: 1}
	axis := r3.Cross(z, d)
	angle := math.Acos(math.Max(-1, math.Min(1, r3.Dot(z, d))))
	if r3.Norm(axis) < 1e-12 {
		if d.Z > 0 {
			return [3]r3.Vec{{X: 1}, {Y: 1}, z}, true
		}
		// Antiparallel: half turn about X.
		axis, angle = r3.Vec{X: 1}, math.Pi
	}
	rot := r3.NewRotation(angle, r3.Unit(axis))
	return [3]r3.Vec{rot.Rotate(r3.Vec{X: 1}), rot.Rotate(r3.Vec{Y: 1}), rot.Rotate(z)}, true
}
