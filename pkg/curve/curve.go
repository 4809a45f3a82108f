// Package curve evaluates the smooth spline a branch follows and the
// orthonormal frames used to orient its cross sections.
package curve

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidArgument is returned for malformed curve input.
var ErrInvalidArgument = errors.New("curve: invalid argument")

// MinPoints is the number of control points a curve needs.
const MinPoints = 4

// epsilon below which a vector is treated as zero length.
const epsilon = 1e-9

var (
	// AxisX, AxisY and AxisZ are the fallback directions used when a
	// computed direction degenerates.
	AxisX = r3.Vec{X: 1}
	AxisY = r3.Vec{Y: 1}
	AxisZ = r3.Vec{Z: 1}
)

// Frame is an orthonormal basis attached to a point on a curve.
type Frame struct {
	Tangent  r3.Vec `json:"tangent"`
	Normal   r3.Vec `json:"normal"`
	Binormal r3.Vec `json:"binormal"`
}

// CatmullRom is an open, uniform Catmull-Rom spline through a sequence
// of control points. The end segments use reflected phantom points so
// the curve starts exactly at the first point and ends at the last.
type CatmullRom struct {
	points []r3.Vec
}

// New returns a spline through points. At least MinPoints are required.
func New(points []r3.Vec) (*CatmullRom, error) {
	if len(points) < MinPoints {
		return nil, fmt.Errorf("%w: need at least %d control points, got %d", ErrInvalidArgument, MinPoints, len(points))
	}
	for i, p := range points {
		if !finite(p) {
			return nil, fmt.Errorf("%w: control point %d is not finite", ErrInvalidArgument, i)
		}
	}
	pts := make([]r3.Vec, len(points))
	copy(pts, points)
	return &CatmullRom{points: pts}, nil
}

// Points returns a copy of the control points.
func (c *CatmullRom) Points() []r3.Vec {
	pts := make([]r3.Vec, len(c.points))
	copy(pts, c.points)
	return pts
}

// segment locates t on the spline and returns the four points of the
// active span and the local parameter in [0,1].
func (c *CatmullRom) segment(t float64) (p0, p1, p2, p3 r3.Vec, w float64) {
	n := len(c.points)
	t = clamp01(t)
	p := float64(n-1) * t
	i := int(math.Floor(p))
	w = p - float64(i)
	if i >= n-1 {
		i = n - 2
		w = 1
	}

	p1 = c.points[i]
	p2 = c.points[i+1]
	if i > 0 {
		p0 = c.points[i-1]
	} else {
		p0 = r3.Sub(r3.Scale(2, c.points[0]), c.points[1])
	}
	if i+2 < n {
		p3 = c.points[i+2]
	} else {
		p3 = r3.Sub(r3.Scale(2, c.points[n-1]), c.points[n-2])
	}
	return p0, p1, p2, p3, w
}

// Point returns the position at t, clamped to [0,1].
func (c *CatmullRom) Point(t float64) r3.Vec {
	p0, p1, p2, p3, w := c.segment(t)
	w2 := w * w
	w3 := w2 * w

	a := r3.Scale(2, p1)
	b := r3.Scale(w, r3.Sub(p2, p0))
	cc := r3.Scale(w2, r3.Add(r3.Sub(r3.Scale(2, p0), r3.Scale(5, p1)), r3.Sub(r3.Scale(4, p2), p3)))
	d := r3.Scale(w3, r3.Add(r3.Sub(r3.Scale(3, p1), p0), r3.Sub(p3, r3.Scale(3, p2))))
	return r3.Scale(0.5, r3.Add(r3.Add(a, b), r3.Add(cc, d)))
}

// Tangent returns the unit tangent at t. If the derivative vanishes the
// chord between the first and last control point is used, and AxisY
// after that.
func (c *CatmullRom) Tangent(t float64) r3.Vec {
	p0, p1, p2, p3, w := c.segment(t)
	w2 := w * w

	b := r3.Sub(p2, p0)
	cc := r3.Scale(2*w, r3.Add(r3.Sub(r3.Scale(2, p0), r3.Scale(5, p1)), r3.Sub(r3.Scale(4, p2), p3)))
	d := r3.Scale(3*w2, r3.Add(r3.Sub(r3.Scale(3, p1), p0), r3.Sub(p3, r3.Scale(3, p2))))
	deriv := r3.Scale(0.5, r3.Add(b, r3.Add(cc, d)))

	chord := r3.Sub(c.points[len(c.points)-1], c.points[0])
	return Unit(deriv, Unit(chord, AxisY))
}

// Frames returns n+1 frames at evenly spaced parameters t = i/n. The
// first frame is built from normal and binormal re-orthogonalised
// against the starting tangent; every following frame is the previous
// one rotated by the turn between successive tangents, so the frames
// do not twist around the curve. Closed curves are not supported.
func (c *CatmullRom) Frames(n int, normal, binormal r3.Vec, closed bool) ([]Frame, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: frame count must be at least 1, got %d", ErrInvalidArgument, n)
	}
	if closed {
		return nil, fmt.Errorf("%w: closed curves are not supported", ErrInvalidArgument)
	}

	frames := make([]Frame, n+1)
	for i := range frames {
		frames[i].Tangent = c.Tangent(float64(i) / float64(n))
	}

	t0 := frames[0].Tangent
	n0 := r3.Sub(normal, r3.Scale(r3.Dot(normal, t0), t0))
	if r3.Norm(n0) < epsilon {
		n0 = Perpendicular(t0)
	}
	n0 = r3.Unit(n0)
	b0 := r3.Unit(r3.Cross(t0, n0))
	if r3.Dot(b0, binormal) < 0 {
		b0 = r3.Scale(-1, b0)
	}
	frames[0].Normal = n0
	frames[0].Binormal = b0

	for i := 1; i <= n; i++ {
		prev, cur := frames[i-1].Tangent, frames[i].Tangent
		nn, bb := frames[i-1].Normal, frames[i-1].Binormal

		axis := r3.Cross(prev, cur)
		if r3.Norm(axis) > epsilon {
			theta := math.Acos(clamp(r3.Dot(prev, cur), -1, 1))
			axis = r3.Unit(axis)
			nn = r3.Rotate(nn, theta, axis)
			bb = r3.Rotate(bb, theta, axis)
		}
		frames[i].Normal = nn
		frames[i].Binormal = bb
	}
	return frames, nil
}

// Perpendicular returns a unit vector orthogonal to v. It crosses v with
// +Y and falls back to +Z, then +X, when v is parallel to the axis tried.
func Perpendicular(v r3.Vec) r3.Vec {
	v = Unit(v, AxisY)
	for _, axis := range []r3.Vec{AxisY, AxisZ, AxisX} {
		p := r3.Cross(v, axis)
		if r3.Norm(p) > 1e-6 {
			return r3.Unit(p)
		}
	}
	return AxisX
}

// Unit normalises v, returning fallback when v has (near) zero length.
func Unit(v, fallback r3.Vec) r3.Vec {
	if r3.Norm(v) < epsilon {
		return fallback
	}
	return r3.Unit(v)
}

// Lerp interpolates linearly between a and b.
func Lerp(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func clamp01(x float64) float64 {
	return clamp(x, 0, 1)
}

func finite(v r3.Vec) bool {
	for _, f := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
