package manifold

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestOrientation(t *testing.T) {
	tests := []struct {
		name string
		dir  r3.Vec
	}{
		{"up", r3.Vec{Z: 1}},
		{"down", r3.Vec{Z: -2}},
		{"along x", r3.Vec{X: 3}},
		{"along y", r3.Vec{Y: 1}},
		{"diagonal", r3.Vec{X: 1, Y: 1, Z: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := orientation(tt.dir)
			if !ok {
				t.Fatal("orientation reported a zero direction")
			}
			want := r3.Unit(tt.dir)
			if r3.Norm(r3.Sub(m[2], want)) > 1e-9 {
				t.Errorf("Z maps to %v, want %v", m[2], want)
			}
			// The columns stay orthonormal and right handed.
			for i := 0; i < 3; i++ {
				if math.Abs(r3.Norm(m[i])-1) > 1e-9 {
					t.Errorf("column %d length %v", i, r3.Norm(m[i]))
				}
			}
			if r3.Norm(r3.Sub(r3.Cross(m[0], m[1]), m[2])) > 1e-9 {
				t.Errorf("columns %v are not right handed", m)
			}
		})
	}
}

func TestOrientationZero(t *testing.T) {
	if _, ok := orientation(r3.Vec{}); ok {
		t.Error("zero direction reported ok")
	}
}
