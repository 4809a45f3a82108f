package kernel

import "testing"

// --- Mesh helper method tests ---

func TestMeshVertexCount(t *testing.T) {
	tests := []struct {
		name     string
		vertices []float32
		want     int
	}{
		{"empty", nil, 0},
		{"one vertex", []float32{1, 2, 3}, 1},
		{"four vertices", []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Vertices: tt.vertices}
			if got := m.VertexCount(); got != tt.want {
				t.Errorf("VertexCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshTriangleCount(t *testing.T) {
	tests := []struct {
		name    string
		indices []uint32
		want    int
	}{
		{"empty", nil, 0},
		{"one triangle", []uint32{0, 1, 2}, 1},
		{"two triangles", []uint32{0, 1, 2, 2, 3, 0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Indices: tt.indices}
			if got := m.TriangleCount(); got != tt.want {
				t.Errorf("TriangleCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshIsEmpty(t *testing.T) {
	if m := (&Mesh{}); !m.IsEmpty() {
		t.Error("IsEmpty() = false for empty mesh, want true")
	}
	if m := (&Mesh{Vertices: []float32{1, 2, 3}}); m.IsEmpty() {
		t.Error("IsEmpty() = true for non-empty mesh, want false")
	}
}

func TestMeshBounds(t *testing.T) {
	tests := []struct {
		name     string
		vertices []float32
		min, max [3]float64
	}{
		{"empty", nil, [3]float64{}, [3]float64{}},
		{"single", []float32{1, 2, 3}, [3]float64{1, 2, 3}, [3]float64{1, 2, 3}},
		{"spread", []float32{-1, 0, 2, 3, -4, 1, 0, 5, -2}, [3]float64{-1, -4, -2}, [3]float64{3, 5, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Vertices: tt.vertices}
			min, max := m.Bounds()
			if min != tt.min || max != tt.max {
				t.Errorf("Bounds() = %v, %v, want %v, %v", min, max, tt.min, tt.max)
			}
		})
	}
}

// --- Compile-time interface check with a stub kernel ---

type stubSolid struct {
	minBB, maxBB [3]float64
}

func (s *stubSolid) BoundingBox() (min, max [3]float64) {
	return s.minBB, s.maxBB
}

// stubKernel proves the interface is satisfiable.
type stubKernel struct{}

func (k *stubKernel) Cone(height, baseRadius, tipRadius float64) (Solid, error) {
	r := baseRadius
	if tipRadius > r {
		r = tipRadius
	}
	return &stubSolid{
		minBB: [3]float64{-r, -r, 0},
		maxBB: [3]float64{r, r, height},
	}, nil
}

func (k *stubKernel) Sphere(radius float64) (Solid, error) {
	return &stubSolid{
		minBB: [3]float64{-radius, -radius, -radius},
		maxBB: [3]float64{radius, radius, radius},
	}, nil
}

func (k *stubKernel) Union(a, _ Solid) Solid                   { return a }
func (k *stubKernel) Translate(s Solid, _, _, _ float64) Solid { return s }
func (k *stubKernel) Orient(s Solid, _, _, _ float64) Solid    { return s }

func (k *stubKernel) ToMesh(_ Solid) (*Mesh, error) {
	return &Mesh{}, nil
}

var _ Solid = (*stubSolid)(nil)
var _ Kernel = (*stubKernel)(nil)

func TestStubKernelConeBoundingBox(t *testing.T) {
	var k Kernel = &stubKernel{}
	s, err := k.Cone(2, 0.5, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	min, max := s.BoundingBox()
	if min != [3]float64{-0.5, -0.5, 0} {
		t.Errorf("Cone min = %v, want [-0.5 -0.5 0]", min)
	}
	if max != [3]float64{0.5, 0.5, 2} {
		t.Errorf("Cone max = %v, want [0.5 0.5 2]", max)
	}
}

func TestVertexNormals(t *testing.T) {
	// Two triangles of a unit square in the z=0 plane, wound counterclockwise.
	vertices := []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 5, 5, 5}
	indices := []uint32{0, 1, 2, 0, 2, 3}
	got := VertexNormals(vertices, indices)
	if len(got) != len(vertices) {
		t.Fatalf("len = %d, want %d", len(got), len(vertices))
	}
	for v := 0; v < 4; v++ {
		n := got[v*3 : v*3+3]
		if n[0] != 0 || n[1] != 0 || n[2] != 1 {
			t.Errorf("vertex %d normal = %v, want [0 0 1]", v, n)
		}
	}
	// Unreferenced vertex keeps a zero normal.
	if n := got[12:15]; n[0] != 0 || n[1] != 0 || n[2] != 0 {
		t.Errorf("unused vertex normal = %v, want zero", n)
	}
}
