package kernel

import "math"

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, uvs has 2 floats per vertex,
// branch has 1 float per vertex and indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	UVs      []float32 `json:"uvs"`      // [u0,v0, u1,v1, ...]
	Branch   []float32 `json:"branch"`   // per-vertex branch index
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	Name     string    `json:"name"`     // which part of the tree this came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Bounds returns the axis-aligned bounding box of the vertices. An
// empty mesh returns zero vectors.
func (m *Mesh) Bounds() (min, max [3]float64) {
	if m.IsEmpty() {
		return min, max
	}
	for i := 0; i < 3; i++ {
		min[i] = float64(m.Vertices[i])
		max[i] = float64(m.Vertices[i])
	}
	for v := 3; v < len(m.Vertices); v += 3 {
		for i := 0; i < 3; i++ {
			f := float64(m.Vertices[v+i])
			if f < min[i] {
				min[i] = f
			}
			if f > max[i] {
				max[i] = f
			}
		}
	}
	return min, max
}

// VertexNormals returns per-vertex normals for an indexed triangle list,
// averaging the area-weighted normals of the faces that share each
// vertex. Vertices on no triangle get a zero normal.
func VertexNormals(vertices []float32, indices []uint32) []float32 {
	normals := make([]float32, len(vertices))
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := indices[t]*3, indices[t+1]*3, indices[t+2]*3
		e1 := [3]float32{vertices[b] - vertices[a], vertices[b+1] - vertices[a+1], vertices[b+2] - vertices[a+2]}
		e2 := [3]float32{vertices[c] - vertices[a], vertices[c+1] - vertices[a+1], vertices[c+2] - vertices[a+2]}
		n := [3]float32{
			e1[1]*e2[2] - e1[2]*e2[1],
			e1[2]*e2[0] - e1[0]*e2[2],
			e1[0]*e2[1] - e1[1]*e2[0],
		}
		for _, v := range [3]uint32{a, b, c} {
			normals[v] += n[0]
			normals[v+1] += n[1]
			normals[v+2] += n[2]
		}
	}
	for i := 0; i+2 < len(normals); i += 3 {
		l := math.Sqrt(float64(normals[i]*normals[i] + normals[i+1]*normals[i+1] + normals[i+2]*normals[i+2]))
		if l > 0 {
			normals[i] = float32(float64(normals[i]) / l)
			normals[i+1] = float32(float64(normals[i+1]) / l)
			normals[i+2] = float32(float64(normals[i+2]) / l)
		}
	}
	return normals
}
