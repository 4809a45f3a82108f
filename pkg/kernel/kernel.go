// Package kernel defines the mesh handed to the renderer and the
// abstract solid kernel used to render a tree as one smooth surface.
// Implementations (sdfx) provide the solids behind this interface so
// the tessellator can swap backends without changing.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Primitives. Cone runs along +Z from the base (z=0) to the tip
	// (z=height); Sphere is centred on the origin.
	Cone(height, baseRadius, tipRadius float64) (Solid, error)
	Sphere(radius float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Orient(s Solid, dx, dy, dz float64) Solid // rotate +Z onto (dx,dy,dz)

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
