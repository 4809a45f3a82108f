// Package tessellate turns the branches of a tree into triangle meshes.
// Tube builds a lightweight tube mesh directly from branch geometry;
// Solid fuses the branches into one smooth surface through a geometry
// kernel.
package tessellate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/chazu/canopy/pkg/curve"
	"github.com/chazu/canopy/pkg/kernel"
	"github.com/chazu/canopy/pkg/tree"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultSegments is the radial segment count of a tube ring.
const DefaultSegments = 8

// Mode selects where tube rings are placed.
type Mode int

const (
	// ModeRings places one ring at each end of a branch.
	ModeRings Mode = iota
	// ModeSections places one ring at every cross-section sample.
	ModeSections
)

func (m Mode) String() string {
	switch m {
	case ModeRings:
		return "rings"
	case ModeSections:
		return "sections"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "rings":
		return ModeRings, nil
	case "sections":
		return ModeSections, nil
	}
	return ModeRings, fmt.Errorf("tessellate: unknown mesh mode %q", s)
}

// ring is one circle of tube vertices.
type ring struct {
	center   r3.Vec
	tangent  r3.Vec
	normal   r3.Vec
	binormal r3.Vec
	radius   float64
}

// Tube builds a tube mesh with one ring of Segments+1 vertices per
// ring position. The seam vertex is duplicated so UVs wrap cleanly.
type Tube struct {
	// Segments is the radial segment count. Values below 3, including
	// the zero value, cannot close a ring and build with DefaultSegments
	// instead; VerticesPerBranch reports the count actually used.
	Segments int
	Mode     Mode
	// NormalBlend tilts vertex normals from radial (0) toward the
	// branch tangent (1).
	NormalBlend float64
}

var _ tree.MeshBuilder = (*Tube)(nil)

// NewTube returns a two-ring tube builder with DefaultSegments.
func NewTube() *Tube {
	return &Tube{Segments: DefaultSegments}
}

// VerticesPerBranch returns how many vertices one branch contributes
// when it carries sections cross-section samples.
func (t *Tube) VerticesPerBranch(sections int) int {
	return t.ringCount(sections) * (t.segments() + 1)
}

func (t *Tube) segments() int {
	if t.Segments < 3 {
		return DefaultSegments
	}
	return t.Segments
}

func (t *Tube) ringCount(sections int) int {
	if t.Mode == ModeSections && sections >= 2 {
		return sections
	}
	return 2
}

// Build emits the tube mesh of branches in order. Every vertex carries
// the ordinal of its branch, which equals the vertex index divided by
// the vertices per branch.
func (t *Tube) Build(branches []*tree.Branch) *kernel.Mesh {
	m := &kernel.Mesh{Name: "tree"}
	n := t.segments()
	for bi, b := range branches {
		rings := t.rings(b)
		base := uint32(m.VertexCount())
		for ri, rg := range rings {
			v := float32(ri) / float32(len(rings)-1)
			for i := 0; i <= n; i++ {
				theta := 2 * math.Pi * float64(i) / float64(n)
				out := r3.Add(r3.Scale(math.Cos(theta), rg.normal), r3.Scale(math.Sin(theta), rg.binormal))
				pos := r3.Add(rg.center, r3.Scale(rg.radius, out))
				nrm := out
				if t.NormalBlend > 0 {
					nrm = curve.Unit(r3.Add(r3.Scale(1-t.NormalBlend, out), r3.Scale(t.NormalBlend, rg.tangent)), out)
				}
				m.Vertices = append(m.Vertices, float32(pos.X), float32(pos.Y), float32(pos.Z))
				m.Normals = append(m.Normals, float32(nrm.X), float32(nrm.Y), float32(nrm.Z))
				m.UVs = append(m.UVs, float32(i)/float32(n), v)
				m.Branch = append(m.Branch, float32(bi))
			}
		}
		stride := uint32(n + 1)
		for ri := 0; ri < len(rings)-1; ri++ {
			for i := uint32(0); i < uint32(n); i++ {
				a := base + uint32(ri)*stride + i
				c := a + stride
				// Counter-clockwise seen from outside.
				m.Indices = append(m.Indices, a, a+1, c, c, a+1, c+1)
			}
		}
	}
	return m
}

// rings returns the ring positions of b for the builder's mode. A
// branch with no extent falls back to +Y for its frame.
func (t *Tube) rings(b *tree.Branch) []ring {
	secs := b.Sections()
	if t.Mode == ModeSections && len(secs) >= 2 {
		out := make([]ring, len(secs))
		for i, s := range secs {
			tg := curve.Unit(s.Frame.Tangent, curve.AxisY)
			nm := s.Frame.Normal
			if r3.Norm(nm) < 1e-9 || math.Abs(r3.Dot(nm, tg)) > 1-1e-6 {
				nm = curve.Perpendicular(tg)
			}
			nm = r3.Unit(r3.Sub(nm, r3.Scale(r3.Dot(nm, tg), tg)))
			out[i] = ring{
				center:   s.Position,
				tangent:  tg,
				normal:   nm,
				binormal: r3.Cross(tg, nm),
				radius:   s.Radius,
			}
		}
		return out
	}

	start, end := b.Start(), b.End()
	tg := curve.Unit(r3.Sub(end, start), curve.AxisY)
	nm := curve.Perpendicular(tg)
	bn := r3.Cross(tg, nm)
	return []ring{
		{center: start, tangent: tg, normal: nm, binormal: bn, radius: b.BaseRadius()},
		{center: end, tangent: tg, normal: nm, binormal: bn, radius: b.TipRadius()},
	}
}

// Solid fuses branches into one surface: each branch becomes a tapered
// cone with a sphere capping its tip, and the union is tessellated by
// the kernel. Branches with no extent are skipped.
func Solid(branches []*tree.Branch, k kernel.Kernel) (*kernel.Mesh, error) {
	var acc kernel.Solid
	for _, b := range branches {
		d := r3.Sub(b.End(), b.Start())
		h := r3.Norm(d)
		if h < 1e-9 {
			continue
		}
		cone, err := k.Cone(h, b.BaseRadius(), b.TipRadius())
		if err != nil {
			return nil, fmt.Errorf("tessellate: branch %d: %w", b.ID(), err)
		}
		s := k.Orient(cone, d.X, d.Y, d.Z)
		s = k.Translate(s, b.Start().X, b.Start().Y, b.Start().Z)
		if b.TipRadius() > 0 {
			joint, err := k.Sphere(b.TipRadius())
			if err != nil {
				return nil, fmt.Errorf("tessellate: branch %d: %w", b.ID(), err)
			}
			e := b.End()
			s = k.Union(s, k.Translate(joint, e.X, e.Y, e.Z))
		}
		if acc == nil {
			acc = s
		} else {
			acc = k.Union(acc, s)
		}
	}
	if acc == nil {
		return &kernel.Mesh{Name: "tree"}, nil
	}
	m, err := k.ToMesh(acc)
	if err != nil {
		return nil, fmt.Errorf("tessellate: ToMesh failed: %w", err)
	}
	m.Name = "tree"
	return m, nil
}

// SolidBuilder adapts Solid to tree.MeshBuilder so a registry can cache
// the fused mesh. A kernel failure is logged and yields an empty mesh.
type SolidBuilder struct {
	Kernel kernel.Kernel
	Log    *slog.Logger
}

var _ tree.MeshBuilder = (*SolidBuilder)(nil)

// Build implements tree.MeshBuilder.
func (s *SolidBuilder) Build(branches []*tree.Branch) *kernel.Mesh {
	m, err := Solid(branches, s.Kernel)
	if err != nil {
		log := s.Log
		if log == nil {
			log = slog.Default()
		}
		log.Error("solid mesh failed, rendering nothing", "err", err)
		return &kernel.Mesh{Name: "tree"}
	}
	return m
}
