package grow

import (
	"fmt"
	"math"

	"github.com/chazu/canopy/pkg/tree"
	"gonum.org/v1/gonum/spatial/r3"
)

// LeafParams controls leaf placement on terminal branches.
type LeafParams struct {
	// Density is leaves per tenth of a unit of branch length. Zero
	// disables leaves.
	Density float64
	// Size is the edge length of a leaf. Zero disables leaves.
	Size float64
	// MinT is the lowest point along a branch a leaf may sit on,
	// as a fraction of the branch from its start.
	MinT float64
}

// DefaultLeafParams returns the standard foliage.
func DefaultLeafParams() LeafParams {
	return LeafParams{Density: 1, Size: 0.2, MinT: 0.3}
}

// Validate reports settings that cannot place leaves.
func (p LeafParams) Validate() error {
	switch {
	case p.Density < 0 || math.IsNaN(p.Density):
		return fmt.Errorf("%w: leaf density %v", ErrInvalidArgument, p.Density)
	case p.Size < 0 || math.IsNaN(p.Size):
		return fmt.Errorf("%w: leaf size %v", ErrInvalidArgument, p.Size)
	case !(p.MinT >= 0 && p.MinT <= 1):
		return fmt.Errorf("%w: leaf min t %v", ErrInvalidArgument, p.MinT)
	}
	return nil
}

// Enabled reports whether p places any leaves.
func (p LeafParams) Enabled() bool { return p.Density > 0 && p.Size > 0 }

// Leaf is one leaf sitting on a branch surface. Facing is the leaf's
// forward axis and Up its up axis; both are unit vectors.
type Leaf struct {
	Branch   tree.ID `json:"branch"`
	Position r3.Vec  `json:"position"`
	Facing   r3.Vec  `json:"facing"`
	Up       r3.Vec  `json:"up"`
	Size     float64 `json:"size"`
}

// LeafCount returns how many leaves a branch of the given length carries.
func (p LeafParams) LeafCount(length float64) int {
	return int(math.Round(length * p.Density * 10))
}

// Terminal returns the live branches without children, in insertion
// order. A lone trunk is not terminal.
func Terminal(reg *tree.Registry) []*tree.Branch {
	var out []*tree.Branch
	for _, b := range reg.Branches() {
		if b.ID() != tree.TrunkID && len(b.Children()) == 0 {
			out = append(out, b)
		}
	}
	return out
}

// PlaceLeaves scatters leaves over every fully grown terminal branch.
// Each branch draws from its own source derived from seed and its id, so
// a branch keeps its leaves while the rest of the tree changes. Branches
// still growing in get none.
func PlaceLeaves(reg *tree.Registry, seed int64, p LeafParams) []Leaf {
	if !p.Enabled() {
		return nil
	}
	var out []Leaf
	for _, b := range Terminal(reg) {
		if b.Progress() < 1 || len(b.Sections()) < 2 {
			continue
		}
		rnd := NewSource(leafSeed(seed, b.ID()))
		for range p.LeafCount(b.Length()) {
			out = append(out, placeLeaf(b, rnd, p))
		}
	}
	return out
}

// leafSeed mixes the tree seed with a branch id.
func leafSeed(seed int64, id tree.ID) int64 {
	return seed ^ int64(id)*0x5851F42D4C957F2D
}

func placeLeaf(b *tree.Branch, rnd Source, p LeafParams) Leaf {
	t := uniform(rnd, p.MinT, 1)
	angle := uniform(rnd, 0, 2*math.Pi)

	secs := b.Sections()
	f := t * float64(len(secs)-1)
	i := min(int(f), len(secs)-2)
	frac := f - float64(i)
	a, c := secs[i], secs[i+1]
	center := r3.Add(a.Position, r3.Scale(frac, r3.Sub(c.Position, a.Position)))
	tangent := lerpUnit(a.Frame.Tangent, c.Frame.Tangent, frac)
	normal := lerpUnit(a.Frame.Normal, c.Frame.Normal, frac)
	normal = r3.Unit(r3.Sub(normal, r3.Scale(r3.Dot(normal, tangent), tangent)))
	binormal := r3.Cross(tangent, normal)

	outward := r3.Add(r3.Scale(math.Cos(angle), normal), r3.Scale(math.Sin(angle), binormal))
	pos := r3.Add(center, r3.Scale(b.RadiusAt(t), outward))

	// Leaves point mostly outward, tipped toward the branch tip, with up
	// running along the branch.
	facing := lerpUnit(outward, tangent, 0.3)
	up := lerpUnit(tangent, outward, 0.3)
	up = r3.Unit(r3.Sub(up, r3.Scale(r3.Dot(up, facing), facing)))

	side := r3.Unit(r3.Cross(up, facing))
	pitch := uniform(rnd, -15, 15) * math.Pi / 180
	yaw := uniform(rnd, -30, 30) * math.Pi / 180
	roll := uniform(rnd, -15, 15) * math.Pi / 180
	facing, up = r3.Rotate(facing, pitch, side), r3.Rotate(up, pitch, side)
	facing = r3.Rotate(facing, yaw, up)
	up = r3.Rotate(up, roll, facing)

	return Leaf{Branch: b.ID(), Position: pos, Facing: r3.Unit(facing), Up: r3.Unit(up), Size: p.Size}
}

func lerpUnit(a, b r3.Vec, t float64) r3.Vec {
	v := r3.Add(r3.Scale(1-t, a), r3.Scale(t, b))
	if r3.Norm(v) == 0 {
		return a
	}
	return r3.Unit(v)
}
