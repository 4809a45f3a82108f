// Package export produces a read-only record of a grown tree for
// external exporters.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/chazu/canopy/pkg/grow"
	"github.com/chazu/canopy/pkg/tree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Meta describes where a report came from.
type Meta struct {
	Name    string    `json:"name,omitempty"`
	Seed    int64     `json:"seed"`
	Created time.Time `json:"created"`
}

// Branch is the exported view of one branch.
type Branch struct {
	ID         tree.ID    `json:"id"`
	Parent     tree.ID    `json:"parent"`
	Generation int        `json:"generation"`
	Start      [3]float64 `json:"start"`
	End        [3]float64 `json:"end"`
	Length     float64    `json:"length"`
	Progress   float64    `json:"progress"`
	BaseRadius float64    `json:"baseRadius"`
	TipRadius  float64    `json:"tipRadius"`
	Children   []tree.ID  `json:"children"`
	Tags       []string   `json:"tags"`
	Category   string     `json:"category,omitempty"`
}

// Stats summarises the tree.
type Stats struct {
	Branches int `json:"branches"`
	// Tips counts branches without children.
	Tips        int            `json:"tips"`
	Leaves      int            `json:"leaves"`
	Generations int            `json:"generations"`
	TrunkLength float64        `json:"trunkLength"`
	TrunkRadius float64        `json:"trunkRadius"`
	TotalLength float64        `json:"totalLength"`
	Min         [3]float64     `json:"min"`
	Max         [3]float64     `json:"max"`
	Tags        map[string]int `json:"tags"`
	Categories  map[string]int `json:"categories"`
}

// Leaf is the exported view of one leaf.
type Leaf struct {
	Branch   tree.ID    `json:"branch"`
	Position [3]float64 `json:"position"`
	Facing   [3]float64 `json:"facing"`
	Up       [3]float64 `json:"up"`
	Size     float64    `json:"size"`
}

// Report is the full export record.
type Report struct {
	Meta     Meta     `json:"meta"`
	Stats    Stats    `json:"stats"`
	Branches []Branch `json:"branches"`
	Leaves   []Leaf   `json:"leaves"`
}

// FromRegistry snapshots the live branches of reg in insertion order.
func FromRegistry(reg *tree.Registry, meta Meta) *Report {
	bs := reg.Branches()
	r := &Report{
		Meta:     meta,
		Branches: make([]Branch, 0, len(bs)),
		Leaves:   []Leaf{},
		Stats: Stats{
			Branches:   len(bs),
			Tags:       make(map[string]int),
			Categories: make(map[string]int),
		},
	}
	if len(bs) == 0 {
		return r
	}

	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	minGen, maxGen := math.MaxInt, math.MinInt
	for _, b := range bs {
		r.Branches = append(r.Branches, branch(b))

		st := &r.Stats
		st.TotalLength += b.Length() * b.Progress()
		if len(b.Children()) == 0 {
			st.Tips++
		}
		for _, t := range b.Tags() {
			st.Tags[t]++
		}
		if c := b.Category(); c != "" {
			st.Categories[c]++
		}
		if b.ID() == tree.TrunkID {
			st.TrunkLength = b.Length()
			st.TrunkRadius = b.BaseRadius()
		}
		minGen = min(minGen, b.Generation())
		maxGen = max(maxGen, b.Generation())
		for _, p := range []r3.Vec{b.Start(), b.End()} {
			lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
			hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
		}
	}
	r.Stats.Generations = maxGen - minGen + 1
	r.Stats.Min = vec(lo)
	r.Stats.Max = vec(hi)
	return r
}

func branch(b *tree.Branch) Branch {
	children := b.Children()
	if children == nil {
		children = []tree.ID{}
	}
	tags := b.Tags()
	if tags == nil {
		tags = []string{}
	}
	return Branch{
		ID:         b.ID(),
		Parent:     b.Parent(),
		Generation: b.Generation(),
		Start:      vec(b.Start()),
		End:        vec(b.End()),
		Length:     b.Length(),
		Progress:   b.Progress(),
		BaseRadius: b.BaseRadius(),
		TipRadius:  b.TipRadius(),
		Children:   children,
		Tags:       tags,
		Category:   b.Category(),
	}
}

// AddLeaves records leaves placed on the reported tree.
func (r *Report) AddLeaves(leaves []grow.Leaf) {
	for _, l := range leaves {
		r.Leaves = append(r.Leaves, Leaf{
			Branch:   l.Branch,
			Position: vec(l.Position),
			Facing:   vec(l.Facing),
			Up:       vec(l.Up),
			Size:     l.Size,
		})
	}
	r.Stats.Leaves = len(r.Leaves)
}

func vec(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// ByRadius returns the branches thickest first, the order a flat
// diagram draws them in.
func (r *Report) ByRadius() []Branch {
	out := slices.Clone(r.Branches)
	slices.SortStableFunc(out, func(a, b Branch) int {
		switch {
		case a.BaseRadius > b.BaseRadius:
			return -1
		case a.BaseRadius < b.BaseRadius:
			return 1
		}
		return 0
	})
	return out
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
