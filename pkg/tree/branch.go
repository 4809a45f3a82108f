// Package tree holds the branch model and the registry that owns the
// live branches of a generated tree.
//
// A Branch is a tapering segment with a start point, a growth direction
// and a full length. Its realised end point is start + direction ×
// length × progress, so an animation can stretch a branch toward its
// target without re-running growth. Cross sections sampled along a
// Catmull-Rom curve through the branch are rebuilt whenever the
// realised geometry changes.
package tree

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/chazu/canopy/pkg/curve"
	"gonum.org/v1/gonum/spatial/r3"
)

// ID identifies a branch. IDs are unique and never reused within a tree.
type ID int

const (
	// NoParent is the parent of the trunk.
	NoParent ID = 0
	// TrunkID is reserved for the root branch, which cannot be deleted.
	TrunkID ID = 1
)

// DefaultHeightSegments is the number of curve spans sampled per branch.
const DefaultHeightSegments = 10

var (
	ErrInvalidArgument = errors.New("tree: invalid argument")
	ErrDuplicate       = errors.New("tree: duplicate branch id")
	ErrReserved        = errors.New("tree: trunk is reserved")
	ErrNotFound        = errors.New("tree: branch not found")
)

// Spec describes a branch to create.
type Spec struct {
	ID         ID
	Parent     ID
	Generation int
	Start      r3.Vec
	Direction  r3.Vec
	Length     float64
	BaseRadius float64
	TipRadius  float64
	// Bend offsets the two interior curve control points. It is drawn
	// once at creation so rebuilding the sections is deterministic.
	Bend r3.Vec
}

// Section is one cross-section sample along a branch.
type Section struct {
	Position r3.Vec      `json:"position"`
	Frame    curve.Frame `json:"frame"`
	Radius   float64     `json:"radius"`
}

// Branch is a single tapering segment of the tree.
type Branch struct {
	id         ID
	parent     ID
	children   []ID
	generation int

	start    r3.Vec
	dir      r3.Vec
	length   float64
	progress float64

	baseRadius float64
	tipRadius  float64
	bend       r3.Vec
	sections   []Section

	tags     []string
	category string
}

// NewBranch validates spec and returns a fully grown branch with its
// sections built at DefaultHeightSegments.
func NewBranch(spec Spec) (*Branch, error) {
	if spec.ID <= NoParent {
		return nil, fmt.Errorf("%w: branch id must be positive, got %d", ErrInvalidArgument, spec.ID)
	}
	if spec.ID == TrunkID && spec.Parent != NoParent {
		return nil, fmt.Errorf("%w: trunk cannot have a parent", ErrInvalidArgument)
	}
	if spec.ID != TrunkID && spec.Parent == NoParent {
		return nil, fmt.Errorf("%w: branch %d has no parent", ErrInvalidArgument, spec.ID)
	}
	if bad(spec.Length) || spec.Length < 0 {
		return nil, fmt.Errorf("%w: length %v", ErrInvalidArgument, spec.Length)
	}
	if bad(spec.BaseRadius) || bad(spec.TipRadius) || spec.TipRadius < 0 || spec.TipRadius > spec.BaseRadius {
		return nil, fmt.Errorf("%w: radii base=%v tip=%v", ErrInvalidArgument, spec.BaseRadius, spec.TipRadius)
	}
	for _, v := range []r3.Vec{spec.Start, spec.Direction, spec.Bend} {
		if bad(v.X) || bad(v.Y) || bad(v.Z) {
			return nil, fmt.Errorf("%w: non-finite vector %v", ErrInvalidArgument, v)
		}
	}

	b := &Branch{
		id:         spec.ID,
		parent:     spec.Parent,
		generation: spec.Generation,
		start:      spec.Start,
		dir:        curve.Unit(spec.Direction, curve.AxisY),
		length:     spec.Length,
		progress:   1,
		baseRadius: spec.BaseRadius,
		tipRadius:  spec.TipRadius,
		bend:       spec.Bend,
	}
	if err := b.Rebuild(DefaultHeightSegments); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Branch) ID() ID              { return b.id }
func (b *Branch) Parent() ID          { return b.parent }
func (b *Branch) Generation() int     { return b.generation }
func (b *Branch) Start() r3.Vec       { return b.start }
func (b *Branch) Direction() r3.Vec   { return b.dir }
func (b *Branch) Length() float64     { return b.length }
func (b *Branch) Progress() float64   { return b.progress }
func (b *Branch) BaseRadius() float64 { return b.baseRadius }
func (b *Branch) TipRadius() float64  { return b.tipRadius }
func (b *Branch) Bend() r3.Vec        { return b.bend }
func (b *Branch) Category() string    { return b.category }

// End returns the realised end point.
func (b *Branch) End() r3.Vec {
	return r3.Add(b.start, r3.Scale(b.length*b.progress, b.dir))
}

// Target returns the end point of the fully grown branch.
func (b *Branch) Target() r3.Vec {
	return r3.Add(b.start, r3.Scale(b.length, b.dir))
}

// Children returns the ids of the direct children in creation order.
func (b *Branch) Children() []ID {
	return slices.Clone(b.children)
}

// Sections returns the cross-section samples from start to end.
func (b *Branch) Sections() []Section {
	return slices.Clone(b.sections)
}

// Tags returns the tags in the order they were added.
func (b *Branch) Tags() []string {
	return slices.Clone(b.tags)
}

// HasTag reports whether the branch carries tag.
func (b *Branch) HasTag(tag string) bool {
	return slices.Contains(b.tags, tag)
}

// AddTag adds tag and reports whether it was new. Empty tags are ignored.
func (b *Branch) AddTag(tag string) bool {
	if tag == "" || b.HasTag(tag) {
		return false
	}
	b.tags = append(b.tags, tag)
	return true
}

// RemoveTag removes tag and reports whether it was present.
func (b *Branch) RemoveTag(tag string) bool {
	i := slices.Index(b.tags, tag)
	if i < 0 {
		return false
	}
	b.tags = slices.Delete(b.tags, i, i+1)
	return true
}

// SetCategory sets the category label. An empty string clears it.
func (b *Branch) SetCategory(category string) {
	b.category = category
}

// RadiusAt returns the radius at parameter t along the branch, linear
// between base and tip.
func (b *Branch) RadiusAt(t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return b.baseRadius + (b.tipRadius-b.baseRadius)*t
}

// ControlPoints returns the four curve control points of the realised
// branch: start, the two bent interior points and the end.
func (b *Branch) ControlPoints() []r3.Vec {
	end := b.End()
	bend := r3.Scale(b.progress, b.bend)
	return []r3.Vec{
		b.start,
		r3.Add(curve.Lerp(b.start, end, 0.25), bend),
		r3.Add(curve.Lerp(b.start, end, 0.75), bend),
		end,
	}
}

// Rebuild resamples the cross sections at segments+1 evenly spaced
// points along the branch curve.
func (b *Branch) Rebuild(segments int) error {
	c, err := curve.New(b.ControlPoints())
	if err != nil {
		return fmt.Errorf("tree: branch %d: %w", b.id, err)
	}
	normal := curve.Perpendicular(b.dir)
	binormal := r3.Cross(b.dir, normal)
	frames, err := c.Frames(segments, normal, binormal, false)
	if err != nil {
		return fmt.Errorf("tree: branch %d: %w", b.id, err)
	}

	sections := make([]Section, len(frames))
	for i, f := range frames {
		t := float64(i) / float64(segments)
		sections[i] = Section{
			Position: c.Point(t),
			Frame:    f,
			Radius:   b.RadiusAt(t),
		}
	}
	b.sections = sections
	return nil
}

func (b *Branch) addChild(id ID) {
	b.children = append(b.children, id)
}

func (b *Branch) removeChild(id ID) {
	if i := slices.Index(b.children, id); i >= 0 {
		b.children = slices.Delete(b.children, i, i+1)
	}
}

func bad(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}
