package tree

import (
	"fmt"
	"math"

	"cogentcore.org/core/base/ordmap"
	"github.com/chazu/canopy/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultTolerance is the distance under which two end points are
// considered to overlap.
const DefaultTolerance = 0.1

// Options configures a Registry.
type Options struct {
	// Tolerance used by NearEnd when a caller passes a non-positive one.
	Tolerance float64
	// HeightSegments is the number of curve spans per branch used when
	// sections are rebuilt.
	HeightSegments int
}

// DefaultOptions returns the registry defaults.
func DefaultOptions() Options {
	return Options{
		Tolerance:      DefaultTolerance,
		HeightSegments: DefaultHeightSegments,
	}
}

// MeshBuilder turns the live branches into a renderable mesh.
type MeshBuilder interface {
	Build(branches []*Branch) *kernel.Mesh
}

// Registry owns the live branches of a tree. It is either clean (the
// cached mesh reflects the branches) or dirty (a mutation happened and
// the mesh is rebuilt on the next Mesh call).
//
// A Registry is not safe for concurrent use.
type Registry struct {
	opts      Options
	branches  *ordmap.Map[ID, *Branch] // insertion order
	positions map[ID]r3.Vec
	targets   map[ID]r3.Vec // end points once every ancestor is fully grown
	deleted   map[ID]struct{}

	dirty bool
	mesh  *kernel.Mesh
}

// NewRegistry returns an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.HeightSegments < 1 {
		opts.HeightSegments = DefaultHeightSegments
	}
	r := &Registry{opts: opts}
	r.Reset()
	return r
}

// Options returns the registry configuration.
func (r *Registry) Options() Options { return r.opts }

// Reset discards every branch.
func (r *Registry) Reset() {
	r.branches = ordmap.New[ID, *Branch]()
	r.positions = make(map[ID]r3.Vec)
	r.targets = make(map[ID]r3.Vec)
	r.deleted = make(map[ID]struct{})
	r.mesh = nil
	r.dirty = true
}

// Insert adds b and records its end point. The parent, unless b is the
// trunk, must already be registered; b is appended to its children.
func (r *Registry) Insert(b *Branch) error {
	if b == nil {
		return fmt.Errorf("%w: nil branch", ErrInvalidArgument)
	}
	if _, ok := r.branches.ValueByKeyTry(b.id); ok {
		return fmt.Errorf("%w: %d", ErrDuplicate, b.id)
	}
	var parent *Branch
	if b.parent != NoParent {
		p, ok := r.live(b.parent)
		if !ok {
			return fmt.Errorf("%w: parent %d of branch %d", ErrNotFound, b.parent, b.id)
		}
		parent = p
	}
	if err := b.Rebuild(r.opts.HeightSegments); err != nil {
		return err
	}
	if parent != nil {
		parent.addChild(b.id)
	}
	r.branches.Add(b.id, b)
	r.positions[b.id] = b.End()
	r.targets[b.id] = r.finalEnd(b)
	r.invalidate()
	return nil
}

// finalEnd is where b ends once b and all its ancestors have finished
// growing. The parent's target must already be recorded.
func (r *Registry) finalEnd(b *Branch) r3.Vec {
	start := b.start
	if t, ok := r.targets[b.parent]; ok && b.parent != NoParent {
		start = t
	}
	return r3.Add(start, r3.Scale(b.length, b.dir))
}

// Target returns the end point branch id will have when it and every
// ancestor are fully grown. Without running animations it equals the
// branch's End.
func (r *Registry) Target(id ID) (r3.Vec, bool) {
	if _, ok := r.live(id); !ok {
		return r3.Vec{}, false
	}
	return r.targets[id], true
}

// Get returns the live branch with the given id.
func (r *Registry) Get(id ID) (*Branch, bool) {
	return r.live(id)
}

func (r *Registry) live(id ID) (*Branch, bool) {
	b, ok := r.branches.ValueByKeyTry(id)
	if !ok {
		return nil, false
	}
	if _, gone := r.deleted[id]; gone {
		return nil, false
	}
	return b, true
}

// Len returns the number of live branches.
func (r *Registry) Len() int {
	return r.branches.Len() - len(r.deleted)
}

// Branches returns the live branches in insertion order.
func (r *Registry) Branches() []*Branch {
	out := make([]*Branch, 0, r.Len())
	for _, kv := range r.branches.Order {
		if _, gone := r.deleted[kv.Key]; !gone {
			out = append(out, kv.Value)
		}
	}
	return out
}

// Positions returns a copy of the id → end point mapping of live branches.
func (r *Registry) Positions() map[ID]r3.Vec {
	out := make(map[ID]r3.Vec, len(r.positions))
	for id, p := range r.positions {
		if _, gone := r.deleted[id]; !gone {
			out[id] = p
		}
	}
	return out
}

// NearEnd returns the first live branch, in insertion order, whose
// fully grown end point (see Target) lies within tol of p. A
// non-positive tol uses the registry's tolerance.
func (r *Registry) NearEnd(p r3.Vec, tol float64) (ID, bool) {
	if tol <= 0 {
		tol = r.opts.Tolerance
	}
	for _, id := range r.branches.Keys() {
		if _, gone := r.deleted[id]; gone {
			continue
		}
		if r3.Norm(r3.Sub(r.targets[id], p)) < tol {
			return id, true
		}
	}
	return NoParent, false
}

// Descendants returns every branch below id, breadth first.
func (r *Registry) Descendants(id ID) []ID {
	var out []ID
	b, ok := r.branches.ValueByKeyTry(id)
	if !ok {
		return nil
	}
	queue := append([]ID(nil), b.children...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		if c, ok := r.branches.ValueByKeyTry(cur); ok {
			queue = append(queue, c.children...)
		}
	}
	return out
}

func (r *Registry) checkRemovable(id ID) error {
	if id == TrunkID {
		return fmt.Errorf("%w: cannot delete branch %d", ErrReserved, id)
	}
	if _, ok := r.live(id); !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Delete removes id and its whole subtree immediately and returns the
// number of branches removed. Deleting the trunk or an unknown id is a
// no-op that reports ErrReserved or ErrNotFound.
func (r *Registry) Delete(id ID) (int, error) {
	if err := r.checkRemovable(id); err != nil {
		return 0, err
	}
	subtree := append([]ID{id}, r.Descendants(id)...)
	r.purge(subtree)
	return len(subtree), nil
}

// MarkDeleted hides id and its subtree until the next Rebuild and
// returns the number of branches marked. Marked branches no longer
// appear in lookups.
func (r *Registry) MarkDeleted(id ID) (int, error) {
	if err := r.checkRemovable(id); err != nil {
		return 0, err
	}
	n := 0
	for _, d := range append([]ID{id}, r.Descendants(id)...) {
		if _, gone := r.deleted[d]; !gone {
			r.deleted[d] = struct{}{}
			n++
		}
	}
	r.invalidate()
	return n, nil
}

// IsDeleted reports whether id is marked deleted and awaiting Rebuild.
func (r *Registry) IsDeleted(id ID) bool {
	_, ok := r.deleted[id]
	return ok
}

// Rebuild drops every marked branch, recomputes the position mapping
// and invalidates the mesh. It returns the number of branches dropped.
func (r *Registry) Rebuild() int {
	ids := make([]ID, 0, len(r.deleted))
	for _, id := range r.branches.Keys() {
		if _, gone := r.deleted[id]; gone {
			ids = append(ids, id)
		}
	}
	r.purge(ids)
	r.deleted = make(map[ID]struct{})

	r.positions = make(map[ID]r3.Vec, r.branches.Len())
	r.targets = make(map[ID]r3.Vec, r.branches.Len())
	for _, kv := range r.branches.Order {
		r.positions[kv.Key] = kv.Value.End()
		r.targets[kv.Key] = r.finalEnd(kv.Value)
	}
	r.invalidate()
	return len(ids)
}

func (r *Registry) purge(ids []ID) {
	if len(ids) == 0 {
		return
	}
	gone := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}
	for _, id := range ids {
		b, ok := r.branches.ValueByKeyTry(id)
		if !ok {
			continue
		}
		if p, ok := r.branches.ValueByKeyTry(b.parent); ok {
			if _, dropped := gone[p.id]; !dropped {
				p.removeChild(id)
			}
		}
		r.branches.DeleteKey(id)
		delete(r.positions, id)
		delete(r.targets, id)
		delete(r.deleted, id)
	}
	r.invalidate()
}

// FindByTag returns the live branches carrying tag, in insertion order.
func (r *Registry) FindByTag(tag string) []*Branch {
	var out []*Branch
	for _, b := range r.Branches() {
		if b.HasTag(tag) {
			out = append(out, b)
		}
	}
	return out
}

// FindByCategory returns the live branches in category, in insertion order.
func (r *Registry) FindByCategory(category string) []*Branch {
	var out []*Branch
	for _, b := range r.Branches() {
		if b.category == category {
			out = append(out, b)
		}
	}
	return out
}

// Tag adds tag to branch id.
func (r *Registry) Tag(id ID, tag string) (bool, error) {
	b, ok := r.live(id)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return b.AddTag(tag), nil
}

// Untag removes tag from branch id.
func (r *Registry) Untag(id ID, tag string) (bool, error) {
	b, ok := r.live(id)
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return b.RemoveTag(tag), nil
}

// SetCategory sets the category of branch id.
func (r *Registry) SetCategory(id ID, category string) error {
	b, ok := r.live(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	b.SetCategory(category)
	return nil
}

// SetGrowth sets the growth progress of branch id, clamped to [0,1].
// The realised end point moves between start and target, every
// descendant's start follows its parent's new end, and all affected
// sections are rebuilt.
func (r *Registry) SetGrowth(id ID, progress float64) error {
	b, ok := r.live(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if math.IsNaN(progress) {
		return fmt.Errorf("%w: progress is NaN", ErrInvalidArgument)
	}
	b.progress = math.Max(0, math.Min(1, progress))
	if err := b.Rebuild(r.opts.HeightSegments); err != nil {
		return err
	}
	r.positions[id] = b.End()

	queue := []*Branch{b}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, cid := range p.children {
			c, ok := r.branches.ValueByKeyTry(cid)
			if !ok {
				continue
			}
			c.start = p.End()
			if err := c.Rebuild(r.opts.HeightSegments); err != nil {
				return err
			}
			r.positions[cid] = c.End()
			queue = append(queue, c)
		}
	}
	r.invalidate()
	return nil
}

// Dirty reports whether the cached mesh is stale.
func (r *Registry) Dirty() bool { return r.dirty }

func (r *Registry) invalidate() {
	r.dirty = true
}

// Mesh returns the mesh of the live branches, rebuilding it with
// builder only when the registry is dirty.
func (r *Registry) Mesh(builder MeshBuilder) *kernel.Mesh {
	if !r.dirty && r.mesh != nil {
		return r.mesh
	}
	r.mesh = builder.Build(r.Branches())
	r.dirty = false
	return r.mesh
}
