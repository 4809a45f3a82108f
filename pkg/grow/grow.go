// Package grow derives branches recursively from a parent using
// randomised angle, length and radius attenuation. New branches are
// registered in a tree.Registry and announced to observers once the
// whole operation has finished.
package grow

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/chazu/canopy/pkg/curve"
	"github.com/chazu/canopy/pkg/tree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Event announces a newly created branch.
type Event struct {
	ID         tree.ID `json:"id"`
	Parent     tree.ID `json:"parent"`
	Generation int     `json:"generation"`
	End        r3.Vec  `json:"end"`
}

// Observer receives creation events after a growth call completes.
type Observer func(Event)

// Grower grows branches into a registry.
type Grower struct {
	reg       *tree.Registry
	rnd       Source
	params    Params
	nextID    tree.ID
	observers []Observer
	log       *slog.Logger
}

// Option configures a Grower.
type Option func(*Grower)

// WithLogger sets the logger used for rejected candidates.
func WithLogger(l *slog.Logger) Option {
	return func(g *Grower) { g.log = l }
}

// WithObserver registers an observer at construction.
func WithObserver(o Observer) Option {
	return func(g *Grower) { g.observers = append(g.observers, o) }
}

// New returns a Grower writing into reg and drawing from rnd.
func New(reg *tree.Registry, rnd Source, params Params, opts ...Option) (*Grower, error) {
	if reg == nil || rnd == nil {
		return nil, fmt.Errorf("%w: registry and random source are required", ErrInvalidArgument)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	g := &Grower{
		reg:    reg,
		rnd:    rnd,
		params: params,
		nextID: tree.TrunkID + 1,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Observe registers an observer for subsequent growth calls.
func (g *Grower) Observe(o Observer) {
	g.observers = append(g.observers, o)
}

// Params returns the growth rules in use.
func (g *Grower) Params() Params { return g.params }

// NextID returns the id the next branch will receive.
func (g *Grower) NextID() tree.ID { return g.nextID }

// Reset restarts id assignment for a new tree drawn from rnd. The
// registry is not touched.
func (g *Grower) Reset(rnd Source) {
	if rnd != nil {
		g.rnd = rnd
	}
	g.nextID = tree.TrunkID + 1
}

// GrowTrunk creates the root branch at the origin pointing up.
func (g *Grower) GrowTrunk(generations int, length, radius float64) (*tree.Branch, error) {
	if generations < 0 || length < 0 || radius < 0 {
		return nil, fmt.Errorf("%w: trunk generations=%d length=%v radius=%v", ErrInvalidArgument, generations, length, radius)
	}
	b, err := tree.NewBranch(tree.Spec{
		ID:         tree.TrunkID,
		Parent:     tree.NoParent,
		Generation: generations,
		Direction:  curve.AxisY,
		Length:     length,
		BaseRadius: radius,
		TipRadius:  radius * g.params.Taper,
	})
	if err != nil {
		return nil, err
	}
	if err := g.reg.Insert(b); err != nil {
		return nil, err
	}
	g.emit([]Event{event(b)})
	return b, nil
}

// GrowChildren derives up to count children from parent and recurses
// into each accepted child with remaining-1 generations and a random
// child count. Candidates whose end point would overlap an existing end
// point are skipped without retry. It returns every branch created, in
// creation order.
func (g *Grower) GrowChildren(parent tree.ID, remaining, count int) ([]*tree.Branch, error) {
	p, ok := g.reg.Get(parent)
	if !ok {
		return nil, fmt.Errorf("grow: parent %d: %w", parent, tree.ErrNotFound)
	}
	var created []*tree.Branch
	err := g.growChildren(p, remaining, count, &created)
	g.emit(events(created))
	return created, err
}

func (g *Grower) growChildren(p *tree.Branch, remaining, count int, created *[]*tree.Branch) error {
	if remaining <= 0 {
		return nil
	}
	for i := 0; i < count; i++ {
		child, err := g.growOne(p)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		*created = append(*created, child)
		next := between(g.rnd, g.params.ChildMin, g.params.ChildMax)
		if err := g.growChildren(child, remaining-1, next, created); err != nil {
			return err
		}
	}
	return nil
}

// growOne draws a single candidate child of p and registers it. It
// returns nil without error when the candidate overlaps an existing
// branch end.
func (g *Grower) growOne(p *tree.Branch) (*tree.Branch, error) {
	cone := uniform(g.rnd, g.params.ConeMin, g.params.ConeMax) * math.Pi / 180
	azimuth := uniform(g.rnd, 0, g.params.AzimuthMax) * math.Pi / 180
	lengthFactor := uniform(g.rnd, g.params.LengthMin, g.params.LengthMax)
	radiusFactor := uniform(g.rnd, g.params.RadiusMin, g.params.RadiusMax)

	axis := p.Direction()
	dir := r3.Rotate(axis, cone, curve.Perpendicular(axis))
	dir = curve.Unit(r3.Rotate(dir, azimuth, axis), axis)

	// The overlap test uses where the parent will end once grown, so a
	// candidate drawn mid-animation is judged by its final position.
	start := p.End()
	base, ok := g.reg.Target(p.ID())
	if !ok {
		base = p.Target()
	}
	length := p.Length() * lengthFactor
	end := r3.Add(base, r3.Scale(length, dir))
	if id, hit := g.reg.NearEnd(end, g.params.Tolerance); hit {
		g.log.Debug("grow: rejected overlapping candidate", "parent", p.ID(), "near", id)
		return nil, nil
	}

	normal := curve.Perpendicular(dir)
	binormal := r3.Cross(dir, normal)
	b := g.params.Bend
	bend := r3.Scale(length, r3.Add(
		r3.Scale(uniform(g.rnd, -b, b), normal),
		r3.Scale(uniform(g.rnd, -b, b), binormal),
	))

	radius := p.BaseRadius() * radiusFactor
	child, err := tree.NewBranch(tree.Spec{
		ID:         g.nextID,
		Parent:     p.ID(),
		Generation: p.Generation() - 1,
		Start:      start,
		Direction:  dir,
		Length:     length,
		BaseRadius: radius,
		TipRadius:  radius * g.params.Taper,
		Bend:       bend,
	})
	if err != nil {
		return nil, err
	}
	if err := g.reg.Insert(child); err != nil {
		return nil, err
	}
	g.nextID++
	return child, nil
}

// Sprout grows up to n single branches from randomly chosen existing
// branches with generations left. The trunk is only chosen while no
// other branch can sprout. Each branch gets SproutAttempts tries before
// Sprout gives up.
func (g *Grower) Sprout(n int) ([]*tree.Branch, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: sprout count %d", ErrInvalidArgument, n)
	}
	var created []*tree.Branch
	defer func() { g.emit(events(created)) }()

	attempts := n * g.params.SproutAttempts
	for len(created) < n && attempts > 0 {
		attempts--
		candidates := sproutable(g.reg.Branches())
		if len(candidates) == 0 {
			return created, fmt.Errorf("grow: no branch to sprout from: %w", tree.ErrNotFound)
		}
		parent := candidates[g.rnd.Intn(len(candidates))]
		child, err := g.growOne(parent)
		if err != nil {
			return created, err
		}
		if child != nil {
			created = append(created, child)
		}
	}
	if len(created) < n {
		g.log.Debug("grow: sprout ran out of attempts", "want", n, "got", len(created))
	}
	return created, nil
}

// sproutable returns the branches a sprout may grow from. Branches at
// generation 0 have no budget left.
func sproutable(all []*tree.Branch) []*tree.Branch {
	var out []*tree.Branch
	var trunk *tree.Branch
	for _, b := range all {
		switch {
		case b.Generation() <= 0:
		case b.ID() == tree.TrunkID:
			trunk = b
		default:
			out = append(out, b)
		}
	}
	if len(out) == 0 && trunk != nil {
		return []*tree.Branch{trunk}
	}
	return out
}

func (g *Grower) emit(evs []Event) {
	for _, ev := range evs {
		for _, o := range g.observers {
			o(ev)
		}
	}
}

func event(b *tree.Branch) Event {
	return Event{ID: b.ID(), Parent: b.Parent(), Generation: b.Generation(), End: b.End()}
}

func events(bs []*tree.Branch) []Event {
	evs := make([]Event, len(bs))
	for i, b := range bs {
		evs[i] = event(b)
	}
	return evs
}
