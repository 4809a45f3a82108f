// Package session drives one interactive tree: it owns the registry,
// the grower and any running growth animations, and gates the single
// outstanding oracle request.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/canopy/pkg/export"
	"github.com/chazu/canopy/pkg/grow"
	"github.com/chazu/canopy/pkg/kernel"
	"github.com/chazu/canopy/pkg/oracle"
	"github.com/chazu/canopy/pkg/tessellate"
	"github.com/chazu/canopy/pkg/tree"
)

var (
	// ErrBusy is returned when a query arrives while another is in flight.
	ErrBusy = errors.New("session: request already in flight")
	// ErrReset is returned when the tree was reset while a query waited
	// on the oracle. Its result is dropped.
	ErrReset = errors.New("session: tree reset during request")
)

// Options configures a Session.
type Options struct {
	Seed            int64
	Generations     int
	Length          float64
	Radius          float64
	InitialChildren int
	Params          grow.Params
	Registry        tree.Options
	// Leaves places foliage on terminal branches. The zero value grows
	// a bare tree.
	Leaves grow.LeafParams
	// Animation is how long a sprouted branch takes to grow in. Zero
	// inserts branches fully grown.
	Animation time.Duration
	Builder   tree.MeshBuilder
	Oracle    oracle.Oracle
	Logger    *slog.Logger
}

// DefaultOptions returns a simulated session with a tube mesh.
func DefaultOptions() Options {
	return Options{
		Seed:            12345,
		Generations:     3,
		Length:          1.5,
		Radius:          0.12,
		InitialChildren: 3,
		Params:          grow.DefaultParams(),
		Registry:        tree.DefaultOptions(),
		Leaves:          grow.DefaultLeafParams(),
		Animation:       2 * time.Second,
		Builder:         tessellate.NewTube(),
		Oracle:          oracle.NewSimulated(12345),
	}
}

// Session is safe for concurrent use; every mutation is serialised.
type Session struct {
	mu    sync.Mutex
	busy  atomic.Bool
	opts  Options
	log   *slog.Logger
	reg   *tree.Registry
	grow  *grow.Grower
	anims []*grow.Animation
	epoch uint64
}

// New creates a session and grows its initial tree.
func New(opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Builder == nil {
		opts.Builder = tessellate.NewTube()
	}
	if opts.Oracle == nil {
		opts.Oracle = oracle.NewSimulated(opts.Seed)
	}
	if err := opts.Leaves.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if !opts.Leaves.Enabled() {
		opts.Logger.Info("session: leaves disabled, growing a bare tree")
	}
	s := &Session{opts: opts, log: opts.Logger, reg: tree.NewRegistry(opts.Registry)}
	g, err := grow.New(s.reg, grow.NewSource(opts.Seed), opts.Params, grow.WithLogger(opts.Logger))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.grow = g
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Observe registers o for every branch the session grows.
func (s *Session) Observe(o grow.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grow.Observe(o)
}

// Reset discards the tree, abandons running animations, reseeds and
// grows the initial tree again. A query waiting on the oracle will
// fail with ErrReset.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.anims {
		a.Abandon()
	}
	s.anims = nil
	s.epoch++
	s.reg.Reset()
	s.grow.Reset(grow.NewSource(s.opts.Seed))

	if _, err := s.grow.GrowTrunk(s.opts.Generations, s.opts.Length, s.opts.Radius); err != nil {
		return fmt.Errorf("session: reset: %w", err)
	}
	if _, err := s.grow.GrowChildren(tree.TrunkID, s.opts.Generations, s.opts.InitialChildren); err != nil {
		return fmt.Errorf("session: reset: %w", err)
	}
	s.log.Debug("session: reset", "seed", s.opts.Seed, "branches", s.reg.Len())
	return nil
}

// GrowFromQuery asks the oracle how many results query has and sprouts
// one branch per result. New branches start collapsed and grow in over
// the animation duration. Only one query runs at a time; a second call
// fails fast with ErrBusy.
func (s *Session) GrowFromQuery(ctx context.Context, query string) ([]tree.ID, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	n, err := s.opts.Oracle.Results(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("session: query %q: %w", query, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil, ErrReset
	}
	created, err := s.grow.Sprout(n)
	ids := make([]tree.ID, 0, len(created))
	for _, b := range created {
		ids = append(ids, b.ID())
		if s.opts.Animation > 0 {
			a, aerr := grow.NewAnimation(s.reg, b.ID(), s.opts.Animation)
			if aerr != nil {
				err = errors.Join(err, aerr)
				continue
			}
			s.anims = append(s.anims, a)
		}
	}
	s.log.Debug("session: grew from query", "query", query, "results", n, "created", len(ids))
	if err != nil {
		return ids, fmt.Errorf("session: %w", err)
	}
	return ids, nil
}

// Busy reports whether a query is in flight.
func (s *Session) Busy() bool { return s.busy.Load() }

// Tick advances every running animation by dt and returns how many are
// still running. Animations whose branch was deleted end with an error
// wrapping tree.ErrNotFound; the others keep going.
func (s *Session) Tick(dt time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	running := s.anims[:0]
	for _, a := range s.anims {
		done, err := a.Tick(dt)
		if err != nil {
			errs = append(errs, err)
		}
		if !done {
			running = append(running, a)
		}
	}
	clear(s.anims[len(running):])
	s.anims = running
	return len(s.anims), errors.Join(errs...)
}

// Animating reports whether any branch is still growing in.
func (s *Session) Animating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.anims) > 0
}

// Delete removes id and its descendants and returns how many branches
// were removed. The trunk cannot be deleted.
func (s *Session) Delete(id tree.ID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.reg.Delete(id)
	if err != nil {
		s.log.Debug("session: delete refused", "id", id, "err", err)
		return 0, err
	}
	return n, nil
}

// Tag adds tag to branch id and reports whether it was new.
func (s *Session) Tag(id tree.ID, tag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Tag(id, tag)
}

// Untag removes tag from branch id and reports whether it was present.
func (s *Session) Untag(id tree.ID, tag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Untag(id, tag)
}

// SetCategory sets the category of branch id.
func (s *Session) SetCategory(id tree.ID, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.SetCategory(id, category)
}

// FindByTag returns the ids of branches carrying tag.
func (s *Session) FindByTag(tag string) []tree.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ids(s.reg.FindByTag(tag))
}

// FindByCategory returns the ids of branches in category.
func (s *Session) FindByCategory(category string) []tree.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ids(s.reg.FindByCategory(category))
}

// Len returns the number of live branches.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Len()
}

// Mesh returns the current tree mesh, rebuilding it only when the tree
// changed since the last call.
func (s *Session) Mesh() *kernel.Mesh {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Mesh(s.opts.Builder)
}

// Leaves returns the leaves on the fully grown terminal branches.
func (s *Session) Leaves() []grow.Leaf {
	s.mu.Lock()
	defer s.mu.Unlock()
	return grow.PlaceLeaves(s.reg, s.opts.Seed, s.opts.Leaves)
}

// Report returns an export record of the current tree and its leaves.
func (s *Session) Report(name string) *export.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := export.FromRegistry(s.reg, export.Meta{Name: name, Seed: s.opts.Seed, Created: time.Now()})
	r.AddLeaves(grow.PlaceLeaves(s.reg, s.opts.Seed, s.opts.Leaves))
	return r
}

func ids(bs []*tree.Branch) []tree.ID {
	out := make([]tree.ID, len(bs))
	for i, b := range bs {
		out[i] = b.ID()
	}
	return out
}
