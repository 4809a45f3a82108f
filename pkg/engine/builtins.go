package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/canopy/pkg/grow"
	"github.com/chazu/canopy/pkg/tree"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types
// ---------------------------------------------------------------------------

// sexpBranch is a branch reference handed between builtins.
type sexpBranch struct {
	id tree.ID
}

func (b *sexpBranch) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(branch %d)", b.id)
}
func (b *sexpBranch) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds a mixed positional and keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

func parseArgs(args []zygo.Sexp) kwArgs {
	pa := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			pa.positional = append(pa.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			pa.kw[name] = args[i+1]
			i++
		} else {
			pa.kw[name] = zygo.SexpNull
		}
	}
	return pa
}

// float returns keyword name as a number, or def when absent.
func (pa kwArgs) float(name string, def float64) (float64, error) {
	v, ok := pa.kw[name]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// int returns keyword name as an integer, or def when absent.
func (pa kwArgs) int(name string, def int) (int, error) {
	v, ok := pa.kw[name]
	if !ok {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Value helpers
// ---------------------------------------------------------------------------

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toString accepts a string or a keyword and returns its text.
func toString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toBranchID accepts a branch reference or a bare integer id.
func toBranchID(s zygo.Sexp) (tree.ID, error) {
	switch v := s.(type) {
	case *sexpBranch:
		return v.id, nil
	case *zygo.SexpInt:
		return tree.ID(v.Val), nil
	}
	return 0, fmt.Errorf("expected branch reference, got %T (%s)", s, s.SexpString(nil))
}

func sexpInt(n int) zygo.Sexp {
	return &zygo.SexpInt{Val: int64(n)}
}

func branchList(bs []*tree.Branch) zygo.Sexp {
	items := make([]zygo.Sexp, len(bs))
	for i, b := range bs {
		items[i] = &sexpBranch{id: b.ID()}
	}
	return zygo.MakeList(items)
}

// ---------------------------------------------------------------------------
// Script state
// ---------------------------------------------------------------------------

// script is the tree a single evaluation builds.
type script struct {
	opts     Options
	seed     int64
	reg      *tree.Registry
	grower   *grow.Grower
	events   []grow.Event
	warnings []EvalWarning
}

func newScript(opts Options) (*script, error) {
	if err := opts.Leaves.Validate(); err != nil {
		return nil, err
	}
	s := &script{opts: opts, seed: opts.Seed, reg: tree.NewRegistry(opts.Registry)}
	g, err := grow.New(s.reg, grow.NewSource(opts.Seed), opts.Params,
		grow.WithLogger(opts.Logger),
		grow.WithObserver(func(ev grow.Event) { s.events = append(s.events, ev) }),
	)
	if err != nil {
		return nil, err
	}
	s.grower = g
	return s, nil
}

func (s *script) warn(id tree.ID, format string, args ...any) {
	s.warnings = append(s.warnings, EvalWarning{Message: fmt.Sprintf(format, args...), Branch: id})
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the canopy DSL into env. Source must go
// through preprocessSource first so keywords and hyphenated names
// resolve.
func registerBuiltins(env *zygo.Zlisp, s *script) {

	// (seed 42) works only before the trunk exists.
	env.AddFunction("seed", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("seed requires exactly 1 argument, got %d", len(args))
		}
		n, err := toInt(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("seed: %w", err)
		}
		if s.reg.Len() > 0 {
			return zygo.SexpNull, fmt.Errorf("seed must come before trunk")
		}
		s.seed = int64(n)
		s.grower.Reset(grow.NewSource(s.seed))
		return sexpInt(n), nil
	})

	// (trunk :generations 3 :length 1.5 :radius 0.12)
	env.AddFunction("trunk", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		gens, err := pa.int("generations", s.opts.Generations)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("trunk: %w", err)
		}
		length, err := pa.float("length", s.opts.Length)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("trunk: %w", err)
		}
		radius, err := pa.float("radius", s.opts.Radius)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("trunk: %w", err)
		}
		b, err := s.grower.GrowTrunk(gens, length, radius)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("trunk: %w", err)
		}
		return &sexpBranch{id: b.ID()}, nil
	})

	// (grow (branch 1) :generations 2 :count 3)
	env.AddFunction("grow", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("grow requires a branch as first argument")
		}
		id, err := toBranchID(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grow: %w", err)
		}
		parent, ok := s.reg.Get(id)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("grow: branch %d not found", id)
		}
		gens, err := pa.int("generations", parent.Generation())
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grow: %w", err)
		}
		count, err := pa.int("count", s.opts.Params.ChildMax)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grow: %w", err)
		}
		created, err := s.grower.GrowChildren(id, gens, count)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grow: %w", err)
		}
		return branchList(created), nil
	})

	// (sprout 3)
	env.AddFunction("sprout", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		n := 1
		if len(args) > 0 {
			v, err := toInt(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("sprout: %w", err)
			}
			n = v
		}
		created, err := s.grower.Sprout(n)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sprout: %w", err)
		}
		return branchList(created), nil
	})

	// (branch 4)
	env.AddFunction("branch", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("branch requires an id argument")
		}
		id, err := toBranchID(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("branch: %w", err)
		}
		if _, ok := s.reg.Get(id); !ok {
			return zygo.SexpNull, fmt.Errorf("branch: no branch with id %d", id)
		}
		return &sexpBranch{id: id}, nil
	})

	// (branch-id (branch 4))
	env.AddFunction("branch_id", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("branch-id requires a branch argument")
		}
		id, err := toBranchID(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("branch-id: %w", err)
		}
		return sexpInt(int(id)), nil
	})

	// (tag (branch 2) "science"), (untag (branch 2) "science")
	for _, fn := range []string{"tag", "untag"} {
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires a branch and a tag", name)
			}
			id, err := toBranchID(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
			tag, err := toString(args[1])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
			var changed bool
			if name == "tag" {
				changed, err = s.reg.Tag(id, tag)
			} else {
				changed, err = s.reg.Untag(id, tag)
			}
			if err != nil {
				s.warn(id, "%s: %v", name, err)
			}
			return &zygo.SexpBool{Val: changed}, nil
		})
	}

	// (category (branch 2) :history)
	env.AddFunction("category", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("category requires a branch and a category")
		}
		id, err := toBranchID(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("category: %w", err)
		}
		cat, err := toString(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("category: %w", err)
		}
		if err := s.reg.SetCategory(id, cat); err != nil {
			s.warn(id, "category: %v", err)
		}
		return zygo.SexpNull, nil
	})

	// (prune (branch 5)) removes the subtree and returns the count.
	// Pruning the trunk or a missing branch removes nothing.
	env.AddFunction("prune", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("prune requires a branch argument")
		}
		id, err := toBranchID(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("prune: %w", err)
		}
		n, err := s.reg.Delete(id)
		if errors.Is(err, tree.ErrReserved) || errors.Is(err, tree.ErrNotFound) {
			s.warn(id, "prune: %v", err)
		} else if err != nil {
			return zygo.SexpNull, fmt.Errorf("prune: %w", err)
		}
		return sexpInt(n), nil
	})

	// (branches-tagged "science")
	env.AddFunction("branches_tagged", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("branches-tagged requires a tag")
		}
		tag, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("branches-tagged: %w", err)
		}
		return branchList(s.reg.FindByTag(tag)), nil
	})

	// (branch-count)
	env.AddFunction("branch_count", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return sexpInt(s.reg.Len()), nil
	})
}
