// Package engine provides the Lisp scripting engine for canopy.
// It wraps zygomys in a sandboxed environment and grows a tree from
// user source code.
package engine

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/canopy/pkg/grow"
	"github.com/chazu/canopy/pkg/tree"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning is a reported no-op, such as pruning the trunk.
type EvalWarning struct {
	Line    int     `json:"line"`
	Col     int     `json:"col"`
	Message string  `json:"message"`
	Branch  tree.ID `json:"branch"`
}

// Result is the tree a script grew.
type Result struct {
	Registry *tree.Registry
	Events   []grow.Event
	Warnings []EvalWarning
	// Seed is the seed the tree grew from, after any (seed n) call.
	Seed   int64
	Leaves []grow.Leaf
}

// Options are the defaults a script starts from.
type Options struct {
	Seed        int64
	Generations int
	Length      float64
	Radius      float64
	Params      grow.Params
	Registry    tree.Options
	Leaves      grow.LeafParams
	Logger      *slog.Logger
}

// DefaultOptions returns the standard tree defaults.
func DefaultOptions() Options {
	return Options{
		Seed:        12345,
		Generations: 3,
		Length:      1.5,
		Radius:      0.12,
		Params:      grow.DefaultParams(),
		Registry:    tree.DefaultOptions(),
		Leaves:      grow.DefaultLeafParams(),
		Logger:      slog.Default(),
	}
}

// Engine wraps the zygomys interpreter for canopy scripts.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment so results are deterministic.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	opts       Options
}

// NewEngine creates an Engine with DefaultOptions.
func NewEngine() *Engine {
	return NewEngineWithOptions(DefaultOptions())
}

// NewEngineWithOptions creates an Engine with the given defaults.
func NewEngineWithOptions(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{opts: opts}
}

// Evaluate runs source and returns the tree it grew.
//
// Return semantics:
//   - On success: returns result + nil errors + nil error
//   - On parse/eval failure: returns nil result + eval errors + nil error
//   - On fatal failure (timeout, panic, bad options): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*Result, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		res, evalErrs, err := e.evaluate(source)
		ch <- evalResult{result: res, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation)
}

// evaluate performs the zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*Result, []EvalError, error) {
	s, err := newScript(e.opts)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: %w", err)
	}

	// Empty source is a valid program that grows nothing.
	if strings.TrimSpace(source) == "" {
		return s.result(), nil, nil
	}

	// Sandbox mode keeps scripts away from the filesystem and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env, s)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		e.opts.Logger.Debug("engine: load failed", "err", err)
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		e.opts.Logger.Debug("engine: run failed", "err", err)
		return nil, parseZygomysError(err), nil
	}

	e.opts.Logger.Debug("engine: evaluated", "branches", s.reg.Len(), "warnings", len(s.warnings))
	return s.result(), nil, nil
}

func (s *script) result() *Result {
	return &Result{
		Registry: s.reg,
		Events:   s.events,
		Warnings: s.warnings,
		Seed:     s.seed,
		Leaves:   grow.PlaceLeaves(s.reg, s.seed, s.opts.Leaves),
	}
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into EvalError values,
// pulling out the line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
