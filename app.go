package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chazu/canopy/pkg/config"
	"github.com/chazu/canopy/pkg/engine"
	"github.com/chazu/canopy/pkg/export"
	"github.com/chazu/canopy/pkg/grow"
	"github.com/chazu/canopy/pkg/kernel"
	"github.com/chazu/canopy/pkg/session"
	"github.com/chazu/canopy/pkg/tree"
)

const (
	// barkColor is the default tree color sent to the frontend.
	barkColor = "#8B5A2B"
	leafColor = "#4C8C2B"
)

// App is the Wails backend. It exposes methods to the frontend via bindings.
type App struct {
	ctx     context.Context
	cfg     config.Config
	log     *slog.Logger
	session *session.Session
	engine  *engine.Engine
	builder tree.MeshBuilder
}

// MeshData is the JSON-serializable mesh format sent to the frontend.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	UVs      []float32 `json:"uvs"`
	Branch   []float32 `json:"branch"`
	Indices  []uint32  `json:"indices"`
	Name     string    `json:"name"`
	Color    string    `json:"color"`
}

// LeafData places one leaf quad in the frontend.
type LeafData struct {
	Branch   int        `json:"branch"`
	Position [3]float64 `json:"position"`
	Facing   [3]float64 `json:"facing"`
	Up       [3]float64 `json:"up"`
	Size     float64    `json:"size"`
	Color    string     `json:"color"`
}

// MessageData is a JSON-serializable error or warning for the frontend.
type MessageData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Branch  int    `json:"branch,omitempty"`
	Message string `json:"message"`
}

// TreeResult is the full result returned to the frontend.
type TreeResult struct {
	Mesh     MeshData      `json:"mesh"`
	Leaves   []LeafData    `json:"leaves"`
	Branches int           `json:"branches"`
	Created  []int         `json:"created"`
	Running  int           `json:"running"`
	Errors   []MessageData `json:"errors"`
	Warnings []MessageData `json:"warnings"`
}

// NewApp creates an App with the default configuration.
func NewApp() *App {
	a, err := NewAppWithConfig(config.Default(), slog.Default())
	if err != nil {
		// The default configuration always grows a tree.
		panic(err)
	}
	return a
}

// NewAppWithConfig creates an App from cfg.
func NewAppWithConfig(cfg config.Config, log *slog.Logger) (*App, error) {
	opts := session.FromConfig(cfg, log)
	s, err := session.New(opts)
	if err != nil {
		return nil, err
	}
	eng := engine.NewEngineWithOptions(engine.Options{
		Seed:        cfg.Tree.Seed,
		Generations: cfg.Tree.Generations,
		Length:      cfg.Tree.Length,
		Radius:      cfg.Tree.Radius,
		Params:      cfg.Params(),
		Registry:    cfg.Registry(),
		Leaves:      cfg.LeafParams(),
		Logger:      log,
	})
	return &App{
		ctx:     context.Background(),
		cfg:     cfg,
		log:     log,
		session: s,
		engine:  eng,
		builder: opts.Builder,
	}, nil
}

// startup is called by Wails on app startup. The context is saved
// so we can call Wails runtime methods later if needed.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

func newResult() TreeResult {
	return TreeResult{
		Leaves:   []LeafData{},
		Created:  []int{},
		Errors:   []MessageData{},
		Warnings: []MessageData{},
	}
}

func meshData(m *kernel.Mesh) MeshData {
	return MeshData{
		Vertices: m.Vertices,
		Normals:  m.Normals,
		UVs:      m.UVs,
		Branch:   m.Branch,
		Indices:  m.Indices,
		Name:     m.Name,
		Color:    barkColor,
	}
}

func leafData(leaves []grow.Leaf) []LeafData {
	out := make([]LeafData, len(leaves))
	for i, l := range leaves {
		out[i] = LeafData{
			Branch:   int(l.Branch),
			Position: [3]float64{l.Position.X, l.Position.Y, l.Position.Z},
			Facing:   [3]float64{l.Facing.X, l.Facing.Y, l.Facing.Z},
			Up:       [3]float64{l.Up.X, l.Up.Y, l.Up.Z},
			Size:     l.Size,
			Color:    leafColor,
		}
	}
	return out
}

// current fills r with the session mesh and leaves.
func (a *App) current(r TreeResult) TreeResult {
	r.Mesh = meshData(a.session.Mesh())
	r.Leaves = leafData(a.session.Leaves())
	r.Branches = a.session.Len()
	return r
}

func (a *App) fail(r TreeResult, msg string, err error) TreeResult {
	a.log.Error(msg, "err", err)
	r.Errors = append(r.Errors, MessageData{Message: err.Error()})
	return r
}

// Tree returns the current interactive tree.
func (a *App) Tree() TreeResult {
	return a.current(newResult())
}

// Reset regrows the initial tree and stops any animation.
func (a *App) Reset() TreeResult {
	r := newResult()
	if err := a.session.Reset(); err != nil {
		return a.fail(r, "reset failed", err)
	}
	return a.current(r)
}

// Query asks the oracle about query and sprouts one branch per result.
// A query made while another is running is reported, not queued.
func (a *App) Query(query string) TreeResult {
	r := newResult()
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.Oracle.Timeout.Duration)
	defer cancel()

	ids, err := a.session.GrowFromQuery(ctx, query)
	for _, id := range ids {
		r.Created = append(r.Created, int(id))
	}
	switch {
	case errors.Is(err, session.ErrBusy):
		r.Warnings = append(r.Warnings, MessageData{Message: "a query is already running"})
	case err != nil:
		r = a.fail(r, "query failed", err)
	}
	return a.current(r)
}

// Tick advances branch growth by ms milliseconds. The frontend calls it
// once per animation frame while Running is non-zero.
func (a *App) Tick(ms int) TreeResult {
	r := newResult()
	running, err := a.session.Tick(time.Duration(ms) * time.Millisecond)
	r.Running = running
	if err != nil {
		// A branch deleted mid-growth just stops animating.
		r.Warnings = append(r.Warnings, MessageData{Message: err.Error()})
	}
	return a.current(r)
}

// DeleteBranch removes a branch and everything grown from it.
func (a *App) DeleteBranch(id int) TreeResult {
	r := newResult()
	if _, err := a.session.Delete(tree.ID(id)); err != nil {
		r.Warnings = append(r.Warnings, MessageData{Branch: id, Message: err.Error()})
	}
	return a.current(r)
}

// TagBranch adds tag to a branch.
func (a *App) TagBranch(id int, tag string) TreeResult {
	r := newResult()
	if _, err := a.session.Tag(tree.ID(id), tag); err != nil {
		r.Warnings = append(r.Warnings, MessageData{Branch: id, Message: err.Error()})
	}
	return a.current(r)
}

// UntagBranch removes tag from a branch.
func (a *App) UntagBranch(id int, tag string) TreeResult {
	r := newResult()
	if _, err := a.session.Untag(tree.ID(id), tag); err != nil {
		r.Warnings = append(r.Warnings, MessageData{Branch: id, Message: err.Error()})
	}
	return a.current(r)
}

// SetCategory sets a branch's category.
func (a *App) SetCategory(id int, category string) TreeResult {
	r := newResult()
	if err := a.session.SetCategory(tree.ID(id), category); err != nil {
		r.Warnings = append(r.Warnings, MessageData{Branch: id, Message: err.Error()})
	}
	return a.current(r)
}

// BranchesByTag returns the ids of branches carrying tag.
func (a *App) BranchesByTag(tag string) []int {
	return toInts(a.session.FindByTag(tag))
}

// BranchesByCategory returns the ids of branches in category.
func (a *App) BranchesByCategory(category string) []int {
	return toInts(a.session.FindByCategory(category))
}

// ExportJSON returns the export record of the interactive tree.
func (a *App) ExportJSON(name string) (string, error) {
	var buf bytes.Buffer
	if err := export.WriteJSON(&buf, a.session.Report(name)); err != nil {
		a.log.Error("export failed", "err", err)
		return "", err
	}
	return buf.String(), nil
}

// Evaluate grows a tree from a canopy script and returns its mesh.
// The interactive tree is not touched.
func (a *App) Evaluate(source string) TreeResult {
	r := newResult()

	// Step 1: Run the script into a registry.
	res, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		return a.fail(r, "evaluate fatal error", err)
	}

	// Step 2: Convert eval errors to the frontend format.
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			r.Errors = append(r.Errors, MessageData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return r
	}
	for _, w := range res.Warnings {
		r.Warnings = append(r.Warnings, MessageData{Line: w.Line, Col: w.Col, Branch: int(w.Branch), Message: w.Message})
	}

	// Step 3: Mesh the grown tree.
	for _, ev := range res.Events {
		r.Created = append(r.Created, int(ev.ID))
	}
	r.Mesh = meshData(res.Registry.Mesh(a.builder))
	r.Leaves = leafData(res.Leaves)
	r.Branches = res.Registry.Len()
	return r
}

func toInts(ids []tree.ID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
