package tree

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/canopy/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r3"
)

// buildTree registers a trunk and this shape:
//
//	1 ─┬─ 2 ─┬─ 4
//	   │     └─ 5 ── 6
//	   └─ 3
func buildTree(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(DefaultOptions())
	mustInsert(t, r, trunkSpec())
	child := func(id, parent ID, dir r3.Vec) {
		p, ok := r.Get(parent)
		if !ok {
			t.Fatalf("parent %d missing", parent)
		}
		mustInsert(t, r, Spec{
			ID:         id,
			Parent:     parent,
			Generation: p.Generation() - 1,
			Start:      p.End(),
			Direction:  dir,
			Length:     p.Length() * 0.7,
			BaseRadius: p.BaseRadius() * 0.7,
			TipRadius:  p.BaseRadius() * 0.7 * 0.8,
		})
	}
	child(2, 1, r3.Vec{X: 1, Y: 1})
	child(3, 1, r3.Vec{X: -1, Y: 1})
	child(4, 2, r3.Vec{Y: 1})
	child(5, 2, r3.Vec{Z: 1, Y: 1})
	child(6, 5, r3.Vec{X: 1})
	return r
}

func mustInsert(t *testing.T, r *Registry, spec Spec) *Branch {
	t.Helper()
	b, err := NewBranch(spec)
	if err != nil {
		t.Fatalf("NewBranch(%d): %v", spec.ID, err)
	}
	if err := r.Insert(b); err != nil {
		t.Fatalf("Insert(%d): %v", spec.ID, err)
	}
	return b
}

func ids(bs []*Branch) []ID {
	out := make([]ID, len(bs))
	for i, b := range bs {
		out[i] = b.ID()
	}
	return out
}

func equalIDs(a, b []ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInsert(t *testing.T) {
	r := buildTree(t)
	if r.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", r.Len())
	}
	if got := ids(r.Branches()); !equalIDs(got, []ID{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Branches() = %v, want insertion order", got)
	}
	trunk, _ := r.Get(TrunkID)
	if got := trunk.Children(); !equalIDs(got, []ID{2, 3}) {
		t.Errorf("trunk children = %v, want [2 3]", got)
	}
	for id, p := range r.Positions() {
		b, ok := r.Get(id)
		if !ok {
			t.Fatalf("position for unknown branch %d", id)
		}
		if p != b.End() {
			t.Errorf("position[%d] = %v, want %v", id, p, b.End())
		}
	}
}

func TestInsertErrors(t *testing.T) {
	r := buildTree(t)

	dup, err := NewBranch(trunkSpec())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Insert(duplicate) error = %v, want ErrDuplicate", err)
	}

	orphan, err := NewBranch(Spec{ID: 99, Parent: 42, Direction: r3.Vec{Y: 1}, Length: 1, BaseRadius: 0.1, TipRadius: 0.08})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Insert(orphan); !errors.Is(err, ErrNotFound) {
		t.Errorf("Insert(orphan) error = %v, want ErrNotFound", err)
	}
	if err := r.Insert(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Insert(nil) error = %v, want ErrInvalidArgument", err)
	}
	if r.Len() != 6 {
		t.Errorf("Len() = %d after failed inserts, want 6", r.Len())
	}
}

func TestDeleteTrunkIsNoop(t *testing.T) {
	r := buildTree(t)
	n, err := r.Delete(TrunkID)
	if !errors.Is(err, ErrReserved) {
		t.Errorf("Delete(trunk) error = %v, want ErrReserved", err)
	}
	if n != 0 || r.Len() != 6 {
		t.Errorf("Delete(trunk) removed %d, Len() = %d, want 0 and 6", n, r.Len())
	}
}

func TestDeleteCascades(t *testing.T) {
	tests := []struct {
		name    string
		id      ID
		removed int
		left    []ID
	}{
		{"leaf", 4, 1, []ID{1, 2, 3, 5, 6}},
		{"subtree", 2, 4, []ID{1, 3}},
		{"chain", 5, 2, []ID{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := buildTree(t)
			n, err := r.Delete(tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.removed {
				t.Errorf("Delete(%d) = %d, want %d", tt.id, n, tt.removed)
			}
			if got := ids(r.Branches()); !equalIDs(got, tt.left) {
				t.Errorf("Branches() = %v, want %v", got, tt.left)
			}
			if len(r.Positions()) != len(tt.left) {
				t.Errorf("len(Positions()) = %d, want %d", len(r.Positions()), len(tt.left))
			}
		})
	}
}

func TestDeleteUnlinksParent(t *testing.T) {
	r := buildTree(t)
	if _, err := r.Delete(3); err != nil {
		t.Fatal(err)
	}
	trunk, _ := r.Get(TrunkID)
	if got := trunk.Children(); !equalIDs(got, []ID{2}) {
		t.Errorf("trunk children = %v, want [2]", got)
	}
}

func TestDeleteUnknown(t *testing.T) {
	r := buildTree(t)
	n, err := r.Delete(77)
	if !errors.Is(err, ErrNotFound) || n != 0 {
		t.Errorf("Delete(77) = %d, %v, want 0, ErrNotFound", n, err)
	}
}

func TestMarkDeletedAndRebuild(t *testing.T) {
	r := buildTree(t)
	n, err := r.MarkDeleted(5)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("MarkDeleted(5) = %d, want 2", n)
	}
	if !r.IsDeleted(5) || !r.IsDeleted(6) {
		t.Error("subtree of 5 is not marked")
	}
	if _, ok := r.Get(6); ok {
		t.Error("Get(6) found a marked branch")
	}
	if r.Len() != 4 {
		t.Errorf("Len() = %d, want 4", r.Len())
	}
	if _, err := r.MarkDeleted(5); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkDeleted twice error = %v, want ErrNotFound", err)
	}
	if _, err := r.MarkDeleted(TrunkID); !errors.Is(err, ErrReserved) {
		t.Errorf("MarkDeleted(trunk) error = %v, want ErrReserved", err)
	}

	if got := r.Rebuild(); got != 2 {
		t.Errorf("Rebuild() = %d, want 2", got)
	}
	if r.IsDeleted(5) {
		t.Error("marks survived Rebuild")
	}
	if got := ids(r.Branches()); !equalIDs(got, []ID{1, 2, 3, 4}) {
		t.Errorf("Branches() = %v, want [1 2 3 4]", got)
	}
	two, _ := r.Get(2)
	if got := two.Children(); !equalIDs(got, []ID{4}) {
		t.Errorf("children of 2 = %v, want [4]", got)
	}
}

func TestNearEnd(t *testing.T) {
	r := buildTree(t)
	if id, ok := r.NearEnd(r3.Vec{Y: 1.55}, 0); !ok || id != TrunkID {
		t.Errorf("NearEnd(trunk end) = %d, %v, want 1, true", id, ok)
	}
	if _, ok := r.NearEnd(r3.Vec{X: 10}, 0); ok {
		t.Error("NearEnd(far away) = true, want false")
	}
	if _, ok := r.NearEnd(r3.Vec{Y: 1.8}, 0.5); !ok {
		t.Error("NearEnd with explicit tolerance missed the trunk")
	}
}

func TestNearEndUsesGrownEnds(t *testing.T) {
	r := buildTree(t)
	grown := r.Positions()
	if err := r.SetGrowth(TrunkID, 0); err != nil {
		t.Fatal(err)
	}
	for id, want := range grown {
		got, ok := r.Target(id)
		if !ok || r3.Norm(r3.Sub(got, want)) > 1e-12 {
			t.Errorf("Target(%d) = %v, %v, want %v", id, got, ok, want)
		}
	}
	// The collapsed trunk end sits at the origin, but overlap is judged
	// against where it will end.
	if id, ok := r.NearEnd(r3.Vec{}, 0); ok {
		t.Errorf("NearEnd(origin) = %d, want no hit", id)
	}
	if id, ok := r.NearEnd(r3.Vec{Y: 1.5}, 0); !ok || id != TrunkID {
		t.Errorf("NearEnd(grown trunk end) = %d, %v, want 1, true", id, ok)
	}

	// A branch added under the collapsed trunk still gets its final end.
	trunk, _ := r.Get(TrunkID)
	mustInsert(t, r, Spec{
		ID:         7,
		Parent:     TrunkID,
		Generation: trunk.Generation() - 1,
		Start:      trunk.End(),
		Direction:  r3.Vec{Z: 1},
		Length:     1,
		BaseRadius: 0.05,
		TipRadius:  0.04,
	})
	if got, _ := r.Target(7); r3.Norm(r3.Sub(got, r3.Vec{Y: 1.5, Z: 1})) > 1e-12 {
		t.Errorf("Target(7) = %v, want (0,1.5,1)", got)
	}
	if err := r.SetGrowth(TrunkID, 1); err != nil {
		t.Fatal(err)
	}
	seven, _ := r.Get(7)
	if got, _ := r.Target(7); r3.Norm(r3.Sub(got, seven.End())) > 1e-12 {
		t.Errorf("Target(7) = %v, End() = %v after growth, want equal", got, seven.End())
	}
	if _, ok := r.Target(99); ok {
		t.Error("Target(99) reported ok")
	}
}

func TestFindByTagAndCategory(t *testing.T) {
	r := buildTree(t)
	for _, id := range []ID{2, 4, 6} {
		if _, err := r.Tag(id, "ai"); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.SetCategory(3, "history"); err != nil {
		t.Fatal(err)
	}
	if got := ids(r.FindByTag("ai")); !equalIDs(got, []ID{2, 4, 6}) {
		t.Errorf("FindByTag(ai) = %v, want [2 4 6]", got)
	}
	if got := ids(r.FindByCategory("history")); !equalIDs(got, []ID{3}) {
		t.Errorf("FindByCategory(history) = %v, want [3]", got)
	}
	if got := r.FindByTag("none"); len(got) != 0 {
		t.Errorf("FindByTag(none) = %v, want empty", ids(got))
	}

	if ok, err := r.Untag(4, "ai"); err != nil || !ok {
		t.Errorf("Untag(4) = %v, %v", ok, err)
	}
	if got := ids(r.FindByTag("ai")); !equalIDs(got, []ID{2, 6}) {
		t.Errorf("FindByTag(ai) after untag = %v, want [2 6]", got)
	}
	if _, err := r.Tag(99, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Tag(99) error = %v, want ErrNotFound", err)
	}
}

func TestSetGrowthMovesDescendants(t *testing.T) {
	r := buildTree(t)
	if err := r.SetGrowth(TrunkID, 0.5); err != nil {
		t.Fatal(err)
	}
	trunk, _ := r.Get(TrunkID)
	want := r3.Vec{Y: 0.75}
	if r3.Norm(r3.Sub(trunk.End(), want)) > 1e-12 {
		t.Errorf("trunk End() = %v, want %v", trunk.End(), want)
	}
	if trunk.Target() != (r3.Vec{Y: 1.5}) {
		t.Errorf("trunk Target() = %v, want (0,1.5,0)", trunk.Target())
	}
	// Every branch still starts where its parent ends.
	for _, b := range r.Branches() {
		if b.Parent() == NoParent {
			continue
		}
		p, _ := r.Get(b.Parent())
		if r3.Norm(r3.Sub(b.Start(), p.End())) > 1e-12 {
			t.Errorf("branch %d starts at %v, parent %d ends at %v", b.ID(), b.Start(), p.ID(), p.End())
		}
		if r.Positions()[b.ID()] != b.End() {
			t.Errorf("position of %d not updated", b.ID())
		}
	}

	if err := r.SetGrowth(TrunkID, 3); err != nil {
		t.Fatal(err)
	}
	if trunk.Progress() != 1 {
		t.Errorf("Progress() = %v after SetGrowth(3), want 1", trunk.Progress())
	}
	if err := r.SetGrowth(TrunkID, math.NaN()); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("SetGrowth(NaN) error = %v, want ErrInvalidArgument", err)
	}
	if err := r.SetGrowth(50, 0.5); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetGrowth(50) error = %v, want ErrNotFound", err)
	}
}

type countingBuilder struct {
	calls int
	last  int
}

func (c *countingBuilder) Build(branches []*Branch) *kernel.Mesh {
	c.calls++
	c.last = len(branches)
	return &kernel.Mesh{Name: "count"}
}

func TestMeshIsLazy(t *testing.T) {
	r := buildTree(t)
	mb := &countingBuilder{}
	if !r.Dirty() {
		t.Fatal("new registry is clean")
	}

	m1 := r.Mesh(mb)
	m2 := r.Mesh(mb)
	if mb.calls != 1 || m1 != m2 {
		t.Errorf("Build called %d times for two clean Mesh calls, want 1", mb.calls)
	}
	if r.Dirty() {
		t.Error("registry dirty after Mesh")
	}

	// Tags do not touch geometry.
	if _, err := r.Tag(2, "x"); err != nil {
		t.Fatal(err)
	}
	r.Mesh(mb)
	if mb.calls != 1 {
		t.Errorf("Build called after a tag change")
	}

	if _, err := r.Delete(3); err != nil {
		t.Fatal(err)
	}
	if !r.Dirty() {
		t.Error("registry clean after Delete")
	}
	r.Mesh(mb)
	if mb.calls != 2 || mb.last != 5 {
		t.Errorf("Build calls = %d with %d branches, want 2 with 5", mb.calls, mb.last)
	}
}

func TestReset(t *testing.T) {
	r := buildTree(t)
	r.Reset()
	if r.Len() != 0 || len(r.Branches()) != 0 || len(r.Positions()) != 0 {
		t.Errorf("Reset left %d branches", r.Len())
	}
	mustInsert(t, r, trunkSpec())
	if r.Len() != 1 {
		t.Errorf("Len() = %d after reinsert, want 1", r.Len())
	}
}
