package engine

import (
	"testing"

	"github.com/chazu/canopy/pkg/grow"
	"github.com/chazu/canopy/pkg/tree"
	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(trunk :length 2)`,
			expect: `(trunk "__kw_length" 2)`,
		},
		{
			name:   "multiple keywords",
			input:  `(grow b :generations 2 :count 3)`,
			expect: `(grow b "__kw_generations" 2 "__kw_count" 3)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(branch-count)`,
			expect: `(branch_count)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:tip-radius`,
			expect: `"__kw_tip-radius"`,
		},
		{
			name:   "escaped quote in string",
			input:  `(tag b "say \"hi\" :x")`,
			expect: `(tag b "say \"hi\" :x")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// DSL tests
// ---------------------------------------------------------------------------

func evalOK(t *testing.T, source string) *Result {
	t.Helper()
	res, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("unexpected eval errors: %v", evalErrs)
	}
	return res
}

func TestTrunkDefaults(t *testing.T) {
	res := evalOK(t, "(trunk)")
	b, ok := res.Registry.Get(tree.TrunkID)
	if !ok {
		t.Fatal("trunk not created")
	}
	if b.Generation() != 3 || b.Length() != 1.5 || b.BaseRadius() != 0.12 {
		t.Errorf("trunk = gen %d length %v radius %v, want 3, 1.5, 0.12", b.Generation(), b.Length(), b.BaseRadius())
	}
	if len(res.Events) != 1 || res.Events[0].ID != tree.TrunkID {
		t.Errorf("events = %+v, want one trunk event", res.Events)
	}
}

func TestTrunkKeywords(t *testing.T) {
	res := evalOK(t, "(trunk :generations 1 :length 2 :radius 0.5)")
	b, _ := res.Registry.Get(tree.TrunkID)
	if b.Generation() != 1 || b.Length() != 2 || b.BaseRadius() != 0.5 {
		t.Errorf("trunk = gen %d length %v radius %v", b.Generation(), b.Length(), b.BaseRadius())
	}
}

func TestGrowMatchesGrower(t *testing.T) {
	res := evalOK(t, `
(def tr (trunk))
(grow tr :count 3)
`)

	// The same calls made directly against the grower.
	reg := tree.NewRegistry(tree.DefaultOptions())
	g, err := grow.New(reg, grow.NewSource(12345), grow.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.GrowTrunk(3, 1.5, 0.12); err != nil {
		t.Fatal(err)
	}
	if _, err := g.GrowChildren(tree.TrunkID, 3, 3); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(reg.Positions(), res.Registry.Positions()); diff != "" {
		t.Errorf("script tree differs from grower tree (-grower +script):\n%s", diff)
	}
	if len(res.Events) != reg.Len() {
		t.Errorf("%d events for %d branches", len(res.Events), reg.Len())
	}
}

func TestSeedChangesTree(t *testing.T) {
	a := evalOK(t, "(trunk) (grow (branch 1) :generations 1)")
	b := evalOK(t, "(seed 7) (trunk) (grow (branch 1) :generations 1)")
	if cmp.Equal(a.Registry.Positions(), b.Registry.Positions()) {
		t.Error("different seeds grew identical trees")
	}
}

func TestSeedAfterTrunk(t *testing.T) {
	_, evalErrs, err := NewEngine().Evaluate("(trunk) (seed 7)")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for seed after trunk")
	}
}

func TestBranchLookupError(t *testing.T) {
	_, evalErrs, err := NewEngine().Evaluate("(trunk) (branch 99)")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for unknown branch")
	}
}

func TestBranchCountAndID(t *testing.T) {
	res := evalOK(t, `
(trunk)
(def kids (grow (branch 1) :generations 1 :count 2))
(tag (branch (branch-id (car kids))) "first")
(category (branch-count) :last)
`)
	if got := res.Registry.FindByTag("first"); len(got) != 1 || got[0].ID() != 2 {
		t.Errorf("first child tagged = %v, want branch 2", got)
	}
	if got := res.Registry.FindByCategory("last"); len(got) != 1 || int(got[0].ID()) != res.Registry.Len() {
		t.Errorf("branch-count did not name the newest branch")
	}
	if res.Registry.Len() < 2 {
		t.Errorf("expected children, got %d branches", res.Registry.Len())
	}
}

func TestTagAndCategory(t *testing.T) {
	res := evalOK(t, `
(trunk)
(grow (branch 1) :generations 1 :count 2)
(tag (branch 2) "science")
(tag 2 :history)
(category (branch 2) :biology)
(untag (branch 2) "history")
(tag (car (branches-tagged "science")) "found")
`)
	b, _ := res.Registry.Get(2)
	if diff := cmp.Diff([]string{"science", "found"}, b.Tags()); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if b.Category() != "biology" {
		t.Errorf("category = %q, want biology", b.Category())
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", res.Warnings)
	}
}

func TestTagMissingBranchWarns(t *testing.T) {
	res := evalOK(t, `(trunk) (tag 1 "a") (tag 1 "a") (tag 42 "a")`)
	if len(res.Warnings) != 1 || res.Warnings[0].Branch != 42 {
		t.Errorf("warnings = %+v, want one for branch 42", res.Warnings)
	}
	b, _ := res.Registry.Get(tree.TrunkID)
	if diff := cmp.Diff([]string{"a"}, b.Tags()); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestPrune(t *testing.T) {
	res := evalOK(t, `
(trunk)
(grow (branch 1) :generations 2 :count 2)
(prune (branch 2))
`)
	if _, ok := res.Registry.Get(2); ok {
		t.Error("pruned branch still present")
	}
	if _, ok := res.Registry.Get(tree.TrunkID); !ok {
		t.Error("trunk removed by prune")
	}
}

func TestPruneTrunkWarns(t *testing.T) {
	res := evalOK(t, `(trunk) (prune 1) (prune 42)`)
	if res.Registry.Len() != 1 {
		t.Errorf("trunk prune changed the tree: %d branches", res.Registry.Len())
	}
	if len(res.Warnings) != 2 {
		t.Errorf("warnings = %+v, want two", res.Warnings)
	}
}

func TestSproutWithoutTrunk(t *testing.T) {
	_, evalErrs, err := NewEngine().Evaluate("(sprout 2)")
	if err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval error for sprout on an empty tree")
	}
}

func TestSprout(t *testing.T) {
	res := evalOK(t, "(trunk) (sprout 3)")
	if got := res.Registry.Len(); got < 2 || got > 4 {
		t.Errorf("sprout left %d branches, want 2..4", got)
	}
}

func TestScriptLeaves(t *testing.T) {
	res := evalOK(t, "(seed 99) (def tr (trunk)) (grow tr :count 3)")
	if res.Seed != 99 {
		t.Errorf("Seed = %d, want 99", res.Seed)
	}
	if len(res.Leaves) == 0 {
		t.Fatal("grown script tree has no leaves")
	}
	want := grow.PlaceLeaves(res.Registry, 99, grow.DefaultLeafParams())
	if diff := cmp.Diff(want, res.Leaves); diff != "" {
		t.Errorf("script leaves mismatch (-want +got):\n%s", diff)
	}

	bare := evalOK(t, "(trunk)")
	if len(bare.Leaves) != 0 {
		t.Errorf("lone trunk has %d leaves", len(bare.Leaves))
	}
}
