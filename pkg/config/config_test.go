package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/canopy/pkg/grow"
	"github.com/chazu/canopy/pkg/tessellate"
	"github.com/google/go-cmp/cmp"
)

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if diff := cmp.Diff(grow.DefaultParams(), cfg.Params()); diff != "" {
		t.Errorf("default params mismatch (-want +got):\n%s", diff)
	}
}

func TestReadOverridesDefaults(t *testing.T) {
	src := `
[tree]
seed = 7
animation = "500ms"

[growth]
child_min = 1
child_max = 4

[mesh]
mode = "sections"
segments = 12
`
	cfg, err := Read(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tree.Seed != 7 || cfg.Tree.Animation.Duration != 500*time.Millisecond {
		t.Errorf("tree = %+v", cfg.Tree)
	}
	// Untouched keys keep their defaults.
	if cfg.Tree.Length != 1.5 || cfg.Growth.ConeMin != 30 {
		t.Errorf("defaults lost: length %v cone %v", cfg.Tree.Length, cfg.Growth.ConeMin)
	}
	if p := cfg.Params(); p.ChildMin != 1 || p.ChildMax != 4 {
		t.Errorf("params children = [%d,%d]", p.ChildMin, p.ChildMax)
	}
	tube := cfg.Tube()
	if tube.Mode != tessellate.ModeSections || tube.Segments != 12 {
		t.Errorf("tube = %+v", tube)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		invalid bool
	}{
		{"unknown key", "[tree]\nheight = 3\n", false},
		{"syntax", "[tree\n", false},
		{"bad duration", "[tree]\nanimation = \"soon\"\n", false},
		{"growing children", "[growth]\nlength_max = 1.5\n", true},
		{"few segments", "[mesh]\nsegments = 2\n", true},
		{"bad mode", "[mesh]\nmode = \"spiral\"\n", true},
		{"bad oracle", "[oracle]\nkind = \"psychic\"\n", true},
		{"bad kernel", "[mesh]\nkernel = \"cgal\"\n", true},
		{"negative leaf density", "[leaves]\ndensity = -1.0\n", true},
		{"zero timeout", "[oracle]\ntimeout = \"0s\"\n", true},
		{"negative timeout", "[oracle]\ntimeout = \"-1s\"\n", true},
		{"negative generations", "[tree]\ngenerations = -1\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.src))
			if err == nil {
				t.Fatal("Read succeeded, want error")
			}
			if got := errors.Is(err, ErrInvalid); got != tt.invalid {
				t.Errorf("errors.Is(%v, ErrInvalid) = %v, want %v", err, got, tt.invalid)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Tree.Seed = 99
	var buf bytes.Buffer
	if err := Write(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read(Write(cfg)) = %v\n%s", err, buf.String())
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canopy.toml")
	if err := os.WriteFile(path, []byte("[oracle]\nkind = \"generative\"\nmax_results = 6\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Oracle.Kind != "generative" || cfg.Oracle.MaxResults != 6 {
		t.Errorf("oracle = %+v", cfg.Oracle)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want ErrNotExist", err)
	}
}
