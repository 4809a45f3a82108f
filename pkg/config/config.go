// Package config loads canopy settings from TOML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chazu/canopy/pkg/grow"
	"github.com/chazu/canopy/pkg/tessellate"
	"github.com/chazu/canopy/pkg/tree"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid is returned when a loaded config cannot grow a tree.
var ErrInvalid = errors.New("config: invalid")

// Config is the full application configuration.
type Config struct {
	Tree   Tree   `toml:"tree"`
	Growth Growth `toml:"growth"`
	Mesh   Mesh   `toml:"mesh"`
	Leaves Leaves `toml:"leaves"`
	Oracle Oracle `toml:"oracle"`
}

// Tree sets up the initial trunk.
type Tree struct {
	Seed        int64   `toml:"seed"`
	Generations int     `toml:"generations"`
	Length      float64 `toml:"length"`
	Radius      float64 `toml:"radius"`
	// Animation is how long a new branch takes to grow in.
	Animation Duration `toml:"animation"`
}

// Growth holds the attenuation rules; see grow.Params.
type Growth struct {
	ConeMin        float64 `toml:"cone_min"`
	ConeMax        float64 `toml:"cone_max"`
	AzimuthMax     float64 `toml:"azimuth_max"`
	LengthMin      float64 `toml:"length_min"`
	LengthMax      float64 `toml:"length_max"`
	RadiusMin      float64 `toml:"radius_min"`
	RadiusMax      float64 `toml:"radius_max"`
	Taper          float64 `toml:"taper"`
	ChildMin       int     `toml:"child_min"`
	ChildMax       int     `toml:"child_max"`
	Tolerance      float64 `toml:"tolerance"`
	Bend           float64 `toml:"bend"`
	SproutAttempts int     `toml:"sprout_attempts"`
}

// Mesh controls tessellation.
type Mesh struct {
	Segments       int     `toml:"segments"`
	HeightSegments int     `toml:"height_segments"`
	Mode           string  `toml:"mode"`
	NormalBlend    float64 `toml:"normal_blend"`
	// Solid fuses the branches into one surface instead of tubes.
	Solid      bool `toml:"solid"`
	SolidCells int  `toml:"solid_cells"`
	// Kernel is "sdfx" or "manifold". Manifold needs a cgo build with
	// the manifold tag and falls back to sdfx otherwise.
	Kernel string `toml:"kernel"`
}

// Leaves controls foliage on terminal branches. A zero density or size
// grows a bare tree.
type Leaves struct {
	Density float64 `toml:"density"`
	Size    float64 `toml:"size"`
	MinT    float64 `toml:"min_t"`
}

// Oracle selects where result counts come from.
type Oracle struct {
	// Kind is "simulated" or "generative".
	Kind       string   `toml:"kind"`
	Endpoint   string   `toml:"endpoint"`
	APIKeyEnv  string   `toml:"api_key_env"`
	MaxResults int      `toml:"max_results"`
	Timeout    Duration `toml:"timeout"`
}

// Duration is a time.Duration written as a string ("1.5s") in TOML.
type Duration struct{ time.Duration }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	p := grow.DefaultParams()
	lp := grow.DefaultLeafParams()
	return Config{
		Tree: Tree{
			Seed:        12345,
			Generations: 3,
			Length:      1.5,
			Radius:      0.12,
			Animation:   Duration{2 * time.Second},
		},
		Growth: Growth{
			ConeMin:        p.ConeMin,
			ConeMax:        p.ConeMax,
			AzimuthMax:     p.AzimuthMax,
			LengthMin:      p.LengthMin,
			LengthMax:      p.LengthMax,
			RadiusMin:      p.RadiusMin,
			RadiusMax:      p.RadiusMax,
			Taper:          p.Taper,
			ChildMin:       p.ChildMin,
			ChildMax:       p.ChildMax,
			Tolerance:      p.Tolerance,
			Bend:           p.Bend,
			SproutAttempts: p.SproutAttempts,
		},
		Mesh: Mesh{
			Segments:       tessellate.DefaultSegments,
			HeightSegments: tree.DefaultHeightSegments,
			Mode:           tessellate.ModeRings.String(),
			SolidCells:     64,
			Kernel:         "sdfx",
		},
		Leaves: Leaves{Density: lp.Density, Size: lp.Size, MinT: lp.MinT},
		Oracle: Oracle{
			Kind:       "simulated",
			Endpoint:   "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash-latest:generateContent",
			APIKeyEnv:  "CANOPY_API_KEY",
			MaxResults: 4,
			Timeout:    Duration{10 * time.Second},
		},
	}
}

// Load reads path over Default. Keys missing from the file keep their
// default values; unknown keys are an error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	cfg, err := Read(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Read decodes TOML from r over Default and validates the result.
func Read(r io.Reader) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("line %d col %d: %w", row, col, err)
		}
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.LeafParams().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch {
	case c.Tree.Generations < 0:
		return fmt.Errorf("%w: tree generations %d", ErrInvalid, c.Tree.Generations)
	case c.Tree.Length <= 0:
		return fmt.Errorf("%w: tree length %v", ErrInvalid, c.Tree.Length)
	case c.Tree.Radius <= 0:
		return fmt.Errorf("%w: tree radius %v", ErrInvalid, c.Tree.Radius)
	case c.Tree.Animation.Duration < 0:
		return fmt.Errorf("%w: animation %v", ErrInvalid, c.Tree.Animation)
	case c.Mesh.Segments < 3:
		return fmt.Errorf("%w: mesh segments %d", ErrInvalid, c.Mesh.Segments)
	case c.Mesh.HeightSegments < 1:
		return fmt.Errorf("%w: height segments %d", ErrInvalid, c.Mesh.HeightSegments)
	case c.Mesh.NormalBlend < 0 || c.Mesh.NormalBlend > 1:
		return fmt.Errorf("%w: normal blend %v", ErrInvalid, c.Mesh.NormalBlend)
	case c.Mesh.SolidCells < 8:
		return fmt.Errorf("%w: solid cells %d", ErrInvalid, c.Mesh.SolidCells)
	case c.Mesh.Kernel != "sdfx" && c.Mesh.Kernel != "manifold":
		return fmt.Errorf("%w: mesh kernel %q", ErrInvalid, c.Mesh.Kernel)
	case c.Oracle.Kind != "simulated" && c.Oracle.Kind != "generative":
		return fmt.Errorf("%w: oracle kind %q", ErrInvalid, c.Oracle.Kind)
	case c.Oracle.MaxResults < 1:
		return fmt.Errorf("%w: oracle max results %d", ErrInvalid, c.Oracle.MaxResults)
	case c.Oracle.Timeout.Duration <= 0:
		return fmt.Errorf("%w: oracle timeout %v", ErrInvalid, c.Oracle.Timeout)
	}
	if _, err := tessellate.ParseMode(c.Mesh.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Params returns the growth rules.
func (c Config) Params() grow.Params {
	g := c.Growth
	return grow.Params{
		ConeMin:        g.ConeMin,
		ConeMax:        g.ConeMax,
		AzimuthMax:     g.AzimuthMax,
		LengthMin:      g.LengthMin,
		LengthMax:      g.LengthMax,
		RadiusMin:      g.RadiusMin,
		RadiusMax:      g.RadiusMax,
		Taper:          g.Taper,
		ChildMin:       g.ChildMin,
		ChildMax:       g.ChildMax,
		Tolerance:      g.Tolerance,
		Bend:           g.Bend,
		SproutAttempts: g.SproutAttempts,
	}
}

// LeafParams returns the leaf placement settings.
func (c Config) LeafParams() grow.LeafParams {
	return grow.LeafParams{Density: c.Leaves.Density, Size: c.Leaves.Size, MinT: c.Leaves.MinT}
}

// Registry returns the registry options.
func (c Config) Registry() tree.Options {
	return tree.Options{Tolerance: c.Growth.Tolerance, HeightSegments: c.Mesh.HeightSegments}
}

// Tube returns the tube mesh builder.
func (c Config) Tube() *tessellate.Tube {
	mode, _ := tessellate.ParseMode(c.Mesh.Mode)
	return &tessellate.Tube{Segments: c.Mesh.Segments, Mode: mode, NormalBlend: c.Mesh.NormalBlend}
}
