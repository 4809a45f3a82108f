package session

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/chazu/canopy/pkg/config"
	"github.com/chazu/canopy/pkg/kernel"
	"github.com/chazu/canopy/pkg/kernel/manifold"
	"github.com/chazu/canopy/pkg/kernel/sdfx"
	"github.com/chazu/canopy/pkg/oracle"
	"github.com/chazu/canopy/pkg/tessellate"
	"github.com/chazu/canopy/pkg/tree"
)

// FromConfig builds session options from a validated config. The
// generative oracle reads its API key from the environment variable the
// config names.
func FromConfig(cfg config.Config, log *slog.Logger) Options {
	if log == nil {
		log = slog.Default()
	}
	var builder tree.MeshBuilder = cfg.Tube()
	if cfg.Mesh.Solid {
		builder = &tessellate.SolidBuilder{Kernel: solidKernel(cfg.Mesh, log), Log: log}
	}

	var orc oracle.Oracle = oracle.NewSimulated(cfg.Tree.Seed)
	if cfg.Oracle.Kind == "generative" {
		orc = &oracle.Generative{
			Endpoint: cfg.Oracle.Endpoint,
			APIKey:   os.Getenv(cfg.Oracle.APIKeyEnv),
			Max:      cfg.Oracle.MaxResults,
			Client:   &http.Client{Timeout: cfg.Oracle.Timeout.Duration},
			Log:      log,
		}
	}

	return Options{
		Seed:            cfg.Tree.Seed,
		Generations:     cfg.Tree.Generations,
		Length:          cfg.Tree.Length,
		Radius:          cfg.Tree.Radius,
		InitialChildren: 3,
		Params:          cfg.Params(),
		Leaves:          cfg.LeafParams(),
		Registry:        cfg.Registry(),
		Animation:       cfg.Tree.Animation.Duration,
		Builder:         builder,
		Oracle:          orc,
		Logger:          log,
	}
}

// solidKernel returns the kernel the mesh config names, falling back to
// sdfx when manifold is not compiled in.
func solidKernel(m config.Mesh, log *slog.Logger) kernel.Kernel {
	if m.Kernel == "manifold" {
		k, err := manifold.New()
		if err == nil {
			return k
		}
		log.Warn("solid kernel unavailable, using sdfx", "kernel", m.Kernel, "err", err)
	}
	return sdfx.NewWithCells(m.SolidCells)
}
