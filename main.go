package main

import (
	"embed"
	"log/slog"
	"os"

	"github.com/chazu/canopy/pkg/config"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	cfg := config.Default()
	if path := os.Getenv("CANOPY_CONFIG"); path != "" {
		c, err := config.Load(path)
		if err != nil {
			log.Error("loading config", "err", err)
			os.Exit(1)
		}
		cfg = c
	}

	app, err := NewAppWithConfig(cfg, log)
	if err != nil {
		log.Error("starting session", "err", err)
		os.Exit(1)
	}

	err = wails.Run(&options.App{
		Title:  "canopy",
		Width:  1280,
		Height: 800,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup: app.startup,
		Bind:      []interface{}{app},
	})
	if err != nil {
		log.Error("wails", "err", err)
		os.Exit(1)
	}
}
