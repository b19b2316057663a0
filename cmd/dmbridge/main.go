// Copyright 2024-2026 Aiku AI

// Command dmbridge relays direct-message conversations from a remote DM
// platform into per-conversation channels on a local guild, and mirrors
// replies back. Platform SDK adapters are linked in separately and
// selected by the driver name in the config.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exzerolog"

	"github.com/aiku/dmbridge/pkg/bridge"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// A missing .env is fine; the config file may carry everything.
	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	exzerolog.SetupDefaults(&log)

	log.Info().
		Str("tag", Tag).
		Str("commit", Commit).
		Str("build_time", BuildTime).
		Msg("Starting dmbridge")

	cfg, err := bridge.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	store, err := bridge.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open data store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collab, err := bridge.OpenDriver(ctx, cfg.Driver, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open platform driver")
	}

	if err := bridge.New(cfg, collab, store, log).Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Bridge exited with error")
	}
	log.Info().Msg("Bridge stopped")
}
