// Command starholdsim runs the Starhold economy and production simulation
// with its HTTP command surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/astralforge/starhold/internal/api"
	"github.com/astralforge/starhold/internal/bus"
	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/engine"
	"github.com/astralforge/starhold/internal/persistence"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "", "YAML tuning file (defaults used when empty)")
		dbPath     = flag.String("db", "data/starhold.db", "SQLite save database")
		apiPort    = flag.Int("port", 8080, "HTTP API port")
		seed       = flag.Int64("seed", 0, "world seed override (0 keeps tuning value)")
		loadSlot   = flag.String("load", "", "save slot to resume from")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *tuningPath != "" {
		var err error
		cfg, err = config.Load(*tuningPath)
		if err != nil {
			slog.Error("failed to load tuning", "path", *tuningPath, "error", err)
			os.Exit(1)
		}
		slog.Info("tuning loaded", "path", *tuningPath)
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	os.MkdirAll("data", 0755)
	store, err := persistence.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("database opened", "path", *dbPath)

	var world *engine.World
	if *loadSlot != "" {
		snap, err := store.LoadSlot(*loadSlot)
		if err != nil {
			slog.Error("failed to load save slot", "slot", *loadSlot, "error", err)
			os.Exit(1)
		}
		world, err = engine.RestoreWorld(cfg, snap)
		if err != nil {
			slog.Error("failed to restore world", "slot", *loadSlot, "error", err)
			os.Exit(1)
		}
		slog.Info("world restored from save", "slot", *loadSlot, "tick", world.Tick())
	} else {
		world = engine.NewWorld(cfg)
		if err := world.Generate(); err != nil {
			slog.Error("world generation failed", "error", err)
			os.Exit(1)
		}
		slog.Info("world generated",
			"seed", cfg.Seed,
			"markets", len(world.Economy.MarketIDs()),
			"routes", len(world.Economy.Analyzer.Routes()),
			"home_market", world.HomeMarket.String(),
		)
	}

	runner := engine.NewRunner(world)
	// Flushed events feed the journal for post-hoc inspection.
	runner.OnFlush = func(events []bus.Event) {
		if err := store.AppendJournal(events); err != nil {
			slog.Warn("journal write failed", "error", err)
		}
	}

	adminKey := os.Getenv("STARHOLD_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("STARHOLD_ADMIN_KEY not set, command POST endpoints will be disabled")
	}
	relayKey := os.Getenv("STARHOLD_RELAY_KEY")

	apiServer := &api.Server{
		Runner:   runner,
		Store:    store,
		Port:     *apiPort,
		AdminKey: adminKey,
		RelayKey: relayKey,
	}
	apiServer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	fmt.Printf("\nStarhold is live: %d markets, home station %s.\n",
		len(world.Economy.MarketIDs()), world.HomeMarket.String())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", *apiPort)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("simulation stopped with error", "error", err)
	}

	// Final autosave on shutdown.
	slog.Info("final save...")
	err = runner.Do(func(w *engine.World) error {
		snap, err := w.Snapshot()
		if err != nil {
			return err
		}
		_, err = store.SaveSlot("autosave", snap)
		return err
	})
	if err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. World state saved to slot \"autosave\".")
}
