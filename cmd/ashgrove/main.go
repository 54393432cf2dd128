// Command ashgrove runs the Ashgrove settlement economy simulation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/tarrenhall/ashgrove/internal/agents"
	"github.com/tarrenhall/ashgrove/internal/api"
	"github.com/tarrenhall/ashgrove/internal/buildings"
	"github.com/tarrenhall/ashgrove/internal/config"
	"github.com/tarrenhall/ashgrove/internal/economy"
	"github.com/tarrenhall/ashgrove/internal/engine"
	"github.com/tarrenhall/ashgrove/internal/persistence"
	"github.com/tarrenhall/ashgrove/internal/sim"
	"github.com/tarrenhall/ashgrove/internal/world"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", *configPath)
	}

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Subsystems ────────────────────────────────────────────────────
	markets := economy.NewMarkets(economy.PriceConfig{
		FloorRatio:   cfg.PriceFloorRatio,
		CeilingRatio: cfg.PriceCeilingRatio,
		StepRatio:    cfg.PriceStepRatio,
	})
	roster := agents.NewRoster()
	registry := buildings.NewRegistry()

	// ── Load or Seed ──────────────────────────────────────────────────
	var currency *economy.Ledger
	var nodes *world.Ledger
	var startSlow uint64

	saved, found, err := db.LoadLatestSnapshot()
	if err != nil {
		slog.Error("failed to load snapshot", "error", err)
		os.Exit(1)
	}

	if found {
		currency = economy.RestoreLedger(saved.Currency)
		nodes = world.NewLedger()
		startSlow = uint64(saved.SlowTicks)
	} else {
		currency = economy.NewLedger(cfg.InitialSupply, cfg.ReferenceSupply)
		nodes = world.Generate(world.GenConfig{
			Seed:     cfg.Seed,
			Size:     cfg.WorldSize,
			Count:    cfg.NodeCount,
			Capacity: cfg.NodeCapacity,
		})
	}

	simulation := engine.NewSimulation(cfg, logger, nodes, markets, roster, registry, currency)

	if found {
		persistence.RestoreInto(saved, simulation)
		slog.Info("settlement restored",
			"agents", len(saved.Agents),
			"markets", len(saved.Markets),
			"buildings", len(saved.Buildings),
			"slow_ticks", startSlow,
		)
	} else {
		slog.Info("no saved state found, seeding new settlement")
		seedSettlement(cfg, simulation)
		if err := db.SaveAll(simulation, 0); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(cfg.FastTick(), cfg.SlowTick(), cfg.VerySlowTick())
	simulation.Attach(eng)

	// Auto-save rides the very-slow phase.
	innerVerySlow := eng.OnVerySlow
	eng.OnVerySlow = func(tick uint64) {
		innerVerySlow(tick)
		_, slow, _ := eng.Ticks()
		if err := db.SaveAll(simulation, startSlow+slow); err != nil {
			slog.Error("auto-save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("ASHGROVE_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("ASHGROVE_ADMIN_KEY not set, control endpoints disabled")
	}
	server := &api.Server{
		Sim:      simulation,
		Eng:      eng,
		Addr:     cfg.APIAddr,
		AdminKey: adminKey,
		SaveFunc: func(ctx context.Context) error {
			_, slow, _ := eng.Ticks()
			return db.SaveAll(simulation, startSlow+slow)
		},
	}
	server.Start()

	// ── Run ───────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	fmt.Printf("Ashgrove is alive: %d souls, %d markets.\n",
		roster.Living(), len(markets.Snapshot()))
	fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.APIAddr)
	if startSlow > 0 {
		fmt.Printf("Resuming from slow tick %s\n", strconv.FormatUint(startSlow, 10))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)

	// Final save on shutdown.
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown failed", "error", err)
	}
	_, slow, _ := eng.Ticks()
	if err := db.SaveAll(simulation, startSlow+slow); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. Settlement state saved.")
}

// seedSettlement builds the starting world: the class pyramid of
// agents, three public markets, two finished public buildings, and one
// church already under construction with a funded bill.
func seedSettlement(cfg config.Config, s *engine.Simulation) {
	for _, a := range s.Spawner.SpawnPopulation(sim.Pos(0, 0), cfg.WorldSize/3) {
		s.Roster.Add(a)
	}

	stock := func(wood, stone, iron, food int) map[sim.Resource]int {
		return map[sim.Resource]int{
			sim.Wood: wood, sim.Stone: stone, sim.Iron: iron, sim.Food: food,
		}
	}
	prices := cfg.BasePrices.Map()
	s.Markets.CreateMarket("grand market", sim.Pos(0, 0), prices, stock(100, 80, 20, 150))
	s.Markets.CreateMarket("north victuallers", sim.Pos(0, -cfg.WorldSize/2), prices, stock(20, 10, 0, 250))
	s.Markets.CreateMarket("south yards", sim.Pos(0, cfg.WorldSize/2), prices, stock(200, 150, 60, 40))

	var king sim.AgentID
	for _, a := range s.Roster.Snapshot() {
		if a.Class == agents.King {
			king = a.ID
			break
		}
	}

	// Standing public buildings. The granary opens with a food reserve
	// for the dole.
	for _, b := range []buildings.Building{
		buildings.New(buildings.Granary, "town granary", sim.Pos(8, 0), king),
		buildings.New(buildings.Blacksmith, "forge row", sim.Pos(-8, 4), king),
	} {
		id := s.Buildings.Add(b)
		for r, qty := range b.Required {
			s.Buildings.Deliver(id, r, qty)
		}
		for done := false; !done; {
			_, done, _ = s.Buildings.Advance(id, 0.25)
		}
		if b.Kind == buildings.Granary {
			s.Buildings.Store(id, sim.Food, 100)
		}
	}

	// One site mid-build, financed the same way commissions are: the
	// king pays what he can and the mint covers the rest, so the fund
	// shows up on the currency ledger.
	church := buildings.New(buildings.Church, "st cuthbert's", sim.Pos(4, -10), king)
	estimate := 0.0
	for r, qty := range church.Required {
		estimate += float64(qty) * prices[r]
	}
	churchID := s.Buildings.Add(church)
	s.FundFromPatron(churchID, king, estimate*cfg.FundMultiplier)

	slog.Info("settlement seeded",
		"agents", s.Roster.Living(),
		"markets", 3,
		"buildings", len(s.Buildings.Snapshot()),
		"nodes", len(s.World.Snapshot()),
	)
}
