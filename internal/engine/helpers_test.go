package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/tarrenhall/ashgrove/internal/agents"
	"github.com/tarrenhall/ashgrove/internal/buildings"
	"github.com/tarrenhall/ashgrove/internal/config"
	"github.com/tarrenhall/ashgrove/internal/economy"
	"github.com/tarrenhall/ashgrove/internal/sim"
	"github.com/tarrenhall/ashgrove/internal/world"
)

func newTestSim(t *testing.T) *Simulation {
	t.Helper()
	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	markets := economy.NewMarkets(economy.PriceConfig{
		FloorRatio:   cfg.PriceFloorRatio,
		CeilingRatio: cfg.PriceCeilingRatio,
		StepRatio:    cfg.PriceStepRatio,
	})
	currency := economy.NewLedger(cfg.InitialSupply, cfg.ReferenceSupply)
	return NewSimulation(cfg, log, world.NewLedger(), markets, agents.NewRoster(), buildings.NewRegistry(), currency)
}

func newSiteForTest() buildings.Building {
	return buildings.New(buildings.House, "test site", sim.Pos(0, 0), sim.NewAgentID())
}
