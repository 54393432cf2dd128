package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarrenhall/ashgrove/internal/agents"
	"github.com/tarrenhall/ashgrove/internal/buildings"
	"github.com/tarrenhall/ashgrove/internal/config"
	"github.com/tarrenhall/ashgrove/internal/economy"
	"github.com/tarrenhall/ashgrove/internal/engine"
	"github.com/tarrenhall/ashgrove/internal/world"
)

func TestSeedSettlementAccountsForChurchFund(t *testing.T) {
	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	markets := economy.NewMarkets(economy.PriceConfig{
		FloorRatio:   cfg.PriceFloorRatio,
		CeilingRatio: cfg.PriceCeilingRatio,
		StepRatio:    cfg.PriceStepRatio,
	})
	currency := economy.NewLedger(cfg.InitialSupply, cfg.ReferenceSupply)
	s := engine.NewSimulation(cfg, log, world.NewLedger(), markets,
		agents.NewRoster(), buildings.NewRegistry(), currency)

	seedSettlement(cfg, s)

	// Church bill at base prices: 60 wood, 120 stone, 10 iron = 810;
	// the fund holds three times that.
	fund := s.Buildings.TotalFunds()
	assert.InDelta(t, 2430.0, fund, 1e-9)

	// The king pays from his wallet and the mint covers the rest, so
	// the supply grows by exactly the shortfall.
	var king agents.Agent
	for _, a := range s.Roster.Snapshot() {
		if a.Class == agents.King {
			king = a
			break
		}
	}
	require.NotZero(t, king.ID)
	assert.InDelta(t, 0.0, king.Wallet.Balance, 1e-9)

	minted := currency.Supply() - cfg.InitialSupply
	assert.InDelta(t, fund-agents.King.StartingBalance(), minted, 1e-9)
}
