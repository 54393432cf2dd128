// Package config holds the startup parameter surface for the simulation.
// Everything tunable is declared here and loaded from a YAML file; there
// are no hidden defaults scattered through the engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tarrenhall/ashgrove/internal/sim"
)

// Prices holds the per-resource base prices.
type Prices struct {
	Wood  float64 `yaml:"wood"`
	Stone float64 `yaml:"stone"`
	Iron  float64 `yaml:"iron"`
	Food  float64 `yaml:"food"`
}

// For returns the base price for a resource.
func (p Prices) For(r sim.Resource) float64 {
	switch r {
	case sim.Wood:
		return p.Wood
	case sim.Stone:
		return p.Stone
	case sim.Iron:
		return p.Iron
	case sim.Food:
		return p.Food
	}
	return 1.0
}

// Map returns the base prices keyed by resource.
func (p Prices) Map() map[sim.Resource]float64 {
	return map[sim.Resource]float64{
		sim.Wood:  p.Wood,
		sim.Stone: p.Stone,
		sim.Iron:  p.Iron,
		sim.Food:  p.Food,
	}
}

// Wages holds the per-job wage paid each slow tick.
type Wages struct {
	Harvester float64 `yaml:"harvester"`
	Builder   float64 `yaml:"builder"`
}

// Config is the full simulation configuration.
type Config struct {
	Seed int64 `yaml:"seed"`

	// Tick-phase periods.
	FastTickMs     int `yaml:"fast_tick_ms"`
	SlowTickMs     int `yaml:"slow_tick_ms"`
	VerySlowTickMs int `yaml:"very_slow_tick_ms"`

	// Currency model.
	InitialSupply   float64 `yaml:"initial_currency_supply"`
	ReferenceSupply float64 `yaml:"reference_supply"`

	// Market model.
	BasePrices        Prices  `yaml:"base_prices"`
	PriceFloorRatio   float64 `yaml:"price_floor_ratio"`
	PriceCeilingRatio float64 `yaml:"price_ceiling_ratio"`
	PriceStepRatio    float64 `yaml:"price_step_ratio"`  // Max price move per update, as a fraction of base.
	RebalanceSurplus  float64 `yaml:"rebalance_surplus"` // Inventory above mean that triggers a transfer.
	RebalanceMax      int     `yaml:"rebalance_max"`     // Max units moved per market pair per pass.

	// Construction financing.
	FundMultiplier  float64 `yaml:"fund_multiplier"`   // Fund size relative to estimated cost.
	FundSafetyRatio float64 `yaml:"fund_safety_ratio"` // Replenish when fund < ratio × remaining cost.

	// Labor allocation.
	LaborFloor      float64 `yaml:"labor_floor"`      // Minimum fraction of population harvesting.
	DemandSmoothing float64 `yaml:"demand_smoothing"` // Added to stock in the demand score denominator.

	// Wages and taxation.
	Wages        Wages   `yaml:"wages"`
	TaxRate      float64 `yaml:"tax_rate"`
	TaxThreshold float64 `yaml:"tax_threshold"` // Wealth below this pays no tax.

	// Demographics.
	BirthRate float64 `yaml:"birth_rate"`
	DeathRate float64 `yaml:"death_rate"`

	// World.
	WorldSize      float64 `yaml:"world_size"`
	NodeCount      int     `yaml:"node_count"`
	NodeCapacity   int     `yaml:"node_capacity"`
	RegenPerCycle  int     `yaml:"regen_per_cycle"`
	CarryCapacity  int     `yaml:"carry_capacity"`
	HarvestPerTick int     `yaml:"harvest_per_tick"`

	// Infrastructure.
	DBPath  string `yaml:"db_path"`
	APIAddr string `yaml:"api_addr"`
}

// Default returns the baseline configuration the simulation ships with.
func Default() Config {
	return Config{
		Seed:           42,
		FastTickMs:     100,
		SlowTickMs:     1000,
		VerySlowTickMs: 60000,

		InitialSupply:   20000.0,
		ReferenceSupply: 10000.0,

		BasePrices: Prices{
			Wood:  5.0,
			Stone: 3.0,
			Iron:  15.0,
			Food:  10.0,
		},
		PriceFloorRatio:   0.5,
		PriceCeilingRatio: 3.0,
		PriceStepRatio:    0.25,
		RebalanceSurplus:  20.0,
		RebalanceMax:      10,

		FundMultiplier:  3.0,
		FundSafetyRatio: 1.0,

		LaborFloor:      0.3,
		DemandSmoothing: 1.0,

		Wages: Wages{
			Harvester: 1.0,
			Builder:   1.5,
		},
		TaxRate:      0.05,
		TaxThreshold: 20.0,

		BirthRate: 0.01,
		DeathRate: 0.005,

		WorldSize:      90.0,
		NodeCount:      50,
		NodeCapacity:   200,
		RegenPerCycle:  5,
		CarryCapacity:  20,
		HarvestPerTick: 2,

		DBPath:  "data/ashgrove.db",
		APIAddr: ":8080",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would violate engine invariants.
func (c Config) Validate() error {
	if c.FastTickMs <= 0 || c.SlowTickMs <= 0 || c.VerySlowTickMs <= 0 {
		return fmt.Errorf("tick periods must be positive")
	}
	if c.PriceFloorRatio <= 0 || c.PriceCeilingRatio < c.PriceFloorRatio {
		return fmt.Errorf("price clamp bounds invalid: floor %.2f ceiling %.2f", c.PriceFloorRatio, c.PriceCeilingRatio)
	}
	if c.FundMultiplier < 1.0 {
		return fmt.Errorf("fund_multiplier must be >= 1.0")
	}
	if c.LaborFloor < 0 || c.LaborFloor > 1 {
		return fmt.Errorf("labor_floor must be in [0,1]")
	}
	if c.DemandSmoothing <= 0 {
		return fmt.Errorf("demand_smoothing must be positive")
	}
	if c.InitialSupply < 0 || c.ReferenceSupply <= 0 {
		return fmt.Errorf("currency supply values invalid")
	}
	return nil
}

// FastTick returns the fast phase period.
func (c Config) FastTick() time.Duration { return time.Duration(c.FastTickMs) * time.Millisecond }

// SlowTick returns the slow phase period.
func (c Config) SlowTick() time.Duration { return time.Duration(c.SlowTickMs) * time.Millisecond }

// VerySlowTick returns the very-slow phase period.
func (c Config) VerySlowTick() time.Duration {
	return time.Duration(c.VerySlowTickMs) * time.Millisecond
}
