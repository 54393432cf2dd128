// Simulation ties together all settlement systems and runs them on the
// engine's three phases.
package engine

import (
	"log/slog"
	"math/rand"
	"sync"

	"github.com/tarrenhall/ashgrove/internal/agents"
	"github.com/tarrenhall/ashgrove/internal/buildings"
	"github.com/tarrenhall/ashgrove/internal/config"
	"github.com/tarrenhall/ashgrove/internal/economy"
	"github.com/tarrenhall/ashgrove/internal/sim"
	"github.com/tarrenhall/ashgrove/internal/world"
)

// arriveEpsilon is how close an agent must be to its destination to
// count as arrived.
const arriveEpsilon = 0.5

// maxEvents bounds the in-memory event log.
const maxEvents = 256

// buildersPerSite is how many builders one construction site employs.
const buildersPerSite = 5

// granaryLot caps how much food one granary buys per provisioning round.
const granaryLot = 25

// tradeReputation is how much each settled trade lifts the host
// market's standing.
const tradeReputation = 0.01

// Event is a notable occurrence in the settlement.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "economy", "construction", "birth", "death", "labor"
}

// Stats tracks aggregate settlement statistics, refreshed each
// very-slow tick.
type Stats struct {
	SlowTicks    uint64  `json:"slow_ticks"`
	Population   int     `json:"population"`
	AgentWealth  float64 `json:"agent_wealth"`
	BuildingFund float64 `json:"building_fund"`
	Births       int     `json:"births"`
	Deaths       int     `json:"deaths"`
	TradesTotal  int     `json:"trades_total"`
	Incomplete   int     `json:"incomplete_buildings"`
}

// Simulation holds the complete settlement state and wires the
// subsystems together.
type Simulation struct {
	cfg config.Config
	log *slog.Logger
	rng *rand.Rand

	World     *world.Ledger
	Markets   *economy.Markets
	Roster    *agents.Roster
	Buildings *buildings.Registry
	Orders    *buildings.OrderBook
	Currency  *economy.Ledger
	Spawner   *agents.Spawner

	mu       sync.RWMutex
	events   []Event
	stats    Stats
	lastSlow uint64
}

// NewSimulation wires a simulation from its parts.
func NewSimulation(cfg config.Config, log *slog.Logger, w *world.Ledger, m *economy.Markets, r *agents.Roster, b *buildings.Registry, cur *economy.Ledger) *Simulation {
	return &Simulation{
		cfg:       cfg,
		log:       log,
		rng:       rand.New(rand.NewSource(cfg.Seed + 700)),
		World:     w,
		Markets:   m,
		Roster:    r,
		Buildings: b,
		Orders:    buildings.NewOrderBook(),
		Currency:  cur,
		Spawner:   agents.NewSpawner(cfg.Seed),
	}
}

// Attach registers the simulation's phases on an engine.
func (s *Simulation) Attach(e *Engine) {
	e.OnFast = s.TickFast
	e.OnSlow = s.TickSlow
	e.OnVerySlow = s.TickVerySlow
}

// TickFast moves agents toward their destinations and flips their
// state on arrival.
func (s *Simulation) TickFast(tick uint64) {
	s.Roster.UpdateLiving(func(a *agents.Agent) {
		switch a.State {
		case agents.MovingToNode, agents.MovingToMarket:
			a.Position = a.Position.StepToward(a.Destination, a.Speed)
			if a.Position.DistanceTo(a.Destination) <= arriveEpsilon {
				if a.State == agents.MovingToNode {
					a.State = agents.Harvesting
				} else {
					a.State = agents.Delivering
				}
			}
		}
	})
}

// TickSlow runs one round of economic activity: harvesting, order
// placement, matching and settlement, price updates, wages, and
// construction work.
func (s *Simulation) TickSlow(tick uint64) {
	s.mu.Lock()
	s.lastSlow = tick
	s.mu.Unlock()

	s.stepHarvesters(tick)
	s.stepBuilders(tick)
	s.placeConsumptionOrders()
	s.settleTrades(tick)
	s.Markets.UpdatePrices()
	s.payWages()
}

// TickVerySlow runs settlement-level adjustments: labor reallocation,
// construction financing, taxation, demographics, world upkeep, and
// the periodic report.
func (s *Simulation) TickVerySlow(tick uint64) {
	s.reallocateLabor(tick)
	s.commissionBuildings(tick)
	s.financeConstruction(tick)
	s.provisionGranaries(tick, s.collectTaxes(tick))
	s.consumeFood(tick)
	s.demographics(tick)
	s.World.Regenerate(s.cfg.RegenPerCycle)
	s.Markets.Rebalance(s.cfg.RebalanceSurplus, s.cfg.RebalanceMax)
	s.watchScarcity()
	s.report(tick)
}

// stepHarvesters advances every harvesting agent one work step: idle
// workers pick a node, working ones gather, full ones head to market,
// delivering ones list their haul for sale. Decisions read a roster
// snapshot and commit through targeted updates, so no world or market
// lock is ever taken under the roster lock.
func (s *Simulation) stepHarvesters(tick uint64) {
	for _, a := range s.Roster.Snapshot() {
		if !a.Alive {
			continue
		}
		resources := a.Job.Harvests()
		if len(resources) == 0 {
			continue
		}
		switch a.State {
		case agents.Idle:
			s.sendToNode(a, resources)
		case agents.Harvesting:
			s.gather(a)
		case agents.Delivering:
			s.listHaul(a)
		}
	}
}

func (s *Simulation) sendToNode(a agents.Agent, resources []sim.Resource) {
	var best world.Node
	found := false
	for _, r := range resources {
		n, ok := s.World.FindNearest(a.Position, r)
		if !ok {
			continue
		}
		if !found || a.Position.DistanceTo(n.Position) < a.Position.DistanceTo(best.Position) {
			best = n
			found = true
		}
	}
	if !found {
		return
	}
	s.Roster.Update(a.ID, func(ag *agents.Agent) {
		ag.TargetNode = best.ID
		ag.Destination = best.Position
		ag.State = agents.MovingToNode
	})
}

func (s *Simulation) gather(a agents.Agent) {
	got := s.World.Harvest(a.TargetNode, s.cfg.HarvestPerTick)
	yield := sim.Wood
	if node, ok := s.World.Get(a.TargetNode); ok {
		yield = node.Kind.Yields()
	} else {
		got = 0
	}

	full := inventoryTotal(a.Inventory)+got >= s.cfg.CarryCapacity
	var mkID sim.MarketID
	var mkPos sim.Position
	market := false
	if got == 0 || full {
		mkID, mkPos, market = s.nearestMarket(a.Position)
	}

	s.Roster.Update(a.ID, func(ag *agents.Agent) {
		if got > 0 {
			ag.Inventory[yield] += got
		}
		if got > 0 && !full {
			return
		}
		if market {
			ag.HomeMarket = mkID
			ag.Destination = mkPos
			ag.State = agents.MovingToMarket
		} else {
			ag.State = agents.Idle
		}
	})
}

func (s *Simulation) listHaul(a agents.Agent) {
	s.Roster.Update(a.ID, func(ag *agents.Agent) { ag.State = agents.Idle })
	if a.HomeMarket.IsZero() {
		return
	}
	for _, r := range sim.AllResources() {
		qty := a.Inventory[r]
		if qty <= 0 {
			continue
		}
		price, err := s.Markets.Price(a.HomeMarket, r)
		if err != nil {
			continue
		}
		ask := price * 0.9
		if _, err := s.Markets.PlaceSellOrder(a.HomeMarket, a.ID, r, qty, ask); err != nil {
			s.log.Warn("sell order rejected", "agent", a.ID, "resource", r.Name(), "err", err)
		}
	}
}

// nearestMarket resolves the closest market's id and position.
func (s *Simulation) nearestMarket(pos sim.Position) (sim.MarketID, sim.Position, bool) {
	id, ok := s.Markets.Nearest(pos)
	if !ok {
		return sim.MarketID{}, sim.Position{}, false
	}
	mk, ok := s.Markets.Get(id)
	if !ok {
		return sim.MarketID{}, sim.Position{}, false
	}
	return id, mk.Position, true
}

// placeConsumptionOrders has agents who ran out of food bid for more
// at their nearest market. The pass works off a roster snapshot; the
// buyer's balance is re-checked at settlement.
func (s *Simulation) placeConsumptionOrders() {
	for _, a := range s.Roster.Snapshot() {
		if !a.Alive || a.Inventory[sim.Food] > 0 || a.Job == agents.Farmer {
			continue
		}
		mkID, ok := s.Markets.Nearest(a.Position)
		if !ok {
			continue
		}
		price, err := s.Markets.Price(mkID, sim.Food)
		if err != nil {
			continue
		}
		limit := price * 1.2
		if a.Wallet.Balance < limit {
			continue
		}
		if _, err := s.Markets.PlaceBuyOrder(mkID, a.ID, sim.Food, 1, limit); err != nil {
			s.log.Warn("buy order rejected", "agent", a.ID, "err", err)
		}
	}
}

// settleTrades matches every book and settles the fills. A trade only
// goes through when the buyer still has the money and the seller still
// has the goods; anything else is skipped and logged. Settled money is
// recorded on the currency ledger and each settlement lifts the host
// market's reputation a little.
func (s *Simulation) settleTrades(tick uint64) {
	trades := s.Markets.MatchOrders()
	for _, t := range trades {
		total := t.Total()
		settled := false
		ok := s.Roster.UpdatePair(t.Buyer, t.Seller, func(buyer, seller *agents.Agent) {
			if seller.Inventory[t.Resource] < t.Quantity {
				return
			}
			if !buyer.Wallet.Withdraw(total) {
				return
			}
			seller.Wallet.Deposit(total)
			seller.Inventory[t.Resource] -= t.Quantity
			buyer.Inventory[t.Resource] += t.Quantity
			s.Currency.RecordTransaction(total)
			s.pushEvent(tick, "economy",
				t.Resource.Name()+" trade settled")
			settled = true
		})
		if !ok {
			s.log.Debug("trade dropped, counterparty gone",
				"buyer", t.Buyer, "seller", t.Seller, "resource", t.Resource.Name())
		}
		if settled {
			s.Markets.AdjustReputation(t.Market, tradeReputation)
		}
	}
}

// payWages mints each working agent's wage for the round.
func (s *Simulation) payWages() {
	minted := 0.0
	s.Roster.UpdateLiving(func(a *agents.Agent) {
		var wage float64
		switch {
		case a.Job == agents.Builder:
			wage = s.cfg.Wages.Builder
		case len(a.Job.Harvests()) > 0:
			wage = s.cfg.Wages.Harvester
		default:
			return
		}
		a.Wallet.Deposit(wage)
		minted += wage
	})
	s.Currency.Mint(minted)
}

// collectTaxes takes a share of wealth above the threshold and returns
// the amount raised for provisioning.
func (s *Simulation) collectTaxes(tick uint64) float64 {
	collected := 0.0
	s.Roster.UpdateLiving(func(a *agents.Agent) {
		taxable := a.Wallet.Balance - s.cfg.TaxThreshold
		if taxable <= 0 {
			return
		}
		due := taxable * s.cfg.TaxRate
		if a.Wallet.Withdraw(due) {
			collected += due
		}
	})
	if collected > 0 {
		s.pushEvent(tick, "economy", "taxes collected")
		s.log.Info("taxes collected", "amount", collected)
	}
	return collected
}

// provisionGranaries spends tax money on market food for each finished
// granary's stores. Whatever the dole does not spend is retired from
// circulation.
func (s *Simulation) provisionGranaries(tick uint64, budget float64) {
	for _, id := range s.Buildings.CompletedOfKind(buildings.Granary) {
		if budget <= 0 {
			break
		}
		b, ok := s.Buildings.Get(id)
		if !ok {
			continue
		}
		market, ok := s.Markets.Nearest(b.Position)
		if !ok {
			continue
		}
		price, err := s.Markets.Price(market, sim.Food)
		if err != nil || price <= 0 {
			continue
		}
		qty := int(budget / price)
		if qty > granaryLot {
			qty = granaryLot
		}
		for qty > 0 {
			cost, err := s.Markets.BuyStock(market, sim.Food, qty)
			if err != nil {
				qty /= 2
				continue
			}
			if err := s.Buildings.Store(id, sim.Food, qty); err == nil {
				budget -= cost
				s.pushEvent(tick, "economy", b.Name+" provisioned from the markets")
			}
			break
		}
	}
	if budget > 0 {
		s.Currency.Burn(budget)
	}
}

// consumeFood has every agent eat one unit from inventory if they
// have it. Agents with empty larders draw on the public granaries
// before going without. Going without is survivable; scarcity shows up
// through the market instead of instant starvation.
func (s *Simulation) consumeFood(tick uint64) {
	hungry := 0
	s.Roster.UpdateLiving(func(a *agents.Agent) {
		if a.Inventory[sim.Food] > 0 {
			a.Inventory[sim.Food]--
		} else {
			hungry++
		}
	})

	fed := 0
	for _, id := range s.Buildings.CompletedOfKind(buildings.Granary) {
		if hungry <= 0 {
			break
		}
		got, err := s.Buildings.TakeStorage(id, sim.Food, hungry)
		if err != nil {
			continue
		}
		hungry -= got
		fed += got
	}
	if fed > 0 {
		s.pushEvent(tick, "economy", "the granaries fed the hungry")
		s.log.Debug("granary dole", "fed", fed, "still_hungry", hungry)
	}
}

// demographics applies births and deaths, then removes the dead and
// their open orders.
func (s *Simulation) demographics(tick uint64) {
	living := s.Roster.Living()
	births := s.expectedCount(float64(living) * s.cfg.BirthRate)
	deaths := s.expectedCount(float64(living) * s.cfg.DeathRate)

	center := sim.Pos(0, 0)
	for i := 0; i < births; i++ {
		s.Roster.Add(s.Spawner.SpawnPeasant(center, s.cfg.WorldSize/4))
		s.pushEvent(tick, "birth", "a child was born")
	}

	if deaths > 0 {
		snap := s.Roster.Snapshot()
		s.rng.Shuffle(len(snap), func(i, j int) { snap[i], snap[j] = snap[j], snap[i] })
		killed := 0
		for _, a := range snap {
			if killed >= deaths {
				break
			}
			if !a.Alive || a.Class == agents.King {
				continue
			}
			s.Roster.Kill(a.ID)
			killed++
			s.pushEvent(tick, "death", a.Name+" has died")
		}
	}

	for _, id := range s.Roster.Collect() {
		s.Markets.CancelAgentOrders(id)
	}

	s.mu.Lock()
	s.stats.Births += births
	s.stats.Deaths += deaths
	s.mu.Unlock()
}

// expectedCount turns a fractional expected value into an integer
// draw: the whole part always happens, the remainder is a coin flip.
func (s *Simulation) expectedCount(expect float64) int {
	n := int(expect)
	if s.rng.Float64() < expect-float64(n) {
		n++
	}
	return n
}

// watchScarcity logs when per-capita stocks run thin.
func (s *Simulation) watchScarcity() {
	living := s.Roster.Living()
	if living == 0 {
		return
	}
	stock := s.Markets.TotalStock()
	foodPC := float64(stock[sim.Food]) / float64(living)
	materialsPC := float64(stock[sim.Wood]+stock[sim.Stone]+stock[sim.Iron]) / float64(living)
	if foodPC < 0.5 {
		s.log.Warn("food scarcity", "per_capita", foodPC, "population", living)
	}
	if materialsPC < 0.5 {
		s.log.Warn("materials scarcity", "per_capita", materialsPC, "population", living)
	}
}

func (s *Simulation) pushEvent(tick uint64, category, description string) {
	s.mu.Lock()
	s.events = append(s.events, Event{Tick: tick, Description: description, Category: category})
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	s.mu.Unlock()
}

// Events returns a copy of the recent event log.
func (s *Simulation) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Stats returns the latest aggregate statistics.
func (s *Simulation) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func inventoryTotal(inv map[sim.Resource]int) int {
	total := 0
	for _, qty := range inv {
		total += qty
	}
	return total
}
