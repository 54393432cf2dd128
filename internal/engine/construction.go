// Construction financing and builder behavior. Each site carries its
// own fund; builders draw on it to buy materials at market, carry them
// to the site, and work the delivered stock into the structure.
package engine

import (
	"errors"

	"github.com/tarrenhall/ashgrove/internal/agents"
	"github.com/tarrenhall/ashgrove/internal/buildings"
	"github.com/tarrenhall/ashgrove/internal/sim"
)

// workPerBuilder is the progress one builder adds per slow tick when
// materials allow.
const workPerBuilder = 0.02

// stepBuilders advances every builder one work step: fetch materials
// while the site needs them, otherwise build. The pass works off a
// roster snapshot and commits through targeted updates, so no site or
// market lock is ever taken under the roster lock.
func (s *Simulation) stepBuilders(tick uint64) {
	inTransit := s.materialInTransit()
	var finished []sim.BuildingID

	for _, a := range s.Roster.Snapshot() {
		if !a.Alive || a.Job != agents.Builder || a.WorkSite.IsZero() {
			continue
		}
		site, ok := s.Buildings.Get(a.WorkSite)
		if !ok || site.Status == buildings.Complete {
			s.Roster.Update(a.ID, func(ag *agents.Agent) {
				ag.WorkSite = sim.BuildingID{}
				ag.State = agents.Idle
			})
			continue
		}

		switch a.State {
		case agents.Idle:
			if a.Carrying == nil && len(s.Buildings.Needs(a.WorkSite, inTransit[a.WorkSite])) > 0 {
				mkID, mkPos, ok := s.nearestMarket(a.Position)
				if !ok {
					continue
				}
				s.Roster.Update(a.ID, func(ag *agents.Agent) {
					ag.HomeMarket = mkID
					ag.Destination = mkPos
					ag.State = agents.MovingToMarket
				})
				continue
			}
			// Carrying a load, or everything the site needs is on site
			// or on the road; head over and build.
			s.Roster.Update(a.ID, func(ag *agents.Agent) {
				ag.Destination = site.Position
				ag.State = agents.MovingToNode
			})

		case agents.Harvesting: // Arrived at the site.
			if a.Carrying != nil && a.Carrying.Building == a.WorkSite {
				load := *a.Carrying
				surplus, err := s.Buildings.Deliver(a.WorkSite, load.Resource, load.Quantity)
				s.Roster.Update(a.ID, func(ag *agents.Agent) {
					if err == nil && surplus > 0 {
						ag.Inventory[load.Resource] += surplus
					}
					ag.Carrying = nil
				})
			}
			_, done, err := s.Buildings.Advance(a.WorkSite, workPerBuilder)
			if err == nil && done {
				finished = append(finished, a.WorkSite)
			}

		case agents.Delivering: // Arrived at the market.
			s.Roster.Update(a.ID, func(ag *agents.Agent) { ag.State = agents.Idle })
			s.builderPurchase(a.ID, a.WorkSite, inTransit[a.WorkSite])
		}
	}

	for _, id := range finished {
		s.completeBuilding(tick, id)
	}
}

// materialInTransit sums what builders are already carrying toward
// each site so purchases don't overshoot the bill.
func (s *Simulation) materialInTransit() map[sim.BuildingID]map[sim.Resource]int {
	out := make(map[sim.BuildingID]map[sim.Resource]int)
	for _, a := range s.Roster.Snapshot() {
		if !a.Alive || a.Carrying == nil || a.Carrying.Building.IsZero() {
			continue
		}
		m := out[a.Carrying.Building]
		if m == nil {
			m = make(map[sim.Resource]int)
			out[a.Carrying.Building] = m
		}
		m[a.Carrying.Resource] += a.Carrying.Quantity
	}
	return out
}

// builderPurchase buys one load of the cheapest material the site
// still lacks from the builder's market, paid for by the building
// fund. Cheapest-first stretches a thin fund across more deliveries.
// The purchase is all-or-nothing: if the fund can't cover the full
// load at the current price, nothing is bought and nothing is charged.
func (s *Simulation) builderPurchase(agent sim.AgentID, site sim.BuildingID, transit map[sim.Resource]int) {
	needs := s.Buildings.Needs(site, transit)
	if len(needs) == 0 {
		return
	}

	var mkID sim.MarketID
	found := s.Roster.Update(agent, func(a *agents.Agent) { mkID = a.HomeMarket })
	if !found || mkID.IsZero() {
		return
	}

	mk, ok := s.Markets.Get(mkID)
	if !ok {
		return
	}

	var r sim.Resource
	need, price := 0, 0.0
	for _, cand := range sim.AllResources() {
		if needs[cand] <= 0 {
			continue
		}
		g, ok := mk.Goods[cand]
		if !ok || g.Quantity == 0 {
			continue
		}
		if need == 0 || g.CurrentPrice < price {
			r, need, price = cand, needs[cand], g.CurrentPrice
		}
	}
	if need == 0 {
		return
	}

	qty := need
	if qty > s.cfg.CarryCapacity {
		qty = s.cfg.CarryCapacity
	}
	if stock := mk.Goods[r].Quantity; stock < qty {
		qty = stock
	}
	cost := float64(qty) * price

	if err := s.Buildings.WithdrawFund(site, cost); err != nil {
		if errors.Is(err, buildings.ErrInsufficientFunds) {
			s.log.Debug("building fund short", "building", site, "resource", r.Name(), "cost", cost)
		}
		return
	}
	if _, err := s.Markets.BuyStock(mkID, r, qty); err != nil {
		// Undo the withdrawal; the stock moved under us.
		_ = s.Buildings.DepositFund(site, cost)
		return
	}

	s.Roster.Update(agent, func(a *agents.Agent) {
		a.Carrying = &agents.Carrying{Resource: r, Quantity: qty, Building: site}
	})
}

// completeBuilding closes out a finished site: the order book is
// notified and any fund remainder returns to the patron.
func (s *Simulation) completeBuilding(tick uint64, id sim.BuildingID) {
	s.Orders.Complete(id)

	b, ok := s.Buildings.Get(id)
	if !ok {
		return
	}
	if b.Fund > 0 {
		if err := s.Buildings.WithdrawFund(id, b.Fund); err == nil {
			refunded := s.Roster.Update(b.Owner, func(a *agents.Agent) {
				a.Wallet.Deposit(b.Fund)
			})
			if !refunded {
				// Patron gone; retire the remainder.
				s.Currency.Burn(b.Fund)
			}
		}
	}
	s.pushEvent(tick, "construction", b.Name+" completed")
	s.log.Info("building completed", "building", b.Name, "kind", b.Kind.String())
}

// commissionBuildings has wealthy patrons file new construction
// orders. A patron commissions at most one building at a time and only
// when their wallet could cover a meaningful share of the bill.
func (s *Simulation) commissionBuildings(tick uint64) {
	open := make(map[sim.AgentID]bool)
	for _, o := range s.Orders.Snapshot() {
		if o.Status == buildings.Pending || o.Status == buildings.InProgress {
			open[o.Patron] = true
		}
	}

	prices := s.marketPrices()
	kinds := []buildings.Kind{
		buildings.House, buildings.Granary, buildings.Blacksmith,
		buildings.Church, buildings.Barracks, buildings.Keep,
	}

	type wish struct {
		patron sim.AgentID
		kind   buildings.Kind
		name   string
		pos    sim.Position
	}
	var wishes []wish
	s.Roster.UpdateLiving(func(a *agents.Agent) {
		if a.Class != agents.Noble && a.Class != agents.King {
			return
		}
		if open[a.ID] || s.rng.Float64() > 0.25 {
			return
		}
		kind := kinds[s.rng.Intn(len(kinds))]
		estimate := 0.0
		for r, qty := range kind.Requirements() {
			estimate += float64(qty) * prices[r]
		}
		if a.Wallet.Balance < estimate/2 {
			return
		}
		pos := sim.Pos(
			a.Position.X+(s.rng.Float64()*2-1)*10,
			a.Position.Z+(s.rng.Float64()*2-1)*10,
		)
		wishes = append(wishes, wish{
			patron: a.ID,
			kind:   kind,
			name:   a.Name + "'s " + kind.String(),
			pos:    pos,
		})
	})

	for _, w := range wishes {
		s.Orders.Place(w.patron, w.kind, w.name, w.pos)
		s.pushEvent(tick, "construction", w.name+" commissioned")
	}
}

// financeConstruction funds pending commissions and tops up running
// sites. Funds are sized at a multiple of the bill priced at current
// market rates; the patron pays what they can and the crown mints the
// rest.
func (s *Simulation) financeConstruction(tick uint64) {
	prices := s.marketPrices()

	for _, o := range s.Orders.Pending() {
		b := buildings.New(o.Kind, o.Name, o.Position, o.Patron)
		estimate := 0.0
		for r, qty := range b.Required {
			estimate += float64(qty) * prices[r]
		}
		target := estimate * s.cfg.FundMultiplier

		id := s.Buildings.Add(b)
		s.FundFromPatron(id, o.Patron, target)
		s.Orders.Start(o.ID, id)
		s.pushEvent(tick, "construction", o.Name+" construction started")
		s.log.Info("construction funded",
			"building", o.Name, "kind", o.Kind.String(), "fund", target)
	}

	// Top up sites whose fund fell below the safety line for what the
	// bill still costs.
	for id, need := range s.Buildings.OutstandingCost(prices) {
		if need <= 0 {
			continue
		}
		fund, err := s.Buildings.Fund(id)
		if err != nil || fund >= need*s.cfg.FundSafetyRatio {
			continue
		}
		b, ok := s.Buildings.Get(id)
		if !ok {
			continue
		}
		target := need * s.cfg.FundMultiplier
		s.FundFromPatron(id, b.Owner, target-fund)
		s.log.Info("building fund replenished", "building", b.Name, "topup", target-fund)
	}
}

// FundFromPatron moves up to amount from the patron's wallet into the
// building fund, minting whatever the patron can't cover. Every coin
// that lands in the fund is accounted for on the currency ledger.
func (s *Simulation) FundFromPatron(id sim.BuildingID, patron sim.AgentID, amount float64) {
	if amount <= 0 {
		return
	}
	fromWallet := 0.0
	s.Roster.Update(patron, func(a *agents.Agent) {
		fromWallet = amount
		if fromWallet > a.Wallet.Balance {
			fromWallet = a.Wallet.Balance
		}
		a.Wallet.Withdraw(fromWallet)
	})
	if shortfall := amount - fromWallet; shortfall > 0 {
		s.Currency.Mint(shortfall)
	}
	_ = s.Buildings.DepositFund(id, amount)
}

// marketPrices averages each resource's current price across markets,
// falling back to base prices where no market lists it.
func (s *Simulation) marketPrices() map[sim.Resource]float64 {
	sums := make(map[sim.Resource]float64, sim.NumResources)
	counts := make(map[sim.Resource]int, sim.NumResources)
	for _, mk := range s.Markets.Snapshot() {
		for r, g := range mk.Goods {
			sums[r] += g.CurrentPrice
			counts[r]++
		}
	}
	out := make(map[sim.Resource]float64, sim.NumResources)
	for _, r := range sim.AllResources() {
		if counts[r] > 0 {
			out[r] = sums[r] / float64(counts[r])
		} else {
			out[r] = s.cfg.BasePrices.For(r)
		}
	}
	return out
}
