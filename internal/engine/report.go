package engine

import (
	"github.com/dustin/go-humanize"
)

// report refreshes aggregate statistics and logs the periodic
// settlement summary.
func (s *Simulation) report(tick uint64) {
	cur := s.Currency.Stats()
	population := s.Roster.Living()
	wealth := s.Roster.TotalMoney()
	funds := s.Buildings.TotalFunds()
	incomplete := len(s.Buildings.Incomplete())

	s.mu.Lock()
	s.stats.SlowTicks = s.lastSlow
	s.stats.Population = population
	s.stats.AgentWealth = wealth
	s.stats.BuildingFund = funds
	s.stats.TradesTotal = cur.TradeCount
	s.stats.Incomplete = incomplete
	s.mu.Unlock()

	s.log.Info("settlement report",
		"cycle", tick,
		"population", population,
		"wealth", humanize.CommafWithDigits(wealth, 2),
		"building_funds", humanize.CommafWithDigits(funds, 2),
		"money_supply", humanize.CommafWithDigits(cur.Supply, 2),
		"inflation", humanize.FormatFloat("#.###", cur.InflationRate),
		"purchasing_power", humanize.FormatFloat("#.###", cur.PurchasingPower),
		"velocity", humanize.FormatFloat("#.##", cur.Velocity),
		"trades", humanize.Comma(int64(cur.TradeCount)),
		"sites_building", incomplete,
	)
}
