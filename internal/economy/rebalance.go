package economy

import "github.com/tarrenhall/ashgrove/internal/sim"

// transfer is a planned stock move between two markets. Planned moves
// are validated against live inventory before committing so a partial
// shuffle never leaves goods duplicated or destroyed.
type transfer struct {
	from, to sim.MarketID
	resource sim.Resource
	qty      int
}

// Rebalance moves inventory from over-stocked markets toward
// under-stocked ones. For each resource, markets holding more than the
// mean plus the surplus threshold ship up to maxPerMove units to the
// poorest market, and only when that market sits more than the
// threshold below the mean. Planning happens first over a read of the
// books, then each move re-checks the source before committing.
func (m *Markets) Rebalance(surplusThreshold float64, maxPerMove int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.markets) < 2 || maxPerMove <= 0 {
		return 0
	}

	var plan []transfer
	for r := sim.Resource(0); r < sim.NumResources; r++ {
		total, count := 0, 0
		var poorest *Market
		for _, mk := range m.markets {
			g, ok := mk.Goods[r]
			if !ok {
				continue
			}
			total += g.Quantity
			count++
			if poorest == nil || g.Quantity < poorest.Goods[r].Quantity {
				poorest = mk
			}
		}
		if count < 2 || poorest == nil {
			continue
		}
		mean := float64(total) / float64(count)
		if mean-float64(poorest.Goods[r].Quantity) <= surplusThreshold {
			// Nobody is badly short; leave the stock where it sells.
			continue
		}
		for _, mk := range m.markets {
			if mk == poorest {
				continue
			}
			g, ok := mk.Goods[r]
			if !ok {
				continue
			}
			excess := float64(g.Quantity) - mean - surplusThreshold
			if excess <= 0 {
				continue
			}
			qty := int(excess)
			if qty > maxPerMove {
				qty = maxPerMove
			}
			if qty > 0 {
				plan = append(plan, transfer{from: mk.ID, to: poorest.ID, resource: r, qty: qty})
			}
		}
	}

	moved := 0
	for _, t := range plan {
		src, dst := m.markets[t.from], m.markets[t.to]
		sg, ok := src.Goods[t.resource]
		if !ok || sg.Quantity < t.qty {
			continue
		}
		dg, ok := dst.Goods[t.resource]
		if !ok {
			dg = &Good{Resource: t.resource, BasePrice: sg.BasePrice, CurrentPrice: sg.CurrentPrice}
			dst.Goods[t.resource] = dg
		}
		sg.Quantity -= t.qty
		dg.Quantity += t.qty
		moved += t.qty
	}
	return moved
}
