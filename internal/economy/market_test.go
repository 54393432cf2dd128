package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarrenhall/ashgrove/internal/sim"
)

func testPricing() PriceConfig {
	return PriceConfig{FloorRatio: 0.5, CeilingRatio: 3.0, StepRatio: 0.25}
}

func newTestMarket(t *testing.T, stock map[sim.Resource]int) (*Markets, sim.MarketID) {
	t.Helper()
	m := NewMarkets(testPricing())
	id := m.CreateMarket("plaza", sim.Pos(0, 0), map[sim.Resource]float64{
		sim.Wood:  5.0,
		sim.Stone: 3.0,
		sim.Iron:  15.0,
		sim.Food:  10.0,
	}, stock)
	return m, id
}

func TestMidpointFill(t *testing.T) {
	m, id := newTestMarket(t, nil)
	buyer, seller := sim.NewAgentID(), sim.NewAgentID()

	_, err := m.PlaceBuyOrder(id, buyer, sim.Wood, 10, 6.0)
	require.NoError(t, err)
	_, err = m.PlaceSellOrder(id, seller, sim.Wood, 10, 4.0)
	require.NoError(t, err)

	trades := m.MatchOrders()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, buyer, tr.Buyer)
	assert.Equal(t, seller, tr.Seller)
	assert.Equal(t, 10, tr.Quantity)
	assert.Equal(t, 5.0, tr.Price)
	assert.Equal(t, 50.0, tr.Total())

	// Both orders filled in full and left the book.
	buys, sells := m.OpenOrders(id)
	assert.Empty(t, buys)
	assert.Empty(t, sells)
}

func TestPartialFillRests(t *testing.T) {
	m, id := newTestMarket(t, nil)

	m.PlaceBuyOrder(id, sim.NewAgentID(), sim.Stone, 4, 5.0)
	m.PlaceSellOrder(id, sim.NewAgentID(), sim.Stone, 10, 3.0)

	trades := m.MatchOrders()
	require.Len(t, trades, 1)
	assert.Equal(t, 4, trades[0].Quantity)
	assert.Equal(t, 4.0, trades[0].Price)

	buys, sells := m.OpenOrders(id)
	assert.Empty(t, buys)
	require.Len(t, sells, 1)
	assert.Equal(t, 6, sells[0].Quantity)
}

func TestNoCrossNoTrade(t *testing.T) {
	m, id := newTestMarket(t, nil)

	m.PlaceBuyOrder(id, sim.NewAgentID(), sim.Wood, 5, 3.0)
	m.PlaceSellOrder(id, sim.NewAgentID(), sim.Wood, 5, 6.0)

	assert.Empty(t, m.MatchOrders())
	buys, sells := m.OpenOrders(id)
	assert.Len(t, buys, 1)
	assert.Len(t, sells, 1)
}

func TestSelfTradeBlocked(t *testing.T) {
	m, id := newTestMarket(t, nil)
	a := sim.NewAgentID()

	m.PlaceBuyOrder(id, a, sim.Wood, 5, 6.0)
	m.PlaceSellOrder(id, a, sim.Wood, 5, 4.0)

	assert.Empty(t, m.MatchOrders())
}

func TestOldestBuyFillsFirst(t *testing.T) {
	m, id := newTestMarket(t, nil)
	first, second := sim.NewAgentID(), sim.NewAgentID()

	m.PlaceBuyOrder(id, first, sim.Food, 5, 12.0)
	m.PlaceBuyOrder(id, second, sim.Food, 5, 12.0)
	m.PlaceSellOrder(id, sim.NewAgentID(), sim.Food, 5, 8.0)

	trades := m.MatchOrders()
	require.Len(t, trades, 1)
	assert.Equal(t, first, trades[0].Buyer)
}

func TestPriceUnchangedWithoutBuyOrders(t *testing.T) {
	m, id := newTestMarket(t, map[sim.Resource]int{sim.Wood: 100})

	m.UpdatePrices()

	p, err := m.Price(id, sim.Wood)
	require.NoError(t, err)
	assert.Equal(t, 5.0, p)
}

func TestPriceRisesUnderDemandPressure(t *testing.T) {
	m, id := newTestMarket(t, map[sim.Resource]int{sim.Wood: 10})

	// Demand 40 against stock 10: target 5 × (0.8 + 0.4×4) = 12, but a
	// single update moves at most one step (0.25 × base = 1.25).
	m.PlaceBuyOrder(id, sim.NewAgentID(), sim.Wood, 40, 20.0)
	m.UpdatePrices()

	p, _ := m.Price(id, sim.Wood)
	assert.InDelta(t, 6.25, p, 1e-9)

	// Repeated updates converge on the target without passing it.
	for i := 0; i < 20; i++ {
		m.UpdatePrices()
	}
	p, _ = m.Price(id, sim.Wood)
	assert.InDelta(t, 12.0, p, 1e-9)
}

func TestPriceClampedToBounds(t *testing.T) {
	m, id := newTestMarket(t, nil) // Zero stock pushes toward 2× base.

	m.PlaceBuyOrder(id, sim.NewAgentID(), sim.Iron, 1000, 100.0)
	for i := 0; i < 200; i++ {
		m.UpdatePrices()
	}
	p, _ := m.Price(id, sim.Iron)
	assert.LessOrEqual(t, p, 15.0*3.0)
	assert.GreaterOrEqual(t, p, 15.0*0.5)
	assert.InDelta(t, 30.0, p, 1e-9) // Empty stock target is 2× base.
}

func TestBuyStockMovesMoneyToTreasury(t *testing.T) {
	m, id := newTestMarket(t, map[sim.Resource]int{sim.Wood: 50})

	cost, err := m.BuyStock(id, sim.Wood, 20)
	require.NoError(t, err)
	assert.Equal(t, 100.0, cost)

	mk, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, 30, mk.Goods[sim.Wood].Quantity)
	assert.Equal(t, 100.0, mk.Treasury)
}

func TestBuyStockInsufficient(t *testing.T) {
	m, id := newTestMarket(t, map[sim.Resource]int{sim.Wood: 5})

	_, err := m.BuyStock(id, sim.Wood, 20)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	mk, _ := m.Get(id)
	assert.Equal(t, 5, mk.Goods[sim.Wood].Quantity)
	assert.Equal(t, 0.0, mk.Treasury)
}

func TestCancelAgentOrders(t *testing.T) {
	m, id := newTestMarket(t, nil)
	dead := sim.NewAgentID()

	m.PlaceBuyOrder(id, dead, sim.Wood, 5, 6.0)
	m.PlaceSellOrder(id, dead, sim.Stone, 5, 2.0)
	m.PlaceBuyOrder(id, sim.NewAgentID(), sim.Wood, 5, 6.0)

	m.CancelAgentOrders(dead)

	buys, sells := m.OpenOrders(id)
	assert.Len(t, buys, 1)
	assert.Empty(t, sells)
}

func TestRebalanceConservesStock(t *testing.T) {
	m := NewMarkets(testPricing())
	base := map[sim.Resource]float64{sim.Wood: 5.0}
	rich := m.CreateMarket("rich", sim.Pos(0, 0), base, map[sim.Resource]int{sim.Wood: 100})
	poor := m.CreateMarket("poor", sim.Pos(10, 0), base, map[sim.Resource]int{sim.Wood: 0})

	before := m.TotalStock()[sim.Wood]
	moved := m.Rebalance(20.0, 10)
	after := m.TotalStock()[sim.Wood]

	assert.Equal(t, before, after)
	assert.Equal(t, 10, moved) // Capped at maxPerMove.

	richMk, _ := m.Get(rich)
	poorMk, _ := m.Get(poor)
	assert.Equal(t, 90, richMk.Goods[sim.Wood].Quantity)
	assert.Equal(t, 10, poorMk.Goods[sim.Wood].Quantity)
}

func TestRebalanceNoSurplusNoMove(t *testing.T) {
	m := NewMarkets(testPricing())
	base := map[sim.Resource]float64{sim.Wood: 5.0}
	m.CreateMarket("a", sim.Pos(0, 0), base, map[sim.Resource]int{sim.Wood: 30})
	m.CreateMarket("b", sim.Pos(10, 0), base, map[sim.Resource]int{sim.Wood: 20})

	// Mean 25, threshold 20: neither market is 20 above mean.
	assert.Equal(t, 0, m.Rebalance(20.0, 10))
}

func TestRebalanceNeedsAPoorRecipient(t *testing.T) {
	m := NewMarkets(testPricing())
	base := map[sim.Resource]float64{sim.Wood: 5.0}
	rich := m.CreateMarket("rich", sim.Pos(0, 0), base, map[sim.Resource]int{sim.Wood: 100})
	m.CreateMarket("mid a", sim.Pos(10, 0), base, map[sim.Resource]int{sim.Wood: 60})
	m.CreateMarket("mid b", sim.Pos(20, 0), base, map[sim.Resource]int{sim.Wood: 55})

	// Mean ~71.7: the rich market clears the surplus bar but the
	// poorest sits well within the threshold, so nothing ships.
	assert.Equal(t, 0, m.Rebalance(20.0, 10))

	richMk, _ := m.Get(rich)
	assert.Equal(t, 100, richMk.Goods[sim.Wood].Quantity)
}

func TestNearestMarket(t *testing.T) {
	m := NewMarkets(testPricing())
	base := map[sim.Resource]float64{sim.Wood: 5.0}
	m.CreateMarket("far", sim.Pos(40, 40), base, nil)
	near := m.CreateMarket("near", sim.Pos(1, 1), base, nil)

	got, ok := m.Nearest(sim.Pos(0, 0))
	require.True(t, ok)
	assert.Equal(t, near, got)
}
