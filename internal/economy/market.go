// Package economy provides market order matching, price formation, and
// the settlement currency ledger.
package economy

import (
	"errors"
	"sort"
	"sync"

	"github.com/tarrenhall/ashgrove/internal/sim"
)

var (
	// ErrNotFound is returned when a market or order id is unknown.
	ErrNotFound = errors.New("economy: not found")
	// ErrInsufficientStock is returned when a sell or transfer asks for
	// more inventory than the market holds.
	ErrInsufficientStock = errors.New("economy: insufficient stock")
)

// Good tracks one resource's inventory and pricing inside a market.
type Good struct {
	Resource     sim.Resource `json:"resource"`
	Quantity     int          `json:"quantity"`
	BasePrice    float64      `json:"base_price"`
	CurrentPrice float64      `json:"current_price"`
}

// OrderSide distinguishes buy from sell orders.
type OrderSide uint8

const (
	Buy OrderSide = iota
	Sell
)

func (s OrderSide) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Order is an open intent to trade at a limit price. Orders rest in the
// book until matched or withdrawn; partial fills reduce Quantity in place.
type Order struct {
	ID       sim.OrderID  `json:"id"`
	Agent    sim.AgentID  `json:"agent"`
	Side     OrderSide    `json:"side"`
	Resource sim.Resource `json:"resource"`
	Quantity int          `json:"quantity"`
	Price    float64      `json:"price"` // Max for buy, min for sell.
	Seq      uint64       `json:"seq"`   // Arrival order within the book.
}

// Trade records one matched fill. Settlement (moving money and goods
// between the two agents) happens outside the market, which only
// decides who trades with whom and at what price.
type Trade struct {
	Market   sim.MarketID `json:"market"`
	Buyer    sim.AgentID  `json:"buyer"`
	Seller   sim.AgentID  `json:"seller"`
	Resource sim.Resource `json:"resource"`
	Quantity int          `json:"quantity"`
	Price    float64      `json:"price"` // Per unit.
}

// Total returns the money that changes hands for this trade.
func (t Trade) Total() float64 { return float64(t.Quantity) * t.Price }

// Market holds one trading post's inventory, order book, and running
// reputation. The treasury accumulates money spent on direct inventory
// purchases so such spending stays inside the ledger.
type Market struct {
	ID               sim.MarketID           `json:"id"`
	Name             string                 `json:"name"`
	Position         sim.Position           `json:"position"`
	Goods            map[sim.Resource]*Good `json:"goods"`
	Treasury         float64                `json:"treasury"`
	TransactionCount int                    `json:"transaction_count"`
	Reputation       float64                `json:"reputation"`

	buys  []*Order
	sells []*Order
}

// PriceConfig bounds how prices move.
type PriceConfig struct {
	FloorRatio   float64 // Lowest price as a fraction of base.
	CeilingRatio float64 // Highest price as a fraction of base.
	StepRatio    float64 // Largest move per update as a fraction of base.
}

// Markets manages every market in the settlement behind one lock.
type Markets struct {
	mu      sync.RWMutex
	markets map[sim.MarketID]*Market
	pricing PriceConfig
	nextSeq uint64
}

// NewMarkets returns an empty manager with the given pricing bounds.
func NewMarkets(pricing PriceConfig) *Markets {
	return &Markets{
		markets: make(map[sim.MarketID]*Market),
		pricing: pricing,
	}
}

// CreateMarket opens a market stocked with the given goods at their
// base prices and returns its id.
func (m *Markets) CreateMarket(name string, pos sim.Position, basePrices map[sim.Resource]float64, stock map[sim.Resource]int) sim.MarketID {
	goods := make(map[sim.Resource]*Good, len(basePrices))
	for r, base := range basePrices {
		goods[r] = &Good{
			Resource:     r,
			Quantity:     stock[r],
			BasePrice:    base,
			CurrentPrice: base,
		}
	}
	mk := &Market{
		ID:         sim.NewMarketID(),
		Name:       name,
		Position:   pos,
		Goods:      goods,
		Reputation: 1.0,
	}
	m.mu.Lock()
	m.markets[mk.ID] = mk
	m.mu.Unlock()
	return mk.ID
}

// Restore reinserts a market loaded from a save.
func (m *Markets) Restore(mk *Market) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mk.Goods == nil {
		mk.Goods = make(map[sim.Resource]*Good)
	}
	m.markets[mk.ID] = mk
}

// PlaceBuyOrder rests a buy order on a market's book.
func (m *Markets) PlaceBuyOrder(market sim.MarketID, agent sim.AgentID, r sim.Resource, qty int, maxPrice float64) (sim.OrderID, error) {
	return m.place(market, agent, Buy, r, qty, maxPrice)
}

// PlaceSellOrder rests a sell order on a market's book.
func (m *Markets) PlaceSellOrder(market sim.MarketID, agent sim.AgentID, r sim.Resource, qty int, minPrice float64) (sim.OrderID, error) {
	return m.place(market, agent, Sell, r, qty, minPrice)
}

func (m *Markets) place(market sim.MarketID, agent sim.AgentID, side OrderSide, r sim.Resource, qty int, price float64) (sim.OrderID, error) {
	if qty <= 0 {
		return sim.OrderID{}, errors.New("economy: order quantity must be positive")
	}
	if price < 0 {
		return sim.OrderID{}, errors.New("economy: order price must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	mk, ok := m.markets[market]
	if !ok {
		return sim.OrderID{}, ErrNotFound
	}
	m.nextSeq++
	o := &Order{
		ID:       sim.NewOrderID(),
		Agent:    agent,
		Side:     side,
		Resource: r,
		Quantity: qty,
		Price:    price,
		Seq:      m.nextSeq,
	}
	if side == Buy {
		mk.buys = append(mk.buys, o)
	} else {
		mk.sells = append(mk.sells, o)
	}
	return o.ID, nil
}

// CancelAgentOrders withdraws every resting order an agent has on any
// market, used when an agent dies.
func (m *Markets) CancelAgentOrders(agent sim.AgentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mk := range m.markets {
		mk.buys = dropAgent(mk.buys, agent)
		mk.sells = dropAgent(mk.sells, agent)
	}
}

func dropAgent(book []*Order, agent sim.AgentID) []*Order {
	kept := book[:0]
	for _, o := range book {
		if o.Agent != agent {
			kept = append(kept, o)
		}
	}
	return kept
}

// MatchOrders walks each market's book oldest-buy first and fills
// against the oldest compatible sell. Fill quantity is the smaller of
// the two orders; the fill price is the midpoint of the two limits.
// Fully filled orders leave the book, partial fills rest with the
// remainder. The matched trades are returned for settlement.
func (m *Markets) MatchOrders() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	var trades []Trade
	for _, mk := range m.markets {
		trades = append(trades, matchBook(mk)...)
	}
	return trades
}

func matchBook(mk *Market) []Trade {
	sort.Slice(mk.buys, func(i, j int) bool { return mk.buys[i].Seq < mk.buys[j].Seq })
	sort.Slice(mk.sells, func(i, j int) bool { return mk.sells[i].Seq < mk.sells[j].Seq })

	var trades []Trade
	for _, buy := range mk.buys {
		if buy.Quantity <= 0 {
			continue
		}
		for _, sell := range mk.sells {
			if sell.Quantity <= 0 || sell.Resource != buy.Resource {
				continue
			}
			if buy.Price < sell.Price || buy.Agent == sell.Agent {
				continue
			}
			qty := buy.Quantity
			if sell.Quantity < qty {
				qty = sell.Quantity
			}
			price := (buy.Price + sell.Price) / 2
			trades = append(trades, Trade{
				Market:   mk.ID,
				Buyer:    buy.Agent,
				Seller:   sell.Agent,
				Resource: buy.Resource,
				Quantity: qty,
				Price:    price,
			})
			buy.Quantity -= qty
			sell.Quantity -= qty
			mk.TransactionCount++
			if buy.Quantity == 0 {
				break
			}
		}
	}

	mk.buys = dropFilled(mk.buys)
	mk.sells = dropFilled(mk.sells)
	return trades
}

func dropFilled(book []*Order) []*Order {
	kept := book[:0]
	for _, o := range book {
		if o.Quantity > 0 {
			kept = append(kept, o)
		}
	}
	return kept
}

// UpdatePrices adjusts each good's price toward demand pressure:
// target = base × (0.8 + 0.4 × demand/stock), with empty stock pushing
// toward twice base. Goods with no outstanding buy orders keep their
// price. Each update moves at most one step and the result stays
// inside the configured clamp.
func (m *Markets) UpdatePrices() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mk := range m.markets {
		demand := make(map[sim.Resource]int, sim.NumResources)
		for _, o := range mk.buys {
			demand[o.Resource] += o.Quantity
		}
		for r, g := range mk.Goods {
			d, ok := demand[r]
			if !ok || d == 0 {
				continue
			}
			var target float64
			if g.Quantity <= 0 {
				target = g.BasePrice * 2.0
			} else {
				target = g.BasePrice * (0.8 + 0.4*float64(d)/float64(g.Quantity))
			}
			step := g.BasePrice * m.pricing.StepRatio
			next := sim.Clamp(target, g.CurrentPrice-step, g.CurrentPrice+step)
			g.CurrentPrice = sim.Clamp(next, g.BasePrice*m.pricing.FloorRatio, g.BasePrice*m.pricing.CeilingRatio)
		}
	}
}

// BuyStock sells qty units of market inventory at the current price.
// The payment lands in the market treasury. Returns the total cost, or
// ErrInsufficientStock without touching anything when the market holds
// less than qty.
func (m *Markets) BuyStock(market sim.MarketID, r sim.Resource, qty int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mk, ok := m.markets[market]
	if !ok {
		return 0, ErrNotFound
	}
	g, ok := mk.Goods[r]
	if !ok || g.Quantity < qty {
		return 0, ErrInsufficientStock
	}
	cost := float64(qty) * g.CurrentPrice
	g.Quantity -= qty
	mk.Treasury += cost
	mk.TransactionCount++
	return cost, nil
}

// Price returns the current price of a resource at a market.
func (m *Markets) Price(market sim.MarketID, r sim.Resource) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mk, ok := m.markets[market]
	if !ok {
		return 0, ErrNotFound
	}
	g, ok := mk.Goods[r]
	if !ok {
		return 0, ErrNotFound
	}
	return g.CurrentPrice, nil
}

// Deposit adds units to a market's inventory, used by trade settlement
// and restocking.
func (m *Markets) Deposit(market sim.MarketID, r sim.Resource, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.markets[market]
	if !ok {
		return ErrNotFound
	}
	g, ok := mk.Goods[r]
	if !ok {
		g = &Good{Resource: r, BasePrice: 1, CurrentPrice: 1}
		mk.Goods[r] = g
	}
	g.Quantity += qty
	return nil
}

// AdjustReputation nudges a market's reputation, clamped to [0, 2].
func (m *Markets) AdjustReputation(market sim.MarketID, delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mk, ok := m.markets[market]; ok {
		mk.Reputation = sim.Clamp(mk.Reputation+delta, 0, 2)
	}
}

// Get returns a deep copy of one market.
func (m *Markets) Get(id sim.MarketID) (Market, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mk, ok := m.markets[id]
	if !ok {
		return Market{}, false
	}
	return copyMarket(mk), true
}

// Nearest returns the id of the market closest to a position.
func (m *Markets) Nearest(from sim.Position) (sim.MarketID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best sim.MarketID
	bestDist := 0.0
	found := false
	for id, mk := range m.markets {
		d := from.DistanceTo(mk.Position)
		if !found || d < bestDist {
			best, bestDist, found = id, d, true
		}
	}
	return best, found
}

// Snapshot returns deep copies of every market, for the API and saves.
func (m *Markets) Snapshot() []Market {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Market, 0, len(m.markets))
	for _, mk := range m.markets {
		out = append(out, copyMarket(mk))
	}
	return out
}

// OpenOrders returns copies of a market's resting orders.
func (m *Markets) OpenOrders(market sim.MarketID) (buys, sells []Order) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mk, ok := m.markets[market]
	if !ok {
		return nil, nil
	}
	for _, o := range mk.buys {
		buys = append(buys, *o)
	}
	for _, o := range mk.sells {
		sells = append(sells, *o)
	}
	return buys, sells
}

// TotalStock sums inventory per resource across all markets.
func (m *Markets) TotalStock() map[sim.Resource]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[sim.Resource]int, sim.NumResources)
	for _, mk := range m.markets {
		for r, g := range mk.Goods {
			out[r] += g.Quantity
		}
	}
	return out
}

func copyMarket(mk *Market) Market {
	cp := *mk
	cp.Goods = make(map[sim.Resource]*Good, len(mk.Goods))
	for r, g := range mk.Goods {
		gc := *g
		cp.Goods[r] = &gc
	}
	cp.buys, cp.sells = nil, nil
	return cp
}
