package buildings

import (
	"sync"

	"github.com/tarrenhall/ashgrove/internal/sim"
)

// Registry holds every building behind one lock.
type Registry struct {
	mu        sync.RWMutex
	buildings map[sim.BuildingID]*Building
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{buildings: make(map[sim.BuildingID]*Building)}
}

// Add inserts a building and returns its id.
func (g *Registry) Add(b Building) sim.BuildingID {
	if b.ID.IsZero() {
		b.ID = sim.NewBuildingID()
	}
	if b.Delivered == nil {
		b.Delivered = make(map[sim.Resource]int)
	}
	if b.Consumed == nil {
		b.Consumed = make(map[sim.Resource]int)
	}
	if b.Storage == nil {
		b.Storage = make(map[sim.Resource]int)
	}
	g.mu.Lock()
	g.buildings[b.ID] = &b
	g.mu.Unlock()
	return b.ID
}

// DepositFund adds money to a building's fund.
func (g *Registry) DepositFund(id sim.BuildingID, amount float64) error {
	if amount <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buildings[id]
	if !ok {
		return ErrNotFound
	}
	b.Fund += amount
	return nil
}

// WithdrawFund draws money from a building's fund. An overdraw fails
// with ErrInsufficientFunds and changes nothing.
func (g *Registry) WithdrawFund(id sim.BuildingID, amount float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buildings[id]
	if !ok {
		return ErrNotFound
	}
	if amount < 0 || amount > b.Fund {
		return ErrInsufficientFunds
	}
	b.Fund -= amount
	return nil
}

// Fund returns a building's fund balance.
func (g *Registry) Fund(id sim.BuildingID) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.buildings[id]
	if !ok {
		return 0, ErrNotFound
	}
	return b.Fund, nil
}

// Deliver records qty units of r arriving on site. Delivery beyond the
// required bill is clamped and the surplus returned to the caller.
func (g *Registry) Deliver(id sim.BuildingID, r sim.Resource, qty int) (surplus int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buildings[id]
	if !ok {
		return qty, ErrNotFound
	}
	room := b.Required[r] - b.Delivered[r]
	if room < 0 {
		room = 0
	}
	taken := qty
	if taken > room {
		taken = room
	}
	b.Delivered[r] += taken
	return qty - taken, nil
}

// Advance applies work (a progress fraction) to a building. Progress
// can only reach the fraction of the bill that has been delivered, and
// materials are consumed in proportion to progress. Returns the new
// progress and whether the building just completed.
func (g *Registry) Advance(id sim.BuildingID, work float64) (float64, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buildings[id]
	if !ok {
		return 0, false, ErrNotFound
	}
	if b.Status == Complete || work <= 0 {
		return b.Progress, false, nil
	}

	// Delivered materials cap how far construction can go.
	limit := 1.0
	for r, req := range b.Required {
		if req == 0 {
			continue
		}
		frac := float64(b.Delivered[r]) / float64(req)
		if frac < limit {
			limit = frac
		}
	}

	next := b.Progress + work
	if next > limit {
		next = limit
	}
	if next <= b.Progress {
		return b.Progress, false, nil
	}
	b.Progress = next

	for r, req := range b.Required {
		want := int(b.Progress * float64(req))
		if want > b.Delivered[r] {
			want = b.Delivered[r]
		}
		if want > b.Consumed[r] {
			b.Consumed[r] = want
		}
	}

	if b.Progress >= 1.0 {
		b.Progress = 1.0
		b.Status = Complete
		for r, req := range b.Required {
			b.Consumed[r] = req
		}
		return 1.0, true, nil
	}
	return b.Progress, false, nil
}

// Store puts goods into a finished building's storage.
func (g *Registry) Store(id sim.BuildingID, r sim.Resource, qty int) error {
	if qty <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buildings[id]
	if !ok {
		return ErrNotFound
	}
	b.Storage[r] += qty
	return nil
}

// TakeStorage removes up to qty units from storage, returning the
// amount actually taken.
func (g *Registry) TakeStorage(id sim.BuildingID, r sim.Resource, qty int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buildings[id]
	if !ok {
		return 0, ErrNotFound
	}
	got := qty
	if got > b.Storage[r] {
		got = b.Storage[r]
	}
	b.Storage[r] -= got
	return got, nil
}

// Get returns a deep copy of one building.
func (g *Registry) Get(id sim.BuildingID) (Building, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.buildings[id]
	if !ok {
		return Building{}, false
	}
	return copyBuilding(b), true
}

// Snapshot returns deep copies of every building.
func (g *Registry) Snapshot() []Building {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Building, 0, len(g.buildings))
	for _, b := range g.buildings {
		out = append(out, copyBuilding(b))
	}
	return out
}

// Incomplete returns ids of buildings still under construction.
func (g *Registry) Incomplete() []sim.BuildingID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []sim.BuildingID
	for id, b := range g.buildings {
		if b.Status != Complete {
			out = append(out, id)
		}
	}
	return out
}

// CompletedOfKind returns ids of finished buildings of one kind.
func (g *Registry) CompletedOfKind(kind Kind) []sim.BuildingID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []sim.BuildingID
	for id, b := range g.buildings {
		if b.Kind == kind && b.Status == Complete {
			out = append(out, id)
		}
	}
	return out
}

// OutstandingCost prices what each incomplete building still needs at
// the given prices, keyed by building.
func (g *Registry) OutstandingCost(prices map[sim.Resource]float64) map[sim.BuildingID]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[sim.BuildingID]float64)
	for id, b := range g.buildings {
		if b.Status != Complete {
			out[id] = b.estimateCost(prices)
		}
	}
	return out
}

// Needs returns every resource an incomplete building still lacks,
// measured by outstanding units net of material already in transit.
// A complete or unknown building needs nothing.
func (g *Registry) Needs(id sim.BuildingID, inTransit map[sim.Resource]int) map[sim.Resource]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.buildings[id]
	if !ok || b.Status == Complete {
		return nil
	}
	out := make(map[sim.Resource]int)
	for r, qty := range b.Outstanding() {
		if qty -= inTransit[r]; qty > 0 {
			out[r] = qty
		}
	}
	return out
}

// TotalFunds sums every building fund, for money conservation checks.
func (g *Registry) TotalFunds() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := 0.0
	for _, b := range g.buildings {
		total += b.Fund
	}
	return total
}

func copyBuilding(b *Building) Building {
	cp := *b
	cp.Required = copyCounts(b.Required)
	cp.Delivered = copyCounts(b.Delivered)
	cp.Consumed = copyCounts(b.Consumed)
	cp.Storage = copyCounts(b.Storage)
	return cp
}

func copyCounts(m map[sim.Resource]int) map[sim.Resource]int {
	out := make(map[sim.Resource]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
