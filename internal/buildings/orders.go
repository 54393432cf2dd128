package buildings

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tarrenhall/ashgrove/internal/sim"
)

// OrderStatus is a commission's lifecycle stage.
type OrderStatus uint8

const (
	Pending OrderStatus = iota
	InProgress
	Completed
	Cancelled
)

var orderStatusNames = [...]string{"pending", "in_progress", "completed", "cancelled"}

func (s OrderStatus) String() string {
	if int(s) < len(orderStatusNames) {
		return orderStatusNames[s]
	}
	return "unknown"
}

// ConstructionOrder is a commission placed by a patron for a new
// building. Pending orders wait for financing; once funded they get a
// building id and move to InProgress.
type ConstructionOrder struct {
	ID       uuid.UUID      `json:"id"`
	Patron   sim.AgentID    `json:"patron"`
	Kind     Kind           `json:"kind"`
	Name     string         `json:"name"`
	Position sim.Position   `json:"position"`
	Status   OrderStatus    `json:"status"`
	Building sim.BuildingID `json:"building,omitempty"`
}

// OrderBook holds construction commissions.
type OrderBook struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*ConstructionOrder
}

// NewOrderBook returns an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{orders: make(map[uuid.UUID]*ConstructionOrder)}
}

// Place files a new pending commission and returns its id.
func (ob *OrderBook) Place(patron sim.AgentID, kind Kind, name string, pos sim.Position) uuid.UUID {
	o := &ConstructionOrder{
		ID:       uuid.New(),
		Patron:   patron,
		Kind:     kind,
		Name:     name,
		Position: pos,
		Status:   Pending,
	}
	ob.mu.Lock()
	ob.orders[o.ID] = o
	ob.mu.Unlock()
	return o.ID
}

// Start moves a pending order to InProgress against a building.
func (ob *OrderBook) Start(id uuid.UUID, building sim.BuildingID) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	o, ok := ob.orders[id]
	if !ok || o.Status != Pending {
		return false
	}
	o.Status = InProgress
	o.Building = building
	return true
}

// Complete marks the order backing a finished building as done.
func (ob *OrderBook) Complete(building sim.BuildingID) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	for _, o := range ob.orders {
		if o.Status == InProgress && o.Building == building {
			o.Status = Completed
		}
	}
}

// Cancel withdraws a pending order. In-progress orders can't be
// cancelled; the site already holds materials.
func (ob *OrderBook) Cancel(id uuid.UUID) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	o, ok := ob.orders[id]
	if !ok || o.Status != Pending {
		return false
	}
	o.Status = Cancelled
	return true
}

// Pending returns copies of all pending orders.
func (ob *OrderBook) Pending() []ConstructionOrder {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	var out []ConstructionOrder
	for _, o := range ob.orders {
		if o.Status == Pending {
			out = append(out, *o)
		}
	}
	return out
}

// Restore reinserts an order loaded from a save.
func (ob *OrderBook) Restore(o ConstructionOrder) {
	ob.mu.Lock()
	ob.orders[o.ID] = &o
	ob.mu.Unlock()
}

// Snapshot returns copies of every order.
func (ob *OrderBook) Snapshot() []ConstructionOrder {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	out := make([]ConstructionOrder, 0, len(ob.orders))
	for _, o := range ob.orders {
		out = append(out, *o)
	}
	return out
}
