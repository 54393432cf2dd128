// Package buildings tracks construction sites, their material ledgers,
// and the per-building funds that finance them.
package buildings

import (
	"errors"

	"github.com/tarrenhall/ashgrove/internal/sim"
)

// ErrInsufficientFunds is returned when a fund withdrawal would
// overdraw a building's fund.
var ErrInsufficientFunds = errors.New("buildings: insufficient funds")

// ErrNotFound is returned for unknown building ids.
var ErrNotFound = errors.New("buildings: not found")

// Kind identifies a building type and fixes its material bill.
type Kind uint8

const (
	House Kind = iota
	Granary
	Blacksmith
	Church
	Barracks
	Keep
)

var kindNames = [...]string{"house", "granary", "blacksmith", "church", "barracks", "keep"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Requirements returns the full material bill for a kind.
func (k Kind) Requirements() map[sim.Resource]int {
	switch k {
	case House:
		return map[sim.Resource]int{sim.Wood: 50, sim.Stone: 20}
	case Granary:
		return map[sim.Resource]int{sim.Wood: 80, sim.Stone: 30}
	case Blacksmith:
		return map[sim.Resource]int{sim.Wood: 40, sim.Stone: 50, sim.Iron: 25}
	case Church:
		return map[sim.Resource]int{sim.Wood: 60, sim.Stone: 120, sim.Iron: 10}
	case Barracks:
		return map[sim.Resource]int{sim.Wood: 100, sim.Stone: 60, sim.Iron: 30}
	case Keep:
		return map[sim.Resource]int{sim.Wood: 150, sim.Stone: 300, sim.Iron: 80}
	}
	return nil
}

// Status is a building's lifecycle stage.
type Status uint8

const (
	UnderConstruction Status = iota
	Complete
)

func (s Status) String() string {
	if s == Complete {
		return "complete"
	}
	return "under_construction"
}

// Building is one structure, finished or not. Required holds the full
// bill, Delivered what has arrived on site, Consumed what has been
// built into the structure. Progress runs 0 to 1.
type Building struct {
	ID       sim.BuildingID `json:"id"`
	Kind     Kind           `json:"kind"`
	Name     string         `json:"name"`
	Position sim.Position   `json:"position"`
	Status   Status         `json:"status"`
	Progress float64        `json:"progress"`

	Required  map[sim.Resource]int `json:"required"`
	Delivered map[sim.Resource]int `json:"delivered"`
	Consumed  map[sim.Resource]int `json:"consumed"`

	// Fund is the building's construction purse. Material purchases
	// draw on it; replenishment tops it back up.
	Fund float64 `json:"fund"`

	// Storage holds goods a finished building warehouses.
	Storage map[sim.Resource]int `json:"storage"`

	Owner sim.AgentID `json:"owner,omitempty"`
}

// New returns an unstarted building of the given kind.
func New(kind Kind, name string, pos sim.Position, owner sim.AgentID) Building {
	return Building{
		ID:        sim.NewBuildingID(),
		Kind:      kind,
		Name:      name,
		Position:  pos,
		Status:    UnderConstruction,
		Required:  kind.Requirements(),
		Delivered: make(map[sim.Resource]int),
		Consumed:  make(map[sim.Resource]int),
		Storage:   make(map[sim.Resource]int),
		Owner:     owner,
	}
}

// Outstanding returns how much of each resource is still needed on
// site: required minus delivered-but-not-yet-consumed minus consumed.
func (b *Building) Outstanding() map[sim.Resource]int {
	out := make(map[sim.Resource]int, len(b.Required))
	for r, req := range b.Required {
		rem := req - b.Delivered[r]
		if rem > 0 {
			out[r] = rem
		}
	}
	return out
}

// estimateCost prices the outstanding bill at the given prices.
func (b *Building) estimateCost(prices map[sim.Resource]float64) float64 {
	total := 0.0
	for r, qty := range b.Outstanding() {
		total += float64(qty) * prices[r]
	}
	return total
}
