// Package agents provides the agent data model, wallets, and the
// population roster.
package agents

import (
	"github.com/tarrenhall/ashgrove/internal/sim"
)

// Class represents an agent's position in the social hierarchy. Class
// sets the starting wallet and whether the labor controller may
// reassign the agent.
type Class uint8

const (
	Peasant Class = iota
	Soldier
	Cleric
	Burgher
	Merchant
	Knight
	Noble
	King
)

var classNames = [...]string{"peasant", "soldier", "cleric", "burgher", "merchant", "knight", "noble", "king"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// StartingBalance returns the wallet an agent of this class begins with.
func (c Class) StartingBalance() float64 {
	switch c {
	case King:
		return 1000
	case Noble:
		return 500
	case Knight:
		return 200
	case Merchant, Burgher:
		return 150
	case Soldier:
		return 100
	case Cleric:
		return 80
	default:
		return 50
	}
}

// Protected reports whether the labor controller must leave this class
// in its current occupation.
func (c Class) Protected() bool {
	switch c {
	case King, Noble, Knight, Cleric:
		return true
	}
	return false
}

// Job is an agent's assigned economic activity.
type Job uint8

const (
	Unemployed Job = iota
	Woodcutter
	Miner
	Farmer
	Builder
)

var jobNames = [...]string{"unemployed", "woodcutter", "miner", "farmer", "builder"}

func (j Job) String() string {
	if int(j) < len(jobNames) {
		return jobNames[j]
	}
	return "unknown"
}

// Harvests returns the resources a harvesting job may gather. Miners
// work both quarries and iron deposits. Non-harvesting jobs return nil.
func (j Job) Harvests() []sim.Resource {
	switch j {
	case Woodcutter:
		return []sim.Resource{sim.Wood}
	case Miner:
		return []sim.Resource{sim.Stone, sim.Iron}
	case Farmer:
		return []sim.Resource{sim.Food}
	}
	return nil
}

// State is what an agent is currently doing within its job.
type State uint8

const (
	Idle State = iota
	MovingToNode
	Harvesting
	MovingToMarket
	Delivering
)

var stateNames = [...]string{"idle", "moving_to_node", "harvesting", "moving_to_market", "delivering"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Carrying is cargo in transit. A non-zero BuildingID marks the load
// as construction material owed to that site rather than free goods.
type Carrying struct {
	Resource sim.Resource   `json:"resource"`
	Quantity int            `json:"quantity"`
	Building sim.BuildingID `json:"building,omitempty"`
}

// Agent is one person in the settlement.
type Agent struct {
	ID    sim.AgentID `json:"id"`
	Name  string      `json:"name"`
	Class Class       `json:"class"`
	Job   Job         `json:"job"`
	State State       `json:"state"`

	Position    sim.Position `json:"position"`
	Destination sim.Position `json:"destination"`
	Speed       float64      `json:"speed"`

	Wallet    Wallet               `json:"wallet"`
	Inventory map[sim.Resource]int `json:"inventory"`
	Carrying  *Carrying            `json:"carrying,omitempty"`

	TargetNode sim.NodeID     `json:"target_node,omitempty"`
	HomeMarket sim.MarketID   `json:"home_market,omitempty"`
	WorkSite   sim.BuildingID `json:"work_site,omitempty"`

	Alive bool `json:"alive"`
}

// Wallet tracks an agent's money with lifetime earn/spend counters.
type Wallet struct {
	Balance     float64 `json:"balance"`
	TotalEarned float64 `json:"total_earned"`
	TotalSpent  float64 `json:"total_spent"`
}

// Deposit adds funds and bumps the earned counter.
func (w *Wallet) Deposit(amount float64) {
	if amount <= 0 {
		return
	}
	w.Balance += amount
	w.TotalEarned += amount
}

// Withdraw removes funds if the balance covers them and reports
// whether it did. A failed withdraw changes nothing.
func (w *Wallet) Withdraw(amount float64) bool {
	if amount < 0 || amount > w.Balance {
		return false
	}
	w.Balance -= amount
	w.TotalSpent += amount
	return true
}
