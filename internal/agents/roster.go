package agents

import (
	"sync"

	"github.com/tarrenhall/ashgrove/internal/sim"
)

// Roster holds every agent behind one lock. Mutation happens through
// UpdateLiving and the targeted helpers so callers never hold live
// agent pointers outside the lock.
type Roster struct {
	mu     sync.RWMutex
	agents map[sim.AgentID]*Agent
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{agents: make(map[sim.AgentID]*Agent)}
}

// Add inserts an agent. The roster takes ownership of the value.
func (r *Roster) Add(a Agent) sim.AgentID {
	if a.ID.IsZero() {
		a.ID = sim.NewAgentID()
	}
	if a.Inventory == nil {
		a.Inventory = make(map[sim.Resource]int)
	}
	a.Alive = true
	r.mu.Lock()
	r.agents[a.ID] = &a
	r.mu.Unlock()
	return a.ID
}

// Kill marks an agent dead. Dead agents stay in the roster until the
// next demographic sweep collects them, so in-flight trades can still
// look them up and fail cleanly.
func (r *Roster) Kill(id sim.AgentID) {
	r.mu.Lock()
	if a, ok := r.agents[id]; ok {
		a.Alive = false
	}
	r.mu.Unlock()
}

// Collect removes dead agents and returns their ids.
func (r *Roster) Collect() []sim.AgentID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dead []sim.AgentID
	for id, a := range r.agents {
		if !a.Alive {
			dead = append(dead, id)
			delete(r.agents, id)
		}
	}
	return dead
}

// UpdateLiving runs fn over every living agent under the write lock.
// fn must not call back into the roster.
func (r *Roster) UpdateLiving(fn func(*Agent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.agents {
		if a.Alive {
			fn(a)
		}
	}
}

// Update runs fn on one living agent and reports whether it was found.
func (r *Roster) Update(id sim.AgentID, fn func(*Agent)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok || !a.Alive {
		return false
	}
	fn(a)
	return true
}

// UpdatePair runs fn on two living agents atomically, for trade
// settlement. Returns false without calling fn unless both are alive.
func (r *Roster) UpdatePair(a, b sim.AgentID, fn func(first, second *Agent)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	fa, ok := r.agents[a]
	if !ok || !fa.Alive {
		return false
	}
	fb, ok := r.agents[b]
	if !ok || !fb.Alive {
		return false
	}
	fn(fa, fb)
	return true
}

// Get returns a copy of one agent.
func (r *Roster) Get(id sim.AgentID) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, false
	}
	return copyAgent(a), true
}

// Snapshot returns copies of every agent, living and dead.
func (r *Roster) Snapshot() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, copyAgent(a))
	}
	return out
}

// Living returns the number of living agents.
func (r *Roster) Living() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.Alive {
			n++
		}
	}
	return n
}

// CountByJob tallies living agents per job.
func (r *Roster) CountByJob() map[Job]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Job]int)
	for _, a := range r.agents {
		if a.Alive {
			out[a.Job]++
		}
	}
	return out
}

// TotalMoney sums every living agent's balance, for conservation
// checks and reports.
func (r *Roster) TotalMoney() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0.0
	for _, a := range r.agents {
		if a.Alive {
			total += a.Wallet.Balance
		}
	}
	return total
}

func copyAgent(a *Agent) Agent {
	cp := *a
	cp.Inventory = make(map[sim.Resource]int, len(a.Inventory))
	for k, v := range a.Inventory {
		cp.Inventory[k] = v
	}
	if a.Carrying != nil {
		c := *a.Carrying
		cp.Carrying = &c
	}
	return cp
}
