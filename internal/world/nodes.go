// Package world tracks harvestable resource nodes on the settlement map.
// Node placement uses layered simplex noise so clusters of the same
// resource appear in coherent regions rather than uniform scatter.
package world

import (
	"math/rand"
	"sync"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/tarrenhall/ashgrove/internal/sim"
)

// NodeKind identifies what a node yields when worked.
type NodeKind uint8

const (
	Tree NodeKind = iota
	Rock
	IronDeposit
	Farm
)

var nodeKindNames = [...]string{"tree", "rock", "iron_deposit", "farm"}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "unknown"
}

// Yields returns the resource a node of this kind produces.
func (k NodeKind) Yields() sim.Resource {
	switch k {
	case Tree:
		return sim.Wood
	case Rock:
		return sim.Stone
	case IronDeposit:
		return sim.Iron
	default:
		return sim.Food
	}
}

// KindFor returns the node kind that yields a resource.
func KindFor(r sim.Resource) NodeKind {
	switch r {
	case sim.Wood:
		return Tree
	case sim.Stone:
		return Rock
	case sim.Iron:
		return IronDeposit
	default:
		return Farm
	}
}

// Node is a single harvestable site.
type Node struct {
	ID        sim.NodeID
	Kind      NodeKind
	Position  sim.Position
	Remaining int
	Capacity  int
}

// Ledger holds all resource nodes and guards them with a single lock.
// Harvest volume is low (a few hundred agents at one unit per slow
// tick) so finer-grained locking buys nothing.
type Ledger struct {
	mu    sync.RWMutex
	nodes map[sim.NodeID]*Node
}

// GenConfig holds node placement parameters.
type GenConfig struct {
	Seed     int64
	Size     float64 // World half-extent; nodes land in [-Size, Size]².
	Count    int
	Capacity int
}

// Generate places nodes across the map. Each candidate position is
// assigned the kind whose noise layer is strongest there, which makes
// forests, quarries, and farmland form contiguous patches.
func Generate(cfg GenConfig) *Ledger {
	rng := rand.New(rand.NewSource(cfg.Seed))

	layers := [sim.NumResources]opensimplex.Noise{}
	for i := range layers {
		layers[i] = opensimplex.NewNormalized(cfg.Seed + int64(i))
	}

	l := &Ledger{nodes: make(map[sim.NodeID]*Node, cfg.Count)}
	for i := 0; i < cfg.Count; i++ {
		x := (rng.Float64()*2 - 1) * cfg.Size
		z := (rng.Float64()*2 - 1) * cfg.Size

		best := sim.Wood
		bestVal := -1.0
		for r := sim.Resource(0); r < sim.NumResources; r++ {
			v := layers[r].Eval2(x*0.05, z*0.05)
			if v > bestVal {
				bestVal = v
				best = r
			}
		}

		n := &Node{
			ID:        sim.NewNodeID(),
			Kind:      KindFor(best),
			Position:  sim.Pos(x, z),
			Remaining: cfg.Capacity,
			Capacity:  cfg.Capacity,
		}
		l.nodes[n.ID] = n
	}
	return l
}

// NewLedger returns an empty ledger, used when restoring from a save.
func NewLedger() *Ledger {
	return &Ledger{nodes: make(map[sim.NodeID]*Node)}
}

// Add inserts a node, replacing any with the same id.
func (l *Ledger) Add(n Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := n
	l.nodes[n.ID] = &cp
}

// Harvest removes up to want units from a node and reports how many
// were actually taken. A depleted or unknown node yields zero.
func (l *Ledger) Harvest(id sim.NodeID, want int) int {
	if want <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.nodes[id]
	if !ok || n.Remaining <= 0 {
		return 0
	}
	got := want
	if got > n.Remaining {
		got = n.Remaining
	}
	n.Remaining -= got
	return got
}

// Regenerate restores up to amount units on every node, capped at
// each node's capacity.
func (l *Ledger) Regenerate(amount int) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, n := range l.nodes {
		n.Remaining += amount
		if n.Remaining > n.Capacity {
			n.Remaining = n.Capacity
		}
	}
}

// FindNearest returns the closest non-depleted node yielding the given
// resource, or false when none remains anywhere on the map.
func (l *Ledger) FindNearest(from sim.Position, r sim.Resource) (Node, bool) {
	kind := KindFor(r)
	l.mu.RLock()
	defer l.mu.RUnlock()

	var best *Node
	bestDist := 0.0
	for _, n := range l.nodes {
		if n.Kind != kind || n.Remaining <= 0 {
			continue
		}
		d := from.DistanceTo(n.Position)
		if best == nil || d < bestDist {
			best = n
			bestDist = d
		}
	}
	if best == nil {
		return Node{}, false
	}
	return *best, true
}

// Get returns a copy of a node.
func (l *Ledger) Get(id sim.NodeID) (Node, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Snapshot returns copies of every node.
func (l *Ledger) Snapshot() []Node {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Node, 0, len(l.nodes))
	for _, n := range l.nodes {
		out = append(out, *n)
	}
	return out
}

// TotalRemaining sums remaining units per resource, for scarcity
// reporting.
func (l *Ledger) TotalRemaining() map[sim.Resource]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[sim.Resource]int, sim.NumResources)
	for _, n := range l.nodes {
		out[n.Kind.Yields()] += n.Remaining
	}
	return out
}
