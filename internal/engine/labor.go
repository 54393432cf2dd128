// Labor allocation. A proportional controller reassigns the unprotected
// workforce between harvesting jobs and construction each very-slow
// tick, driven by market demand pressure.
package engine

import (
	"math"
	"sort"

	"github.com/tarrenhall/ashgrove/internal/agents"
	"github.com/tarrenhall/ashgrove/internal/sim"
)

// harvestJobs is the fixed allocation order, so ties resolve the same
// way every pass.
var harvestJobs = []agents.Job{agents.Woodcutter, agents.Miner, agents.Farmer}

// AllocateTargets splits total workers across jobs in proportion to
// their scores, using largest-remainder rounding. Every job with a
// positive score gets at least one worker when total allows. A zero
// score total splits evenly.
func AllocateTargets(scores map[agents.Job]float64, total int) map[agents.Job]int {
	out := make(map[agents.Job]int, len(harvestJobs))
	if total <= 0 {
		for _, j := range harvestJobs {
			out[j] = 0
		}
		return out
	}

	sum := 0.0
	for _, j := range harvestJobs {
		s := scores[j]
		if s < 0 {
			s = 0
		}
		sum += s
	}

	type share struct {
		job  agents.Job
		frac float64
	}
	var shares []share
	assigned := 0
	for _, j := range harvestJobs {
		var exact float64
		if sum > 0 {
			exact = float64(total) * math.Max(scores[j], 0) / sum
		} else {
			exact = float64(total) / float64(len(harvestJobs))
		}
		base := int(exact)
		if base == 0 && exact > 0 && total >= len(harvestJobs) {
			base = 1
			exact = float64(base) // Remainder spent on the minimum seat.
		}
		out[j] = base
		assigned += base
		shares = append(shares, share{job: j, frac: exact - float64(base)})
	}

	sort.SliceStable(shares, func(i, k int) bool { return shares[i].frac > shares[k].frac })
	for i := 0; assigned < total; i++ {
		out[shares[i%len(shares)].job]++
		assigned++
	}
	// Minimum seats can push past total; take them back from the
	// smallest shares.
	for i := len(shares) - 1; i >= 0 && assigned > total; i-- {
		if out[shares[i].job] > 0 {
			out[shares[i].job]--
			assigned--
		}
	}
	return out
}

// demandScores derives per-job demand pressure from market prices and
// stocks: each resource scores price / (stock + smoothing), and the
// miner score covers both stone and iron. The smoothing term keeps
// empty stocks from producing unbounded scores.
func (s *Simulation) demandScores() map[agents.Job]float64 {
	pressure := make(map[sim.Resource]float64, sim.NumResources)
	stock := make(map[sim.Resource]int, sim.NumResources)
	for _, mk := range s.Markets.Snapshot() {
		for r, g := range mk.Goods {
			pressure[r] += g.CurrentPrice
			stock[r] += g.Quantity
		}
	}
	score := func(r sim.Resource) float64 {
		return pressure[r] / (float64(stock[r]) + s.cfg.DemandSmoothing)
	}
	return map[agents.Job]float64{
		agents.Woodcutter: score(sim.Wood),
		agents.Miner:      score(sim.Stone) + score(sim.Iron),
		agents.Farmer:     score(sim.Food),
	}
}

// reallocateLabor recomputes job targets and reassigns workers to meet
// them. Protected classes never move. The pass is idempotent: when the
// roster already matches the targets nothing changes.
func (s *Simulation) reallocateLabor(tick uint64) {
	var workforce int
	s.Roster.UpdateLiving(func(a *agents.Agent) {
		if !a.Class.Protected() {
			workforce++
		}
	})
	if workforce == 0 {
		return
	}

	// A floor of the workforce always harvests, whatever construction
	// wants.
	minHarvest := int(math.Ceil(s.cfg.LaborFloor * float64(workforce)))
	incomplete := s.Buildings.Incomplete()
	buildersTarget := buildersPerSite * len(incomplete)
	if buildersTarget > workforce-minHarvest {
		buildersTarget = workforce - minHarvest
	}
	if buildersTarget < 0 {
		buildersTarget = 0
	}

	targets := AllocateTargets(s.demandScores(), workforce-buildersTarget)
	targets[agents.Builder] = buildersTarget

	moved := s.applyTargets(targets, incomplete)
	if moved > 0 {
		s.pushEvent(tick, "labor", "workers reassigned")
		s.log.Info("labor reallocated",
			"workforce", workforce,
			"woodcutters", targets[agents.Woodcutter],
			"miners", targets[agents.Miner],
			"farmers", targets[agents.Farmer],
			"builders", targets[agents.Builder],
			"moved", moved)
	}
}

// applyTargets moves workers from over-staffed jobs to under-staffed
// ones and returns how many moved.
func (s *Simulation) applyTargets(targets map[agents.Job]int, sites []sim.BuildingID) int {
	counts := make(map[agents.Job]int)
	s.Roster.UpdateLiving(func(a *agents.Agent) {
		if !a.Class.Protected() {
			counts[a.Job]++
		}
	})

	deficit := func() (agents.Job, bool) {
		for _, j := range append([]agents.Job{agents.Builder}, harvestJobs...) {
			if counts[j] < targets[j] {
				return j, true
			}
		}
		return agents.Unemployed, false
	}

	siteIdx := 0
	moved := 0
	s.Roster.UpdateLiving(func(a *agents.Agent) {
		if a.Class.Protected() {
			return
		}
		if counts[a.Job] <= targets[a.Job] && a.Job != agents.Unemployed {
			return
		}
		if a.Carrying != nil {
			// Fund money already bought this load; the agent delivers
			// before changing trade.
			return
		}
		want, ok := deficit()
		if !ok || want == a.Job {
			return
		}
		counts[a.Job]--
		counts[want]++
		a.Job = want
		a.State = agents.Idle
		a.TargetNode = sim.NodeID{}
		if want == agents.Builder && len(sites) > 0 {
			a.WorkSite = sites[siteIdx%len(sites)]
			siteIdx++
		} else {
			a.WorkSite = sim.BuildingID{}
		}
		moved++
	})
	return moved
}
