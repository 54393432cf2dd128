package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarrenhall/ashgrove/internal/agents"
	"github.com/tarrenhall/ashgrove/internal/sim"
)

func TestAllocateTargetsProportional(t *testing.T) {
	scores := map[agents.Job]float64{
		agents.Woodcutter: 0.5,
		agents.Miner:      0.3,
		agents.Farmer:     0.2,
	}

	got := AllocateTargets(scores, 40)

	assert.Equal(t, 20, got[agents.Woodcutter])
	assert.Equal(t, 12, got[agents.Miner])
	assert.Equal(t, 8, got[agents.Farmer])
}

func TestAllocateTargetsTotalPreserved(t *testing.T) {
	cases := []struct {
		name   string
		scores map[agents.Job]float64
		total  int
	}{
		{"uneven", map[agents.Job]float64{agents.Woodcutter: 0.7, agents.Miner: 0.21, agents.Farmer: 0.09}, 17},
		{"one dominant", map[agents.Job]float64{agents.Woodcutter: 0.98, agents.Miner: 0.01, agents.Farmer: 0.01}, 3},
		{"zero scores", map[agents.Job]float64{}, 10},
		{"tiny total", map[agents.Job]float64{agents.Woodcutter: 1, agents.Miner: 1, agents.Farmer: 1}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AllocateTargets(tc.scores, tc.total)
			sum := 0
			for _, n := range got {
				require.GreaterOrEqual(t, n, 0)
				sum += n
			}
			assert.Equal(t, tc.total, sum)
		})
	}
}

func TestAllocateTargetsMinimumSeat(t *testing.T) {
	scores := map[agents.Job]float64{
		agents.Woodcutter: 0.9,
		agents.Miner:      0.05,
		agents.Farmer:     0.05,
	}

	got := AllocateTargets(scores, 10)

	// Small but positive scores still staff the job.
	assert.GreaterOrEqual(t, got[agents.Miner], 1)
	assert.GreaterOrEqual(t, got[agents.Farmer], 1)
	assert.Equal(t, 10, got[agents.Woodcutter]+got[agents.Miner]+got[agents.Farmer])
}

func TestAllocateTargetsZeroTotal(t *testing.T) {
	got := AllocateTargets(map[agents.Job]float64{agents.Woodcutter: 1}, 0)
	for _, n := range got {
		assert.Equal(t, 0, n)
	}
}

func TestDemandScoresUseSmoothing(t *testing.T) {
	s := newTestSim(t)
	s.Markets.CreateMarket("plaza", sim.Pos(0, 0),
		map[sim.Resource]float64{sim.Wood: 5.0},
		map[sim.Resource]int{sim.Wood: 9})

	// Wood at price 5 with stock 9: score = 5 / (9 + smoothing).
	s.cfg.DemandSmoothing = 1.0
	assert.InDelta(t, 0.5, s.demandScores()[agents.Woodcutter], 1e-9)

	s.cfg.DemandSmoothing = 11.0
	assert.InDelta(t, 0.25, s.demandScores()[agents.Woodcutter], 1e-9)
}

func TestReallocateLaborAssignsWorkforce(t *testing.T) {
	s := newTestSim(t)
	for i := 0; i < 30; i++ {
		s.Roster.Add(agents.Agent{Class: agents.Peasant, Job: agents.Unemployed})
	}

	s.reallocateLabor(1)

	counts := s.Roster.CountByJob()
	assert.Equal(t, 0, counts[agents.Unemployed])
	total := counts[agents.Woodcutter] + counts[agents.Miner] + counts[agents.Farmer] + counts[agents.Builder]
	assert.Equal(t, 30, total)
}

func TestReallocateLaborIdempotent(t *testing.T) {
	s := newTestSim(t)
	for i := 0; i < 24; i++ {
		s.Roster.Add(agents.Agent{Class: agents.Peasant})
	}

	s.reallocateLabor(1)
	first := s.Roster.CountByJob()
	s.reallocateLabor(2)
	second := s.Roster.CountByJob()

	assert.Equal(t, first, second)
}

func TestReallocateLaborSkipsProtectedClasses(t *testing.T) {
	s := newTestSim(t)
	king := s.Roster.Add(agents.Agent{Class: agents.King})
	noble := s.Roster.Add(agents.Agent{Class: agents.Noble})
	for i := 0; i < 10; i++ {
		s.Roster.Add(agents.Agent{Class: agents.Peasant})
	}

	s.reallocateLabor(1)

	a, _ := s.Roster.Get(king)
	assert.Equal(t, agents.Unemployed, a.Job)
	a, _ = s.Roster.Get(noble)
	assert.Equal(t, agents.Unemployed, a.Job)
}

func TestApplyTargetsKeepsCarriedLoads(t *testing.T) {
	s := newTestSim(t)
	site := s.Buildings.Add(newSiteForTest())
	carrier := s.Roster.Add(agents.Agent{
		Class: agents.Peasant, Job: agents.Builder, WorkSite: site,
		Carrying: &agents.Carrying{Resource: sim.Wood, Quantity: 20, Building: site},
	})

	// Every builder is surplus, but a paid load in hand keeps the
	// carrier on the job until it's delivered.
	targets := map[agents.Job]int{agents.Woodcutter: 1, agents.Builder: 0}
	s.applyTargets(targets, nil)

	a, _ := s.Roster.Get(carrier)
	assert.Equal(t, agents.Builder, a.Job)
	require.NotNil(t, a.Carrying)
	assert.Equal(t, 20, a.Carrying.Quantity)
}

func TestLaborFloorLimitsBuilders(t *testing.T) {
	s := newTestSim(t)
	// Many open sites would demand more builders than the floor allows.
	for i := 0; i < 10; i++ {
		s.Buildings.Add(newSiteForTest())
	}
	for i := 0; i < 20; i++ {
		s.Roster.Add(agents.Agent{Class: agents.Peasant})
	}

	s.reallocateLabor(1)

	counts := s.Roster.CountByJob()
	harvesters := counts[agents.Woodcutter] + counts[agents.Miner] + counts[agents.Farmer]
	// Floor 0.3 of 20 workers = at least 6 harvesters.
	assert.GreaterOrEqual(t, harvesters, 6)
	assert.Equal(t, 20-harvesters, counts[agents.Builder])
}
