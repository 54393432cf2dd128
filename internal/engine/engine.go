// Package engine provides the three-phase tick loop and the simulation
// systems it drives.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Engine drives the simulation on three cadences: a fast phase for
// movement, a slow phase for economic activity, and a very-slow phase
// for settlement-level adjustments. All three fire from one goroutine
// so phases never overlap.
type Engine struct {
	fastPeriod     time.Duration
	slowPeriod     time.Duration
	verySlowPeriod time.Duration

	fastTick     atomic.Uint64
	slowTick     atomic.Uint64
	verySlowTick atomic.Uint64

	// Callbacks for each phase. Populated during setup, never changed
	// while running.
	OnFast     func(tick uint64)
	OnSlow     func(tick uint64)
	OnVerySlow func(tick uint64)
}

// NewEngine creates an engine with the given phase periods.
func NewEngine(fast, slow, verySlow time.Duration) *Engine {
	return &Engine{
		fastPeriod:     fast,
		slowPeriod:     slow,
		verySlowPeriod: verySlow,
	}
}

// Run blocks driving the tick loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("engine started",
		"fast", e.fastPeriod, "slow", e.slowPeriod, "very_slow", e.verySlowPeriod)

	fast := time.NewTicker(e.fastPeriod)
	slow := time.NewTicker(e.slowPeriod)
	verySlow := time.NewTicker(e.verySlowPeriod)
	defer fast.Stop()
	defer slow.Stop()
	defer verySlow.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped", "slow_ticks", e.slowTick.Load())
			return
		case <-fast.C:
			t := e.fastTick.Add(1)
			if e.OnFast != nil {
				e.OnFast(t)
			}
		case <-slow.C:
			t := e.slowTick.Add(1)
			if e.OnSlow != nil {
				e.OnSlow(t)
			}
		case <-verySlow.C:
			t := e.verySlowTick.Add(1)
			if e.OnVerySlow != nil {
				e.OnVerySlow(t)
			}
		}
	}
}

// Ticks returns the number of completed ticks per phase.
func (e *Engine) Ticks() (fast, slow, verySlow uint64) {
	return e.fastTick.Load(), e.slowTick.Load(), e.verySlowTick.Load()
}
