package economy

import (
	"sync"
)

// Ledger tracks the settlement-wide money supply and derives the
// inflation rate and purchasing power from it. Wages and construction
// shortfalls mint; taxes burn. Every trade is recorded so velocity of
// money can be reported.
type Ledger struct {
	mu sync.RWMutex

	supply          float64
	referenceSupply float64
	inflationRate   float64
	purchasingPower float64

	minted      float64
	burned      float64
	tradeVolume float64 // Money moved by recorded transactions.
	tradeCount  int
}

// CurrencyStats is a point-in-time copy of the ledger, for reports and
// the API.
type CurrencyStats struct {
	Supply          float64 `json:"supply"`
	ReferenceSupply float64 `json:"reference_supply"`
	InflationRate   float64 `json:"inflation_rate"`
	PurchasingPower float64 `json:"purchasing_power"`
	Minted          float64 `json:"minted"`
	Burned          float64 `json:"burned"`
	TradeVolume     float64 `json:"trade_volume"`
	TradeCount      int     `json:"trade_count"`
	Velocity        float64 `json:"velocity"`
}

// NewLedger returns a ledger with the given starting and reference
// supply. Purchasing power starts at 1.0.
func NewLedger(initialSupply, referenceSupply float64) *Ledger {
	l := &Ledger{
		supply:          initialSupply,
		referenceSupply: referenceSupply,
		purchasingPower: 1.0,
	}
	l.recalc()
	return l
}

// RestoreLedger rebuilds a ledger from saved state.
func RestoreLedger(s CurrencyStats) *Ledger {
	return &Ledger{
		supply:          s.Supply,
		referenceSupply: s.ReferenceSupply,
		inflationRate:   s.InflationRate,
		purchasingPower: s.PurchasingPower,
		minted:          s.Minted,
		burned:          s.Burned,
		tradeVolume:     s.TradeVolume,
		tradeCount:      s.TradeCount,
	}
}

// Mint adds newly created money to the supply.
func (l *Ledger) Mint(amount float64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	l.supply += amount
	l.minted += amount
	l.recalc()
	l.mu.Unlock()
}

// Burn removes money from the supply. The supply never goes below zero.
func (l *Ledger) Burn(amount float64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	if amount > l.supply {
		amount = l.supply
	}
	l.supply -= amount
	l.burned += amount
	l.recalc()
	l.mu.Unlock()
}

// RecordTransaction notes money changing hands. The supply is
// unchanged; only volume and count move.
func (l *Ledger) RecordTransaction(amount float64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	l.tradeVolume += amount
	l.tradeCount++
	l.mu.Unlock()
}

// recalc derives the inflation rate from supply growth over the
// reference, then erodes purchasing power by a small fraction of the
// rate. Callers hold the write lock.
func (l *Ledger) recalc() {
	l.inflationRate = 0.02 + 0.05*(l.supply/l.referenceSupply-1.0)
	if l.inflationRate < 0 {
		l.inflationRate = 0
	}
	l.purchasingPower *= 1.0 - l.inflationRate*0.001
	if l.purchasingPower < 0.01 {
		l.purchasingPower = 0.01
	}
}

// Supply returns the current money supply.
func (l *Ledger) Supply() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

// InflationRate returns the current inflation rate.
func (l *Ledger) InflationRate() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inflationRate
}

// PurchasingPower returns the current purchasing power index.
func (l *Ledger) PurchasingPower() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.purchasingPower
}

// Stats returns a copy of the full ledger state. Velocity is trade
// volume over supply; a zero supply reports zero velocity.
func (l *Ledger) Stats() CurrencyStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := CurrencyStats{
		Supply:          l.supply,
		ReferenceSupply: l.referenceSupply,
		InflationRate:   l.inflationRate,
		PurchasingPower: l.purchasingPower,
		Minted:          l.minted,
		Burned:          l.burned,
		TradeVolume:     l.tradeVolume,
		TradeCount:      l.tradeCount,
	}
	if l.supply > 0 {
		s.Velocity = l.tradeVolume / l.supply
	}
	return s
}
