// risk/limits.go
package risk

import "time"

// DailyLimits gates signal emission on the per-day circuit breakers: the
// trade cap and the profit target. It is reset exactly once per
// session-local calendar date.
type DailyLimits struct {
	MaxTrades       int
	ProfitTargetPct float64

	date      time.Time
	trades    int
	profitPct float64
	targetMet bool
}

// Snapshot is the persistable view of the day's counters.
type Snapshot struct {
	Date      string  `json:"date"`
	Trades    int     `json:"trades"`
	ProfitPct float64 `json:"profit_pct"`
	TargetMet bool    `json:"target_met"`
}

// Reset starts a fresh day. Calling it again for the same date is a no-op,
// which makes the daily reset idempotent.
func (d *DailyLimits) Reset(date time.Time) bool {
	if d.date.Equal(date) {
		return false
	}
	d.date = date
	d.trades = 0
	d.profitPct = 0
	d.targetMet = false
	return true
}

// Allow reports whether a new signal may be emitted today.
func (d *DailyLimits) Allow() bool {
	if d.targetMet {
		return false
	}
	return d.trades < d.MaxTrades
}

// RecordTrade counts a filled signal against the daily cap.
func (d *DailyLimits) RecordTrade() { d.trades++ }

// Trades returns the number of trades taken today.
func (d *DailyLimits) Trades() int { return d.trades }

// TargetMet reports whether the daily profit target has been reached.
func (d *DailyLimits) TargetMet() bool { return d.targetMet }

// RecordProfit accumulates a closed trade's realized PnL as a percentage of
// equity and returns true when this close newly satisfies the daily profit
// target. A target of zero disables the gate.
func (d *DailyLimits) RecordProfit(pct float64) bool {
	d.profitPct += pct
	if d.targetMet || d.ProfitTargetPct <= 0 {
		return false
	}
	if d.profitPct >= d.ProfitTargetPct {
		d.targetMet = true
		return true
	}
	return false
}

// Snapshot captures the counters for persistence.
func (d *DailyLimits) Snapshot() Snapshot {
	return Snapshot{
		Date:      d.date.Format("2006-01-02"),
		Trades:    d.trades,
		ProfitPct: d.profitPct,
		TargetMet: d.targetMet,
	}
}

// Restore rehydrates counters saved earlier the same day; snapshots from a
// different date are ignored and the day starts clean.
func (d *DailyLimits) Restore(s Snapshot, date time.Time) {
	if s.Date != date.Format("2006-01-02") {
		return
	}
	d.date = date
	d.trades = s.Trades
	d.profitPct = s.ProfitPct
	d.targetMet = s.TargetMet
}
