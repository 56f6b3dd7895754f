// profit/accounting.go
package profit

import "sync"

// ClosedTrade records one finished trade for the daily summary.
type ClosedTrade struct {
	Label     string
	PnL       float64
	EquityPct float64
}

// Accountant tracks realized profit in account currency and as a percentage
// of equity, per day and over the run.
type Accountant struct {
	mu            sync.Mutex
	dayRealized   float64
	dayPct        float64
	totalRealized float64
	dayTrades     []ClosedTrade
}

// NewAccountant creates an empty accounting core.
func NewAccountant() *Accountant {
	return &Accountant{}
}

// RecordClose books a closed trade. equity is the account equity used to
// express the result as a percentage; it returns that percentage.
func (a *Accountant) RecordClose(label string, pnl, equity float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var pct float64
	if equity > 0 {
		pct = pnl / equity * 100
	}
	a.dayRealized += pnl
	a.dayPct += pct
	a.totalRealized += pnl
	a.dayTrades = append(a.dayTrades, ClosedTrade{Label: label, PnL: pnl, EquityPct: pct})
	return pct
}

// DayRealized returns today's realized PnL in account currency.
func (a *Accountant) DayRealized() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dayRealized
}

// DayPct returns today's realized PnL as a percentage of equity.
func (a *Accountant) DayPct() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dayPct
}

// TotalRealized returns the run's cumulative realized PnL.
func (a *Accountant) TotalRealized() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalRealized
}

// DayTrades returns a copy of today's closed trades.
func (a *Accountant) DayTrades() []ClosedTrade {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ClosedTrade, len(a.dayTrades))
	copy(out, a.dayTrades)
	return out
}

// ResetDay clears the daily aggregates on date rollover.
func (a *Accountant) ResetDay() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dayRealized = 0
	a.dayPct = 0
	a.dayTrades = a.dayTrades[:0]
}

// Restore rehydrates the daily realized figures from persisted state.
func (a *Accountant) Restore(dayRealized, dayPct float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dayRealized = dayRealized
	a.dayPct = dayPct
}
