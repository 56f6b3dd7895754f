// strategy/swing.go
package strategy

import (
	"time"

	"github.com/sergeysmolkin-grodt/SilverBullet/liquidity"
	"github.com/sergeysmolkin-grodt/SilverBullet/market"
)

// LocateStatus is the outcome of a swing-reference search.
type LocateStatus int

const (
	// LocateFound means the reference was located.
	LocateFound LocateStatus = iota
	// LocateWait means the search cannot be decided yet and should be
	// retried on the next closed bar.
	LocateWait
	// LocateDiscard means no reference exists within the search bounds and
	// the sweep must be abandoned.
	LocateDiscard
)

// SwingRef is the structural level that must be broken to confirm the sweep.
type SwingRef struct {
	Price   float64
	BarTime time.Time
}

// SwingLocator finds the counter-direction structural reference after a
// sweep. sweepIdx is the index of the bar containing the sweep print; the
// swept side fixes which kind of reference is wanted (a swing low after a
// high sweep, a swing high after a low sweep).
type SwingLocator interface {
	Locate(bars []market.Bar, sweepIdx int, sweptSide liquidity.Side) (SwingRef, LocateStatus)
}

// PivotLocator scans backward from the bar before the sweep bar for the
// nearest qualifying swing pivot.
type PivotLocator struct {
	LookbackBars int
	CandleCount  int
}

func (l *PivotLocator) Locate(bars []market.Bar, sweepIdx int, sweptSide liquidity.Side) (SwingRef, LocateStatus) {
	// Candidates next to the sweep bar need CandleCount bars to their right
	// before they can be judged; until those close, nearest-first order
	// cannot be honored.
	if sweepIdx-1+l.CandleCount > len(bars)-1 {
		return SwingRef{}, LocateWait
	}

	lo := sweepIdx - l.LookbackBars
	if lo < l.CandleCount {
		lo = l.CandleCount
	}
	for i := sweepIdx - 1; i >= lo; i-- {
		if sweptSide == liquidity.SideHigh {
			if market.IsSwingLow(bars, i, l.CandleCount) {
				return SwingRef{Price: bars[i].Low, BarTime: bars[i].OpenTime}, LocateFound
			}
		} else {
			if market.IsSwingHigh(bars, i, l.CandleCount) {
				return SwingRef{Price: bars[i].High, BarTime: bars[i].OpenTime}, LocateFound
			}
		}
	}
	return SwingRef{}, LocateDiscard
}

// PatternLocator scans forward from the bar after the sweep bar for the
// first two-bar reversal: a down bar immediately followed by an up bar when
// a swing low is wanted, the mirror pair for a swing high. The reference is
// the extreme of the pair.
type PatternLocator struct {
	TimeoutBars int
}

func (l *PatternLocator) Locate(bars []market.Bar, sweepIdx int, sweptSide liquidity.Side) (SwingRef, LocateStatus) {
	last := len(bars) - 1
	limit := sweepIdx + l.TimeoutBars

	for i := sweepIdx + 1; i < last && i <= limit; i++ {
		a, b := bars[i], bars[i+1]
		if sweptSide == liquidity.SideHigh && a.Bearish() && b.Bullish() {
			ref := SwingRef{Price: a.Low, BarTime: a.OpenTime}
			if b.Low < a.Low {
				ref = SwingRef{Price: b.Low, BarTime: b.OpenTime}
			}
			return ref, LocateFound
		}
		if sweptSide == liquidity.SideLow && a.Bullish() && b.Bearish() {
			ref := SwingRef{Price: a.High, BarTime: a.OpenTime}
			if b.High > a.High {
				ref = SwingRef{Price: b.High, BarTime: b.OpenTime}
			}
			return ref, LocateFound
		}
	}

	// The window is exhausted only once the last candidate pair has closed.
	if last >= limit+1 {
		return SwingRef{}, LocateDiscard
	}
	return SwingRef{}, LocateWait
}
