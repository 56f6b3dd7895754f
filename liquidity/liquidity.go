// liquidity/liquidity.go
package liquidity

import (
	"time"

	"github.com/sergeysmolkin-grodt/SilverBullet/market"
)

// Side marks which extreme of its source bar a level came from.
type Side int

const (
	SideHigh Side = iota
	SideLow
)

func (s Side) String() string {
	if s == SideHigh {
		return "high"
	}
	return "low"
}

// Level is a candidate liquidity level: a prior extreme price expected to
// hold resting orders. A level is consumed (swept) at most once.
type Level struct {
	Price   float64
	Side    Side
	BarTime time.Time
	Session int
}

// Mode selects the identification strategy.
type Mode int

const (
	// ModeSessionBar takes the single bar immediately preceding the
	// session start; its high and low become the level pair.
	ModeSessionBar Mode = iota
	// ModePivots scans a lookback window for swing pivots old enough to
	// predate the session by a configured lead.
	ModePivots
)

// Identifier builds the candidate level set for a session. It runs once per
// session; re-identification is the caller's responsibility to suppress.
type Identifier struct {
	Mode         Mode
	LookbackBars int
	MaxLevels    int // per side cap in pivots mode
	MinLead      time.Duration
	CandleCount  int // pivot neighbour count
}

// Identify scans context bars for the session starting at sessionStart.
// ok=false signals insufficient history; the caller retries on the next
// event without mutating any state.
func (id *Identifier) Identify(bars []market.Bar, sessionStart time.Time, ordinal int) ([]Level, bool) {
	switch id.Mode {
	case ModePivots:
		return id.identifyPivots(bars, sessionStart, ordinal)
	default:
		return id.identifySessionBar(bars, sessionStart, ordinal)
	}
}

func (id *Identifier) identifySessionBar(bars []market.Bar, sessionStart time.Time, ordinal int) ([]Level, bool) {
	var pre *market.Bar
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].OpenTime.Before(sessionStart) {
			b := bars[i]
			pre = &b
			break
		}
	}
	if pre == nil {
		return nil, false
	}
	return []Level{
		{Price: pre.High, Side: SideHigh, BarTime: pre.OpenTime, Session: ordinal},
		{Price: pre.Low, Side: SideLow, BarTime: pre.OpenTime, Session: ordinal},
	}, true
}

func (id *Identifier) identifyPivots(bars []market.Bar, sessionStart time.Time, ordinal int) ([]Level, bool) {
	// Window of lookback bars ending just before the session start.
	end := len(bars)
	for end > 0 && !bars[end-1].OpenTime.Before(sessionStart) {
		end--
	}
	start := end - id.LookbackBars
	if start < 0 {
		start = 0
	}
	window := bars[start:end]
	// A pivot needs CandleCount neighbours on each side.
	if len(window) < 2*id.CandleCount+1 {
		return nil, false
	}

	cutoff := sessionStart.Add(-id.MinLead)
	var highs, lows []Level
	// Most-recent-first, bounded per side.
	for i := len(window) - 1 - id.CandleCount; i >= id.CandleCount; i-- {
		if window[i].OpenTime.After(cutoff) {
			continue
		}
		if len(highs) < id.MaxLevels && market.IsSwingHigh(window, i, id.CandleCount) {
			highs = append(highs, Level{Price: window[i].High, Side: SideHigh, BarTime: window[i].OpenTime, Session: ordinal})
		}
		if len(lows) < id.MaxLevels && market.IsSwingLow(window, i, id.CandleCount) {
			lows = append(lows, Level{Price: window[i].Low, Side: SideLow, BarTime: window[i].OpenTime, Session: ordinal})
		}
		if len(highs) >= id.MaxLevels && len(lows) >= id.MaxLevels {
			break
		}
	}
	if len(highs)+len(lows) == 0 {
		// A window with no qualifying pivots identifies an empty set; that
		// is a result, not missing data.
		return []Level{}, true
	}
	return append(highs, lows...), true
}

// Pool holds the retained levels of the session currently being serviced.
// Setting a new session's levels drops any leftovers from an earlier one,
// so two sessions' liquidity never coexists.
type Pool struct {
	levels []Level
}

// Set replaces the pool contents.
func (p *Pool) Set(levels []Level) { p.levels = levels }

// Clear drops every retained level.
func (p *Pool) Clear() { p.levels = nil }

// Len returns the number of retained levels.
func (p *Pool) Len() int { return len(p.levels) }

// All returns the retained levels in identification order.
func (p *Pool) All() []Level { return p.levels }

// Opposite returns all retained levels on the other side of the given one.
// The snapshot taken at sweep time feeds the later target search.
func (p *Pool) Opposite(side Side) []Level {
	var out []Level
	for _, l := range p.levels {
		if l.Side != side {
			out = append(out, l)
		}
	}
	return out
}
