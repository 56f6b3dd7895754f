// market/market.go
package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe identifies a bar aggregation period.
type Timeframe struct {
	Name     string
	Duration time.Duration
}

var timeframes = map[string]time.Duration{
	"m1":  time.Minute,
	"m2":  2 * time.Minute,
	"m3":  3 * time.Minute,
	"m5":  5 * time.Minute,
	"m15": 15 * time.Minute,
	"m30": 30 * time.Minute,
	"h1":  time.Hour,
	"h4":  4 * time.Hour,
	"d1":  24 * time.Hour,
}

// ParseTimeframe parses identifiers like "m1", "m5", "h1".
func ParseTimeframe(name string) (Timeframe, error) {
	d, ok := timeframes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Timeframe{}, fmt.Errorf("unknown timeframe %q", name)
	}
	return Timeframe{Name: strings.ToLower(strings.TrimSpace(name)), Duration: d}, nil
}

// Tick is a best bid/ask quote update from the feed.
type Tick struct {
	Time time.Time
	Bid  float64
	Ask  float64
}

// Bar is a closed OHLC bar. The forming bar never enters a Series; pattern
// checks therefore only ever see immutable data.
type Bar struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the bar closed below its open.
func (b Bar) Bearish() bool { return b.Close < b.Open }

// Series is an ordered collection of closed bars for a single timeframe.
// It is owned by one tick-processing context and is not safe for concurrent
// use.
type Series struct {
	Timeframe Timeframe
	bars      []Bar
	maxBars   int
}

// NewSeries creates a series that retains at most maxBars closed bars
// (0 means unbounded).
func NewSeries(tf Timeframe, maxBars int) *Series {
	return &Series{Timeframe: tf, bars: make([]Bar, 0, 256), maxBars: maxBars}
}

// Append stores a newly closed bar. Bars must arrive in open-time order;
// a bar with the same open time as the last one replaces it (feed re-sends
// the final state of a bar on close), older bars are dropped.
func (s *Series) Append(b Bar) {
	if n := len(s.bars); n > 0 {
		last := s.bars[n-1].OpenTime
		if b.OpenTime.Equal(last) {
			s.bars[n-1] = b
			return
		}
		if b.OpenTime.Before(last) {
			return
		}
	}
	s.bars = append(s.bars, b)
	if s.maxBars > 0 && len(s.bars) > s.maxBars {
		s.bars = s.bars[len(s.bars)-s.maxBars:]
	}
}

// Len returns the number of closed bars retained.
func (s *Series) Len() int { return len(s.bars) }

// At returns the bar at index i.
func (s *Series) At(i int) Bar { return s.bars[i] }

// Last returns the most recent closed bar.
func (s *Series) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Bars exposes the underlying slice for scanning. Callers must not mutate or
// retain it across Append calls.
func (s *Series) Bars() []Bar { return s.bars }

// IndexAt returns the index of the latest bar whose open time is <= t,
// or -1 when no such bar exists.
func (s *Series) IndexAt(t time.Time) int {
	i := sort.Search(len(s.bars), func(i int) bool {
		return s.bars[i].OpenTime.After(t)
	})
	return i - 1
}

// LastBefore returns the latest bar whose open time is strictly before t.
func (s *Series) LastBefore(t time.Time) (Bar, bool) {
	i := sort.Search(len(s.bars), func(i int) bool {
		return !s.bars[i].OpenTime.Before(t)
	})
	if i == 0 {
		return Bar{}, false
	}
	return s.bars[i-1], true
}
