// feed/feed.go
package feed

import (
	"time"

	"github.com/sergeysmolkin-grodt/SilverBullet/market"
)

// EventType discriminates feed events.
type EventType int

const (
	// EventTick is a best bid/ask quote update.
	EventTick EventType = iota
	// EventBar is a closed bar on one of the subscribed timeframes.
	EventBar
)

// Event is a single inbound market-data event. Bar events carry the
// timeframe name they belong to.
type Event struct {
	Type      EventType
	Tick      market.Tick
	Bar       market.Bar
	Timeframe string
}

// Feed is a source of ordered market events. Implementations deliver events
// on a single channel; the monitor loop is the only consumer, which is what
// serializes all detection work.
type Feed interface {
	// Events returns the event channel. It is closed when the feed ends.
	Events() <-chan Event
	// Start begins delivery.
	Start() error
	// Stop ends delivery and closes the channel.
	Stop()
}

// BarEvents converts a bar history into replayable events.
func BarEvents(timeframe string, bars []market.Bar) []Event {
	out := make([]Event, 0, len(bars))
	for _, b := range bars {
		out = append(out, Event{Type: EventBar, Bar: b, Timeframe: timeframe})
	}
	return out
}

// SyntheticTicks expands a closed bar into four quote events (open, high,
// low, close) with a fixed spread, for simulation runs that only have bar
// data. The intra-bar ordering assumes high before low for bullish bars and
// the reverse for bearish ones.
func SyntheticTicks(b market.Bar, barLength time.Duration, spread float64) []Event {
	prices := []float64{b.Open, b.Low, b.High, b.Close}
	if b.Bullish() {
		prices = []float64{b.Open, b.High, b.Low, b.Close}
	}
	step := barLength / 4
	out := make([]Event, 0, 4)
	for i, p := range prices {
		out = append(out, Event{
			Type: EventTick,
			Tick: market.Tick{
				Time: b.OpenTime.Add(time.Duration(i) * step),
				Bid:  p - spread/2,
				Ask:  p + spread/2,
			},
		})
	}
	return out
}
