package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sergeysmolkin-grodt/SilverBullet/broker"
	"github.com/sergeysmolkin-grodt/SilverBullet/liquidity"
	"github.com/sergeysmolkin-grodt/SilverBullet/market"
)

var testInfo = broker.SymbolInfo{
	Symbol:     "EURUSD",
	TickSize:   0.0001,
	TickValue:  1,
	MinVolume:  1,
	MaxVolume:  100,
	VolumeStep: 1,
}

func levelsAt(prices ...float64) []liquidity.Level {
	out := make([]liquidity.Level, 0, len(prices))
	for _, p := range prices {
		out = append(out, liquidity.Level{Price: p, Side: liquidity.SideLow})
	}
	return out
}

func TestSearchTargetPicksMaxDistanceWithinBounds(t *testing.T) {
	e := &Engine{MinRR: 1.3, MaxRR: 4.0}
	entry, stopDist := 1.1000, 0.0010

	// Candidates implying RR of 0.9, 1.4, 2.0 and 5.0 for a short.
	targets := levelsAt(
		entry-0.9*stopDist,
		entry-1.4*stopDist,
		entry-2.0*stopDist,
		entry-5.0*stopDist,
	)

	px, rr, ok := e.SearchTarget(broker.Sell, entry, stopDist, targets)
	require.True(t, ok)
	require.InDelta(t, 2.0, rr, 1e-9)
	require.InDelta(t, entry-2.0*stopDist, px, 1e-9)
}

func TestSearchTargetRejectsWhenNoneInBounds(t *testing.T) {
	e := &Engine{MinRR: 6.0, MaxRR: 8.0}
	entry, stopDist := 1.1000, 0.0010
	targets := levelsAt(entry-0.9*stopDist, entry-1.4*stopDist, entry-2.0*stopDist, entry-5.0*stopDist)

	_, _, ok := e.SearchTarget(broker.Sell, entry, stopDist, targets)
	require.False(t, ok, "no candidate inside [6,8] bounds, search must fail hard")
}

func TestSearchTargetSkipsLevelsBehindEntry(t *testing.T) {
	e := &Engine{MinRR: 0.5, MaxRR: 10}
	// For a long, candidates below the entry are not targets.
	targets := []liquidity.Level{{Price: 1.0990, Side: liquidity.SideHigh}}
	_, _, ok := e.SearchTarget(broker.Buy, 1.1000, 0.0010, targets)
	require.False(t, ok)
}

func TestPositionSizing(t *testing.T) {
	e := &Engine{RiskPercent: 1}

	// equity=10000, risk 1% => 100; stop distance = 20 ticks, tick value 1
	// => raw size 5.
	vol, err := e.Size(10000, 20*testInfo.TickSize, testInfo)
	require.NoError(t, err)
	require.Equal(t, 5.0, vol)

	// Fractional raw size floors to the step.
	vol, err = e.Size(10000, 30*testInfo.TickSize, testInfo)
	require.NoError(t, err)
	require.Equal(t, 3.0, vol)

	// Below the venue minimum is a rejection, not a round-up.
	_, err = e.Size(10, 20*testInfo.TickSize, testInfo)
	require.ErrorIs(t, err, ErrVolumeBelowMin)

	// Above the maximum clamps.
	vol, err = e.Size(10_000_000, 20*testInfo.TickSize, testInfo)
	require.NoError(t, err)
	require.Equal(t, testInfo.MaxVolume, vol)
}

func rangeBar(h, l float64) market.Bar {
	return market.Bar{Open: (h + l) / 2, High: h, Low: l, Close: (h + l) / 2}
}

func TestBuildShortPlan(t *testing.T) {
	e := &Engine{MinRR: 1.0, MaxRR: 5.0, RiskPercent: 1, StopBufferTicks: 2, MinStopTicks: 1}

	bars := []market.Bar{
		rangeBar(1.1055, 1.1020), // sweep bar holds the adverse extreme
		rangeBar(1.1040, 1.1010),
		rangeBar(1.1020, 1.0995), // BOS bar
	}
	gap := market.Gap{Low: 1.1005, High: 1.1010}
	targets := levelsAt(1.0950, 1.0700)

	plan, err := e.Build(broker.Sell, bars, gap, targets, 1.0994, 1.0996, 10000, testInfo)
	require.NoError(t, err)

	require.InDelta(t, 1.1010, plan.Entry, 1e-9, "short entry is the gap's upper boundary")
	require.InDelta(t, 1.1057, plan.Stop, 1e-9, "stop = range high + 2 ticks")
	require.InDelta(t, 1.0950, plan.Target, 1e-9, "deeper 1.07 level implies RR outside bounds")
	require.InDelta(t, (1.1010-1.0950)/(1.1057-1.1010), plan.RR, 1e-4)
	require.Greater(t, plan.Volume, 0.0)
}

func TestBuildRejectsEntryPastMarket(t *testing.T) {
	e := &Engine{MinRR: 1.0, MaxRR: 5.0, RiskPercent: 1, StopBufferTicks: 2, MinStopTicks: 1}
	bars := []market.Bar{rangeBar(1.1055, 1.0995)}
	gap := market.Gap{Low: 1.1005, High: 1.1010}

	// Bid already above the short entry: a limit would fill as market.
	_, err := e.Build(broker.Sell, bars, gap, levelsAt(1.0950), 1.1015, 1.1017, 10000, testInfo)
	require.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestBuildRejectsTightStop(t *testing.T) {
	e := &Engine{MinRR: 1.0, MaxRR: 5.0, RiskPercent: 1, StopBufferTicks: 0, MinStopTicks: 5}
	bars := []market.Bar{rangeBar(1.10101, 1.1000)}
	gap := market.Gap{Low: 1.1005, High: 1.1010}

	_, err := e.Build(broker.Sell, bars, gap, levelsAt(1.0950), 1.0990, 1.0992, 10000, testInfo)
	require.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestDailyLimits(t *testing.T) {
	d := &DailyLimits{MaxTrades: 2, ProfitTargetPct: 1.5}
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	require.True(t, d.Reset(day))
	require.False(t, d.Reset(day), "second reset for the same date is a no-op")
	require.True(t, d.Allow())

	d.RecordTrade()
	require.True(t, d.Allow())
	d.RecordTrade()
	require.False(t, d.Allow(), "trade cap reached")

	require.True(t, d.Reset(day.AddDate(0, 0, 1)))
	require.True(t, d.Allow())

	require.False(t, d.RecordProfit(0.8))
	require.True(t, d.RecordProfit(0.9), "crossing the target reports it once")
	require.False(t, d.RecordProfit(1.0))
	require.False(t, d.Allow())
}

func TestDailyLimitsRestore(t *testing.T) {
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	d := &DailyLimits{MaxTrades: 3}
	d.Reset(day)
	d.RecordTrade()

	snap := d.Snapshot()

	fresh := &DailyLimits{MaxTrades: 3}
	fresh.Restore(snap, day)
	require.Equal(t, 1, fresh.Trades())
	require.False(t, fresh.Reset(day), "restored date suppresses a wiping reset")

	// A snapshot from another day is ignored.
	other := &DailyLimits{MaxTrades: 3}
	other.Restore(snap, day.AddDate(0, 0, 1))
	require.Equal(t, 0, other.Trades())
}

func TestBuildNoValidTargetIsHardRejection(t *testing.T) {
	e := &Engine{MinRR: 6.0, MaxRR: 8.0, RiskPercent: 1, StopBufferTicks: 2, MinStopTicks: 1}
	bars := []market.Bar{rangeBar(1.1055, 1.0995)}
	gap := market.Gap{Low: 1.1005, High: 1.1010}

	_, err := e.Build(broker.Sell, bars, gap, levelsAt(1.0980), 1.0994, 1.0996, 10000, testInfo)
	require.True(t, errors.Is(err, ErrNoValidTarget))
}
