// strategy/engine_test.go
package strategy

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sergeysmolkin-grodt/SilverBullet/broker"
	"github.com/sergeysmolkin-grodt/SilverBullet/journal"
	"github.com/sergeysmolkin-grodt/SilverBullet/liquidity"
	"github.com/sergeysmolkin-grodt/SilverBullet/market"
	"github.com/sergeysmolkin-grodt/SilverBullet/profit"
	"github.com/sergeysmolkin-grodt/SilverBullet/risk"
	"github.com/sergeysmolkin-grodt/SilverBullet/session"
)

type emitted struct {
	label   string
	plan    risk.Plan
	session int
}

type harness struct {
	engine   *Engine
	emitted  []emitted
	canceled []string
	emitErr  error
}

// newHarness wires an engine against a single 10:00-11:00 UTC session with a
// 30 minute pre-buffer, session-bar liquidity and a shared m1 series for
// both timeframes.
func newHarness(t *testing.T, locator SwingLocator) *harness {
	t.Helper()
	return newHarnessWithSessions(t, locator, []session.Spec{
		{Start: session.Clock{Hour: 10}, End: session.Clock{Hour: 11}},
	})
}

func newHarnessWithSessions(t *testing.T, locator SwingLocator, specs []session.Spec) *harness {
	t.Helper()

	tf, err := market.ParseTimeframe("m1")
	require.NoError(t, err)
	series := market.NewSeries(tf, 500)

	oracle := session.NewOracle("UTC", specs, 30*time.Minute)

	h := &harness{}
	h.engine = NewEngine(Deps{
		Symbol:        "EURUSD",
		ContextName:   "m1",
		ExecutionName: "m1",
		Oracle:        oracle,
		Context:       series,
		Execution:     series,
		Identifier:    &liquidity.Identifier{Mode: liquidity.ModeSessionBar},
		Locator:       locator,
		Planner:       &risk.Engine{MinRR: 1.0, MaxRR: 4.0, RiskPercent: 1.0, StopBufferTicks: 2, MinStopTicks: 1},
		Limits:        &risk.DailyLimits{MaxTrades: 2, ProfitTargetPct: 1.0},
		Accountant:    profit.NewAccountant(),
		Journal:       journal.Noop{},

		BOSTimeoutBars: 30,
		Info: broker.SymbolInfo{
			TickSize:   0.0001,
			TickValue:  1.0,
			MinVolume:  0.01,
			MaxVolume:  100,
			VolumeStep: 0.01,
			Digits:     5,
		},
		Equity: func() float64 { return 10000 },
		Emit: func(label string, plan risk.Plan, sessionOrdinal int, at time.Time) error {
			if h.emitErr != nil {
				return h.emitErr
			}
			h.emitted = append(h.emitted, emitted{label: label, plan: plan, session: sessionOrdinal})
			return nil
		},
		Cancel: func(label string) error {
			h.canceled = append(h.canceled, label)
			return nil
		},
	})
	return h
}

func bar(day, hh, mm int, o, hi, lo, c float64) market.Bar {
	return market.Bar{
		OpenTime: time.Date(2024, 3, day, hh, mm, 0, 0, time.UTC),
		Open:     o, High: hi, Low: lo, Close: c,
	}
}

func tick(day, hh, mm, ss int, bid, ask float64) market.Tick {
	return market.Tick{Time: time.Date(2024, 3, day, hh, mm, ss, 0, time.UTC), Bid: bid, Ask: ask}
}

// preSession seeds history up to the 09:59 bar whose high/low become the
// session's liquidity pair, then identifies it with the first tick at the
// open.
func (h *harness) preSession(t *testing.T, preHigh, preLow float64) {
	t.Helper()
	h.engine.OnBarClosed("m1", bar(5, 9, 55, 1.1030, 1.1040, 1.1025, 1.1035))
	h.engine.OnBarClosed("m1", bar(5, 9, 56, 1.1035, 1.1042, 1.1028, 1.1030))
	h.engine.OnBarClosed("m1", bar(5, 9, 57, 1.1030, 1.1044, 1.1026, 1.1040))
	h.engine.OnBarClosed("m1", bar(5, 9, 58, 1.1040, 1.1046, 1.1030, 1.1044))
	h.engine.OnBarClosed("m1", bar(5, 9, 59, 1.1044, preHigh, preLow, 1.1040))

	h.engine.OnTick(tick(5, 10, 0, 5, 1.1040, 1.1042))
	require.Equal(t, StageLiquidity, h.engine.Stage())
}

// driveToSwingFound runs the short pipeline up to the locked swing: high
// sweep at 1.1055 and a reversal pair forming a 1.1020 swing low, with the
// imbalance bars already printed but no close through structure yet.
func (h *harness) driveToSwingFound(t *testing.T) {
	t.Helper()
	h.preSession(t, 1.1050, 1.0950)

	h.engine.OnBarClosed("m1", bar(5, 10, 0, 1.1040, 1.1046, 1.1036, 1.1044))
	h.engine.OnBarClosed("m1", bar(5, 10, 1, 1.1044, 1.1048, 1.1040, 1.1046))
	h.engine.OnBarClosed("m1", bar(5, 10, 2, 1.1046, 1.1049, 1.1042, 1.1047))
	h.engine.OnBarClosed("m1", bar(5, 10, 3, 1.1047, 1.1049, 1.1043, 1.1048))
	h.engine.OnBarClosed("m1", bar(5, 10, 4, 1.1048, 1.1049, 1.1044, 1.1048))

	// Ask prints through the 1.1050 session high.
	h.engine.OnTick(tick(5, 10, 5, 30, 1.1053, 1.1055))
	require.Equal(t, StageSwept, h.engine.Stage())

	// Sweep print bar, then the two-bar reversal around the 1.1020 low.
	h.engine.OnBarClosed("m1", bar(5, 10, 5, 1.1048, 1.1055, 1.1040, 1.1042))
	h.engine.OnBarClosed("m1", bar(5, 10, 6, 1.1042, 1.1045, 1.1022, 1.1025))
	require.Equal(t, StageSwept, h.engine.Stage())
	h.engine.OnBarClosed("m1", bar(5, 10, 7, 1.1025, 1.1032, 1.1020, 1.1030))
	require.Equal(t, StageSwingFound, h.engine.Stage())

	// Closes hold above the swing low while the imbalance forms.
	h.engine.OnBarClosed("m1", bar(5, 10, 8, 1.1030, 1.1034, 1.1010, 1.1026))
	h.engine.OnBarClosed("m1", bar(5, 10, 9, 1.1026, 1.1027, 1.1000, 1.1021))
	require.Equal(t, StageSwingFound, h.engine.Stage())
}

// breakStructure closes the 10:10 bar through the 1.1020 swing low with the
// market well below the entry zone.
func (h *harness) breakStructure(t *testing.T) {
	t.Helper()
	h.engine.OnTick(tick(5, 10, 10, 45, 1.0994, 1.0996))
	h.engine.OnBarClosed("m1", bar(5, 10, 10, 1.1004, 1.1005, 1.0993, 1.0995))
}

// runShortSetup drives the full short pipeline through the structure break.
func (h *harness) runShortSetup(t *testing.T) {
	t.Helper()
	h.driveToSwingFound(t)
	h.breakStructure(t)
}

func TestEndToEndShortSignal(t *testing.T) {
	h := newHarness(t, &PatternLocator{TimeoutBars: 15})
	h.runShortSetup(t)

	require.Len(t, h.emitted, 1)
	sig := h.emitted[0]
	require.True(t, strings.HasPrefix(sig.label, "SB-"))
	require.Equal(t, 1, sig.session)
	require.Equal(t, broker.Sell, sig.plan.Side)
	require.InDelta(t, 1.1010, sig.plan.Entry, 1e-9, "entry at the top of the bearish gap")
	require.InDelta(t, 1.1057, sig.plan.Stop, 1e-9, "stop above the 1.1055 sweep extreme plus buffer")
	require.InDelta(t, 1.0950, sig.plan.Target, 1e-9, "target at the opposite session level")
	require.InDelta(t, 0.0060/0.0047, sig.plan.RR, 1e-6)
	require.InDelta(t, 2.12, sig.plan.Volume, 1e-9, "1% of 10000 over a 47 tick stop, floored to step")

	require.Equal(t, StagePending, h.engine.Stage())
	require.Equal(t, sig.label, h.engine.PendingLabel())
}

func TestFillCountsTradeAndReleasesPipeline(t *testing.T) {
	h := newHarness(t, &PatternLocator{TimeoutBars: 15})
	h.runShortSetup(t)
	require.Len(t, h.emitted, 1)
	label := h.emitted[0].label

	h.engine.OnOrderUpdate(label, broker.Filled, 1.1010, 2.12)
	require.Equal(t, StageIdle, h.engine.Stage())
	require.Empty(t, h.engine.PendingLabel())
}

func TestRejectedOrderDoesNotCountAgainstCap(t *testing.T) {
	h := newHarness(t, &PatternLocator{TimeoutBars: 15})
	h.runShortSetup(t)
	require.Len(t, h.emitted, 1)

	h.engine.OnOrderUpdate(h.emitted[0].label, broker.Rejected, 0, 0)
	require.Equal(t, StageIdle, h.engine.Stage())
	require.Empty(t, h.engine.PendingLabel())
}

func TestStaleOrderUpdateIgnored(t *testing.T) {
	h := newHarness(t, &PatternLocator{TimeoutBars: 15})
	h.runShortSetup(t)
	require.Equal(t, StagePending, h.engine.Stage())

	h.engine.OnOrderUpdate("SB-from-a-previous-life", broker.Canceled, 0, 0)
	require.Equal(t, StagePending, h.engine.Stage(), "unknown labels must not disturb the pending signal")
}

func TestProfitTargetCancelsRestingOrder(t *testing.T) {
	h := newHarness(t, &PatternLocator{TimeoutBars: 15})
	h.runShortSetup(t)
	require.Len(t, h.emitted, 1)
	label := h.emitted[0].label

	// A +1.2% close on 10000 equity crosses the 1% daily target while the
	// signal is still resting.
	h.engine.OnPositionClosed("SB-some-earlier-trade", 120)
	require.Equal(t, []string{label}, h.canceled)

	// Detection stands down for the rest of the date.
	h.engine.OnOrderUpdate(label, broker.Canceled, 0, 0)
	h.engine.OnTick(tick(5, 10, 20, 0, 1.1040, 1.1042))
	require.NotEqual(t, StagePending, h.engine.Stage())
	require.Len(t, h.emitted, 1)
}

func TestEmitFailureResetsSetup(t *testing.T) {
	h := newHarness(t, &PatternLocator{TimeoutBars: 15})
	h.emitErr = errors.New("venue unreachable")
	h.runShortSetup(t)

	require.Empty(t, h.emitted)
	require.Equal(t, StageIdle, h.engine.Stage())
	require.Empty(t, h.engine.PendingLabel())
}

func TestStructureBreakTimeoutAbandonsSetup(t *testing.T) {
	h := newHarness(t, &PivotLocator{LookbackBars: 20, CandleCount: 1})
	h.preSession(t, 1.1050, 1.0950)

	h.engine.OnTick(tick(5, 10, 0, 30, 1.1053, 1.1055))
	require.Equal(t, StageSwept, h.engine.Stage())

	// Drift sideways without ever closing through structure.
	for m := 0; m < 35; m++ {
		h.engine.OnBarClosed("m1", bar(5, 10, m, 1.1048, 1.1052, 1.1046, 1.1050))
	}
	require.Equal(t, StageIdle, h.engine.Stage())
	require.Empty(t, h.emitted)
}

func TestDailyResetMidSetup(t *testing.T) {
	h := newHarness(t, &PatternLocator{TimeoutBars: 15})
	h.preSession(t, 1.1050, 1.0950)

	h.engine.OnTick(tick(5, 10, 5, 30, 1.1053, 1.1055))
	require.Equal(t, StageSwept, h.engine.Stage())

	// First event of the next session-local date clears everything.
	h.engine.OnBarClosed("m1", bar(6, 9, 55, 1.1040, 1.1046, 1.1036, 1.1044))
	require.Equal(t, StageIdle, h.engine.Stage())

	// The new date's session identifies liquidity afresh.
	h.engine.OnBarClosed("m1", bar(6, 9, 59, 1.1044, 1.1060, 1.1030, 1.1050))
	h.engine.OnTick(tick(6, 10, 0, 5, 1.1050, 1.1052))
	require.Equal(t, StageLiquidity, h.engine.Stage())
}

func TestProfitTargetBlocksConfirmedSetup(t *testing.T) {
	h := newHarness(t, &PatternLocator{TimeoutBars: 15})
	h.driveToSwingFound(t)

	// A +2% close reaches the daily target while the break is still
	// pending confirmation.
	h.engine.OnPositionClosed("SB-earlier-trade", 200)

	// The break bar closes through the swing, but emission is gated.
	h.breakStructure(t)
	require.Empty(t, h.emitted)
	require.NotEqual(t, StagePending, h.engine.Stage())
	require.Empty(t, h.engine.PendingLabel())
}

func TestBufferTickDoesNotIdentifyEarly(t *testing.T) {
	h := newHarness(t, &PatternLocator{TimeoutBars: 15})

	// History ends at 09:29 when buffer trading starts; that bar must not
	// become the session reference pair.
	h.engine.OnBarClosed("m1", bar(5, 9, 28, 1.1030, 1.1040, 1.1025, 1.1035))
	h.engine.OnBarClosed("m1", bar(5, 9, 29, 1.1035, 1.1050, 1.1020, 1.1040))
	h.engine.OnTick(tick(5, 9, 30, 10, 1.1040, 1.1042))
	require.Equal(t, StageIdle, h.engine.Stage())

	// The true pre-session bar prints a wider range just before the open.
	h.engine.OnBarClosed("m1", bar(5, 9, 59, 1.1040, 1.1080, 1.1000, 1.1060))
	h.engine.OnTick(tick(5, 10, 0, 5, 1.1060, 1.1062))
	require.Equal(t, StageLiquidity, h.engine.Stage())

	// The stale 09:29 high is not a level.
	h.engine.OnTick(tick(5, 10, 1, 0, 1.1053, 1.1055))
	require.Equal(t, StageLiquidity, h.engine.Stage())

	// The 09:59 high is.
	h.engine.OnTick(tick(5, 10, 2, 0, 1.1079, 1.1081))
	require.Equal(t, StageSwept, h.engine.Stage())
}

func TestLaterSessionWaitsForEarlierSweep(t *testing.T) {
	h := newHarnessWithSessions(t, &PatternLocator{TimeoutBars: 60}, []session.Spec{
		{Start: session.Clock{Hour: 10}, End: session.Clock{Hour: 11}},
		{Start: session.Clock{Hour: 11, Minute: 30}, End: session.Clock{Hour: 12, Minute: 30}},
	})
	h.preSession(t, 1.1050, 1.0950)

	h.engine.OnTick(tick(5, 10, 5, 30, 1.1053, 1.1055))
	require.Equal(t, StageSwept, h.engine.Stage())

	// A tick inside the second session's buffer must not load its levels
	// while the first session's sweep is open.
	h.engine.OnTick(tick(5, 11, 5, 0, 1.1048, 1.1050))
	require.Equal(t, StageSwept, h.engine.Stage())
	require.False(t, h.engine.identified[2])
	require.Zero(t, h.engine.pool.Len())

	// Bullish drift never prints a reversal pair; the structure-break
	// timeout eventually abandons the setup.
	for m := 0; m < 35; m++ {
		h.engine.OnBarClosed("m1", bar(5, 11, 6+m, 1.1048, 1.1052, 1.1046, 1.1050))
	}
	require.Equal(t, StageIdle, h.engine.Stage())

	// With the pipeline free again, the second session identifies.
	h.engine.OnTick(tick(5, 11, 45, 0, 1.1048, 1.1050))
	require.Equal(t, StageLiquidity, h.engine.Stage())
	require.True(t, h.engine.identified[2])
}
