// strategy/engine.go
package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sergeysmolkin-grodt/SilverBullet/broker"
	"github.com/sergeysmolkin-grodt/SilverBullet/journal"
	"github.com/sergeysmolkin-grodt/SilverBullet/liquidity"
	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
	"github.com/sergeysmolkin-grodt/SilverBullet/market"
	"github.com/sergeysmolkin-grodt/SilverBullet/profit"
	"github.com/sergeysmolkin-grodt/SilverBullet/risk"
	"github.com/sergeysmolkin-grodt/SilverBullet/session"
	"github.com/sergeysmolkin-grodt/SilverBullet/state"
)

// Stage is the open stage of the detection pipeline. Break-of-structure and
// gap discovery are transient: both are consumed within the bar event that
// produces them, so they never appear as resting stages.
type Stage int

const (
	StageIdle Stage = iota
	// StageLiquidity means session levels are identified and armed.
	StageLiquidity
	// StageSwept means a level was taken out and the structural reference
	// search is running.
	StageSwept
	// StageSwingFound means the reference is locked and closes are being
	// watched for the structure break.
	StageSwingFound
	// StagePending means a signal is out and detection is suspended until
	// its lifecycle resolves.
	StagePending
)

func (s Stage) String() string {
	switch s {
	case StageLiquidity:
		return "LIQUIDITY"
	case StageSwept:
		return "SWEPT"
	case StageSwingFound:
		return "SWING_FOUND"
	case StagePending:
		return "PENDING"
	default:
		return "IDLE"
	}
}

// Sweep records a consumed liquidity level. Targets is the snapshot of the
// opposite-side levels taken at sweep time; the pool itself is cleared so a
// level can never be swept twice.
type Sweep struct {
	Side    liquidity.Side
	Level   liquidity.Level
	At      time.Time
	Targets []liquidity.Level
}

// EmitFunc submits a fully parameterized signal to the execution venue.
type EmitFunc func(label string, plan risk.Plan, sessionOrdinal int, at time.Time) error

// CancelFunc withdraws a resting signal by label.
type CancelFunc func(label string) error

// Deps wires the engine to everything it consumes. Context and Exec may be
// the same series when the two timeframes coincide.
type Deps struct {
	Symbol        string
	ContextName   string
	ExecutionName string

	Oracle     *session.Oracle
	Context    *market.Series
	Execution  *market.Series
	Identifier *liquidity.Identifier
	Locator    SwingLocator
	Planner    *risk.Engine
	Limits     *risk.DailyLimits
	Accountant *profit.Accountant
	Store      state.Store
	Journal    journal.Recorder

	BOSTimeoutBars int
	Info           broker.SymbolInfo
	Equity         func() float64
	Emit           EmitFunc
	Cancel         CancelFunc
}

// Engine is the per-instrument detection state machine. It is single
// threaded: the monitor loop delivers every tick, closed bar and lifecycle
// callback on one goroutine, which is the whole concurrency story.
type Engine struct {
	d Deps

	stage         Stage
	identified    map[int]bool
	pool          liquidity.Pool
	sweep         *Sweep
	swing         *SwingRef
	pendingLabel  string
	activeOrdinal int

	lastTick market.Tick
	haveTick bool
}

// NewEngine builds an idle engine.
func NewEngine(d Deps) *Engine {
	return &Engine{d: d, identified: make(map[int]bool)}
}

// Stage returns the current pipeline stage.
func (e *Engine) Stage() Stage { return e.stage }

// PendingLabel returns the label of the outstanding signal, if any.
func (e *Engine) PendingLabel() string { return e.pendingLabel }

// RestorePending arms the engine with a signal label persisted by an
// earlier run, so a restart does not double-submit.
func (e *Engine) RestorePending(label string) {
	if label == "" {
		return
	}
	e.pendingLabel = label
	e.stage = StagePending
	logs.Infof("[Strategy] Resuming with pending order %s from previous run", label)
}

// OnTick consumes a best bid/ask update: date rollover, session liquidity
// identification, and sweep detection all happen here.
func (e *Engine) OnTick(t market.Tick) {
	local := e.rollover(t.Time)
	e.lastTick = t
	e.haveTick = true

	if e.stage == StagePending {
		return
	}
	if !e.d.Limits.Allow() {
		return
	}

	win, ok := e.d.Oracle.Active(local)
	if !ok {
		if e.activeOrdinal != 0 {
			logs.Infof("[Strategy] Session %d window closed", e.activeOrdinal)
			e.activeOrdinal = 0
		}
		return
	}
	if win.Ordinal != e.activeOrdinal {
		logs.Infof("[Strategy] Session %d window open (%s-%s incl. buffer)",
			win.Ordinal, win.Start.Format("15:04"), win.End.Format("15:04"))
		e.activeOrdinal = win.Ordinal
	}
	// A later session's liquidity is not loaded while an earlier session's
	// sweep is still in flight.
	if e.stage == StageIdle || e.stage == StageLiquidity {
		e.observeSession(win, local)
	}
	if e.stage == StageLiquidity {
		e.detectSweep(t)
	}
}

// OnBarClosed appends a closed bar to its series and advances any setup in
// flight. Bars on unknown timeframes are dropped.
func (e *Engine) OnBarClosed(timeframe string, b market.Bar) {
	e.rollover(b.OpenTime)

	switch timeframe {
	case e.d.ExecutionName:
		e.d.Execution.Append(b)
	case e.d.ContextName:
		e.d.Context.Append(b)
		return
	default:
		return
	}

	if e.stage == StageSwept || e.stage == StageSwingFound {
		e.advance()
	}
}

// OnOrderUpdate consumes an order lifecycle transition for the pending
// signal. Updates for unknown labels are ignored; a restart may legally
// receive stragglers for orders it no longer tracks.
func (e *Engine) OnOrderUpdate(label string, status broker.OrderStatus, fillPrice, volume float64) {
	if label != e.pendingLabel || label == "" {
		logs.Debugf("[Strategy] Ignoring %s update for unknown order %s", status, label)
		return
	}
	if err := e.d.Journal.RecordOrderEvent(&journal.OrderEvent{
		Label:     label,
		Status:    string(status),
		FillPrice: fillPrice,
		Volume:    volume,
		At:        time.Now().UTC(),
	}); err != nil {
		logs.Warnf("[Journal] Failed to record order event: %v", err)
	}

	switch status {
	case broker.Filled:
		logs.Infof("[Strategy] Order %s filled: %.4f @ %.5f (trade %d of %d today)",
			label, volume, fillPrice, e.d.Limits.Trades()+1, e.d.Limits.MaxTrades)
		e.d.Limits.RecordTrade()
		e.persistDaily()
		e.clearPending()
	case broker.Canceled, broker.Rejected:
		logs.Infof("[Strategy] Order %s %s, setup released", label, status)
		e.clearPending()
	}
}

// OnPositionClosed books a realized result against the daily profit target.
// Crossing the target cancels any resting signal and stands the engine down
// for the rest of the session-local date.
func (e *Engine) OnPositionClosed(label string, realizedPnL float64) {
	pct := e.d.Accountant.RecordClose(label, realizedPnL, e.d.Equity())
	if err := e.d.Journal.RecordClose(&journal.CloseRecord{
		Label:     label,
		PnL:       realizedPnL,
		EquityPct: pct,
		At:        time.Now().UTC(),
	}); err != nil {
		logs.Warnf("[Journal] Failed to record close: %v", err)
	}
	logs.Infof("[Strategy] Position %s closed: %.2f (%.3f%%), day %.2f (%.3f%%)",
		label, realizedPnL, pct, e.d.Accountant.DayRealized(), e.d.Accountant.DayPct())

	if e.d.Limits.RecordProfit(pct) {
		logs.Infof("[Strategy] Daily profit target reached at %.3f%%, standing down for the day", e.d.Accountant.DayPct())
		if e.pendingLabel != "" && e.d.Cancel != nil {
			if err := e.d.Cancel(e.pendingLabel); err != nil {
				logs.Warnf("[Strategy] Failed to cancel resting order %s: %v", e.pendingLabel, err)
			}
		}
	}
	e.persistDaily()
}

// rollover converts the event time to session-local and resets daily state
// on the first event of a new session-local date.
func (e *Engine) rollover(t time.Time) time.Time {
	local := e.d.Oracle.Local(t)
	if e.d.Oracle.Roll(local) {
		e.resetDaily()
	}
	return local
}

func (e *Engine) resetDaily() {
	date := e.d.Oracle.Date()
	if !e.d.Limits.Reset(date) {
		// Counters for this date were restored from disk; keep them.
		return
	}
	e.d.Accountant.ResetDay()
	e.identified = make(map[int]bool)
	e.activeOrdinal = 0
	e.pool.Clear()
	e.sweep = nil
	e.swing = nil
	if e.pendingLabel != "" {
		logs.Warnf("[Strategy] Order %s still pending across the date boundary, cancelling", e.pendingLabel)
		if e.d.Cancel != nil {
			if err := e.d.Cancel(e.pendingLabel); err != nil {
				logs.Warnf("[Strategy] Failed to cancel %s: %v", e.pendingLabel, err)
			}
		}
		e.setPendingLabel("")
	}
	e.stage = StageIdle
	e.persistDaily()
	logs.Infof("[Strategy] New trading date %s, daily state reset", date.Format("2006-01-02"))
}

// observeSession identifies the active window's liquidity exactly once.
// Insufficient history is not an error; identification retries on the next
// event until the context series is deep enough.
func (e *Engine) observeSession(win session.Window, local time.Time) {
	if e.identified[win.Ordinal] {
		return
	}
	// The session-bar strategy freezes the bar immediately preceding the
	// open; during the entry buffer that bar has not printed yet.
	if e.d.Identifier.Mode == liquidity.ModeSessionBar && local.Before(win.Start) {
		return
	}
	levels, ok := e.d.Identifier.Identify(e.d.Context.Bars(), win.Start, win.Ordinal)
	if !ok {
		return
	}
	e.identified[win.Ordinal] = true
	e.pool.Set(levels)
	logs.Infof("[Strategy] Session %d (%s-%s): %d liquidity level(s) identified",
		win.Ordinal, win.Start.Format("15:04"), win.End.Format("15:04"), len(levels))
	if e.stage == StageIdle && e.pool.Len() > 0 {
		e.stage = StageLiquidity
	}
}

// detectSweep arms on the first quote that trades through a retained level:
// ask through a high, bid through a low. The first level hit wins and the
// pool is cleared so nothing is ever swept twice.
func (e *Engine) detectSweep(t market.Tick) {
	for _, lvl := range e.pool.All() {
		swept := (lvl.Side == liquidity.SideHigh && t.Ask > lvl.Price) ||
			(lvl.Side == liquidity.SideLow && t.Bid < lvl.Price)
		if !swept {
			continue
		}
		e.sweep = &Sweep{
			Side:    lvl.Side,
			Level:   lvl,
			At:      t.Time,
			Targets: e.pool.Opposite(lvl.Side),
		}
		e.pool.Clear()
		e.stage = StageSwept
		logs.Infof("[Strategy] Session %d %s liquidity %.5f swept (bid %.5f / ask %.5f), %d target(s) retained",
			lvl.Session, lvl.Side, lvl.Price, t.Bid, t.Ask, len(e.sweep.Targets))
		return
	}
}

// advance runs the bar-driven stages: swing location, structure-break watch,
// gap discovery and signal construction. Called once per closed execution
// bar while a setup is in flight.
func (e *Engine) advance() {
	bars := e.d.Execution.Bars()
	sweepIdx := e.d.Execution.IndexAt(e.sweep.At)
	if sweepIdx < 0 {
		logs.Warnf("[Strategy] Sweep bar no longer in the series, abandoning setup")
		e.resetSetup()
		return
	}
	if len(bars)-1-sweepIdx > e.d.BOSTimeoutBars {
		logs.Infof("[Strategy] No structure break within %d bars of the sweep, abandoning setup", e.d.BOSTimeoutBars)
		e.resetSetup()
		return
	}

	if e.stage == StageSwept {
		ref, status := e.d.Locator.Locate(bars, sweepIdx, e.sweep.Side)
		switch status {
		case LocateWait:
			return
		case LocateDiscard:
			logs.Infof("[Strategy] No usable swing reference for the sweep, abandoning setup")
			e.resetSetup()
			return
		}
		e.swing = &ref
		e.stage = StageSwingFound
		logs.Infof("[Strategy] Swing reference %.5f locked (bar %s)", ref.Price, ref.BarTime.Format("15:04"))
	}

	swingIdx := e.d.Execution.IndexAt(e.swing.BarTime)
	if swingIdx < 0 {
		logs.Warnf("[Strategy] Swing bar no longer in the series, abandoning setup")
		e.resetSetup()
		return
	}
	from := sweepIdx
	if swingIdx > from {
		from = swingIdx
	}
	for j := from + 1; j < len(bars); j++ {
		broke := (e.sweep.Side == liquidity.SideHigh && bars[j].Close < e.swing.Price) ||
			(e.sweep.Side == liquidity.SideLow && bars[j].Close > e.swing.Price)
		if broke {
			logs.Infof("[Strategy] Structure break: close %.5f through %.5f", bars[j].Close, e.swing.Price)
			e.onStructureBreak(bars, sweepIdx, j)
			return
		}
	}
}

// onStructureBreak consumes the confirmed break: find the entry gap, build
// the plan, emit. Every failure path is a full setup reset.
func (e *Engine) onStructureBreak(bars []market.Bar, sweepIdx, bosIdx int) {
	if !e.d.Limits.Allow() {
		logs.Infof("[Strategy] Daily limits reached, discarding confirmed setup")
		e.resetSetup()
		return
	}
	side := broker.Sell
	gapAt := market.BearishGapAt
	if e.sweep.Side == liquidity.SideLow {
		side = broker.Buy
		gapAt = market.BullishGapAt
	}

	var (
		gap   market.Gap
		found bool
	)
	// Nearest gap to the break, scanning back to the sweep bar.
	for m := bosIdx - 1; m >= sweepIdx && m >= 1; m-- {
		if g, ok := gapAt(bars, m); ok {
			gap, found = g, true
			break
		}
	}
	if !found {
		logs.Infof("[Strategy] No imbalance between sweep and break, abandoning setup")
		e.resetSetup()
		return
	}

	bid, ask := e.lastTick.Bid, e.lastTick.Ask
	if !e.haveTick {
		bid, ask = bars[bosIdx].Close, bars[bosIdx].Close
	}
	plan, err := e.d.Planner.Build(side, bars[sweepIdx:bosIdx+1], gap, e.sweep.Targets, bid, ask, e.d.Equity(), e.d.Info)
	if err != nil {
		logs.Infof("[Strategy] Setup rejected: %v", err)
		e.resetSetup()
		return
	}
	e.emitSignal(plan, bars[bosIdx])
}

func (e *Engine) emitSignal(plan risk.Plan, bosBar market.Bar) {
	label := fmt.Sprintf("SB-%s", uuid.New().String())
	at := bosBar.OpenTime
	if e.haveTick {
		at = e.lastTick.Time
	}
	ordinal := e.sweep.Level.Session

	if err := e.d.Emit(label, plan, ordinal, at); err != nil {
		logs.Errorf("[Strategy] Order submission for %s failed: %v", label, err)
		e.resetSetup()
		return
	}
	if err := e.d.Journal.RecordSignal(&journal.SignalRecord{
		Label:   label,
		Symbol:  e.d.Symbol,
		Side:    string(plan.Side),
		Entry:   plan.Entry,
		Stop:    plan.Stop,
		Target:  plan.Target,
		Volume:  plan.Volume,
		RR:      plan.RR,
		Session: ordinal,
		At:      at,
	}); err != nil {
		logs.Warnf("[Journal] Failed to record signal %s: %v", label, err)
	}

	e.sweep = nil
	e.swing = nil
	e.setPendingLabel(label)
	e.stage = StagePending
	logs.Infof("[Strategy] Signal %s: %s %.4f @ %.5f, stop %.5f, target %.5f (RR %.2f)",
		label, plan.Side, plan.Volume, plan.Entry, plan.Stop, plan.Target, plan.RR)
}

// resetSetup tears the open stage back down. The pool survives only when it
// still holds unswept levels, in which case the engine stays armed.
func (e *Engine) resetSetup() {
	e.sweep = nil
	e.swing = nil
	if e.pool.Len() > 0 {
		e.stage = StageLiquidity
	} else {
		e.stage = StageIdle
	}
}

func (e *Engine) clearPending() {
	e.setPendingLabel("")
	e.resetSetup()
}

func (e *Engine) setPendingLabel(label string) {
	e.pendingLabel = label
	if e.d.Store == nil {
		return
	}
	if err := e.d.Store.SavePendingLabel(label); err != nil {
		logs.Warnf("[State] Failed to persist pending label: %v", err)
	}
}

func (e *Engine) persistDaily() {
	if e.d.Store == nil {
		return
	}
	if err := e.d.Store.SaveDaily(e.d.Limits.Snapshot()); err != nil {
		logs.Warnf("[State] Failed to persist daily counters: %v", err)
	}
}
