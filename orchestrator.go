// orchestrator.go
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sergeysmolkin-grodt/SilverBullet/account"
	"github.com/sergeysmolkin-grodt/SilverBullet/broker"
	"github.com/sergeysmolkin-grodt/SilverBullet/config"
	"github.com/sergeysmolkin-grodt/SilverBullet/feed"
	"github.com/sergeysmolkin-grodt/SilverBullet/journal"
	"github.com/sergeysmolkin-grodt/SilverBullet/liquidity"
	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
	"github.com/sergeysmolkin-grodt/SilverBullet/market"
	"github.com/sergeysmolkin-grodt/SilverBullet/monitor"
	"github.com/sergeysmolkin-grodt/SilverBullet/profit"
	"github.com/sergeysmolkin-grodt/SilverBullet/risk"
	"github.com/sergeysmolkin-grodt/SilverBullet/session"
	"github.com/sergeysmolkin-grodt/SilverBullet/state"
	"github.com/sergeysmolkin-grodt/SilverBullet/strategy"
	"github.com/sergeysmolkin-grodt/SilverBullet/utils"
)

// seriesCapacity bounds the retained bar history per timeframe; deep enough
// for any configured lookback with a wide margin.
const seriesCapacity = 2000

type Orchestrator struct {
	client     broker.Client
	paper      *broker.PaperClient
	poller     *broker.RESTClient
	engine     *strategy.Engine
	feed       feed.Feed
	accounts   *account.Manager
	accountant *profit.Accountant
	recorder   journal.Recorder
	stateMgr   *state.Manager
	cfg        *config.Config

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewOrchestrator(cfg *config.Config, envCfg *config.EnvConfig, stateFilePath string) (*Orchestrator, error) {
	httpTimeout := time.Duration(cfg.Normal.HTTPTimeoutSeconds) * time.Second

	// Venue client and instrument geometry.
	var (
		client broker.Client
		paper  *broker.PaperClient
		poller *broker.RESTClient
		info   broker.SymbolInfo
	)
	if cfg.UseSimulation {
		info = broker.SymbolInfo{
			TickSize:   cfg.Instrument.TickSize,
			TickValue:  cfg.Instrument.TickValue,
			MinVolume:  cfg.Instrument.MinVolume,
			MaxVolume:  cfg.Instrument.MaxVolume,
			VolumeStep: cfg.Instrument.VolumeStep,
			Digits:     digitsForTick(cfg.Instrument.TickSize),
		}
		paper = broker.NewPaperClient(cfg.Instrument.Equity, info)
		client = paper
		logs.Warnf("<<<<<<<<<< WARNING: Running in simulation mode, orders are paper only >>>>>>>>>>")
	} else {
		if envCfg.ApiKey == "" || envCfg.ApiSecret == "" || envCfg.BaseURL == "" {
			return nil, fmt.Errorf("live mode requires BROKER_API_KEY, BROKER_API_SECRET and BROKER_BASE_URL")
		}
		poller = broker.NewRESTClient(envCfg.ApiKey, envCfg.ApiSecret, envCfg.BaseURL, cfg.Normal.HTTPTimeoutSeconds)
		client = poller

		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		fetched, err := poller.FetchSymbolInfo(ctx, cfg.Symbol)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("unable to get symbol info for %s: %w", cfg.Symbol, err)
		}
		info = fetched
	}

	stateMgr, err := state.NewManager(stateFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	logs.Infof("State manager initialized, state will be persisted to: %s", stateFilePath)

	// Session windows.
	specs := make([]session.Spec, 0, len(cfg.Sessions))
	for i, sc := range cfg.Sessions {
		start, err := session.ParseClock(sc.Start)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i+1, err)
		}
		end, err := session.ParseClock(sc.End)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", i+1, err)
		}
		specs = append(specs, session.Spec{Start: start, End: end})
	}
	oracle := session.NewOracle(cfg.Timezone, specs, time.Duration(cfg.BufferMinutes)*time.Minute)

	// Bar series; the context series aliases the execution one when the
	// two timeframes coincide.
	execTF, err := market.ParseTimeframe(cfg.ExecutionTimeframe)
	if err != nil {
		return nil, err
	}
	execSeries := market.NewSeries(execTF, seriesCapacity)
	ctxSeries := execSeries
	if cfg.ContextTimeframe != cfg.ExecutionTimeframe {
		ctxTF, err := market.ParseTimeframe(cfg.ContextTimeframe)
		if err != nil {
			return nil, err
		}
		ctxSeries = market.NewSeries(ctxTF, seriesCapacity)
	}

	identifier := &liquidity.Identifier{
		Mode:         liquidity.ModeSessionBar,
		LookbackBars: cfg.Liquidity.LookbackBars,
		MaxLevels:    cfg.Liquidity.MaxLevels,
		MinLead:      time.Duration(cfg.Liquidity.MinutesBeforeSession) * time.Minute,
		CandleCount:  cfg.Liquidity.CandleCount,
	}
	if cfg.Liquidity.Mode == "pivots" {
		identifier.Mode = liquidity.ModePivots
	}

	var locator strategy.SwingLocator
	if cfg.Swing.Strategy == "pattern" {
		locator = &strategy.PatternLocator{TimeoutBars: cfg.Swing.PatternTimeoutBars}
	} else {
		locator = &strategy.PivotLocator{LookbackBars: cfg.Swing.LookbackBars, CandleCount: cfg.Swing.CandleCount}
	}

	limits := &risk.DailyLimits{MaxTrades: cfg.Daily.MaxTrades, ProfitTargetPct: cfg.Daily.ProfitTargetPct}
	localNow := oracle.Local(time.Now())
	today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, localNow.Location())
	limits.Restore(stateMgr.Daily(), today)

	var recorder journal.Recorder = journal.Noop{}
	if cfg.Normal.JournalPath != "" {
		db, err := journal.NewSQLite(cfg.Normal.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open signal journal: %w", err)
		}
		recorder = db
		logs.Infof("Signal journal: %s", cfg.Normal.JournalPath)
	}

	initialEquity := cfg.Instrument.Equity
	if !cfg.UseSimulation {
		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		eq, err := client.GetEquity(ctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to fetch account equity: %w", err)
		}
		initialEquity = eq
	}
	accounts := account.NewManager(client, initialEquity)
	logs.Infof("Account equity: %.2f", accounts.Equity())

	accountant := profit.NewAccountant()
	if snap := stateMgr.Daily(); snap.Date == today.Format("2006-01-02") {
		accountant.Restore(snap.ProfitPct/100*initialEquity, snap.ProfitPct)
	}

	emit := func(label string, plan risk.Plan, _ int, at time.Time) error {
		order := &broker.Order{
			Symbol:      cfg.Symbol,
			Label:       label,
			Side:        plan.Side,
			Type:        broker.Limit,
			Price:       utils.AdjustPriceToTickSize(plan.Entry, info.TickSize),
			StopLoss:    utils.AdjustPriceToTickSize(plan.Stop, info.TickSize),
			TakeProfit:  utils.AdjustPriceToTickSize(plan.Target, info.TickSize),
			Volume:      plan.Volume,
			SubmittedAt: at,
		}
		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		return client.PlaceOrder(ctx, order)
	}
	cancelOrder := func(label string) error {
		ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		return client.CancelOrder(ctx, cfg.Symbol, label)
	}

	engine := strategy.NewEngine(strategy.Deps{
		Symbol:        cfg.Symbol,
		ContextName:   cfg.ContextTimeframe,
		ExecutionName: cfg.ExecutionTimeframe,
		Oracle:        oracle,
		Context:       ctxSeries,
		Execution:     execSeries,
		Identifier:    identifier,
		Locator:       locator,
		Planner: &risk.Engine{
			MinRR:           cfg.Risk.MinRR,
			MaxRR:           cfg.Risk.MaxRR,
			RiskPercent:     cfg.Risk.RiskPercent,
			StopBufferTicks: cfg.Risk.StopBufferTicks,
			MinStopTicks:    cfg.Risk.MinStopTicks,
		},
		Limits:         limits,
		Accountant:     accountant,
		Store:          stateMgr,
		Journal:        recorder,
		BOSTimeoutBars: cfg.BOSTimeoutBars,
		Info:           info,
		Equity:         accounts.Equity,
		Emit:           emit,
		Cancel:         cancelOrder,
	})
	engine.RestorePending(stateMgr.PendingLabel())

	return &Orchestrator{
		client:     client,
		paper:      paper,
		poller:     poller,
		engine:     engine,
		feed:       feed.NewWebsocketFeed(cfg.Feed.URL),
		accounts:   accounts,
		accountant: accountant,
		recorder:   recorder,
		stateMgr:   stateMgr,
		cfg:        cfg,
		stopChan:   make(chan struct{}),
	}, nil
}

func (o *Orchestrator) Start() error {
	if err := o.feed.Start(); err != nil {
		return fmt.Errorf("failed to start market data feed: %w", err)
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		monitor.Start(o.feed, o.engine, o.client, o.accounts, o.paper, o.poller, o.cfg, o.stopChan)
	}()
	logs.Infof("Strategy %s started, press Ctrl+C to exit.", o.cfg.Symbol)
	return nil
}

func (o *Orchestrator) Stop() {
	logs.Info("Received close signal, starting graceful shutdown...")
	close(o.stopChan)
	o.feed.Stop()
	o.wg.Wait()

	o.printFinalSummary()

	if err := o.recorder.Close(); err != nil {
		logs.Errorf("Failed to close signal journal: %v", err)
	}
	logs.Info("Shutdown complete.")
}

func (o *Orchestrator) printFinalSummary() {
	logs.Infof("================ Session Summary ================")
	logs.Infof("Symbol:            %s", o.cfg.Symbol)
	logs.Infof("Day realized PnL:  %.2f (%.3f%%)", o.accountant.DayRealized(), o.accountant.DayPct())
	logs.Infof("Total realized:    %.2f", o.accountant.TotalRealized())
	logs.Infof("Closed trades:     %d", len(o.accountant.DayTrades()))
	logs.Infof("Final equity:      %.2f", o.accounts.Equity())
	if o.paper != nil {
		for _, p := range o.paper.OpenPositions() {
			logs.Infof("Still open:        %s %s %.4f @ %.5f", p.Label, p.Side, p.Volume, p.EntryPrice)
		}
	}
	logs.Infof("=================================================")
}

func digitsForTick(tick float64) int {
	d := 0
	for tick < 1 && d < 10 {
		tick *= 10
		d++
	}
	return d
}
