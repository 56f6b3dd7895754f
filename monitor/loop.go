// monitor/loop.go
package monitor

import (
	"context"
	"time"

	"github.com/sergeysmolkin-grodt/SilverBullet/account"
	"github.com/sergeysmolkin-grodt/SilverBullet/broker"
	"github.com/sergeysmolkin-grodt/SilverBullet/config"
	"github.com/sergeysmolkin-grodt/SilverBullet/feed"
	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
	"github.com/sergeysmolkin-grodt/SilverBullet/strategy"
)

type orderUpdate struct {
	label     string
	status    broker.OrderStatus
	fillPrice float64
	volume    float64
}

type positionClose struct {
	label string
	pnl   float64
}

// Start runs the main event loop. Ticks, closed bars, order updates and
// position closes are all funneled through this single goroutine, so the
// engine never needs a lock. Broker callbacks may fire on other goroutines;
// they only enqueue here.
func Start(
	src feed.Feed,
	engine *strategy.Engine,
	client broker.Client,
	accounts *account.Manager,
	paper *broker.PaperClient, // non-nil in simulation mode
	poller *broker.RESTClient, // non-nil in live mode
	cfg *config.Config,
	stopChan <-chan struct{},
) {
	orderCh := make(chan orderUpdate, 128)
	closeCh := make(chan positionClose, 128)

	client.SetOrderUpdateCallback(func(label string, status broker.OrderStatus, fillPrice, volume float64) {
		select {
		case orderCh <- orderUpdate{label: label, status: status, fillPrice: fillPrice, volume: volume}:
		default:
			logs.Warnf("[Monitor] Order update queue full, dropping %s %s", label, status)
		}
	})
	client.SetPositionClosedCallback(func(label string, realizedPnL float64) {
		select {
		case closeCh <- positionClose{label: label, pnl: realizedPnL}:
		default:
			logs.Warnf("[Monitor] Position close queue full, dropping %s", label)
		}
	})

	httpTimeout := time.Duration(cfg.Normal.HTTPTimeoutSeconds) * time.Second

	heartbeat := time.NewTicker(time.Duration(cfg.Normal.HeartbeatIntervalMinutes) * time.Minute)
	defer heartbeat.Stop()
	equityTicker := time.NewTicker(time.Duration(cfg.Normal.EquityRefreshSeconds) * time.Second)
	defer equityTicker.Stop()
	pollTicker := time.NewTicker(time.Duration(cfg.Normal.OrderPollSeconds) * time.Second)
	defer pollTicker.Stop()

	for {
		select {
		case <-stopChan:
			logs.Info("Monitor received stop signal, exiting.")
			return

		case ev, ok := <-src.Events():
			if !ok {
				logs.Info("[Monitor] Feed ended, exiting.")
				return
			}
			switch ev.Type {
			case feed.EventTick:
				// The paper venue sees the quote first so fills and
				// SL/TP hits land in the queues before detection runs.
				if paper != nil {
					paper.UpdateQuote(ev.Tick.Bid, ev.Tick.Ask, ev.Tick.Time)
				}
				drain(engine, orderCh, closeCh)
				engine.OnTick(ev.Tick)
			case feed.EventBar:
				engine.OnBarClosed(ev.Timeframe, ev.Bar)
			}

		case u := <-orderCh:
			engine.OnOrderUpdate(u.label, u.status, u.fillPrice, u.volume)

		case pc := <-closeCh:
			engine.OnPositionClosed(pc.label, pc.pnl)

		case <-pollTicker.C:
			if poller == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
			if err := poller.Poll(ctx, cfg.Symbol); err != nil {
				logs.Warnf("[Monitor] Order poll failed: %v", err)
			}
			cancel()

		case <-equityTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), httpTimeout)
			accounts.Refresh(ctx)
			cancel()

		case <-heartbeat.C:
			logs.Infof("[Heartbeat] Monitor running: stage %s, equity %.2f (refreshed %s)",
				engine.Stage(), accounts.Equity(), accounts.UpdatedAt().Format("15:04:05"))
		}
	}
}

// drain delivers queued lifecycle events ahead of the next tick. In
// simulation a quote can fill an order and close a position in one call;
// the engine must see those transitions before it sees the tick itself.
func drain(engine *strategy.Engine, orderCh <-chan orderUpdate, closeCh <-chan positionClose) {
	for {
		select {
		case u := <-orderCh:
			engine.OnOrderUpdate(u.label, u.status, u.fillPrice, u.volume)
		case pc := <-closeCh:
			engine.OnPositionClosed(pc.label, pc.pnl)
		default:
			return
		}
	}
}
