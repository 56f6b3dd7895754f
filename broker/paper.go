// broker/paper.go
package broker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
	"github.com/sergeysmolkin-grodt/SilverBullet/utils"
)

// Ensure PaperClient implements the Client interface.
var _ Client = (*PaperClient)(nil)

// PaperClient is a simulated venue for running the strategy without a real
// API. It fills resting limit orders against streamed quotes and manages
// stop loss / take profit on the resulting positions, reporting everything
// through the standard callbacks.
type PaperClient struct {
	mu        sync.Mutex
	info      SymbolInfo
	equity    float64
	orders    map[string]*Order    // pending entry orders by label
	positions map[string]*Position // open positions by label

	onOrderUpdate    OrderUpdateCallback
	onPositionClosed PositionClosedCallback
}

// NewPaperClient creates a paper venue with a starting equity and the
// instrument's trading rules.
func NewPaperClient(equity float64, info SymbolInfo) *PaperClient {
	return &PaperClient{
		info:      info,
		equity:    equity,
		orders:    make(map[string]*Order),
		positions: make(map[string]*Position),
	}
}

func (c *PaperClient) PlaceOrder(_ context.Context, order *Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := *order
	o.Status = New
	o.SubmittedAt = time.Now()
	c.orders[o.Label] = &o
	logs.Debugf("[Paper] Accepted %s %s %.2f @ %.5f (sl %.5f, tp %.5f) label=%s",
		o.Side, o.Type, o.Volume, o.Price, o.StopLoss, o.TakeProfit, o.Label)
	return nil
}

func (c *PaperClient) CancelOrder(_ context.Context, _ string, label string) error {
	c.mu.Lock()
	o, ok := c.orders[label]
	if ok {
		delete(c.orders, label)
	}
	cb := c.onOrderUpdate
	c.mu.Unlock()

	if ok && cb != nil {
		cb(o.Label, Canceled, 0, 0)
	}
	return nil
}

func (c *PaperClient) GetEquity(_ context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.equity, nil
}

func (c *PaperClient) GetSymbolInfo(symbol string) (SymbolInfo, bool) {
	if symbol != c.info.Symbol {
		return SymbolInfo{}, false
	}
	return c.info, true
}

func (c *PaperClient) SetOrderUpdateCallback(cb OrderUpdateCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOrderUpdate = cb
}

func (c *PaperClient) SetPositionClosedCallback(cb PositionClosedCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPositionClosed = cb
}

// UpdateQuote advances the simulation to a new best bid/ask. Fills and
// closes are decided under the lock, callbacks fire after it is released so
// listeners may call back into the client.
func (c *PaperClient) UpdateQuote(bid, ask float64, now time.Time) {
	type fillEvent struct {
		label  string
		price  float64
		volume float64
	}
	type closeEvent struct {
		label string
		pnl   float64
	}
	var fills []fillEvent
	var closes []closeEvent

	c.mu.Lock()
	for label, o := range c.orders {
		if o.Type != Limit {
			continue
		}
		filled := (o.Side == Sell && bid >= o.Price) || (o.Side == Buy && ask <= o.Price)
		if !filled {
			continue
		}
		delete(c.orders, label)
		c.positions[label] = &Position{
			Symbol:     o.Symbol,
			Label:      label,
			Side:       o.Side,
			Volume:     o.Volume,
			EntryPrice: o.Price,
			StopLoss:   o.StopLoss,
			TakeProfit: o.TakeProfit,
			OpenedAt:   now,
		}
		fills = append(fills, fillEvent{label: label, price: o.Price, volume: o.Volume})
	}

	for label, p := range c.positions {
		var exit float64
		switch p.Side {
		case Sell:
			if p.StopLoss > 0 && ask >= p.StopLoss {
				exit = p.StopLoss
			} else if p.TakeProfit > 0 && bid <= p.TakeProfit {
				exit = p.TakeProfit
			}
		case Buy:
			if p.StopLoss > 0 && bid <= p.StopLoss {
				exit = p.StopLoss
			} else if p.TakeProfit > 0 && ask >= p.TakeProfit {
				exit = p.TakeProfit
			}
		}
		if exit == 0 {
			continue
		}
		pnl := c.realize(p, exit)
		c.equity += pnl
		delete(c.positions, label)
		closes = append(closes, closeEvent{label: label, pnl: pnl})
	}
	orderCB := c.onOrderUpdate
	posCB := c.onPositionClosed
	c.mu.Unlock()

	for _, f := range fills {
		logs.Debugf("[Paper] Filled %s @ %.5f", f.label, f.price)
		if orderCB != nil {
			orderCB(f.label, Filled, f.price, f.volume)
		}
	}
	for _, cl := range closes {
		logs.Debugf("[Paper] Closed %s, pnl %.2f", cl.label, cl.pnl)
		if posCB != nil {
			posCB(cl.label, cl.pnl)
		}
	}
}

// realize converts a price move into account-currency PnL.
func (c *PaperClient) realize(p *Position, exit float64) float64 {
	move := exit - p.EntryPrice
	if p.Side == Sell {
		move = -move
	}
	if c.info.TickSize <= 0 {
		return utils.RoundToPrecision(move*p.Volume, 2)
	}
	ticks := move / c.info.TickSize
	return utils.RoundToPrecision(math.Round(ticks)*c.info.TickValue*p.Volume, 2)
}

// OpenPositions returns a snapshot of the open positions, for shutdown
// summaries.
func (c *PaperClient) OpenPositions() []Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, *p)
	}
	return out
}
