// journal/journal.go
package journal

import "time"

// SignalRecord captures an emitted trade signal.
type SignalRecord struct {
	Label   string
	Symbol  string
	Side    string
	Entry   float64
	Stop    float64
	Target  float64
	Volume  float64
	RR      float64
	Session int
	At      time.Time
}

// OrderEvent captures a lifecycle transition of an emitted signal.
type OrderEvent struct {
	Label     string
	Status    string
	FillPrice float64
	Volume    float64
	At        time.Time
}

// CloseRecord captures a closed position and its realized result.
type CloseRecord struct {
	Label     string
	PnL       float64
	EquityPct float64
	At        time.Time
}

// Recorder persists signal history for backtest/live parity analysis.
type Recorder interface {
	RecordSignal(rec *SignalRecord) error
	RecordOrderEvent(evt *OrderEvent) error
	RecordClose(rec *CloseRecord) error
	Close() error
}

// Noop discards everything; used when no journal path is configured.
type Noop struct{}

func (Noop) RecordSignal(*SignalRecord) error   { return nil }
func (Noop) RecordOrderEvent(*OrderEvent) error { return nil }
func (Noop) RecordClose(*CloseRecord) error     { return nil }
func (Noop) Close() error                       { return nil }
