// broker/types.go
package broker

import "time"

// OrderSide defines the order direction (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType defines the order type.
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Stop   OrderType = "STOP"
	Market OrderType = "MARKET"
)

// OrderStatus defines the order status.
type OrderStatus string

const (
	New      OrderStatus = "NEW"
	Filled   OrderStatus = "FILLED"
	Canceled OrderStatus = "CANCELED"
	Rejected OrderStatus = "REJECTED"
)

// Order is the request/response shape for a pending entry order. Stop loss
// and take profit ride along so the venue can attach them to the resulting
// position on fill.
type Order struct {
	Symbol      string      `json:"symbol"`
	Label       string      `json:"label"`
	Side        OrderSide   `json:"side"`
	Type        OrderType   `json:"type"`
	Price       float64     `json:"price"`
	StopLoss    float64     `json:"stopLoss"`
	TakeProfit  float64     `json:"takeProfit"`
	Volume      float64     `json:"volume"`
	Status      OrderStatus `json:"status"`
	SubmittedAt time.Time   `json:"submittedAt"`
}

// Position is an open trade resulting from a filled order.
type Position struct {
	Symbol     string    `json:"symbol"`
	Label      string    `json:"label"`
	Side       OrderSide `json:"side"`
	Volume     float64   `json:"volume"`
	EntryPrice float64   `json:"entryPrice"`
	StopLoss   float64   `json:"stopLoss"`
	TakeProfit float64   `json:"takeProfit"`
	OpenedAt   time.Time `json:"openedAt"`
}

// SymbolInfo holds the trading rules for one instrument.
type SymbolInfo struct {
	Symbol     string  `json:"symbol"`
	TickSize   float64 `json:"tickSize"`
	TickValue  float64 `json:"tickValue"`
	MinVolume  float64 `json:"minVolume"`
	MaxVolume  float64 `json:"maxVolume"`
	VolumeStep float64 `json:"volumeStep"`
	Digits     int     `json:"digits"`
}

// OrderUpdateCallback reports entry-order lifecycle transitions.
type OrderUpdateCallback func(label string, status OrderStatus, fillPrice, volume float64)

// PositionClosedCallback reports a closed position and its realized PnL in
// account currency.
type PositionClosedCallback func(label string, realizedPnL float64)
