// broker/client.go
package broker

import "context"

// Client is the execution collaborator boundary. Submission and cancellation
// are fire-and-continue from the strategy's point of view; lifecycle comes
// back through the registered callbacks.
type Client interface {
	// PlaceOrder submits a new entry order.
	PlaceOrder(ctx context.Context, order *Order) error

	// CancelOrder cancels a pending order by label. Cancelling an unknown
	// or already-final label is not an error.
	CancelOrder(ctx context.Context, symbol, label string) error

	// GetEquity returns the current account equity.
	GetEquity(ctx context.Context) (float64, error)

	// GetSymbolInfo returns the trading rules for a symbol.
	GetSymbolInfo(symbol string) (SymbolInfo, bool)

	// SetOrderUpdateCallback registers the order lifecycle listener.
	SetOrderUpdateCallback(cb OrderUpdateCallback)

	// SetPositionClosedCallback registers the position close listener.
	SetPositionClosedCallback(cb PositionClosedCallback)
}
