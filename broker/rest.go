// broker/rest.go
package broker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
)

// Ensure RESTClient implements the Client interface.
var _ Client = (*RESTClient)(nil)

// RESTClient talks to the venue's HTTP API with HMAC-SHA256 signed requests.
// Order lifecycle updates are obtained by polling open orders and positions;
// the poll loop runs on demand via Poll, driven by the monitor.
type RESTClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *http.Client

	symbolInfoCache map[string]SymbolInfo
	cacheMu         sync.RWMutex

	onOrderUpdate    OrderUpdateCallback
	onPositionClosed PositionClosedCallback

	// last known order/position labels for poll diffing
	knownOrders    map[string]OrderStatus
	knownPositions map[string]bool
	mu             sync.Mutex
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// NewRESTClient creates a new API client instance.
func NewRESTClient(apiKey, apiSecret, baseURL string, timeoutSeconds int) *RESTClient {
	return &RESTClient{
		apiKey:          apiKey,
		apiSecret:       apiSecret,
		baseURL:         baseURL,
		http:            &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		symbolInfoCache: make(map[string]SymbolInfo),
		knownOrders:     make(map[string]OrderStatus),
		knownPositions:  make(map[string]bool),
	}
}

func (c *RESTClient) SetOrderUpdateCallback(cb OrderUpdateCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOrderUpdate = cb
}

func (c *RESTClient) SetPositionClosedCallback(cb PositionClosedCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPositionClosed = cb
}

// sign produces the hex HMAC-SHA256 of the query string.
func (c *RESTClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// sendRequest handles signing, sending, and error decoding for one call.
func (c *RESTClient) sendRequest(ctx context.Context, method, endpoint string, params url.Values, target interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query := params.Encode()
	query += "&signature=" + c.sign(query)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return fmt.Errorf("API error (code: %d): %s", apiErr.Code, apiErr.Msg)
		}
		return fmt.Errorf("API error: HTTP %d, body: %s", resp.StatusCode, string(body))
	}

	if target != nil {
		if err := json.Unmarshal(body, target); err != nil {
			return fmt.Errorf("parse response JSON: %w, body: %s", err, string(body))
		}
	}
	return nil
}

func (c *RESTClient) PlaceOrder(ctx context.Context, order *Order) error {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("label", order.Label)
	params.Set("side", string(order.Side))
	params.Set("type", string(order.Type))
	params.Set("price", strconv.FormatFloat(order.Price, 'f', -1, 64))
	params.Set("stopLoss", strconv.FormatFloat(order.StopLoss, 'f', -1, 64))
	params.Set("takeProfit", strconv.FormatFloat(order.TakeProfit, 'f', -1, 64))
	params.Set("volume", strconv.FormatFloat(order.Volume, 'f', -1, 64))

	var placed Order
	if err := c.sendRequest(ctx, http.MethodPost, "/api/v1/orders", params, &placed); err != nil {
		return err
	}

	c.mu.Lock()
	c.knownOrders[order.Label] = New
	c.mu.Unlock()
	logs.Infof("[API Client] Order %s accepted by venue.", order.Label)
	return nil
}

func (c *RESTClient) CancelOrder(ctx context.Context, symbol, label string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("label", label)
	return c.sendRequest(ctx, http.MethodDelete, "/api/v1/orders", params, nil)
}

type accountResponse struct {
	Equity float64 `json:"equity"`
}

func (c *RESTClient) GetEquity(ctx context.Context) (float64, error) {
	var acc accountResponse
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v1/account", nil, &acc); err != nil {
		return 0, err
	}
	return acc.Equity, nil
}

// FetchSymbolInfo retrieves and caches the instrument's trading rules.
func (c *RESTClient) FetchSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var info SymbolInfo
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v1/symbols", params, &info); err != nil {
		return SymbolInfo{}, err
	}
	c.cacheMu.Lock()
	c.symbolInfoCache[symbol] = info
	c.cacheMu.Unlock()
	return info, nil
}

func (c *RESTClient) GetSymbolInfo(symbol string) (SymbolInfo, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	info, ok := c.symbolInfoCache[symbol]
	return info, ok
}

type ordersResponse struct {
	Orders []Order `json:"orders"`
}

type positionsResponse struct {
	Positions []struct {
		Label       string  `json:"label"`
		RealizedPnL float64 `json:"realizedPnl"`
		Open        bool    `json:"open"`
	} `json:"positions"`
}

// Poll diffs venue-side order and position state against the last snapshot
// and fires the callbacks for anything that changed. The monitor loop calls
// this on its heartbeat; it keeps the lifecycle callback contract identical
// to the paper client's.
func (c *RESTClient) Poll(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	var open ordersResponse
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v1/orders/open", params, &open); err != nil {
		return err
	}

	current := make(map[string]Order, len(open.Orders))
	for _, o := range open.Orders {
		current[o.Label] = o
	}

	c.mu.Lock()
	orderCB := c.onOrderUpdate
	var fired []func()
	for label := range c.knownOrders {
		if _, still := current[label]; still {
			continue
		}
		// Disappeared from the open set: resolve its final status.
		label := label
		delete(c.knownOrders, label)
		fired = append(fired, func() {
			st, price, vol := c.fetchFinalStatus(ctx, symbol, label)
			if orderCB != nil {
				orderCB(label, st, price, vol)
			}
		})
	}
	for label := range current {
		if _, known := c.knownOrders[label]; !known {
			c.knownOrders[label] = New
		}
	}
	c.mu.Unlock()

	for _, f := range fired {
		f()
	}
	return c.pollPositions(ctx, symbol)
}

func (c *RESTClient) fetchFinalStatus(ctx context.Context, symbol, label string) (OrderStatus, float64, float64) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("label", label)
	var o Order
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v1/orders/detail", params, &o); err != nil {
		logs.Warnf("[API Client] Could not resolve final status of %s: %v", label, err)
		return Canceled, 0, 0
	}
	return o.Status, o.Price, o.Volume
}

func (c *RESTClient) pollPositions(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	var res positionsResponse
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v1/positions", params, &res); err != nil {
		return err
	}

	c.mu.Lock()
	posCB := c.onPositionClosed
	type closed struct {
		label string
		pnl   float64
	}
	var done []closed
	seen := make(map[string]bool)
	for _, p := range res.Positions {
		seen[p.Label] = true
		if p.Open {
			c.knownPositions[p.Label] = true
		} else if c.knownPositions[p.Label] {
			delete(c.knownPositions, p.Label)
			done = append(done, closed{label: p.Label, pnl: p.RealizedPnL})
		}
	}
	for label := range c.knownPositions {
		if !seen[label] {
			delete(c.knownPositions, label)
		}
	}
	c.mu.Unlock()

	for _, d := range done {
		if posCB != nil {
			posCB(d.label, d.pnl)
		}
	}
	return nil
}
