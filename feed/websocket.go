// feed/websocket.go
package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
	"github.com/sergeysmolkin-grodt/SilverBullet/market"
)

// WebsocketFeed streams quotes and closed bars from a market-data gateway.
// The connection is re-established automatically until Stop is called.
type WebsocketFeed struct {
	mu sync.RWMutex

	url       string
	conn      *websocket.Conn
	events    chan Event
	isRunning bool
	stopChan  chan struct{}

	reconnects int
}

// quoteMessage is the gateway's quote frame.
type quoteMessage struct {
	EventType string  `json:"e"`
	Time      int64   `json:"t"` // unix milliseconds
	Bid       float64 `json:"b,string"`
	Ask       float64 `json:"a,string"`
}

// barMessage is the gateway's closed-bar frame.
type barMessage struct {
	EventType string  `json:"e"`
	Timeframe string  `json:"tf"`
	OpenTime  int64   `json:"t"` // unix milliseconds
	Open      float64 `json:"o,string"`
	High      float64 `json:"h,string"`
	Low       float64 `json:"l,string"`
	Close     float64 `json:"c,string"`
}

// NewWebsocketFeed creates a feed for the given stream URL. The URL is
// expected to carry the symbol and timeframe subscriptions as query
// parameters, the way the gateway documents it.
func NewWebsocketFeed(url string) *WebsocketFeed {
	return &WebsocketFeed{
		url:      url,
		events:   make(chan Event, 256),
		stopChan: make(chan struct{}),
	}
}

// Events returns the delivery channel.
func (f *WebsocketFeed) Events() <-chan Event {
	return f.events
}

// Start launches the connect loop.
func (f *WebsocketFeed) Start() error {
	f.mu.Lock()
	if f.isRunning {
		f.mu.Unlock()
		return nil
	}
	f.isRunning = true
	f.mu.Unlock()

	go f.connect()
	return nil
}

// Stop tears down the connection and closes the event channel.
func (f *WebsocketFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isRunning {
		return
	}
	f.isRunning = false
	close(f.stopChan)

	if f.conn != nil {
		f.conn.Close()
	}
	logs.Infof("[FEED] Stopped")
}

func (f *WebsocketFeed) running() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isRunning
}

// connect dials, reads until the connection drops, then retries.
func (f *WebsocketFeed) connect() {
	defer close(f.events)

	for {
		if !f.running() {
			return
		}

		logs.Infof("[FEED] Connecting to %s...", f.url)

		conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
		if err != nil {
			logs.Warnf("[FEED] Connection failed: %v, retrying in 5s", err)
			f.mu.Lock()
			f.reconnects++
			f.mu.Unlock()

			select {
			case <-f.stopChan:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		f.mu.Lock()
		f.conn = conn
		f.reconnects = 0
		f.mu.Unlock()

		logs.Infof("[FEED] Connected successfully")

		f.readLoop(conn)

		if !f.running() {
			return
		}

		logs.Warnf("[FEED] Connection lost, reconnecting in 3s")
		select {
		case <-f.stopChan:
			return
		case <-time.After(3 * time.Second):
		}
	}
}

func (f *WebsocketFeed) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logs.Infof("[FEED] Connection closed normally")
			} else {
				logs.Warnf("[FEED] Read error: %v", err)
			}
			return
		}

		f.handleMessage(message)
	}
}

func (f *WebsocketFeed) handleMessage(message []byte) {
	var baseEvent struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(message, &baseEvent); err != nil {
		logs.Warnf("[FEED] Failed to parse event type: %v", err)
		return
	}

	switch baseEvent.EventType {
	case "quote":
		var q quoteMessage
		if err := json.Unmarshal(message, &q); err != nil {
			logs.Warnf("[FEED] Failed to parse quote: %v", err)
			return
		}
		f.deliver(Event{
			Type: EventTick,
			Tick: market.Tick{
				Time: time.UnixMilli(q.Time).UTC(),
				Bid:  q.Bid,
				Ask:  q.Ask,
			},
		})

	case "bar":
		var b barMessage
		if err := json.Unmarshal(message, &b); err != nil {
			logs.Warnf("[FEED] Failed to parse bar: %v", err)
			return
		}
		f.deliver(Event{
			Type:      EventBar,
			Timeframe: b.Timeframe,
			Bar: market.Bar{
				OpenTime: time.UnixMilli(b.OpenTime).UTC(),
				Open:     b.Open,
				High:     b.High,
				Low:      b.Low,
				Close:    b.Close,
			},
		})

	default:
		logs.Debugf("[FEED] Unknown event type: %s", baseEvent.EventType)
	}
}

// deliver forwards an event unless the feed is stopping.
func (f *WebsocketFeed) deliver(ev Event) {
	select {
	case f.events <- ev:
	case <-f.stopChan:
	}
}
