// Package ws is the client-facing WebSocket edge for market data: one
// Hub fanning out depth/ticker/trade deltas to subscribed Clients,
// grounded on uhyunpark-hyperlicked's pkg/api/websocket.go Hub/Client
// pattern, generalized from a single fixed "orderbook:<symbol>"
// channel to the spec's three feeds (depth, ticker, trades) per
// market, each independently subscribable (spec §4.5/§6.4).
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/aggregator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains every live connection and implements
// aggregator.Publisher, so the aggregator can push a delta without
// knowing anything about the transport underneath it.
type Hub struct {
	agg *aggregator.Aggregator
	log *zap.Logger

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub builds a hub with no aggregator bound yet — BindAggregator
// must be called before any client connects, since resolving a fresh
// subscribe snapshot requires it. Split this way because the
// aggregator's own constructor takes the Hub as its Publisher, and the
// two can't otherwise be built in either order.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

func (h *Hub) BindAggregator(agg *aggregator.Aggregator) {
	h.agg = agg
}

// Run owns the clients map; every mutation goes through register/
// unregister so adding/removing a client never races a broadcast loop
// walking the map directly.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) broadcast(channel string, payload interface{}) {
	frame, err := json.Marshal(ServerFrame{Type: "event", Channel: channel, Payload: payload})
	if err != nil {
		h.log.Error("marshal ws frame failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(channel) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			// Slow client; dropped rather than blocking the whole hub.
			// ShedSlowest below is the deliberate, spec-mandated version
			// of this for sustained backpressure.
		}
	}
}

func (h *Hub) PublishDepth(marketID string, snap aggregator.DepthSnapshot) {
	h.broadcast(channelName(feedDepth, marketID), snap)
}

func (h *Hub) PublishTicker(marketID string, snap aggregator.TickerSnapshot) {
	h.broadcast(channelName(feedTicker, marketID), snap)
}

func (h *Hub) PublishTrade(marketID string, t aggregator.Trade) {
	h.broadcast(channelName(feedTrades, marketID), t)
}

// ShedSlowest disconnects up to n clients, per spec §4.5's
// backpressure policy: when the event-stream backlog passes the
// configured high-water mark, the aggregator sheds slow subscribers
// rather than let the whole hub fall behind. It looks at no more than
// 4n clients, taken in map iteration order, and sheds the n of those
// with the fullest outbound buffers, so the slowest clients of the
// whole hub are not always among them. A shed client is sent a
// "lagging" info frame only if its outbound buffer has room for it;
// otherwise it is unregistered without that frame.
func (h *Hub) ShedSlowest(n int) {
	if n <= 0 {
		return
	}
	notice, _ := json.Marshal(ServerFrame{Type: "info", Message: "lagging"})

	h.mu.RLock()
	victims := make([]*Client, 0, n)
	for c := range h.clients {
		victims = append(victims, c)
		if len(victims) >= n*4 {
			break
		}
	}
	h.mu.RUnlock()

	sortByBacklogDesc(victims)
	if len(victims) > n {
		victims = victims[:n]
	}

	for _, c := range victims {
		select {
		case c.send <- notice:
		default:
		}
		h.unregister <- c
	}
}

func sortByBacklogDesc(clients []*Client) {
	for i := 1; i < len(clients); i++ {
		for j := i; j > 0 && len(clients[j].send) > len(clients[j-1].send); j-- {
			clients[j], clients[j-1] = clients[j-1], clients[j]
		}
	}
}

// Client is one subscriber connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subMu sync.RWMutex
	subs  map[string]bool
}

func (c *Client) isSubscribed(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subs[channel]
}

func (c *Client) subscribe(feed, marketID string) {
	channel := channelName(feed, marketID)
	c.subMu.Lock()
	c.subs[channel] = true
	c.subMu.Unlock()
	c.sendInitialSnapshot(feed, marketID, channel)
}

func (c *Client) unsubscribe(feed, marketID string) {
	c.subMu.Lock()
	delete(c.subs, channelName(feed, marketID))
	c.subMu.Unlock()
}

// sendInitialSnapshot is the "fresh snapshot on (re)subscribe, never a
// backfill" half of the protocol (spec §4.5): a client that resumes
// after a disconnect gets current state, not replayed history.
func (c *Client) sendInitialSnapshot(feed, marketID, channel string) {
	var payload interface{}
	switch feed {
	case feedDepth:
		snap, ok := c.hub.agg.Depth(marketID)
		if !ok {
			return
		}
		payload = snap
	case feedTicker:
		snap, ok := c.hub.agg.Ticker(marketID)
		if !ok {
			return
		}
		payload = snap
	case feedTrades:
		trades, ok := c.hub.agg.RecentTrades(marketID)
		if !ok {
			return
		}
		payload = trades
	default:
		return
	}

	frame, err := json.Marshal(ServerFrame{Type: "event", Channel: channel, Payload: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			continue
		}

		switch frame.Action {
		case "subscribe":
			for _, feed := range frame.Feeds {
				c.subscribe(feed, frame.MarketID)
			}
		case "unsubscribe":
			for _, feed := range frame.Feeds {
				c.unsubscribe(feed, frame.MarketID)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleUpgrade upgrades an HTTP request to a WebSocket connection and
// starts the client's pumps.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		subs: make(map[string]bool),
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}
