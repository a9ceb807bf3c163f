package infra

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"exchange_go/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	feedWriteTimeout = 10 * time.Second
	feedMaxMessage   = 512
)

// FeedMessage is the envelope pushed to every feed subscriber.
type FeedMessage struct {
	Type string       `json:"type"` // "trade"
	Data domain.Trade `json:"data"`
}

// TradeFeed fans executed trades out to websocket subscribers.
// Slow subscribers whose buffer fills up are disconnected.
type TradeFeed struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	sendBuffer   int
	metrics      *Metrics

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	closed  bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewTradeFeed creates a feed. pingInterval must be positive.
func NewTradeFeed(pingInterval time.Duration, sendBuffer int, metrics *Metrics) *TradeFeed {
	if metrics == nil {
		metrics = GlobalMetrics
	}
	return &TradeFeed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingInterval: pingInterval,
		sendBuffer:   sendBuffer,
		metrics:      metrics,
		clients:      make(map[*feedClient]struct{}),
	}
}

// ServeHTTP upgrades the request and streams trades until the client leaves.
func (f *TradeFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Feed upgrade failed", slog.Any("error", err))
		return
	}

	c := &feedClient{conn: conn, send: make(chan []byte, f.sendBuffer)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	f.metrics.IncrementConnections()
	slog.Info("Feed client connected", slog.String("remote", r.RemoteAddr))

	go f.writeLoop(c)
	f.readLoop(c)
}

// Broadcast queues trade for every subscriber without blocking.
func (f *TradeFeed) Broadcast(trade domain.Trade) {
	msg, err := json.Marshal(FeedMessage{Type: "trade", Data: trade})
	if err != nil {
		slog.Error("Feed marshal failed", slog.Any("error", err))
		return
	}

	var slow []*feedClient
	f.mu.RLock()
	for c := range f.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	f.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("Feed client too slow, disconnecting")
		f.remove(c)
	}
}

// Clients returns the number of connected subscribers.
func (f *TradeFeed) Clients() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (f *TradeFeed) Close() {
	f.mu.Lock()
	f.closed = true
	clients := make([]*feedClient, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.Unlock()

	for _, c := range clients {
		f.remove(c)
	}
}

// remove unregisters c and closes its send buffer, which ends its write loop.
func (f *TradeFeed) remove(c *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[c]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.clients, c)
	close(c.send)
	f.mu.Unlock()

	f.metrics.DecrementConnections()
}

// readLoop discards client messages and keeps the read deadline fresh on pongs.
func (f *TradeFeed) readLoop(c *feedClient) {
	defer f.remove(c)

	readTimeout := 2 * f.pingInterval
	c.conn.SetReadLimit(feedMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Feed read error", slog.Any("error", err))
			}
			return
		}
	}
}

// writeLoop is the only writer on c.conn.
func (f *TradeFeed) writeLoop(c *feedClient) {
	ticker := time.NewTicker(f.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
