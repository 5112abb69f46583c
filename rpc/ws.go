package rpc

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hollowdex/wildchain/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	// Per-client send buffer. A client that cannot keep up with the chain's
	// event rate is disconnected rather than allowed to stall the emitter.
	wsSendBuffer = 256
)

// Feed streams every chain event to connected websocket clients as JSON.
type Feed struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	closed  bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan events.Event
}

// NewFeed creates a Feed and subscribes it to every event on emitter.
func NewFeed(emitter *events.Emitter, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Feed{
		log:     log,
		clients: make(map[*feedClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	emitter.SubscribeAll(f.broadcast)
	return f
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects or falls behind.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &feedClient{conn: conn, send: make(chan events.Event, wsSendBuffer)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	go f.writeLoop(c)
	go f.readLoop(c)
}

// Close disconnects all clients. New connections are refused afterwards.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		close(c.send)
		delete(f.clients, c)
	}
}

func (f *Feed) broadcast(ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- ev:
		default:
			// Slow client: drop it rather than block block processing.
			close(c.send)
			delete(f.clients, c)
		}
	}
}

func (f *Feed) drop(c *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		close(c.send)
		delete(f.clients, c)
	}
	f.mu.Unlock()
	_ = c.conn.Close()
}

// readLoop discards inbound messages; the feed is one-way. It exists to
// process pong frames and to notice disconnects.
func (f *Feed) readLoop(c *feedClient) {
	defer f.drop(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writeLoop(c *feedClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
