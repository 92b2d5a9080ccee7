// Package pubsub implements the light pub/sub transport profile
// (SPEC_FULL.md §4.9/§4.11): an in-process Hub multiplexes topic
// subscriptions across gorilla/websocket client connections. Grounded
// on thelastdreamer-MultiWANBond's pkg/webui/websocket.go
// (WSClient/writePump/readPump) for the connection pump shape.
package pubsub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/aria-robotics/telemetry/envelope"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// client is one connected subscriber, with a buffered send queue
// drained by its own write pump.
type client struct {
	conn   *websocket.Conn
	send   chan envelope.Envelope
	topics map[string]bool
	mu     sync.Mutex
}

func (c *client) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

func (c *client) subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = true
}

// Hub multiplexes topic subscriptions across connected clients and
// implements the server side of the profile.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool

	receiveHub chan envelope.Envelope
	cancel     chan struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		receiveHub: make(chan envelope.Envelope, 256),
		cancel:     make(chan struct{}),
	}
}

// ServeHTTP upgrades r to a websocket connection and registers it as
// a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan envelope.Envelope, 256), topics: make(map[string]bool)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, envelope.Marshal(e)); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.BinaryMessage {
			e, err := envelope.Unmarshal(msg)
			if err != nil {
				continue
			}
			select {
			case h.receiveHub <- e:
			default:
			}
		} else if mt == websocket.TextMessage {
			// subscription control frame: the bare topic name
			c.subscribe(string(msg))
		}
	}
}

// Publish sends e to every currently subscribed client. Ordering
// within one client's connection is preserved (websocket frames are
// ordered per-connection); there is no ordering guarantee across
// clients or topics (§4.9).
func (h *Hub) Publish(e envelope.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(e.Topic) {
			continue
		}
		select {
		case c.send <- e:
		default:
		}
	}
}

// Transport implements transport.Transport for a pub/sub client
// connecting to a Hub's ServeHTTP endpoint.
type Transport struct {
	mu   sync.Mutex
	conn *websocket.Conn

	hub       chan envelope.Envelope
	cancel    chan struct{}
	closeOnce sync.Once
}

// NewTransport returns a client-side pub/sub Transport.
func NewTransport() *Transport {
	return &Transport{hub: make(chan envelope.Envelope, 256), cancel: make(chan struct{})}
}

// Connect dials endpoint (a ws:// or wss:// URL) and starts the read
// pump.
func (t *Transport) Connect(ctx context.Context, endpoint string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	go t.readLoop(conn)
	return nil
}

// Subscribe registers interest in topic with the connected Hub via a
// text control frame.
func (t *Transport) Subscribe(topic string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.New("pubsub: not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(topic))
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		e, err := envelope.Unmarshal(msg)
		if err != nil {
			continue
		}
		select {
		case t.hub <- e:
		case <-t.cancel:
			return
		default:
		}
	}
}

// Send publishes e to the connected Hub.
func (t *Transport) Send(ctx context.Context, e envelope.Envelope) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.New("pubsub: not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.BinaryMessage, envelope.Marshal(e))
}

// Disconnect closes the client connection. Safe to call more than
// once.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.cancel) })
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

// OnReceive registers fn as the consumer of arriving envelopes.
func (t *Transport) OnReceive(fn func(envelope.Envelope)) {
	go func() {
		for {
			select {
			case e := <-t.hub:
				fn(e)
			case <-t.cancel:
				return
			}
		}
	}()
}
