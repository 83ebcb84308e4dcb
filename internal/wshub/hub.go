package wshub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"telestrations/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// SendBuffer is the default per-client outbound queue length.
	SendBuffer = 64
)

var (
	ErrClientGone = errors.New("client gone")
	ErrBufferFull = errors.New("client send buffer full")
)

// Client represents a single WebSocket connection in the hub.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		Conn: conn,
		Send: make(chan []byte, SendBuffer),
	}
}

// Enqueue queues data without blocking.
func (c *Client) Enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientGone
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close closes the Send channel once; later Enqueue calls fail with ErrClientGone.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// WritePump reads from the Send channel and writes to the WebSocket connection.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Send:
			if !ok {
				_ = c.Conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.Conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// ReadPump decodes frames and hands them to deliver until the connection
// fails. Frames that are not valid client events are logged and skipped.
func (c *Client) ReadPump(ctx context.Context, deliver func(events.ClientMessage)) error {
	log := logrus.WithFields(logrus.Fields{"component": "wshub", "conn_id": c.ID})
	for {
		typ, data, err := c.Conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			log.Warn("Ignoring binary frame")
			continue
		}
		msg, err := events.Decode(data)
		if err != nil {
			log.WithError(err).Warn("Ignoring malformed frame")
			continue
		}
		deliver(msg)
	}
}

// Hub is the table of live connections keyed by connection id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logrus.Entry
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     logrus.WithField("component", "wshub"),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister removes a client and closes its Send channel.
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if ok {
		c.Close()
	}
	return ok
}

func (h *Hub) Get(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues msg for one client. It never blocks: a full queue yields
// ErrBufferFull and an unknown or closed client yields ErrClientGone.
func (h *Hub) Send(id string, msg events.ServerMessage) error {
	data, err := events.Encode(msg)
	if err != nil {
		return err
	}
	return h.SendBytes(id, data)
}

// SendBytes queues an already encoded frame. A caller retrying after
// ErrBufferFull passes the same slice again.
func (h *Hub) SendBytes(id string, data []byte) error {
	c := h.Get(id)
	if c == nil {
		return ErrClientGone
	}
	return c.Enqueue(data)
}

// Broadcast sends msg to every listed client except exceptID and returns how
// many accepted it. Clients with full queues miss the message.
func (h *Hub) Broadcast(ids []string, exceptID string, msg events.ServerMessage) int {
	data, err := events.Encode(msg)
	if err != nil {
		h.log.WithError(err).Errorf("Marshal error for %s", msg.Event)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		if err := c.Enqueue(data); err != nil {
			h.log.WithFields(logrus.Fields{"conn_id": id, "event": msg.Event}).WithError(err).Debug("Dropped broadcast")
			continue
		}
		delivered++
	}
	return delivered
}

// CloseAll unregisters every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
