package gateway

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/colloquy/internal/logging"
)

// Client is one authenticated WebSocket connection. ConnID doubles as the
// client id the discussion service keys session state by.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Auth        AuthResult
	ConnectedAt time.Time

	ws *websocket.Conn

	// writeMu serializes frames onto ws; gorilla allows one writer at a time.
	writeMu sync.Mutex
	closed  bool
}

func newClient(ws *websocket.Conn, info ClientInfo, auth AuthResult) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Auth:        auth,
		ConnectedAt: time.Now(),
		ws:          ws,
	}
}

// Send writes frame to the connection. It is safe for concurrent use and
// fails with ErrClientClosed after Close.
func (c *Client) Send(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.ws.WriteJSON(frame)
}

// Respond answers request reqID with payload.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	return c.Send(f)
}

// RespondError answers request reqID with an error.
func (c *Client) RespondError(reqID, code, message string) error {
	return c.Send(NewErrorResponse(reqID, code, message))
}

func (c *Client) sendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}
	return c.Send(f)
}

// ReadFrame blocks for the next frame from the client.
func (c *Client) ReadFrame() (Frame, error) {
	var f Frame
	err := c.ws.ReadJSON(&f)
	return f, err
}

// Close closes the connection once; later calls are no-ops.
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.ws.Close()
}

// ClientRegistry tracks connected clients and delivers events to them. It
// is the transport the discussion service emits through.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	seq     atomic.Int64
	log     *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client), log: log}
}

// Add registers c under its ConnID.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ConnID] = c
	n := len(r.clients)
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Int("connected", n).Msg("client connected")
}

// Remove forgets connID. Unknown ids are ignored.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	_, ok := r.clients[connID]
	delete(r.clients, connID)
	r.mu.Unlock()
	if ok {
		r.log.Info().Str("connId", connID).Msg("client disconnected")
	}
}

// Get looks up a client by connection id.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns how many clients are connected.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// NextSeq numbers the next event. Numbers are shared by all clients.
func (r *ClientRegistry) NextSeq() int64 {
	return r.seq.Add(1)
}

// EmitTo sends event to the client connected as connID. An unknown id
// fails with ErrClientClosed, the same as a connection that has gone away.
func (r *ClientRegistry) EmitTo(connID, event string, payload any) error {
	c, ok := r.Get(connID)
	if !ok {
		return fmt.Errorf("emit %s to %s: %w", event, connID, ErrClientClosed)
	}
	if err := c.sendEvent(event, payload, r.NextSeq()); err != nil {
		return fmt.Errorf("emit %s to %s: %w", event, connID, err)
	}
	return nil
}

// Broadcast sends event to every connected client under a single sequence
// number. Failed deliveries are logged.
func (r *ClientRegistry) Broadcast(event string, payload any) {
	seq := r.NextSeq()
	for _, c := range r.snapshot() {
		if err := c.sendEvent(event, payload, seq); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", event).Msg("broadcast failed")
		}
	}
}

func (r *ClientRegistry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Collect(maps.Values(r.clients))
}

// CloseAll disconnects and forgets every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
