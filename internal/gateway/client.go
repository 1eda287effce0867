package gateway

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/scoutbot/internal/logging"
)

// writeTimeout bounds a single frame write so a stalled tab cannot hold up
// deliveries to the user's other connections.
const writeTimeout = 10 * time.Second

// Client is one browser tab attached to the web chat. Several tabs that
// present the same client id belong to the same web user.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Socket      *websocket.Conn
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
}

// NewClient wraps a WebSocket that completed the connect handshake.
func NewClient(conn *websocket.Conn, info ClientInfo) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Socket:      conn,
		ConnectedAt: time.Now(),
	}
}

// Native is the native part of the client's user id. Connections that
// present the same client id share one dialogue session.
func (c *Client) Native() string {
	if c.Info.ID != "" {
		return c.Info.ID
	}
	return c.ConnID
}

// Send writes frame to the socket. Safe for concurrent use.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if err := c.Socket.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.Socket.WriteJSON(frame)
}

// SendEvent pushes a server event.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	return c.build(NewEvent(event, payload, seq))
}

// Respond answers request reqID with payload.
func (c *Client) Respond(reqID string, payload any) error {
	return c.build(NewResponse(reqID, payload))
}

// RespondError answers request reqID with a failure.
func (c *Client) RespondError(reqID string, shape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, shape))
}

func (c *Client) build(f Frame, err error) error {
	if err != nil {
		return err
	}
	return c.Send(f)
}

// ReadFrame blocks for the next frame from the tab.
func (c *Client) ReadFrame() (Frame, error) {
	var f Frame
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return f, err
	}
	err = json.Unmarshal(msg, &f)
	return f, err
}

// Close closes the socket once; later calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.Socket == nil {
		return nil
	}
	return c.Socket.Close()
}

// ClientRegistry tracks the open tabs, by connection and by web user.
type ClientRegistry struct {
	mu     sync.RWMutex
	byConn map[string]*Client
	byUser map[string][]*Client // oldest connection first
	log    *logging.Logger
}

// NewClientRegistry returns an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		byConn: make(map[string]*Client),
		byUser: make(map[string][]*Client),
		log:    log,
	}
}

// Add registers c under its connection id and its web user.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byConn[c.ConnID] = c
	tabs := append(r.byUser[c.Native()], c)
	slices.SortStableFunc(tabs, func(a, b *Client) int {
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
	r.byUser[c.Native()] = tabs

	r.log.Info().
		Str("connId", c.ConnID).
		Str("user", c.Native()).
		Int("tabs", len(tabs)).
		Msg("web client connected")
}

// Remove forgets the connection connID. Unknown ids are ignored.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)

	native := c.Native()
	tabs := slices.DeleteFunc(r.byUser[native], func(t *Client) bool { return t == c })
	if len(tabs) == 0 {
		delete(r.byUser, native)
	} else {
		r.byUser[native] = tabs
	}
	r.log.Info().Str("connId", connID).Str("user", native).Msg("web client disconnected")
}

// Get looks a connection up by id.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byConn[connID]
	return c, ok
}

// ForNative returns every connection of one web user, oldest first.
func (r *ClientRegistry) ForNative(native string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byUser[native])
}

// Count is the number of open connections.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Users is the number of distinct web users with at least one connection.
func (r *ClientRegistry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// CloseAll closes and forgets every connection.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byConn {
		c.Close()
	}
	clear(r.byConn)
	clear(r.byUser)
}
