package authority

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/breakwater-labs/clocktower/go/internal/protocol"
)

// HubConfig holds per-connection socket settings.
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool

	Clock clockwork.Clock
}

// DefaultHubConfig returns socket settings suitable for a local table.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  16 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
		Clock:           clockwork.NewRealClock(),
	}
}

// Hub fans session updates out to every connected client. One hub, one
// session: every connection sees the same state.
type Hub struct {
	state *State
	relay *Relay // optional, nil when no broker is configured

	mu      sync.RWMutex
	clients map[*client]bool

	broadcastCh chan []byte
	upgrader    websocket.Upgrader
	config      HubConfig
	log         zerolog.Logger
}

// send is never closed: fan-out and direct replies may race the pumps
// tearing a connection down, so shutdown is signalled through done instead.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	hub  *Hub

	closeOnce sync.Once
}

// close releases the write pump and the socket. Safe to call from any
// goroutine, any number of times.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub creates a hub over the given session state. relay may be nil.
func NewHub(state *State, relay *Relay, config HubConfig, log zerolog.Logger) *Hub {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &Hub{
		state:   state,
		relay:   relay,
		clients: make(map[*client]bool),
		// Buffered so a burst of mutations never blocks a read pump.
		broadcastCh: make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		log:    log.With().Str("component", "hub").Logger(),
	}
}

// Run services the broadcast queue until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("hub shutting down")
			h.closeAll()
			return
		case msg := <-h.broadcastCh:
			h.fanOut(msg)
		}
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request and services the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
		hub:  h,
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	h.log.Info().Str("client_id", c.id).Str("remote", r.RemoteAddr).Msg("client connected")
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.log.Info().Str("client_id", c.id).Msg("client disconnected")
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		delete(h.clients, c)
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.close()
	}
}

// broadcast queues an encoded update for every client and mirrors it to the
// relay when one is configured.
func (h *Hub) broadcast(data []byte) {
	if h.relay != nil {
		h.relay.Publish(data)
	}
	select {
	case h.broadcastCh <- data:
	default:
		h.log.Warn().Msg("broadcast queue full, dropping update")
	}
}

func (h *Hub) fanOut(data []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			// Slow or dead client; drop it rather than stall the table.
			h.log.Warn().Str("client_id", c.id).Msg("send buffer full, closing client")
			h.unregister(c)
		}
	}
}

func (c *client) writePump() {
	ticker := c.hub.config.Clock.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.hub.unregister(c)
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.log.Warn().Err(err).Str("client_id", c.id).Msg("write failed")
				return
			}
		case <-ticker.Chan():
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn().Err(err).Str("client_id", c.id).Msg("read failed")
			}
			return
		}
		c.handleIntent(data)
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

// handleIntent decodes and applies one client intent. Malformed intents and
// rejected mutations are answered with an Error update to the sender only;
// successful mutations broadcast their delta to everyone.
func (c *client) handleIntent(data []byte) {
	in, err := protocol.DecodeIntent(data)
	if err != nil {
		c.hub.log.Warn().Err(err).Str("client_id", c.id).Msg("dropping undecodable intent")
		c.sendError(err.Error())
		return
	}

	if _, ok := in.(protocol.RequestFullSync); ok {
		snap, err := protocol.EncodeUpdate(c.hub.state.Snapshot())
		if err != nil {
			c.hub.log.Error().Err(err).Msg("encode snapshot")
			return
		}
		c.trySend(snap)
		return
	}

	ev, err := c.hub.applyIntent(in)
	if err != nil {
		c.hub.log.Info().Err(err).Str("client_id", c.id).Msg("intent rejected")
		c.sendError(err.Error())
		return
	}

	data, err = protocol.EncodeUpdate(ev)
	if err != nil {
		c.hub.log.Error().Err(err).Msg("encode update")
		return
	}
	c.hub.broadcast(data)
}

func (h *Hub) applyIntent(in protocol.Intent) (protocol.Event, error) {
	switch v := in.(type) {
	case protocol.AddPlayer:
		return h.state.AddPlayer(v.Name)
	case protocol.RenamePlayer:
		return h.state.RenamePlayer(v.PlayerID, v.Name)
	case protocol.RemovePlayer:
		return h.state.RemovePlayer(v.PlayerID)
	case protocol.AddClock:
		return h.state.AddClock(v.PlayerID, v.Task, v.Slices)
	case protocol.IncrementClock:
		return h.state.IncrementClock(v.PlayerID, v.ClockID)
	case protocol.DecrementClock:
		return h.state.DecrementClock(v.PlayerID, v.ClockID)
	case protocol.DeleteClock:
		return h.state.DeleteClock(v.PlayerID, v.ClockID)
	case protocol.AddNote:
		return h.state.AddNote(v.Title, v.Desc, v.Cat)
	case protocol.EditNote:
		return h.state.EditNote(v.NoteID, v.Title, v.Desc, v.Cat)
	case protocol.DeleteNote:
		return h.state.DeleteNote(v.NoteID)
	case protocol.AddLandmark:
		return h.state.AddLandmark(v.Name, v.X, v.Y)
	case protocol.DeleteLandmark:
		return h.state.DeleteLandmark(v.LandmarkID)
	default:
		return nil, protocol.ErrUnknownIntent
	}
}

func (c *client) sendError(text string) {
	data, err := protocol.EncodeUpdate(protocol.ProtocolError{Text: text})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.log.Warn().Str("client_id", c.id).Msg("send buffer full, dropping direct message")
	}
}
