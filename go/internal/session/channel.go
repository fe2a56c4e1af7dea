// Package session owns the client side of the authority connection: dialing,
// reconnecting, pushing intents out in submission order and feeding decoded
// updates into the store.
//
// Recovery protocol: the only consistency-repair mechanism is the full
// snapshot. On every successful (re)connect the channel sends FullSync
// before anything queued, so a dropped connection, a missed delta or any
// detected inconsistency all heal the same way: wait for the next
// snapshot.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/breakwater-labs/clocktower/go/internal/protocol"
	"github.com/breakwater-labs/clocktower/go/internal/store"
)

// ErrQueueFull is returned by Submit when the outbound queue is saturated.
// The intent was not accepted; nothing was sent.
var ErrQueueFull = errors.New("outbound intent queue full")

// Config holds connection settings for a session channel.
type Config struct {
	URL string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	QueueSize        int

	// Clock drives backoff waits; tests inject a fake.
	Clock clockwork.Clock
}

// DefaultConfig returns connection settings suitable for a local authority.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReconnectMin:     500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		QueueSize:        256,
		Clock:            clockwork.NewRealClock(),
	}
}

// Channel is a persistent bidirectional connection to the authority.
type Channel struct {
	cfg   Config
	store *store.Store
	log   zerolog.Logger

	outbound chan []byte

	mu        sync.RWMutex
	connected bool
	stale     bool
}

// New creates a channel bound to a store. Run must be called to connect.
func New(cfg Config, st *store.Store, log zerolog.Logger) *Channel {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Channel{
		cfg:      cfg,
		store:    st,
		log:      log.With().Str("component", "session").Logger(),
		outbound: make(chan []byte, cfg.QueueSize),
	}
}

// Submit encodes an intent and queues it for transmission. Encode failures
// surface synchronously and nothing is queued. Intents go out in submission
// order; there is no batching or coalescing.
func (c *Channel) Submit(in protocol.Intent) error {
	data, err := protocol.EncodeIntent(in)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- data:
		return nil
	default:
		c.log.Warn().Msg("outbound queue full, rejecting intent")
		return ErrQueueFull
	}
}

// RequestFullSync queues a manual resync request. Idempotent with the
// automatic request issued on every connect.
func (c *Channel) RequestFullSync() error {
	return c.Submit(protocol.RequestFullSync{})
}

// Connected reports whether the socket is currently open.
func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Stale reports whether the connection dropped after having synced at least
// once, meaning the store may lag the authority until the next snapshot.
func (c *Channel) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}

// Run connects and services the channel until ctx is cancelled. Reconnection
// is level-triggered with exponential backoff between attempts.
func (c *Channel) Run(ctx context.Context) error {
	delay := c.cfg.ReconnectMin

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if IsHandshakeError(err) {
				c.log.Warn().Err(err).Dur("retry_in", delay).Msg("authority refused the handshake")
			} else {
				c.log.Warn().Err(err).Dur("retry_in", delay).Msg("connect failed")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.cfg.Clock.After(delay):
			}
			delay *= 2
			if delay > c.cfg.ReconnectMax {
				delay = c.cfg.ReconnectMax
			}
			continue
		}

		delay = c.cfg.ReconnectMin
		c.serveConn(ctx, conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}

// serveConn runs one connection to completion. The receive path stays on
// this goroutine (single consumer into the store); a writer goroutine
// drains the outbound queue.
func (c *Channel) serveConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	// Resync before anything queued. Written directly so no queued intent
	// can overtake it.
	syncMsg, err := protocol.EncodeIntent(protocol.RequestFullSync{})
	if err != nil {
		c.log.Error().Err(err).Msg("encode full sync request")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, syncMsg); err != nil {
		c.log.Warn().Err(err).Msg("failed to request full sync")
		return
	}

	c.setConnected(true)
	c.log.Info().Str("url", c.cfg.URL).Msg("connected, full sync requested")
	defer func() {
		c.setConnected(false)
		c.log.Warn().Msg("disconnected")
	}()

	writerDone := make(chan struct{})
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer close(writerDone)
		for {
			select {
			case <-connCtx.Done():
				// Unblocks the read loop so Run can observe cancellation.
				conn.Close()
				return
			case msg := <-c.outbound:
				conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					c.log.Warn().Err(err).Msg("write failed, dropping connection")
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			cancel()
			<-writerDone
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one wire message and applies it. Decode failures and
// unknown types are logged and dropped; they never take the channel down.
func (c *Channel) dispatch(data []byte) {
	ev, err := protocol.DecodeUpdate(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping undecodable update")
		return
	}
	if u, ok := ev.(protocol.Unknown); ok {
		c.log.Info().Str("type", u.Type).Msg("ignoring unknown update type")
		return
	}
	if _, ok := ev.(protocol.FullSnapshot); ok {
		c.clearStale()
	}
	c.store.Apply(ev)
}

func (c *Channel) setConnected(up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected && !up {
		c.stale = true
	}
	c.connected = up
}

func (c *Channel) clearStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = false
}

// IsHandshakeError reports whether err came from the HTTP upgrade rather
// than an established socket. Useful for telling misconfiguration apart
// from plain flakiness in callers' logs.
func IsHandshakeError(err error) bool {
	return errors.Is(err, websocket.ErrBadHandshake) ||
		errors.Is(err, http.ErrServerClosed)
}
