package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breakwater-labs/clocktower/go/internal/model"
	"github.com/breakwater-labs/clocktower/go/internal/protocol"
	"github.com/breakwater-labs/clocktower/go/internal/store"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// fakeAuthority accepts connections and hands them to serve one at a time.
func fakeAuthority(t *testing.T, serve func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url)
	cfg.ReconnectMin = 10 * time.Millisecond
	cfg.ReconnectMax = 50 * time.Millisecond
	return cfg
}

func emptySnapshot() []byte {
	data, err := protocol.EncodeUpdate(protocol.FullSnapshot{
		Players: map[string]model.Player{
			"p1": {Name: "world", Clocks: map[string]model.Clock{}},
		},
	})
	if err != nil {
		panic(err)
	}
	return data
}

func TestRun_RequestsFullSyncBeforeQueuedIntents(t *testing.T) {
	received := make(chan string, 16)

	url := fakeAuthority(t, func(conn *websocket.Conn) {
		for n := 0; ; n++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
			if n == 1 {
				conn.WriteMessage(websocket.TextMessage, emptySnapshot())
			}
		}
	})

	st := store.New(zerolog.Nop())
	ch := New(testConfig(url), st, zerolog.Nop())

	// Queued before the connection exists; must go out after FullSync.
	require.NoError(t, ch.Submit(protocol.AddPlayer{Name: "Alice"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.Equal(t, `"FullSync"`, <-received)
	assert.JSONEq(t, `{"AddPlayer":"Alice"}`, <-received)

	require.Eventually(t, st.Synced, time.Second, 5*time.Millisecond)
	assert.True(t, ch.Connected())
}

func TestSubmit_PreservesOrder(t *testing.T) {
	received := make(chan string, 16)

	url := fakeAuthority(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
		}
	})

	st := store.New(zerolog.Nop())
	ch := New(testConfig(url), st, zerolog.Nop())

	require.NoError(t, ch.Submit(protocol.AddClock{PlayerID: "p2", Task: "Heat", Slices: 6}))
	require.NoError(t, ch.Submit(protocol.IncrementClock{PlayerID: "p2", ClockID: "c1"}))
	require.NoError(t, ch.Submit(protocol.IncrementClock{PlayerID: "p2", ClockID: "c1"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	assert.Equal(t, `"FullSync"`, <-received)
	assert.JSONEq(t, `{"AddClock":["p2","Heat",6]}`, <-received)
	assert.JSONEq(t, `{"IncrementClock":["p2","c1"]}`, <-received)
	assert.JSONEq(t, `{"IncrementClock":["p2","c1"]}`, <-received)
}

func TestSubmit_EncodeErrorIsSynchronous(t *testing.T) {
	st := store.New(zerolog.Nop())
	ch := New(testConfig("ws://127.0.0.1:1/ws"), st, zerolog.Nop())

	var encErr *protocol.EncodeError
	err := ch.Submit(protocol.AddClock{PlayerID: "p1", Task: "x", Slices: 99})
	require.ErrorAs(t, err, &encErr)

	select {
	case msg := <-ch.outbound:
		t.Fatalf("invalid intent was queued: %s", msg)
	default:
	}
}

func TestRun_ResyncsAfterReconnect(t *testing.T) {
	syncRequests := make(chan string, 4)

	url := fakeAuthority(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		syncRequests <- string(data)
		// Hang up immediately; the client must come back and resync.
	})

	st := store.New(zerolog.Nop())
	ch := New(testConfig(url), st, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	assert.Equal(t, `"FullSync"`, <-syncRequests)
	assert.Equal(t, `"FullSync"`, <-syncRequests, "every reconnect starts with a sync request")

	require.Eventually(t, ch.Stale, time.Second, 5*time.Millisecond,
		"a dropped connection marks the view stale")
}

func TestDispatch_ToleratesGarbageAndUnknownTypes(t *testing.T) {
	url := fakeAuthority(t, func(conn *websocket.Conn) {
		conn.ReadMessage() // the sync request
		conn.WriteMessage(websocket.TextMessage, []byte(`this is not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"FutureThing","x":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Log","text":"hello"}`))
		conn.WriteMessage(websocket.TextMessage, emptySnapshot())
		// Keep the connection open until the test ends.
		conn.ReadMessage()
	})

	st := store.New(zerolog.Nop())
	ch := New(testConfig(url), st, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.Eventually(t, st.Synced, time.Second, 5*time.Millisecond)
	assert.Len(t, st.Players(), 1)
}

func TestRun_ReturnsOnContextCancel(t *testing.T) {
	url := fakeAuthority(t, func(conn *websocket.Conn) {
		// Hold the connection open; send nothing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	st := store.New(zerolog.Nop())
	ch := New(testConfig(url), st, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- ch.Run(ctx) }()

	require.Eventually(t, ch.Connected, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation with an open connection")
	}
	assert.False(t, ch.Connected())
}

func TestIsHandshakeError(t *testing.T) {
	assert.True(t, IsHandshakeError(websocket.ErrBadHandshake))
	assert.False(t, IsHandshakeError(errors.New("connection reset")))
}

func TestManualRequestFullSync(t *testing.T) {
	received := make(chan string, 16)

	url := fakeAuthority(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
			conn.WriteMessage(websocket.TextMessage, emptySnapshot())
		}
	})

	st := store.New(zerolog.Nop())
	ch := New(testConfig(url), st, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	require.Equal(t, `"FullSync"`, <-received)
	require.NoError(t, ch.RequestFullSync())
	require.Equal(t, `"FullSync"`, <-received)
}
