package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ripple_errors "ripple-chat/pkg/errors"
	"ripple-chat/pkg/logger"
)

// echoServer upgrades and reflects every frame back at the sender.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialTest(t *testing.T, srv *httptest.Server) *Conn {
	t.Helper()
	conn, err := Dial(context.Background(), wsURL(srv), "test-token", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestConn_EmitRoundTrip(t *testing.T) {
	srv := echoServer(t)
	conn := dialTest(t, srv)

	received := make(chan PublishPayload, 1)
	conn.On(EventChatMessage, func(payload json.RawMessage) {
		var p PublishPayload
		if err := json.Unmarshal(payload, &p); err == nil {
			received <- p
		}
	})

	sent := PublishPayload{ChatID: "c1", SenderID: "me", Content: "hello", MediaURL: "https://files/a.png"}
	require.NoError(t, conn.Emit(EventChatMessage, sent))

	select {
	case got := <-received:
		assert.Equal(t, sent, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echoed frame")
	}
}

func TestConn_CancelIsHandleScoped(t *testing.T) {
	srv := echoServer(t)
	conn := dialTest(t, srv)

	first := make(chan struct{}, 4)
	second := make(chan struct{}, 4)
	subA := conn.On(EventChatMessage, func(json.RawMessage) { first <- struct{}{} })
	conn.On(EventChatMessage, func(json.RawMessage) { second <- struct{}{} })

	// Cancelling one handle must leave the sibling listener on the same
	// event name untouched.
	subA.Cancel()
	subA.Cancel()

	require.NoError(t, conn.Emit(EventChatMessage, PublishPayload{ChatID: "c1"}))

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("surviving listener was not invoked")
	}
	select {
	case <-first:
		t.Fatal("cancelled listener was invoked")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConn_UnknownEventIsIgnored(t *testing.T) {
	srv := echoServer(t)
	conn := dialTest(t, srv)

	received := make(chan struct{}, 1)
	conn.On(EventChatMessage, func(json.RawMessage) { received <- struct{}{} })

	require.NoError(t, conn.Emit("presence:ping", map[string]string{"userId": "me"}))

	select {
	case <-received:
		t.Fatal("handler fired for an event it never registered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConn_EmitAfterClose(t *testing.T) {
	srv := echoServer(t)
	conn := dialTest(t, srv)

	conn.Close()
	conn.Close()

	assert.True(t, conn.Closed())
	assert.ErrorIs(t, conn.Emit(EventChatMessage, PublishPayload{}), ripple_errors.ErrConnClosed)
}

func TestManager_MemoizesConnection(t *testing.T) {
	srv := echoServer(t)
	m := NewManager(wsURL(srv), "test-token", logger.NewNop())
	defer m.Close()

	ctx := context.Background()
	first, err := m.Get(ctx)
	require.NoError(t, err)
	second, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, first, m.Current())
}

func TestManager_CloseDropsConnection(t *testing.T) {
	srv := echoServer(t)
	m := NewManager(wsURL(srv), "test-token", logger.NewNop())

	ctx := context.Background()
	first, err := m.Get(ctx)
	require.NoError(t, err)

	m.Close()
	assert.True(t, first.Closed())
	assert.Nil(t, m.Current())

	// Next session gets a fresh transport.
	second, err := m.Get(ctx)
	require.NoError(t, err)
	defer m.Close()
	assert.NotSame(t, first, second)
	assert.False(t, second.Closed())
}

func TestManager_NoDialWithoutGet(t *testing.T) {
	m := NewManager("ws://127.0.0.1:1/ws", "test-token", logger.NewNop())
	assert.Nil(t, m.Current())
}

func TestDial_Failure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", "", logger.NewNop())
	assert.Error(t, err)
}
