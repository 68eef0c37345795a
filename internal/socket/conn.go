package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	ripple_errors "ripple-chat/pkg/errors"
	"ripple-chat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Handler receives the raw payload of an inbound envelope. Handlers run
// sequentially on the read loop goroutine, so no two of them ever execute
// concurrently.
type Handler func(payload json.RawMessage)

// Subscription identifies one registered handler. Cancelling it removes
// exactly that registration and never touches other listeners on the same
// event name.
type Subscription interface {
	Cancel()
}

// Emitter is the outbound half of a connection.
type Emitter interface {
	Emit(event string, payload any) error
}

// Socket is what consumers of the shared connection see: emit events and
// register handle-scoped listeners.
type Socket interface {
	Emitter
	On(event string, h Handler) Subscription
}

// Conn wraps a websocket connection with an envelope codec, a buffered send
// queue and a per-handle listener registry.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	log  *logger.Logger

	mu       sync.Mutex
	handlers map[string]map[uint64]Handler
	nextID   uint64

	closeOnce sync.Once
	done      chan struct{}
}

var _ Socket = (*Conn)(nil)

// Dial establishes the websocket connection, attaching the bearer token if
// one is given, and starts the read and write loops.
func Dial(ctx context.Context, url, token string, log *logger.Logger) (*Conn, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	c := newConn(ws, log)
	log.Infof("socket connected: %s", url)
	return c, nil
}

// NewConn wraps an already established websocket connection. The server side
// of tests uses it with the connection produced by an upgrader.
func NewConn(ws *websocket.Conn, log *logger.Logger) *Conn {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return newConn(ws, log)
}

func newConn(ws *websocket.Conn, log *logger.Logger) *Conn {
	c := &Conn{
		ws:       ws,
		send:     make(chan []byte, 256),
		log:      log,
		handlers: make(map[string]map[uint64]Handler),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// Emit marshals the payload into an envelope and queues it for delivery.
// Returns ErrConnClosed after Close; a full queue drops the frame, matching
// the fire-and-forget send semantics of the protocol.
func (c *Conn) Emit(event string, payload any) error {
	select {
	case <-c.done:
		return ripple_errors.ErrConnClosed
	default:
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		return err
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ripple_errors.ErrConnClosed
	default:
		c.log.Warnf("socket send queue full, dropping %s", event)
		return nil
	}
}

// On registers a handler for an event name and returns its handle.
func (c *Conn) On(event string, h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = h
	return &listener{conn: c, event: event, id: id}
}

type listener struct {
	conn  *Conn
	event string
	id    uint64
	once  sync.Once
}

func (l *listener) Cancel() {
	l.once.Do(func() {
		l.conn.mu.Lock()
		defer l.conn.mu.Unlock()
		if set, ok := l.conn.handlers[l.event]; ok {
			delete(set, l.id)
			if len(set) == 0 {
				delete(l.conn.handlers, l.event)
			}
		}
	})
}

// Close terminates the transport. Safe to call multiple times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop() {
	defer func() {
		c.Close()
		c.log.Infof("socket disconnected")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Errorf("socket read failed: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.log.Warnf("socket dropped malformed frame: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env Envelope) {
	c.mu.Lock()
	set := c.handlers[env.Event]
	snapshot := make([]Handler, 0, len(set))
	for _, h := range set {
		snapshot = append(snapshot, h)
	}
	c.mu.Unlock()

	for _, h := range snapshot {
		h(env.Payload)
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
