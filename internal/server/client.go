package server

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ripple-chat/internal/socket"
	"ripple-chat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Client is one websocket connection on the server side.
type Client struct {
	id       string
	userID   string
	userName string

	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]bool

	srv *Server
	log *logger.Logger
}

func newClient(srv *Server, conn *websocket.Conn, userID, userName string) *Client {
	return &Client{
		id:       uuid.New().String(),
		userID:   userID,
		userName: userName,
		conn:     conn,
		send:     make(chan []byte, 256),
		rooms:    make(map[string]bool),
		srv:      srv,
		log:      srv.log,
	}
}

// queue hands a frame to the write loop without blocking; a slow consumer
// loses frames rather than stalling the room.
func (c *Client) queue(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.srv.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Errorf("client %s read failed: %v", c.userID, err)
			}
			return
		}

		var env socket.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.log.Warnf("client %s sent malformed frame: %v", c.userID, err)
			continue
		}
		c.handleEnvelope(env)
	}
}

func (c *Client) handleEnvelope(env socket.Envelope) {
	switch env.Event {
	case socket.EventChatJoin:
		var join socket.JoinPayload
		if err := json.Unmarshal(env.Payload, &join); err != nil || join.ChatID == "" {
			return
		}
		c.srv.hub.Join(c, join.ChatID)
	case socket.EventChatMessage:
		var publish socket.PublishPayload
		if err := json.Unmarshal(env.Payload, &publish); err != nil {
			return
		}
		c.srv.handlePublish(c, publish)
	default:
		c.log.Warnf("client %s sent unknown event %q", c.userID, env.Event)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
