package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ripple-chat/internal/domain"
	rredis "ripple-chat/internal/redis"
	"ripple-chat/internal/socket"
	"ripple-chat/pkg/logger"
)

// Server is the backend half of the socket protocol plus the HTTP API the
// client core depends on: auth, roster and chat lookups over HTTP, rooms and
// message fan-out over the websocket.
type Server struct {
	repo     Repository
	hub      *Hub
	tokens   *TokenIssuer
	presence *rredis.PresenceStore
	bridge   *Bridge
	log      *logger.Logger
}

type Options struct {
	Repository Repository
	Tokens     *TokenIssuer
	Presence   *rredis.PresenceStore
	Bridge     *Bridge
	Logger     *logger.Logger
}

func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	s := &Server{
		repo:     opts.Repository,
		hub:      NewHub(),
		tokens:   opts.Tokens,
		presence: opts.Presence,
		bridge:   opts.Bridge,
		log:      log,
	}
	if s.bridge != nil {
		s.bridge.hub = s.hub
	}
	return s
}

// Start runs the hub loop and, when configured, the cross-node bridge until
// the context ends.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
	if s.bridge != nil {
		go s.bridge.Run(ctx)
	}
}

// Hub exposes the room registry, mainly to tests.
func (s *Server) Hub() *Hub {
	return s.hub
}

// handlePublish turns a client's publish payload into a full message, stores
// it and fans it out to the room. The sender identity comes from the
// authenticated connection, never from the payload.
func (s *Server) handlePublish(c *Client, publish socket.PublishPayload) {
	if publish.ChatID == "" {
		return
	}

	msg := domain.Message{
		ID:         uuid.New().String(),
		ChatID:     publish.ChatID,
		Content:    publish.Content,
		SenderID:   c.userID,
		SenderName: c.userName,
		CreatedAt:  time.Now(),
		Kind:       domain.MessageText,
	}
	if publish.MediaURL != "" {
		msg.Kind = domain.MessageFile
		msg.Attachments = []domain.Attachment{{
			ID:  uuid.New().String(),
			URL: publish.MediaURL,
		}}
	}

	if err := s.repo.SaveMessage(context.Background(), &msg); err != nil {
		s.log.Errorf("save message for chat %s failed: %v", msg.ChatID, err)
	}

	s.fanOut(msg.ChatID, socket.EventChatMessage, msg)
}

// NotifyMembersAdded broadcasts a roster delta to the chat's room.
func (s *Server) NotifyMembersAdded(chatID string, userIDs []string) {
	s.fanOut(chatID, socket.EventMembersAdded, socket.MembersAddedPayload{
		ChatID:     chatID,
		NewMembers: userIDs,
	})
}

// NotifyMembersRemoved broadcasts a roster delta to the chat's room.
func (s *Server) NotifyMembersRemoved(chatID string, userIDs []string) {
	s.fanOut(chatID, socket.EventMembersRemoved, socket.MembersRemovedPayload{
		ChatID:         chatID,
		RemovedMembers: userIDs,
	})
}

func (s *Server) fanOut(chatID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Errorf("marshal %s payload: %v", event, err)
		return
	}
	frame, err := json.Marshal(socket.Envelope{Event: event, Payload: raw})
	if err != nil {
		s.log.Errorf("marshal %s envelope: %v", event, err)
		return
	}

	s.hub.Broadcast(chatID, frame)
	if s.bridge != nil {
		s.bridge.Publish(chatID, frame)
	}
}

func (s *Server) connect(c *Client) {
	s.hub.Register(c)
	if s.presence != nil {
		if err := s.presence.SetOnline(context.Background(), c.userID); err != nil {
			s.log.Warnf("presence online for %s failed: %v", c.userID, err)
		}
	}
}

func (s *Server) disconnect(c *Client) {
	s.hub.Unregister(c)
	if s.presence != nil {
		if err := s.presence.SetOffline(context.Background(), c.userID); err != nil {
			s.log.Warnf("presence offline for %s failed: %v", c.userID, err)
		}
	}
}
