package session

import (
	"context"

	"ripple-chat/internal/dispatch"
	"ripple-chat/internal/domain"
	"ripple-chat/internal/socket"
	"ripple-chat/internal/store"
	ripple_errors "ripple-chat/pkg/errors"
	"ripple-chat/pkg/logger"
)

// Session is the root of one authenticated chat session: it owns the
// connection manager, the state store and the active-chat subscription. At
// most one chat is subscribed at a time; opening another chat first unwinds
// the previous subscription so events are never delivered twice.
type Session struct {
	self    domain.User
	manager *socket.Manager
	store   *store.Store
	log     *logger.Logger

	dispatcher  *dispatch.Dispatcher
	unsubscribe func()
}

func New(self domain.User, manager *socket.Manager, st *store.Store, log *logger.Logger) *Session {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Session{self: self, manager: manager, store: st, log: log}
}

// Store exposes the session's chat state.
func (s *Session) Store() *store.Store {
	return s.store
}

// Self returns the authenticated user.
func (s *Session) Self() domain.User {
	return s.self
}

// Open activates the chat and subscribes to its room, replacing any previous
// subscription. The connection is established lazily on first open.
func (s *Session) Open(ctx context.Context, chatID string) error {
	conn, err := s.manager.Get(ctx)
	if err != nil {
		return err
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}

	s.store.ActivateChat(chatID)
	s.dispatcher = dispatch.New(conn, s.store, s.self, s.log)

	s.unsubscribe = Subscribe(conn, chatID, s.self.ID,
		func(msg domain.Message) {
			s.store.ApplyIncoming(s.self.ID, msg)
		},
		func(userIDs []string) {
			s.store.AddMembers(chatID, userIDs)
		},
		func(userIDs []string) {
			s.store.RemoveMembers(chatID, userIDs)
		},
		s.log,
	)
	return nil
}

// Send publishes a message to the active chat.
func (s *Session) Send(content string, attachments []domain.Attachment) error {
	if s.dispatcher == nil {
		return ripple_errors.ErrNoConnection
	}
	return s.dispatcher.Send(s.store.ActiveChatID(), content, attachments)
}

// Close unwinds the active subscription and tears down the connection. The
// store survives so the caller can still read state after logout.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.dispatcher = nil
	s.manager.Close()
}
