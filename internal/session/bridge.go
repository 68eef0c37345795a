package session

import (
	"encoding/json"
	"sync"

	"ripple-chat/internal/domain"
	"ripple-chat/internal/socket"
	"ripple-chat/pkg/logger"
)

type MessageFunc func(domain.Message)
type MembersFunc func(userIDs []string)

// Subscribe joins the chat's room on the shared connection and routes its
// inbound events to the given callbacks. Events carrying a different chat id
// never reach a callback. The returned cancel removes exactly the listeners
// registered here, is safe to call repeatedly, and guarantees no callback
// runs after it returns.
//
// A nil socket or empty chat id is a no-op: nothing is joined, nothing is
// registered.
func Subscribe(sock socket.Socket, chatID, selfUserID string, onMessage MessageFunc, onMembersAdded, onMembersRemoved MembersFunc, log *logger.Logger) (cancel func()) {
	if sock == nil || chatID == "" {
		return func() {}
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	b := &bridge{chatID: chatID, log: log}

	if err := sock.Emit(socket.EventChatJoin, socket.JoinPayload{ChatID: chatID, UserID: selfUserID}); err != nil {
		log.Errorf("emit %s failed: %v", socket.EventChatJoin, err)
	}

	subs := []socket.Subscription{
		sock.On(socket.EventChatMessage, b.guard(func(payload json.RawMessage) {
			var msg domain.Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				b.log.Warnf("malformed %s payload: %v", socket.EventChatMessage, err)
				return
			}
			if msg.ChatID == b.chatID && onMessage != nil {
				onMessage(msg)
			}
		})),
		sock.On(socket.EventMembersAdded, b.guard(func(payload json.RawMessage) {
			var delta socket.MembersAddedPayload
			if err := json.Unmarshal(payload, &delta); err != nil {
				b.log.Warnf("malformed %s payload: %v", socket.EventMembersAdded, err)
				return
			}
			if delta.ChatID == b.chatID && onMembersAdded != nil {
				onMembersAdded(delta.NewMembers)
			}
		})),
		sock.On(socket.EventMembersRemoved, b.guard(func(payload json.RawMessage) {
			var delta socket.MembersRemovedPayload
			if err := json.Unmarshal(payload, &delta); err != nil {
				b.log.Warnf("malformed %s payload: %v", socket.EventMembersRemoved, err)
				return
			}
			if delta.ChatID == b.chatID && onMembersRemoved != nil {
				onMembersRemoved(delta.RemovedMembers)
			}
		})),
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.closed = true
			b.mu.Unlock()
			for _, sub := range subs {
				sub.Cancel()
			}
		})
	}
}

type bridge struct {
	chatID string
	log    *logger.Logger

	mu     sync.Mutex
	closed bool
}

// guard serializes callback delivery against cancellation: once cancel has
// flipped closed under the mutex, no wrapped handler can fire again even if
// the underlying registration is still draining.
func (b *bridge) guard(h socket.Handler) socket.Handler {
	return func(payload json.RawMessage) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		h(payload)
	}
}
