package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ripple-chat/internal/domain"
	ripple_errors "ripple-chat/pkg/errors"
)

// Store is the authoritative in-memory model of chats, messages and the user
// roster for one session. Every mutation is atomic with respect to the state,
// and after each one the session message view mirrors the active chat's
// message list exactly.
//
// Nothing is ever hard-deleted: chats and messages persist for the lifetime
// of the session.
type Store struct {
	mu sync.Mutex

	chats        []*domain.Chat
	users        []domain.User
	activeChatID string
	messages     []domain.Message
}

func New() *Store {
	return &Store{}
}

// SendInput describes a locally originated message. The message kind is
// derived from the attachments, the id and timestamp are assigned here.
type SendInput struct {
	ChatID      string
	SenderID    string
	SenderName  string
	Content     string
	Attachments []domain.Attachment
}

// DirectChatParams seeds CreateOrReuseDirectChat, typically from the
// direct-chat lookup collaborator response plus the selected roster entry.
type DirectChatParams struct {
	ChatID        string
	CurrentUserID string
	UserID        string
	UserName      string
	UserEmail     string
	UserAvatar    string
	IsUserOnline  bool
	CreatedAt     time.Time
}

// ActivateChat makes the chat the active one and recomputes the session
// message view from it. An unknown chat id leaves the view empty.
func (s *Store) ActivateChat(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeChatID = chatID
	if chat := s.findChat(chatID); chat != nil {
		s.messages = chat.Messages
	} else {
		s.messages = nil
	}
}

// ReplaceMessages overwrites the active chat's message list with the given
// sequence and mirrors it into the session view. No-op when no chat is
// active or the active chat is unknown.
func (s *Store) ReplaceMessages(messages []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.findChat(s.activeChatID)
	if chat == nil {
		return
	}
	chat.Messages = messages
	s.messages = chat.Messages
}

// AppendSentMessage records a locally originated send: it assigns a fresh id
// and timestamp, appends to the owning chat and keeps the session view in
// sync when that chat is active. It must not be used for inbound messages
// from other senders; those go through ApplyIncoming.
func (s *Store) AppendSentMessage(in SendInput) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.findChat(in.ChatID)
	if chat == nil {
		return domain.Message{}, ripple_errors.ErrChatNotFound
	}

	kind := domain.MessageText
	if len(in.Attachments) > 0 {
		kind = domain.MessageFile
	}

	msg := domain.Message{
		ID:          uuid.New().String(),
		ChatID:      in.ChatID,
		Content:     in.Content,
		SenderID:    in.SenderID,
		SenderName:  in.SenderName,
		CreatedAt:   time.Now(),
		Attachments: in.Attachments,
		Kind:        kind,
	}

	chat.Messages = append(chat.Messages, msg)
	if s.activeChatID == chat.ID {
		s.messages = chat.Messages
	}
	return msg, nil
}

// ApplyIncoming merges a message delivered over the socket. Messages sent by
// selfUserID are dropped: the local copy was already appended optimistically
// and identity comparison is by sender, never by message id. Returns whether
// the store changed.
func (s *Store) ApplyIncoming(selfUserID string, msg domain.Message) bool {
	if msg.SenderID == selfUserID {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.findChat(msg.ChatID)
	if chat == nil {
		return false
	}
	chat.Messages = append(chat.Messages, msg)
	if s.activeChatID == chat.ID {
		s.messages = chat.Messages
	}
	return true
}

// RefreshUsers replaces the whole roster. Stale presence and profile fields
// are superseded wholesale, never merged.
func (s *Store) RefreshUsers(users []domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make([]domain.User, len(users))
	copy(s.users, users)
}

// CreateOrReuseDirectChat returns the direct chat for the unordered pair of
// user ids, creating and activating a new one only when no chat with both
// members exists yet. The second return value reports whether a chat was
// created.
func (s *Store) CreateOrReuseDirectChat(p DirectChatParams) (domain.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chat := range s.chats {
		if chat.Kind == domain.ChatDirect && chat.HasMember(p.UserID) && chat.HasMember(p.CurrentUserID) {
			s.activeChatID = chat.ID
			s.messages = chat.Messages
			return *chat, false
		}
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	chat := &domain.Chat{
		ID:      p.ChatID,
		Name:    p.UserName,
		Kind:    domain.ChatDirect,
		Members: []string{p.CurrentUserID, p.UserID},
		MemberDetails: []domain.User{{
			ID:        p.UserID,
			Name:      p.UserName,
			Email:     strings.ToLower(p.UserEmail),
			AvatarURL: p.UserAvatar,
			IsOnline:  p.IsUserOnline,
		}},
		Messages:  []domain.Message{},
		CreatedAt: createdAt,
	}

	s.chats = append(s.chats, chat)
	s.activeChatID = chat.ID
	s.messages = chat.Messages
	return *chat, true
}

// CreateGroup appends a new group chat without activating it. Member details
// are resolved from the current roster; ids missing from the roster stay in
// the member set but get no details entry.
func (s *Store) CreateGroup(name string, memberIDs []string) (domain.Chat, error) {
	return s.CreateGroupWithID("group-"+uuid.New().String(), name, memberIDs)
}

// CreateGroupWithID is CreateGroup with a caller-supplied chat id, used when
// the backend already assigned one so both sides share the same room.
func (s *Store) CreateGroupWithID(id, name string, memberIDs []string) (domain.Chat, error) {
	if name == "" {
		return domain.Chat{}, ripple_errors.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	details := make([]domain.User, 0, len(memberIDs))
	for _, u := range s.users {
		for _, id := range memberIDs {
			if u.ID == id {
				details = append(details, u)
				break
			}
		}
	}

	members := make([]string, len(memberIDs))
	copy(members, memberIDs)

	chat := &domain.Chat{
		ID:            id,
		Name:          name,
		Kind:          domain.ChatGroup,
		Members:       members,
		MemberDetails: details,
		Messages:      []domain.Message{},
		CreatedAt:     time.Now(),
	}
	s.chats = append(s.chats, chat)
	return *chat, nil
}

// AddMembers unions the given user ids into a chat's member set, resolving
// details from the roster where possible.
func (s *Store) AddMembers(chatID string, userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.findChat(chatID)
	if chat == nil {
		return
	}
	for _, id := range userIDs {
		if chat.HasMember(id) {
			continue
		}
		chat.Members = append(chat.Members, id)
		for _, u := range s.users {
			if u.ID == id {
				chat.MemberDetails = append(chat.MemberDetails, u)
				break
			}
		}
	}
}

// RemoveMembers drops the given user ids from a chat's member set. The
// roster itself is untouched; users are never deleted client-side.
func (s *Store) RemoveMembers(chatID string, userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.findChat(chatID)
	if chat == nil {
		return
	}

	removed := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		removed[id] = true
	}

	members := chat.Members[:0]
	for _, id := range chat.Members {
		if !removed[id] {
			members = append(members, id)
		}
	}
	chat.Members = members

	details := chat.MemberDetails[:0]
	for _, u := range chat.MemberDetails {
		if !removed[u.ID] {
			details = append(details, u)
		}
	}
	chat.MemberDetails = details
}

// ActiveChatID returns the id of the active chat, empty when none.
func (s *Store) ActiveChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeChatID
}

// Messages returns a copy of the session message view.
func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Chat returns a copy of the chat with the given id.
func (s *Store) Chat(chatID string) (domain.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat := s.findChat(chatID); chat != nil {
		return *chat, true
	}
	return domain.Chat{}, false
}

// Chats returns copies of all chats in insertion order.
func (s *Store) Chats() []domain.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Chat, 0, len(s.chats))
	for _, chat := range s.chats {
		out = append(out, *chat)
	}
	return out
}

// Users returns a copy of the roster.
func (s *Store) Users() []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.User, len(s.users))
	copy(out, s.users)
	return out
}

func (s *Store) findChat(chatID string) *domain.Chat {
	for _, chat := range s.chats {
		if chat.ID == chatID {
			return chat
		}
	}
	return nil
}
