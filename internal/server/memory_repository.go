package server

import (
	"context"
	"strings"
	"sync"
	"time"

	"ripple-chat/internal/domain"
	ripple_errors "ripple-chat/pkg/errors"
)

// MemoryRepository is the default backing store: everything lives in maps.
// Used when no DATABASE_URL is configured, and by tests.
type MemoryRepository struct {
	mu       sync.Mutex
	users    map[string]*Account
	byEmail  map[string]string
	chats    map[string]*ChatRecord
	messages map[string][]domain.Message
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[string]*Account),
		byEmail:  make(map[string]string),
		chats:    make(map[string]*ChatRecord),
		messages: make(map[string][]domain.Message),
	}
}

func (r *MemoryRepository) CreateUser(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, exists := r.byEmail[email]; exists {
		return ripple_errors.ErrAlreadyExists
	}
	cp := *account
	r.users[account.ID] = &cp
	r.byEmail[email] = account.ID
	return nil
}

func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ripple_errors.ErrNotFound
	}
	return *r.users[id], nil
}

func (r *MemoryRepository) GetUserByID(_ context.Context, id string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.users[id]
	if !ok {
		return Account{}, ripple_errors.ErrNotFound
	}
	return *account, nil
}

func (r *MemoryRepository) ListUsers(_ context.Context) ([]Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Account, 0, len(r.users))
	for _, account := range r.users {
		out = append(out, *account)
	}
	return out, nil
}

func (r *MemoryRepository) EnsureDirectChat(_ context.Context, userA, userB string) (ChatRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := directChatID(userA, userB)
	if chat, ok := r.chats[id]; ok {
		return *chat, false, nil
	}

	chat := &ChatRecord{
		ID:        id,
		Kind:      domain.ChatDirect,
		MemberIDs: []string{userA, userB},
		CreatedAt: time.Now(),
	}
	r.chats[id] = chat
	return *chat, true, nil
}

func (r *MemoryRepository) CreateGroupChat(_ context.Context, chat *ChatRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.chats[chat.ID]; exists {
		return ripple_errors.ErrAlreadyExists
	}
	cp := *chat
	cp.MemberIDs = append([]string(nil), chat.MemberIDs...)
	r.chats[chat.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetChat(_ context.Context, chatID string) (ChatRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return ChatRecord{}, ripple_errors.ErrChatNotFound
	}
	return *chat, nil
}

func (r *MemoryRepository) AddChatMembers(_ context.Context, chatID string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return ripple_errors.ErrChatNotFound
	}
	for _, id := range userIDs {
		exists := false
		for _, member := range chat.MemberIDs {
			if member == id {
				exists = true
				break
			}
		}
		if !exists {
			chat.MemberIDs = append(chat.MemberIDs, id)
		}
	}
	return nil
}

func (r *MemoryRepository) RemoveChatMembers(_ context.Context, chatID string, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return ripple_errors.ErrChatNotFound
	}

	removed := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		removed[id] = true
	}
	members := chat.MemberIDs[:0]
	for _, id := range chat.MemberIDs {
		if !removed[id] {
			members = append(members, id)
		}
	}
	chat.MemberIDs = members
	return nil
}

func (r *MemoryRepository) SaveMessage(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Rooms come into being on first join, so history is kept even for chat
	// ids the HTTP API never saw.
	r.messages[msg.ChatID] = append(r.messages[msg.ChatID], *msg)
	return nil
}
