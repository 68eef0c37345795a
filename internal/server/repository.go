package server

import (
	"context"
	"sort"
	"time"

	"ripple-chat/internal/domain"
)

// Account is a registered user as the backend stores it.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
}

// ChatRecord is a conversation as the backend stores it.
type ChatRecord struct {
	ID        string
	Name      string
	Kind      domain.ChatKind
	MemberIDs []string
	CreatedAt time.Time
}

type UserRepository interface {
	CreateUser(ctx context.Context, account *Account) error
	GetUserByEmail(ctx context.Context, email string) (Account, error)
	GetUserByID(ctx context.Context, id string) (Account, error)
	ListUsers(ctx context.Context) ([]Account, error)
}

type ChatRepository interface {
	// EnsureDirectChat returns the direct chat for the pair, creating it on
	// first lookup. The id is deterministic for the unordered pair, so two
	// racing lookups resolve to the same chat.
	EnsureDirectChat(ctx context.Context, userA, userB string) (ChatRecord, bool, error)
	CreateGroupChat(ctx context.Context, chat *ChatRecord) error
	GetChat(ctx context.Context, chatID string) (ChatRecord, error)
	AddChatMembers(ctx context.Context, chatID string, userIDs []string) error
	RemoveChatMembers(ctx context.Context, chatID string, userIDs []string) error
	SaveMessage(ctx context.Context, msg *domain.Message) error
}

type Repository interface {
	UserRepository
	ChatRepository
}

// directChatID derives the deterministic id for an unordered user pair.
func directChatID(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return "dm-" + pair[0] + "-" + pair[1]
}
