package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ripple-chat/internal/domain"
	ripple_errors "ripple-chat/pkg/errors"
)

// PostgresRepository persists accounts, chats and message history with pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			member_ids TEXT[] NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			media_url TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, account *Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.Name, strings.ToLower(account.Email), account.PasswordHash, account.AvatarURL, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ripple_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (Account, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, avatar_url, created_at FROM users WHERE email = $1`,
		strings.ToLower(email)))
}

func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (Account, error) {
	return r.scanUser(r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, avatar_url, created_at FROM users WHERE id = $1`, id))
}

func (r *PostgresRepository) scanUser(row pgx.Row) (Account, error) {
	var account Account
	err := row.Scan(&account.ID, &account.Name, &account.Email, &account.PasswordHash, &account.AvatarURL, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ripple_errors.ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, email, password_hash, avatar_url, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		account, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) EnsureDirectChat(ctx context.Context, userA, userB string) (ChatRecord, bool, error) {
	id := directChatID(userA, userB)

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, kind, member_ids, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		id, string(domain.ChatDirect), []string{userA, userB}, time.Now())
	if err != nil {
		return ChatRecord{}, false, err
	}

	chat, err := r.GetChat(ctx, id)
	if err != nil {
		return ChatRecord{}, false, err
	}
	return chat, tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) CreateGroupChat(ctx context.Context, chat *ChatRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, name, kind, member_ids, created_at) VALUES ($1, $2, $3, $4, $5)`,
		chat.ID, chat.Name, string(chat.Kind), chat.MemberIDs, chat.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ripple_errors.ErrAlreadyExists
		}
	}
	return err
}

func (r *PostgresRepository) GetChat(ctx context.Context, chatID string) (ChatRecord, error) {
	var chat ChatRecord
	var kind string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, kind, member_ids, created_at FROM chats WHERE id = $1`, chatID).
		Scan(&chat.ID, &chat.Name, &kind, &chat.MemberIDs, &chat.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ChatRecord{}, ripple_errors.ErrChatNotFound
	}
	if err != nil {
		return ChatRecord{}, err
	}
	chat.Kind = domain.ChatKind(kind)
	return chat, nil
}

func (r *PostgresRepository) AddChatMembers(ctx context.Context, chatID string, userIDs []string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chats
		 SET member_ids = (SELECT array_agg(DISTINCT m) FROM unnest(member_ids || $2::text[]) AS m)
		 WHERE id = $1`,
		chatID, userIDs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ripple_errors.ErrChatNotFound
	}
	return nil
}

func (r *PostgresRepository) RemoveChatMembers(ctx context.Context, chatID string, userIDs []string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chats
		 SET member_ids = (SELECT coalesce(array_agg(m), '{}') FROM unnest(member_ids) AS m WHERE NOT (m = ANY($2::text[])))
		 WHERE id = $1`,
		chatID, userIDs)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ripple_errors.ErrChatNotFound
	}
	return nil
}

func (r *PostgresRepository) SaveMessage(ctx context.Context, msg *domain.Message) error {
	var mediaURL string
	if len(msg.Attachments) > 0 {
		mediaURL = msg.Attachments[len(msg.Attachments)-1].URL
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, sender_id, sender_name, content, media_url, kind, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ChatID, msg.SenderID, msg.SenderName, msg.Content, mediaURL, string(msg.Kind), msg.CreatedAt)
	return err
}
