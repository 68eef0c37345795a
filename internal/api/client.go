package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ripple-chat/internal/domain"
	ripple_errors "ripple-chat/pkg/errors"
)

// Client talks to the chat backend's HTTP API: authentication, the user
// roster and chat lookups. Responses use the backend envelope
// {success, data, error, code}; a failed call never mutates any local state.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken attaches the bearer token carried on every subsequent request.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) Token() string {
	return c.token
}

type AuthResult struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// rosterUser is the roster wire shape; ids arrive as "_id" and are
// normalized to "id" before anything else sees them.
type rosterUser struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"profilePicUrl"`
	IsOnline  bool   `json:"isOnline"`
}

type rosterResponse struct {
	Users []rosterUser `json:"users"`
}

// DirectChat is the direct-chat lookup result used to seed the store's
// CreateOrReuseDirectChat.
type DirectChat struct {
	ID        string    `json:"_id"`
	CreatedAt time.Time `json:"createdAt"`
	Status    string    `json:"status"`
}

type GroupChat struct {
	ID        string    `json:"_id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResult, error) {
	var out AuthResult
	err := c.post(ctx, "/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return AuthResult{}, err
	}
	c.token = out.Token
	return out, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	err := c.post(ctx, "/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return AuthResult{}, err
	}
	c.token = out.Token
	return out, nil
}

// ListUsers fetches the full roster.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var raw rosterResponse
	if err := c.get(ctx, "/users", &raw); err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(raw.Users))
	for _, u := range raw.Users {
		users = append(users, domain.User{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			AvatarURL: u.AvatarURL,
			IsOnline:  u.IsOnline,
		})
	}
	return users, nil
}

// DirectChatLookup resolves the chat id for a pair of users. The backend
// returns the same id for the same unordered pair, so the client-side
// duplicate scan is only a best-effort second line.
func (c *Client) DirectChatLookup(ctx context.Context, currentUserID, otherUserID string) (DirectChat, error) {
	var out DirectChat
	err := c.post(ctx, "/chat/direct", map[string]string{
		"userId":      currentUserID,
		"otherUserId": otherUserID,
	}, &out)
	return out, err
}

// CreateGroupChat registers a group chat with the backend.
func (c *Client) CreateGroupChat(ctx context.Context, name string, memberIDs []string) (GroupChat, error) {
	var out GroupChat
	err := c.post(ctx, "/chat/group", map[string]any{
		"name":      name,
		"memberIds": memberIDs,
	}, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if !env.Success {
		if resp.StatusCode == http.StatusUnauthorized {
			return ripple_errors.ErrUnauthorized
		}
		if env.Error == "" {
			return fmt.Errorf("request failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("%s: %s", env.Code, env.Error)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
