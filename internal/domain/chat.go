package domain

import "time"

type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

// Chat is a conversation container. Messages is append-only and chronological
// in insertion order. MemberDetails is a denormalized subset of the roster
// kept for display; it may be stale relative to Members.
type Chat struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Kind          ChatKind  `json:"type"`
	Members       []string  `json:"members"`
	MemberDetails []User    `json:"memberDetails,omitempty"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LastMessage is derived from the tail of Messages rather than stored, so it
// can never drift from the message list.
func (c *Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// HasMember reports whether the user id is part of the member set.
func (c *Chat) HasMember(userID string) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}
