package socket

import "encoding/json"

// Event names exchanged over the persistent connection.
const (
	EventChatJoin       = "chat:join"
	EventChatMessage    = "chat:message"
	EventMembersAdded   = "group:membersAdded"
	EventMembersRemoved = "group:membersRemoved"
)

// Envelope is the wire frame: every websocket text message is one envelope
// naming the event and carrying its payload verbatim.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// JoinPayload subscribes the connection to a chat's room.
type JoinPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// PublishPayload is the client-to-server shape of chat:message. The server
// answers room members with a full Message object instead.
type PublishPayload struct {
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

type MembersAddedPayload struct {
	ChatID     string   `json:"chatId"`
	NewMembers []string `json:"newMembers"`
}

type MembersRemovedPayload struct {
	ChatID         string   `json:"chatId"`
	RemovedMembers []string `json:"removedMembers"`
}
