package domain

import "time"

type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageFile  MessageKind = "file"
	MessageAudio MessageKind = "audio"
	MessageVideo MessageKind = "video"
)

// Message is immutable after creation. Locally originated messages get a
// client-generated id; the server-confirmed copy may carry a different id and
// the two are never reconciled.
type Message struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chatId"`
	Content     string       `json:"content"`
	SenderID    string       `json:"senderId"`
	SenderName  string       `json:"senderName"`
	CreatedAt   time.Time    `json:"createdAt"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Kind        MessageKind  `json:"type"`
}
