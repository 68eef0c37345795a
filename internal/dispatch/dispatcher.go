package dispatch

import (
	"strings"

	"ripple-chat/internal/domain"
	"ripple-chat/internal/socket"
	"ripple-chat/internal/store"
	ripple_errors "ripple-chat/pkg/errors"
	"ripple-chat/pkg/logger"
)

// Dispatcher validates and emits locally originated messages. Every accepted
// send is emitted on the connection and echoed into the store optimistically,
// in that order, with no retry and no rollback if the transport drops it.
type Dispatcher struct {
	sock  socket.Emitter
	store *store.Store
	self  domain.User
	log   *logger.Logger
}

func New(sock socket.Emitter, st *store.Store, self domain.User, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Dispatcher{sock: sock, store: st, self: self, log: log}
}

// Send publishes a message to the chat. Rejected without side effects when
// the content is blank and there are no attachments, or when no connection
// is available. The mediaUrl on the wire is the most recently attached item.
func (d *Dispatcher) Send(chatID, content string, attachments []domain.Attachment) error {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return ripple_errors.ErrEmptyMessage
	}
	if d.sock == nil {
		return ripple_errors.ErrNoConnection
	}

	var mediaURL string
	if len(attachments) > 0 {
		mediaURL = attachments[len(attachments)-1].URL
	}

	if err := d.sock.Emit(socket.EventChatMessage, socket.PublishPayload{
		ChatID:   chatID,
		SenderID: d.self.ID,
		Content:  content,
		MediaURL: mediaURL,
	}); err != nil {
		d.log.Errorf("emit %s failed: %v", socket.EventChatMessage, err)
	}

	_, err := d.store.AppendSentMessage(store.SendInput{
		ChatID:      chatID,
		SenderID:    d.self.ID,
		SenderName:  d.self.Name,
		Content:     content,
		Attachments: attachments,
	})
	return err
}
