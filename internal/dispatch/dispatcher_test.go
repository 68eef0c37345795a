package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple-chat/internal/domain"
	"ripple-chat/internal/socket"
	"ripple-chat/internal/store"
	ripple_errors "ripple-chat/pkg/errors"
	"ripple-chat/pkg/logger"
)

type fakeEmitter struct {
	events   []string
	payloads []socket.PublishPayload
	err      error
}

func (f *fakeEmitter) Emit(event string, payload any) error {
	f.events = append(f.events, event)
	if p, ok := payload.(socket.PublishPayload); ok {
		f.payloads = append(f.payloads, p)
	}
	return f.err
}

var self = domain.User{ID: "me", Name: "Me"}

func newStoreWithChat(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	_, created := s.CreateOrReuseDirectChat(store.DirectChatParams{
		ChatID:        "c1",
		CurrentUserID: "me",
		UserID:        "u1",
		UserName:      "Ann",
		UserEmail:     "a@x.com",
	})
	require.True(t, created)
	return s
}

func TestSend_RejectsBlankMessage(t *testing.T) {
	sock := &fakeEmitter{}
	st := newStoreWithChat(t)
	d := New(sock, st, self, logger.NewNop())

	assert.ErrorIs(t, d.Send("c1", "   \t", nil), ripple_errors.ErrEmptyMessage)
	assert.Empty(t, sock.events)
	assert.Empty(t, st.Messages())
}

func TestSend_RejectsWithoutConnection(t *testing.T) {
	st := newStoreWithChat(t)
	d := New(nil, st, self, logger.NewNop())

	assert.ErrorIs(t, d.Send("c1", "hello", nil), ripple_errors.ErrNoConnection)
	assert.Empty(t, st.Messages())
}

func TestSend_EmitsThenEchoes(t *testing.T) {
	sock := &fakeEmitter{}
	st := newStoreWithChat(t)
	d := New(sock, st, self, logger.NewNop())

	require.NoError(t, d.Send("c1", "hello", nil))

	require.Equal(t, []string{socket.EventChatMessage}, sock.events)
	require.Len(t, sock.payloads, 1)
	assert.Equal(t, socket.PublishPayload{ChatID: "c1", SenderID: "me", Content: "hello"}, sock.payloads[0])

	view := st.Messages()
	require.Len(t, view, 1)
	assert.Equal(t, "hello", view[0].Content)
	assert.Equal(t, "me", view[0].SenderID)
	assert.Equal(t, "Me", view[0].SenderName)
	assert.Equal(t, domain.MessageText, view[0].Kind)
	assert.NotEmpty(t, view[0].ID)
}

func TestSend_AttachmentsCarryLastMediaURL(t *testing.T) {
	sock := &fakeEmitter{}
	st := newStoreWithChat(t)
	d := New(sock, st, self, logger.NewNop())

	attachments := []domain.Attachment{
		{ID: "a1", Name: "one.png", URL: "https://files/one.png"},
		{ID: "a2", Name: "two.pdf", URL: "https://files/two.pdf"},
	}
	require.NoError(t, d.Send("c1", "", attachments))

	require.Len(t, sock.payloads, 1)
	assert.Equal(t, "https://files/two.pdf", sock.payloads[0].MediaURL)

	view := st.Messages()
	require.Len(t, view, 1)
	assert.Equal(t, domain.MessageFile, view[0].Kind)
	assert.Len(t, view[0].Attachments, 2)
}

func TestSend_EmitFailureStillEchoes(t *testing.T) {
	sock := &fakeEmitter{err: ripple_errors.ErrConnClosed}
	st := newStoreWithChat(t)
	d := New(sock, st, self, logger.NewNop())

	// Fire and forget: the optimistic echo happens whether or not the
	// transport accepted the frame.
	require.NoError(t, d.Send("c1", "hello", nil))
	assert.Len(t, st.Messages(), 1)
}
