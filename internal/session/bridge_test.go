package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple-chat/internal/domain"
	"ripple-chat/internal/socket"
	"ripple-chat/pkg/logger"
)

// fakeSocket implements socket.Socket in-process so bridge behavior can be
// exercised without a transport.
type fakeSocket struct {
	emitted  []fakeEmit
	handlers map[string]map[int]socket.Handler
	nextID   int
}

type fakeEmit struct {
	event   string
	payload any
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{handlers: make(map[string]map[int]socket.Handler)}
}

func (f *fakeSocket) Emit(event string, payload any) error {
	f.emitted = append(f.emitted, fakeEmit{event: event, payload: payload})
	return nil
}

func (f *fakeSocket) On(event string, h socket.Handler) socket.Subscription {
	f.nextID++
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]socket.Handler)
	}
	f.handlers[event][f.nextID] = h
	return &fakeSub{sock: f, event: event, id: f.nextID}
}

// fire delivers an inbound event to every registered handler.
func (f *fakeSocket) fire(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	for _, h := range f.handlers[event] {
		h(raw)
	}
}

func (f *fakeSocket) listenerCount(event string) int {
	return len(f.handlers[event])
}

type fakeSub struct {
	sock  *fakeSocket
	event string
	id    int
}

func (s *fakeSub) Cancel() {
	delete(s.sock.handlers[s.event], s.id)
}

func TestSubscribe_EmitsJoin(t *testing.T) {
	sock := newFakeSocket()

	cancel := Subscribe(sock, "c1", "me", nil, nil, nil, logger.NewNop())
	defer cancel()

	require.Len(t, sock.emitted, 1)
	assert.Equal(t, socket.EventChatJoin, sock.emitted[0].event)
	assert.Equal(t, socket.JoinPayload{ChatID: "c1", UserID: "me"}, sock.emitted[0].payload)
	assert.Equal(t, 1, sock.listenerCount(socket.EventChatMessage))
	assert.Equal(t, 1, sock.listenerCount(socket.EventMembersAdded))
	assert.Equal(t, 1, sock.listenerCount(socket.EventMembersRemoved))
}

func TestSubscribe_EmptyChatIDIsNoop(t *testing.T) {
	sock := newFakeSocket()

	cancel := Subscribe(sock, "", "me", func(domain.Message) {
		t.Fatal("callback must not be registered")
	}, nil, nil, logger.NewNop())

	assert.Empty(t, sock.emitted)
	assert.Equal(t, 0, sock.listenerCount(socket.EventChatMessage))
	cancel()
	cancel()
}

func TestSubscribe_FiltersByChatID(t *testing.T) {
	sock := newFakeSocket()

	var got []domain.Message
	cancel := Subscribe(sock, "c1", "me", func(msg domain.Message) {
		got = append(got, msg)
	}, nil, nil, logger.NewNop())
	defer cancel()

	sock.fire(t, socket.EventChatMessage, domain.Message{ID: "m1", ChatID: "c2", SenderID: "u1"})
	assert.Empty(t, got)

	sock.fire(t, socket.EventChatMessage, domain.Message{ID: "m2", ChatID: "c1", SenderID: "u1", Content: "hi"})
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].ID)
	assert.Equal(t, "hi", got[0].Content)
}

func TestSubscribe_MemberDeltas(t *testing.T) {
	sock := newFakeSocket()

	var added, removed [][]string
	cancel := Subscribe(sock, "g1", "me", nil,
		func(ids []string) { added = append(added, ids) },
		func(ids []string) { removed = append(removed, ids) },
		logger.NewNop())
	defer cancel()

	sock.fire(t, socket.EventMembersAdded, socket.MembersAddedPayload{ChatID: "other", NewMembers: []string{"x"}})
	sock.fire(t, socket.EventMembersAdded, socket.MembersAddedPayload{ChatID: "g1", NewMembers: []string{"u1", "u2"}})
	sock.fire(t, socket.EventMembersRemoved, socket.MembersRemovedPayload{ChatID: "g1", RemovedMembers: []string{"u1"}})

	require.Len(t, added, 1)
	assert.Equal(t, []string{"u1", "u2"}, added[0])
	require.Len(t, removed, 1)
	assert.Equal(t, []string{"u1"}, removed[0])
}

func TestUnsubscribe_StopsDeliveryAndIsIdempotent(t *testing.T) {
	sock := newFakeSocket()

	calls := 0
	cancel := Subscribe(sock, "c1", "me", func(domain.Message) { calls++ }, nil, nil, logger.NewNop())

	sock.fire(t, socket.EventChatMessage, domain.Message{ID: "m1", ChatID: "c1", SenderID: "u1"})
	require.Equal(t, 1, calls)

	cancel()
	cancel()

	sock.fire(t, socket.EventChatMessage, domain.Message{ID: "m2", ChatID: "c1", SenderID: "u1"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, sock.listenerCount(socket.EventChatMessage))
}

func TestResubscribe_SingleDelivery(t *testing.T) {
	sock := newFakeSocket()

	calls := 0
	cancel := Subscribe(sock, "c1", "me", func(domain.Message) { calls++ }, nil, nil, logger.NewNop())

	// Chat switch: unwind before registering again, exactly one live
	// listener set afterwards.
	cancel()
	cancel2 := Subscribe(sock, "c2", "me", func(domain.Message) { calls++ }, nil, nil, logger.NewNop())
	defer cancel2()

	require.Equal(t, 1, sock.listenerCount(socket.EventChatMessage))
	sock.fire(t, socket.EventChatMessage, domain.Message{ID: "m1", ChatID: "c2", SenderID: "u1"})
	assert.Equal(t, 1, calls)
}

func TestUnsubscribe_DoesNotClobberOtherConsumers(t *testing.T) {
	sock := newFakeSocket()

	other := 0
	otherSub := sock.On(socket.EventChatMessage, func(json.RawMessage) { other++ })
	defer otherSub.Cancel()

	cancel := Subscribe(sock, "c1", "me", func(domain.Message) {}, nil, nil, logger.NewNop())
	cancel()

	// The unrelated listener registered on the same event name survives.
	sock.fire(t, socket.EventChatMessage, domain.Message{ID: "m1", ChatID: "c9", SenderID: "u1", CreatedAt: time.Now()})
	assert.Equal(t, 1, other)
}
