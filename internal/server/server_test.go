package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple-chat/internal/api"
	"ripple-chat/internal/domain"
	"ripple-chat/internal/session"
	"ripple-chat/internal/socket"
	"ripple-chat/internal/store"
	"ripple-chat/pkg/logger"
)

type testBackend struct {
	srv  *Server
	http *httptest.Server
}

func startBackend(t *testing.T) *testBackend {
	t.Helper()

	srv := New(Options{
		Repository: NewMemoryRepository(),
		Tokens:     NewTokenIssuer("test-secret", time.Hour),
		Logger:     logger.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Start(ctx)

	hs := httptest.NewServer(srv.Router())
	t.Cleanup(hs.Close)

	return &testBackend{srv: srv, http: hs}
}

func (b *testBackend) apiURL() string {
	return b.http.URL + "/api"
}

func (b *testBackend) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(b.http.URL, "http") + "/ws?token=" + token
}

func registerUser(t *testing.T, b *testBackend, name, email string) (*api.Client, api.AuthResult) {
	t.Helper()
	client := api.NewClient(b.apiURL())
	auth, err := client.Register(context.Background(), name, email, "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, auth.Token)
	require.NotEmpty(t, auth.User.ID)
	return client, auth
}

func openSession(t *testing.T, b *testBackend, auth api.AuthResult) (*session.Session, *store.Store) {
	t.Helper()
	manager := socket.NewManager(b.wsURL(auth.Token), auth.Token, logger.NewNop())
	st := store.New()
	sess := session.New(auth.User, manager, st, logger.NewNop())
	t.Cleanup(sess.Close)
	return sess, st
}

func TestAuth_RegisterAndSignIn(t *testing.T) {
	b := startBackend(t)
	client, auth := registerUser(t, b, "Ann", "ann@x.com")

	// Duplicate registration is rejected.
	_, err := client.Register(context.Background(), "Ann", "ann@x.com", "secret123")
	assert.Error(t, err)

	// Fresh client signs in with the same credentials.
	again := api.NewClient(b.apiURL())
	signedIn, err := again.SignIn(context.Background(), "ann@x.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, auth.User.ID, signedIn.User.ID)

	_, err = again.SignIn(context.Background(), "ann@x.com", "wrong")
	assert.Error(t, err)
}

func TestRoster_NormalizesIDs(t *testing.T) {
	b := startBackend(t)
	client, auth := registerUser(t, b, "Ann", "ann@x.com")
	_, other := registerUser(t, b, "Bob", "bob@x.com")

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	ids := map[string]bool{}
	for _, u := range users {
		// The wire carries "_id"; the client must expose plain ids.
		require.NotEmpty(t, u.ID)
		ids[u.ID] = true
	}
	assert.True(t, ids[auth.User.ID])
	assert.True(t, ids[other.User.ID])
}

func TestRoster_RequiresAuth(t *testing.T) {
	b := startBackend(t)
	client := api.NewClient(b.apiURL())
	_, err := client.ListUsers(context.Background())
	assert.Error(t, err)
}

func TestDirectChatLookup_DeterministicForPair(t *testing.T) {
	b := startBackend(t)
	annClient, ann := registerUser(t, b, "Ann", "ann@x.com")
	bobClient, bob := registerUser(t, b, "Bob", "bob@x.com")

	first, err := annClient.DirectChatLookup(context.Background(), ann.User.ID, bob.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "created", first.Status)

	// The same pair seen from the other side resolves to the same chat.
	second, err := bobClient.DirectChatLookup(context.Background(), bob.User.ID, ann.User.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "existing", second.Status)
}

func TestSocket_RejectsBadToken(t *testing.T) {
	b := startBackend(t)
	_, err := socket.Dial(context.Background(), b.wsURL("not-a-token"), "", logger.NewNop())
	assert.Error(t, err)
}

func TestMessageDelivery_EndToEnd(t *testing.T) {
	b := startBackend(t)
	annClient, ann := registerUser(t, b, "Ann", "ann@x.com")
	_, bob := registerUser(t, b, "Bob", "bob@x.com")

	lookup, err := annClient.DirectChatLookup(context.Background(), ann.User.ID, bob.User.ID)
	require.NoError(t, err)
	chatID := lookup.ID

	annSess, annStore := openSession(t, b, ann)
	bobSess, bobStore := openSession(t, b, bob)

	seedDM := func(st *store.Store, selfID string, other domain.User) {
		st.CreateOrReuseDirectChat(store.DirectChatParams{
			ChatID:        chatID,
			CurrentUserID: selfID,
			UserID:        other.ID,
			UserName:      other.Name,
			UserEmail:     other.Email,
			CreatedAt:     lookup.CreatedAt,
		})
	}
	seedDM(annStore, ann.User.ID, bob.User)
	seedDM(bobStore, bob.User.ID, ann.User)

	require.NoError(t, annSess.Open(context.Background(), chatID))
	require.NoError(t, bobSess.Open(context.Background(), chatID))

	// Both sockets must be in the room before the send fans out.
	require.Eventually(t, func() bool {
		return b.srv.Hub().RoomSize(chatID) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, annSess.Send("hello bob", nil))

	// Bob receives the server-confirmed message.
	require.Eventually(t, func() bool {
		return len(bobStore.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := bobStore.Messages()[0]
	assert.Equal(t, "hello bob", got.Content)
	assert.Equal(t, ann.User.ID, got.SenderID)
	assert.Equal(t, "Ann", got.SenderName)
	assert.Equal(t, chatID, got.ChatID)
	assert.Equal(t, domain.MessageText, got.Kind)

	// Ann keeps exactly the optimistic copy: the server echo of her own
	// message is filtered by sender identity.
	time.Sleep(100 * time.Millisecond)
	annView := annStore.Messages()
	require.Len(t, annView, 1)
	assert.Equal(t, "hello bob", annView[0].Content)
	// Local and server-confirmed ids differ and are never reconciled.
	assert.NotEqual(t, got.ID, annView[0].ID)
}

func TestMessageDelivery_MediaURL(t *testing.T) {
	b := startBackend(t)
	annClient, ann := registerUser(t, b, "Ann", "ann@x.com")
	_, bob := registerUser(t, b, "Bob", "bob@x.com")

	lookup, err := annClient.DirectChatLookup(context.Background(), ann.User.ID, bob.User.ID)
	require.NoError(t, err)

	bobConn, err := socket.Dial(context.Background(), b.wsURL(bob.Token), "", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(bobConn.Close)

	received := make(chan domain.Message, 1)
	session.Subscribe(bobConn, lookup.ID, bob.User.ID, func(msg domain.Message) {
		received <- msg
	}, nil, nil, logger.NewNop())

	annConn, err := socket.Dial(context.Background(), b.wsURL(ann.Token), "", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(annConn.Close)

	require.Eventually(t, func() bool {
		return b.srv.Hub().RoomSize(lookup.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, annConn.Emit(socket.EventChatMessage, socket.PublishPayload{
		ChatID:   lookup.ID,
		SenderID: ann.User.ID,
		Content:  "",
		MediaURL: "https://files/report.pdf",
	}))

	select {
	case msg := <-received:
		assert.Equal(t, domain.MessageFile, msg.Kind)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "https://files/report.pdf", msg.Attachments[0].URL)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestMemberDeltas_ReachSubscribers(t *testing.T) {
	b := startBackend(t)
	annClient, ann := registerUser(t, b, "Ann", "ann@x.com")
	_, bob := registerUser(t, b, "Bob", "bob@x.com")
	_, cid := registerUser(t, b, "Cid", "cid@x.com")

	group, err := annClient.CreateGroupChat(context.Background(), "Team", []string{ann.User.ID, bob.User.ID})
	require.NoError(t, err)

	conn, err := socket.Dial(context.Background(), b.wsURL(ann.Token), "", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	added := make(chan []string, 1)
	removed := make(chan []string, 1)
	session.Subscribe(conn, group.ID, ann.User.ID, nil,
		func(ids []string) { added <- ids },
		func(ids []string) { removed <- ids },
		logger.NewNop())

	require.Eventually(t, func() bool {
		return b.srv.Hub().RoomSize(group.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.srv.repo.AddChatMembers(context.Background(), group.ID, []string{cid.User.ID}))
	b.srv.NotifyMembersAdded(group.ID, []string{cid.User.ID})

	select {
	case ids := <-added:
		assert.Equal(t, []string{cid.User.ID}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for membersAdded")
	}

	b.srv.NotifyMembersRemoved(group.ID, []string{bob.User.ID})
	select {
	case ids := <-removed:
		assert.Equal(t, []string{bob.User.ID}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for membersRemoved")
	}
}
