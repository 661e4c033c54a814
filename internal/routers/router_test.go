package routers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenn00/musori/internal/dtos"
	"github.com/xenn00/musori/internal/dtos/auth_dto"
	"github.com/xenn00/musori/internal/dtos/chat_dto"
	"github.com/xenn00/musori/internal/dtos/presence_dto"
	"github.com/xenn00/musori/internal/dtos/room_dto"
	"github.com/xenn00/musori/internal/dtos/user_dto"
	"github.com/xenn00/musori/internal/entity"
	"github.com/xenn00/musori/internal/presence"
	"github.com/xenn00/musori/internal/relay"
	"github.com/xenn00/musori/internal/storage"
	chat_service "github.com/xenn00/musori/internal/use-case/chat-case"
	room_service "github.com/xenn00/musori/internal/use-case/room-case"
	user_service "github.com/xenn00/musori/internal/use-case/user-case"
	"github.com/xenn00/musori/internal/utils"
	"github.com/xenn00/musori/internal/websocket"
	"github.com/xenn00/musori/state"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type apiEnv struct {
	server  *httptest.Server
	key     *rsa.PrivateKey
	hub     *websocket.Hub
	tracker presence.Tracker
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	return newAPIEnvWith(t, func(*Dependencies) {})
}

func newAPIEnvWith(t *testing.T, configure func(*Dependencies)) *apiEnv {
	t.Helper()
	db, sqlDB, err := state.InitSqlite("file::memory:")
	require.NoError(t, err)
	require.NoError(t, state.Migrate(db))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	avatars, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	appState := &state.AppState{DB: db, JwtSecret: &state.JwtSecret{Private: key, Public: &key.PublicKey}}
	tracker := presence.NewMemoryTracker(presence.DefaultWindow)
	users := user_service.NewUserService(appState, tracker, avatars, 1<<20, "http://chat.test")
	rooms := room_service.NewRoomService(appState, nil, tracker)
	require.Nil(t, rooms.EnsureDefaultRoom(context.Background()))
	chat := chat_service.NewChatService(appState, rooms, relay.New(relay.NewMemoryStore(0), relay.Options{}))
	hub := websocket.NewHub(tracker)

	deps := Dependencies{
		State:          appState,
		Hub:            hub,
		Presence:       tracker,
		Users:          users,
		Rooms:          rooms,
		Chat:           chat,
		Avatars:        avatars,
		MaxAvatarBytes: 1 << 20,
		ServiceName:    "musori-test",
	}
	configure(&deps)
	server := httptest.NewServer(NewRouter(deps))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
		sqlDB.Close()
	})
	return &apiEnv{server: server, key: key, hub: hub, tracker: tracker}
}

func (e *apiEnv) token(t *testing.T, id, nickname string) string {
	t.Helper()
	token, err := utils.IssueToken(entity.Identity{UserID: id, Email: id + "@chat.test", Nickname: nickname}, time.Hour, e.key)
	require.NoError(t, err)
	return token
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body []byte, contentType string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *apiEnv) doJSON(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return e.do(t, method, path, token, raw, "application/json")
}

func (e *apiEnv) dial(t *testing.T, token, roomID string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token + "&room_id=" + roomID
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// requireClosed drains conn until the server drops it.
func requireClosed(t *testing.T, conn *gorilla.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) {
				require.False(t, netErr.Timeout(), "connection stayed open")
			}
			return
		}
	}
}

func decode[T any](t *testing.T, raw []byte) dtos.Response[T] {
	t.Helper()
	var resp dtos.Response[T]
	require.NoError(t, json.Unmarshal(raw, &resp), string(raw))
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/v1/health", "", nil, "")
	require.Equal(t, http.StatusOK, status)

	resp := decode[map[string]any](t, body)
	assert.Equal(t, "musori-test", resp.Data["service"])
	assert.NotEmpty(t, resp.RequestID)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newAPIEnv(t)

	for _, path := range []string{"/api/v1/users/me", "/api/v1/rooms", "/api/v1/stats", "/api/v1/presence"} {
		status, body := env.do(t, http.MethodGet, path, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, status, path)

		resp := decode[any](t, body)
		require.NotNil(t, resp.Errors, path)
		assert.Equal(t, http.StatusUnauthorized, resp.Errors.Code)
	}
}

func TestProfileLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "Alice")

	status, body := env.doJSON(t, http.MethodGet, "/api/v1/users/me", alice, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	me := decode[user_dto.UserResponse](t, body)
	assert.Equal(t, "alice", me.Data.ID)
	assert.Equal(t, "alice@chat.test", me.Data.Email)

	status, body = env.doJSON(t, http.MethodPatch, "/api/v1/users/me", alice, map[string]any{"bio": "hello", "theme": "dark"})
	require.Equal(t, http.StatusOK, status, string(body))
	updated := decode[user_dto.UserResponse](t, body)
	assert.Equal(t, "hello", updated.Data.Bio)
	assert.Equal(t, "dark", updated.Data.Theme)

	status, body = env.doJSON(t, http.MethodPatch, "/api/v1/users/me", alice, map[string]any{"theme": "neon"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.NotNil(t, decode[any](t, body).Errors)

	// another user sees the public fields only
	bob := env.token(t, "bob", "Bob")
	status, body = env.doJSON(t, http.MethodGet, "/api/v1/users/alice", bob, nil)
	require.Equal(t, http.StatusOK, status)
	other := decode[user_dto.UserResponse](t, body)
	assert.Equal(t, "hello", other.Data.Bio)
	assert.Empty(t, other.Data.Email)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/v1/users/me", alice, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.doJSON(t, http.MethodGet, "/api/v1/users/alice", bob, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAvatarUploadAndServe(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "Alice")

	status, body := env.do(t, http.MethodPost, "/api/v1/users/me/avatar", alice, pngHeader, "image/png")
	require.Equal(t, http.StatusOK, status, string(body))
	resp := decode[user_dto.UserResponse](t, body)
	require.True(t, strings.HasPrefix(resp.Data.AvatarURL, "http://chat.test/avatars/"), resp.Data.AvatarURL)

	name := storage.NameFromURL(resp.Data.AvatarURL)
	httpResp, err := http.Get(env.server.URL + "/avatars/" + name)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	served, err := io.ReadAll(httpResp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.Equal(t, "image/png", httpResp.Header.Get("Content-Type"))
	assert.Equal(t, "nosniff", httpResp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, pngHeader, served)

	status, _ = env.do(t, http.MethodPost, "/api/v1/users/me/avatar", alice, []byte("plain text"), "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, status)

	status, _ = env.do(t, http.MethodGet, "/avatars/missing.png", "", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoomsAndMessages(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "Alice")
	bob := env.token(t, "bob", "Bob")

	// make sure bob exists so he can be invited by email
	status, _ := env.doJSON(t, http.MethodGet, "/api/v1/users/me", bob, nil)
	require.Equal(t, http.StatusOK, status)

	isPublic := false
	status, body := env.doJSON(t, http.MethodPost, "/api/v1/rooms", alice, room_dto.CreateRoomRequest{Name: "book club", IsPublic: &isPublic})
	require.Equal(t, http.StatusCreated, status, string(body))
	room := decode[room_dto.RoomResponse](t, body).Data
	assert.True(t, room.IsOwner)
	assert.Equal(t, []string{"alice"}, room.Members)

	status, _ = env.doJSON(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/messages", bob, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = env.doJSON(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/invite", alice, room_dto.InviteRequest{Email: "bob@chat.test"})
	require.Equal(t, http.StatusOK, status, string(body))
	invite := decode[room_dto.InviteResponse](t, body).Data
	assert.True(t, invite.Added)
	assert.Equal(t, 2, invite.Members)

	status, body = env.doJSON(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/messages", bob, chat_dto.SendMessageRequest{Text: "hi all"})
	require.Equal(t, http.StatusCreated, status, string(body))
	sent := decode[chat_dto.MessageResponse](t, body).Data
	assert.Equal(t, uint64(1), sent.Seq)
	assert.Equal(t, "Bob", sent.Nickname)

	status, body = env.doJSON(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/messages?limit=10", alice, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	history := decode[chat_dto.HistoryResponse](t, body).Data
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hi all", history.Messages[0].Text)

	status, _ = env.doJSON(t, http.MethodGet, "/api/v1/rooms/"+room.ID+"/messages?limit=0", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.doJSON(t, http.MethodGet, "/api/v1/rooms", bob, nil)
	require.Equal(t, http.StatusOK, status)
	listed := decode[[]room_dto.RoomResponse](t, body).Data
	ids := make([]string, 0, len(listed))
	for _, r := range listed {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, room.ID)
	assert.Contains(t, ids, entity.DefaultRoomID)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/v1/rooms/"+room.ID+"/members/bob", alice, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = env.doJSON(t, http.MethodGet, "/api/v1/rooms/"+room.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/v1/rooms/"+room.ID, bob, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = env.doJSON(t, http.MethodDelete, "/api/v1/rooms/"+room.ID, alice, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestPresenceOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "Alice")

	status, body := env.doJSON(t, http.MethodPost, "/api/v1/presence/heartbeat", alice, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = env.doJSON(t, http.MethodGet, "/api/v1/presence", alice, nil)
	require.Equal(t, http.StatusOK, status)
	online := decode[[]presence_dto.PresenceResponse](t, body).Data
	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].ID)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/v1/presence", alice, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.doJSON(t, http.MethodGet, "/api/v1/presence/alice", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStatsBehindAuth(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "Alice")

	status, body := env.doJSON(t, http.MethodGet, "/api/v1/stats", alice, nil)
	require.Equal(t, http.StatusOK, status)
	stats := decode[websocket.HubStats](t, body).Data
	assert.Zero(t, stats.TotalClients)

	status, body = env.doJSON(t, http.MethodGet, "/api/v1/rooms/"+entity.DefaultRoomID+"/stats", alice, nil)
	require.Equal(t, http.StatusOK, status)
	roomStats := decode[websocket.RoomStats](t, body).Data
	assert.Equal(t, entity.DefaultRoomID, roomStats.RoomID)
	assert.False(t, roomStats.Exists)
}

func TestDeleteAccountDropsLiveSockets(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "Alice")

	conn := env.dial(t, alice, entity.DefaultRoomID)
	require.Eventually(t, func() bool {
		return env.tracker.IsOnline(context.Background(), "alice")
	}, time.Second, 10*time.Millisecond)

	status, body := env.doJSON(t, http.MethodDelete, "/api/v1/users/me", alice, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	// a heartbeat racing the delete must not bring the account back online
	_ = conn.WriteMessage(gorilla.TextMessage, []byte(`{"event":"heartbeat"}`))
	requireClosed(t, conn)

	require.Eventually(t, func() bool {
		return len(env.hub.GetUserClients("alice")) == 0 && !env.tracker.IsOnline(context.Background(), "alice")
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, env.tracker.IsOnline(context.Background(), "alice"))
}

func TestRemovedMemberLosesPrivateRoomFeed(t *testing.T) {
	env := newAPIEnv(t)
	alice := env.token(t, "alice", "Alice")
	bob := env.token(t, "bob", "Bob")

	status, _ := env.doJSON(t, http.MethodGet, "/api/v1/users/me", bob, nil)
	require.Equal(t, http.StatusOK, status)

	isPublic := false
	status, body := env.doJSON(t, http.MethodPost, "/api/v1/rooms", alice, room_dto.CreateRoomRequest{Name: "secret", IsPublic: &isPublic})
	require.Equal(t, http.StatusCreated, status, string(body))
	room := decode[room_dto.RoomResponse](t, body).Data

	status, _ = env.doJSON(t, http.MethodPost, "/api/v1/rooms/"+room.ID+"/invite", alice, room_dto.InviteRequest{Email: "bob@chat.test"})
	require.Equal(t, http.StatusOK, status)

	bobPrivate := env.dial(t, bob, room.ID)
	env.dial(t, bob, entity.DefaultRoomID)
	alicePrivate := env.dial(t, alice, room.ID)
	require.Eventually(t, func() bool {
		return len(env.hub.GetRoomClients(room.ID)) == 2 && len(env.hub.GetUserClients("bob")) == 2
	}, time.Second, 10*time.Millisecond)

	status, _ = env.doJSON(t, http.MethodDelete, "/api/v1/rooms/"+room.ID+"/members/bob", alice, nil)
	require.Equal(t, http.StatusOK, status)

	requireClosed(t, bobPrivate)
	require.Eventually(t, func() bool {
		return len(env.hub.GetRoomClients(room.ID)) == 1 && len(env.hub.GetUserClients("bob")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, env.tracker.IsOnline(context.Background(), "bob"))

	status, _ = env.doJSON(t, http.MethodDelete, "/api/v1/rooms/"+room.ID, alice, nil)
	require.Equal(t, http.StatusOK, status)
	requireClosed(t, alicePrivate)
	require.Eventually(t, func() bool {
		return len(env.hub.GetRoomClients(room.ID)) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDevTokenRoute(t *testing.T) {
	body := map[string]any{"user_id": "dave", "email": "dave@chat.test", "nickname": "Dave"}

	disabled := newAPIEnv(t)
	status, _ := disabled.doJSON(t, http.MethodPost, "/api/v1/dev/token", "", body)
	assert.Equal(t, http.StatusNotFound, status)

	env := newAPIEnvWith(t, func(d *Dependencies) {
		d.DevTokens = true
		d.DevTokenTTL = 10 * time.Minute
	})

	status, raw := env.doJSON(t, http.MethodPost, "/api/v1/dev/token", "", body)
	require.Equal(t, http.StatusCreated, status, string(raw))
	issued := decode[auth_dto.TokenResponse](t, raw).Data
	assert.Equal(t, "Bearer", issued.TokenType)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), issued.ExpiresAt, 5*time.Second)

	status, raw = env.doJSON(t, http.MethodGet, "/api/v1/users/me", issued.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	me := decode[user_dto.UserResponse](t, raw).Data
	assert.Equal(t, "dave", me.ID)
	assert.Equal(t, "Dave", me.Nickname)

	status, raw = env.doJSON(t, http.MethodPost, "/api/v1/dev/token", "", map[string]any{"nickname": "Dave"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotNil(t, decode[any](t, raw).Errors)
}
