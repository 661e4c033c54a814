package room_service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenn00/musori/internal/dtos/room_dto"
	"github.com/xenn00/musori/internal/entity"
	"github.com/xenn00/musori/internal/presence"
	"github.com/xenn00/musori/internal/queue"
	user_repo "github.com/xenn00/musori/internal/repo/user"
	"github.com/xenn00/musori/state"
)

type recordingProducer struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (p *recordingProducer) Enqueue(_ context.Context, job queue.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingProducer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.jobs))
	for i, j := range p.jobs {
		out[i] = j.Type
	}
	return out
}

type fixture struct {
	svc      RoomServiceContract
	producer *recordingProducer
	tracker  *presence.MemoryTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, sqlDB, err := state.InitSqlite("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, state.Migrate(db))

	appState := &state.AppState{DB: db}
	users := user_repo.NewUserRepo(appState)
	for _, u := range []entity.User{
		{ID: "alice", Email: "alice@example.com", Nickname: "Alice", NotifyInvites: true},
		{ID: "bob", Email: "bob@example.com", Nickname: "Bob", NotifyInvites: true},
		{ID: "carol", Email: "carol@example.com", Nickname: "Carol"},
	} {
		_, appErr := users.FindOrCreate(context.Background(), u)
		require.Nil(t, appErr)
	}

	producer := &recordingProducer{}
	tracker := presence.NewMemoryTracker(time.Minute)
	return &fixture{
		svc:      NewRoomService(appState, producer, tracker),
		producer: producer,
		tracker:  tracker,
	}
}

func (f *fixture) privateRoom(t *testing.T, owner string) *room_dto.RoomResponse {
	t.Helper()
	isPublic := false
	room, err := f.svc.CreateRoom(context.Background(), room_dto.CreateRoomRequest{Name: " secret ", IsPublic: &isPublic}, owner)
	require.Nil(t, err)
	return room
}

func TestPrivateRoomInviteScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room := f.privateRoom(t, "alice")
	assert.Equal(t, "secret", room.Name)
	assert.Equal(t, []string{"alice"}, room.Members)
	assert.True(t, room.IsOwner)

	_, err := f.svc.OpenRoom(ctx, room.ID, "bob")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Code)
	assert.Contains(t, err.Message, "private room")

	invite, err := f.svc.InviteByEmail(ctx, room.ID, "alice", room_dto.InviteRequest{Email: "Bob@Example.com"})
	require.Nil(t, err)
	assert.True(t, invite.Added)
	assert.Equal(t, "bob", invite.UserID)
	assert.Equal(t, 2, invite.Members)

	opened, err := f.svc.OpenRoom(ctx, room.ID, "bob")
	require.Nil(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, opened.Members)

	assert.Equal(t, []string{queue.JobRoomInviteNotice, queue.JobRoomInviteEmail}, f.producer.types())
}

func TestInviteByEmail_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.privateRoom(t, "alice")

	_, err := f.svc.InviteByEmail(ctx, room.ID, "bob", room_dto.InviteRequest{Email: "carol@example.com"})
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Code, "outsiders cannot invite")

	_, err = f.svc.InviteByEmail(ctx, room.ID, "alice", room_dto.InviteRequest{Email: "nobody@example.com"})
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.Code)

	_, err = f.svc.InviteByEmail(ctx, "missing", "alice", room_dto.InviteRequest{Email: "bob@example.com"})
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.Code)

	invite, err := f.svc.InviteByEmail(ctx, room.ID, "alice", room_dto.InviteRequest{Email: "carol@example.com"})
	require.Nil(t, err)
	assert.True(t, invite.Added)
	assert.Equal(t, []string{queue.JobRoomInviteNotice}, f.producer.types(), "carol opted out of invite mail")

	again, err := f.svc.InviteByEmail(ctx, room.ID, "alice", room_dto.InviteRequest{Email: "carol@example.com"})
	require.Nil(t, err)
	assert.False(t, again.Added)
	assert.Len(t, f.producer.types(), 1, "repeated invites enqueue nothing")
}

func TestInviteByEmail_ConcurrentInvitesAddOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.privateRoom(t, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.InviteByEmail(ctx, room.ID, "alice", room_dto.InviteRequest{Email: "bob@example.com"})
			assert.Nil(t, err)
		}()
	}
	wg.Wait()

	opened, err := f.svc.OpenRoom(ctx, room.ID, "bob")
	require.Nil(t, err)
	assert.Len(t, opened.Members, 2)
	assert.Len(t, f.producer.types(), 2, "one notice and one mail")
}

func TestUpdateRoom_OwnerAndRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.privateRoom(t, "alice")

	rev := room.Revision
	_, err := f.svc.UpdateRoom(ctx, room.ID, "bob", room_dto.UpdateRoomRequest{Name: "hijack", Revision: &rev})
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Code)

	updated, err := f.svc.UpdateRoom(ctx, room.ID, "alice", room_dto.UpdateRoomRequest{Name: "open", IsPublic: true, Revision: &rev})
	require.Nil(t, err)
	assert.True(t, updated.IsPublic)
	assert.Equal(t, rev+1, updated.Revision)

	_, err = f.svc.UpdateRoom(ctx, room.ID, "alice", room_dto.UpdateRoomRequest{Name: "stale", Revision: &rev})
	require.NotNil(t, err)
	assert.Equal(t, http.StatusConflict, err.Code)

	_, err = f.svc.OpenRoom(ctx, room.ID, "bob")
	assert.Nil(t, err, "room is public now")
}

func TestDeleteRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Nil(t, f.svc.EnsureDefaultRoom(ctx))
	require.Nil(t, f.svc.EnsureDefaultRoom(ctx))

	err := f.svc.DeleteRoom(ctx, entity.DefaultRoomID, entity.SystemCreatorID)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Code)

	room := f.privateRoom(t, "alice")
	err = f.svc.DeleteRoom(ctx, room.ID, "bob")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Code)

	require.Nil(t, f.svc.DeleteRoom(ctx, room.ID, "alice"))
	_, err = f.svc.OpenRoom(ctx, room.ID, "alice")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.Code)
}

func TestListRooms_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Nil(t, f.svc.EnsureDefaultRoom(ctx))
	room := f.privateRoom(t, "alice")

	rooms, err := f.svc.ListRooms(ctx, "bob")
	require.Nil(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, entity.DefaultRoomID, rooms[0].ID)

	rooms, err = f.svc.ListRooms(ctx, "alice")
	require.Nil(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, room.ID, rooms[1].ID)
}

func TestRemoveMember_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.privateRoom(t, "alice")
	for _, email := range []string{"bob@example.com", "carol@example.com"} {
		_, err := f.svc.InviteByEmail(ctx, room.ID, "alice", room_dto.InviteRequest{Email: email})
		require.Nil(t, err)
	}

	err := f.svc.RemoveMember(ctx, room.ID, "bob", "carol")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Code)

	err = f.svc.RemoveMember(ctx, room.ID, "alice", "alice")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusBadRequest, err.Code)

	require.Nil(t, f.svc.RemoveMember(ctx, room.ID, "bob", "bob"), "members may leave")
	require.Nil(t, f.svc.RemoveMember(ctx, room.ID, "alice", "carol"))

	err = f.svc.RemoveMember(ctx, room.ID, "alice", "carol")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusNotFound, err.Code)

	_, err = f.svc.OpenRoom(ctx, room.ID, "bob")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Code)
}

func TestMembers_IncludesPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.privateRoom(t, "alice")
	_, err := f.svc.InviteByEmail(ctx, room.ID, "alice", room_dto.InviteRequest{Email: "bob@example.com"})
	require.Nil(t, err)
	f.tracker.Register(ctx, "bob", "Bob", "")

	resp, err := f.svc.Members(ctx, room.ID, "alice")
	require.Nil(t, err)
	require.Len(t, resp.Members, 2)
	assert.Equal(t, "Alice", resp.Members[0].Nickname)
	assert.False(t, resp.Members[0].Online)
	assert.NotEmpty(t, resp.Members[0].Email, "own profile includes email")
	assert.True(t, resp.Members[1].Online)
	assert.Empty(t, resp.Members[1].Email)

	_, err = f.svc.Members(ctx, room.ID, "carol")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusForbidden, err.Code)
}
