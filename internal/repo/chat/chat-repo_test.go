package chat_repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenn00/musori/internal/entity"
	"github.com/xenn00/musori/state"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func testMongoURL() string {
	if url := os.Getenv("CHATAPP_TEST_MONGO_URL"); url != "" {
		return url
	}
	return "mongodb://localhost:27017"
}

// setupRepo connects to a throwaway database and skips when MongoDB is not reachable.
func setupRepo(t *testing.T) *ChatRepo {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := state.InitMongo(ctx, testMongoURL())
	if err != nil {
		t.Skipf("Skipping test: mongo not available: %v", err)
	}

	db := client.Database("musori_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return &ChatRepo{AppState: &state.AppState{Mongo: client, MongoDB: db}}
}

func TestChatRepo_AppendHistoryLastSeq(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, repo.Append(ctx, entity.Message{
			ID:        uuid.NewString(),
			RoomID:    "general",
			Seq:       uint64(i + 1),
			Text:      text,
			Kind:      entity.MessageKindChat,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	history, err := repo.History(ctx, "general", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "two", history[0].Text)
	assert.Equal(t, "three", history[1].Text)

	seq, err := repo.LastSeq(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq)

	seq, err = repo.LastSeq(ctx, "empty")
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestChatRepo_MigrateLegacyMessages(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.messages().InsertMany(ctx, []any{
		bson.M{"_id": "missing", "seq": 1, "text": "no room field"},
		bson.M{"_id": "null", "seq": 2, "text": "null room", "room_id": nil},
		bson.M{"_id": "blank", "seq": 3, "text": "blank room", "room_id": ""},
		bson.M{"_id": "kept", "seq": 1, "text": "already placed", "room_id": "books"},
	})
	require.NoError(t, err)

	migrated, err := repo.MigrateLegacyMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), migrated)

	general, err := repo.History(ctx, entity.DefaultRoomID, 0)
	require.NoError(t, err)
	assert.Len(t, general, 3)

	books, err := repo.History(ctx, "books", 0)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "kept", books[0].ID)

	// a second run finds nothing left to move
	migrated, err = repo.MigrateLegacyMessages(ctx)
	require.NoError(t, err)
	assert.Zero(t, migrated)
}

func TestChatRepo_SaveDeadLetter(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveDeadLetter(ctx, entity.DLQJob{JobID: "job-1"}))
	n, err := repo.AppState.MongoDB.Collection(deadLetterCollection).CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
