package chat_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/entity"
	"github.com/xenn00/musori/state"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	messagesCollection   = "messages"
	deadLetterCollection = "dead_letters"
)

type ChatRepo struct {
	AppState *state.AppState
}

func NewChatRepo(appState *state.AppState) ChatRepoContract {
	return &ChatRepo{
		AppState: appState,
	}
}

func (r *ChatRepo) messages() *mongo.Collection {
	return r.AppState.MongoDB.Collection(messagesCollection)
}

func (r *ChatRepo) Append(ctx context.Context, msg entity.Message) error {
	if _, err := r.messages().InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *ChatRepo) History(ctx context.Context, roomId string, limit int) ([]entity.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	// sort desc to take the newest messages, reversed below
	cur, err := r.messages().Find(ctx, bson.M{"room_id": roomId}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	defer cur.Close(ctx)

	messages := []entity.Message{}
	if err := cur.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *ChatRepo) LastSeq(ctx context.Context, roomId string) (uint64, error) {
	var last struct {
		Seq uint64 `bson:"seq"`
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}).SetProjection(bson.M{"seq": 1})
	err := r.messages().FindOne(ctx, bson.M{"room_id": roomId}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to fetch last sequence: %w", err)
	}
	return last.Seq, nil
}

func (r *ChatRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.messages().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "seq", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

// MigrateLegacyMessages moves messages written before rooms existed into the default room.
func (r *ChatRepo) MigrateLegacyMessages(ctx context.Context) (int64, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"room_id": bson.M{"$exists": false}},
		bson.M{"room_id": nil},
		bson.M{"room_id": ""},
	}}
	res, err := r.messages().UpdateMany(ctx, filter, bson.M{"$set": bson.M{"room_id": entity.DefaultRoomID}})
	if err != nil {
		return 0, fmt.Errorf("failed to migrate legacy messages: %w", err)
	}
	if res.ModifiedCount > 0 {
		log.Info().Int64("count", res.ModifiedCount).Msg("legacy messages moved to the default room")
	}
	return res.ModifiedCount, nil
}

func (r *ChatRepo) SaveDeadLetter(ctx context.Context, job entity.DLQJob) error {
	_, err := r.AppState.MongoDB.Collection(deadLetterCollection).InsertOne(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to archive dead letter %s: %w", job.JobID, err)
	}
	return nil
}
