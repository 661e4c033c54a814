package chat_repo

import (
	"context"

	"github.com/xenn00/musori/internal/entity"
)

// ChatRepoContract is the durable message log used by the relay, plus dead-letter archival for
// background jobs.
type ChatRepoContract interface {
	Append(ctx context.Context, msg entity.Message) error
	History(ctx context.Context, roomId string, limit int) ([]entity.Message, error)
	LastSeq(ctx context.Context, roomId string) (uint64, error)
	EnsureIndexes(ctx context.Context) error
	MigrateLegacyMessages(ctx context.Context) (int64, error)
	SaveDeadLetter(ctx context.Context, job entity.DLQJob) error
}
