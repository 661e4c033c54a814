package presence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	seenKey        = "presence:seen"
	entryKeyPrefix = "presence:entry:"
)

// RedisTracker shares presence between nodes. Last-seen times live in one sorted set scored by unix
// milliseconds; nickname and email live in a hash per identity. Events are only emitted for changes
// made through this tracker instance.
type RedisTracker struct {
	rdb    *redis.Client
	window time.Duration
	now    func() time.Time
	events broadcaster
}

func NewRedisTracker(rdb *redis.Client, window time.Duration) *RedisTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisTracker{rdb: rdb, window: window, now: time.Now}
}

func entryKey(id string) string {
	return entryKeyPrefix + id
}

func (t *RedisTracker) cutoff(now time.Time) int64 {
	return now.Add(-t.window).UnixMilli()
}

func (t *RedisTracker) Register(ctx context.Context, id, nickname, email string) {
	now := t.now()
	wasOnline := t.IsOnline(ctx, id)

	fields := map[string]any{"nickname": nickname}
	if email != "" {
		fields["email"] = email
	}
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, entryKey(id), fields)
		pipe.ZAdd(ctx, seenKey, redis.Z{Score: float64(now.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", id).Msg("presence register failed")
		return
	}

	if !wasOnline {
		entry, _ := t.Get(ctx, id)
		t.events.emit(Event{Kind: EventJoined, Entry: entry})
	}
}

// heartbeatScript refreshes the last-seen score only while both the score and the entry hash
// exist, and returns the previous score or -1.
var heartbeatScript = redis.NewScript(`
local prev = redis.call('ZSCORE', KEYS[1], ARGV[2])
if not prev or redis.call('EXISTS', KEYS[2]) == 0 then
	return -1
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
return tonumber(prev)
`)

// expireScript removes an identity only if its score is still at or below the cutoff.
var expireScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[2])
if not score or tonumber(score) > tonumber(ARGV[1]) then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[2])
redis.call('DEL', KEYS[2])
return 1
`)

// Heartbeat returns false when the identity has no complete entry, so callers register it again.
func (t *RedisTracker) Heartbeat(ctx context.Context, id string) bool {
	now := t.now()
	prev, err := heartbeatScript.Run(ctx, t.rdb, []string{seenKey, entryKey(id)}, now.UnixMilli(), id).Int64()
	if err != nil {
		log.Error().Err(err).Str("user_id", id).Msg("presence heartbeat failed")
		return false
	}
	if prev < 0 {
		return false
	}

	if prev <= t.cutoff(now) {
		entry, _ := t.Get(ctx, id)
		t.events.emit(Event{Kind: EventJoined, Entry: entry})
	}
	return true
}

func (t *RedisTracker) Unregister(ctx context.Context, id string) {
	entry, found := t.Get(ctx, id)
	if !found {
		return
	}

	var removed *redis.IntCmd
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, seenKey, id)
		pipe.Del(ctx, entryKey(id))
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", id).Msg("presence unregister failed")
		return
	}

	if removed.Val() > 0 {
		entry.Online = false
		t.events.emit(Event{Kind: EventLeft, Entry: entry})
	}
}

func (t *RedisTracker) IsOnline(ctx context.Context, id string) bool {
	score, err := t.rdb.ZScore(ctx, seenKey, id).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Error().Err(err).Str("user_id", id).Msg("presence lookup failed")
		}
		return false
	}
	return int64(score) > t.cutoff(t.now())
}

func (t *RedisTracker) Get(ctx context.Context, id string) (Entry, bool) {
	pipe := t.rdb.Pipeline()
	scoreCmd := pipe.ZScore(ctx, seenKey, id)
	fieldsCmd := pipe.HGetAll(ctx, entryKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		log.Error().Err(err).Str("user_id", id).Msg("presence get failed")
		return Entry{}, false
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return Entry{}, false
	}
	return t.entry(id, int64(score), fieldsCmd.Val()), true
}

func (t *RedisTracker) Online(ctx context.Context) []Entry {
	now := t.now()
	members, err := t.rdb.ZRangeByScoreWithScores(ctx, seenKey, &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(t.cutoff(now), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		log.Error().Err(err).Msg("presence online listing failed")
		return []Entry{}
	}

	pipe := t.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, m := range members {
		cmds[i] = pipe.HGetAll(ctx, entryKey(m.Member.(string)))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			log.Error().Err(err).Msg("presence online listing failed")
			return []Entry{}
		}
	}

	entries := make([]Entry, 0, len(members))
	for i, m := range members {
		entries = append(entries, t.entry(m.Member.(string), int64(m.Score), cmds[i].Val()))
	}
	sortEntries(entries)
	return entries
}

// Sweep removes identities whose last-seen time is outside the window. When several nodes sweep at
// once only the one whose removal succeeds emits the expired event.
func (t *RedisTracker) Sweep(ctx context.Context, now time.Time) int {
	ids, err := t.rdb.ZRangeByScore(ctx, seenKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(t.cutoff(now), 10),
	}).Result()
	if err != nil {
		log.Error().Err(err).Msg("presence sweep failed")
		return 0
	}

	var expired []Event
	for _, id := range ids {
		entry, _ := t.Get(ctx, id)
		ok, err := t.expire(ctx, id, now)
		if err != nil {
			log.Error().Err(err).Str("user_id", id).Msg("presence sweep failed")
			continue
		}
		if !ok {
			continue
		}
		entry.ID = id
		entry.Online = false
		expired = append(expired, Event{Kind: EventExpired, Entry: entry})
	}

	if len(expired) > 0 {
		log.Debug().Int("count", len(expired)).Msg("presence entries expired")
	}
	t.events.emit(expired...)
	return len(expired)
}

// expire removes id if it is still stale at now. It reports false when another node swept it first
// or a heartbeat refreshed it after the stale listing.
func (t *RedisTracker) expire(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := expireScript.Run(ctx, t.rdb, []string{seenKey, entryKey(id)}, t.cutoff(now), id).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *RedisTracker) Run(ctx context.Context, interval time.Duration) {
	runSweeper(ctx, interval, t.now, t.Sweep)
}

func (t *RedisTracker) Watch() *Watcher {
	return t.events.add()
}

func (t *RedisTracker) entry(id string, scoreMs int64, fields map[string]string) Entry {
	return Entry{
		ID:       id,
		Nickname: fields["nickname"],
		Email:    fields["email"],
		LastSeen: time.UnixMilli(scoreMs),
		Online:   scoreMs > t.cutoff(t.now()),
	}
}
