// Package relay is the append-only message log of every room and its live fan-out.
//
// Publish assigns each message a per-room sequence number and a strictly increasing server
// timestamp, appends it to the Store and hands it to every subscriber of the room while still
// holding the room lock. Subscribe takes its history snapshot under the same lock, so a subscriber
// sees the tail of the log followed by live messages with no gap and no duplicate.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/entity"
)

var (
	ErrEmptyRoom    = errors.New("relay: room id is required")
	ErrSlowConsumer = errors.New("relay: subscriber dropped, too many pending messages")
	ErrClosed       = errors.New("relay: subscription closed")
)

const (
	DefaultHistoryLimit = 50
	DefaultMaxPending   = 256
)

type Store interface {
	Append(ctx context.Context, msg entity.Message) error
	// History returns at most limit of the newest messages of a room, oldest first.
	History(ctx context.Context, roomID string, limit int) ([]entity.Message, error)
	LastSeq(ctx context.Context, roomID string) (uint64, error)
}

// Bridge carries messages between relay nodes sharing the same rooms.
type Bridge interface {
	Forward(ctx context.Context, msg entity.Message) error
	// Listen blocks until ctx is done, calling deliver for every message published by another node.
	Listen(ctx context.Context, deliver func(entity.Message)) error
}

type Options struct {
	NodeID       string
	HistoryLimit int
	MaxPending   int
	Bridge       Bridge
}

type Relay struct {
	store        Store
	bridge       Bridge
	nodeID       string
	historyLimit int
	maxPending   int
	now          func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomLog
}

type roomLog struct {
	mu     sync.Mutex
	loaded bool
	seq    uint64
	lastTS time.Time
	subs   map[*Subscription]struct{}
}

func New(store Store, opts Options) *Relay {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	if opts.MaxPending < opts.HistoryLimit {
		opts.MaxPending = opts.HistoryLimit
	}
	if opts.NodeID == "" {
		opts.NodeID = uuid.NewString()
	}
	return &Relay{
		store:        store,
		bridge:       opts.Bridge,
		nodeID:       opts.NodeID,
		historyLimit: opts.HistoryLimit,
		maxPending:   opts.MaxPending,
		now:          time.Now,
		rooms:        make(map[string]*roomLog),
	}
}

func (r *Relay) NodeID() string {
	return r.nodeID
}

func (r *Relay) room(id string) *roomLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		room = &roomLog{subs: make(map[*Subscription]struct{})}
		r.rooms[id] = room
	}
	return room
}

// load must be called with room.mu held.
func (r *Relay) load(ctx context.Context, roomID string, room *roomLog) error {
	if room.loaded {
		return nil
	}
	seq, err := r.store.LastSeq(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load last sequence of %s: %w", roomID, err)
	}
	room.seq = seq
	room.loaded = true
	return nil
}

// Publish stores msg and fans it out. ID, Seq, Timestamp and Origin are assigned here; the stored
// message is returned.
func (r *Relay) Publish(ctx context.Context, msg entity.Message) (entity.Message, error) {
	if msg.RoomID == "" {
		return entity.Message{}, ErrEmptyRoom
	}
	room := r.room(msg.RoomID)

	msg, err := r.append(ctx, room, msg)
	if err != nil {
		return entity.Message{}, err
	}

	// forwarding happens outside the room lock so a slow bridge only delays this caller
	if r.bridge != nil {
		if err := r.bridge.Forward(ctx, msg); err != nil {
			log.Error().Err(err).Str("room_id", msg.RoomID).Str("message_id", msg.ID).Msg("failed to forward message to bridge")
		}
	}
	return msg, nil
}

// append stamps msg with the room's next seq and timestamp, stores it and delivers it locally.
func (r *Relay) append(ctx context.Context, room *roomLog, msg entity.Message) (entity.Message, error) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if err := r.load(ctx, msg.RoomID, room); err != nil {
		return entity.Message{}, err
	}

	ts := r.now().UTC().Truncate(time.Millisecond)
	if !ts.After(room.lastTS) {
		ts = room.lastTS.Add(time.Millisecond)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Kind == "" {
		msg.Kind = entity.MessageKindChat
	}
	msg.Seq = room.seq + 1
	msg.Timestamp = ts
	msg.Origin = r.nodeID

	if err := r.store.Append(ctx, msg); err != nil {
		return entity.Message{}, fmt.Errorf("append message: %w", err)
	}
	room.seq = msg.Seq
	room.lastTS = ts

	room.deliver(msg)
	return msg, nil
}

// Inject delivers a message published on another node to local subscribers. It is neither stored
// nor forwarded again.
func (r *Relay) Inject(msg entity.Message) {
	if msg.RoomID == "" || msg.Origin == r.nodeID {
		return
	}
	room := r.room(msg.RoomID)
	room.mu.Lock()
	if msg.Timestamp.After(room.lastTS) {
		room.lastTS = msg.Timestamp
	}
	// an unloaded room reads the latest seq from the store on first use
	if room.loaded && msg.Seq > room.seq {
		room.seq = msg.Seq
	}
	room.deliver(msg)
	room.mu.Unlock()
}

// Subscribe opens a live feed of roomID. The channel first yields up to the history limit of stored
// messages and then every message published afterwards.
func (r *Relay) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	if roomID == "" {
		return nil, ErrEmptyRoom
	}
	room := r.room(roomID)

	room.mu.Lock()
	if err := r.load(ctx, roomID, room); err != nil {
		room.mu.Unlock()
		return nil, err
	}
	history, err := r.store.History(ctx, roomID, r.historyLimit)
	if err != nil {
		room.mu.Unlock()
		return nil, fmt.Errorf("load history of %s: %w", roomID, err)
	}

	sub := newSubscription(roomID, room, r.maxPending, history)
	room.subs[sub] = struct{}{}
	room.mu.Unlock()

	go sub.pump(ctx)
	return sub, nil
}

func (r *Relay) History(ctx context.Context, roomID string, limit int) ([]entity.Message, error) {
	if roomID == "" {
		return nil, ErrEmptyRoom
	}
	if limit <= 0 || limit > r.historyLimit {
		limit = r.historyLimit
	}
	msgs, err := r.store.History(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", roomID, err)
	}
	return msgs, nil
}

// Subscribers returns the number of live subscriptions of roomID.
func (r *Relay) Subscribers(roomID string) int {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.subs)
}

// Run pumps messages from the bridge into local subscribers until ctx is done. It returns
// immediately when no bridge is configured.
func (r *Relay) Run(ctx context.Context) error {
	if r.bridge == nil {
		return nil
	}
	log.Info().Str("node_id", r.nodeID).Msg("relay bridge listener started")
	err := r.bridge.Listen(ctx, r.Inject)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("relay bridge: %w", err)
	}
	return nil
}

// deliver must be called with room.mu held.
func (room *roomLog) deliver(msg entity.Message) {
	for sub := range room.subs {
		if !sub.push(msg) {
			delete(room.subs, sub)
			log.Warn().Str("room_id", msg.RoomID).Msg("dropping slow subscriber")
		}
	}
}
