package relay

import (
	"context"
	"sync"

	"github.com/xenn00/musori/internal/entity"
)

const DefaultMemoryCapacity = 1000

// MemoryStore keeps the newest messages of each room in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	rooms    map[string]*memoryRoom
}

type memoryRoom struct {
	msgs    []entity.Message
	lastSeq uint64
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, rooms: make(map[string]*memoryRoom)}
}

func (s *MemoryStore) Append(_ context.Context, msg entity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[msg.RoomID]
	if !ok {
		room = &memoryRoom{}
		s.rooms[msg.RoomID] = room
	}
	room.msgs = append(room.msgs, msg)
	if over := len(room.msgs) - s.capacity; over > 0 {
		room.msgs = append(room.msgs[:0:0], room.msgs[over:]...)
	}
	if msg.Seq > room.lastSeq {
		room.lastSeq = msg.Seq
	}
	return nil
}

func (s *MemoryStore) History(_ context.Context, roomID string, limit int) ([]entity.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return []entity.Message{}, nil
	}
	msgs := room.msgs
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]entity.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) LastSeq(_ context.Context, roomID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if room, ok := s.rooms[roomID]; ok {
		return room.lastSeq, nil
	}
	return 0, nil
}
