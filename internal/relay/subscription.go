package relay

import (
	"context"
	"sync"

	"github.com/xenn00/musori/internal/entity"
)

// Subscription is one consumer of a room feed. Messages wait in a mailbox capped at the relay's max
// pending count; overflowing it drops the subscriber and closes C. Close or cancelling the subscribe
// context also closes C.
type Subscription struct {
	C <-chan entity.Message

	roomID     string
	room       *roomLog
	maxPending int

	out    chan entity.Message
	notify chan struct{}
	done   chan struct{}

	mu    sync.Mutex
	queue []entity.Message
	err   error
	once  sync.Once
}

func newSubscription(roomID string, room *roomLog, maxPending int, history []entity.Message) *Subscription {
	out := make(chan entity.Message)
	s := &Subscription{
		C:          out,
		roomID:     roomID,
		room:       room,
		maxPending: maxPending,
		out:        out,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		queue:      append(make([]entity.Message, 0, len(history)), history...),
	}
	return s
}

func (s *Subscription) RoomID() string {
	return s.roomID
}

// Err reports why the subscription ended: ErrSlowConsumer, ErrClosed, or the context error.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Close() {
	s.stop(ErrClosed)
	s.detach()
}

// push queues msg and reports false when the subscriber has to be dropped. It is called with the
// room lock held and must not take it.
func (s *Subscription) push(msg entity.Message) bool {
	s.mu.Lock()
	if len(s.queue) >= s.maxPending {
		s.mu.Unlock()
		s.stop(ErrSlowConsumer)
		return false
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscription) stop(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) detach() {
	s.room.mu.Lock()
	delete(s.room.subs, s)
	s.room.mu.Unlock()
}

func (s *Subscription) pump(ctx context.Context) {
	defer close(s.out)
	defer s.detach()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			case <-ctx.Done():
				s.stop(ctx.Err())
				return
			}
		}
		msg := s.queue[0]
		s.queue[0] = entity.Message{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- msg:
		case <-s.done:
			return
		case <-ctx.Done():
			s.stop(ctx.Err())
			return
		}
	}
}
