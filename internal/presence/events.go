package presence

import "sync"

type EventKind string

const (
	EventJoined  EventKind = "joined"
	EventLeft    EventKind = "left"
	EventExpired EventKind = "expired"
)

const watcherBuffer = 64

type Event struct {
	Kind  EventKind `json:"kind"`
	Entry Entry     `json:"entry"`
}

// Watcher receives presence events until Close is called. Events are dropped for a watcher whose
// buffer is full.
type Watcher struct {
	C <-chan Event

	ch   chan Event
	b    *broadcaster
	once sync.Once
}

func (w *Watcher) Close() {
	w.once.Do(func() { w.b.remove(w) })
}

type broadcaster struct {
	mu   sync.Mutex
	subs map[*Watcher]struct{}
}

func (b *broadcaster) add() *Watcher {
	ch := make(chan Event, watcherBuffer)
	w := &Watcher{C: ch, ch: ch, b: b}

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[*Watcher]struct{})
	}
	b.subs[w] = struct{}{}
	b.mu.Unlock()
	return w
}

func (b *broadcaster) remove(w *Watcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[w]; ok {
		delete(b.subs, w)
		close(w.ch)
	}
}

func (b *broadcaster) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for w := range b.subs {
		for _, ev := range events {
			select {
			case w.ch <- ev:
			default:
			}
		}
	}
}
