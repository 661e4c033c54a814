package presence

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type slot struct {
	entry    Entry
	deadline time.Time
	heapIdx  int
	used     bool
}

// MemoryTracker keeps entries in a slot arena indexed by id. A min-heap of slot indices ordered by
// deadline lets Sweep evict expired entries without scanning the whole arena.
type MemoryTracker struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time

	slots  []slot
	free   []int
	index  map[string]int
	expiry expiryHeap
	events broadcaster
}

func NewMemoryTracker(window time.Duration) *MemoryTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &MemoryTracker{
		window: window,
		now:    time.Now,
		index:  make(map[string]int),
	}
	t.expiry.t = t
	return t
}

func (t *MemoryTracker) Register(_ context.Context, id, nickname, email string) {
	t.mu.Lock()
	now := t.now()

	if i, ok := t.index[id]; ok {
		s := &t.slots[i]
		wasOnline := now.Before(s.deadline)
		s.entry.Nickname = nickname
		if email != "" {
			s.entry.Email = email
		}
		t.touch(i, now)
		entry := t.view(i, now)
		t.mu.Unlock()
		if !wasOnline {
			t.events.emit(Event{Kind: EventJoined, Entry: entry})
		}
		return
	}

	i := t.alloc()
	t.slots[i] = slot{
		entry: Entry{ID: id, Nickname: nickname, Email: email, LastSeen: now},
		used:  true,
	}
	t.slots[i].deadline = now.Add(t.window)
	t.index[id] = i
	heap.Push(&t.expiry, i)
	entry := t.view(i, now)
	t.mu.Unlock()

	t.events.emit(Event{Kind: EventJoined, Entry: entry})
}

func (t *MemoryTracker) Heartbeat(_ context.Context, id string) bool {
	t.mu.Lock()
	i, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	now := t.now()
	wasOnline := now.Before(t.slots[i].deadline)
	t.touch(i, now)
	entry := t.view(i, now)
	t.mu.Unlock()

	if !wasOnline {
		t.events.emit(Event{Kind: EventJoined, Entry: entry})
	}
	return true
}

func (t *MemoryTracker) Unregister(_ context.Context, id string) {
	t.mu.Lock()
	i, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	entry := t.view(i, t.now())
	heap.Remove(&t.expiry, t.slots[i].heapIdx)
	t.release(id, i)
	t.mu.Unlock()

	entry.Online = false
	t.events.emit(Event{Kind: EventLeft, Entry: entry})
}

func (t *MemoryTracker) IsOnline(_ context.Context, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[id]
	return ok && t.now().Before(t.slots[i].deadline)
}

func (t *MemoryTracker) Get(_ context.Context, id string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[id]
	if !ok {
		return Entry{}, false
	}
	return t.view(i, t.now()), true
}

func (t *MemoryTracker) Online(_ context.Context) []Entry {
	t.mu.Lock()
	now := t.now()
	entries := make([]Entry, 0, len(t.index))
	for _, i := range t.index {
		if now.Before(t.slots[i].deadline) {
			entries = append(entries, t.view(i, now))
		}
	}
	t.mu.Unlock()

	sortEntries(entries)
	return entries
}

// Sweep evicts every entry whose deadline is at or before now and returns how many were removed.
func (t *MemoryTracker) Sweep(_ context.Context, now time.Time) int {
	t.mu.Lock()
	var expired []Event
	for t.expiry.Len() > 0 {
		i := t.expiry.idx[0]
		if now.Before(t.slots[i].deadline) {
			break
		}
		heap.Pop(&t.expiry)
		entry := t.slots[i].entry
		t.release(entry.ID, i)
		expired = append(expired, Event{Kind: EventExpired, Entry: entry})
	}
	t.mu.Unlock()

	t.events.emit(expired...)
	return len(expired)
}

func (t *MemoryTracker) Run(ctx context.Context, interval time.Duration) {
	runSweeper(ctx, interval, t.now, t.Sweep)
}

func (t *MemoryTracker) Watch() *Watcher {
	return t.events.add()
}

// Len returns the number of tracked entries, stale or not.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}

func (t *MemoryTracker) touch(i int, now time.Time) {
	s := &t.slots[i]
	s.entry.LastSeen = now
	s.deadline = now.Add(t.window)
	heap.Fix(&t.expiry, s.heapIdx)
}

func (t *MemoryTracker) view(i int, now time.Time) Entry {
	e := t.slots[i].entry
	e.Online = now.Before(t.slots[i].deadline)
	return e
}

func (t *MemoryTracker) alloc() int {
	if n := len(t.free); n > 0 {
		i := t.free[n-1]
		t.free = t.free[:n-1]
		return i
	}
	t.slots = append(t.slots, slot{})
	return len(t.slots) - 1
}

func (t *MemoryTracker) release(id string, i int) {
	delete(t.index, id)
	t.slots[i] = slot{heapIdx: -1}
	t.free = append(t.free, i)
}

type expiryHeap struct {
	t   *MemoryTracker
	idx []int
}

func (h *expiryHeap) Len() int { return len(h.idx) }

func (h *expiryHeap) Less(a, b int) bool {
	return h.t.slots[h.idx[a]].deadline.Before(h.t.slots[h.idx[b]].deadline)
}

func (h *expiryHeap) Swap(a, b int) {
	h.idx[a], h.idx[b] = h.idx[b], h.idx[a]
	h.t.slots[h.idx[a]].heapIdx = a
	h.t.slots[h.idx[b]].heapIdx = b
}

func (h *expiryHeap) Push(x any) {
	i := x.(int)
	h.t.slots[i].heapIdx = len(h.idx)
	h.idx = append(h.idx, i)
}

func (h *expiryHeap) Pop() any {
	n := len(h.idx)
	i := h.idx[n-1]
	h.idx = h.idx[:n-1]
	h.t.slots[i].heapIdx = -1
	return i
}
