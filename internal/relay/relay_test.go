package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenn00/musori/internal/entity"
	"go.uber.org/goleak"
)

func chat(room, sender, text string) entity.Message {
	return entity.Message{RoomID: room, SenderID: sender, Nickname: sender, Text: text}
}

func receive(t *testing.T, sub *Subscription, n int) []entity.Message {
	t.Helper()
	out := make([]entity.Message, 0, n)
	for len(out) < n {
		select {
		case msg, ok := <-sub.C:
			require.True(t, ok, "subscription closed after %d of %d messages", len(out), n)
			out = append(out, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d messages", len(out), n)
		}
	}
	return out
}

func texts(msgs []entity.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestPublish_AssignsSequenceAndMonotonicTimestamp(t *testing.T) {
	r := New(NewMemoryStore(0), Options{NodeID: "node-a"})
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return frozen }

	ctx := context.Background()
	var prev entity.Message
	for i := 1; i <= 3; i++ {
		msg, err := r.Publish(ctx, chat("general", "u1", fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), msg.Seq)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, entity.MessageKindChat, msg.Kind)
		assert.Equal(t, "node-a", msg.Origin)
		if i > 1 {
			assert.True(t, msg.Timestamp.After(prev.Timestamp), "timestamps strictly increase")
		}
		prev = msg
	}

	other, err := r.Publish(ctx, chat("random", "u1", "x"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), other.Seq, "sequence is per room")
}

func TestPublish_EmptyRoom(t *testing.T) {
	r := New(NewMemoryStore(0), Options{})
	_, err := r.Publish(context.Background(), chat("", "u1", "hi"))
	assert.ErrorIs(t, err, ErrEmptyRoom)

	_, err = r.Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyRoom)
}

func TestPublish_ContinuesStoredSequence(t *testing.T) {
	store := NewMemoryStore(0)
	require.NoError(t, store.Append(context.Background(), entity.Message{RoomID: "general", Seq: 7, Text: "old"}))

	r := New(store, Options{})
	msg, err := r.Publish(context.Background(), chat("general", "u1", "new"))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), msg.Seq)
}

type failingStore struct {
	*MemoryStore
	fail bool
}

func (s *failingStore) Append(ctx context.Context, msg entity.Message) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.Append(ctx, msg)
}

func TestPublish_StoreFailureDoesNotAdvance(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(0), fail: true}
	r := New(store, Options{})

	_, err := r.Publish(context.Background(), chat("general", "u1", "lost"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	store.fail = false
	msg, err := r.Publish(context.Background(), chat("general", "u1", "kept"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.Seq)
}

func TestSubscribe_HistoryThenLive(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	r := New(NewMemoryStore(0), Options{HistoryLimit: 2})
	for _, text := range []string{"a", "b", "c"} {
		_, err := r.Publish(ctx, chat("general", "u1", text))
		require.NoError(t, err)
	}

	sub, err := r.Subscribe(ctx, "general")
	require.NoError(t, err)
	defer sub.Close()

	for _, text := range []string{"d", "e"} {
		_, err := r.Publish(ctx, chat("general", "u2", text))
		require.NoError(t, err)
	}

	got := receive(t, sub, 4)
	assert.Equal(t, []string{"b", "c", "d", "e"}, texts(got))
	for i := 1; i < len(got); i++ {
		assert.Equal(t, got[i-1].Seq+1, got[i].Seq)
	}
}

func TestSubscribe_OnlyOwnRoom(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	r := New(NewMemoryStore(0), Options{})
	sub, err := r.Subscribe(ctx, "general")
	require.NoError(t, err)
	defer sub.Close()

	_, err = r.Publish(ctx, chat("random", "u1", "elsewhere"))
	require.NoError(t, err)
	_, err = r.Publish(ctx, chat("general", "u1", "here"))
	require.NoError(t, err)

	got := receive(t, sub, 1)
	assert.Equal(t, "here", got[0].Text)
}

func TestSubscribe_ConcurrentPublishersKeepOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	r := New(NewMemoryStore(0), Options{MaxPending: 1000})

	subA, err := r.Subscribe(ctx, "general")
	require.NoError(t, err)
	defer subA.Close()
	subB, err := r.Subscribe(ctx, "general")
	require.NoError(t, err)
	defer subB.Close()

	const publishers, each = 4, 50
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := r.Publish(ctx, chat("general", fmt.Sprintf("u%d", p), fmt.Sprintf("%d-%d", p, i)))
				assert.NoError(t, err)
			}
		}(p)
	}

	gotA := receive(t, subA, publishers*each)
	gotB := receive(t, subB, publishers*each)
	wg.Wait()

	assert.Equal(t, texts(gotA), texts(gotB), "every subscriber sees the same order")
	for i := 1; i < len(gotA); i++ {
		assert.Equal(t, gotA[i-1].Seq+1, gotA[i].Seq)
		assert.True(t, gotA[i].Timestamp.After(gotA[i-1].Timestamp))
	}
}

func TestSubscribe_SlowConsumerIsDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	r := New(NewMemoryStore(0), Options{HistoryLimit: 1, MaxPending: 2})

	slow, err := r.Subscribe(ctx, "general")
	require.NoError(t, err)
	fast, err := r.Subscribe(ctx, "general")
	require.NoError(t, err)
	defer fast.Close()

	for i := 0; i < 10; i++ {
		_, err := r.Publish(ctx, chat("general", "u1", fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		receive(t, fast, 1)
	}

	deadline := time.After(2 * time.Second)
	for closed := false; !closed; {
		select {
		case _, ok := <-slow.C:
			closed = !ok
		case <-deadline:
			t.Fatal("slow subscriber was not closed")
		}
	}
	assert.ErrorIs(t, slow.Err(), ErrSlowConsumer)
	assert.Equal(t, 1, r.Subscribers("general"))
	assert.NoError(t, fast.Err())
}

func TestSubscribe_CloseAndCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := New(NewMemoryStore(0), Options{})

	sub, err := r.Subscribe(context.Background(), "general")
	require.NoError(t, err)
	sub.Close()
	sub.Close()
	_, ok := <-sub.C
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Err(), ErrClosed)

	ctx, cancel := context.WithCancel(context.Background())
	sub2, err := r.Subscribe(ctx, "general")
	require.NoError(t, err)
	cancel()
	_, ok = <-sub2.C
	assert.False(t, ok)
	assert.ErrorIs(t, sub2.Err(), context.Canceled)

	assert.Eventually(t, func() bool { return r.Subscribers("general") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHistory_Limit(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore(0), Options{HistoryLimit: 3})
	for i := 0; i < 5; i++ {
		_, err := r.Publish(ctx, chat("general", "u1", fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
	}

	msgs, err := r.History(ctx, "general", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4"}, texts(msgs))

	msgs, err = r.History(ctx, "general", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3", "m4"}, texts(msgs), "capped at the history limit")

	msgs, err = r.History(ctx, "empty", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestInject_SkipsOwnOrigin(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	r := New(NewMemoryStore(0), Options{NodeID: "node-a"})
	sub, err := r.Subscribe(ctx, "general")
	require.NoError(t, err)
	defer sub.Close()

	r.Inject(entity.Message{RoomID: "general", Text: "echo", Origin: "node-a"})
	r.Inject(entity.Message{RoomID: "general", Text: "remote", Origin: "node-b", Seq: 42})

	got := receive(t, sub, 1)
	assert.Equal(t, "remote", got[0].Text)

	stored, err := r.History(ctx, "general", 10)
	require.NoError(t, err)
	assert.Empty(t, stored, "injected messages are not stored")
}

func TestMemoryStore_Capacity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	for i := uint64(1); i <= 4; i++ {
		require.NoError(t, s.Append(ctx, entity.Message{RoomID: "general", Seq: i}))
	}

	msgs, err := s.History(ctx, "general", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(3), msgs[0].Seq)

	seq, err := s.LastSeq(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)
}

func TestInject_AdvancesLoadedSequence(t *testing.T) {
	ctx := context.Background()
	r := New(NewMemoryStore(0), Options{NodeID: "node-a"})

	first, err := r.Publish(ctx, chat("general", "u1", "local"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Seq)

	// another node sharing the store already wrote up to seq 5
	r.Inject(entity.Message{RoomID: "general", Text: "remote", Origin: "node-b", Seq: 5, Timestamp: first.Timestamp})
	r.Inject(entity.Message{RoomID: "general", Text: "stale", Origin: "node-b", Seq: 3, Timestamp: first.Timestamp})

	next, err := r.Publish(ctx, chat("general", "u1", "after"))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), next.Seq)
	assert.True(t, next.Timestamp.After(first.Timestamp))
}

type blockingBridge struct {
	entered chan entity.Message
	release chan struct{}
}

func (b *blockingBridge) Forward(ctx context.Context, msg entity.Message) error {
	b.entered <- msg
	<-b.release
	return nil
}

func (b *blockingBridge) Listen(ctx context.Context, deliver func(entity.Message)) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPublish_SlowBridgeDoesNotHoldRoom(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	bridge := &blockingBridge{entered: make(chan entity.Message, 2), release: make(chan struct{})}
	r := New(NewMemoryStore(0), Options{NodeID: "node-a", Bridge: bridge})

	published := make(chan error, 1)
	go func() {
		_, err := r.Publish(ctx, chat("general", "u1", "first"))
		published <- err
	}()

	select {
	case <-bridge.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("forward was not called")
	}

	// the room stays usable while the first forward is stuck
	sub, err := r.Subscribe(ctx, "general")
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, []string{"first"}, texts(receive(t, sub, 1)))

	second := make(chan entity.Message, 1)
	go func() {
		msg, err := r.Publish(ctx, chat("general", "u2", "second"))
		if err == nil {
			second <- msg
		}
	}()
	assert.Equal(t, []string{"second"}, texts(receive(t, sub, 1)))

	close(bridge.release)
	require.NoError(t, <-published)
	select {
	case msg := <-second:
		assert.Equal(t, uint64(2), msg.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("second publish did not return")
	}
}
