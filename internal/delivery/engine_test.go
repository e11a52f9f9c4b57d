package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-engine/internal/auth"
	"chat-engine/internal/chats"
	"chat-engine/internal/directory"
	"chat-engine/internal/mocks"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/presence"
	"chat-engine/internal/store/memory"
)

var fastParams = auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type testSink struct {
	mu     sync.Mutex
	events []models.ChatEvent
	closed bool
}

func (s *testSink) Deliver(ev models.ChatEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *testSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *testSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *testSink) received() []models.ChatEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatEvent(nil), s.events...)
}

type harness struct {
	store     *memory.Store
	directory *directory.Directory
	presence  *presence.Registry
	chats     *chats.Aggregator
	publisher *mocks.PublisherMock
	engine    *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := memory.New()
	reg := presence.NewRegistry(nil, zap.NewNop())
	dir := directory.New(s, auth.NewHasher(fastParams), reg, zap.NewNop())
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	return &harness{
		store:     s,
		directory: dir,
		presence:  reg,
		chats:     chats.New(s, s),
		publisher: pub,
		engine:    New(dir, s, reg, pub, zap.NewNop(), Options{PageSize: 10, MaxUnreadFetch: 100}),
	}
}

func (h *harness) register(t *testing.T, username, password string) models.Account {
	t.Helper()
	acc, err := h.engine.Register(context.Background(), auth.CreateAccountRequest{
		Email:    username + "@x.com",
		Username: username,
		Password: password,
	})
	require.NoError(t, err)
	return acc
}

func (h *harness) send(t *testing.T, from, to models.Account, content string) models.Delivery {
	t.Helper()
	d, err := h.engine.Send(context.Background(), from.ID, to.ID, content)
	require.NoError(t, err)
	return d
}

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestOfflineDeliveryScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw1")
	bob := h.register(t, "bob", "pw2")

	d := h.send(t, alice, bob, "hi")
	assert.False(t, d.Delivered)

	n, err := h.engine.UnreadCount(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h.presence.Connect(bob.ID, &testSink{})

	msgs, err := h.engine.FetchUnread(ctx, bob.ID, alice.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, contents(msgs))

	n, err = h.engine.UnreadCount(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.publisher.AssertCalled(t, "Publish", mock.Anything, observability.RouteMessageSent, mock.Anything, mock.Anything)
	h.publisher.AssertCalled(t, "Publish", mock.Anything, observability.RouteMessageRead, mock.Anything, mock.Anything)
}

func TestLivePushDoesNotMarkRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")
	bob := h.register(t, "bob", "pw")

	sink := &testSink{}
	h.presence.Connect(bob.ID, sink)

	d := h.send(t, alice, bob, "live")
	assert.True(t, d.Delivered)

	events := sink.received()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMessage, events[0].Type)
	assert.Equal(t, d.Message.ID, events[0].Message.ID)

	n, err := h.engine.UnreadCount(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")

	_, err := h.engine.Send(ctx, alice.ID, alice.ID, "   ")
	assert.ErrorIs(t, err, models.ErrEmptyContent)

	_, err = h.engine.Send(ctx, alice.ID, uuid.NewString(), "hello")
	assert.ErrorIs(t, err, models.ErrInvalidRecipient)

	_, err = h.engine.Send(ctx, alice.ID, alice.ID, "note to self")
	assert.ErrorIs(t, err, models.ErrInvalidRecipient)

	_, err = h.engine.Send(ctx, uuid.NewString(), alice.ID, "hello")
	assert.ErrorIs(t, err, models.ErrSenderNotFound)
}

func TestSendThenHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")
	bob := h.register(t, "bob", "pw")

	for i := 0; i < 11; i++ {
		h.send(t, alice, bob, fmt.Sprintf("m%d", i))
	}
	last := h.send(t, bob, alice, "latest")

	page, err := h.engine.History(ctx, alice.ID, bob.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 10)
	assert.Equal(t, last.Message.ID, page.Items[0].ID)
	assert.Equal(t, "m10", page.Items[1].Content)

	page, err = h.engine.History(ctx, bob.ID, alice.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m0"}, contents(page.Items))

	_, err = h.engine.History(ctx, alice.ID, bob.ID, 0)
	assert.ErrorIs(t, err, models.ErrInvalidPage)

	_, err = h.engine.History(ctx, alice.ID, uuid.NewString(), 1)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestConcurrentSendsAreTotallyOrdered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")
	bob := h.register(t, "bob", "pw")

	const perSide = 25
	var wg sync.WaitGroup
	for _, pair := range [][2]models.Account{{alice, bob}, {bob, alice}} {
		for i := 0; i < perSide; i++ {
			wg.Add(1)
			go func(from, to models.Account, i int) {
				defer wg.Done()
				_, err := h.engine.Send(ctx, from.ID, to.ID, fmt.Sprintf("%s-%d", from.Username, i))
				assert.NoError(t, err)
			}(pair[0], pair[1], i)
		}
	}
	wg.Wait()

	msgs, total, err := h.store.Conversation(ctx, alice.ID, bob.ID, 0, 1000)
	require.NoError(t, err)
	require.Equal(t, 2*perSide, total)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt), "timestamps must strictly decrease newest-first")
	}
}

func TestFetchUnreadLimits(t *testing.T) {
	h := newHarness(t)
	h.engine.opts.MaxUnreadFetch = 2
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")
	bob := h.register(t, "bob", "pw")
	for i := 0; i < 3; i++ {
		h.send(t, alice, bob, fmt.Sprintf("u%d", i))
	}

	_, err := h.engine.FetchUnread(ctx, bob.ID, alice.ID, 0)
	assert.ErrorIs(t, err, models.ErrInvalidLimit)

	msgs, err := h.engine.FetchUnread(ctx, bob.ID, alice.ID, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"u0", "u1"}, contents(msgs))

	n, err := h.engine.UnreadCount(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentFetchNeverDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")
	bob := h.register(t, "bob", "pw")
	for i := 0; i < 30; i++ {
		h.send(t, alice, bob, fmt.Sprintf("u%d", i))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]int{}
	)
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msgs, err := h.engine.FetchUnread(ctx, bob.ID, alice.ID, 4)
				if !assert.NoError(t, err) || len(msgs) == 0 {
					return
				}
				mu.Lock()
				for _, m := range msgs {
					seen[m.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 30)
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

func TestDeleteMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")
	bob := h.register(t, "bob", "pw")
	mallory := h.register(t, "mallory", "pw")

	aliceSink, bobSink := &testSink{}, &testSink{}
	h.presence.Connect(alice.ID, aliceSink)

	m := h.send(t, alice, bob, "secret").Message
	h.presence.Connect(bob.ID, bobSink)

	_, err := h.engine.DeleteMessages(ctx, mallory.ID, []string{m.ID})
	assert.ErrorIs(t, err, models.ErrNotParticipant)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	n, err := h.engine.DeleteMessages(ctx, bob.ID, []string{m.ID, m.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	page, err := h.engine.History(ctx, alice.ID, bob.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	recent, err := h.chats.Recent(ctx, bob.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, recent.Items)

	for _, sink := range []*testSink{aliceSink, bobSink} {
		events := sink.received()
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, models.EventDeleted, last.Type)
		assert.Equal(t, []string{m.ID}, last.MessageIDs)
	}
}

func TestDeleteMessagesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")

	_, err := h.engine.DeleteMessages(ctx, alice.ID, nil)
	assert.ErrorIs(t, err, models.ErrNoMessageIDs)

	_, err = h.engine.DeleteMessages(ctx, alice.ID, []string{"not-a-uuid"})
	assert.ErrorIs(t, err, models.ErrInvalidID)

	_, err = h.engine.DeleteMessages(ctx, alice.ID, []string{uuid.NewString()})
	assert.ErrorIs(t, err, models.ErrMessageNotFound)
}

func TestDeleteMessagesRejectsMixedOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")
	bob := h.register(t, "bob", "pw")
	carol := h.register(t, "carol", "pw")

	mine := h.send(t, alice, bob, "mine").Message
	theirs := h.send(t, bob, carol, "theirs").Message

	_, err := h.engine.DeleteMessages(ctx, alice.ID, []string{mine.ID, theirs.ID})
	assert.ErrorIs(t, err, models.ErrNotParticipant)

	got, err := h.store.GetMessages(ctx, []string{mine.ID, theirs.ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeleteAccountCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw1")
	bob := h.register(t, "bob", "pw2")
	carol := h.register(t, "carol", "pw3")

	h.send(t, alice, bob, "a->b")
	h.send(t, bob, alice, "b->a")
	h.send(t, carol, bob, "c->b")

	aliceSink := &testSink{}
	h.presence.Connect(alice.ID, aliceSink)

	_, err := h.engine.DeleteAccount(ctx, auth.CredentialsRequest{Email: "alice@x.com", Password: "wrong"})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	deleted, err := h.engine.DeleteAccount(ctx, auth.CredentialsRequest{Email: "alice@x.com", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, deleted.ID)
	assert.False(t, h.presence.IsOnline(alice.ID))
	assert.True(t, aliceSink.isClosed())

	recent, err := h.chats.Recent(ctx, bob.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, recent.Items, 1)
	assert.Equal(t, carol.ID, recent.Items[0].PeerID)

	_, err = h.engine.Send(ctx, bob.ID, alice.ID, "anyone?")
	assert.ErrorIs(t, err, models.ErrInvalidRecipient)

	_, err = h.engine.DeleteAccount(ctx, auth.CredentialsRequest{Email: "alice@x.com", Password: "pw1"})
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	h.publisher.AssertCalled(t, "Publish", mock.Anything, observability.RouteAccountDeleted, mock.Anything, mock.Anything)
}

func TestDeleteAccountRacingSends(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw")
	bob := h.register(t, "bob", "pw")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.engine.Send(ctx, bob.ID, alice.ID, fmt.Sprintf("m%d", i))
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := h.engine.DeleteAccount(ctx, auth.CredentialsRequest{Email: "alice@x.com", Password: "pw"})
		assert.NoError(t, err)
	}()
	wg.Wait()

	latest, err := h.store.LatestPerPeer(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, latest, "no message may outlive its participant")
}

func TestRegisterPublishesEvent(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "pw")
	h.publisher.AssertCalled(t, "Publish", mock.Anything, observability.RouteAccountCreated, mock.Anything, mock.Anything)

	_, err := h.engine.Register(context.Background(), auth.CreateAccountRequest{Email: "alice@x.com", Username: "other", Password: "pw"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestConversationClock(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 123456789, time.UTC)
	c := newConversationClock(func() time.Time { return fixed })

	var stamps []time.Time
	for i := 0; i < 3; i++ {
		tk := c.acquire("b", "a")
		stamps = append(stamps, tk.At)
		tk.commit()
		tk.release()
	}
	assert.Equal(t, fixed.Truncate(time.Millisecond), stamps[0])
	assert.Equal(t, stamps[0].Add(time.Millisecond), stamps[1])
	assert.Equal(t, stamps[0].Add(2*time.Millisecond), stamps[2])

	// an uncommitted tick does not advance the clock
	tk := c.acquire("a", "b")
	tk.release()
	tk = c.acquire("a", "b")
	assert.Equal(t, stamps[2].Add(time.Millisecond), tk.At)
	tk.release()

	other := c.acquire("a", "c")
	assert.False(t, other.At.Before(fixed.Truncate(time.Millisecond)))
	other.release()
}

func TestConversationClockSharedStripe(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newConversationClock(func() time.Time { return fixed })

	// find a second conversation that lands on the same stripe as a|b
	want := stripeOf(conversationKey("a", "b"), clockStripes)
	peer := ""
	for i := 0; peer == ""; i++ {
		if id := fmt.Sprintf("p%d", i); stripeOf(conversationKey("a", id), clockStripes) == want {
			peer = id
		}
	}

	last := map[string]time.Time{}
	for i := 0; i < 20; i++ {
		to := "b"
		if i%3 == 0 {
			to = peer
		}
		tk := c.acquire("a", to)
		if prev, ok := last[to]; ok {
			assert.True(t, tk.At.After(prev), "conversation a|%s went backwards", to)
		}
		last[to] = tk.At
		tk.commit()
		tk.release()
	}

	// ordering survives many unrelated conversations
	for i := 0; i < 10000; i++ {
		tk := c.acquire("x", uuid.NewString())
		tk.commit()
		tk.release()
	}
	tk := c.acquire("a", "b")
	assert.True(t, tk.At.After(last["b"]))
	tk.release()
}

func TestLocksSameStripe(t *testing.T) {
	var l accountLocks
	done := make(chan struct{})
	go func() {
		unlock := l.rlockPair("x", "x")
		unlock()
		unlock = l.lock("x")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking the same account twice deadlocked")
	}
}

// flakyStore wraps the memory store with hooks that run in place of the real calls.
type flakyStore struct {
	*memory.Store
	onAppend func(ctx context.Context, msg models.Message) error
	onFetch  func(ctx context.Context, recipientID, senderID string, limit int) ([]models.Message, error)
}

func (f *flakyStore) AppendMessage(ctx context.Context, msg models.Message) error {
	if f.onAppend != nil {
		return f.onAppend(ctx, msg)
	}
	return f.Store.AppendMessage(ctx, msg)
}

func (f *flakyStore) FetchUnreadAndMark(ctx context.Context, recipientID, senderID string, limit int) ([]models.Message, error) {
	if f.onFetch != nil {
		return f.onFetch(ctx, recipientID, senderID, limit)
	}
	return f.Store.FetchUnreadAndMark(ctx, recipientID, senderID, limit)
}

func (h *harness) withMessages(ms *flakyStore) *Engine {
	return New(h.directory, ms, h.presence, h.publisher, zap.NewNop(), h.engine.opts)
}

func TestSendReportsVanishedSender(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw1")
	bob := h.register(t, "bob", "pw2")

	ms := &flakyStore{Store: h.store}
	ms.onAppend = func(ctx context.Context, msg models.Message) error {
		_, err := h.store.DeleteAccount(ctx, msg.SenderID)
		require.NoError(t, err)
		return h.store.AppendMessage(ctx, msg)
	}
	_, err := h.withMessages(ms).Send(ctx, alice.ID, bob.ID, "hello")
	assert.ErrorIs(t, err, models.ErrSenderNotFound)

	carol := h.register(t, "carol", "pw3")
	ms.onAppend = func(ctx context.Context, msg models.Message) error {
		_, err := h.store.DeleteAccount(ctx, msg.RecipientID)
		require.NoError(t, err)
		return h.store.AppendMessage(ctx, msg)
	}
	_, err = h.withMessages(ms).Send(ctx, bob.ID, carol.ID, "hello")
	assert.ErrorIs(t, err, models.ErrInvalidRecipient)
}

func TestFetchUnreadKeepsClaimedOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice", "pw1")
	bob := h.register(t, "bob", "pw2")
	for i := 0; i < 3; i++ {
		h.send(t, alice, bob, fmt.Sprintf("m%d", i))
	}

	lost := errors.New("connection reset")
	ms := &flakyStore{Store: h.store}
	ms.onFetch = func(ctx context.Context, recipientID, senderID string, limit int) ([]models.Message, error) {
		msgs, err := h.store.FetchUnreadAndMark(ctx, recipientID, senderID, 1)
		require.NoError(t, err)
		return msgs, lost
	}
	engine := h.withMessages(ms)

	msgs, err := engine.FetchUnread(ctx, bob.ID, alice.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"m0"}, contents(msgs))

	n, err := h.engine.UnreadCount(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ms.onFetch = func(context.Context, string, string, int) ([]models.Message, error) {
		return nil, lost
	}
	_, err = engine.FetchUnread(ctx, bob.ID, alice.ID, 10)
	assert.ErrorIs(t, err, lost)
}
