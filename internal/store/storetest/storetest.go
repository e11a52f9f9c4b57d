// Package storetest holds the behavioural checks every store backend must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

// Factory returns an empty backend. It must register its own cleanup.
type Factory func(t *testing.T) store.Store

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the full suite against backends built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAccountUniqueness", func(t *testing.T) { testCreateAccountUniqueness(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("Lookups", func(t *testing.T) { testLookups(t, newStore(t)) })
	t.Run("ListAccounts", func(t *testing.T) { testListAccounts(t, newStore(t)) })
	t.Run("SearchAccounts", func(t *testing.T) { testSearchAccounts(t, newStore(t)) })
	t.Run("Conversation", func(t *testing.T) { testConversation(t, newStore(t)) })
	t.Run("AppendRequiresAccounts", func(t *testing.T) { testAppendRequiresAccounts(t, newStore(t)) })
	t.Run("FetchUnreadAndMark", func(t *testing.T) { testFetchUnreadAndMark(t, newStore(t)) })
	t.Run("ConcurrentFetch", func(t *testing.T) { testConcurrentFetch(t, newStore(t)) })
	t.Run("LatestPerPeer", func(t *testing.T) { testLatestPerPeer(t, newStore(t)) })
	t.Run("DeleteMessages", func(t *testing.T) { testDeleteMessages(t, newStore(t)) })
	t.Run("DeleteAccountCascades", func(t *testing.T) { testDeleteAccountCascades(t, newStore(t)) })
}

func account(username string) models.Account {
	return models.Account{
		ID:           uuid.NewString(),
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: "$argon2id$hash",
		CreatedAt:    epoch,
	}
}

func mustAccount(t *testing.T, s store.Store, username string) models.Account {
	t.Helper()
	acc := account(username)
	require.NoError(t, s.CreateAccount(context.Background(), acc))
	return acc
}

func mustMessage(t *testing.T, s store.Store, from, to models.Account, content string, at time.Time) models.Message {
	t.Helper()
	msg := models.Message{
		ID:          uuid.Must(uuid.NewV7()).String(),
		SenderID:    from.ID,
		RecipientID: to.ID,
		Content:     content,
		CreatedAt:   at,
	}
	require.NoError(t, s.AppendMessage(context.Background(), msg))
	return msg
}

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func testCreateAccountUniqueness(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")

	dupEmail := account("alice2")
	dupEmail.Email = alice.Email
	assert.ErrorIs(t, s.CreateAccount(ctx, dupEmail), store.ErrDuplicateEmail)

	dupName := account("alice")
	dupName.Email = "other@example.com"
	assert.ErrorIs(t, s.CreateAccount(ctx, dupName), store.ErrDuplicateUsername)

	_, err := s.GetAccount(ctx, dupEmail.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers = 16

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc := account("racer" + uuid.NewString()[:8])
			acc.Email = "race@example.com"
			errs <- s.CreateAccount(ctx, acc)
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, store.ErrDuplicateEmail)
	}
	assert.Equal(t, 1, succeeded)
}

func testLookups(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")
	bob := mustAccount(t, s, "bob")

	got, err := s.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, alice.PasswordHash, got.PasswordHash)
	assert.Nil(t, got.LastLogin)

	_, err = s.GetAccountByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	login := epoch.Add(time.Hour)
	require.NoError(t, s.TouchLastLogin(ctx, alice.ID, login))
	got, err = s.GetAccount(ctx, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.True(t, login.Equal(*got.LastLogin))

	assert.ErrorIs(t, s.TouchLastLogin(ctx, uuid.NewString(), login), store.ErrNotFound)

	many, err := s.GetAccounts(ctx, []string{alice.ID, bob.ID, uuid.NewString()})
	require.NoError(t, err)
	assert.Len(t, many, 2)
}

func testListAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []string
	for _, name := range []string{"carol", "alice", "bob", "dave", "erin"} {
		ids = append(ids, mustAccount(t, s, name).ID)
	}

	first, total, err := s.ListAccounts(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, first, 2)
	assert.Less(t, first[0].ID, first[1].ID)

	last, _, err := s.ListAccounts(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Greater(t, last[0].ID, first[1].ID)

	empty, total, err := s.ListAccounts(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, 5, total)
}

func testSearchAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	me := mustAccount(t, s, "annabelle")
	mustAccount(t, s, "Anna")
	mustAccount(t, s, "hannah")
	mustAccount(t, s, "bob")
	mustAccount(t, s, "50%_off")

	got, total, err := s.SearchAccounts(ctx, "ANN", me.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	var names []string
	for _, acc := range got {
		names = append(names, acc.Username)
	}
	assert.ElementsMatch(t, []string{"Anna", "hannah"}, names)

	page, total, err := s.SearchAccounts(ctx, "ann", me.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 1)

	got, total, err = s.SearchAccounts(ctx, "%_", me.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "50%_off", got[0].Username)

	got, total, err = s.SearchAccounts(ctx, "zzz", me.ID, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, got)

	// case folding covers non-ASCII letters too
	mustAccount(t, s, "Élodie")
	mustAccount(t, s, "renée")
	got, total, err = s.SearchAccounts(ctx, "éLO", me.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "Élodie", got[0].Username)

	got, total, err = s.SearchAccounts(ctx, "RENÉE", me.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "renée", got[0].Username)
}

func testConversation(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")
	bob := mustAccount(t, s, "bob")
	carol := mustAccount(t, s, "carol")

	mustMessage(t, s, alice, bob, "m1", epoch)
	mustMessage(t, s, bob, alice, "m2", epoch.Add(time.Millisecond))
	mustMessage(t, s, alice, bob, "m3", epoch.Add(2*time.Millisecond))
	mustMessage(t, s, alice, carol, "other", epoch.Add(3*time.Millisecond))

	page, total, err := s.Conversation(ctx, bob.ID, alice.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"m3", "m2"}, contents(page))

	page, _, err = s.Conversation(ctx, alice.ID, bob.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, contents(page))
	assert.True(t, epoch.Equal(page[0].CreatedAt))

	got, err := s.GetMessages(ctx, []string{page[0].ID, uuid.NewString()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].Content)
	assert.False(t, got[0].IsRead)
}

func testAppendRequiresAccounts(t *testing.T, s store.Store) {
	alice := mustAccount(t, s, "alice")
	ghost := account("ghost")

	err := s.AppendMessage(context.Background(), models.Message{
		ID:          uuid.NewString(),
		SenderID:    alice.ID,
		RecipientID: ghost.ID,
		Content:     "hello?",
		CreatedAt:   epoch,
	})
	assert.ErrorIs(t, err, store.ErrMissingAccount)
}

func testFetchUnreadAndMark(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")
	bob := mustAccount(t, s, "bob")

	for i, c := range []string{"u1", "u2", "u3"} {
		mustMessage(t, s, alice, bob, c, epoch.Add(time.Duration(i)*time.Millisecond))
	}
	mustMessage(t, s, bob, alice, "reply", epoch.Add(10*time.Millisecond))

	n, err := s.UnreadCount(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.FetchUnreadAndMark(ctx, bob.ID, alice.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, contents(got))
	for _, m := range got {
		assert.True(t, m.IsRead)
	}

	n, err = s.UnreadCount(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = s.FetchUnreadAndMark(ctx, bob.ID, alice.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, contents(got))

	got, err = s.FetchUnreadAndMark(ctx, bob.ID, alice.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err = s.UnreadCount(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testConcurrentFetch(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")
	bob := mustAccount(t, s, "bob")

	const total = 40
	for i := 0; i < total; i++ {
		mustMessage(t, s, alice, bob, uuid.NewString(), epoch.Add(time.Duration(i)*time.Millisecond))
	}

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got, err := s.FetchUnreadAndMark(ctx, bob.ID, alice.ID, 3)
				if !assert.NoError(t, err) || len(got) == 0 {
					return
				}
				mu.Lock()
				for _, m := range got {
					seen[m.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s returned %d times", id, n)
	}
}

func testLatestPerPeer(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")
	bob := mustAccount(t, s, "bob")
	carol := mustAccount(t, s, "carol")

	mustMessage(t, s, alice, bob, "old", epoch)
	mustMessage(t, s, bob, alice, "newest-bob", epoch.Add(2*time.Millisecond))
	mustMessage(t, s, carol, alice, "carol", epoch.Add(time.Millisecond))
	mustMessage(t, s, bob, carol, "not mine", epoch.Add(5*time.Millisecond))

	latest, err := s.LatestPerPeer(ctx, alice.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"newest-bob", "carol"}, contents(latest))

	latest, err = s.LatestPerPeer(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func testDeleteMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")
	bob := mustAccount(t, s, "bob")

	m1 := mustMessage(t, s, alice, bob, "m1", epoch)
	m2 := mustMessage(t, s, alice, bob, "m2", epoch.Add(time.Millisecond))

	n, err := s.DeleteMessages(ctx, []string{m1.ID, uuid.NewString()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	page, total, err := s.Conversation(ctx, alice.ID, bob.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, m2.ID, page[0].ID)

	n, err = s.DeleteMessages(ctx, []string{m2.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	latest, err := s.LatestPerPeer(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func testDeleteAccountCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustAccount(t, s, "alice")
	bob := mustAccount(t, s, "bob")
	carol := mustAccount(t, s, "carol")

	mustMessage(t, s, alice, bob, "a->b", epoch)
	mustMessage(t, s, bob, alice, "b->a", epoch.Add(time.Millisecond))
	mustMessage(t, s, bob, carol, "b->c", epoch.Add(2*time.Millisecond))

	removed, err := s.DeleteAccount(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	_, err = s.GetAccount(ctx, alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetAccountByEmail(ctx, alice.Email)
	assert.ErrorIs(t, err, store.ErrNotFound)

	latest, err := s.LatestPerPeer(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b->c"}, contents(latest))

	_, err = s.DeleteAccount(ctx, alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// the freed email and username can be registered again
	again := account("alice")
	require.NoError(t, s.CreateAccount(ctx, again))
}
