// Package memory is an in-process store backend guarded by a single lock.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

// Store keeps accounts and messages in maps. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	accounts   map[string]models.Account
	byEmail    map[string]string
	byUsername map[string]string
	messages   map[string]models.Message
	closed     bool
}

var _ store.Store = (*Store)(nil)

// New constructs Store.
func New() *Store {
	return &Store{
		accounts:   make(map[string]models.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		messages:   make(map[string]models.Message),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrNotConnected
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, acc models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrNotConnected
	}
	if _, ok := s.byEmail[acc.Email]; ok {
		return store.ErrDuplicateEmail
	}
	if _, ok := s.byUsername[acc.Username]; ok {
		return store.ErrDuplicateUsername
	}
	s.accounts[acc.ID] = acc
	s.byEmail[acc.Email] = acc.ID
	s.byUsername[acc.Username] = acc.ID
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return acc, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return models.Account{}, store.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) GetAccounts(ctx context.Context, ids []string) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := s.accounts[id]; ok {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (s *Store) ListAccounts(ctx context.Context, offset, limit int) ([]models.Account, int, error) {
	s.mu.RLock()
	all := make([]models.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		all = append(all, acc)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return window(all, offset, limit), len(all), nil
}

func (s *Store) SearchAccounts(ctx context.Context, substr, excludeID string, offset, limit int) ([]models.Account, int, error) {
	needle := strings.ToLower(substr)

	s.mu.RLock()
	var matches []models.Account
	for _, acc := range s.accounts {
		if acc.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(acc.Username), needle) {
			matches = append(matches, acc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Username != matches[j].Username {
			return matches[i].Username < matches[j].Username
		}
		return matches[i].ID < matches[j].ID
	})
	return window(matches, offset, limit), len(matches), nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	acc.LastLogin = &at
	s.accounts[id] = acc
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	delete(s.accounts, id)
	delete(s.byEmail, acc.Email)
	delete(s.byUsername, acc.Username)

	var removed int64
	for mid, msg := range s.messages {
		if msg.Involves(id) {
			delete(s.messages, mid)
			removed++
		}
	}
	return removed, nil
}
