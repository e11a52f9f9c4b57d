package memory

import (
	"context"

	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

func (s *Store) AppendMessage(ctx context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrNotConnected
	}
	_, senderOK := s.accounts[msg.SenderID]
	_, recipientOK := s.accounts[msg.RecipientID]
	if !senderOK || !recipientOK {
		return store.ErrMissingAccount
	}
	s.messages[msg.ID] = msg
	return nil
}

func (s *Store) GetMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *Store) Conversation(ctx context.Context, a, b string, offset, limit int) ([]models.Message, int, error) {
	s.mu.RLock()
	var conv []models.Message
	for _, msg := range s.messages {
		if between(msg, a, b) {
			conv = append(conv, msg)
		}
	}
	s.mu.RUnlock()

	store.SortNewestFirst(conv)
	return window(conv, offset, limit), len(conv), nil
}

func (s *Store) UnreadCount(ctx context.Context, recipientID, senderID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, msg := range s.messages {
		if isUnread(msg, recipientID, senderID) {
			n++
		}
	}
	return n, nil
}

func (s *Store) FetchUnreadAndMark(ctx context.Context, recipientID, senderID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var unread []models.Message
	for _, msg := range s.messages {
		if isUnread(msg, recipientID, senderID) {
			unread = append(unread, msg)
		}
	}
	store.SortOldestFirst(unread)
	if len(unread) > limit {
		unread = unread[:limit]
	}
	for i := range unread {
		unread[i].IsRead = true
		s.messages[unread[i].ID] = unread[i]
	}
	return unread, nil
}

func (s *Store) LatestPerPeer(ctx context.Context, accountID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[string]models.Message)
	for _, msg := range s.messages {
		if !msg.Involves(accountID) {
			continue
		}
		peer := msg.PeerOf(accountID)
		if cur, ok := latest[peer]; !ok || store.OlderThan(cur, msg) {
			latest[peer] = msg
		}
	}
	out := make([]models.Message, 0, len(latest))
	for _, msg := range latest {
		out = append(out, msg)
	}
	return out, nil
}

func (s *Store) DeleteMessages(ctx context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, id := range ids {
		if _, ok := s.messages[id]; ok {
			delete(s.messages, id)
			removed++
		}
	}
	return removed, nil
}

func between(msg models.Message, a, b string) bool {
	return (msg.SenderID == a && msg.RecipientID == b) || (msg.SenderID == b && msg.RecipientID == a)
}

func isUnread(msg models.Message, recipientID, senderID string) bool {
	return !msg.IsRead && msg.RecipientID == recipientID && msg.SenderID == senderID
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
