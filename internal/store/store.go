// Package store defines the persistence contract shared by every backend.
//
// Implementations must make CreateAccount atomic with respect to email and
// username uniqueness, make DeleteAccount remove the account together with
// every message it participates in, and make FetchUnreadAndMark hand each
// unread message to at most one caller.
package store

import (
	"context"
	"time"

	"chat-engine/internal/models"
)

// AccountStore persists accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acc models.Account) error
	GetAccount(ctx context.Context, id string) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)
	GetAccounts(ctx context.Context, ids []string) ([]models.Account, error)
	// ListAccounts returns accounts ordered by id together with the total count.
	ListAccounts(ctx context.Context, offset, limit int) ([]models.Account, int, error)
	// SearchAccounts matches usernames containing substr, case-insensitively, ordered by username then id.
	SearchAccounts(ctx context.Context, substr, excludeID string, offset, limit int) ([]models.Account, int, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	// DeleteAccount removes the account and its messages and returns how many messages went with it.
	DeleteAccount(ctx context.Context, id string) (int64, error)
}

// MessageStore persists messages.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg models.Message) error
	GetMessages(ctx context.Context, ids []string) ([]models.Message, error)
	// Conversation returns a newest-first slice of the messages between a and b and the total count.
	Conversation(ctx context.Context, a, b string, offset, limit int) ([]models.Message, int, error)
	UnreadCount(ctx context.Context, recipientID, senderID string) (int, error)
	// FetchUnreadAndMark marks up to limit unread messages from senderID to recipientID as read
	// and returns them oldest first. Messages returned alongside an error are already marked read.
	FetchUnreadAndMark(ctx context.Context, recipientID, senderID string, limit int) ([]models.Message, error)
	// LatestPerPeer returns the newest message of every conversation accountID takes part in.
	LatestPerPeer(ctx context.Context, accountID string) ([]models.Message, error)
	DeleteMessages(ctx context.Context, ids []string) (int64, error)
}

// Store is a complete backend.
type Store interface {
	AccountStore
	MessageStore
	Ping(ctx context.Context) error
	Close() error
}
