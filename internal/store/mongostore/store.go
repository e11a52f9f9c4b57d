// Package mongostore is the MongoDB backend.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

var regexMetaChars = regexp.MustCompile(`[\\^$.|?*+()[\]{}]`)

func escapeRegex(s string) string {
	return regexMetaChars.ReplaceAllString(s, `\$0`)
}

// Store implements store.Store on two collections, accounts and messages.
type Store struct {
	client   *mongo.Client
	accounts *mongo.Collection
	messages *mongo.Collection
	opts     *options
	logger   *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, verifies the server and ensures indexes.
func Open(ctx context.Context, uri string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(mongoopts.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	s, err := New(ctx, client, opts...)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(ctx context.Context, client *mongo.Client, opts ...Option) (*Store, error) {
	o := newOptions(opts...)
	s := &Store{client: client, opts: o, logger: o.logger}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(o.database)
	s.accounts = db.Collection("accounts")
	s.messages = db.Collection("messages")
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	s.logger.Info("connected to MongoDB", zap.String("database", o.database))
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: mongoopts.Index().SetUnique(true).SetName("email_unique")},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: mongoopts.Index().SetUnique(true).SetName("username_unique")},
	})
	if err != nil {
		return err
	}
	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

type accountDoc struct {
	ID           string     `bson:"_id"`
	Email        string     `bson:"email"`
	Username     string     `bson:"username"`
	Folded       string     `bson:"username_folded"`
	PasswordHash string     `bson:"password_hash"`
	CreatedAt    time.Time  `bson:"created_at"`
	LastLogin    *time.Time `bson:"last_login,omitempty"`
}

func (d accountDoc) model() models.Account {
	acc := models.Account{
		ID:           d.ID,
		Email:        d.Email,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
	}
	if d.LastLogin != nil {
		at := d.LastLogin.UTC()
		acc.LastLogin = &at
	}
	return acc
}

type messageDoc struct {
	ID          string    `bson:"_id"`
	SenderID    string    `bson:"sender_id"`
	RecipientID string    `bson:"recipient_id"`
	Content     string    `bson:"content"`
	CreatedAt   time.Time `bson:"created_at"`
	IsRead      bool      `bson:"is_read"`
}

func (d messageDoc) model() models.Message {
	return models.Message{
		ID:          d.ID,
		SenderID:    d.SenderID,
		RecipientID: d.RecipientID,
		Content:     d.Content,
		CreatedAt:   d.CreatedAt.UTC(),
		IsRead:      d.IsRead,
	}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case errors.Is(err, mongo.ErrClientDisconnected):
		return store.ErrNotConnected
	case mongo.IsDuplicateKeyError(err):
		if strings.Contains(err.Error(), "email_unique") {
			return store.ErrDuplicateEmail
		}
		if strings.Contains(err.Error(), "username_unique") {
			return store.ErrDuplicateUsername
		}
	}
	return err
}
