package mongostore

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

func (s *Store) CreateAccount(ctx context.Context, acc models.Account) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	_, err := s.accounts.InsertOne(ctx, accountDoc{
		ID:           acc.ID,
		Email:        acc.Email,
		Username:     acc.Username,
		Folded:       strings.ToLower(acc.Username),
		PasswordHash: acc.PasswordHash,
		CreatedAt:    acc.CreatedAt,
	})
	return translate(err)
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": id})
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	return s.findAccount(ctx, bson.M{"email": email})
}

func (s *Store) findAccount(ctx context.Context, filter bson.M) (models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var doc accountDoc
	if err := s.accounts.FindOne(ctx, filter).Decode(&doc); err != nil {
		return models.Account{}, translate(err)
	}
	return doc.model(), nil
}

func (s *Store) GetAccounts(ctx context.Context, ids []string) ([]models.Account, error) {
	if len(ids) == 0 {
		return []models.Account{}, nil
	}
	return s.findAccounts(ctx, bson.M{"_id": bson.M{"$in": ids}}, mongoopts.Find())
}

func (s *Store) ListAccounts(ctx context.Context, offset, limit int) ([]models.Account, int, error) {
	return s.pageAccounts(ctx, bson.M{}, bson.D{{Key: "_id", Value: 1}}, offset, limit)
}

func (s *Store) SearchAccounts(ctx context.Context, substr, excludeID string, offset, limit int) ([]models.Account, int, error) {
	filter := bson.M{
		"_id":      bson.M{"$ne": excludeID},
		"username_folded": bson.M{"$regex": escapeRegex(strings.ToLower(substr))},
	}
	return s.pageAccounts(ctx, filter, bson.D{{Key: "username", Value: 1}, {Key: "_id", Value: 1}}, offset, limit)
}

func (s *Store) pageAccounts(ctx context.Context, filter bson.M, sort bson.D, offset, limit int) ([]models.Account, int, error) {
	countCtx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	total, err := s.accounts.CountDocuments(countCtx, filter)
	cancel()
	if err != nil {
		return nil, 0, translate(err)
	}

	opts := mongoopts.Find().SetSort(sort).SetSkip(int64(offset)).SetLimit(int64(limit))
	accs, err := s.findAccounts(ctx, filter, opts)
	return accs, int(total), err
}

func (s *Store) findAccounts(ctx context.Context, filter bson.M, opts *mongoopts.FindOptionsBuilder) ([]models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	cursor, err := s.accounts.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err)
	}
	var docs []accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translate(err)
	}
	out := make([]models.Account, len(docs))
	for i, d := range docs {
		out[i] = d.model()
	}
	return out, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	res, err := s.accounts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_login": at}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteAccount removes messages before the account so an interrupted call can be retried.
func (s *Store) DeleteAccount(ctx context.Context, id string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if _, err := s.findAccount(ctx, bson.M{"_id": id}); err != nil {
		return 0, err
	}
	msgs, err := s.messages.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"sender_id": id},
		bson.M{"recipient_id": id},
	}})
	if err != nil {
		return 0, translate(err)
	}
	res, err := s.accounts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, translate(err)
	}
	if res.DeletedCount == 0 {
		return 0, store.ErrNotFound
	}
	return msgs.DeletedCount, nil
}
