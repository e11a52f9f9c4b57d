package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

// AppendMessage checks that both participants exist; callers serialize this against account deletion.
func (s *Store) AppendMessage(ctx context.Context, msg models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	want := int64(2)
	if msg.SenderID == msg.RecipientID {
		want = 1
	}
	n, err := s.accounts.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": bson.A{msg.SenderID, msg.RecipientID}}})
	if err != nil {
		return translate(err)
	}
	if n != want {
		return store.ErrMissingAccount
	}

	_, err = s.messages.InsertOne(ctx, messageDoc{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
		IsRead:      msg.IsRead,
	})
	return translate(err)
}

func (s *Store) GetMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	return s.findMessages(ctx, bson.M{"_id": bson.M{"$in": ids}}, mongoopts.Find())
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "recipient_id": b},
		bson.M{"sender_id": b, "recipient_id": a},
	}}
}

func (s *Store) Conversation(ctx context.Context, a, b string, offset, limit int) ([]models.Message, int, error) {
	filter := pairFilter(a, b)

	countCtx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	total, err := s.messages.CountDocuments(countCtx, filter)
	cancel()
	if err != nil {
		return nil, 0, translate(err)
	}

	opts := mongoopts.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	msgs, err := s.findMessages(ctx, filter, opts)
	return msgs, int(total), err
}

func (s *Store) UnreadCount(ctx context.Context, recipientID, senderID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	n, err := s.messages.CountDocuments(ctx, unreadFilter(recipientID, senderID))
	return int(n), translate(err)
}

func unreadFilter(recipientID, senderID string) bson.M {
	return bson.M{"recipient_id": recipientID, "sender_id": senderID, "is_read": false}
}

// FetchUnreadAndMark claims messages one at a time; each FindOneAndUpdate is
// atomic on its document, so two callers can never claim the same message.
// Messages claimed before a failure are already marked read, so they are
// returned and the failure is only reported when nothing was claimed.
func (s *Store) FetchUnreadAndMark(ctx context.Context, recipientID, senderID string, limit int) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	opts := mongoopts.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(mongoopts.After)
	update := bson.M{"$set": bson.M{"is_read": true}}

	out, err := claimUpTo(limit, func() (models.Message, bool, error) {
		var doc messageDoc
		err := s.messages.FindOneAndUpdate(ctx, unreadFilter(recipientID, senderID), update, opts).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Message{}, false, nil
		}
		if err != nil {
			return models.Message{}, false, translate(err)
		}
		return doc.model(), true, nil
	})
	if err != nil && len(out) > 0 {
		s.logger.Warn("fetch unread stopped early",
			zap.String("recipient_id", recipientID),
			zap.Int("claimed", len(out)),
			zap.Error(err),
		)
		return out, nil
	}
	return out, err
}

// claimUpTo calls claim until it reports no more messages, fails, or limit
// messages were claimed. It returns whatever was claimed along with the error.
func claimUpTo(limit int, claim func() (models.Message, bool, error)) ([]models.Message, error) {
	out := make([]models.Message, 0, limit)
	for len(out) < limit {
		msg, ok, err := claim()
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Store) LatestPerPeer(ctx context.Context, accountID string) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender_id": accountID},
			bson.M{"recipient_id": accountID},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$sender_id", accountID}},
				"$recipient_id",
				"$sender_id",
			}},
			"doc": bson.M{"$first": "$$ROOT"},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$doc"}}},
	}

	cursor, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate(err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translate(err)
	}
	return toMessages(docs), nil
}

func (s *Store) DeleteMessages(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	res, err := s.messages.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, translate(err)
	}
	return res.DeletedCount, nil
}

func (s *Store) findMessages(ctx context.Context, filter bson.M, opts *mongoopts.FindOptionsBuilder) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translate(err)
	}
	return toMessages(docs), nil
}

func toMessages(docs []messageDoc) []models.Message {
	out := make([]models.Message, len(docs))
	for i, d := range docs {
		out[i] = d.model()
	}
	return out
}
