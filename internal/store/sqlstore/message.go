package sqlstore

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

const messageColumns = `id, sender_id, recipient_id, content, created_at, is_read`

func (s *Store) AppendMessage(ctx context.Context, msg models.Message) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.SenderID, msg.RecipientID, msg.Content, msg.CreatedAt, msg.IsRead)
	return translate(err)
}

func (s *Store) GetMessages(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return []models.Message{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+messageColumns+` FROM messages WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, translate(err)
	}
	return toMessages(rows), nil
}

func (s *Store) Conversation(ctx context.Context, a, b string, offset, limit int) ([]models.Message, int, error) {
	const where = ` FROM messages WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)`

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*)`+where), a, b, b, a); err != nil {
		return nil, 0, translate(err)
	}
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+messageColumns+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`),
		a, b, b, a, limit, offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	return toMessages(rows), total, nil
}

func (s *Store) UnreadCount(ctx context.Context, recipientID, senderID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM messages WHERE recipient_id = ? AND sender_id = ? AND is_read = FALSE`),
		recipientID, senderID)
	return n, translate(err)
}

// FetchUnreadAndMark flips the flag in a single conditional UPDATE, so a row
// already claimed by a concurrent caller fails the is_read guard and is skipped.
func (s *Store) FetchUnreadAndMark(ctx context.Context, recipientID, senderID string, limit int) ([]models.Message, error) {
	lock := ""
	if s.dialect == postgres {
		lock = ` FOR UPDATE SKIP LOCKED`
	}
	query := `UPDATE messages SET is_read = TRUE
        WHERE id IN (
            SELECT id FROM messages
            WHERE recipient_id = ? AND sender_id = ? AND is_read = FALSE
            ORDER BY created_at, id
            LIMIT ?` + lock + `
        ) AND is_read = FALSE
        RETURNING ` + messageColumns

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), recipientID, senderID, limit); err != nil {
		return nil, translate(err)
	}
	msgs := toMessages(rows)
	store.SortOldestFirst(msgs)
	return msgs, nil
}

func (s *Store) LatestPerPeer(ctx context.Context, accountID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM (
            SELECT m.*, ROW_NUMBER() OVER (
                PARTITION BY CASE WHEN m.sender_id = ? THEN m.recipient_id ELSE m.sender_id END
                ORDER BY m.created_at DESC, m.id DESC
            ) AS rn
            FROM messages m
            WHERE m.sender_id = ? OR m.recipient_id = ?
        ) ranked
        WHERE rn = 1`

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), accountID, accountID, accountID); err != nil {
		return nil, translate(err)
	}
	return toMessages(rows), nil
}

func (s *Store) DeleteMessages(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM messages WHERE id IN (?)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
