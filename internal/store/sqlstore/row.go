package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"chat-engine/internal/models"
)

// scanTime accepts native timestamps and the text form SQLite returns when a
// column's declared type is lost, as in RETURNING clauses and subqueries.
type scanTime struct {
	time.Time
}

func (t *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (t *scanTime) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

type messageRow struct {
	ID          string   `db:"id"`
	SenderID    string   `db:"sender_id"`
	RecipientID string   `db:"recipient_id"`
	Content     string   `db:"content"`
	CreatedAt   scanTime `db:"created_at"`
	IsRead      bool     `db:"is_read"`
}

func (r messageRow) model() models.Message {
	return models.Message{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Content:     r.Content,
		CreatedAt:   r.CreatedAt.Time,
		IsRead:      r.IsRead,
	}
}

func toMessages(rows []messageRow) []models.Message {
	out := make([]models.Message, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out
}
