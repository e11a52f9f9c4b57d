package models

import "time"

// Message is a single text message between two accounts.
type Message struct {
	ID          string    `db:"id" json:"id"`
	SenderID    string    `db:"sender_id" json:"sender_id"`
	RecipientID string    `db:"recipient_id" json:"recipient_id"`
	Content     string    `db:"content" json:"content"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	IsRead      bool      `db:"is_read" json:"is_read"`
}

// PeerOf returns the other participant of the message relative to accountID.
func (m Message) PeerOf(accountID string) string {
	if m.SenderID == accountID {
		return m.RecipientID
	}
	return m.SenderID
}

// Involves reports whether accountID is the sender or the recipient.
func (m Message) Involves(accountID string) bool {
	return m.SenderID == accountID || m.RecipientID == accountID
}

// Event types pushed to live sessions.
const (
	EventMessage = "message"
	EventDeleted = "deleted"
)

// ChatEvent is pushed through live sessions.
type ChatEvent struct {
	Type       string   `json:"type"`
	Message    *Message `json:"message,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// Delivery is the outcome of a send. Delivered reports whether the recipient's
// live session accepted the message; it stays unread either way.
type Delivery struct {
	Message   Message `json:"message"`
	Delivered bool    `json:"delivered"`
}
