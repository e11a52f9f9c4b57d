package delivery

import "time"

// Published event payloads. Message content never leaves the engine.

type MessageSentEvent struct {
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	CreatedAt   time.Time `json:"created_at"`
	Delivered   bool      `json:"delivered"`
}

type MessagesReadEvent struct {
	ReaderID   string   `json:"reader_id"`
	SenderID   string   `json:"sender_id"`
	MessageIDs []string `json:"message_ids"`
}

type MessagesDeletedEvent struct {
	RequesterID string   `json:"requester_id"`
	MessageIDs  []string `json:"message_ids"`
}

type AccountEvent struct {
	AccountID       string `json:"account_id"`
	Username        string `json:"username"`
	MessagesRemoved int64  `json:"messages_removed,omitempty"`
}
