package models

import "time"

// LastMessage is the snapshot of the newest message of a conversation.
type LastMessage struct {
	MessageID string    `json:"message_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	IsFromMe  bool      `json:"is_from_me"`
}

// ChatSummary is one entry of an account's recent chats.
type ChatSummary struct {
	PeerID       string      `json:"peer_id"`
	PeerUsername string      `json:"peer_username"`
	UnreadCount  int         `json:"unread_count"`
	LastMessage  LastMessage `json:"last_message"`
}

// SummaryFor builds the chat entry for viewerID from the newest message of the conversation.
func SummaryFor(viewerID string, latest Message) ChatSummary {
	return ChatSummary{
		PeerID: latest.PeerOf(viewerID),
		LastMessage: LastMessage{
			MessageID: latest.ID,
			Content:   latest.Content,
			CreatedAt: latest.CreatedAt,
			IsFromMe:  latest.SenderID == viewerID,
		},
	}
}
