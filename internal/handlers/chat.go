package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-engine/internal/models"
)

// MessageService sends, reads and deletes messages.
type MessageService interface {
	Send(ctx context.Context, senderID, recipientID, content string) (models.Delivery, error)
	History(ctx context.Context, accountID, peerID string, page int) (models.Page[models.Message], error)
	UnreadCount(ctx context.Context, accountID, peerID string) (int, error)
	FetchUnread(ctx context.Context, accountID, peerID string, limit int) ([]models.Message, error)
	DeleteMessages(ctx context.Context, requesterID string, ids []string) (int64, error)
}

// ChatLister builds the recent chats listing.
type ChatLister interface {
	Recent(ctx context.Context, accountID string, page, size int) (models.Page[models.ChatSummary], error)
}

// ChatHandler manages the authenticated messaging endpoints.
type ChatHandler struct {
	messages MessageService
	chats    ChatLister
	pageSize int
	logger   *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(messages MessageService, chats ChatLister, pageSize int, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		messages: messages,
		chats:    chats,
		pageSize: pageSize,
		logger:   logger,
	}
}

// SendMessage stores a message and pushes it to the recipient when online.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		RecipientID string `json:"recipient_id"`
		Content     string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	d, err := h.messages.Send(c.Request.Context(), callerID(c), req.RecipientID, req.Content)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, gin.H{"data": d.Message, "delivered": d.Delivered})
}

// ListChats returns the caller's conversations, most recent first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	page, err := pageParam(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	chats, err := h.chats.Recent(c.Request.Context(), callerID(c), page, h.pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, pagePayload(chats, "chats"))
}

// GetChatMessages returns one page of the conversation with peer_id, newest first.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	page, err := pageParam(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	msgs, err := h.messages.History(c.Request.Context(), callerID(c), c.Param("peer_id"), page)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, pagePayload(msgs, "messages"))
}

// UnreadCount returns how many messages from peer_id the caller has not fetched.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	n, err := h.messages.UnreadCount(c.Request.Context(), callerID(c), c.Param("peer_id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, gin.H{"unread": n})
}

// FetchUnread hands out unread messages from peer_id, oldest first, and marks them read.
func (h *ChatHandler) FetchUnread(c *gin.Context) {
	var req struct {
		Limit int `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	msgs, err := h.messages.FetchUnread(c.Request.Context(), callerID(c), c.Param("peer_id"), req.Limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respond(c, gin.H{"messages": msgs})
}

// DeleteMessages removes messages the caller took part in.
func (h *ChatHandler) DeleteMessages(c *gin.Context) {
	var req struct {
		MessageIDs []string `json:"message_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	removed, err := h.messages.DeleteMessages(c.Request.Context(), callerID(c), req.MessageIDs)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, gin.H{"deleted": removed})
}
