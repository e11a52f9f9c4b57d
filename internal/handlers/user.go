package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/presence"
)

// UserDirectory lists and resolves accounts.
type UserDirectory interface {
	Get(ctx context.Context, id string) (models.Account, error)
	ListPage(ctx context.Context, page, size int) (models.Page[models.PublicAccount], error)
}

// UserSearcher matches usernames by substring.
type UserSearcher interface {
	Usernames(ctx context.Context, pattern string, page int, excludeID string) (models.Page[models.PublicAccount], error)
}

// OnlineChecker reports whether an account holds a live session.
type OnlineChecker interface {
	IsOnline(accountID string) bool
}

// LastSeenReader returns recorded session transitions.
type LastSeenReader interface {
	Status(ctx context.Context, accountID string) (presence.Seen, error)
}

// UserHandler serves account listing, search and presence.
type UserHandler struct {
	users    UserDirectory
	search   UserSearcher
	online   OnlineChecker
	lastSeen LastSeenReader
	pageSize int
	logger   *zap.Logger
}

// NewUserHandler builds a UserHandler. lastSeen may be nil.
func NewUserHandler(users UserDirectory, search UserSearcher, online OnlineChecker, lastSeen LastSeenReader, pageSize int, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:    users,
		search:   search,
		online:   online,
		lastSeen: lastSeen,
		pageSize: pageSize,
		logger:   logger,
	}
}

// List returns one page of accounts.
func (h *UserHandler) List(c *gin.Context) {
	page, err := pageParam(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	users, err := h.users.ListPage(c.Request.Context(), page, h.pageSize)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, pagePayload(users, "users"))
}

// Search matches usernames containing pattern, leaving out the caller.
func (h *UserHandler) Search(c *gin.Context) {
	page, err := pageParam(c)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	users, err := h.search.Usernames(c.Request.Context(), c.Query("pattern"), page, callerID(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, pagePayload(users, "users"))
}

// Presence reports whether an account is online and when it was last seen.
func (h *UserHandler) Presence(c *gin.Context) {
	ctx := c.Request.Context()
	acc, err := h.users.Get(ctx, c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	seen := presence.Seen{Online: h.online.IsOnline(acc.ID)}
	if h.lastSeen != nil {
		recorded, err := h.lastSeen.Status(ctx, acc.ID)
		if err != nil {
			h.logger.Warn("last seen lookup failed", zap.String("account_id", acc.ID), zap.Error(err))
		} else {
			seen.LastSeen = recorded.LastSeen
		}
	}
	respond(c, gin.H{"user": acc.Public(), "presence": seen})
}
