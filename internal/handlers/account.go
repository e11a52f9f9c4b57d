package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-engine/internal/auth"
	"chat-engine/internal/models"
	"chat-engine/internal/telemetry"
)

// AccountService creates and removes accounts.
type AccountService interface {
	Register(ctx context.Context, req auth.CreateAccountRequest) (models.Account, error)
	DeleteAccount(ctx context.Context, req auth.CredentialsRequest) (models.Account, error)
}

// Authenticator checks login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, req auth.CredentialsRequest) (models.Account, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(accountID string) (string, time.Time, error)
}

// AccountHandler serves the unauthenticated account endpoints.
type AccountHandler struct {
	accounts AccountService
	authn    Authenticator
	tokens   TokenIssuer
	audit    *telemetry.AuditEmitter
	logger   *zap.Logger
}

// NewAccountHandler builds an AccountHandler. audit may be nil.
func NewAccountHandler(accounts AccountService, authn Authenticator, tokens TokenIssuer, audit *telemetry.AuditEmitter, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		authn:    authn,
		tokens:   tokens,
		audit:    audit,
		logger:   logger,
	}
}

// Create registers a new account.
func (h *AccountHandler) Create(c *gin.Context) {
	var req auth.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	acc, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "account created", requestIDFromContext(c), &acc.ID)
	respond(c, gin.H{"user": acc.Public()})
}

// Login verifies credentials and issues a session token.
func (h *AccountHandler) Login(c *gin.Context) {
	var req auth.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	acc, err := h.authn.Authenticate(c.Request.Context(), req)
	if err != nil {
		h.audit.Emit(c.Request.Context(), "WARN", "login failed", requestIDFromContext(c), nil)
		fail(c, h.logger, err)
		return
	}

	token, expires, err := h.tokens.Issue(acc.ID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	respond(c, gin.H{
		"user":       acc.Public(),
		"last_login": acc.LastLogin,
		"token":      token,
		"expires_at": expires,
	})
}

// Delete removes the account after re-checking its password.
func (h *AccountHandler) Delete(c *gin.Context) {
	var req auth.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	acc, err := h.accounts.DeleteAccount(c.Request.Context(), req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "account deleted", requestIDFromContext(c), &acc.ID)
	respond(c, gin.H{"user": acc.Public()})
}
