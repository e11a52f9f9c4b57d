// Package ws serves the websocket endpoint through which connected accounts
// receive live events.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/presence"
	"chat-engine/internal/status"
)

// TokenValidator resolves a session token to an account id.
type TokenValidator interface {
	Validate(raw string) (string, error)
}

// AccountChecker confirms an account still exists.
type AccountChecker interface {
	Get(ctx context.Context, id string) (models.Account, error)
}

// Sessions binds live sinks to accounts.
type Sessions interface {
	Connect(accountID string, sink presence.Sink) bool
	Disconnect(accountID string, sink presence.Sink) bool
}

// Handler upgrades authenticated requests and registers the connection as
// the account's live sink.
type Handler struct {
	tokens   TokenValidator
	accounts AccountChecker
	sessions Sessions
	buffer   int
	logger   *zap.Logger
}

// NewHandler constructs a Handler. buffer bounds the events queued per connection.
func NewHandler(tokens TokenValidator, accounts AccountChecker, sessions Sessions, buffer int, logger *zap.Logger) *Handler {
	return &Handler{
		tokens:   tokens,
		accounts: accounts,
		sessions: sessions,
		buffer:   buffer,
		logger:   logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and serves it until either side closes.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-engine/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	accountID, err := h.tokens.Validate(tokenFromRequest(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": status.Unauthorized, "message": "invalid token"})
		return
	}
	if _, err := h.accounts.Get(ctx, accountID); err != nil {
		st := status.FromError(err)
		c.JSON(st.HTTPStatus(), gin.H{"code": st.Code, "message": st.Message})
		return
	}
	span.SetAttributes(attribute.String("account.id", accountID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		AccountID:   accountID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromContext(ctx),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	cl := newClient(conn, info, h.buffer)
	cl.onOverflow = func() {
		h.logger.Warn("websocket client too slow, dropping", zap.String("account_id", accountID), zap.String("conn_id", info.ConnID))
		observability.IncWSEvent("ws_overflow")
	}

	// Handshake span and request context end with this handler; the session outlives both.
	sessionCtx := context.WithoutCancel(ctx)
	go cl.writeLoop()
	if replaced := h.sessions.Connect(accountID, cl); replaced {
		observability.IncWSEvent("ws_replaced")
	}
	observability.IncWSActive()
	publishWSEvent(sessionCtx, info, "ws_connect", "")

	// The account may have been deleted between the lookup and Connect.
	if _, err := h.accounts.Get(sessionCtx, accountID); errors.Is(err, models.ErrNotFound) {
		cl.Close()
	}

	go h.serve(sessionCtx, cl)
}

func (h *Handler) serve(ctx context.Context, cl *client) {
	err := cl.readLoop()
	reason := err.Error()

	h.sessions.Disconnect(cl.info.AccountID, cl)
	cl.Close()
	observability.DecWSActive()

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		publishWSEvent(ctx, cl.info, "ws_error", reason)
		h.logger.Debug("websocket closed unexpectedly", zap.String("account_id", cl.info.AccountID), zap.Error(err))
	}
	publishWSEvent(ctx, cl.info, "ws_disconnect", reason)
}

func tokenFromRequest(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
