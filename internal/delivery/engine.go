// Package delivery is the message delivery engine. Every message is written
// to the store before the recipient's live session, if any, is notified.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-engine/internal/auth"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/store"
)

// Directory is the account registry the engine relies on.
type Directory interface {
	Create(ctx context.Context, req auth.CreateAccountRequest) (models.Account, error)
	Get(ctx context.Context, id string) (models.Account, error)
	Lookup(ctx context.Context, email string) (models.Account, error)
	Delete(ctx context.Context, req auth.CredentialsRequest) (models.Account, int64, error)
}

// Presence pushes events to live sessions.
type Presence interface {
	Push(accountID string, ev models.ChatEvent) bool
}

// Publisher receives domain events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// Options tunes pagination and fetch bounds.
type Options struct {
	PageSize       int
	MaxUnreadFetch int
}

// Engine orchestrates sends, reads and deletions.
type Engine struct {
	directory Directory
	messages  store.MessageStore
	presence  Presence
	publisher Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	opts      Options

	locks *accountLocks
	clock *conversationClock
}

// New constructs Engine. publisher may be nil.
func New(dir Directory, messages store.MessageStore, presence Presence, publisher Publisher, logger *zap.Logger, opts Options) *Engine {
	return &Engine{
		directory: dir,
		messages:  messages,
		presence:  presence,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer("chat-engine/delivery"),
		opts:      opts,
		locks:     &accountLocks{},
		clock:     newConversationClock(time.Now),
	}
}

// PageSize is the number of messages per history page.
func (e *Engine) PageSize() int { return e.opts.PageSize }

// Register creates an account and announces it.
func (e *Engine) Register(ctx context.Context, req auth.CreateAccountRequest) (acc models.Account, err error) {
	ctx, span := e.tracer.Start(ctx, "delivery.Register")
	defer func() { endSpan(span, err) }()

	acc, err = e.directory.Create(ctx, req)
	if err != nil {
		return models.Account{}, err
	}
	span.SetAttributes(attribute.String("account.id", acc.ID))
	observability.IncAccountEvent("created")
	e.publish(ctx, observability.RouteAccountCreated, "account.created", AccountEvent{AccountID: acc.ID, Username: acc.Username})
	return acc, nil
}

// Send stores content from senderID to recipientID and offers it to the
// recipient's live session. The message stays unread either way.
func (e *Engine) Send(ctx context.Context, senderID, recipientID, content string) (d models.Delivery, err error) {
	ctx, span := e.tracer.Start(ctx, "delivery.Send", trace.WithAttributes(
		attribute.String("sender.id", senderID),
		attribute.String("recipient.id", recipientID),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(content) == "" {
		return models.Delivery{}, models.ErrEmptyContent
	}
	if recipientID == "" || recipientID == senderID {
		return models.Delivery{}, models.ErrInvalidRecipient
	}

	msg, delivered, err := e.persistAndPush(ctx, senderID, recipientID, content)
	if err != nil {
		return models.Delivery{}, err
	}
	span.SetAttributes(attribute.Bool("delivered", delivered))
	observability.IncMessageSent(delivered)

	e.logger.Debug("message stored",
		zap.String("message_id", msg.ID),
		zap.String("sender_id", senderID),
		zap.String("recipient_id", recipientID),
		zap.Bool("delivered", delivered),
	)
	e.publish(ctx, observability.RouteMessageSent, "message.sent", MessageSentEvent{
		MessageID:   msg.ID,
		SenderID:    senderID,
		RecipientID: recipientID,
		CreatedAt:   msg.CreatedAt,
		Delivered:   delivered,
	})
	return models.Delivery{Message: msg, Delivered: delivered}, nil
}

// persistAndPush runs under the pair's account locks and the conversation
// clock, so timestamps, storage order and live push order all agree.
func (e *Engine) persistAndPush(ctx context.Context, senderID, recipientID, content string) (models.Message, bool, error) {
	unlock := e.locks.rlockPair(senderID, recipientID)
	defer unlock()

	if err := e.requireAccount(ctx, senderID, models.ErrSenderNotFound); err != nil {
		return models.Message{}, false, err
	}
	if err := e.requireAccount(ctx, recipientID, models.ErrInvalidRecipient); err != nil {
		return models.Message{}, false, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Message{}, false, err
	}

	t := e.clock.acquire(senderID, recipientID)
	defer t.release()

	msg := models.Message{
		ID:          id.String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   t.At,
	}
	if err := e.messages.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrMissingAccount) {
			if serr := e.requireAccount(ctx, senderID, models.ErrSenderNotFound); serr != nil {
				return models.Message{}, false, serr
			}
			return models.Message{}, false, models.ErrInvalidRecipient
		}
		return models.Message{}, false, fmt.Errorf("append message: %w", err)
	}
	t.commit()

	delivered := e.presence.Push(recipientID, models.ChatEvent{Type: models.EventMessage, Message: &msg})
	return msg, delivered, nil
}

func (e *Engine) requireAccount(ctx context.Context, id string, missing error) error {
	_, err := e.directory.Get(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return missing
	}
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	return nil
}

// History returns page of the conversation between accountID and peerID, newest first.
func (e *Engine) History(ctx context.Context, accountID, peerID string, page int) (p models.Page[models.Message], err error) {
	ctx, span := e.tracer.Start(ctx, "delivery.History")
	defer func() { endSpan(span, err) }()

	offset, err := models.PageOffset(page, e.opts.PageSize)
	if err != nil {
		return models.Page[models.Message]{}, err
	}
	if _, err := e.directory.Get(ctx, peerID); err != nil {
		return models.Page[models.Message]{}, err
	}

	msgs, total, err := e.messages.Conversation(ctx, accountID, peerID, offset, e.opts.PageSize)
	if err != nil {
		return models.Page[models.Message]{}, fmt.Errorf("conversation: %w", err)
	}
	return models.NewPage(msgs, page, e.opts.PageSize, total), nil
}

// UnreadCount is the number of unread messages peerID sent to accountID.
func (e *Engine) UnreadCount(ctx context.Context, accountID, peerID string) (int, error) {
	n, err := e.messages.UnreadCount(ctx, accountID, peerID)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// FetchUnread hands out up to limit unread messages from peerID, oldest
// first, marking them read. limit is capped at the configured maximum.
func (e *Engine) FetchUnread(ctx context.Context, accountID, peerID string, limit int) (msgs []models.Message, err error) {
	ctx, span := e.tracer.Start(ctx, "delivery.FetchUnread")
	defer func() { endSpan(span, err) }()

	if limit <= 0 {
		return nil, models.ErrInvalidLimit
	}
	limit = min(limit, e.opts.MaxUnreadFetch)

	msgs, err = e.messages.FetchUnreadAndMark(ctx, accountID, peerID, limit)
	if err != nil {
		if len(msgs) == 0 {
			return nil, fmt.Errorf("fetch unread: %w", err)
		}
		// Claimed messages are already marked read and must reach the caller.
		e.logger.Warn("fetch unread partially failed",
			zap.String("account_id", accountID),
			zap.Int("claimed", len(msgs)),
			zap.Error(err),
		)
		err = nil
	}
	span.SetAttributes(attribute.Int("fetched", len(msgs)))
	if len(msgs) > 0 {
		observability.AddMessagesRead(len(msgs))
		e.publish(ctx, observability.RouteMessageRead, "message.read", MessagesReadEvent{
			ReaderID:   accountID,
			SenderID:   peerID,
			MessageIDs: messageIDs(msgs),
		})
	}
	return msgs, nil
}

// DeleteMessages removes ids on behalf of requesterID. Every id that exists
// must involve the requester, otherwise nothing is deleted. Ids that no
// longer exist are skipped.
func (e *Engine) DeleteMessages(ctx context.Context, requesterID string, ids []string) (removed int64, err error) {
	ctx, span := e.tracer.Start(ctx, "delivery.DeleteMessages")
	defer func() { endSpan(span, err) }()

	ids = lo.Uniq(lo.Compact(ids))
	if len(ids) == 0 {
		return 0, models.ErrNoMessageIDs
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, models.ErrInvalidID
		}
	}

	msgs, err := e.messages.GetMessages(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) == 0 {
		return 0, models.ErrMessageNotFound
	}
	if _, foreign := lo.Find(msgs, func(m models.Message) bool { return !m.Involves(requesterID) }); foreign {
		return 0, models.ErrNotParticipant
	}

	removed, err = e.messages.DeleteMessages(ctx, messageIDs(msgs))
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	observability.AddMessagesDeleted(int(removed))
	e.notifyDeleted(msgs)
	e.publish(ctx, observability.RouteMessageDeleted, "message.deleted", MessagesDeletedEvent{
		RequesterID: requesterID,
		MessageIDs:  messageIDs(msgs),
	})
	return removed, nil
}

// notifyDeleted tells each participant which of the removed messages were theirs.
func (e *Engine) notifyDeleted(msgs []models.Message) {
	byAccount := make(map[string][]string)
	for _, m := range msgs {
		byAccount[m.SenderID] = append(byAccount[m.SenderID], m.ID)
		byAccount[m.RecipientID] = append(byAccount[m.RecipientID], m.ID)
	}
	for accountID, ids := range byAccount {
		e.presence.Push(accountID, models.ChatEvent{Type: models.EventDeleted, MessageIDs: ids})
	}
}

// DeleteAccount re-authenticates and removes the account with its messages.
// It excludes concurrent sends involving the account for its duration.
func (e *Engine) DeleteAccount(ctx context.Context, req auth.CredentialsRequest) (acc models.Account, err error) {
	ctx, span := e.tracer.Start(ctx, "delivery.DeleteAccount")
	defer func() { endSpan(span, err) }()

	target, err := e.directory.Lookup(ctx, req.Email)
	if err != nil {
		return models.Account{}, err
	}
	unlock := e.locks.lock(target.ID)
	defer unlock()

	acc, removed, err := e.directory.Delete(ctx, req)
	if err != nil {
		return models.Account{}, err
	}
	observability.IncAccountEvent("deleted")
	e.publish(ctx, observability.RouteAccountDeleted, "account.deleted", AccountEvent{
		AccountID:       acc.ID,
		Username:        acc.Username,
		MessagesRemoved: removed,
	})
	return acc, nil
}

func (e *Engine) publish(ctx context.Context, routingKey, name string, payload any) {
	if e.publisher == nil {
		return
	}
	env := observability.NewEnvelope("chat_events", name, payload)
	if err := e.publisher.Publish(ctx, routingKey, env, observability.HeadersFromContext(ctx)); err != nil {
		observability.IncAMQPPublishError()
		e.logger.Warn("publish event failed", zap.String("event", name), zap.Error(err))
	}
}

func messageIDs(msgs []models.Message) []string {
	return lo.Map(msgs, func(m models.Message, _ int) string { return m.ID })
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
