package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-engine/internal/auth"
	"chat-engine/internal/models"
	"chat-engine/internal/presence"
)

type AccountServiceMock struct {
	mock.Mock
}

func (m *AccountServiceMock) Register(ctx context.Context, req auth.CreateAccountRequest) (models.Account, error) {
	args := m.Called(ctx, req)
	var acc models.Account
	if val := args.Get(0); val != nil {
		acc = val.(models.Account)
	}
	return acc, args.Error(1)
}

func (m *AccountServiceMock) DeleteAccount(ctx context.Context, req auth.CredentialsRequest) (models.Account, error) {
	args := m.Called(ctx, req)
	var acc models.Account
	if val := args.Get(0); val != nil {
		acc = val.(models.Account)
	}
	return acc, args.Error(1)
}

type AuthenticatorMock struct {
	mock.Mock
}

func (m *AuthenticatorMock) Authenticate(ctx context.Context, req auth.CredentialsRequest) (models.Account, error) {
	args := m.Called(ctx, req)
	var acc models.Account
	if val := args.Get(0); val != nil {
		acc = val.(models.Account)
	}
	return acc, args.Error(1)
}

type TokenIssuerMock struct {
	mock.Mock
}

func (m *TokenIssuerMock) Issue(accountID string) (string, time.Time, error) {
	args := m.Called(accountID)
	var expires time.Time
	if val := args.Get(1); val != nil {
		expires = val.(time.Time)
	}
	return args.String(0), expires, args.Error(2)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) Get(ctx context.Context, id string) (models.Account, error) {
	args := m.Called(ctx, id)
	var acc models.Account
	if val := args.Get(0); val != nil {
		acc = val.(models.Account)
	}
	return acc, args.Error(1)
}

func (m *UserDirectoryMock) ListPage(ctx context.Context, page, size int) (models.Page[models.PublicAccount], error) {
	args := m.Called(ctx, page, size)
	var p models.Page[models.PublicAccount]
	if val := args.Get(0); val != nil {
		p = val.(models.Page[models.PublicAccount])
	}
	return p, args.Error(1)
}

type UserSearcherMock struct {
	mock.Mock
}

func (m *UserSearcherMock) Usernames(ctx context.Context, pattern string, page int, excludeID string) (models.Page[models.PublicAccount], error) {
	args := m.Called(ctx, pattern, page, excludeID)
	var p models.Page[models.PublicAccount]
	if val := args.Get(0); val != nil {
		p = val.(models.Page[models.PublicAccount])
	}
	return p, args.Error(1)
}

type OnlineCheckerMock struct {
	mock.Mock
}

func (m *OnlineCheckerMock) IsOnline(accountID string) bool {
	args := m.Called(accountID)
	return args.Bool(0)
}

type LastSeenReaderMock struct {
	mock.Mock
}

func (m *LastSeenReaderMock) Status(ctx context.Context, accountID string) (presence.Seen, error) {
	args := m.Called(ctx, accountID)
	var seen presence.Seen
	if val := args.Get(0); val != nil {
		seen = val.(presence.Seen)
	}
	return seen, args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) Send(ctx context.Context, senderID, recipientID, content string) (models.Delivery, error) {
	args := m.Called(ctx, senderID, recipientID, content)
	var d models.Delivery
	if val := args.Get(0); val != nil {
		d = val.(models.Delivery)
	}
	return d, args.Error(1)
}

func (m *MessageServiceMock) History(ctx context.Context, accountID, peerID string, page int) (models.Page[models.Message], error) {
	args := m.Called(ctx, accountID, peerID, page)
	var p models.Page[models.Message]
	if val := args.Get(0); val != nil {
		p = val.(models.Page[models.Message])
	}
	return p, args.Error(1)
}

func (m *MessageServiceMock) UnreadCount(ctx context.Context, accountID, peerID string) (int, error) {
	args := m.Called(ctx, accountID, peerID)
	return args.Int(0), args.Error(1)
}

func (m *MessageServiceMock) FetchUnread(ctx context.Context, accountID, peerID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, accountID, peerID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageServiceMock) DeleteMessages(ctx context.Context, requesterID string, ids []string) (int64, error) {
	args := m.Called(ctx, requesterID, ids)
	var n int64
	if val := args.Get(0); val != nil {
		n = val.(int64)
	}
	return n, args.Error(1)
}

type ChatListerMock struct {
	mock.Mock
}

func (m *ChatListerMock) Recent(ctx context.Context, accountID string, page, size int) (models.Page[models.ChatSummary], error) {
	args := m.Called(ctx, accountID, page, size)
	var p models.Page[models.ChatSummary]
	if val := args.Get(0); val != nil {
		p = val.(models.Page[models.ChatSummary])
	}
	return p, args.Error(1)
}
