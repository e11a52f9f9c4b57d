// Package directory owns account lifecycle: creation, authentication, listing and removal.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"chat-engine/internal/auth"
	"chat-engine/internal/models"
	"chat-engine/internal/store"
)

// PasswordHasher derives and checks password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// SessionEvictor drops the live session of a removed account.
type SessionEvictor interface {
	Evict(accountID string) bool
}

// Directory is the account registry.
type Directory struct {
	store    store.AccountStore
	hasher   PasswordHasher
	sessions SessionEvictor
	logger   *zap.Logger
	now      func() time.Time
}

// New constructs Directory. sessions may be nil.
func New(s store.AccountStore, hasher PasswordHasher, sessions SessionEvictor, logger *zap.Logger) *Directory {
	return &Directory{
		store:    s,
		hasher:   hasher,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Create registers a new account. Email and username uniqueness is enforced by the store in one step.
func (d *Directory) Create(ctx context.Context, req auth.CreateAccountRequest) (models.Account, error) {
	req.Normalize()
	if err := auth.Validate(req); err != nil {
		return models.Account{}, err
	}

	hash, err := d.hasher.Hash(req.Password)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return models.Account{}, err
	}

	acc := models.Account{
		ID:           id.String(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    d.now().UTC().Truncate(time.Millisecond),
	}
	switch err := d.store.CreateAccount(ctx, acc); {
	case errors.Is(err, store.ErrDuplicateEmail):
		return models.Account{}, models.ErrEmailTaken
	case errors.Is(err, store.ErrDuplicateUsername):
		return models.Account{}, models.ErrUsernameTaken
	case err != nil:
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}

	d.logger.Info("account created", zap.String("account_id", acc.ID), zap.String("username", acc.Username))
	return acc, nil
}

// Authenticate verifies credentials and records the login time.
func (d *Directory) Authenticate(ctx context.Context, req auth.CredentialsRequest) (models.Account, error) {
	acc, err := d.verify(ctx, req)
	if err != nil {
		return models.Account{}, err
	}

	at := d.now().UTC().Truncate(time.Millisecond)
	if err := d.store.TouchLastLogin(ctx, acc.ID, at); err != nil {
		if store.IsNotFound(err) {
			return models.Account{}, models.ErrAccountNotFound
		}
		return models.Account{}, fmt.Errorf("record login: %w", err)
	}
	acc.LastLogin = &at
	return acc, nil
}

func (d *Directory) verify(ctx context.Context, req auth.CredentialsRequest) (models.Account, error) {
	req.Normalize()
	if err := auth.Validate(req); err != nil {
		return models.Account{}, err
	}

	acc, err := d.store.GetAccountByEmail(ctx, req.Email)
	if err != nil {
		if store.IsNotFound(err) {
			return models.Account{}, models.ErrAccountNotFound
		}
		return models.Account{}, fmt.Errorf("lookup account: %w", err)
	}

	ok, err := d.hasher.Verify(req.Password, acc.PasswordHash)
	if err != nil {
		return models.Account{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return models.Account{}, models.ErrWrongPassword
	}
	return acc, nil
}

// Delete re-authenticates the caller, removes the account with every message
// it took part in and evicts its live session.
func (d *Directory) Delete(ctx context.Context, req auth.CredentialsRequest) (models.Account, int64, error) {
	acc, err := d.verify(ctx, req)
	if err != nil {
		return models.Account{}, 0, err
	}

	removed, err := d.store.DeleteAccount(ctx, acc.ID)
	if err != nil {
		if store.IsNotFound(err) {
			return models.Account{}, 0, models.ErrAccountNotFound
		}
		return models.Account{}, 0, fmt.Errorf("delete account: %w", err)
	}
	if d.sessions != nil {
		d.sessions.Evict(acc.ID)
	}

	d.logger.Info("account deleted",
		zap.String("account_id", acc.ID),
		zap.Int64("messages_removed", removed),
	)
	return acc, removed, nil
}

// Lookup returns the account email belongs to without checking a password.
func (d *Directory) Lookup(ctx context.Context, email string) (models.Account, error) {
	acc, err := d.store.GetAccountByEmail(ctx, auth.NormalizeEmail(email))
	if store.IsNotFound(err) {
		return models.Account{}, models.ErrAccountNotFound
	}
	return acc, err
}

// Get returns the account with the given id.
func (d *Directory) Get(ctx context.Context, id string) (models.Account, error) {
	acc, err := d.store.GetAccount(ctx, id)
	if store.IsNotFound(err) {
		return models.Account{}, models.ErrAccountNotFound
	}
	return acc, err
}

// Usernames resolves ids to usernames. Unknown ids are absent from the result.
func (d *Directory) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	accs, err := d.store.GetAccounts(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(accs, func(a models.Account) (string, string) {
		return a.ID, a.Username
	}), nil
}

// ListPage returns one page of accounts ordered by id.
func (d *Directory) ListPage(ctx context.Context, page, size int) (models.Page[models.PublicAccount], error) {
	offset, err := models.PageOffset(page, size)
	if err != nil {
		return models.Page[models.PublicAccount]{}, err
	}
	accs, total, err := d.store.ListAccounts(ctx, offset, size)
	if err != nil {
		return models.Page[models.PublicAccount]{}, fmt.Errorf("list accounts: %w", err)
	}
	return models.NewPage(publicViews(accs), page, size, total), nil
}

func publicViews(accs []models.Account) []models.PublicAccount {
	return lo.Map(accs, func(a models.Account, _ int) models.PublicAccount { return a.Public() })
}
