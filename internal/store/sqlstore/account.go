package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-engine/internal/models"
)

const accountColumns = `id, email, username, password_hash, created_at, last_login`

func (s *Store) CreateAccount(ctx context.Context, acc models.Account) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO accounts (id, email, username, username_folded, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		acc.ID, acc.Email, acc.Username, strings.ToLower(acc.Username), acc.PasswordHash, acc.CreatedAt)
	return translate(err)
}

func (s *Store) GetAccount(ctx context.Context, id string) (models.Account, error) {
	var acc models.Account
	err := s.db.GetContext(ctx, &acc, s.db.Rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	return acc, translate(err)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	var acc models.Account
	err := s.db.GetContext(ctx, &acc, s.db.Rebind(`SELECT `+accountColumns+` FROM accounts WHERE email = ?`), email)
	return acc, translate(err)
}

func (s *Store) GetAccounts(ctx context.Context, ids []string) ([]models.Account, error) {
	accs := []models.Account{}
	if len(ids) == 0 {
		return accs, nil
	}
	query, args, err := sqlx.In(`SELECT `+accountColumns+` FROM accounts WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	err = s.db.SelectContext(ctx, &accs, s.db.Rebind(query), args...)
	return accs, translate(err)
}

func (s *Store) ListAccounts(ctx context.Context, offset, limit int) ([]models.Account, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM accounts`); err != nil {
		return nil, 0, translate(err)
	}
	accs := []models.Account{}
	err := s.db.SelectContext(ctx, &accs, s.db.Rebind(`SELECT `+accountColumns+` FROM accounts ORDER BY id LIMIT ? OFFSET ?`), limit, offset)
	return accs, total, translate(err)
}

func (s *Store) SearchAccounts(ctx context.Context, substr, excludeID string, offset, limit int) ([]models.Account, int, error) {
	pattern := "%" + escapeLike(strings.ToLower(substr)) + "%"
	// SQLite's LOWER folds ASCII only, so the folded form is computed in Go on insert.
	where := ` FROM accounts WHERE id <> ? AND username_folded LIKE ? ESCAPE '\'`

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*)`+where), excludeID, pattern); err != nil {
		return nil, 0, translate(err)
	}
	accs := []models.Account{}
	err := s.db.SelectContext(ctx, &accs, s.db.Rebind(`SELECT `+accountColumns+where+` ORDER BY username, id LIMIT ? OFFSET ?`),
		excludeID, pattern, limit, offset)
	return accs, total, translate(err)
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE accounts SET last_login = ? WHERE id = ?`), at, id)
	if err != nil {
		return translate(err)
	}
	return expectRows(res)
}

// DeleteAccount removes the messages explicitly so the count is known even where cascades are disabled.
func (s *Store) DeleteAccount(ctx context.Context, id string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, translate(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE sender_id = ? OR recipient_id = ?`), id, id)
	if err != nil {
		return 0, translate(err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM accounts WHERE id = ?`), id)
	if err != nil {
		return 0, translate(err)
	}
	if err := expectRows(res); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, translate(err)
	}
	return removed, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
