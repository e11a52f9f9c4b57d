package sqlstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"chat-engine/internal/store"
)

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if errors.Is(err, sql.ErrConnDone) {
		return store.ErrNotConnected
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgerrcode.UniqueViolation:
			return uniqueViolation(pqErr.Constraint, err)
		case pgerrcode.ForeignKeyViolation:
			return store.ErrMissingAccount
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return uniqueViolation(liteErr.Error(), err)
		case sqlite3.ErrConstraintForeignKey:
			return store.ErrMissingAccount
		}
	}
	return err
}

func uniqueViolation(detail string, err error) error {
	switch {
	case strings.Contains(detail, "email"):
		return store.ErrDuplicateEmail
	case strings.Contains(detail, "username"):
		return store.ErrDuplicateUsername
	}
	return err
}
