package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict means a concurrent writer won: a stale version on update, a
// unique violation, or a serialization failure. The caller should re-read
// and retry.
var ErrConflict = errors.New("database: write conflict")

// Postgres error codes treated as conflicts.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// IsConflict reports whether err is ErrConflict or a Postgres error that
// mapConflict would turn into one.
func IsConflict(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
			return true
		}
	}
	return false
}

func mapConflict(err error) error {
	if err == nil || errors.Is(err, ErrConflict) {
		return err
	}
	if IsConflict(err) {
		return errors.Join(ErrConflict, err)
	}
	return err
}
