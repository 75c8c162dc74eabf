package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PersistenceError reports a storage failure. Unavailable is set when the
// store could not be reached at all, as opposed to a failed statement.
type PersistenceError struct {
	Op          string
	Err         error
	Unavailable bool
}

func (e *PersistenceError) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("%s: storage unavailable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Wrap converts a raw driver error into a PersistenceError. Nil, not-found
// and already wrapped errors pass through unchanged.
func Wrap(op string, err error) error {
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err, Unavailable: isUnavailable(err)}
}

func IsPersistenceError(err error) bool {
	var perr *PersistenceError
	return errors.As(err, &perr)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || pgCode(err) == "23505" {
		return true
	}

	msg := err.Error()
	// MySQL 1062, SQLite 2067.
	return strings.Contains(msg, "Error 1062") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsExclusionViolation reports a PostgreSQL EXCLUDE constraint failure, used
// for overlapping stays on the same room.
func IsExclusionViolation(err error) bool {
	return err != nil && pgCode(err) == "23P01"
}

// IsCheckViolation reports a CHECK constraint failure on any supported driver.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) || pgCode(err) == "23514" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "CHECK constraint failed") || strings.Contains(msg, "Error 3819")
}
