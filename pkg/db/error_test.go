package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("op", nil))
	assert.ErrorIs(t, Wrap("op", gorm.ErrRecordNotFound), gorm.ErrRecordNotFound)
	assert.False(t, IsPersistenceError(Wrap("op", gorm.ErrRecordNotFound)))

	raw := errors.New("syntax error")
	err := Wrap("booking.insert", raw)
	var perr *PersistenceError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, "booking.insert", perr.Op)
	assert.False(t, perr.Unavailable)
	assert.ErrorIs(t, err, raw)

	assert.Same(t, err, Wrap("outer", err))

	timeout := Wrap("booking.insert", fmt.Errorf("tx: %w", context.DeadlineExceeded))
	assert.ErrorAs(t, timeout, &perr)
	assert.True(t, perr.Unavailable)
	assert.Contains(t, timeout.Error(), "storage unavailable")
}

func TestConstraintClassifiers(t *testing.T) {
	assert.True(t, IsExclusionViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01"})))
	assert.False(t, IsExclusionViolation(&pgconn.PgError{Code: "23505"}))

	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: bookings.id")))
	assert.False(t, IsDuplicateKeyErr(nil))

	assert.True(t, IsCheckViolation(&pgconn.PgError{Code: "23514"}))
	assert.True(t, IsCheckViolation(errors.New("CHECK constraint failed: balance_cents >= 0")))
	assert.False(t, IsCheckViolation(errors.New("other")))
}
