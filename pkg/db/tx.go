package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Transactor runs write transactions bounded by a timeout.
type Transactor struct {
	timeout time.Duration
}

func NewTransactor(cfg Config) *Transactor {
	return &Transactor{timeout: cfg.TxTimeout}
}

// Transaction runs fn inside a transaction on conn. Driver failures are
// wrapped as PersistenceError under op; errors returned by fn pass through.
func (t *Transactor) Transaction(ctx context.Context, conn *gorm.DB, op string, fn func(tx *gorm.DB) error) error {
	if t != nil && t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var fnErr error
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(tx)
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil && err == fnErr {
		return fnErr
	}
	return Wrap(op, err)
}
