package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	InsertEntry(ctx context.Context, db *gorm.DB, entry *Entry) error
	FindEntry(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Entry, error)
	DeleteEntry(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	ListEntries(ctx context.Context, db *gorm.DB, guestID snowflake.ID, cursor *pagination.Cursor, limit int) ([]Entry, error)
	SumForBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (int64, error)

	EnsureBalance(ctx context.Context, db *gorm.DB, guestID snowflake.ID) error
	GetBalance(ctx context.Context, db *gorm.DB, guestID snowflake.ID) (int64, error)
	LockBalance(ctx context.Context, db *gorm.DB, guestID snowflake.ID) (int64, error)
	// Decrease subtracts amount only while the balance covers it and
	// reports whether the row was updated.
	Decrease(ctx context.Context, db *gorm.DB, guestID snowflake.ID, amount int64) (bool, error)
	Increase(ctx context.Context, db *gorm.DB, guestID snowflake.ID, amount int64) error
}
