package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists bookings and their line items. Lookups return nil, nil
// when the row does not exist.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	Update(ctx context.Context, db *gorm.DB, booking *Booking) error
	// Delete removes the booking together with its line items.
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	InsertLineItems(ctx context.Context, db *gorm.DB, items []LineItem) error
	FindLineItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LineItem, error)
	DeleteLineItem(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	ListLineItems(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]LineItem, error)
}
