package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	EntityType EntityType
	EntityID   snowflake.ID
	OnlyUndo   bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Entry, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Entry, error)
	// DisableOlder clears can_undo on entries of the given entities with an
	// id lower than before.
	DisableOlder(ctx context.Context, db *gorm.DB, entityType EntityType, entityIDs []snowflake.ID, before snowflake.ID) error
	// Consume clears can_undo on one entry and reports whether it was set.
	Consume(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	// HasCompensation reports whether an entry with undo_of = id exists.
	HasCompensation(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	ListUndoable(ctx context.Context, db *gorm.DB, limit int) ([]Entry, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, cursor *pagination.Cursor, limit int) ([]Entry, error)
}
