package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

type ListRequest struct {
	PageToken  string
	PageSize   int
	EntityType EntityType
	EntityID   snowflake.ID
	OnlyUndo   bool
}

type ListResponse struct {
	pagination.PageInfo
	Entries []Entry `json:"entries"`
}

// Logger appends mutation records. Every write method takes the caller's
// transaction so an entry commits or rolls back together with its mutation.
type Logger interface {
	Record(ctx context.Context, tx *gorm.DB, rec Record) (Entry, error)
	// Supersede disables pending entries of entities removed as a side effect
	// of another mutation, such as line items of a deleted booking.
	Supersede(ctx context.Context, tx *gorm.DB, entityType EntityType, ids []snowflake.ID) error
	MarkConsumed(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	// Undone reports whether id was consumed by an undo, as opposed to
	// superseded by a later mutation.
	Undone(ctx context.Context, tx *gorm.DB, id snowflake.ID) (bool, error)
	Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (Entry, error)

	Get(ctx context.Context, id snowflake.ID) (Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrEntryNotFound    = errors.New("transaction_not_found")
	ErrAlreadyUndone    = errors.New("transaction_already_undone")
	ErrUndoConflict     = errors.New("undo_conflict")
	ErrUndoNotSupported = errors.New("undo_not_supported")
	ErrInvalidRecord    = errors.New("invalid_transaction_record")
)
