package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/events"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"gorm.io/gorm"
)

// Reversal is what a reverter did: compensating log records to append and
// the changes to announce once the undo commits.
type Reversal struct {
	Records []txlogdomain.Record
	Changes []events.Change
}

// Reverter undoes log entries of one entity type inside the caller's
// transaction. It returns txlogdomain.ErrUndoConflict when the entity has
// moved on since the entry was written.
type Reverter interface {
	EntityType() txlogdomain.EntityType
	Revert(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) (Reversal, error)
}

type Result struct {
	Entry         txlogdomain.Entry   `json:"entry"`
	Compensations []txlogdomain.Entry `json:"compensations"`
}

type Executor interface {
	Undo(ctx context.Context, id snowflake.ID) (Result, error)
}
