package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
)

// Change identifies one mutated entity. The entity type and operation are the
// closed enums of the transaction log.
type Change struct {
	EntityType txlogdomain.EntityType `json:"entity_type"`
	EntityID   snowflake.ID           `json:"entity_id"`
	Operation  txlogdomain.Operation  `json:"operation"`
}

func (c Change) Valid() bool {
	return c.EntityType.Valid() && c.Operation.Valid() && c.EntityID != 0
}

// ChangeEvent is what subscribers receive. Delivery is at-most-once; a missed
// event is recovered by reloading, never relied on for correctness.
type ChangeEvent struct {
	Change
	CorrelationID string    `json:"correlation_id,omitempty"`
	Origin        string    `json:"origin,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers change notifications after a mutation commits. It never
// fails the caller.
type Publisher interface {
	Publish(ctx context.Context, changes ...Change)
}

func BookingChanged(id snowflake.ID, op txlogdomain.Operation) Change {
	return Change{EntityType: txlogdomain.EntityBooking, EntityID: id, Operation: op}
}

func LineItemChanged(id snowflake.ID, op txlogdomain.Operation) Change {
	return Change{EntityType: txlogdomain.EntityLineItem, EntityID: id, Operation: op}
}

func CreditEntryChanged(id snowflake.ID, op txlogdomain.Operation) Change {
	return Change{EntityType: txlogdomain.EntityCreditEntry, EntityID: id, Operation: op}
}

// FromEntry derives the change a recorded log entry describes.
func FromEntry(entry txlogdomain.Entry) Change {
	return Change{EntityType: entry.EntityType, EntityID: entry.EntityID, Operation: entry.Operation}
}
