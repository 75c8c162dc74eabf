package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

type EntityType string

const (
	EntityBooking     EntityType = "booking"
	EntityLineItem    EntityType = "line_item"
	EntityCreditEntry EntityType = "credit_entry"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityBooking, EntityLineItem, EntityCreditEntry:
		return true
	}
	return false
}

// Entry is one recorded mutation. Only CanUndo changes after insert.
type Entry struct {
	ID         snowflake.ID   `gorm:"primaryKey" json:"id"`
	Operation  Operation      `gorm:"type:varchar(16);not null" json:"operation"`
	EntityType EntityType     `gorm:"type:varchar(32);not null;index:idx_txlog_entity,priority:1" json:"entity_type"`
	EntityID   snowflake.ID   `gorm:"not null;index:idx_txlog_entity,priority:2" json:"entity_id"`
	Before     datatypes.JSON `json:"before,omitempty"`
	After      datatypes.JSON `json:"after,omitempty"`
	Label      string         `gorm:"not null" json:"label"`
	Actor      string         `json:"actor,omitempty"`
	UndoOf     *snowflake.ID  `gorm:"index" json:"undo_of,omitempty"`
	CanUndo    bool           `gorm:"not null;index" json:"can_undo"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (Entry) TableName() string { return "transaction_log" }

// Record describes a mutation to append. Before and After are marshalled to
// JSON; leave Before nil for CREATE and After nil for DELETE.
type Record struct {
	Operation  Operation
	EntityType EntityType
	EntityID   snowflake.ID
	Before     any
	After      any
	Label      string
	// UndoOf marks a compensating entry written while undoing another one.
	// Compensating entries are never themselves undoable.
	UndoOf *snowflake.ID
}
