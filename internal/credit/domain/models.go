package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type EntryKind string

const (
	EntryKindTopUp EntryKind = "top_up"
	EntryKindDebit EntryKind = "debit"
)

// Entry is one signed movement on a guest's credit. Top-ups are positive,
// debits negative. BookingID is a lookup reference only.
type Entry struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	GuestID     snowflake.ID  `gorm:"not null;index" json:"guest_id"`
	BookingID   *snowflake.ID `gorm:"index" json:"booking_id,omitempty"`
	AmountCents int64         `gorm:"not null" json:"amount_cents"`
	Kind        EntryKind     `gorm:"type:varchar(16);not null" json:"kind"`
	Note        string        `json:"note,omitempty"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
}

func (Entry) TableName() string { return "credit_ledger_entries" }

// Balance is the materialised running sum of a guest's entries. The row is
// the guard every debit updates conditionally.
type Balance struct {
	GuestID      snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"guest_id"`
	BalanceCents int64        `gorm:"not null;default:0;check:chk_guest_credit_non_negative,balance_cents >= 0" json:"balance_cents"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Balance) TableName() string { return "guest_credit_balances" }
