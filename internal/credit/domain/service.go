package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/pkg/db/pagination"
	"gorm.io/gorm"
)

type DebitRequest struct {
	GuestID     snowflake.ID
	BookingID   snowflake.ID
	AmountCents int64
	Note        string
}

type TopUpRequest struct {
	GuestID     snowflake.ID
	AmountCents int64
	Note        string
}

type HistoryRequest struct {
	GuestID   snowflake.ID
	PageToken string
	PageSize  int
}

type HistoryResponse struct {
	pagination.PageInfo
	BalanceCents int64   `json:"balance_cents"`
	Entries      []Entry `json:"entries"`
}

// Ledger keeps per-guest credit non-negative. Write methods run inside the
// caller's transaction.
type Ledger interface {
	Debit(ctx context.Context, tx *gorm.DB, req DebitRequest) (Entry, error)
	TopUp(ctx context.Context, tx *gorm.DB, req TopUpRequest) (Entry, error)
	// Reverse removes an entry and takes back its effect on the balance.
	Reverse(ctx context.Context, tx *gorm.DB, id snowflake.ID) (Entry, error)
	LockedBalance(ctx context.Context, tx *gorm.DB, guestID snowflake.ID) (int64, error)
	BookingUsage(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) (int64, error)

	Balance(ctx context.Context, guestID snowflake.ID) (int64, error)
	History(ctx context.Context, req HistoryRequest) (HistoryResponse, error)
}

var (
	ErrInsufficientCredit = errors.New("insufficient_credit")
	ErrInvalidAmount      = errors.New("invalid_credit_amount")
	ErrInvalidGuest       = errors.New("invalid_guest")
	ErrEntryNotFound      = errors.New("credit_entry_not_found")
)
