package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
	"gorm.io/gorm"
)

// Room is a bookable unit. Rates are nightly amounts in cents.
type Room struct {
	ID                        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name                      string       `gorm:"not null" json:"name"`
	Capacity                  int          `gorm:"not null" json:"capacity"`
	CleaningFeeCents          int64        `gorm:"not null;default:0" json:"cleaning_fee_cents"`
	PeakMemberRateCents       int64        `gorm:"not null" json:"peak_member_rate_cents"`
	PeakNonMemberRateCents    int64        `gorm:"not null" json:"peak_non_member_rate_cents"`
	OffPeakMemberRateCents    int64        `gorm:"not null" json:"off_peak_member_rate_cents"`
	OffPeakNonMemberRateCents int64        `gorm:"not null" json:"off_peak_non_member_rate_cents"`
	Active                    bool         `gorm:"not null" json:"active"`
	CreatedAt                 time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt                 time.Time    `gorm:"not null" json:"updated_at"`
}

func (Room) TableName() string { return "rooms" }

func (r Room) Rates() pricingdomain.Rates {
	return pricingdomain.Rates{
		PeakMember:       r.PeakMemberRateCents,
		PeakNonMember:    r.PeakNonMemberRateCents,
		OffPeakMember:    r.OffPeakMemberRateCents,
		OffPeakNonMember: r.OffPeakNonMemberRateCents,
	}
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, room *Room) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Room, error)
	// LockByID reads the room under a row lock so concurrent writers that
	// assign the same room serialise on it.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Room, error)
}

var ErrNotFound = errors.New("room_not_found")
