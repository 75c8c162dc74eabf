package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Request struct {
	RoomID           snowflake.ID
	CheckIn          time.Time
	CheckOut         time.Time
	ExcludeBookingID snowflake.ID
}

type Result struct {
	Available bool           `json:"available"`
	Conflicts []snowflake.ID `json:"conflicts,omitempty"`
	// Stale is set when the answer came from the preview cache because the
	// database could not be reached.
	Stale bool `json:"stale,omitempty"`
}

// Checker decides whether a room is free for a half-open date range.
type Checker interface {
	// Check is advisory: it runs outside any write transaction.
	Check(ctx context.Context, req Request) (Result, error)
	// Guard locks the room row inside tx and fails with
	// ErrAvailabilityConflict when an active booking overlaps.
	Guard(ctx context.Context, tx *gorm.DB, req Request) error
}

type Repository interface {
	// Overlapping lists non-cancelled bookings of the room whose
	// [checkin, checkout) intersects the requested range.
	Overlapping(ctx context.Context, db *gorm.DB, req Request) ([]snowflake.ID, error)
}

// Overlaps reports whether [a, b) and [c, d) intersect. A stay ending on the
// day another starts does not overlap it.
func Overlaps(a, b, c, d time.Time) bool {
	return a.Before(d) && c.Before(b)
}

var (
	ErrAvailabilityConflict = errors.New("availability_conflict")
	ErrInvalidRange         = errors.New("invalid_date_range")
	ErrInvalidRoom          = errors.New("invalid_room")
)
