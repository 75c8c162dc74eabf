package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
)

type Status string

const (
	StatusReserved   Status = "reserved"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"
	StatusCancelled  Status = "cancelled"
)

var statusRank = map[Status]int{
	StatusReserved:   1,
	StatusConfirmed:  2,
	StatusCheckedIn:  3,
	StatusCheckedOut: 4,
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

// CanTransition allows forward moves along reserved, confirmed, checked_in,
// checked_out, and cancelling any stay that has not checked out. Cancelled is
// terminal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from == StatusCancelled {
		return false
	}
	if to == StatusCancelled {
		return from != StatusCheckedOut
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	return ok && toRank > fromRank
}

type Booking struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	ReservationNumber  string       `gorm:"not null;uniqueIndex" json:"reservation_number"`
	RoomID             snowflake.ID `gorm:"not null;index:idx_bookings_room_range,priority:1" json:"room_id"`
	GuestID            snowflake.ID `gorm:"not null;index" json:"guest_id"`
	CheckIn            time.Time    `gorm:"column:checkin_date;type:date;not null;index:idx_bookings_room_range,priority:2" json:"checkin_date"`
	CheckOut           time.Time    `gorm:"column:checkout_date;type:date;not null;index:idx_bookings_room_range,priority:3" json:"checkout_date"`
	Nights             int          `gorm:"not null" json:"nights"`
	GuestCount         int          `gorm:"not null" json:"guest_count"`
	Status             Status       `gorm:"type:varchar(16);not null" json:"status"`
	IsMember           bool         `gorm:"not null" json:"is_member"`
	BasePriceCents     int64        `gorm:"not null" json:"base_price_cents"`
	ServicesTotalCents int64        `gorm:"not null" json:"services_total_cents"`
	DiscountTotalCents int64        `gorm:"not null" json:"discount_total_cents"`
	TotalPriceCents    int64        `gorm:"not null" json:"total_price_cents"`
	Paid               bool         `gorm:"not null" json:"paid"`
	PaidAt             *time.Time   `json:"paid_at,omitempty"`
	PaymentRecipientID *string      `json:"payment_recipient_id,omitempty"`
	FoundationCase     bool         `gorm:"not null" json:"foundation_case"`
	Notes              string       `json:"notes,omitempty"`
	Version            int64        `gorm:"not null" json:"version"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

// Occupies reports whether the booking holds its room.
func (b Booking) Occupies() bool {
	return b.Status != StatusCancelled
}

type LineItemKind string

const (
	LineItemService  LineItemKind = "service"
	LineItemDiscount LineItemKind = "discount"
)

// LineItem is a service or discount attached to one booking. TemplateID only
// records where it was copied from; template edits never reach it.
type LineItem struct {
	ID            snowflake.ID               `gorm:"primaryKey" json:"id"`
	BookingID     snowflake.ID               `gorm:"not null;index" json:"booking_id"`
	Kind          LineItemKind               `gorm:"type:varchar(16);not null" json:"kind"`
	Name          string                     `gorm:"not null" json:"name"`
	AmountCents   int64                      `gorm:"not null;default:0" json:"amount_cents"`
	DiscountType  pricingdomain.DiscountType `gorm:"type:varchar(16)" json:"discount_type,omitempty"`
	DiscountValue int64                      `gorm:"not null;default:0" json:"discount_value"`
	TemplateID    *snowflake.ID              `json:"template_id,omitempty"`
	Version       int64                      `gorm:"not null" json:"version"`
	CreatedAt     time.Time                  `gorm:"not null" json:"created_at"`
}

func (LineItem) TableName() string { return "booking_line_items" }

// Snapshot is the logged form of a booking. LineItems is only filled for
// deletes, where undo has to bring them back together with the booking.
type Snapshot struct {
	Booking
	LineItems []LineItem `json:"line_items,omitempty"`
}

// Split separates line items into pricing inputs.
func Split(items []LineItem) ([]pricingdomain.Service, []pricingdomain.Discount) {
	var services []pricingdomain.Service
	var discounts []pricingdomain.Discount
	for _, item := range items {
		switch item.Kind {
		case LineItemService:
			services = append(services, pricingdomain.Service{Name: item.Name, AmountCents: item.AmountCents})
		case LineItemDiscount:
			discounts = append(discounts, pricingdomain.Discount{Name: item.Name, Type: item.DiscountType, Value: item.DiscountValue})
		}
	}
	return services, discounts
}
