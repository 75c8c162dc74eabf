package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	availabilitydomain "github.com/smallbiznis/guesthouse/internal/availability/domain"
	creditdomain "github.com/smallbiznis/guesthouse/internal/credit/domain"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
)

type LineItemInput struct {
	Kind          LineItemKind               `json:"kind"`
	Name          string                     `json:"name"`
	AmountCents   int64                      `json:"amount_cents"`
	DiscountType  pricingdomain.DiscountType `json:"discount_type"`
	DiscountValue int64                      `json:"discount_value"`
	TemplateID    *snowflake.ID              `json:"template_id,omitempty"`
}

// QuoteRequest prices a stay without writing anything. Membership comes from
// IsMember when set, otherwise from the guest.
type QuoteRequest struct {
	RoomID    snowflake.ID
	GuestID   snowflake.ID
	IsMember  *bool
	CheckIn   time.Time
	CheckOut  time.Time
	LineItems []LineItemInput
}

type CreateBookingRequest struct {
	RoomID             snowflake.ID
	GuestID            snowflake.ID
	CheckIn            time.Time
	CheckOut           time.Time
	GuestCount         int
	Status             Status
	IsMember           *bool
	LineItems          []LineItemInput
	Paid               bool
	PaymentRecipientID *string
	FoundationCase     bool
	Notes              string
	// CreditCents is applied after the booking commits, clamped to the
	// guest balance and the payable total.
	CreditCents int64
}

type CreateBookingResult struct {
	Booking   Booking                 `json:"booking"`
	LineItems []LineItem              `json:"line_items"`
	Price     pricingdomain.Breakdown `json:"price"`
	Credit    *ApplyCreditResult      `json:"credit,omitempty"`
	// CreditError is set when the requested credit could not be applied.
	// The booking itself stands.
	CreditError error `json:"-"`
}

// UpdateBookingRequest is a partial update; nil fields are left alone.
type UpdateBookingRequest struct {
	ExpectedVersion    *int64
	Editor             string
	RoomID             *snowflake.ID
	CheckIn            *time.Time
	CheckOut           *time.Time
	GuestCount         *int
	Status             *Status
	IsMember           *bool
	Paid               *bool
	PaymentRecipientID *string
	FoundationCase     *bool
	Notes              *string
}

type ApplyCreditRequest struct {
	GuestID     snowflake.ID
	BookingID   snowflake.ID
	AmountCents int64
}

type ApplyCreditResult struct {
	Entry        creditdomain.Entry `json:"entry"`
	AppliedCents int64              `json:"applied_cents"`
	PayableCents int64              `json:"payable_cents"`
	BalanceCents int64              `json:"balance_cents"`
}

type TopUpCreditRequest struct {
	GuestID     snowflake.ID
	AmountCents int64
	Note        string
}

type TopUpCreditResult struct {
	Entry        creditdomain.Entry `json:"entry"`
	BalanceCents int64              `json:"balance_cents"`
}

type BookingDetails struct {
	Booking            Booking    `json:"booking"`
	LineItems          []LineItem `json:"line_items"`
	CreditAppliedCents int64      `json:"credit_applied_cents"`
	PayableCents       int64      `json:"payable_cents"`
}

// Service is the only way bookings, their line items and guest credit are
// changed. Every mutation runs in one transaction together with its
// transaction log entries and publishes change events after commit.
type Service interface {
	CheckAvailability(ctx context.Context, req availabilitydomain.Request) (availabilitydomain.Result, error)
	CalculatePrice(ctx context.Context, req QuoteRequest) (pricingdomain.Breakdown, error)

	CreateBooking(ctx context.Context, req CreateBookingRequest) (CreateBookingResult, error)
	UpdateBooking(ctx context.Context, id snowflake.ID, req UpdateBookingRequest) (Booking, error)
	CancelBooking(ctx context.Context, id snowflake.ID) (Booking, error)
	DeleteBooking(ctx context.Context, id snowflake.ID) error
	GetBooking(ctx context.Context, id snowflake.ID) (BookingDetails, error)

	AddLineItem(ctx context.Context, bookingID snowflake.ID, input LineItemInput) (LineItem, error)
	RemoveLineItem(ctx context.Context, id snowflake.ID) error

	ApplyCredit(ctx context.Context, req ApplyCreditRequest) (ApplyCreditResult, error)
	TopUpCredit(ctx context.Context, req TopUpCreditRequest) (TopUpCreditResult, error)
}
