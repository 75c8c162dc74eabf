package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Season string

const (
	SeasonPeak    Season = "peak"
	SeasonOffPeak Season = "off_peak"
)

// Rates holds the four nightly rates of a room in cents.
type Rates struct {
	PeakMember       int64 `json:"peak_member_cents"`
	PeakNonMember    int64 `json:"peak_non_member_cents"`
	OffPeakMember    int64 `json:"off_peak_member_cents"`
	OffPeakNonMember int64 `json:"off_peak_non_member_cents"`
}

// Nightly picks the rate for a season and membership.
func (r Rates) Nightly(season Season, member bool) int64 {
	switch {
	case season == SeasonPeak && member:
		return r.PeakMember
	case season == SeasonPeak:
		return r.PeakNonMember
	case member:
		return r.OffPeakMember
	default:
		return r.OffPeakNonMember
	}
}

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

type Service struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
}

// Discount values are basis points for percent discounts (1000 = 10%) and
// cents for fixed ones.
type Discount struct {
	Name  string       `json:"name"`
	Type  DiscountType `json:"type"`
	Value int64        `json:"value"`
}

type Input struct {
	Rates     Rates
	CheckIn   time.Time
	CheckOut  time.Time
	IsMember  bool
	Services  []Service
	Discounts []Discount
}

type Breakdown struct {
	Nights             int    `json:"nights"`
	Season             Season `json:"season"`
	NightlyRateCents   int64  `json:"nightly_rate_cents"`
	BaseCents          int64  `json:"base_cents"`
	ServicesTotalCents int64  `json:"services_total_cents"`
	DiscountTotalCents int64  `json:"discount_total_cents"`
	TotalCents         int64  `json:"total_cents"`
	Currency           string `json:"currency"`

	Base          decimal.Decimal `json:"base"`
	ServicesTotal decimal.Decimal `json:"services_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	Total         decimal.Decimal `json:"total"`
}

// Calculator turns a stay and its line items into a price. Compute is pure.
type Calculator interface {
	Compute(in Input) (Breakdown, error)
	SeasonOf(checkIn time.Time) Season
}

var (
	ErrInvalidDiscount = errors.New("invalid_discount")
	ErrNegativeAmount  = errors.New("negative_amount")
	ErrInvalidAmount   = errors.New("invalid_amount")
)
