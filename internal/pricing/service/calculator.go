package service

import (
	"fmt"
	"time"

	"github.com/smallbiznis/guesthouse/internal/config"
	"github.com/smallbiznis/guesthouse/internal/pricing/domain"
)

const day = 24 * time.Hour

type calculator struct {
	pricing *config.PricingConfigHolder
}

func New(pricing *config.PricingConfigHolder) domain.Calculator {
	return &calculator{pricing: pricing}
}

// Compute prices a stay in a fixed order: nights, season, nightly rate, base,
// services, discounts, total. Percent discounts apply to base+services, not
// to a running total, so several of them add up instead of compounding.
// DiscountTotalCents is the raw sum; only the total is floored at zero.
func (c *calculator) Compute(in domain.Input) (domain.Breakdown, error) {
	cfg := c.pricing.Get()

	nights := Nights(in.CheckIn, in.CheckOut)
	season := c.seasonOf(cfg, in.CheckIn)
	nightly := in.Rates.Nightly(season, in.IsMember)
	if nightly < 0 {
		return domain.Breakdown{}, fmt.Errorf("nightly rate: %w", domain.ErrNegativeAmount)
	}
	base := nightly * int64(nights)

	var services int64
	for _, s := range in.Services {
		if s.AmountCents < 0 {
			return domain.Breakdown{}, fmt.Errorf("service %q: %w", s.Name, domain.ErrNegativeAmount)
		}
		services += s.AmountCents
	}

	subtotal := base + services
	var discounts int64
	for _, d := range in.Discounts {
		amount, err := discountAmount(d, subtotal)
		if err != nil {
			return domain.Breakdown{}, err
		}
		discounts += amount
	}
	total := max(subtotal-discounts, 0)

	return domain.Breakdown{
		Nights:             nights,
		Season:             season,
		NightlyRateCents:   nightly,
		BaseCents:          base,
		ServicesTotalCents: services,
		DiscountTotalCents: discounts,
		TotalCents:         total,
		Currency:           cfg.Currency,
		Base:               domain.ToDecimal(base),
		ServicesTotal:      domain.ToDecimal(services),
		DiscountTotal:      domain.ToDecimal(discounts),
		Total:              domain.ToDecimal(total),
	}, nil
}

func (c *calculator) SeasonOf(checkIn time.Time) domain.Season {
	return c.seasonOf(c.pricing.Get(), checkIn)
}

func (c *calculator) seasonOf(cfg config.PricingConfig, checkIn time.Time) domain.Season {
	md := config.MonthDayOf(checkIn)
	for _, window := range cfg.PeakSeasons {
		start, err := config.ParseMonthDay(window.Start)
		if err != nil {
			continue
		}
		end, err := config.ParseMonthDay(window.End)
		if err != nil {
			continue
		}
		if inWindow(md, start, end) {
			return domain.SeasonPeak
		}
	}
	return domain.SeasonOffPeak
}

func inWindow(md, start, end config.MonthDay) bool {
	if start <= end {
		return md >= start && md <= end
	}
	return md >= start || md <= end
}

func discountAmount(d domain.Discount, subtotal int64) (int64, error) {
	if d.Value < 0 {
		return 0, fmt.Errorf("discount %q: %w", d.Name, domain.ErrInvalidDiscount)
	}
	switch d.Type {
	case domain.DiscountPercent:
		if d.Value > domain.MaxBasisPoints {
			return 0, fmt.Errorf("discount %q above 100%%: %w", d.Name, domain.ErrInvalidDiscount)
		}
		return domain.PercentOf(subtotal, d.Value), nil
	case domain.DiscountFixed:
		return d.Value, nil
	default:
		return 0, fmt.Errorf("discount %q type %q: %w", d.Name, d.Type, domain.ErrInvalidDiscount)
	}
}

// Nights counts whole days between two dates, never less than one.
func Nights(checkIn, checkOut time.Time) int {
	n := int(DateOnly(checkOut).Sub(DateOnly(checkIn)) / day)
	if n < 1 {
		return 1
	}
	return n
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
