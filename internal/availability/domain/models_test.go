package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func d(day int) time.Time {
	return time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name       string
		a, b, c, e time.Time
		want       bool
	}{
		{"inside", d(10), d(15), d(12), d(13), true},
		{"same-day turnover after", d(10), d(15), d(15), d(18), false},
		{"same-day turnover before", d(10), d(15), d(7), d(10), false},
		{"straddles start", d(10), d(15), d(8), d(11), true},
		{"identical", d(10), d(15), d(10), d(15), true},
		{"disjoint", d(10), d(15), d(20), d(22), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.a, tc.b, tc.c, tc.e))
			assert.Equal(t, tc.want, Overlaps(tc.c, tc.e, tc.a, tc.b))
		})
	}
}
