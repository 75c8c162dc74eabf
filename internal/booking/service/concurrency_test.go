package service

import (
	"errors"
	"sync"
	"testing"

	availabilitydomain "github.com/smallbiznis/guesthouse/internal/availability/domain"
	"github.com/smallbiznis/guesthouse/internal/booking/domain"
	creditdomain "github.com/smallbiznis/guesthouse/internal/credit/domain"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentOverlappingCreatesSucceedOnce(t *testing.T) {
	h := newHarness(t, nil)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		other     []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.CreateBooking(h.ctx, h.request(june10, june15))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, availabilitydomain.ErrAvailabilityConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, int64(1), h.count(&domain.Booking{}))
}

func TestConcurrentCreditApplicationNeverOverdraws(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june12)
	_, err := h.svc.TopUpCredit(h.ctx, domain.TopUpCreditRequest{GuestID: h.guest.ID, AmountCents: 5000})
	require.NoError(t, err)

	const workers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		applied  int64
		rejected int
		other    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.svc.ApplyCredit(h.ctx, domain.ApplyCreditRequest{
				GuestID:     h.guest.ID,
				BookingID:   created.Booking.ID,
				AmountCents: 1000,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied += result.AppliedCents
			case errors.Is(err, creditdomain.ErrInsufficientCredit):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, int64(5000), applied)
	assert.Equal(t, workers-5, rejected)
	assert.Equal(t, int64(0), h.balance(h.guest.ID))

	details, err := h.svc.GetBooking(h.ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), details.CreditAppliedCents)
	assert.Equal(t, int64(15000), details.PayableCents)
}

func TestConcurrentUndoOfSameEntryAppliesOnce(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june15)
	entry := h.latest(txlogdomain.EntityBooking, created.Booking.ID)

	const workers = 4
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		undone int
		again  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.undo.Undo(h.ctx, entry.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				undone++
			} else if errors.Is(err, txlogdomain.ErrAlreadyUndone) {
				again++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, undone)
	assert.Equal(t, workers-1, again)
	assert.Nil(t, h.booking(created.Booking.ID))
}
