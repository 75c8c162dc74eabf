package service

import (
	"testing"
	"time"

	availabilitydomain "github.com/smallbiznis/guesthouse/internal/availability/domain"
	"github.com/smallbiznis/guesthouse/internal/booking/domain"
	creditdomain "github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/internal/events"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
	"github.com/smallbiznis/guesthouse/internal/testutil"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndoCreateRemovesBookingOnce(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june15)
	entry := h.latest(txlogdomain.EntityBooking, created.Booking.ID)

	sub, _, err := h.hub.Subscribe(events.TopicAll)
	require.NoError(t, err)
	defer sub.Close()

	result, err := h.undo.Undo(h.ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, result.Entry.CanUndo)
	require.Len(t, result.Compensations, 1)
	comp := result.Compensations[0]
	assert.Equal(t, txlogdomain.OperationDelete, comp.Operation)
	assert.Equal(t, "Undo: "+entry.Label, comp.Label)
	require.NotNil(t, comp.UndoOf)
	assert.Equal(t, entry.ID, *comp.UndoOf)
	assert.False(t, comp.CanUndo)

	assert.Nil(t, h.booking(created.Booking.ID))
	check, err := h.svc.CheckAvailability(h.ctx, availabilitydomain.Request{RoomID: h.room.ID, CheckIn: june10, CheckOut: june15})
	require.NoError(t, err)
	assert.True(t, check.Available)

	stored, err := h.txlog.Get(h.ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.CanUndo)

	_, err = h.undo.Undo(h.ctx, entry.ID)
	assert.ErrorIs(t, err, txlogdomain.ErrAlreadyUndone)

	select {
	case event := <-sub.Events():
		assert.Equal(t, events.BookingChanged(created.Booking.ID, txlogdomain.OperationDelete), event.Change)
	case <-time.After(time.Second):
		t.Fatal("undo published no change")
	}
}

func TestUndoUnknownEntry(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.undo.Undo(h.ctx, h.node.Generate())
	assert.ErrorIs(t, err, txlogdomain.ErrEntryNotFound)
}

func TestUndoCreateCascadesToLineItems(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june12)
	item, err := h.svc.AddLineItem(h.ctx, created.Booking.ID, domain.LineItemInput{
		Kind: domain.LineItemService, Name: "Parking", AmountCents: 1200,
	})
	require.NoError(t, err)
	itemEntry := h.latest(txlogdomain.EntityLineItem, item.ID)
	require.True(t, itemEntry.CanUndo)

	_, err = h.undo.Undo(h.ctx, h.latest(txlogdomain.EntityBooking, created.Booking.ID).ID)
	require.NoError(t, err)

	assert.Zero(t, h.count(&domain.LineItem{}))
	superseded, err := h.txlog.Get(h.ctx, itemEntry.ID)
	require.NoError(t, err)
	assert.False(t, superseded.CanUndo)

	_, err = h.undo.Undo(h.ctx, itemEntry.ID)
	assert.ErrorIs(t, err, txlogdomain.ErrUndoConflict)
	assert.NotErrorIs(t, err, txlogdomain.ErrAlreadyUndone)
}

func TestUndoCreateConflictsWithLaterChange(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june12)
	entry := h.latest(txlogdomain.EntityBooking, created.Booking.ID)

	require.NoError(t, h.conn.Model(&domain.Booking{}).
		Where("id = ?", created.Booking.ID).
		Update("version", 2).Error)

	_, err := h.undo.Undo(h.ctx, entry.ID)
	require.ErrorIs(t, err, txlogdomain.ErrUndoConflict)

	assert.NotNil(t, h.booking(created.Booking.ID))
	stored, err := h.txlog.Get(h.ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.CanUndo)
}

func TestUndoUpdateRestoresFields(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june12)

	notes := "late check-out"
	updated, err := h.svc.UpdateBooking(h.ctx, created.Booking.ID, domain.UpdateBookingRequest{
		CheckOut: &june15,
		Notes:    &notes,
	})
	require.NoError(t, err)
	require.Equal(t, int64(50000), updated.TotalPriceCents)

	h.clock.Advance(time.Hour)
	entry := h.latest(txlogdomain.EntityBooking, created.Booking.ID)
	result, err := h.undo.Undo(h.ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, result.Compensations, 1)
	assert.Equal(t, txlogdomain.OperationUpdate, result.Compensations[0].Operation)

	restored := h.booking(created.Booking.ID)
	assert.True(t, restored.CheckOut.Equal(june12))
	assert.Empty(t, restored.Notes)
	assert.Equal(t, 2, restored.Nights)
	assert.Equal(t, int64(20000), restored.TotalPriceCents)
	assert.Equal(t, updated.Version+1, restored.Version)
	assert.True(t, restored.UpdatedAt.After(updated.UpdatedAt))

	// The compensating entry is the newest one and cannot be undone.
	latest := h.latest(txlogdomain.EntityBooking, created.Booking.ID)
	assert.Equal(t, result.Compensations[0].ID, latest.ID)
	_, err = h.undo.Undo(h.ctx, latest.ID)
	assert.ErrorIs(t, err, txlogdomain.ErrUndoNotSupported)
}

func TestUndoUpdateConflictsWhenBookingMovedOn(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june12)

	_, err := h.svc.UpdateBooking(h.ctx, created.Booking.ID, domain.UpdateBookingRequest{CheckOut: &june13})
	require.NoError(t, err)
	first := h.latest(txlogdomain.EntityBooking, created.Booking.ID)
	_, err = h.svc.UpdateBooking(h.ctx, created.Booking.ID, domain.UpdateBookingRequest{CheckOut: &june15})
	require.NoError(t, err)

	_, err = h.undo.Undo(h.ctx, first.ID)
	require.ErrorIs(t, err, txlogdomain.ErrUndoConflict)
	assert.NotErrorIs(t, err, txlogdomain.ErrAlreadyUndone)
	assert.True(t, h.booking(created.Booking.ID).CheckOut.Equal(june15))

	// The newer update is still the one that can be undone.
	_, err = h.undo.Undo(h.ctx, h.latest(txlogdomain.EntityBooking, created.Booking.ID).ID)
	require.NoError(t, err)
	assert.True(t, h.booking(created.Booking.ID).CheckOut.Equal(june13))
}

func TestUndoCreateRejectedWhileCreditApplied(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june12)
	entry := h.latest(txlogdomain.EntityBooking, created.Booking.ID)

	_, err := h.svc.TopUpCredit(h.ctx, domain.TopUpCreditRequest{GuestID: h.guest.ID, AmountCents: 5000})
	require.NoError(t, err)
	applied, err := h.svc.ApplyCredit(h.ctx, domain.ApplyCreditRequest{GuestID: h.guest.ID, BookingID: created.Booking.ID, AmountCents: 5000})
	require.NoError(t, err)
	require.Equal(t, int64(0), h.balance(h.guest.ID))

	_, err = h.undo.Undo(h.ctx, entry.ID)
	require.ErrorIs(t, err, txlogdomain.ErrUndoConflict)
	assert.NotNil(t, h.booking(created.Booking.ID))
	stored, err := h.txlog.Get(h.ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.CanUndo)

	_, err = h.undo.Undo(h.ctx, h.latest(txlogdomain.EntityCreditEntry, applied.Entry.ID).ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), h.balance(h.guest.ID))

	_, err = h.undo.Undo(h.ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, h.booking(created.Booking.ID))
}

func TestUndoCancelConflictsWhenSlotWasRetaken(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june15)
	_, err := h.svc.CancelBooking(h.ctx, created.Booking.ID)
	require.NoError(t, err)
	cancel := h.latest(txlogdomain.EntityBooking, created.Booking.ID)

	h.create(june12, june13)

	_, err = h.undo.Undo(h.ctx, cancel.ID)
	require.ErrorIs(t, err, txlogdomain.ErrUndoConflict)
	assert.ErrorIs(t, err, availabilitydomain.ErrAvailabilityConflict)
	assert.Equal(t, domain.StatusCancelled, h.booking(created.Booking.ID).Status)
}

func TestUndoDeleteRestoresBookingAndLineItems(t *testing.T) {
	h := newHarness(t, []testutil.RoomOption{testutil.WithCleaningFee(2500)})
	req := h.request(june10, june15)
	req.LineItems = []domain.LineItemInput{
		{Kind: domain.LineItemService, Name: "Breakfast", AmountCents: 1500},
		{Kind: domain.LineItemDiscount, Name: "Loyalty", DiscountType: pricingdomain.DiscountPercent, DiscountValue: 500},
	}
	created, err := h.svc.CreateBooking(h.ctx, req)
	require.NoError(t, err)

	before, err := h.svc.GetBooking(h.ctx, created.Booking.ID)
	require.NoError(t, err)
	require.Len(t, before.LineItems, 3)

	require.NoError(t, h.svc.DeleteBooking(h.ctx, created.Booking.ID))
	assert.Nil(t, h.booking(created.Booking.ID))
	assert.Zero(t, h.count(&domain.LineItem{}))

	deleted := h.latest(txlogdomain.EntityBooking, created.Booking.ID)
	require.Equal(t, txlogdomain.OperationDelete, deleted.Operation)
	result, err := h.undo.Undo(h.ctx, deleted.ID)
	require.NoError(t, err)
	assert.Len(t, result.Compensations, 4)

	after, err := h.svc.GetBooking(h.ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Booking, after.Booking)
	assert.Equal(t, before.LineItems, after.LineItems)

	check, err := h.svc.CheckAvailability(h.ctx, availabilitydomain.Request{RoomID: h.room.ID, CheckIn: june12, CheckOut: june13})
	require.NoError(t, err)
	assert.False(t, check.Available)
}

func TestUndoDeleteConflictsWhenSlotWasRetaken(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june15)
	require.NoError(t, h.svc.DeleteBooking(h.ctx, created.Booking.ID))
	deleted := h.latest(txlogdomain.EntityBooking, created.Booking.ID)

	h.create(june12, june13)

	_, err := h.undo.Undo(h.ctx, deleted.ID)
	require.ErrorIs(t, err, txlogdomain.ErrUndoConflict)
	assert.ErrorIs(t, err, availabilitydomain.ErrAvailabilityConflict)
	assert.Nil(t, h.booking(created.Booking.ID))

	stored, err := h.txlog.Get(h.ctx, deleted.ID)
	require.NoError(t, err)
	assert.True(t, stored.CanUndo)
}

func TestUndoLineItemAddAndRemove(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june12)

	item, err := h.svc.AddLineItem(h.ctx, created.Booking.ID, domain.LineItemInput{
		Kind: domain.LineItemService, Name: "Dinner", AmountCents: 4500,
	})
	require.NoError(t, err)
	require.Equal(t, int64(24500), h.booking(created.Booking.ID).TotalPriceCents)

	_, err = h.undo.Undo(h.ctx, h.latest(txlogdomain.EntityLineItem, item.ID).ID)
	require.NoError(t, err)
	assert.Zero(t, h.count(&domain.LineItem{}))
	assert.Equal(t, int64(20000), h.booking(created.Booking.ID).TotalPriceCents)

	kept, err := h.svc.AddLineItem(h.ctx, created.Booking.ID, domain.LineItemInput{
		Kind: domain.LineItemDiscount, Name: "Staff", DiscountType: pricingdomain.DiscountFixed, DiscountValue: 5000,
	})
	require.NoError(t, err)
	require.NoError(t, h.svc.RemoveLineItem(h.ctx, kept.ID))
	require.Equal(t, int64(20000), h.booking(created.Booking.ID).TotalPriceCents)

	_, err = h.undo.Undo(h.ctx, h.latest(txlogdomain.EntityLineItem, kept.ID).ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), h.booking(created.Booking.ID).TotalPriceCents)
	assert.Equal(t, int64(1), h.count(&domain.LineItem{}))
}

func TestUndoLineItemOnCancelledBookingConflicts(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june12)
	item, err := h.svc.AddLineItem(h.ctx, created.Booking.ID, domain.LineItemInput{
		Kind: domain.LineItemService, Name: "Dinner", AmountCents: 4500,
	})
	require.NoError(t, err)
	_, err = h.svc.CancelBooking(h.ctx, created.Booking.ID)
	require.NoError(t, err)

	_, err = h.undo.Undo(h.ctx, h.latest(txlogdomain.EntityLineItem, item.ID).ID)
	assert.ErrorIs(t, err, txlogdomain.ErrUndoConflict)
}

func TestApplyCreditAndUndo(t *testing.T) {
	h := newHarness(t, nil)
	visitor := testutil.SeedGuest(t, h.conn, h.node, false)
	req := h.request(testutil.Date(2025, time.July, 1), testutil.Date(2025, time.July, 2))
	req.GuestID = visitor.ID
	created, err := h.svc.CreateBooking(h.ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(12000), created.Booking.TotalPriceCents)

	topUp, err := h.svc.TopUpCredit(h.ctx, domain.TopUpCreditRequest{GuestID: visitor.ID, AmountCents: 5000})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), topUp.BalanceCents)

	applied, err := h.svc.ApplyCredit(h.ctx, domain.ApplyCreditRequest{GuestID: visitor.ID, BookingID: created.Booking.ID, AmountCents: 5000})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), applied.AppliedCents)
	assert.Equal(t, int64(7000), applied.PayableCents)
	assert.Equal(t, int64(0), applied.BalanceCents)
	assert.Equal(t, int64(0), h.balance(visitor.ID))

	entry := h.latest(txlogdomain.EntityCreditEntry, applied.Entry.ID)
	assert.Equal(t, "Apply 50.00 credit to booking "+created.Booking.ReservationNumber, entry.Label)

	// The top-up was spent, so taking it back would overdraw the guest.
	_, err = h.undo.Undo(h.ctx, h.latest(txlogdomain.EntityCreditEntry, topUp.Entry.ID).ID)
	require.ErrorIs(t, err, txlogdomain.ErrUndoConflict)
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredit)

	_, err = h.undo.Undo(h.ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), h.balance(visitor.ID))

	details, err := h.svc.GetBooking(h.ctx, created.Booking.ID)
	require.NoError(t, err)
	assert.Zero(t, details.CreditAppliedCents)
	assert.Equal(t, int64(12000), details.PayableCents)

	_, err = h.undo.Undo(h.ctx, h.latest(txlogdomain.EntityCreditEntry, topUp.Entry.ID).ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.balance(visitor.ID))
}

func TestApplyCreditValidation(t *testing.T) {
	h := newHarness(t, nil)
	created := h.create(june10, june12)
	other := testutil.SeedGuest(t, h.conn, h.node, false)
	_, err := h.svc.TopUpCredit(h.ctx, domain.TopUpCreditRequest{GuestID: other.ID, AmountCents: 1000})
	require.NoError(t, err)

	_, err = h.svc.ApplyCredit(h.ctx, domain.ApplyCreditRequest{BookingID: created.Booking.ID, AmountCents: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.ApplyCredit(h.ctx, domain.ApplyCreditRequest{GuestID: other.ID, BookingID: created.Booking.ID, AmountCents: 500})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.svc.ApplyCredit(h.ctx, domain.ApplyCreditRequest{BookingID: created.Booking.ID, AmountCents: 500})
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredit)

	_, err = h.svc.TopUpCredit(h.ctx, domain.TopUpCreditRequest{GuestID: h.node.Generate(), AmountCents: 1000})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
