package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	availabilitydomain "github.com/smallbiznis/guesthouse/internal/availability/domain"
	"github.com/smallbiznis/guesthouse/internal/booking/domain"
	"github.com/smallbiznis/guesthouse/internal/events"
	roomdomain "github.com/smallbiznis/guesthouse/internal/room/domain"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	undodomain "github.com/smallbiznis/guesthouse/internal/undo/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"gorm.io/gorm"
)

type bookingReverter struct {
	svc *Service
}

// NewBookingReverter undoes booking entries. Undoing a CREATE also removes
// the line items attached since, and retires their pending entries. A
// booking with credit applied keeps its CREATE until the credit is undone.
func NewBookingReverter(svc *Service) undodomain.Reverter {
	return &bookingReverter{svc: svc}
}

func (r *bookingReverter) EntityType() txlogdomain.EntityType {
	return txlogdomain.EntityBooking
}

func (r *bookingReverter) Revert(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) (undodomain.Reversal, error) {
	switch entry.Operation {
	case txlogdomain.OperationCreate:
		return r.revertCreate(ctx, tx, entry)
	case txlogdomain.OperationUpdate:
		return r.revertUpdate(ctx, tx, entry)
	case txlogdomain.OperationDelete:
		return r.revertDelete(ctx, tx, entry)
	}
	return undodomain.Reversal{}, txlogdomain.ErrUndoNotSupported
}

func (r *bookingReverter) revertCreate(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) (undodomain.Reversal, error) {
	s := r.svc
	after, err := undodomain.Decode[domain.Booking](entry.After)
	if err != nil {
		return undodomain.Reversal{}, err
	}
	current, err := s.repo.LockByID(ctx, tx, entry.EntityID)
	if err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.lock", err)
	}
	if current == nil {
		return undodomain.Reversal{}, undodomain.Conflictf("booking %d no longer exists", entry.EntityID.Int64())
	}
	if current.Version != after.Version {
		return undodomain.Reversal{}, undodomain.Conflictf("booking %s changed since it was created", current.ReservationNumber)
	}
	used, err := s.ledger.BookingUsage(ctx, tx, current.ID)
	if err != nil {
		return undodomain.Reversal{}, err
	}
	if used > 0 {
		return undodomain.Reversal{}, undodomain.Conflictf("booking %s has credit applied; undo the credit first", current.ReservationNumber)
	}

	items, err := s.repo.ListLineItems(ctx, tx, current.ID)
	if err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.list_line_items", err)
	}
	if _, err := s.repo.Delete(ctx, tx, current.ID); err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.delete", err)
	}
	if err := s.txlog.Supersede(ctx, tx, txlogdomain.EntityLineItem, lineItemIDs(items)); err != nil {
		return undodomain.Reversal{}, err
	}

	reversal := undodomain.Reversal{
		Records: []txlogdomain.Record{{
			Operation:  txlogdomain.OperationDelete,
			EntityType: txlogdomain.EntityBooking,
			EntityID:   current.ID,
			Before:     domain.Snapshot{Booking: *current, LineItems: items},
		}},
		Changes: []events.Change{events.BookingChanged(current.ID, txlogdomain.OperationDelete)},
	}
	for _, item := range items {
		reversal.Changes = append(reversal.Changes, events.LineItemChanged(item.ID, txlogdomain.OperationDelete))
	}
	return reversal, nil
}

// revertUpdate puts the logged field values back. Totals are recomputed from
// the line items the booking has now, which match the logged totals unless
// items were added or removed after the update.
func (r *bookingReverter) revertUpdate(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) (undodomain.Reversal, error) {
	s := r.svc
	before, err := undodomain.Decode[domain.Booking](entry.Before)
	if err != nil {
		return undodomain.Reversal{}, err
	}
	after, err := undodomain.Decode[domain.Booking](entry.After)
	if err != nil {
		return undodomain.Reversal{}, err
	}
	current, err := s.repo.LockByID(ctx, tx, entry.EntityID)
	if err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.lock", err)
	}
	if current == nil {
		return undodomain.Reversal{}, undodomain.Conflictf("booking %d no longer exists", entry.EntityID.Int64())
	}
	if current.Version != after.Version {
		return undodomain.Reversal{}, undodomain.Conflictf("booking %s is at version %d, undo expects %d", current.ReservationNumber, current.Version, after.Version)
	}

	restored := before
	restored.CreatedAt = current.CreatedAt
	restored.Version = current.Version + 1
	restored.UpdatedAt = s.now()

	moved := restored.RoomID != current.RoomID ||
		!restored.CheckIn.Equal(current.CheckIn) ||
		!restored.CheckOut.Equal(current.CheckOut) ||
		!current.Occupies()
	if moved && restored.Occupies() {
		if err := s.availability.Guard(ctx, tx, availabilitydomain.Request{
			RoomID:           restored.RoomID,
			CheckIn:          restored.CheckIn,
			CheckOut:         restored.CheckOut,
			ExcludeBookingID: restored.ID,
		}); err != nil {
			return undodomain.Reversal{}, guardConflict(err)
		}
	}

	items, err := s.repo.ListLineItems(ctx, tx, restored.ID)
	if err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.list_line_items", err)
	}
	if err := s.reprice(ctx, tx, &restored, items); err != nil {
		return undodomain.Reversal{}, guardConflict(err)
	}
	if err := s.repo.Update(ctx, tx, &restored); err != nil {
		return undodomain.Reversal{}, guardConflict(writeErr("booking.update", err))
	}

	return undodomain.Reversal{
		Records: []txlogdomain.Record{{
			Operation:  txlogdomain.OperationUpdate,
			EntityType: txlogdomain.EntityBooking,
			EntityID:   restored.ID,
			Before:     *current,
			After:      restored,
		}},
		Changes: []events.Change{events.BookingChanged(restored.ID, txlogdomain.OperationUpdate)},
	}, nil
}

// revertDelete reinserts the booking and its line items exactly as logged.
// A slot claimed in the meantime makes it a conflict.
func (r *bookingReverter) revertDelete(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) (undodomain.Reversal, error) {
	s := r.svc
	snapshot, err := undodomain.Decode[domain.Snapshot](entry.Before)
	if err != nil {
		return undodomain.Reversal{}, err
	}
	current, err := s.repo.FindByID(ctx, tx, entry.EntityID)
	if err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.find", err)
	}
	if current != nil {
		return undodomain.Reversal{}, undodomain.Conflictf("booking %s exists again", current.ReservationNumber)
	}

	booking := snapshot.Booking
	if booking.Occupies() {
		if err := s.availability.Guard(ctx, tx, availabilitydomain.Request{
			RoomID:   booking.RoomID,
			CheckIn:  booking.CheckIn,
			CheckOut: booking.CheckOut,
		}); err != nil {
			return undodomain.Reversal{}, guardConflict(err)
		}
	}
	if err := s.repo.Insert(ctx, tx, &booking); err != nil {
		return undodomain.Reversal{}, guardConflict(writeErr("booking.insert", err))
	}
	if err := s.repo.InsertLineItems(ctx, tx, snapshot.LineItems); err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.insert_line_items", err)
	}

	reversal := undodomain.Reversal{
		Records: []txlogdomain.Record{{
			Operation:  txlogdomain.OperationCreate,
			EntityType: txlogdomain.EntityBooking,
			EntityID:   booking.ID,
			After:      booking,
		}},
		Changes: []events.Change{events.BookingChanged(booking.ID, txlogdomain.OperationCreate)},
	}
	for _, item := range snapshot.LineItems {
		reversal.Records = append(reversal.Records, txlogdomain.Record{
			Operation:  txlogdomain.OperationCreate,
			EntityType: txlogdomain.EntityLineItem,
			EntityID:   item.ID,
			After:      item,
		})
		reversal.Changes = append(reversal.Changes, events.LineItemChanged(item.ID, txlogdomain.OperationCreate))
	}
	return reversal, nil
}

type lineItemReverter struct {
	svc *Service
}

// NewLineItemReverter undoes line item entries and reprices the owning
// booking. Line items are never updated, so only CREATE and DELETE apply.
func NewLineItemReverter(svc *Service) undodomain.Reverter {
	return &lineItemReverter{svc: svc}
}

func (r *lineItemReverter) EntityType() txlogdomain.EntityType {
	return txlogdomain.EntityLineItem
}

func (r *lineItemReverter) Revert(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) (undodomain.Reversal, error) {
	switch entry.Operation {
	case txlogdomain.OperationCreate:
		return r.revertCreate(ctx, tx, entry)
	case txlogdomain.OperationDelete:
		return r.revertDelete(ctx, tx, entry)
	}
	return undodomain.Reversal{}, txlogdomain.ErrUndoNotSupported
}

func (r *lineItemReverter) revertCreate(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) (undodomain.Reversal, error) {
	s := r.svc
	after, err := undodomain.Decode[domain.LineItem](entry.After)
	if err != nil {
		return undodomain.Reversal{}, err
	}
	current, err := s.repo.FindLineItem(ctx, tx, entry.EntityID)
	if err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.find_line_item", err)
	}
	if current == nil {
		return undodomain.Reversal{}, undodomain.Conflictf("line item %d no longer exists", entry.EntityID.Int64())
	}
	if current.Version != after.Version {
		return undodomain.Reversal{}, undodomain.Conflictf("line item %d changed since it was added", current.ID.Int64())
	}

	booking, items, err := r.lockBooking(ctx, tx, current.BookingID)
	if err != nil {
		return undodomain.Reversal{}, err
	}
	remaining := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		if item.ID != current.ID {
			remaining = append(remaining, item)
		}
	}
	if err := s.reprice(ctx, tx, booking, remaining); err != nil {
		return undodomain.Reversal{}, guardConflict(err)
	}
	booking.UpdatedAt = s.now()

	if _, err := s.repo.DeleteLineItem(ctx, tx, current.ID); err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.delete_line_item", err)
	}
	if err := s.repo.Update(ctx, tx, booking); err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.update", err)
	}

	return undodomain.Reversal{
		Records: []txlogdomain.Record{{
			Operation:  txlogdomain.OperationDelete,
			EntityType: txlogdomain.EntityLineItem,
			EntityID:   current.ID,
			Before:     *current,
		}},
		Changes: []events.Change{
			events.LineItemChanged(current.ID, txlogdomain.OperationDelete),
			events.BookingChanged(booking.ID, txlogdomain.OperationUpdate),
		},
	}, nil
}

func (r *lineItemReverter) revertDelete(ctx context.Context, tx *gorm.DB, entry txlogdomain.Entry) (undodomain.Reversal, error) {
	s := r.svc
	before, err := undodomain.Decode[domain.LineItem](entry.Before)
	if err != nil {
		return undodomain.Reversal{}, err
	}
	current, err := s.repo.FindLineItem(ctx, tx, entry.EntityID)
	if err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.find_line_item", err)
	}
	if current != nil {
		return undodomain.Reversal{}, undodomain.Conflictf("line item %d exists again", current.ID.Int64())
	}

	booking, items, err := r.lockBooking(ctx, tx, before.BookingID)
	if err != nil {
		return undodomain.Reversal{}, err
	}
	if err := s.reprice(ctx, tx, booking, append(items, before)); err != nil {
		return undodomain.Reversal{}, guardConflict(err)
	}
	booking.UpdatedAt = s.now()

	if err := s.repo.InsertLineItems(ctx, tx, []domain.LineItem{before}); err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.insert_line_item", err)
	}
	if err := s.repo.Update(ctx, tx, booking); err != nil {
		return undodomain.Reversal{}, db.Wrap("booking.update", err)
	}

	return undodomain.Reversal{
		Records: []txlogdomain.Record{{
			Operation:  txlogdomain.OperationCreate,
			EntityType: txlogdomain.EntityLineItem,
			EntityID:   before.ID,
			After:      before,
		}},
		Changes: []events.Change{
			events.LineItemChanged(before.ID, txlogdomain.OperationCreate),
			events.BookingChanged(booking.ID, txlogdomain.OperationUpdate),
		},
	}, nil
}

// lockBooking locks the owning booking. A booking that is gone or cancelled
// can no longer take line item changes, which makes the undo a conflict.
func (r *lineItemReverter) lockBooking(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Booking, []domain.LineItem, error) {
	booking, items, err := r.svc.lockEditable(ctx, tx, id)
	switch {
	case err == nil:
		return booking, items, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, nil, undodomain.Conflictf("booking %d no longer exists", id.Int64())
	case errors.Is(err, domain.ErrValidation):
		return nil, nil, undodomain.Conflict(err)
	default:
		return nil, nil, err
	}
}

// guardConflict turns a lost slot or a vanished room into an undo conflict.
func guardConflict(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, availabilitydomain.ErrAvailabilityConflict) ||
		errors.Is(err, roomdomain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) {
		return undodomain.Conflict(err)
	}
	return err
}
