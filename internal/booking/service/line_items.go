package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/booking/domain"
	"github.com/smallbiznis/guesthouse/internal/events"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AddLineItem attaches a service or discount and reprices the booking in the
// same transaction. The booking version only tracks booking-level edits, so
// it is left alone.
func (s *Service) AddLineItem(ctx context.Context, bookingID snowflake.ID, input domain.LineItemInput) (domain.LineItem, error) {
	if err := validateLineItem(input); err != nil {
		return domain.LineItem{}, err
	}

	var item domain.LineItem
	err := s.tx.Transaction(ctx, s.db, "booking.add_line_item", func(tx *gorm.DB) error {
		booking, items, err := s.lockEditable(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		now := s.now()
		item = newLineItem(input, booking.ID, now)
		item.ID = s.genID.Generate()
		if err := s.reprice(ctx, tx, booking, append(items, item)); err != nil {
			return err
		}
		booking.UpdatedAt = now

		if err := s.repo.InsertLineItems(ctx, tx, []domain.LineItem{item}); err != nil {
			return db.Wrap("booking.insert_line_item", err)
		}
		if err := s.repo.Update(ctx, tx, booking); err != nil {
			return writeErr("booking.update", err)
		}
		_, err = s.txlog.Record(ctx, tx, txlogdomain.Record{
			Operation:  txlogdomain.OperationCreate,
			EntityType: txlogdomain.EntityLineItem,
			EntityID:   item.ID,
			After:      item,
			Label:      fmt.Sprintf("Add %s %q to booking %s", item.Kind, item.Name, booking.ReservationNumber),
		})
		return err
	})
	if err != nil {
		return domain.LineItem{}, err
	}

	s.committed(ctx, txlogdomain.EntityLineItem, txlogdomain.OperationCreate,
		events.LineItemChanged(item.ID, txlogdomain.OperationCreate),
		events.BookingChanged(bookingID, txlogdomain.OperationUpdate),
	)
	s.bookingLog(ctx, bookingID).Info("line item added",
		zap.Int64("line_item_id", item.ID.Int64()),
		zap.String("kind", string(item.Kind)),
	)
	return item, nil
}

func (s *Service) RemoveLineItem(ctx context.Context, id snowflake.ID) error {
	var bookingID snowflake.ID
	err := s.tx.Transaction(ctx, s.db, "booking.remove_line_item", func(tx *gorm.DB) error {
		item, err := s.repo.FindLineItem(ctx, tx, id)
		if err != nil {
			return db.Wrap("booking.find_line_item", err)
		}
		if item == nil {
			return domain.ErrLineItemNotFound
		}
		bookingID = item.BookingID

		booking, items, err := s.lockEditable(ctx, tx, item.BookingID)
		if err != nil {
			return err
		}
		remaining := make([]domain.LineItem, 0, len(items))
		for _, other := range items {
			if other.ID != item.ID {
				remaining = append(remaining, other)
			}
		}
		if err := s.reprice(ctx, tx, booking, remaining); err != nil {
			return err
		}
		booking.UpdatedAt = s.now()

		deleted, err := s.repo.DeleteLineItem(ctx, tx, item.ID)
		if err != nil {
			return db.Wrap("booking.delete_line_item", err)
		}
		if !deleted {
			return domain.ErrLineItemNotFound
		}
		if err := s.repo.Update(ctx, tx, booking); err != nil {
			return writeErr("booking.update", err)
		}
		_, err = s.txlog.Record(ctx, tx, txlogdomain.Record{
			Operation:  txlogdomain.OperationDelete,
			EntityType: txlogdomain.EntityLineItem,
			EntityID:   item.ID,
			Before:     *item,
			Label:      fmt.Sprintf("Remove %s %q from booking %s", item.Kind, item.Name, booking.ReservationNumber),
		})
		return err
	})
	if err != nil {
		return err
	}

	s.committed(ctx, txlogdomain.EntityLineItem, txlogdomain.OperationDelete,
		events.LineItemChanged(id, txlogdomain.OperationDelete),
		events.BookingChanged(bookingID, txlogdomain.OperationUpdate),
	)
	s.bookingLog(ctx, bookingID).Info("line item removed", zap.Int64("line_item_id", id.Int64()))
	return nil
}

// lockEditable locks a booking that may still be changed and loads its line
// items.
func (s *Service) lockEditable(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Booking, []domain.LineItem, error) {
	booking, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		return nil, nil, db.Wrap("booking.lock", err)
	}
	if booking == nil {
		return nil, nil, domain.ErrNotFound
	}
	if booking.Status == domain.StatusCancelled {
		return nil, nil, domain.Invalid("status", domain.CodeBookingCancelled, "booking %s is cancelled", booking.ReservationNumber)
	}
	items, err := s.repo.ListLineItems(ctx, tx, id)
	if err != nil {
		return nil, nil, db.Wrap("booking.list_line_items", err)
	}
	return booking, items, nil
}
