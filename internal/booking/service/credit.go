package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/guesthouse/internal/booking/domain"
	creditdomain "github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/internal/events"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApplyCredit debits guest credit against a booking. The amount is clamped to
// min(requested, balance, payable) while the booking and the balance row are
// locked, so concurrent applications cannot overdraw either.
func (s *Service) ApplyCredit(ctx context.Context, req domain.ApplyCreditRequest) (domain.ApplyCreditResult, error) {
	if req.AmountCents <= 0 {
		return domain.ApplyCreditResult{}, domain.Invalid("amount_cents", domain.CodeInvalidCreditValue, "must be positive")
	}

	var result domain.ApplyCreditResult
	err := s.tx.Transaction(ctx, s.db, "booking.apply_credit", func(tx *gorm.DB) error {
		booking, err := s.repo.LockByID(ctx, tx, req.BookingID)
		if err != nil {
			return db.Wrap("booking.lock", err)
		}
		if booking == nil {
			return domain.ErrNotFound
		}
		if booking.Status == domain.StatusCancelled {
			return domain.Invalid("booking_id", domain.CodeBookingCancelled, "booking %s is cancelled", booking.ReservationNumber)
		}
		if req.GuestID != 0 && req.GuestID != booking.GuestID {
			return domain.Invalid("guest_id", domain.CodeGuestMismatch, "booking %s belongs to another guest", booking.ReservationNumber)
		}

		used, err := s.ledger.BookingUsage(ctx, tx, booking.ID)
		if err != nil {
			return err
		}
		payable := booking.TotalPriceCents - used
		if payable <= 0 {
			return domain.Invalid("booking_id", domain.CodeNothingPayable, "booking %s is fully covered", booking.ReservationNumber)
		}
		balance, err := s.ledger.LockedBalance(ctx, tx, booking.GuestID)
		if err != nil {
			return err
		}
		amount := min(req.AmountCents, balance, payable)
		if amount <= 0 {
			return fmt.Errorf("guest %d has no credit: %w", booking.GuestID.Int64(), creditdomain.ErrInsufficientCredit)
		}

		entry, err := s.ledger.Debit(ctx, tx, creditdomain.DebitRequest{
			GuestID:     booking.GuestID,
			BookingID:   booking.ID,
			AmountCents: amount,
			Note:        "Booking " + booking.ReservationNumber,
		})
		if err != nil {
			return err
		}
		if _, err := s.txlog.Record(ctx, tx, txlogdomain.Record{
			Operation:  txlogdomain.OperationCreate,
			EntityType: txlogdomain.EntityCreditEntry,
			EntityID:   entry.ID,
			After:      entry,
			Label:      fmt.Sprintf("Apply %s credit to booking %s", formatCents(amount), booking.ReservationNumber),
		}); err != nil {
			return err
		}

		result = domain.ApplyCreditResult{
			Entry:        entry,
			AppliedCents: amount,
			PayableCents: payable - amount,
			BalanceCents: balance - amount,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, creditdomain.ErrInsufficientCredit) {
			s.log.Info("credit rejected", zap.Int64("booking_id", req.BookingID.Int64()), zap.Error(err))
		}
		return domain.ApplyCreditResult{}, err
	}

	s.committed(ctx, txlogdomain.EntityCreditEntry, txlogdomain.OperationCreate,
		events.CreditEntryChanged(result.Entry.ID, txlogdomain.OperationCreate),
		events.BookingChanged(req.BookingID, txlogdomain.OperationUpdate),
	)
	s.bookingLog(ctx, req.BookingID).Info("credit applied",
		zap.Int64("applied_cents", result.AppliedCents),
		zap.Int64("payable_cents", result.PayableCents),
	)
	return result, nil
}

func (s *Service) TopUpCredit(ctx context.Context, req domain.TopUpCreditRequest) (domain.TopUpCreditResult, error) {
	if req.AmountCents <= 0 {
		return domain.TopUpCreditResult{}, domain.Invalid("amount_cents", domain.CodeInvalidCreditValue, "must be positive")
	}

	var result domain.TopUpCreditResult
	err := s.tx.Transaction(ctx, s.db, "booking.top_up_credit", func(tx *gorm.DB) error {
		guest, err := s.guestRepo.FindByID(ctx, tx, req.GuestID)
		if err != nil {
			return db.Wrap("booking.find_guest", err)
		}
		if guest == nil {
			return domain.Invalid("guest_id", domain.CodeGuestNotFound, "guest %d does not exist", req.GuestID.Int64())
		}

		entry, err := s.ledger.TopUp(ctx, tx, creditdomain.TopUpRequest{
			GuestID:     guest.ID,
			AmountCents: req.AmountCents,
			Note:        req.Note,
		})
		if err != nil {
			return err
		}
		balance, err := s.ledger.LockedBalance(ctx, tx, guest.ID)
		if err != nil {
			return err
		}
		if _, err := s.txlog.Record(ctx, tx, txlogdomain.Record{
			Operation:  txlogdomain.OperationCreate,
			EntityType: txlogdomain.EntityCreditEntry,
			EntityID:   entry.ID,
			After:      entry,
			Label:      fmt.Sprintf("Top up %s credit for %s %s", formatCents(entry.AmountCents), guest.FirstName, guest.LastName),
		}); err != nil {
			return err
		}
		result = domain.TopUpCreditResult{Entry: entry, BalanceCents: balance}
		return nil
	})
	if err != nil {
		return domain.TopUpCreditResult{}, err
	}

	s.committed(ctx, txlogdomain.EntityCreditEntry, txlogdomain.OperationCreate,
		events.CreditEntryChanged(result.Entry.ID, txlogdomain.OperationCreate))
	return result, nil
}

func formatCents(cents int64) string {
	return pricingdomain.ToDecimal(cents).StringFixed(2)
}
