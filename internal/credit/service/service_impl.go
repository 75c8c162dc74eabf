package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/clock"
	"github.com/smallbiznis/guesthouse/internal/credit/domain"
	obsmetrics "github.com/smallbiznis/guesthouse/internal/observability/metrics"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"github.com/smallbiznis/guesthouse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("credit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// Debit consumes credit against a booking. The balance row is decreased with
// a conditional update, so concurrent debits can never overdraw it.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, req domain.DebitRequest) (domain.Entry, error) {
	if req.GuestID == 0 {
		return domain.Entry{}, domain.ErrInvalidGuest
	}
	if req.AmountCents <= 0 {
		return domain.Entry{}, domain.ErrInvalidAmount
	}

	ok, err := s.repo.Decrease(ctx, tx, req.GuestID, req.AmountCents)
	if err != nil {
		if db.IsCheckViolation(err) {
			return domain.Entry{}, domain.ErrInsufficientCredit
		}
		return domain.Entry{}, db.Wrap("credit.decrease", err)
	}
	if !ok {
		return domain.Entry{}, domain.ErrInsufficientCredit
	}

	bookingID := req.BookingID
	entry := domain.Entry{
		ID:          s.genID.Generate(),
		GuestID:     req.GuestID,
		AmountCents: -req.AmountCents,
		Kind:        domain.EntryKindDebit,
		Note:        strings.TrimSpace(req.Note),
		CreatedAt:   s.clock.Now(),
	}
	if bookingID != 0 {
		entry.BookingID = &bookingID
	}
	if err := s.repo.InsertEntry(ctx, tx, &entry); err != nil {
		return domain.Entry{}, db.Wrap("credit.insert_entry", err)
	}

	s.obsMetrics.RecordCreditMovement(ctx, string(domain.EntryKindDebit))
	return entry, nil
}

func (s *Service) TopUp(ctx context.Context, tx *gorm.DB, req domain.TopUpRequest) (domain.Entry, error) {
	if req.GuestID == 0 {
		return domain.Entry{}, domain.ErrInvalidGuest
	}
	if req.AmountCents <= 0 {
		return domain.Entry{}, domain.ErrInvalidAmount
	}

	if err := s.repo.EnsureBalance(ctx, tx, req.GuestID); err != nil {
		return domain.Entry{}, db.Wrap("credit.ensure_balance", err)
	}
	if err := s.repo.Increase(ctx, tx, req.GuestID, req.AmountCents); err != nil {
		return domain.Entry{}, db.Wrap("credit.increase", err)
	}

	entry := domain.Entry{
		ID:          s.genID.Generate(),
		GuestID:     req.GuestID,
		AmountCents: req.AmountCents,
		Kind:        domain.EntryKindTopUp,
		Note:        strings.TrimSpace(req.Note),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertEntry(ctx, tx, &entry); err != nil {
		return domain.Entry{}, db.Wrap("credit.insert_entry", err)
	}

	s.obsMetrics.RecordCreditMovement(ctx, string(domain.EntryKindTopUp))
	return entry, nil
}

// Reverse deletes an entry and restores the balance it moved. Reversing a
// top-up that has since been spent fails with ErrInsufficientCredit.
func (s *Service) Reverse(ctx context.Context, tx *gorm.DB, id snowflake.ID) (domain.Entry, error) {
	entry, err := s.repo.FindEntry(ctx, tx, id)
	if err != nil {
		return domain.Entry{}, db.Wrap("credit.find_entry", err)
	}
	if entry == nil {
		return domain.Entry{}, domain.ErrEntryNotFound
	}

	switch {
	case entry.AmountCents < 0:
		if err := s.repo.EnsureBalance(ctx, tx, entry.GuestID); err != nil {
			return domain.Entry{}, db.Wrap("credit.ensure_balance", err)
		}
		if err := s.repo.Increase(ctx, tx, entry.GuestID, -entry.AmountCents); err != nil {
			return domain.Entry{}, db.Wrap("credit.increase", err)
		}
	case entry.AmountCents > 0:
		ok, err := s.repo.Decrease(ctx, tx, entry.GuestID, entry.AmountCents)
		if err != nil {
			if db.IsCheckViolation(err) {
				return domain.Entry{}, domain.ErrInsufficientCredit
			}
			return domain.Entry{}, db.Wrap("credit.decrease", err)
		}
		if !ok {
			return domain.Entry{}, fmt.Errorf("top-up already spent: %w", domain.ErrInsufficientCredit)
		}
	}

	deleted, err := s.repo.DeleteEntry(ctx, tx, id)
	if err != nil {
		return domain.Entry{}, db.Wrap("credit.delete_entry", err)
	}
	if !deleted {
		return domain.Entry{}, domain.ErrEntryNotFound
	}

	s.log.Info("credit entry reversed",
		zap.Int64("entry_id", entry.ID.Int64()),
		zap.Int64("guest_id", entry.GuestID.Int64()),
		zap.Int64("amount_cents", entry.AmountCents),
	)
	return *entry, nil
}

func (s *Service) LockedBalance(ctx context.Context, tx *gorm.DB, guestID snowflake.ID) (int64, error) {
	balance, err := s.repo.LockBalance(ctx, tx, guestID)
	if err != nil {
		return 0, db.Wrap("credit.lock_balance", err)
	}
	return balance, nil
}

// BookingUsage returns the credit consumed by a booking as a positive amount.
func (s *Service) BookingUsage(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) (int64, error) {
	sum, err := s.repo.SumForBooking(ctx, tx, bookingID)
	if err != nil {
		return 0, db.Wrap("credit.booking_usage", err)
	}
	return -sum, nil
}

func (s *Service) Balance(ctx context.Context, guestID snowflake.ID) (int64, error) {
	if guestID == 0 {
		return 0, domain.ErrInvalidGuest
	}
	balance, err := s.repo.GetBalance(ctx, s.db, guestID)
	if err != nil {
		return 0, db.Wrap("credit.balance", err)
	}
	return balance, nil
}

func (s *Service) History(ctx context.Context, req domain.HistoryRequest) (domain.HistoryResponse, error) {
	if req.GuestID == 0 {
		return domain.HistoryResponse{}, domain.ErrInvalidGuest
	}

	limit := pagination.Pagination{PageSize: req.PageSize}.Limit()
	var cursor *pagination.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.HistoryResponse{}, err
		}
		cursor = decoded
	}

	entries, err := s.repo.ListEntries(ctx, s.db, req.GuestID, cursor, limit+1)
	if err != nil {
		return domain.HistoryResponse{}, db.Wrap("credit.history", err)
	}
	balance, err := s.Balance(ctx, req.GuestID)
	if err != nil {
		return domain.HistoryResponse{}, err
	}

	entries, info := pagination.BuildCursorPageInfo(entries, limit, func(e domain.Entry) int64 {
		return e.ID.Int64()
	})
	return domain.HistoryResponse{PageInfo: info, BalanceCents: balance, Entries: entries}, nil
}

var _ domain.Ledger = (*Service)(nil)
