package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	availabilitydomain "github.com/smallbiznis/guesthouse/internal/availability/domain"
	"github.com/smallbiznis/guesthouse/internal/booking/domain"
	"github.com/smallbiznis/guesthouse/internal/cache"
	"github.com/smallbiznis/guesthouse/internal/clock"
	creditdomain "github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/internal/editlock"
	"github.com/smallbiznis/guesthouse/internal/events"
	guestdomain "github.com/smallbiznis/guesthouse/internal/guest/domain"
	"github.com/smallbiznis/guesthouse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/guesthouse/internal/observability/metrics"
	"github.com/smallbiznis/guesthouse/internal/observability/tracing"
	pricingdomain "github.com/smallbiznis/guesthouse/internal/pricing/domain"
	pricingservice "github.com/smallbiznis/guesthouse/internal/pricing/service"
	roomdomain "github.com/smallbiznis/guesthouse/internal/room/domain"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cleaningFeeName = "Cleaning fee"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Tx           *db.Transactor
	Repo         domain.Repository
	RoomRepo     roomdomain.Repository
	GuestRepo    guestdomain.Repository
	Availability availabilitydomain.Checker
	Calculator   pricingdomain.Calculator
	Ledger       creditdomain.Ledger
	TxLog        txlogdomain.Logger
	Publisher    events.Publisher    `optional:"true"`
	Locker       *editlock.Locker    `optional:"true"`
	Previews     cache.PreviewCache  `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	tx           *db.Transactor
	repo         domain.Repository
	roomRepo     roomdomain.Repository
	guestRepo    guestdomain.Repository
	availability availabilitydomain.Checker
	calculator   pricingdomain.Calculator
	ledger       creditdomain.Ledger
	txlog        txlogdomain.Logger
	publisher    events.Publisher
	locker       *editlock.Locker
	previews     cache.PreviewCache
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) *Service {
	previews := p.Previews
	if previews == nil {
		previews = cache.NewPreviewCache(0)
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("booking.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		tx:           p.Tx,
		repo:         p.Repo,
		roomRepo:     p.RoomRepo,
		guestRepo:    p.GuestRepo,
		availability: p.Availability,
		calculator:   p.Calculator,
		ledger:       p.Ledger,
		txlog:        p.TxLog,
		publisher:    p.Publisher,
		locker:       p.Locker,
		previews:     previews,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) CheckAvailability(ctx context.Context, req availabilitydomain.Request) (availabilitydomain.Result, error) {
	result, err := s.availability.Check(ctx, req)
	if errors.Is(err, availabilitydomain.ErrInvalidRange) {
		return availabilitydomain.Result{}, domain.Invalid("checkout_date", domain.CodeInvalidDates, "check-out must be after check-in")
	}
	if errors.Is(err, availabilitydomain.ErrInvalidRoom) {
		return availabilitydomain.Result{}, domain.Invalid("room_id", domain.CodeRoomNotFound, "room is required")
	}
	return result, err
}

// CalculatePrice is a read-only preview. When the database is unreachable the
// last known room and guest are used.
func (s *Service) CalculatePrice(ctx context.Context, req domain.QuoteRequest) (pricingdomain.Breakdown, error) {
	checkIn, checkOut, err := validateDates(req.CheckIn, req.CheckOut)
	if err != nil {
		return pricingdomain.Breakdown{}, err
	}
	if err := validateLineItems(req.LineItems); err != nil {
		return pricingdomain.Breakdown{}, err
	}

	room, err := s.previewRoom(ctx, req.RoomID)
	if err != nil {
		return pricingdomain.Breakdown{}, err
	}

	member := false
	switch {
	case req.IsMember != nil:
		member = *req.IsMember
	case req.GuestID != 0:
		guest, err := s.previewGuest(ctx, req.GuestID)
		if err != nil {
			return pricingdomain.Breakdown{}, err
		}
		member = guest.IsMember
	}

	items := buildLineItems(req.LineItems, 0, time.Time{})
	if room.CleaningFeeCents > 0 {
		items = append(items, cleaningFee(room, 0, time.Time{}))
	}
	return s.compute(room, checkIn, checkOut, member, items)
}

func (s *Service) previewRoom(ctx context.Context, id snowflake.ID) (roomdomain.Room, error) {
	if id == 0 {
		return roomdomain.Room{}, domain.Invalid("room_id", domain.CodeRoomNotFound, "room is required")
	}
	room, err := s.roomRepo.FindByID(ctx, s.db, id)
	if err != nil {
		if cached, ok := s.previews.GetRoom(id); ok {
			s.log.Warn("serving cached room for preview", zap.Int64("room_id", id.Int64()), zap.Error(err))
			return cached, nil
		}
		return roomdomain.Room{}, db.Wrap("booking.preview_room", err)
	}
	if room == nil {
		return roomdomain.Room{}, roomdomain.ErrNotFound
	}
	s.previews.SetRoom(*room)
	return *room, nil
}

func (s *Service) previewGuest(ctx context.Context, id snowflake.ID) (guestdomain.Guest, error) {
	guest, err := s.guestRepo.FindByID(ctx, s.db, id)
	if err != nil {
		if cached, ok := s.previews.GetGuest(id); ok {
			s.log.Warn("serving cached guest for preview", zap.Int64("guest_id", id.Int64()), zap.Error(err))
			return cached, nil
		}
		return guestdomain.Guest{}, db.Wrap("booking.preview_guest", err)
	}
	if guest == nil {
		return guestdomain.Guest{}, guestdomain.ErrNotFound
	}
	s.previews.SetGuest(*guest)
	return *guest, nil
}

func (s *Service) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (domain.CreateBookingResult, error) {
	ctx, span := tracing.StartSpan(ctx, "booking.create",
		attribute.Int64("room_id", req.RoomID.Int64()),
		attribute.Int64("guest_id", req.GuestID.Int64()),
	)
	defer span.End()

	result, err := s.createBooking(ctx, req)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "create booking failed")
		return domain.CreateBookingResult{}, err
	}
	span.SetAttributes(attribute.Int64("booking_id", result.Booking.ID.Int64()))
	return result, nil
}

func (s *Service) createBooking(ctx context.Context, req domain.CreateBookingRequest) (domain.CreateBookingResult, error) {
	checkIn, checkOut, err := validateDates(req.CheckIn, req.CheckOut)
	if err != nil {
		return domain.CreateBookingResult{}, err
	}
	if req.GuestCount <= 0 {
		return domain.CreateBookingResult{}, domain.Invalid("guest_count", domain.CodeInvalidGuestCount, "at least one guest")
	}
	status := req.Status
	if status == "" {
		status = domain.StatusReserved
	}
	if !status.Valid() || status == domain.StatusCancelled {
		return domain.CreateBookingResult{}, domain.Invalid("status", domain.CodeInvalidStatus, "cannot create a booking as %q", status)
	}
	if req.CreditCents < 0 {
		return domain.CreateBookingResult{}, domain.Invalid("credit_cents", domain.CodeInvalidCreditValue, "must not be negative")
	}
	if err := validateLineItems(req.LineItems); err != nil {
		return domain.CreateBookingResult{}, err
	}

	room, err := s.roomRepo.FindByID(ctx, s.db, req.RoomID)
	if err != nil {
		return domain.CreateBookingResult{}, db.Wrap("booking.find_room", err)
	}
	if room == nil {
		return domain.CreateBookingResult{}, domain.Invalid("room_id", domain.CodeRoomNotFound, "room %d does not exist", req.RoomID.Int64())
	}
	if !room.Active {
		return domain.CreateBookingResult{}, domain.Invalid("room_id", domain.CodeRoomInactive, "room %q is not bookable", room.Name)
	}
	if req.GuestCount > room.Capacity {
		return domain.CreateBookingResult{}, domain.Invalid("guest_count", domain.CodeCapacityExceeded, "room %q holds %d guests", room.Name, room.Capacity)
	}

	guest, err := s.guestRepo.FindByID(ctx, s.db, req.GuestID)
	if err != nil {
		return domain.CreateBookingResult{}, db.Wrap("booking.find_guest", err)
	}
	if guest == nil {
		return domain.CreateBookingResult{}, domain.Invalid("guest_id", domain.CodeGuestNotFound, "guest %d does not exist", req.GuestID.Int64())
	}
	member := guest.IsMember
	if req.IsMember != nil {
		member = *req.IsMember
	}

	now := s.now()
	id := s.genID.Generate()
	items := buildLineItems(req.LineItems, id, now)
	if room.CleaningFeeCents > 0 {
		items = append(items, cleaningFee(*room, id, now))
	}
	for i := range items {
		items[i].ID = s.genID.Generate()
	}

	price, err := s.compute(*room, checkIn, checkOut, member, items)
	if err != nil {
		return domain.CreateBookingResult{}, err
	}

	booking := domain.Booking{
		ID:                 id,
		ReservationNumber:  reservationNumber(id, checkIn),
		RoomID:             room.ID,
		GuestID:            guest.ID,
		CheckIn:            checkIn,
		CheckOut:           checkOut,
		GuestCount:         req.GuestCount,
		Status:             status,
		IsMember:           member,
		Paid:               req.Paid,
		PaymentRecipientID: trimmedPtr(req.PaymentRecipientID),
		FoundationCase:     req.FoundationCase,
		Notes:              strings.TrimSpace(req.Notes),
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	applyPrice(&booking, price)
	if booking.Paid {
		booking.PaidAt = &now
	}

	err = s.tx.Transaction(ctx, s.db, "booking.create", func(tx *gorm.DB) error {
		if err := s.availability.Guard(ctx, tx, availabilitydomain.Request{
			RoomID:   booking.RoomID,
			CheckIn:  booking.CheckIn,
			CheckOut: booking.CheckOut,
		}); err != nil {
			return s.guardErr(err)
		}
		if err := s.repo.Insert(ctx, tx, &booking); err != nil {
			return writeErr("booking.insert", err)
		}
		if err := s.repo.InsertLineItems(ctx, tx, items); err != nil {
			return writeErr("booking.insert_line_items", err)
		}

		if _, err := s.txlog.Record(ctx, tx, txlogdomain.Record{
			Operation:  txlogdomain.OperationCreate,
			EntityType: txlogdomain.EntityBooking,
			EntityID:   booking.ID,
			After:      booking,
			Label:      fmt.Sprintf("Create booking %s", booking.ReservationNumber),
		}); err != nil {
			return err
		}
		for _, item := range items {
			if _, err := s.txlog.Record(ctx, tx, txlogdomain.Record{
				Operation:  txlogdomain.OperationCreate,
				EntityType: txlogdomain.EntityLineItem,
				EntityID:   item.ID,
				After:      item,
				Label:      fmt.Sprintf("Add %s %q to booking %s", item.Kind, item.Name, booking.ReservationNumber),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.CreateBookingResult{}, err
	}

	changes := []events.Change{events.BookingChanged(booking.ID, txlogdomain.OperationCreate)}
	for _, item := range items {
		changes = append(changes, events.LineItemChanged(item.ID, txlogdomain.OperationCreate))
	}
	s.committed(ctx, txlogdomain.EntityBooking, txlogdomain.OperationCreate, changes...)
	s.bookingLog(ctx, booking.ID).Info("booking created",
		zap.String("reservation_number", booking.ReservationNumber),
		zap.Int64("room_id", booking.RoomID.Int64()),
		zap.Int64("total_cents", booking.TotalPriceCents),
	)

	result := domain.CreateBookingResult{Booking: booking, LineItems: items, Price: price}
	if req.CreditCents > 0 {
		applied, err := s.ApplyCredit(ctx, domain.ApplyCreditRequest{
			GuestID:     booking.GuestID,
			BookingID:   booking.ID,
			AmountCents: req.CreditCents,
		})
		if err != nil {
			s.bookingLog(ctx, booking.ID).Warn("credit not applied", zap.Error(err))
			result.CreditError = err
		} else {
			result.Credit = &applied
		}
	}
	return result, nil
}

func (s *Service) UpdateBooking(ctx context.Context, id snowflake.ID, req domain.UpdateBookingRequest) (domain.Booking, error) {
	if err := s.locker.Check(ctx, id, req.Editor); err != nil {
		return domain.Booking{}, err
	}
	return s.mutate(ctx, id, req.ExpectedVersion, "booking.update", func(tx *gorm.DB, current domain.Booking) (domain.Booking, error) {
		return s.applyUpdate(ctx, tx, current, req)
	})
}

func (s *Service) CancelBooking(ctx context.Context, id snowflake.ID) (domain.Booking, error) {
	return s.mutate(ctx, id, nil, "booking.cancel", func(tx *gorm.DB, current domain.Booking) (domain.Booking, error) {
		if !domain.CanTransition(current.Status, domain.StatusCancelled) {
			return current, domain.Invalid("status", domain.CodeInvalidTransition, "cannot cancel a %s booking", current.Status)
		}
		next := current
		next.Status = domain.StatusCancelled
		return next, nil
	})
}

type mutation func(tx *gorm.DB, current domain.Booking) (domain.Booking, error)

// mutate runs a booking-level change: lock, check version and status, apply,
// bump the version, persist and log the UPDATE. A change that leaves every
// field as it was writes nothing.
func (s *Service) mutate(ctx context.Context, id snowflake.ID, expectedVersion *int64, op string, apply mutation) (domain.Booking, error) {
	ctx, span := tracing.StartSpan(ctx, op, attribute.Int64("booking_id", id.Int64()))
	defer span.End()

	var (
		updated domain.Booking
		changed bool
	)
	err := s.tx.Transaction(ctx, s.db, op, func(tx *gorm.DB) error {
		current, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return db.Wrap("booking.lock", err)
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if expectedVersion != nil && *expectedVersion != current.Version {
			return fmt.Errorf("booking %d is at version %d, not %d: %w", id.Int64(), current.Version, *expectedVersion, domain.ErrVersionConflict)
		}
		if current.Status == domain.StatusCancelled {
			return domain.Invalid("status", domain.CodeBookingCancelled, "booking %s is cancelled", current.ReservationNumber)
		}

		next, err := apply(tx, *current)
		if err != nil {
			return err
		}
		if !differs(*current, next) {
			updated = *current
			return nil
		}

		changed = true
		next.Version = current.Version + 1
		next.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, tx, &next); err != nil {
			return writeErr("booking.update", err)
		}
		if _, err := s.txlog.Record(ctx, tx, txlogdomain.Record{
			Operation:  txlogdomain.OperationUpdate,
			EntityType: txlogdomain.EntityBooking,
			EntityID:   next.ID,
			Before:     *current,
			After:      next,
			Label:      updateLabel(*current, next),
		}); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, op+" failed")
		return domain.Booking{}, err
	}
	if !changed {
		return updated, nil
	}

	s.committed(ctx, txlogdomain.EntityBooking, txlogdomain.OperationUpdate,
		events.BookingChanged(updated.ID, txlogdomain.OperationUpdate))
	s.bookingLog(ctx, updated.ID).Info("booking updated",
		zap.String("status", string(updated.Status)),
		zap.Int64("version", updated.Version),
	)
	return updated, nil
}

func (s *Service) applyUpdate(ctx context.Context, tx *gorm.DB, current domain.Booking, req domain.UpdateBookingRequest) (domain.Booking, error) {
	next := current
	if req.RoomID != nil {
		next.RoomID = *req.RoomID
	}
	if req.CheckIn != nil {
		next.CheckIn = pricingservice.DateOnly(*req.CheckIn)
	}
	if req.CheckOut != nil {
		next.CheckOut = pricingservice.DateOnly(*req.CheckOut)
	}
	if req.GuestCount != nil {
		next.GuestCount = *req.GuestCount
	}
	if req.Status != nil {
		next.Status = *req.Status
	}
	if req.IsMember != nil {
		next.IsMember = *req.IsMember
	}
	if req.FoundationCase != nil {
		next.FoundationCase = *req.FoundationCase
	}
	if req.Notes != nil {
		next.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.PaymentRecipientID != nil {
		next.PaymentRecipientID = trimmedPtr(req.PaymentRecipientID)
	}
	if req.Paid != nil && *req.Paid != current.Paid {
		next.Paid = *req.Paid
		next.PaidAt = nil
		if next.Paid {
			paidAt := s.now()
			next.PaidAt = &paidAt
		}
	}

	if _, _, err := validateDates(next.CheckIn, next.CheckOut); err != nil {
		return current, err
	}
	if next.GuestCount <= 0 {
		return current, domain.Invalid("guest_count", domain.CodeInvalidGuestCount, "at least one guest")
	}
	if !next.Status.Valid() {
		return current, domain.Invalid("status", domain.CodeInvalidStatus, "unknown status %q", next.Status)
	}
	if !domain.CanTransition(current.Status, next.Status) {
		return current, domain.Invalid("status", domain.CodeInvalidTransition, "cannot move from %s to %s", current.Status, next.Status)
	}

	room, err := s.roomRepo.FindByID(ctx, tx, next.RoomID)
	if err != nil {
		return current, db.Wrap("booking.find_room", err)
	}
	if room == nil {
		return current, domain.Invalid("room_id", domain.CodeRoomNotFound, "room %d does not exist", next.RoomID.Int64())
	}
	if next.RoomID != current.RoomID && !room.Active {
		return current, domain.Invalid("room_id", domain.CodeRoomInactive, "room %q is not bookable", room.Name)
	}
	if next.GuestCount > room.Capacity {
		return current, domain.Invalid("guest_count", domain.CodeCapacityExceeded, "room %q holds %d guests", room.Name, room.Capacity)
	}

	moved := next.RoomID != current.RoomID || !next.CheckIn.Equal(current.CheckIn) || !next.CheckOut.Equal(current.CheckOut)
	if moved && next.Occupies() {
		if err := s.availability.Guard(ctx, tx, availabilitydomain.Request{
			RoomID:           next.RoomID,
			CheckIn:          next.CheckIn,
			CheckOut:         next.CheckOut,
			ExcludeBookingID: next.ID,
		}); err != nil {
			return current, s.guardErr(err)
		}
	}

	if moved || next.IsMember != current.IsMember {
		items, err := s.repo.ListLineItems(ctx, tx, next.ID)
		if err != nil {
			return current, db.Wrap("booking.list_line_items", err)
		}
		price, err := s.compute(*room, next.CheckIn, next.CheckOut, next.IsMember, items)
		if err != nil {
			return current, err
		}
		applyPrice(&next, price)
	}
	return next, nil
}

// DeleteBooking removes a booking and its line items. The logged snapshot
// carries the line items so an undo restores both.
func (s *Service) DeleteBooking(ctx context.Context, id snowflake.ID) error {
	ctx, span := tracing.StartSpan(ctx, "booking.delete", attribute.Int64("booking_id", id.Int64()))
	defer span.End()

	var items []domain.LineItem
	err := s.tx.Transaction(ctx, s.db, "booking.delete", func(tx *gorm.DB) error {
		current, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return db.Wrap("booking.lock", err)
		}
		if current == nil {
			return domain.ErrNotFound
		}
		items, err = s.repo.ListLineItems(ctx, tx, id)
		if err != nil {
			return db.Wrap("booking.list_line_items", err)
		}
		if _, err := s.repo.Delete(ctx, tx, id); err != nil {
			return writeErr("booking.delete", err)
		}
		if err := s.txlog.Supersede(ctx, tx, txlogdomain.EntityLineItem, lineItemIDs(items)); err != nil {
			return err
		}
		_, err = s.txlog.Record(ctx, tx, txlogdomain.Record{
			Operation:  txlogdomain.OperationDelete,
			EntityType: txlogdomain.EntityBooking,
			EntityID:   current.ID,
			Before:     domain.Snapshot{Booking: *current, LineItems: items},
			Label:      fmt.Sprintf("Delete booking %s", current.ReservationNumber),
		})
		return err
	})
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "delete booking failed")
		return err
	}

	changes := []events.Change{events.BookingChanged(id, txlogdomain.OperationDelete)}
	for _, item := range items {
		changes = append(changes, events.LineItemChanged(item.ID, txlogdomain.OperationDelete))
	}
	s.committed(ctx, txlogdomain.EntityBooking, txlogdomain.OperationDelete, changes...)
	s.bookingLog(ctx, id).Info("booking deleted", zap.Int("line_items", len(items)))
	return nil
}

func (s *Service) GetBooking(ctx context.Context, id snowflake.ID) (domain.BookingDetails, error) {
	booking, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.BookingDetails{}, db.Wrap("booking.find", err)
	}
	if booking == nil {
		return domain.BookingDetails{}, domain.ErrNotFound
	}
	items, err := s.repo.ListLineItems(ctx, s.db, id)
	if err != nil {
		return domain.BookingDetails{}, db.Wrap("booking.list_line_items", err)
	}
	used, err := s.ledger.BookingUsage(ctx, s.db, id)
	if err != nil {
		return domain.BookingDetails{}, err
	}
	return domain.BookingDetails{
		Booking:            *booking,
		LineItems:          items,
		CreditAppliedCents: used,
		PayableCents:       max(booking.TotalPriceCents-used, 0),
	}, nil
}

func (s *Service) compute(room roomdomain.Room, checkIn, checkOut time.Time, member bool, items []domain.LineItem) (pricingdomain.Breakdown, error) {
	services, discounts := domain.Split(items)
	price, err := s.calculator.Compute(pricingdomain.Input{
		Rates:     room.Rates(),
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		IsMember:  member,
		Services:  services,
		Discounts: discounts,
	})
	if err != nil {
		return pricingdomain.Breakdown{}, domain.Invalid("line_items", domain.CodeInvalidLineItem, "%v", err)
	}
	return price, nil
}

// reprice recomputes the totals of b from its room and the given line items.
func (s *Service) reprice(ctx context.Context, tx *gorm.DB, b *domain.Booking, items []domain.LineItem) error {
	room, err := s.roomRepo.FindByID(ctx, tx, b.RoomID)
	if err != nil {
		return db.Wrap("booking.find_room", err)
	}
	if room == nil {
		return roomdomain.ErrNotFound
	}
	price, err := s.compute(*room, b.CheckIn, b.CheckOut, b.IsMember, items)
	if err != nil {
		return err
	}
	applyPrice(b, price)
	return nil
}

// guardErr turns a room that vanished under the guard into a validation
// error; everything else passes through.
func (s *Service) guardErr(err error) error {
	if errors.Is(err, roomdomain.ErrNotFound) {
		return domain.Invalid("room_id", domain.CodeRoomNotFound, "room does not exist")
	}
	return err
}

// committed records metrics and publishes the changes of a committed
// mutation.
func (s *Service) committed(ctx context.Context, entity txlogdomain.EntityType, op txlogdomain.Operation, changes ...events.Change) {
	s.obsMetrics.RecordMutation(ctx, string(entity), string(op))
	s.publish(ctx, changes...)
}

func (s *Service) publish(ctx context.Context, changes ...events.Change) {
	if s.publisher == nil || len(changes) == 0 {
		return
	}
	s.publisher.Publish(ctx, changes...)
}

func (s *Service) bookingLog(ctx context.Context, id snowflake.ID) *zap.Logger {
	return logger.WithBooking(logger.WithContext(ctx, s.log), id)
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// writeErr maps constraint violations raised by the database to domain
// errors.
func writeErr(op string, err error) error {
	if db.IsExclusionViolation(err) {
		return fmt.Errorf("%s: %w", op, availabilitydomain.ErrAvailabilityConflict)
	}
	return db.Wrap(op, err)
}

func validateDates(checkIn, checkOut time.Time) (time.Time, time.Time, error) {
	if checkIn.IsZero() || checkOut.IsZero() {
		return checkIn, checkOut, domain.Invalid("checkin_date", domain.CodeInvalidDates, "check-in and check-out are required")
	}
	checkIn = pricingservice.DateOnly(checkIn)
	checkOut = pricingservice.DateOnly(checkOut)
	if !checkOut.After(checkIn) {
		return checkIn, checkOut, domain.Invalid("checkout_date", domain.CodeInvalidDates, "check-out must be after check-in")
	}
	return checkIn, checkOut, nil
}

func validateLineItems(inputs []domain.LineItemInput) error {
	for i, in := range inputs {
		if err := validateLineItem(in); err != nil {
			err.Field = fmt.Sprintf("line_items[%d].%s", i, err.Field)
			return err
		}
	}
	return nil
}

func validateLineItem(in domain.LineItemInput) *domain.ValidationError {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Invalid("name", domain.CodeInvalidLineItem, "name is required")
	}
	switch in.Kind {
	case domain.LineItemService:
		if in.AmountCents < 0 {
			return domain.Invalid("amount_cents", domain.CodeInvalidLineItem, "must not be negative")
		}
	case domain.LineItemDiscount:
		if in.DiscountValue < 0 {
			return domain.Invalid("discount_value", domain.CodeInvalidLineItem, "must not be negative")
		}
		switch in.DiscountType {
		case pricingdomain.DiscountFixed:
		case pricingdomain.DiscountPercent:
			if in.DiscountValue > pricingdomain.MaxBasisPoints {
				return domain.Invalid("discount_value", domain.CodeInvalidLineItem, "percent above 100")
			}
		default:
			return domain.Invalid("discount_type", domain.CodeInvalidLineItem, "unknown discount type %q", in.DiscountType)
		}
	default:
		return domain.Invalid("kind", domain.CodeInvalidLineItem, "unknown kind %q", in.Kind)
	}
	return nil
}

func buildLineItems(inputs []domain.LineItemInput, bookingID snowflake.ID, now time.Time) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(inputs)+1)
	for _, in := range inputs {
		items = append(items, newLineItem(in, bookingID, now))
	}
	return items
}

func newLineItem(in domain.LineItemInput, bookingID snowflake.ID, now time.Time) domain.LineItem {
	item := domain.LineItem{
		BookingID:  bookingID,
		Kind:       in.Kind,
		Name:       strings.TrimSpace(in.Name),
		TemplateID: in.TemplateID,
		Version:    1,
		CreatedAt:  now,
	}
	switch in.Kind {
	case domain.LineItemService:
		item.AmountCents = in.AmountCents
	case domain.LineItemDiscount:
		item.DiscountType = in.DiscountType
		item.DiscountValue = in.DiscountValue
	}
	return item
}

func cleaningFee(room roomdomain.Room, bookingID snowflake.ID, now time.Time) domain.LineItem {
	return newLineItem(domain.LineItemInput{
		Kind:        domain.LineItemService,
		Name:        cleaningFeeName,
		AmountCents: room.CleaningFeeCents,
	}, bookingID, now)
}

func applyPrice(b *domain.Booking, price pricingdomain.Breakdown) {
	b.Nights = price.Nights
	b.BasePriceCents = price.BaseCents
	b.ServicesTotalCents = price.ServicesTotalCents
	b.DiscountTotalCents = price.DiscountTotalCents
	b.TotalPriceCents = price.TotalCents
}

// reservationNumber is the check-in year followed by the id in base 36.
func reservationNumber(id snowflake.ID, checkIn time.Time) string {
	return fmt.Sprintf("%d-%s", checkIn.Year(), strings.ToUpper(strconv.FormatInt(id.Int64(), 36)))
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func lineItemIDs(items []domain.LineItem) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

// differs reports whether an update changed any stored field.
func differs(a, b domain.Booking) bool {
	return a.RoomID != b.RoomID ||
		!a.CheckIn.Equal(b.CheckIn) ||
		!a.CheckOut.Equal(b.CheckOut) ||
		a.GuestCount != b.GuestCount ||
		a.Status != b.Status ||
		a.IsMember != b.IsMember ||
		a.Paid != b.Paid ||
		a.FoundationCase != b.FoundationCase ||
		a.Notes != b.Notes ||
		a.TotalPriceCents != b.TotalPriceCents ||
		a.BasePriceCents != b.BasePriceCents ||
		a.ServicesTotalCents != b.ServicesTotalCents ||
		a.DiscountTotalCents != b.DiscountTotalCents ||
		!sameString(a.PaymentRecipientID, b.PaymentRecipientID)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func updateLabel(before, after domain.Booking) string {
	if after.Status == domain.StatusCancelled && before.Status != domain.StatusCancelled {
		return fmt.Sprintf("Cancel booking %s", after.ReservationNumber)
	}
	if after.Status != before.Status {
		return fmt.Sprintf("Set booking %s to %s", after.ReservationNumber, after.Status)
	}
	return fmt.Sprintf("Update booking %s", after.ReservationNumber)
}

var _ domain.Service = (*Service)(nil)
