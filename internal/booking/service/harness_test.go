package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	availabilityrepo "github.com/smallbiznis/guesthouse/internal/availability/repository"
	availabilityservice "github.com/smallbiznis/guesthouse/internal/availability/service"
	"github.com/smallbiznis/guesthouse/internal/booking/domain"
	"github.com/smallbiznis/guesthouse/internal/booking/repository"
	"github.com/smallbiznis/guesthouse/internal/clock"
	"github.com/smallbiznis/guesthouse/internal/config"
	creditrepo "github.com/smallbiznis/guesthouse/internal/credit/repository"
	creditservice "github.com/smallbiznis/guesthouse/internal/credit/service"
	"github.com/smallbiznis/guesthouse/internal/events"
	guestdomain "github.com/smallbiznis/guesthouse/internal/guest/domain"
	guestrepo "github.com/smallbiznis/guesthouse/internal/guest/repository"
	pricingservice "github.com/smallbiznis/guesthouse/internal/pricing/service"
	roomdomain "github.com/smallbiznis/guesthouse/internal/room/domain"
	roomrepo "github.com/smallbiznis/guesthouse/internal/room/repository"
	"github.com/smallbiznis/guesthouse/internal/testutil"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	txlogrepo "github.com/smallbiznis/guesthouse/internal/txlog/repository"
	txlogservice "github.com/smallbiznis/guesthouse/internal/txlog/service"
	undodomain "github.com/smallbiznis/guesthouse/internal/undo/domain"
	undoservice "github.com/smallbiznis/guesthouse/internal/undo/service"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	conn   *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	svc    *Service
	undo   undodomain.Executor
	txlog  txlogdomain.Logger
	ledger *creditservice.Service
	hub    *events.Hub
	room   roomdomain.Room
	guest  guestdomain.Guest
}

type harnessOption func(*Params)

func withPublisher(p events.Publisher) harnessOption {
	return func(params *Params) { params.Publisher = p }
}

func newHarness(t *testing.T, roomOpts []testutil.RoomOption, opts ...harnessOption) *harness {
	t.Helper()

	conn := testutil.NewDB(t)
	node := testutil.NewNode(t)
	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))
	tx := db.NewTransactor(db.Config{TxTimeout: 5 * time.Second})
	hub := events.NewHub(nil)

	txlog := txlogservice.New(txlogservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  txlogrepo.Provide(),
	})
	ledger := creditservice.New(creditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  creditrepo.Provide(),
	})
	rooms := roomrepo.Provide()

	params := Params{
		DB:        conn,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Tx:        tx,
		Repo:      repository.Provide(),
		RoomRepo:  rooms,
		GuestRepo: guestrepo.Provide(),
		Availability: availabilityservice.New(availabilityservice.Params{
			DB:       conn,
			Log:      log,
			Repo:     availabilityrepo.Provide(),
			RoomRepo: rooms,
		}),
		Calculator: pricingservice.New(config.NewStaticPricingConfigHolder(config.DefaultPricingConfig())),
		Ledger:     ledger,
		TxLog:      txlog,
		Publisher:  hub,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc := New(params)

	executor := undoservice.New(undoservice.Params{
		DB:    conn,
		Log:   log,
		Tx:    tx,
		TxLog: txlog,
		Reverters: []undodomain.Reverter{
			NewBookingReverter(svc),
			NewLineItemReverter(svc),
			creditservice.NewReverter(ledger),
		},
		Publisher: params.Publisher,
	})

	return &harness{
		t:      t,
		ctx:    context.Background(),
		conn:   conn,
		node:   node,
		clock:  fake,
		svc:    svc,
		undo:   executor,
		txlog:  txlog,
		ledger: ledger,
		hub:    hub,
		room:   testutil.SeedRoom(t, conn, node, roomOpts...),
		guest:  testutil.SeedGuest(t, conn, node, true),
	}
}

func (h *harness) request(checkIn, checkOut time.Time) domain.CreateBookingRequest {
	return domain.CreateBookingRequest{
		RoomID:     h.room.ID,
		GuestID:    h.guest.ID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		GuestCount: 2,
	}
}

func (h *harness) create(checkIn, checkOut time.Time) domain.CreateBookingResult {
	h.t.Helper()
	result, err := h.svc.CreateBooking(h.ctx, h.request(checkIn, checkOut))
	require.NoError(h.t, err)
	return result
}

// latest returns the newest log entry written for an entity.
func (h *harness) latest(entityType txlogdomain.EntityType, id snowflake.ID) txlogdomain.Entry {
	h.t.Helper()
	page, err := h.txlog.List(h.ctx, txlogdomain.ListRequest{EntityType: entityType, EntityID: id, PageSize: 1})
	require.NoError(h.t, err)
	require.NotEmpty(h.t, page.Entries, "no log entry for %s %d", entityType, id.Int64())
	return page.Entries[0]
}

func (h *harness) booking(id snowflake.ID) *domain.Booking {
	h.t.Helper()
	booking, err := repository.Provide().FindByID(h.ctx, h.conn, id)
	require.NoError(h.t, err)
	return booking
}

func (h *harness) balance(guestID snowflake.ID) int64 {
	h.t.Helper()
	balance, err := h.ledger.Balance(h.ctx, guestID)
	require.NoError(h.t, err)
	return balance
}

func (h *harness) count(model any) int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.conn.Model(model).Count(&n).Error)
	return n
}
