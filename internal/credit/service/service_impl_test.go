package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/clock"
	"github.com/smallbiznis/guesthouse/internal/credit/domain"
	"github.com/smallbiznis/guesthouse/internal/credit/repository"
	"github.com/smallbiznis/guesthouse/internal/testutil"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newLedger(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()
	conn := testutil.NewDB(t)
	node := testutil.NewNode(t)
	svc := New(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, conn, node
}

func TestTopUpDebitAndReverse(t *testing.T) {
	ctx := context.Background()
	svc, conn, node := newLedger(t)
	guest := testutil.SeedGuest(t, conn, node, false)
	bookingID := node.Generate()

	var topUp, debit domain.Entry
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		topUp, err = svc.TopUp(ctx, tx, domain.TopUpRequest{GuestID: guest.ID, AmountCents: 8000, Note: " gift "})
		if err != nil {
			return err
		}
		debit, err = svc.Debit(ctx, tx, domain.DebitRequest{GuestID: guest.ID, BookingID: bookingID, AmountCents: 3000})
		return err
	}))

	assert.Equal(t, "gift", topUp.Note)
	assert.Equal(t, domain.EntryKindDebit, debit.Kind)
	assert.Equal(t, int64(-3000), debit.AmountCents)
	require.NotNil(t, debit.BookingID)

	balance, err := svc.Balance(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance)

	usage, err := svc.BookingUsage(ctx, conn, bookingID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), usage)

	reversed, err := svc.Reverse(ctx, conn, debit.ID)
	require.NoError(t, err)
	assert.Equal(t, debit.ID, reversed.ID)

	balance, err = svc.Balance(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), balance)

	_, err = svc.Reverse(ctx, conn, debit.ID)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestDebitRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	svc, conn, node := newLedger(t)
	guest := testutil.SeedGuest(t, conn, node, false)

	_, err := svc.Debit(ctx, conn, domain.DebitRequest{GuestID: guest.ID, AmountCents: 100})
	assert.ErrorIs(t, err, domain.ErrInsufficientCredit)

	_, err = svc.TopUp(ctx, conn, domain.TopUpRequest{GuestID: guest.ID, AmountCents: 500})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, conn, domain.DebitRequest{GuestID: guest.ID, AmountCents: 501})
	assert.ErrorIs(t, err, domain.ErrInsufficientCredit)

	_, err = svc.Debit(ctx, conn, domain.DebitRequest{GuestID: guest.ID, AmountCents: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.TopUp(ctx, conn, domain.TopUpRequest{AmountCents: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidGuest)
}

func TestReverseSpentTopUpFails(t *testing.T) {
	ctx := context.Background()
	svc, conn, node := newLedger(t)
	guest := testutil.SeedGuest(t, conn, node, false)

	topUp, err := svc.TopUp(ctx, conn, domain.TopUpRequest{GuestID: guest.ID, AmountCents: 1000})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, conn, domain.DebitRequest{GuestID: guest.ID, AmountCents: 400})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, conn, topUp.ID)
	assert.ErrorIs(t, err, domain.ErrInsufficientCredit)

	balance, err := svc.Balance(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), balance)
}

func TestConcurrentDebitsKeepBalanceNonNegative(t *testing.T) {
	ctx := context.Background()
	svc, conn, node := newLedger(t)
	guest := testutil.SeedGuest(t, conn, node, false)
	_, err := svc.TopUp(ctx, conn, domain.TopUpRequest{GuestID: guest.ID, AmountCents: 1000})
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := conn.Transaction(func(tx *gorm.DB) error {
				_, err := svc.Debit(ctx, tx, domain.DebitRequest{GuestID: guest.ID, AmountCents: 300})
				return err
			})
			if err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, oks)
	balance, err := svc.Balance(ctx, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestHistoryPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, conn, node := newLedger(t)
	guest := testutil.SeedGuest(t, conn, node, false)
	for i := 1; i <= 3; i++ {
		_, err := svc.TopUp(ctx, conn, domain.TopUpRequest{GuestID: guest.ID, AmountCents: int64(i * 100)})
		require.NoError(t, err)
	}

	first, err := svc.History(ctx, domain.HistoryRequest{GuestID: guest.ID, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(600), first.BalanceCents)
	require.Len(t, first.Entries, 2)
	assert.Equal(t, int64(300), first.Entries[0].AmountCents)
	require.True(t, first.HasMore)

	second, err := svc.History(ctx, domain.HistoryRequest{GuestID: guest.ID, PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, int64(100), second.Entries[0].AmountCents)
	assert.False(t, second.HasMore)
}

func TestReverterRejectsNonCreateEntries(t *testing.T) {
	svc, conn, _ := newLedger(t)
	_, err := NewReverter(svc).Revert(context.Background(), conn, txlogdomain.Entry{
		Operation:  txlogdomain.OperationDelete,
		EntityType: txlogdomain.EntityCreditEntry,
	})
	assert.ErrorIs(t, err, txlogdomain.ErrUndoNotSupported)
}
