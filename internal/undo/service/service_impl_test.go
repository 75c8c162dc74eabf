package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/guesthouse/internal/clock"
	"github.com/smallbiznis/guesthouse/internal/events"
	"github.com/smallbiznis/guesthouse/internal/events/mock"
	"github.com/smallbiznis/guesthouse/internal/testutil"
	txlogdomain "github.com/smallbiznis/guesthouse/internal/txlog/domain"
	txlogrepo "github.com/smallbiznis/guesthouse/internal/txlog/repository"
	txlogservice "github.com/smallbiznis/guesthouse/internal/txlog/service"
	"github.com/smallbiznis/guesthouse/internal/undo/domain"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeReverter struct {
	entity txlogdomain.EntityType
	err    error
	calls  int
}

func (f *fakeReverter) EntityType() txlogdomain.EntityType { return f.entity }

func (f *fakeReverter) Revert(_ context.Context, _ *gorm.DB, entry txlogdomain.Entry) (domain.Reversal, error) {
	f.calls++
	if f.err != nil {
		return domain.Reversal{}, f.err
	}
	return domain.Reversal{
		Records: []txlogdomain.Record{{
			Operation:  txlogdomain.OperationDelete,
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			Before:     map[string]any{"id": entry.EntityID.String()},
		}},
		Changes: []events.Change{events.BookingChanged(entry.EntityID, txlogdomain.OperationDelete)},
	}, nil
}

type fixture struct {
	conn  *gorm.DB
	node  *snowflake.Node
	txlog txlogdomain.Logger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testutil.NewDB(t)
	node := testutil.NewNode(t)
	return fixture{
		conn: conn,
		node: node,
		txlog: txlogservice.New(txlogservice.Params{
			DB:    conn,
			Log:   zaptest.NewLogger(t),
			GenID: node,
			Clock: clock.NewFakeClock(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)),
			Repo:  txlogrepo.Provide(),
		}),
	}
}

func (f fixture) executor(t *testing.T, publisher events.Publisher, reverters ...domain.Reverter) domain.Executor {
	return New(Params{
		DB:        f.conn,
		Log:       zaptest.NewLogger(t),
		Tx:        db.NewTransactor(db.Config{TxTimeout: 5 * time.Second}),
		TxLog:     f.txlog,
		Reverters: reverters,
		Publisher: publisher,
	})
}

func (f fixture) record(t *testing.T, entity txlogdomain.EntityType) txlogdomain.Entry {
	t.Helper()
	var entry txlogdomain.Entry
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = f.txlog.Record(context.Background(), tx, txlogdomain.Record{
			Operation:  txlogdomain.OperationCreate,
			EntityType: entity,
			EntityID:   f.node.Generate(),
			After:      map[string]any{"name": "row"},
			Label:      "Create row",
		})
		return err
	}))
	return entry
}

func TestUndoWritesCompensationAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.record(t, txlogdomain.EntityBooking)

	ctrl := gomock.NewController(t)
	publisher := mock.NewMockPublisher(ctrl)
	publisher.EXPECT().
		Publish(gomock.Any(), events.BookingChanged(entry.EntityID, txlogdomain.OperationDelete)).
		Times(1)

	reverter := &fakeReverter{entity: txlogdomain.EntityBooking}
	result, err := f.executor(t, publisher, reverter).Undo(ctx, entry.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, reverter.calls)
	assert.False(t, result.Entry.CanUndo)
	require.Len(t, result.Compensations, 1)
	assert.Equal(t, "Undo: Create row", result.Compensations[0].Label)
	assert.Equal(t, entry.ID, *result.Compensations[0].UndoOf)

	stored, err := f.txlog.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.CanUndo)
}

func TestUndoFailureLeavesEntryUndoable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.record(t, txlogdomain.EntityLineItem)

	ctrl := gomock.NewController(t)
	publisher := mock.NewMockPublisher(ctrl)

	reverter := &fakeReverter{entity: txlogdomain.EntityLineItem, err: domain.Conflictf("row changed")}
	_, err := f.executor(t, publisher, reverter).Undo(ctx, entry.ID)
	require.ErrorIs(t, err, txlogdomain.ErrUndoConflict)

	stored, err := f.txlog.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.CanUndo)

	recent, err := f.txlog.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestUndoWithoutReverterIsNotSupported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.record(t, txlogdomain.EntityCreditEntry)

	_, err := f.executor(t, nil, &fakeReverter{entity: txlogdomain.EntityBooking}).Undo(ctx, entry.ID)
	require.ErrorIs(t, err, txlogdomain.ErrUndoNotSupported)

	stored, err := f.txlog.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.CanUndo)
}

func TestUndoTwiceIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.record(t, txlogdomain.EntityBooking)
	reverter := &fakeReverter{entity: txlogdomain.EntityBooking}
	executor := f.executor(t, nil, reverter)

	_, err := executor.Undo(ctx, entry.ID)
	require.NoError(t, err)
	_, err = executor.Undo(ctx, entry.ID)
	assert.ErrorIs(t, err, txlogdomain.ErrAlreadyUndone)
	assert.Equal(t, 1, reverter.calls)

	_, err = executor.Undo(ctx, f.node.Generate())
	assert.ErrorIs(t, err, txlogdomain.ErrEntryNotFound)
}

func TestUndoOfSupersededEntryConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	older := f.record(t, txlogdomain.EntityBooking)
	_, err := f.txlog.Record(ctx, f.conn, txlogdomain.Record{
		Operation:  txlogdomain.OperationUpdate,
		EntityType: txlogdomain.EntityBooking,
		EntityID:   older.EntityID,
		Before:     map[string]any{"name": "row"},
		After:      map[string]any{"name": "renamed"},
	})
	require.NoError(t, err)

	reverter := &fakeReverter{entity: txlogdomain.EntityBooking}
	_, err = f.executor(t, nil, reverter).Undo(ctx, older.ID)
	require.ErrorIs(t, err, txlogdomain.ErrUndoConflict)
	assert.NotErrorIs(t, err, txlogdomain.ErrAlreadyUndone)
	assert.Zero(t, reverter.calls)
}

func TestUndoOfCompensatingEntryIsNotSupported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.record(t, txlogdomain.EntityBooking)

	result, err := f.executor(t, nil, &fakeReverter{entity: txlogdomain.EntityBooking}).Undo(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, result.Compensations, 1)

	_, err = f.executor(t, nil, &fakeReverter{entity: txlogdomain.EntityBooking}).Undo(ctx, result.Compensations[0].ID)
	assert.ErrorIs(t, err, txlogdomain.ErrUndoNotSupported)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "conflict", outcome(domain.Conflict(errors.New("gone"))))
	assert.Equal(t, "already_undone", outcome(txlogdomain.ErrAlreadyUndone))
	assert.Equal(t, "not_found", outcome(txlogdomain.ErrEntryNotFound))
	assert.Equal(t, "not_supported", outcome(txlogdomain.ErrUndoNotSupported))
	assert.Equal(t, "error", outcome(errors.New("boom")))
}
