// Package testutil opens isolated SQLite databases and seeds the rows the
// booking engine tests start from.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	guestdomain "github.com/smallbiznis/guesthouse/internal/guest/domain"
	"github.com/smallbiznis/guesthouse/internal/migration"
	roomdomain "github.com/smallbiznis/guesthouse/internal/room/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory database with the full schema. A single
// connection serialises writers, standing in for the row locks postgres
// takes.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:guesthouse_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(conn))
	return conn
}

func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

type RoomOption func(*roomdomain.Room)

func WithCapacity(capacity int) RoomOption {
	return func(r *roomdomain.Room) { r.Capacity = capacity }
}

func WithCleaningFee(cents int64) RoomOption {
	return func(r *roomdomain.Room) { r.CleaningFeeCents = cents }
}

func Inactive() RoomOption {
	return func(r *roomdomain.Room) { r.Active = false }
}

// SeedRoom inserts an active room for four guests. Peak member nights cost
// 100.00, the other rates step down from there.
func SeedRoom(t *testing.T, conn *gorm.DB, node *snowflake.Node, opts ...RoomOption) roomdomain.Room {
	t.Helper()

	now := time.Now().UTC()
	room := roomdomain.Room{
		ID:                        node.Generate(),
		Name:                      "Garden Room",
		Capacity:                  4,
		PeakMemberRateCents:       10000,
		PeakNonMemberRateCents:    12000,
		OffPeakMemberRateCents:    8000,
		OffPeakNonMemberRateCents: 9500,
		Active:                    true,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	for _, opt := range opts {
		opt(&room)
	}
	require.NoError(t, conn.Create(&room).Error)
	return room
}

func SeedGuest(t *testing.T, conn *gorm.DB, node *snowflake.Node, member bool) guestdomain.Guest {
	t.Helper()

	now := time.Now().UTC()
	guest := guestdomain.Guest{
		ID:        node.Generate(),
		FirstName: "Ada",
		LastName:  "Keller",
		Email:     "ada@example.com",
		IsMember:  member,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, conn.Create(&guest).Error)
	return guest
}
