package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/clock"
	"github.com/smallbiznis/guesthouse/internal/config"
	guestdomain "github.com/smallbiznis/guesthouse/internal/guest/domain"
	roomdomain "github.com/smallbiznis/guesthouse/internal/room/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(p Params, cfg config.Config) error {
		if !cfg.SeedDemo {
			return nil
		}
		return EnsureDemoData(context.Background(), p)
	}),
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Rooms  roomdomain.Repository
	Guests guestdomain.Repository
}

var demoRooms = []roomdomain.Room{
	{
		Name:                      "Garden Room",
		Capacity:                  2,
		CleaningFeeCents:          2500,
		PeakMemberRateCents:       9000,
		PeakNonMemberRateCents:    11000,
		OffPeakMemberRateCents:    7000,
		OffPeakNonMemberRateCents: 8500,
	},
	{
		Name:                      "Lake Suite",
		Capacity:                  4,
		CleaningFeeCents:          4000,
		PeakMemberRateCents:       16000,
		PeakNonMemberRateCents:    19000,
		OffPeakMemberRateCents:    12000,
		OffPeakNonMemberRateCents: 14500,
	},
}

var demoGuests = []guestdomain.Guest{
	{FirstName: "Ada", LastName: "Keller", Email: "ada@example.com", IsMember: true},
	{FirstName: "Jonas", LastName: "Brandt", Email: "jonas@example.com"},
}

// EnsureDemoData inserts sample rooms and guests once. An existing room means
// the database was already set up and nothing is written.
func EnsureDemoData(ctx context.Context, p Params) error {
	if p.DB == nil {
		return errors.New("seed database handle is required")
	}
	log := p.Log.Named("seed")

	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&roomdomain.Room{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			log.Debug("rooms present, skipping demo data", zap.Int64("rooms", count))
			return nil
		}

		now := p.Clock.Now().UTC()
		for _, tmpl := range demoRooms {
			room := tmpl
			room.ID = p.GenID.Generate()
			room.Active = true
			room.CreatedAt = now
			room.UpdatedAt = now
			if err := p.Rooms.Insert(ctx, tx, &room); err != nil {
				return err
			}
		}
		for _, tmpl := range demoGuests {
			guest := tmpl
			guest.ID = p.GenID.Generate()
			guest.CreatedAt = now
			guest.UpdatedAt = now
			if err := p.Guests.Insert(ctx, tx, &guest); err != nil {
				return err
			}
		}

		log.Info("demo data inserted",
			zap.Int("rooms", len(demoRooms)),
			zap.Int("guests", len(demoGuests)),
		)
		return nil
	})
}
