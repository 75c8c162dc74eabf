package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/guesthouse/internal/availability"
	"github.com/smallbiznis/guesthouse/internal/booking"
	"github.com/smallbiznis/guesthouse/internal/cache"
	"github.com/smallbiznis/guesthouse/internal/clock"
	"github.com/smallbiznis/guesthouse/internal/config"
	"github.com/smallbiznis/guesthouse/internal/credit"
	"github.com/smallbiznis/guesthouse/internal/editlock"
	"github.com/smallbiznis/guesthouse/internal/events"
	"github.com/smallbiznis/guesthouse/internal/guest"
	"github.com/smallbiznis/guesthouse/internal/migration"
	"github.com/smallbiznis/guesthouse/internal/observability"
	"github.com/smallbiznis/guesthouse/internal/pricing"
	"github.com/smallbiznis/guesthouse/internal/redisclient"
	"github.com/smallbiznis/guesthouse/internal/room"
	"github.com/smallbiznis/guesthouse/internal/seed"
	"github.com/smallbiznis/guesthouse/internal/server"
	"github.com/smallbiznis/guesthouse/internal/txlog"
	"github.com/smallbiznis/guesthouse/internal/undo"
	"github.com/smallbiznis/guesthouse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisclient.Module,
		events.Module,
		editlock.Module,
		cache.Module,
		migration.Module,
		seed.Module,

		// Functional Domains
		room.Module,
		guest.Module,
		availability.Module,
		pricing.Module,
		credit.Module,
		txlog.Module,
		undo.Module,
		booking.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
