package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	guestdomain "github.com/smallbiznis/guesthouse/internal/guest/domain"
	roomdomain "github.com/smallbiznis/guesthouse/internal/room/domain"
)

const defaultPreviewTTL = 10 * time.Minute

// PreviewCache keeps the last known rooms and guests so price and
// availability previews keep working while the database is unreachable.
type PreviewCache interface {
	GetRoom(id snowflake.ID) (roomdomain.Room, bool)
	SetRoom(room roomdomain.Room)
	GetGuest(id snowflake.ID) (guestdomain.Guest, bool)
	SetGuest(guest guestdomain.Guest)
}

type previewCache struct {
	rooms  Cache[snowflake.ID, roomdomain.Room]
	guests Cache[snowflake.ID, guestdomain.Guest]
	ttl    time.Duration
}

func NewPreviewCache(ttl time.Duration) PreviewCache {
	if ttl <= 0 {
		ttl = defaultPreviewTTL
	}
	return &previewCache{
		rooms:  NewTTLCache[snowflake.ID, roomdomain.Room](),
		guests: NewTTLCache[snowflake.ID, guestdomain.Guest](),
		ttl:    ttl,
	}
}

func (c *previewCache) GetRoom(id snowflake.ID) (roomdomain.Room, bool) {
	return c.rooms.Get(id)
}

func (c *previewCache) SetRoom(room roomdomain.Room) {
	if room.ID == 0 {
		return
	}
	c.rooms.Set(room.ID, room, c.ttl)
}

func (c *previewCache) GetGuest(id snowflake.ID) (guestdomain.Guest, bool) {
	return c.guests.Get(id)
}

func (c *previewCache) SetGuest(guest guestdomain.Guest) {
	if guest.ID == 0 {
		return
	}
	c.guests.Set(guest.ID, guest, c.ttl)
}
