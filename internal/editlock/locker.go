package editlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyBookingLock = "guesthouse:editlock:booking:%d"

	// DefaultTTL keeps a lock alive for an editor that stopped heartbeating.
	DefaultTTL = 5 * time.Minute
)

// acquireScript takes a free lock or refreshes one already held by the same
// editor. It returns the current holder.
const acquireScript = `
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return ARGV[1]
end
return current
`

const heartbeatScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLocked        = errors.New("booking_locked")
	ErrNotHolder     = errors.New("edit_lock_not_held")
	ErrInvalidEditor = errors.New("invalid_editor")
)

// Locker tracks which staff member is editing a booking so a second editor is
// turned away instead of overwriting the first one's changes. A nil Locker
// (no redis) grants every request.
type Locker struct {
	client    *redis.Client
	acquire   *redis.Script
	heartbeat *redis.Script
	release   *redis.Script
	ttl       time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{
		client:    client,
		acquire:   redis.NewScript(acquireScript),
		heartbeat: redis.NewScript(heartbeatScript),
		release:   redis.NewScript(releaseScript),
		ttl:       ttl,
	}
}

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Acquire takes the lock for editor, or refreshes it when editor already
// holds it. Another holder yields ErrLocked.
func (l *Locker) Acquire(ctx context.Context, bookingID snowflake.ID, editor string) error {
	if !l.Enabled() {
		return nil
	}
	editor = strings.TrimSpace(editor)
	if editor == "" {
		return ErrInvalidEditor
	}

	holder, err := l.acquire.Run(ctx, l.client, []string{key(bookingID)}, editor, l.ttl.Milliseconds()).Text()
	if err != nil {
		return err
	}
	if holder != editor {
		return fmt.Errorf("held by %s: %w", holder, ErrLocked)
	}
	return nil
}

func (l *Locker) Heartbeat(ctx context.Context, bookingID snowflake.ID, editor string) error {
	if !l.Enabled() {
		return nil
	}
	n, err := l.heartbeat.Run(ctx, l.client, []string{key(bookingID)}, strings.TrimSpace(editor), l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHolder
	}
	return nil
}

func (l *Locker) Release(ctx context.Context, bookingID snowflake.ID, editor string) error {
	if !l.Enabled() {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{key(bookingID)}, strings.TrimSpace(editor)).Err()
}

// Holder returns the current editor, or "" when the booking is free.
func (l *Locker) Holder(ctx context.Context, bookingID snowflake.ID) (string, error) {
	if !l.Enabled() {
		return "", nil
	}
	holder, err := l.client.Get(ctx, key(bookingID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}

// Check lets editor through unless someone else holds the lock. An empty
// editor skips the check.
func (l *Locker) Check(ctx context.Context, bookingID snowflake.ID, editor string) error {
	editor = strings.TrimSpace(editor)
	if !l.Enabled() || editor == "" {
		return nil
	}
	holder, err := l.Holder(ctx, bookingID)
	if err != nil {
		return err
	}
	if holder != "" && holder != editor {
		return fmt.Errorf("held by %s: %w", holder, ErrLocked)
	}
	return nil
}

func key(bookingID snowflake.ID) string {
	return fmt.Sprintf(keyBookingLock, bookingID.Int64())
}
