package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"
)

const (
	userCacheSize   = 10000
	userCacheExpiry = 10 * time.Minute
)

// UsernameLookup resolves an actor id to a display name. An unknown actor
// yields "" and no error.
type UsernameLookup interface {
	LookupUsername(ctx context.Context, userID string) (string, error)
}

// BunUserLookup reads the users table.
type BunUserLookup struct {
	db *bun.DB
}

func NewBunUserLookup(db *bun.DB) *BunUserLookup {
	return &BunUserLookup{db: db}
}

func (l *BunUserLookup) LookupUsername(ctx context.Context, userID string) (string, error) {
	user := new(models.User)
	err := l.db.NewSelect().
		Model(user).
		Column("username").
		Where("discord_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get username: %w", err)
	}
	return user.Username, nil
}

type cachedUsername struct {
	name      string
	timestamp time.Time
}

// UserDirectory caches usernames for event payloads.
type UserDirectory struct {
	lookup UsernameLookup
	cache  *lru.Cache
	expiry time.Duration
	now    func() time.Time
}

func NewUserDirectory(lookup UsernameLookup) *UserDirectory {
	cache, _ := lru.New(userCacheSize)
	return &UserDirectory{
		lookup: lookup,
		cache:  cache,
		expiry: userCacheExpiry,
		now:    time.Now,
	}
}

// Username never fails. Lookup errors are logged and yield "".
func (d *UserDirectory) Username(ctx context.Context, userID string) string {
	if v, ok := d.cache.Get(userID); ok {
		entry := v.(cachedUsername)
		if d.now().Sub(entry.timestamp) < d.expiry {
			return entry.name
		}
		d.cache.Remove(userID)
	}

	name, err := d.lookup.LookupUsername(ctx, userID)
	if err != nil {
		slog.Warn("Username lookup failed",
			slog.String("type", "db"),
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return ""
	}

	d.cache.Add(userID, cachedUsername{name: name, timestamp: d.now()})
	return name
}
