package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the read-only projection of the account table owned by the
// registration service. Actor ids across the ledger are DiscordID values.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement"`
	DiscordID string    `bun:"discord_id,notnull,unique"`
	Username  string    `bun:"username,notnull"`
	Joined    time.Time `bun:"joined,notnull"`
}
