package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// ProxyBid is a standing ceiling the resolver bids against on the owner's behalf.
// At most one row exists per (item, user).
type ProxyBid struct {
	bun.BaseModel `bun:"table:proxy_bids,alias:pb"`

	ID                   int64           `bun:"id,pk,autoincrement"`
	ItemID               int64           `bun:"item_id,notnull,unique:proxy_item_user"`
	UserID               string          `bun:"user_id,notnull,unique:proxy_item_user"`
	MaxBidAmount         decimal.Decimal `bun:"max_bid_amount,type:numeric(14,2),notnull"`
	CurrentAutoBidAmount decimal.Decimal `bun:"current_auto_bid_amount,type:numeric(14,2),notnull,default:0"`
	IsActive             bool            `bun:"is_active,notnull,default:true"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Outranks reports whether p beats o for the lead: the higher ceiling wins and
// equal ceilings go to the proxy set first, then the lower id.
func (p *ProxyBid) Outranks(o *ProxyBid) bool {
	if c := p.MaxBidAmount.Cmp(o.MaxBidAmount); c != 0 {
		return c > 0
	}
	if !p.CreatedAt.Equal(o.CreatedAt) {
		return p.CreatedAt.Before(o.CreatedAt)
	}
	return p.ID < o.ID
}
