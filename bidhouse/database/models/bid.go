package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BidStatus string

const (
	BidStatusActive    BidStatus = "active"
	BidStatusOutbid    BidStatus = "outbid"
	BidStatusWinning   BidStatus = "winning"
	BidStatusWon       BidStatus = "won"
	BidStatusLost      BidStatus = "lost"
	BidStatusRetracted BidStatus = "retracted"
)

func (s BidStatus) Valid() bool {
	switch s {
	case BidStatusActive, BidStatusOutbid, BidStatusWinning, BidStatusWon, BidStatusLost, BidStatusRetracted:
		return true
	}
	return false
}

// Bid is a ledger entry. Only retraction fields and the terminal status are ever updated.
type Bid struct {
	bun.BaseModel `bun:"table:bids,alias:b"`

	ID            int64           `bun:"id,pk,autoincrement"`
	ItemID        int64           `bun:"item_id,notnull"`
	BidderID      string          `bun:"bidder_id,notnull"`
	BidAmount     decimal.Decimal `bun:"bid_amount,type:numeric(14,2),notnull"`
	PreviousPrice decimal.Decimal `bun:"previous_price,type:numeric(14,2),notnull"`
	Timestamp     time.Time       `bun:"timestamp,notnull"`
	IsAutoBid     bool            `bun:"is_auto_bid,notnull,default:false"`
	BidStatus     BidStatus       `bun:"bid_status,notnull"`

	IsRetracted      bool      `bun:"is_retracted,notnull,default:false"`
	RetractionReason string    `bun:"retraction_reason,nullzero"`
	RetractedAt      time.Time `bun:"retracted_at,nullzero"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
