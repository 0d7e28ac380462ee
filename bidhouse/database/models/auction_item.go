package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type ItemStatus string

const (
	ItemStatusUpcoming  ItemStatus = "upcoming"
	ItemStatusActive    ItemStatus = "active"
	ItemStatusEnded     ItemStatus = "ended"
	ItemStatusCancelled ItemStatus = "cancelled"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusUpcoming, ItemStatusActive, ItemStatusEnded, ItemStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further price mutation is allowed.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusEnded || s == ItemStatusCancelled
}

type AuctionItem struct {
	bun.BaseModel `bun:"table:auction_items,alias:ai"`

	ID            int64           `bun:"id,pk,autoincrement"`
	SellerID      string          `bun:"seller_id,notnull"`
	Title         string          `bun:"title,notnull"`
	StartingPrice decimal.Decimal `bun:"starting_price,type:numeric(14,2),notnull"`
	CurrentPrice  decimal.Decimal `bun:"current_price,type:numeric(14,2),notnull"`
	BidIncrement  decimal.Decimal `bun:"bid_increment,type:numeric(14,2),notnull"`
	Status        ItemStatus      `bun:"status,notnull"`
	IsAuctionOver bool            `bun:"is_auction_over,notnull,default:false"`
	StartTime     time.Time       `bun:"start_time,notnull"`
	EndTime       time.Time       `bun:"end_time,notnull"`
	HighestBidder string          `bun:"highest_bidder_id,nullzero"`
	WinnerID      string          `bun:"winner_id,nullzero"`
	TotalBids     int             `bun:"total_bids,notnull,default:0"`

	// Version is bumped by every committed mutation and orders the item's event stream.
	Version int64 `bun:"version,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// MinimumBid is the smallest amount the ledger accepts for the next bid.
func (i *AuctionItem) MinimumBid() decimal.Decimal {
	return i.CurrentPrice.Add(i.BidIncrement)
}

// Open reports whether the item accepts price mutations, ignoring the clock.
func (i *AuctionItem) Open() bool {
	return i.Status == ItemStatusActive && !i.IsAuctionOver
}

// Activate opens an upcoming item once its start time has passed. The change is
// persisted by whatever update the caller commits next.
func (i *AuctionItem) Activate(now time.Time) {
	if i.Status == ItemStatusUpcoming && !now.Before(i.StartTime) {
		i.Status = ItemStatusActive
	}
}

func (i *AuctionItem) Expired(now time.Time) bool {
	return !now.Before(i.EndTime)
}

// Validate checks the record invariants at the transaction boundary.
func (i *AuctionItem) Validate() error {
	if !i.Status.Valid() {
		return fmt.Errorf("item %d has unknown status %q", i.ID, i.Status)
	}
	if i.CurrentPrice.LessThan(i.StartingPrice) {
		return fmt.Errorf("item %d current price %s is below starting price %s", i.ID, i.CurrentPrice, i.StartingPrice)
	}
	if !i.BidIncrement.IsPositive() {
		return fmt.Errorf("item %d has non-positive bid increment %s", i.ID, i.BidIncrement)
	}
	if (i.HighestBidder != "") != (i.TotalBids > 0) {
		return fmt.Errorf("item %d highest bidder %q disagrees with total bids %d", i.ID, i.HighestBidder, i.TotalBids)
	}
	return nil
}
