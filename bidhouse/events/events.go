package events

import (
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/economy/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	TypeBidPlaced        EventType = "bid_placed"
	TypeBidRetracted     EventType = "bid_retracted"
	TypeProxyExhausted   EventType = "proxy_exhausted"
	TypeAuctionEnded     EventType = "auction_ended"
	TypeAuctionCancelled EventType = "auction_cancelled"
)

// Envelope is one committed state change of an item. Version is the item
// version the change produced, so a consumer can order and dedupe per item.
type Envelope struct {
	EventID    string    `json:"eventId"`
	Type       EventType `json:"type"`
	ItemID     int64     `json:"itemId"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurredAt"`

	Bid       *BidUpdate      `json:"bid,omitempty"`
	Ended     *AuctionEnded   `json:"ended,omitempty"`
	Exhausted *ProxyExhausted `json:"exhausted,omitempty"`

	// Summary is what listing pages need to refresh without following the item.
	Summary *ItemSummary `json:"summary,omitempty"`
}

type BidUpdate struct {
	ItemID         int64     `json:"itemId"`
	NewPrice       string    `json:"newPrice"`
	PreviousPrice  string    `json:"previousPrice"`
	BidderID       string    `json:"bidderId"`
	BidderUsername string    `json:"bidderUsername,omitempty"`
	TotalBids      int       `json:"totalBids"`
	BidIncrement   string    `json:"bidIncrement"`
	Timestamp      time.Time `json:"timestamp"`
	BidID          int64     `json:"bidId"`
	IsAutoBid      bool      `json:"isAutoBid,omitempty"`
	IsRetraction   bool      `json:"isRetraction,omitempty"`
}

type AuctionEnded struct {
	ItemID     int64     `json:"itemId"`
	WinnerID   string    `json:"winnerId,omitempty"`
	FinalPrice string    `json:"finalPrice"`
	TotalBids  int       `json:"totalBids"`
	EndedAt    time.Time `json:"endedAt"`
	Status     string    `json:"status"`
}

type ProxyExhausted struct {
	ItemID         int64  `json:"itemId"`
	UserID         string `json:"userId"`
	MaxBidAmount   string `json:"maxBidAmount"`
	RequiredAmount string `json:"requiredAmount"`
}

type ItemSummary struct {
	ItemID       int64  `json:"itemId"`
	NewPrice     string `json:"newPrice"`
	TotalBids    int    `json:"totalBids"`
	Status       string `json:"status"`
	IsRetraction bool   `json:"isRetraction,omitempty"`
}

// amount renders money the way the ledger stores it, so viewers never see float rounding.
func amount(d decimal.Decimal) string {
	return d.StringFixed(utils.MoneyPlaces)
}

func newEnvelope(t EventType, item *models.AuctionItem, at time.Time) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		Type:       t,
		ItemID:     item.ID,
		Version:    item.Version,
		OccurredAt: at,
	}
}

func summaryOf(item *models.AuctionItem, retraction bool) *ItemSummary {
	return &ItemSummary{
		ItemID:       item.ID,
		NewPrice:     amount(item.CurrentPrice),
		TotalBids:    item.TotalBids,
		Status:       string(item.Status),
		IsRetraction: retraction,
	}
}

// BidPlaced describes a committed bid. item is the state the bid's transaction committed.
func BidPlaced(item *models.AuctionItem, bid *models.Bid) Envelope {
	env := newEnvelope(TypeBidPlaced, item, bid.Timestamp)
	env.Bid = &BidUpdate{
		ItemID:        item.ID,
		NewPrice:      amount(item.CurrentPrice),
		PreviousPrice: amount(bid.PreviousPrice),
		BidderID:      bid.BidderID,
		TotalBids:     item.TotalBids,
		BidIncrement:  amount(item.BidIncrement),
		Timestamp:     bid.Timestamp,
		BidID:         bid.ID,
		IsAutoBid:     bid.IsAutoBid,
	}
	env.Summary = summaryOf(item, false)
	return env
}

// BidRetracted carries the price recomputed after bid was withdrawn. The bidder
// fields name the new leader, empty when no bid is left.
func BidRetracted(item *models.AuctionItem, bid *models.Bid) Envelope {
	env := newEnvelope(TypeBidRetracted, item, bid.RetractedAt)
	env.Bid = &BidUpdate{
		ItemID:        item.ID,
		NewPrice:      amount(item.CurrentPrice),
		PreviousPrice: amount(bid.BidAmount),
		BidderID:      item.HighestBidder,
		TotalBids:     item.TotalBids,
		BidIncrement:  amount(item.BidIncrement),
		Timestamp:     bid.RetractedAt,
		BidID:         bid.ID,
		IsRetraction:  true,
	}
	env.Summary = summaryOf(item, true)
	return env
}

// AuctionClosed covers both finalization and seller cancellation.
func AuctionClosed(item *models.AuctionItem, at time.Time) Envelope {
	t := TypeAuctionEnded
	if item.Status == models.ItemStatusCancelled {
		t = TypeAuctionCancelled
	}
	env := newEnvelope(t, item, at)
	env.Ended = &AuctionEnded{
		ItemID:     item.ID,
		WinnerID:   item.WinnerID,
		FinalPrice: amount(item.CurrentPrice),
		TotalBids:  item.TotalBids,
		EndedAt:    at,
		Status:     string(item.Status),
	}
	env.Summary = summaryOf(item, false)
	return env
}

// ProxyExhaustedEvent is informational and has no listing summary.
func ProxyExhaustedEvent(item *models.AuctionItem, proxy *models.ProxyBid, at time.Time) Envelope {
	env := newEnvelope(TypeProxyExhausted, item, at)
	env.Exhausted = &ProxyExhausted{
		ItemID:         item.ID,
		UserID:         proxy.UserID,
		MaxBidAmount:   amount(proxy.MaxBidAmount),
		RequiredAmount: amount(item.MinimumBid()),
	}
	return env
}
