package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

type countingLookup struct {
	names map[string]string
	err   error
	calls int
}

func (l *countingLookup) LookupUsername(_ context.Context, id string) (string, error) {
	l.calls++
	if l.err != nil {
		return "", l.err
	}
	return l.names[id], nil
}

func TestUserDirectoryCachesLookups(t *testing.T) {
	lookup := &countingLookup{names: map[string]string{"42": "alice"}}
	dir := NewUserDirectory(lookup)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dir.now = func() time.Time { return now }

	check.Equal(t, "alice", dir.Username(context.Background(), "42"))
	check.Equal(t, "alice", dir.Username(context.Background(), "42"))
	check.Equal(t, 1, lookup.calls)

	check.Equal(t, "", dir.Username(context.Background(), "unknown"))
	check.Equal(t, 2, lookup.calls)

	now = now.Add(userCacheExpiry)
	lookup.names["42"] = "alice2"
	check.Equal(t, "alice2", dir.Username(context.Background(), "42"))
	check.Equal(t, 3, lookup.calls)
}

func TestUserDirectorySwallowsErrors(t *testing.T) {
	lookup := &countingLookup{err: errors.New("connection refused")}
	dir := NewUserDirectory(lookup)

	check.Equal(t, "", dir.Username(context.Background(), "42"))
	check.Equal(t, "", dir.Username(context.Background(), "42"))
	check.Equal(t, 2, lookup.calls)
}

func TestNewArchivedAuction(t *testing.T) {
	end := time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC)
	item := &models.AuctionItem{
		ID:            9,
		SellerID:      "s",
		Title:         "Lamp",
		Status:        models.ItemStatusEnded,
		StartingPrice: decimal.RequireFromString("100"),
		CurrentPrice:  decimal.RequireFromString("150"),
		BidIncrement:  decimal.RequireFromString("10"),
		WinnerID:      "c",
		HighestBidder: "c",
		TotalBids:     2,
		EndTime:       end,
	}
	bids := []*models.Bid{
		{ID: 2, BidderID: "c", BidAmount: decimal.RequireFromString("150"), PreviousPrice: decimal.RequireFromString("140"), IsAutoBid: true, BidStatus: models.BidStatusWon},
		{ID: 1, BidderID: "b", BidAmount: decimal.RequireFromString("140"), PreviousPrice: decimal.RequireFromString("100"), BidStatus: models.BidStatusLost},
	}

	doc := NewArchivedAuction(item, bids, end.Add(time.Minute))
	check.Equal(t, int64(9), doc.ItemID)
	check.Equal(t, "150.00", doc.FinalPrice)
	check.Equal(t, "c", doc.WinnerID)
	assert.Equal(t, 2, len(doc.Bids))
	check.True(t, doc.Bids[0].IsAutoBid)
	check.Equal(t, "won", doc.Bids[0].Status)
	check.Equal(t, "lost", doc.Bids[1].Status)
}
