package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/database/repositories"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newItem(t *testing.T, s *Store, end time.Time) *models.AuctionItem {
	t.Helper()
	item := &models.AuctionItem{
		SellerID:      "seller",
		StartingPrice: decimal.NewFromInt(100),
		BidIncrement:  decimal.NewFromInt(10),
		StartTime:     now.Add(-time.Hour),
		EndTime:       end,
	}
	assert.NoError(t, s.CreateItem(context.Background(), item))
	return item
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := New()
	item := newItem(t, s, now.Add(time.Hour))
	errAbort := errors.New("abort")

	err := s.WithTx(context.Background(), func(ctx context.Context, tx repositories.AuctionTx) error {
		locked, err := tx.LockItem(ctx, item.ID)
		assert.NoError(t, err)
		locked.CurrentPrice = decimal.NewFromInt(110)
		locked.HighestBidder = "bob"
		locked.TotalBids = 1
		assert.NoError(t, tx.UpdateItem(ctx, locked))
		assert.NoError(t, tx.InsertBid(ctx, &models.Bid{ItemID: item.ID, BidderID: "bob", BidAmount: decimal.NewFromInt(110), BidStatus: models.BidStatusActive}))
		return errAbort
	})
	check.True(t, errors.Is(err, errAbort))
	check.Equal(t, 0, s.Commits())

	got, err := s.GetItem(context.Background(), item.ID)
	assert.NoError(t, err)
	check.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(100)))
	bids, err := s.ListBids(context.Background(), item.ID)
	assert.NoError(t, err)
	check.Equal(t, 0, len(bids))
}

func TestFailNextCommitsReportsConflict(t *testing.T) {
	s := New()
	newItem(t, s, now.Add(time.Hour))
	s.FailNextCommits(1)

	noop := func(context.Context, repositories.AuctionTx) error { return nil }
	check.True(t, errors.Is(s.WithTx(context.Background(), noop), repositories.ErrConflict))
	assert.NoError(t, s.WithTx(context.Background(), noop))
	check.Equal(t, 1, s.Commits())
}

func TestExpiredItemIDsOrderAndLimit(t *testing.T) {
	s := New()
	late := newItem(t, s, now.Add(-time.Minute))
	early := newItem(t, s, now.Add(-time.Hour))
	newItem(t, s, now.Add(time.Hour))
	atDeadline := newItem(t, s, now)

	ids, err := s.ExpiredItemIDs(context.Background(), now, 0)
	assert.NoError(t, err)
	check.Equal(t, []int64{early.ID, late.ID, atDeadline.ID}, ids)

	ids, err = s.ExpiredItemIDs(context.Background(), now, 2)
	assert.NoError(t, err)
	check.Equal(t, []int64{early.ID, late.ID}, ids)
}

func TestTopProxyBidRanking(t *testing.T) {
	s := New()
	item := newItem(t, s, now.Add(time.Hour))

	err := s.WithTx(context.Background(), func(ctx context.Context, tx repositories.AuctionTx) error {
		for _, p := range []struct {
			user string
			max  int64
		}{{"carol", 150}, {"dave", 150}, {"erin", 120}, {"bob", 300}} {
			proxy := &models.ProxyBid{ItemID: item.ID, UserID: p.user, MaxBidAmount: decimal.NewFromInt(p.max), IsActive: true}
			if err := tx.UpsertProxyBid(ctx, proxy); err != nil {
				return err
			}
		}

		top, err := tx.TopProxyBid(ctx, item.ID, "bob", decimal.NewFromInt(110))
		assert.NoError(t, err)
		check.Equal(t, "carol", top.UserID)

		_, err = tx.TopProxyBid(ctx, item.ID, "bob", decimal.NewFromInt(150))
		check.True(t, errors.Is(err, repositories.ErrNotFound))

		n, err := tx.DeactivateProxyBids(ctx, item.ID)
		assert.NoError(t, err)
		check.Equal(t, 4, n)
		return nil
	})
	assert.NoError(t, err)
}
