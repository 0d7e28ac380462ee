package auction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/memstore"
	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/economy/utils"
	"github.com/gohye/bidhouse/bidhouse/events"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (r *eventRecorder) Publish(env events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
}

func (r *eventRecorder) Types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]events.EventType, len(r.envs))
	for i, env := range r.envs {
		types[i] = env.Type
	}
	return types
}

func (r *eventRecorder) Last() events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.envs[len(r.envs)-1]
}

type fixture struct {
	store  *memstore.Store
	clock  *fakeClock
	events *eventRecorder
	mgr    *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  memstore.New(),
		clock:  &fakeClock{now: baseTime},
		events: &eventRecorder{},
	}
	base := []Option{WithClock(f.clock.Now), WithEvents(f.events)}
	f.mgr = NewManager(utils.NewTransactionManager(f.store, 3), append(base, opts...)...)
	return f
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// createItem lists an item starting at 100 with increment 10 that ends in an hour.
func (f *fixture) createItem(t *testing.T, seller string) *models.AuctionItem {
	t.Helper()
	item := &models.AuctionItem{
		SellerID:      seller,
		Title:         "Vintage Lamp",
		StartingPrice: money("100"),
		BidIncrement:  money("10"),
		StartTime:     f.clock.Now(),
		EndTime:       f.clock.Now().Add(time.Hour),
	}
	assert.NoError(t, f.store.CreateItem(context.Background(), item))
	return item
}

func (f *fixture) item(t *testing.T, id int64) *models.AuctionItem {
	t.Helper()
	item, err := f.mgr.GetItem(context.Background(), id)
	assert.NoError(t, err)
	return item
}

func (f *fixture) bid(t *testing.T, itemID int64, bidder, amount string) *BidResult {
	t.Helper()
	res, err := f.mgr.PlaceBid(context.Background(), itemID, bidder, money(amount))
	assert.NoError(t, err)
	return res
}

func checkReason(t *testing.T, err error, want RejectReason) {
	t.Helper()
	rej, ok := IsRejection(err)
	if !ok {
		t.Fatalf("expected rejection %q, got %v", want, err)
	}
	check.Equal(t, want, rej.Reason)
}

func TestPlaceBidRejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture, item *models.AuctionItem)
		itemID  func(item *models.AuctionItem) int64
		bidder  string
		amount  string
		want    RejectReason
		message string
	}{
		{
			name:    "below minimum",
			bidder:  "bob",
			amount:  "105",
			want:    ReasonBelowMinimum,
			message: "Minimum bid is $110.00",
		},
		{
			name:   "unknown item",
			itemID: func(*models.AuctionItem) int64 { return 999 },
			bidder: "bob",
			amount: "110",
			want:   ReasonNotFound,
		},
		{
			name:    "seller bids on own item",
			bidder:  "seller",
			amount:  "110",
			want:    ReasonSelfBid,
			message: "You cannot bid on your own auction",
		},
		{
			name:   "zero amount",
			bidder: "bob",
			amount: "0",
			want:   ReasonInvalidAmount,
		},
		{
			name:   "sub-cent amount",
			bidder: "bob",
			amount: "110.005",
			want:   ReasonInvalidAmount,
		},
		{
			name: "leader repeats minimum",
			setup: func(t *testing.T, f *fixture, item *models.AuctionItem) {
				f.bid(t, item.ID, "bob", "110")
			},
			bidder:  "bob",
			amount:  "120",
			want:    ReasonAlreadyHighest,
			message: "You are already the highest bidder",
		},
		{
			name: "cancelled item",
			setup: func(t *testing.T, f *fixture, item *models.AuctionItem) {
				_, err := f.mgr.CancelAuction(context.Background(), item.ID, "seller")
				assert.NoError(t, err)
			},
			bidder: "bob",
			amount: "110",
			want:   ReasonAuctionEnded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			item := f.createItem(t, "seller")
			if tt.setup != nil {
				tt.setup(t, f, item)
			}
			id := item.ID
			if tt.itemID != nil {
				id = tt.itemID(item)
			}

			before := f.store.Commits()
			_, err := f.mgr.PlaceBid(context.Background(), id, tt.bidder, money(tt.amount))
			checkReason(t, err, tt.want)
			if tt.message != "" {
				check.Equal(t, tt.message, err.Error())
			}
			check.Equal(t, before, f.store.Commits())
		})
	}
}

func TestPlaceBidRejectsUpcomingItem(t *testing.T) {
	f := newFixture(t)
	item := &models.AuctionItem{
		SellerID:      "seller",
		StartingPrice: money("100"),
		BidIncrement:  money("10"),
		Status:        models.ItemStatusUpcoming,
		StartTime:     baseTime.Add(time.Hour),
		EndTime:       baseTime.Add(2 * time.Hour),
	}
	assert.NoError(t, f.store.CreateItem(context.Background(), item))

	_, err := f.mgr.PlaceBid(context.Background(), item.ID, "bob", money("110"))
	checkReason(t, err, ReasonNotActive)
}

func TestPlaceBidCommitsPriceAndLeader(t *testing.T) {
	f := newFixture(t)
	item := f.createItem(t, "seller")

	res := f.bid(t, item.ID, "bob", "110")
	check.True(t, res.Bid.PreviousPrice.Equal(money("100")))
	check.True(t, res.Bid.BidAmount.Equal(money("110")))
	check.False(t, res.Bid.IsAutoBid)
	check.Equal(t, models.BidStatusActive, res.Bid.BidStatus)
	check.True(t, res.Bid.Timestamp.Equal(baseTime))

	got := f.item(t, item.ID)
	check.True(t, got.CurrentPrice.Equal(money("110")))
	check.Equal(t, "bob", got.HighestBidder)
	check.Equal(t, 1, got.TotalBids)
	check.Equal(t, int64(1), got.Version)

	check.Equal(t, []events.EventType{events.TypeBidPlaced}, f.events.Types())
	env := f.events.Last()
	check.Equal(t, "110.00", env.Bid.NewPrice)
	check.Equal(t, "100.00", env.Bid.PreviousPrice)
	check.Equal(t, int64(1), env.Version)

	// A leader may raise above the minimum.
	f.bid(t, item.ID, "bob", "150")
	check.True(t, f.item(t, item.ID).CurrentPrice.Equal(money("150")))
}

func TestPlaceBidAllowsSellerInDemoMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowSellerBids = true
	f := newFixture(t, WithConfig(cfg))
	item := f.createItem(t, "seller")

	f.bid(t, item.ID, "seller", "110")
	check.Equal(t, "seller", f.item(t, item.ID).HighestBidder)
}

func TestPriceIsMonotonic(t *testing.T) {
	f := newFixture(t)
	item := f.createItem(t, "seller")

	bidders := []string{"a", "b", "c"}
	amounts := []string{"110", "105", "125", "125", "140", "139.99", "150.50", "300"}
	last := money("100")
	for i, amount := range amounts {
		_, _ = f.mgr.PlaceBid(context.Background(), item.ID, bidders[i%len(bidders)], money(amount))
		got := f.item(t, item.ID)
		check.False(t, got.CurrentPrice.LessThan(last))
		last = got.CurrentPrice
		f.clock.Advance(time.Second)
	}

	bids, err := f.mgr.ListBids(context.Background(), item.ID)
	assert.NoError(t, err)
	for _, bid := range bids {
		check.False(t, bid.BidAmount.LessThan(bid.PreviousPrice.Add(money("10"))))
	}
	got := f.item(t, item.ID)
	check.Equal(t, len(bids), got.TotalBids)
	check.Equal(t, bids[0].BidderID, got.HighestBidder)
}

func TestConcurrentBidsCommitExactlyOnce(t *testing.T) {
	f := newFixture(t)
	item := f.createItem(t, "seller")

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.mgr.PlaceBid(context.Background(), item.ID, fmt.Sprintf("bidder-%d", i), money("110"))
		}()
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		checkReason(t, err, ReasonBelowMinimum)
	}
	check.Equal(t, 1, accepted)

	got := f.item(t, item.ID)
	check.Equal(t, 1, got.TotalBids)
	check.True(t, got.CurrentPrice.Equal(money("110")))
}

func TestPlaceBidRetriesConflicts(t *testing.T) {
	f := newFixture(t)
	item := f.createItem(t, "seller")

	f.store.FailNextCommits(2)
	f.bid(t, item.ID, "bob", "110")
	check.Equal(t, 1, f.item(t, item.ID).TotalBids)

	f.store.FailNextCommits(10)
	_, err := f.mgr.PlaceBid(context.Background(), item.ID, "carol", money("120"))
	check.True(t, errors.Is(err, ErrConflict))
	_, isRejection := IsRejection(err)
	check.False(t, isRejection)

	got := f.item(t, item.ID)
	check.Equal(t, "bob", got.HighestBidder)
	check.Equal(t, 1, got.TotalBids)
}

func TestPlaceBidLazilyFinalizesExpiredItem(t *testing.T) {
	f := newFixture(t)
	item := f.createItem(t, "seller")
	f.bid(t, item.ID, "bob", "110")
	f.bid(t, item.ID, "carol", "120")

	f.clock.Advance(time.Hour)
	_, err := f.mgr.PlaceBid(context.Background(), item.ID, "bob", money("200"))
	checkReason(t, err, ReasonAuctionEnded)
	check.Equal(t, "Auction has already ended", err.Error())

	got := f.item(t, item.ID)
	check.Equal(t, models.ItemStatusEnded, got.Status)
	check.True(t, got.IsAuctionOver)
	check.Equal(t, "carol", got.WinnerID)
	check.True(t, got.CurrentPrice.Equal(money("120")))

	bids, err := f.mgr.ListBids(context.Background(), item.ID)
	assert.NoError(t, err)
	for _, bid := range bids {
		if bid.BidderID == "carol" {
			check.Equal(t, models.BidStatusWon, bid.BidStatus)
		} else {
			check.Equal(t, models.BidStatusLost, bid.BidStatus)
		}
	}
	check.Equal(t, events.TypeAuctionEnded, f.events.Last().Type)

	closed, err := f.mgr.Finalize(context.Background(), item.ID)
	assert.NoError(t, err)
	check.False(t, closed)
}

func TestCancelAuction(t *testing.T) {
	t.Run("seller cancels without bids", func(t *testing.T) {
		f := newFixture(t)
		item := f.createItem(t, "seller")

		got, err := f.mgr.CancelAuction(context.Background(), item.ID, "seller")
		assert.NoError(t, err)
		check.Equal(t, models.ItemStatusCancelled, got.Status)
		check.True(t, got.IsAuctionOver)
		check.Equal(t, events.TypeAuctionCancelled, f.events.Last().Type)

		closed, err := f.mgr.Finalize(context.Background(), item.ID)
		assert.NoError(t, err)
		check.False(t, closed)
	})

	t.Run("other user", func(t *testing.T) {
		f := newFixture(t)
		item := f.createItem(t, "seller")
		_, err := f.mgr.CancelAuction(context.Background(), item.ID, "bob")
		checkReason(t, err, ReasonNotSeller)
	})

	t.Run("item with bids", func(t *testing.T) {
		f := newFixture(t)
		item := f.createItem(t, "seller")
		f.bid(t, item.ID, "bob", "110")
		_, err := f.mgr.CancelAuction(context.Background(), item.ID, "seller")
		checkReason(t, err, ReasonHasBids)
	})
}

func TestAmountParsing(t *testing.T) {
	_, err := AmountFromFloat(math.NaN())
	checkReason(t, err, ReasonInvalidAmount)
	_, err = AmountFromFloat(math.Inf(1))
	checkReason(t, err, ReasonInvalidAmount)

	amount, err := AmountFromFloat(110.5)
	assert.NoError(t, err)
	check.True(t, amount.Equal(money("110.5")))

	_, err = ParseAmount("ten")
	checkReason(t, err, ReasonInvalidAmount)
	amount, err = ParseAmount("120.25")
	assert.NoError(t, err)
	check.True(t, amount.Equal(money("120.25")))
}

func TestCreateAuction(t *testing.T) {
	tests := []struct {
		name string
		item models.AuctionItem
	}{
		{name: "no seller", item: models.AuctionItem{StartingPrice: money("10"), EndTime: baseTime.Add(time.Hour)}},
		{name: "zero starting price", item: models.AuctionItem{SellerID: "seller", EndTime: baseTime.Add(time.Hour)}},
		{name: "fractional cents", item: models.AuctionItem{SellerID: "seller", StartingPrice: money("10.001"), EndTime: baseTime.Add(time.Hour)}},
		{name: "negative increment", item: models.AuctionItem{SellerID: "seller", StartingPrice: money("10"), BidIncrement: money("-1"), EndTime: baseTime.Add(time.Hour)}},
		{name: "ends before start", item: models.AuctionItem{SellerID: "seller", StartingPrice: money("10"), StartTime: baseTime.Add(2 * time.Hour), EndTime: baseTime.Add(time.Hour)}},
		{name: "ended already", item: models.AuctionItem{SellerID: "seller", StartingPrice: money("10"), StartTime: baseTime.Add(-2 * time.Hour), EndTime: baseTime.Add(-time.Hour)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			item := tt.item
			_, err := f.mgr.CreateAuction(context.Background(), &item)
			checkReason(t, err, ReasonInvalidListing)
		})
	}

	t.Run("defaults", func(t *testing.T) {
		f := newFixture(t)
		got, err := f.mgr.CreateAuction(context.Background(), &models.AuctionItem{
			SellerID:      "seller",
			Title:         "Brass Compass",
			StartingPrice: money("100"),
			EndTime:       baseTime.Add(time.Hour),
		})
		assert.NoError(t, err)
		check.True(t, got.ID > 0)
		check.Equal(t, models.ItemStatusActive, got.Status)
		check.True(t, got.BidIncrement.Equal(money("1")))
		check.True(t, got.CurrentPrice.Equal(money("100")))
		check.True(t, got.StartTime.Equal(baseTime))

		f.bid(t, got.ID, "bob", "101")
		f.checkLeader(t, got.ID, "bob", "101")
	})
}

func TestUpcomingItemOpensAtStartTime(t *testing.T) {
	f := newFixture(t)
	item, err := f.mgr.CreateAuction(context.Background(), &models.AuctionItem{
		SellerID:      "seller",
		StartingPrice: money("100"),
		BidIncrement:  money("10"),
		StartTime:     baseTime.Add(time.Hour),
		EndTime:       baseTime.Add(2 * time.Hour),
	})
	assert.NoError(t, err)
	check.Equal(t, models.ItemStatusUpcoming, item.Status)

	_, err = f.mgr.PlaceBid(context.Background(), item.ID, "bob", money("110"))
	checkReason(t, err, ReasonNotActive)

	f.clock.Advance(time.Hour)
	check.Equal(t, models.ItemStatusActive, f.item(t, item.ID).Status)
	stored, err := f.store.GetItem(context.Background(), item.ID)
	assert.NoError(t, err)
	check.Equal(t, models.ItemStatusUpcoming, stored.Status)

	f.bid(t, item.ID, "bob", "110")
	stored, err = f.store.GetItem(context.Background(), item.ID)
	assert.NoError(t, err)
	check.Equal(t, models.ItemStatusActive, stored.Status)
}

func TestUpcomingItemWithoutBidsIsFinalized(t *testing.T) {
	f := newFixture(t)
	item, err := f.mgr.CreateAuction(context.Background(), &models.AuctionItem{
		SellerID:      "seller",
		StartingPrice: money("100"),
		StartTime:     baseTime.Add(time.Hour),
		EndTime:       baseTime.Add(2 * time.Hour),
	})
	assert.NoError(t, err)

	f.clock.Advance(3 * time.Hour)
	closed, err := f.mgr.Finalize(context.Background(), item.ID)
	assert.NoError(t, err)
	check.True(t, closed)

	got := f.item(t, item.ID)
	check.Equal(t, models.ItemStatusEnded, got.Status)
	check.Equal(t, "", got.WinnerID)
}
