// Package memstore is an in-process AuctionStore. Transactions are fully
// serialized and applied copy-on-commit, which gives the same visible
// semantics as the Postgres store at SERIALIZABLE isolation.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/database/repositories"
	"github.com/shopspring/decimal"
)

type state struct {
	items   map[int64]models.AuctionItem
	bids    map[int64]models.Bid
	proxies map[int64]models.ProxyBid

	nextItemID  int64
	nextBidID   int64
	nextProxyID int64
}

func newState() *state {
	return &state{
		items:   make(map[int64]models.AuctionItem),
		bids:    make(map[int64]models.Bid),
		proxies: make(map[int64]models.ProxyBid),
	}
}

func (s *state) clone() *state {
	c := &state{
		items:       make(map[int64]models.AuctionItem, len(s.items)),
		bids:        make(map[int64]models.Bid, len(s.bids)),
		proxies:     make(map[int64]models.ProxyBid, len(s.proxies)),
		nextItemID:  s.nextItemID,
		nextBidID:   s.nextBidID,
		nextProxyID: s.nextProxyID,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.bids {
		c.bids[k] = v
	}
	for k, v := range s.proxies {
		c.proxies[k] = v
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state

	// failCommits makes the next n commits report a conflict.
	failCommits int
	commits     int
}

var _ repositories.AuctionStore = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

// FailNextCommits makes the next n transactions abort with ErrConflict at commit.
func (s *Store) FailNextCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = n
}

// Commits returns how many transactions have committed.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repositories.AuctionTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	working := s.state.clone()
	if err := fn(ctx, &memTx{st: working}); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	if s.failCommits > 0 {
		s.failCommits--
		return fmt.Errorf("commit transaction: %w", repositories.ErrConflict)
	}

	s.state = working
	s.commits++
	return nil
}

func (s *Store) CreateItem(_ context.Context, item *models.AuctionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if item.CurrentPrice.IsZero() {
		item.CurrentPrice = item.StartingPrice
	}
	if item.Status == "" {
		item.Status = models.ItemStatusActive
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	if err := item.Validate(); err != nil {
		return err
	}

	s.state.nextItemID++
	item.ID = s.state.nextItemID
	s.state.items[item.ID] = *item
	return nil
}

func (s *Store) GetItem(_ context.Context, id int64) (*models.AuctionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.state.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ListBids(_ context.Context, itemID int64) ([]*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bids := standingBids(s.state, itemID, 0)
	return bids, nil
}

func (s *Store) GetProxyBid(_ context.Context, itemID int64, userID string) (*models.ProxyBid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proxy, ok := findProxy(s.state, itemID, userID)
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &proxy, nil
}

func (s *Store) ExpiredItemIDs(_ context.Context, now time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []models.AuctionItem
	for _, item := range s.state.items {
		open := item.Status == models.ItemStatusActive || item.Status == models.ItemStatusUpcoming
		if open && !item.IsAuctionOver && !item.EndTime.After(now) {
			expired = append(expired, item)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].EndTime.Equal(expired[j].EndTime) {
			return expired[i].ID < expired[j].ID
		}
		return expired[i].EndTime.Before(expired[j].EndTime)
	})

	ids := make([]int64, 0, len(expired))
	for _, item := range expired {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// standingBids returns non-retracted bids of an item, highest first and newest
// first on equal amounts.
func standingBids(st *state, itemID, excludeBidID int64) []*models.Bid {
	var bids []*models.Bid
	for _, bid := range st.bids {
		if bid.ItemID != itemID || bid.IsRetracted || bid.ID == excludeBidID {
			continue
		}
		b := bid
		bids = append(bids, &b)
	}
	sort.Slice(bids, func(i, j int) bool {
		if c := bids[i].BidAmount.Cmp(bids[j].BidAmount); c != 0 {
			return c > 0
		}
		if !bids[i].Timestamp.Equal(bids[j].Timestamp) {
			return bids[i].Timestamp.After(bids[j].Timestamp)
		}
		return bids[i].ID > bids[j].ID
	})
	return bids
}

func findProxy(st *state, itemID int64, userID string) (models.ProxyBid, bool) {
	for _, proxy := range st.proxies {
		if proxy.ItemID == itemID && proxy.UserID == userID {
			return proxy, true
		}
	}
	return models.ProxyBid{}, false
}

type memTx struct {
	st *state
}

func (t *memTx) LockItem(_ context.Context, id int64) (*models.AuctionItem, error) {
	item, ok := t.st.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &item, nil
}

func (t *memTx) UpdateItem(_ context.Context, item *models.AuctionItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	stored, ok := t.st.items[item.ID]
	if !ok {
		return fmt.Errorf("auction item %d was not updated", item.ID)
	}
	stored.CurrentPrice = item.CurrentPrice
	stored.HighestBidder = item.HighestBidder
	stored.TotalBids = item.TotalBids
	stored.Status = item.Status
	stored.IsAuctionOver = item.IsAuctionOver
	stored.WinnerID = item.WinnerID
	stored.Version = item.Version
	stored.UpdatedAt = time.Now()
	item.UpdatedAt = stored.UpdatedAt
	t.st.items[item.ID] = stored
	return nil
}

func (t *memTx) InsertBid(_ context.Context, bid *models.Bid) error {
	if !bid.BidStatus.Valid() {
		return fmt.Errorf("bid has unknown status %q", bid.BidStatus)
	}
	if _, ok := t.st.items[bid.ItemID]; !ok {
		return fmt.Errorf("failed to create bid: unknown auction item %d", bid.ItemID)
	}
	t.st.nextBidID++
	bid.ID = t.st.nextBidID
	bid.CreatedAt = time.Now()
	t.st.bids[bid.ID] = *bid
	return nil
}

func (t *memTx) LockBid(_ context.Context, id int64) (*models.Bid, error) {
	bid, ok := t.st.bids[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &bid, nil
}

func (t *memTx) UpdateBid(_ context.Context, bid *models.Bid) error {
	if !bid.BidStatus.Valid() {
		return fmt.Errorf("bid %d has unknown status %q", bid.ID, bid.BidStatus)
	}
	stored, ok := t.st.bids[bid.ID]
	if !ok {
		return fmt.Errorf("bid %d was not updated", bid.ID)
	}
	stored.BidStatus = bid.BidStatus
	stored.IsRetracted = bid.IsRetracted
	stored.RetractionReason = bid.RetractionReason
	stored.RetractedAt = bid.RetractedAt
	t.st.bids[bid.ID] = stored
	return nil
}

func (t *memTx) HighestStandingBid(_ context.Context, itemID, excludeBidID int64) (*models.Bid, error) {
	bids := standingBids(t.st, itemID, excludeBidID)
	if len(bids) == 0 {
		return nil, repositories.ErrNotFound
	}
	return bids[0], nil
}

func (t *memTx) CountStandingBids(_ context.Context, itemID int64) (int, error) {
	return len(standingBids(t.st, itemID, 0)), nil
}

func (t *memTx) SettleBids(_ context.Context, itemID int64, winnerID string) error {
	for id, bid := range t.st.bids {
		if bid.ItemID != itemID || bid.IsRetracted {
			continue
		}
		if bid.BidderID == winnerID {
			bid.BidStatus = models.BidStatusWon
		} else {
			bid.BidStatus = models.BidStatusLost
		}
		t.st.bids[id] = bid
	}
	return nil
}

func (t *memTx) TopProxyBid(_ context.Context, itemID int64, excludeUserID string, above decimal.Decimal) (*models.ProxyBid, error) {
	var top *models.ProxyBid
	for _, proxy := range t.st.proxies {
		if proxy.ItemID != itemID || !proxy.IsActive || proxy.UserID == excludeUserID {
			continue
		}
		if !proxy.MaxBidAmount.GreaterThan(above) {
			continue
		}
		p := proxy
		if top == nil || p.Outranks(top) {
			top = &p
		}
	}
	if top == nil {
		return nil, repositories.ErrNotFound
	}
	return top, nil
}

func (t *memTx) GetProxyBid(_ context.Context, itemID int64, userID string) (*models.ProxyBid, error) {
	proxy, ok := findProxy(t.st, itemID, userID)
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &proxy, nil
}

func (t *memTx) UpsertProxyBid(_ context.Context, proxy *models.ProxyBid) error {
	now := time.Now()
	if existing, ok := findProxy(t.st, proxy.ItemID, proxy.UserID); ok {
		existing.MaxBidAmount = proxy.MaxBidAmount
		existing.IsActive = proxy.IsActive
		existing.UpdatedAt = now
		t.st.proxies[existing.ID] = existing
		*proxy = existing
		return nil
	}

	t.st.nextProxyID++
	proxy.ID = t.st.nextProxyID
	proxy.CreatedAt = now
	proxy.UpdatedAt = now
	t.st.proxies[proxy.ID] = *proxy
	return nil
}

func (t *memTx) UpdateProxyBid(_ context.Context, proxy *models.ProxyBid) error {
	if proxy.CurrentAutoBidAmount.GreaterThan(proxy.MaxBidAmount) {
		return fmt.Errorf("proxy bid auto amount exceeds its ceiling")
	}
	if _, ok := t.st.proxies[proxy.ID]; !ok {
		return fmt.Errorf("proxy bid %d was not updated", proxy.ID)
	}
	proxy.UpdatedAt = time.Now()
	t.st.proxies[proxy.ID] = *proxy
	return nil
}

func (t *memTx) DeactivateProxyBids(_ context.Context, itemID int64) (int, error) {
	n := 0
	for id, proxy := range t.st.proxies {
		if proxy.ItemID == itemID && proxy.IsActive {
			proxy.IsActive = false
			proxy.UpdatedAt = time.Now()
			t.st.proxies[id] = proxy
			n++
		}
	}
	return n, nil
}
