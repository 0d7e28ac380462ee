package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const defaultTxTimeout = 30 * time.Second

// PgStore is the Postgres-backed AuctionStore. Transactions run at SERIALIZABLE
// and lock the item row, so writers to one item are linearized by the database.
type PgStore struct {
	db        *bun.DB
	txTimeout time.Duration
}

func NewPgStore(db *bun.DB, txTimeout time.Duration) *PgStore {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &PgStore{db: db, txTimeout: txTimeout}
}

func (s *PgStore) DB() *bun.DB {
	return s.db
}

func (s *PgStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx AuctionTx) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(timeoutCtx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify(err, "start transaction")
	}
	defer tx.Rollback()

	if err := fn(timeoutCtx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err, "commit transaction")
	}
	return nil
}

func (s *PgStore) CreateItem(ctx context.Context, item *models.AuctionItem) error {
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

	if _, err := s.db.NewInsert().Model(item).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create auction item: %w", err)
	}
	return nil
}

func (s *PgStore) GetItem(ctx context.Context, id int64) (*models.AuctionItem, error) {
	item := new(models.AuctionItem)
	err := s.db.NewSelect().
		Model(item).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "get auction item")
	}
	return item, nil
}

func (s *PgStore) ListBids(ctx context.Context, itemID int64) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := s.db.NewSelect().
		Model(&bids).
		Where("item_id = ?", itemID).
		Where("is_retracted = FALSE").
		OrderExpr("bid_amount DESC, timestamp DESC").
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "list bids")
	}
	return bids, nil
}

func (s *PgStore) GetProxyBid(ctx context.Context, itemID int64, userID string) (*models.ProxyBid, error) {
	proxy := new(models.ProxyBid)
	err := s.db.NewSelect().
		Model(proxy).
		Where("item_id = ? AND user_id = ?", itemID, userID).
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "get proxy bid")
	}
	return proxy, nil
}

func (s *PgStore) ExpiredItemIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	q := s.db.NewSelect().
		Model((*models.AuctionItem)(nil)).
		Column("id").
		Where("status IN (?)", bun.In([]models.ItemStatus{models.ItemStatusActive, models.ItemStatusUpcoming})).
		Where("is_auction_over = FALSE").
		Where("end_time <= ?", now).
		Order("end_time ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, classify(err, "get expired auction items")
	}
	return ids, nil
}

type pgTx struct {
	tx bun.Tx
}

func (t *pgTx) LockItem(ctx context.Context, id int64) (*models.AuctionItem, error) {
	item := new(models.AuctionItem)
	err := t.tx.NewSelect().
		Model(item).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "get auction item for update")
	}
	return item, nil
}

func (t *pgTx) UpdateItem(ctx context.Context, item *models.AuctionItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	item.UpdatedAt = time.Now()

	result, err := t.tx.NewUpdate().
		Model(item).
		Column("current_price", "highest_bidder_id", "total_bids", "status",
			"is_auction_over", "winner_id", "version", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return classify(err, "update auction item")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("auction item %d was not updated", item.ID)
	}
	return nil
}

func (t *pgTx) InsertBid(ctx context.Context, bid *models.Bid) error {
	if !bid.BidStatus.Valid() {
		return fmt.Errorf("bid has unknown status %q", bid.BidStatus)
	}
	bid.CreatedAt = time.Now()
	if _, err := t.tx.NewInsert().Model(bid).Exec(ctx); err != nil {
		return classify(err, "create bid")
	}
	return nil
}

func (t *pgTx) LockBid(ctx context.Context, id int64) (*models.Bid, error) {
	bid := new(models.Bid)
	err := t.tx.NewSelect().
		Model(bid).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "get bid for update")
	}
	return bid, nil
}

func (t *pgTx) UpdateBid(ctx context.Context, bid *models.Bid) error {
	if !bid.BidStatus.Valid() {
		return fmt.Errorf("bid %d has unknown status %q", bid.ID, bid.BidStatus)
	}
	_, err := t.tx.NewUpdate().
		Model(bid).
		Column("bid_status", "is_retracted", "retraction_reason", "retracted_at").
		WherePK().
		Exec(ctx)
	return classify(err, "update bid")
}

func (t *pgTx) HighestStandingBid(ctx context.Context, itemID, excludeBidID int64) (*models.Bid, error) {
	bid := new(models.Bid)
	err := t.tx.NewSelect().
		Model(bid).
		Where("item_id = ?", itemID).
		Where("is_retracted = FALSE").
		Where("id != ?", excludeBidID).
		OrderExpr("bid_amount DESC, timestamp DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "get highest standing bid")
	}
	return bid, nil
}

func (t *pgTx) CountStandingBids(ctx context.Context, itemID int64) (int, error) {
	count, err := t.tx.NewSelect().
		Model((*models.Bid)(nil)).
		Where("item_id = ?", itemID).
		Where("is_retracted = FALSE").
		Count(ctx)
	if err != nil {
		return 0, classify(err, "count standing bids")
	}
	return count, nil
}

func (t *pgTx) SettleBids(ctx context.Context, itemID int64, winnerID string) error {
	_, err := t.tx.NewUpdate().
		Model((*models.Bid)(nil)).
		Set("bid_status = ?", models.BidStatusWon).
		Where("item_id = ?", itemID).
		Where("is_retracted = FALSE").
		Where("bidder_id = ?", winnerID).
		Exec(ctx)
	if err != nil {
		return classify(err, "mark winning bids")
	}

	_, err = t.tx.NewUpdate().
		Model((*models.Bid)(nil)).
		Set("bid_status = ?", models.BidStatusLost).
		Where("item_id = ?", itemID).
		Where("is_retracted = FALSE").
		Where("bidder_id != ?", winnerID).
		Exec(ctx)
	return classify(err, "mark losing bids")
}

func (t *pgTx) TopProxyBid(ctx context.Context, itemID int64, excludeUserID string, above decimal.Decimal) (*models.ProxyBid, error) {
	proxy := new(models.ProxyBid)
	err := t.tx.NewSelect().
		Model(proxy).
		Where("item_id = ?", itemID).
		Where("is_active = TRUE").
		Where("user_id != ?", excludeUserID).
		Where("max_bid_amount > ?", above).
		OrderExpr("max_bid_amount DESC, created_at ASC, id ASC").
		Limit(1).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "get top proxy bid")
	}
	return proxy, nil
}

func (t *pgTx) GetProxyBid(ctx context.Context, itemID int64, userID string) (*models.ProxyBid, error) {
	proxy := new(models.ProxyBid)
	err := t.tx.NewSelect().
		Model(proxy).
		Where("item_id = ? AND user_id = ?", itemID, userID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "get proxy bid")
	}
	return proxy, nil
}

func (t *pgTx) UpsertProxyBid(ctx context.Context, proxy *models.ProxyBid) error {
	now := time.Now()
	proxy.CreatedAt = now
	proxy.UpdatedAt = now

	_, err := t.tx.NewInsert().
		Model(proxy).
		On("CONFLICT (item_id, user_id) DO UPDATE").
		Set("max_bid_amount = EXCLUDED.max_bid_amount").
		Set("is_active = EXCLUDED.is_active").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	return classify(err, "upsert proxy bid")
}

func (t *pgTx) UpdateProxyBid(ctx context.Context, proxy *models.ProxyBid) error {
	if proxy.CurrentAutoBidAmount.GreaterThan(proxy.MaxBidAmount) {
		return errors.New("proxy bid auto amount exceeds its ceiling")
	}
	proxy.UpdatedAt = time.Now()

	_, err := t.tx.NewUpdate().
		Model(proxy).
		Column("max_bid_amount", "current_auto_bid_amount", "is_active", "updated_at").
		WherePK().
		Exec(ctx)
	return classify(err, "update proxy bid")
}

func (t *pgTx) DeactivateProxyBids(ctx context.Context, itemID int64) (int, error) {
	result, err := t.tx.NewUpdate().
		Model((*models.ProxyBid)(nil)).
		Set("is_active = FALSE").
		Set("updated_at = ?", time.Now()).
		Where("item_id = ?", itemID).
		Where("is_active = TRUE").
		Exec(ctx)
	if err != nil {
		return 0, classify(err, "deactivate proxy bids")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}
