package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when the store could not serialize a transaction
	// against a concurrent writer. The caller may retry.
	ErrConflict = errors.New("transaction conflict")
)

// AuctionStore is the durable price ledger. Every mutation of an item, its bids
// or its proxy bids goes through WithTx.
type AuctionStore interface {
	// WithTx runs fn in one serializable transaction. A nil return commits,
	// anything else rolls back and is returned unchanged.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx AuctionTx) error) error

	CreateItem(ctx context.Context, item *models.AuctionItem) error
	GetItem(ctx context.Context, id int64) (*models.AuctionItem, error)
	ListBids(ctx context.Context, itemID int64) ([]*models.Bid, error)
	GetProxyBid(ctx context.Context, itemID int64, userID string) (*models.ProxyBid, error)

	// ExpiredItemIDs lists active or upcoming, not yet finalized items whose end
	// time is at or before now.
	ExpiredItemIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// AuctionTx is the set of operations available inside a transaction.
type AuctionTx interface {
	// LockItem loads the item and holds it exclusively until the transaction ends.
	LockItem(ctx context.Context, id int64) (*models.AuctionItem, error)
	UpdateItem(ctx context.Context, item *models.AuctionItem) error

	InsertBid(ctx context.Context, bid *models.Bid) error
	LockBid(ctx context.Context, id int64) (*models.Bid, error)
	UpdateBid(ctx context.Context, bid *models.Bid) error
	// HighestStandingBid returns the highest non-retracted bid of the item other
	// than excludeBidID, newest first on equal amounts.
	HighestStandingBid(ctx context.Context, itemID, excludeBidID int64) (*models.Bid, error)
	CountStandingBids(ctx context.Context, itemID int64) (int, error)
	// SettleBids marks every non-retracted bid won when placed by winnerID and lost otherwise.
	SettleBids(ctx context.Context, itemID int64, winnerID string) error

	// TopProxyBid returns the active proxy with the highest ceiling above the given
	// price, skipping excludeUserID. Equal ceilings go to the oldest proxy.
	TopProxyBid(ctx context.Context, itemID int64, excludeUserID string, above decimal.Decimal) (*models.ProxyBid, error)
	GetProxyBid(ctx context.Context, itemID int64, userID string) (*models.ProxyBid, error)
	UpsertProxyBid(ctx context.Context, proxy *models.ProxyBid) error
	UpdateProxyBid(ctx context.Context, proxy *models.ProxyBid) error
	DeactivateProxyBids(ctx context.Context, itemID int64) (int, error)
}
