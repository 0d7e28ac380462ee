package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/database/repositories"
	"github.com/gohye/bidhouse/bidhouse/economy/utils"
	"github.com/gohye/bidhouse/bidhouse/events"
	"github.com/gohye/bidhouse/bidhouse/logger"
	bgutils "github.com/gohye/bidhouse/bidhouse/utils"
	"github.com/shopspring/decimal"
)

type ProxyMode string

const (
	// ProxyModeCascade keeps resolving until no active proxy can beat the price.
	ProxyModeCascade ProxyMode = "cascade"
	// ProxyModeSingle resolves one counter-bid or one exhaustion per trigger.
	ProxyModeSingle ProxyMode = "single"
)

// EventPublisher receives committed state changes in commit order per item.
type EventPublisher interface {
	Publish(env events.Envelope)
}

// Archiver stores closed auctions.
type Archiver interface {
	Archive(ctx context.Context, item *models.AuctionItem, bids []*models.Bid) error
}

// TaskSubmitter runs fire-and-forget side effects.
type TaskSubmitter interface {
	Submit(task bgutils.Task) error
}

type Config struct {
	AllowSellerBids  bool
	RetractionWindow time.Duration
	ProxyMode        ProxyMode
	MaxProxyRounds   int
}

func DefaultConfig() Config {
	return Config{
		RetractionWindow: utils.RetractionWindow,
		ProxyMode:        ProxyModeCascade,
		MaxProxyRounds:   utils.MaxProxyRounds,
	}
}

type Option func(*Manager)

func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithClock replaces time.Now for every deadline and retraction check.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithEvents(p EventPublisher) Option {
	return func(m *Manager) { m.events = p }
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archive = a }
}

func WithTasks(t TaskSubmitter) Option {
	return func(m *Manager) { m.tasks = t }
}

// Manager is the price authority. Every mutation of an item, its bids and its
// proxy bids runs in one store transaction that locks the item first.
type Manager struct {
	txm      *utils.TransactionManager
	store    repositories.AuctionStore
	cfg      Config
	now      func() time.Time
	events   EventPublisher
	notifier Notifier
	archive  Archiver
	tasks    TaskSubmitter
}

func NewManager(txm *utils.TransactionManager, opts ...Option) *Manager {
	if txm == nil {
		panic("transaction manager cannot be nil")
	}

	m := &Manager{
		txm:      txm,
		store:    txm.Store(),
		cfg:      DefaultConfig(),
		now:      time.Now,
		events:   discardEvents{},
		notifier: LogNotifier{},
		tasks:    inlineTasks{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.RetractionWindow <= 0 {
		m.cfg.RetractionWindow = utils.RetractionWindow
	}
	if m.cfg.ProxyMode == "" {
		m.cfg.ProxyMode = ProxyModeCascade
	}
	return m
}

type BidResult struct {
	Bid *models.Bid
	// Item is the item as committed by this bid, before any proxy counter-bid.
	Item *models.AuctionItem
}

// PlaceBid validates and commits one bid. A *RejectionError means nothing but a
// possible lazy finalization was written.
func (m *Manager) PlaceBid(ctx context.Context, itemID int64, bidderID string, amount decimal.Decimal) (*BidResult, error) {
	start := time.Now()

	var (
		result         *BidResult
		previousLeader string
		closed         *models.AuctionItem
		rejection      error
		closedAt       time.Time
	)
	txErr := m.withTx(ctx, func(ctx context.Context, tx repositories.AuctionTx) error {
		result, previousLeader, closed, rejection = nil, "", nil, nil

		item, err := m.lockOpenItem(ctx, tx, itemID)
		if err != nil {
			return err
		}

		now := m.now()
		if item.Expired(now) {
			if err := m.finalizeLocked(ctx, tx, item); err != nil {
				return err
			}
			closed, closedAt = item, now
			rejection = reject(ReasonAuctionEnded, "Auction has already ended")
			return nil
		}

		if item.SellerID == bidderID && !m.cfg.AllowSellerBids {
			return reject(ReasonSelfBid, "You cannot bid on your own auction")
		}
		if err := validateAmount(amount); err != nil {
			return err
		}

		minimum := item.MinimumBid()
		if amount.LessThan(minimum) {
			return reject(ReasonBelowMinimum, "Minimum bid is $%s", minimum.StringFixed(utils.MoneyPlaces))
		}
		if item.HighestBidder == bidderID && amount.Equal(minimum) {
			return reject(ReasonAlreadyHighest, "You are already the highest bidder")
		}

		previousLeader = item.HighestBidder
		bid, err := m.commitBid(ctx, tx, item, bidderID, amount, false, now)
		if err != nil {
			return err
		}
		result = &BidResult{Bid: bid, Item: item}
		return nil
	})
	err := txErr
	if err == nil {
		err = rejection
	}
	logger.LogBid("place_bid", itemID, bidderID, time.Since(start), err)

	if txErr == nil && closed != nil {
		m.afterClose(closed, closedAt)
	}
	if err != nil {
		return nil, m.translate("place bid", err)
	}

	m.events.Publish(events.BidPlaced(result.Item, result.Bid))
	m.resolveProxies(ctx, itemID)
	if previousLeader != "" && previousLeader != bidderID {
		m.notifyOutbid(result.Item, previousLeader, result.Bid)
	}
	return result, nil
}

// commitBid appends a bid at amount and moves the item's price and leader to it.
// item is updated in place.
func (m *Manager) commitBid(ctx context.Context, tx repositories.AuctionTx, item *models.AuctionItem, bidderID string, amount decimal.Decimal, auto bool, now time.Time) (*models.Bid, error) {
	bid := &models.Bid{
		ItemID:        item.ID,
		BidderID:      bidderID,
		BidAmount:     amount,
		PreviousPrice: item.CurrentPrice,
		Timestamp:     now,
		IsAutoBid:     auto,
		BidStatus:     models.BidStatusActive,
	}
	if err := tx.InsertBid(ctx, bid); err != nil {
		return nil, err
	}

	item.CurrentPrice = amount
	item.HighestBidder = bidderID
	item.TotalBids++
	item.Version++
	if err := tx.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return bid, nil
}

// lockOpenItem locks the item and rejects it unless it accepts price changes.
// The deadline is left to the caller.
func (m *Manager) lockOpenItem(ctx context.Context, tx repositories.AuctionTx, itemID int64) (*models.AuctionItem, error) {
	item, err := tx.LockItem(ctx, itemID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, reject(ReasonNotFound, "Auction %d not found", itemID)
	}
	if err != nil {
		return nil, err
	}
	if item.IsAuctionOver || item.Status.Terminal() {
		return nil, reject(ReasonAuctionEnded, "Auction has already ended")
	}
	item.Activate(m.now())
	if item.Status != models.ItemStatusActive {
		return nil, reject(ReasonNotActive, "Auction is not active")
	}
	return item, nil
}

// CreateAuction lists a new item at its starting price. A zero increment falls
// back to the default one.
func (m *Manager) CreateAuction(ctx context.Context, item *models.AuctionItem) (*models.AuctionItem, error) {
	if item.SellerID == "" {
		return nil, reject(ReasonInvalidListing, "Auction needs a seller")
	}
	if item.BidIncrement.IsZero() {
		item.BidIncrement = decimal.NewFromFloat(utils.DefaultBidIncrement)
	}
	if err := validateAmount(item.StartingPrice); err != nil {
		return nil, reject(ReasonInvalidListing, "Starting price: %s", err.Error())
	}
	if err := validateAmount(item.BidIncrement); err != nil {
		return nil, reject(ReasonInvalidListing, "Bid increment: %s", err.Error())
	}
	if item.StartTime.IsZero() {
		item.StartTime = m.now()
	}
	if !item.EndTime.After(item.StartTime) {
		return nil, reject(ReasonInvalidListing, "Auction must end after it starts")
	}
	if !item.EndTime.After(m.now()) {
		return nil, reject(ReasonInvalidListing, "Auction end time is already in the past")
	}

	item.ID = 0
	item.CurrentPrice = item.StartingPrice
	item.HighestBidder = ""
	item.TotalBids = 0
	item.WinnerID = ""
	item.IsAuctionOver = false
	item.Version = 0
	if item.StartTime.After(m.now()) {
		item.Status = models.ItemStatusUpcoming
	} else {
		item.Status = models.ItemStatusActive
	}

	if err := m.store.CreateItem(ctx, item); err != nil {
		return nil, m.translate("create auction", err)
	}
	logger.LogBid("create_auction", item.ID, item.SellerID, 0, nil)
	return item, nil
}

func (m *Manager) GetItem(ctx context.Context, itemID int64) (*models.AuctionItem, error) {
	item, err := m.store.GetItem(ctx, itemID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, reject(ReasonNotFound, "Auction %d not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	// Upcoming items are only opened in storage by the next write.
	item.Activate(m.now())
	return item, nil
}

// ListBids returns the item's non-retracted bids, highest first.
func (m *Manager) ListBids(ctx context.Context, itemID int64) ([]*models.Bid, error) {
	if _, err := m.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	bids, err := m.store.ListBids(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return bids, nil
}

// CancelAuction lets the seller withdraw an active auction nobody has bid on.
func (m *Manager) CancelAuction(ctx context.Context, itemID int64, sellerID string) (*models.AuctionItem, error) {
	var (
		cancelled *models.AuctionItem
		closed    *models.AuctionItem
		rejection error
		closedAt  time.Time
	)
	txErr := m.withTx(ctx, func(ctx context.Context, tx repositories.AuctionTx) error {
		cancelled, closed, rejection = nil, nil, nil

		item, err := m.lockOpenItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item.SellerID != sellerID {
			return reject(ReasonNotSeller, "Only the seller can cancel this auction")
		}

		now := m.now()
		if item.Expired(now) {
			if err := m.finalizeLocked(ctx, tx, item); err != nil {
				return err
			}
			closed, closedAt = item, now
			rejection = reject(ReasonAuctionEnded, "Auction has already ended")
			return nil
		}
		if item.TotalBids > 0 {
			return reject(ReasonHasBids, "Auction already has bids and cannot be cancelled")
		}

		item.Status = models.ItemStatusCancelled
		item.IsAuctionOver = true
		item.Version++
		if _, err := tx.DeactivateProxyBids(ctx, item.ID); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		cancelled, closed, closedAt = item, item, now
		return nil
	})
	err := txErr
	if err == nil {
		err = rejection
	}
	logger.LogBid("cancel_auction", itemID, sellerID, 0, err)

	if txErr == nil && closed != nil {
		m.afterClose(closed, closedAt)
	}
	if err != nil {
		return nil, m.translate("cancel auction", err)
	}
	return cancelled, nil
}

// AmountFromFloat converts a client-supplied amount, rejecting NaN and infinities.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, reject(ReasonInvalidAmount, "Bid amount must be a finite number")
	}
	return decimal.NewFromFloat(f), nil
}

// ParseAmount parses a decimal amount such as "110" or "110.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, reject(ReasonInvalidAmount, "Bid amount %q is not a number", s)
	}
	return amount, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return reject(ReasonInvalidAmount, "Bid amount must be positive")
	}
	if !amount.Equal(amount.Truncate(utils.MoneyPlaces)) {
		return reject(ReasonInvalidAmount, "Bid amount has more than %d decimal places", utils.MoneyPlaces)
	}
	return nil
}

func (m *Manager) withTx(ctx context.Context, fn func(context.Context, repositories.AuctionTx) error) error {
	return m.txm.WithTransaction(ctx, fn)
}

// translate keeps rejections as they are, turns exhausted conflicts into
// ErrConflict and wraps everything else as an infrastructure fault.
func (m *Manager) translate(op string, err error) error {
	if _, ok := IsRejection(err); ok {
		return err
	}
	if errors.Is(err, repositories.ErrConflict) {
		return ErrConflict
	}
	slog.Error("Ledger operation failed",
		slog.String("type", "error"),
		slog.String("op", op),
		slog.String("error", err.Error()))
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (m *Manager) notifyOutbid(item *models.AuctionItem, outbidUserID string, bid *models.Bid) {
	m.submit("outbid-notice", func(ctx context.Context) error {
		return m.notifier.NotifyOutbid(ctx, item, outbidUserID, bid)
	})
}

func (m *Manager) submit(name string, fn func(ctx context.Context) error) {
	if err := m.tasks.Submit(bgutils.Task{Name: name, Run: fn}); err != nil {
		slog.Warn("Side effect not scheduled",
			slog.String("type", "sys"),
			slog.String("task", name),
			slog.String("error", err.Error()))
	}
}

type discardEvents struct{}

func (discardEvents) Publish(events.Envelope) {}

// inlineTasks runs side effects on the caller's goroutine, after commit.
type inlineTasks struct{}

func (inlineTasks) Submit(task bgutils.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), utils.PublishTimeout)
	defer cancel()
	if runErr := task.Run(ctx); runErr != nil {
		slog.Warn("Side-effect task failed",
			slog.String("type", "sys"),
			slog.String("task", task.Name),
			slog.String("error", runErr.Error()))
	}
	return nil
}
