package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/database/repositories"
	"github.com/gohye/bidhouse/bidhouse/economy/utils"
	"github.com/gohye/bidhouse/bidhouse/events"
	"github.com/gohye/bidhouse/bidhouse/logger"
	"github.com/shopspring/decimal"
)

// SetProxyBid creates or raises the caller's standing ceiling on an item and
// lets it counter the current leader right away.
func (m *Manager) SetProxyBid(ctx context.Context, itemID int64, userID string, maxBidAmount decimal.Decimal) (*models.ProxyBid, error) {
	start := time.Now()

	var (
		proxy     *models.ProxyBid
		closed    *models.AuctionItem
		rejection error
		closedAt  time.Time
	)
	txErr := m.withTx(ctx, func(ctx context.Context, tx repositories.AuctionTx) error {
		proxy, closed, rejection = nil, nil, nil

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

		if item.SellerID == userID && !m.cfg.AllowSellerBids {
			return reject(ReasonSelfBid, "You cannot bid on your own auction")
		}
		if err := validateAmount(maxBidAmount); err != nil {
			return err
		}

		floor := item.MinimumBid()
		existing, err := tx.GetProxyBid(ctx, itemID, userID)
		switch {
		case err == nil:
			if existing.CurrentAutoBidAmount.GreaterThan(floor) {
				floor = existing.CurrentAutoBidAmount
			}
		case !errors.Is(err, repositories.ErrNotFound):
			return err
		}
		if maxBidAmount.LessThan(floor) {
			return reject(ReasonProxyBelowMinimum, "Maximum bid must be at least $%s", floor.StringFixed(utils.MoneyPlaces))
		}

		p := &models.ProxyBid{
			ItemID:       itemID,
			UserID:       userID,
			MaxBidAmount: maxBidAmount,
			IsActive:     true,
		}
		if err := tx.UpsertProxyBid(ctx, p); err != nil {
			return err
		}
		proxy = p
		return nil
	})
	err := txErr
	if err == nil {
		err = rejection
	}
	logger.LogBid("set_proxy", itemID, userID, time.Since(start), err)

	if txErr == nil && closed != nil {
		m.afterClose(closed, closedAt)
	}
	if err != nil {
		return nil, m.translate("set proxy bid", err)
	}

	m.resolveProxies(ctx, itemID)
	return proxy, nil
}

// CancelProxyBid deactivates the caller's proxy. Cancelling an inactive proxy is a no-op.
func (m *Manager) CancelProxyBid(ctx context.Context, itemID int64, userID string) error {
	err := m.withTx(ctx, func(ctx context.Context, tx repositories.AuctionTx) error {
		if _, err := tx.LockItem(ctx, itemID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return reject(ReasonNotFound, "Auction %d not found", itemID)
			}
			return err
		}

		proxy, err := tx.GetProxyBid(ctx, itemID, userID)
		if errors.Is(err, repositories.ErrNotFound) {
			return reject(ReasonNotFound, "You have no auto-bid on auction %d", itemID)
		}
		if err != nil {
			return err
		}
		if !proxy.IsActive {
			return nil
		}
		proxy.IsActive = false
		return tx.UpdateProxyBid(ctx, proxy)
	})
	logger.LogBid("cancel_proxy", itemID, userID, 0, err)
	if err != nil {
		return m.translate("cancel proxy bid", err)
	}
	return nil
}

func (m *Manager) GetProxyBid(ctx context.Context, itemID int64, userID string) (*models.ProxyBid, error) {
	proxy, err := m.store.GetProxyBid(ctx, itemID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, reject(ReasonNotFound, "You have no auto-bid on auction %d", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proxy bid: %w", err)
	}
	return proxy, nil
}

type proxyStep struct {
	item models.AuctionItem
	bid  *models.Bid
}

type proxyOutcome struct {
	item           *models.AuctionItem
	steps          []proxyStep
	previousLeader string
	exhausted      *models.ProxyBid
	closed         bool
	at             time.Time
}

// resolveProxies runs proxy rounds after a commit. Each round is its own
// transaction and re-reads the item. Failures are logged: the triggering commit stands.
func (m *Manager) resolveProxies(ctx context.Context, itemID int64) {
	for round := 0; ; round++ {
		if m.cfg.MaxProxyRounds > 0 && round >= m.cfg.MaxProxyRounds {
			slog.Warn("Proxy resolution stopped at round limit",
				slog.String("type", "bid"),
				slog.Int64("item_id", itemID),
				slog.Int("rounds", round))
			return
		}

		var outcome *proxyOutcome
		err := m.withTx(ctx, func(ctx context.Context, tx repositories.AuctionTx) error {
			var err error
			outcome, err = m.proxyRound(ctx, tx, itemID)
			return err
		})
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Proxy resolution failed",
					slog.String("type", "error"),
					slog.Int64("item_id", itemID),
					slog.Int("round", round),
					slog.String("error", err.Error()))
			}
			return
		}
		if outcome == nil {
			return
		}
		if outcome.closed {
			m.afterClose(outcome.item, outcome.at)
			return
		}

		for i := range outcome.steps {
			step := outcome.steps[i]
			logger.LogBid("proxy_bid", itemID, step.bid.BidderID, 0, nil)
			m.events.Publish(events.BidPlaced(&step.item, step.bid))
		}
		if n := len(outcome.steps); n > 0 {
			last := outcome.steps[n-1].bid
			if outcome.previousLeader != "" && outcome.previousLeader != last.BidderID {
				m.notifyOutbid(outcome.item, outcome.previousLeader, last)
			}
		}
		if outcome.exhausted != nil {
			m.events.Publish(events.ProxyExhaustedEvent(outcome.item, outcome.exhausted, outcome.at))
			item, proxy := outcome.item, outcome.exhausted
			m.submit("proxy-exhausted-notice", func(ctx context.Context) error {
				return m.notifier.NotifyProxyExhausted(ctx, item, proxy)
			})
		}

		if m.cfg.ProxyMode == ProxyModeSingle {
			return
		}
	}
}

// proxyRound lets the strongest active proxy not owned by the leader challenge
// the current price. In cascade mode a challenge against a leader who holds a
// proxy of their own is settled in full; otherwise the challenger bids once.
// A nil outcome means nothing could act.
func (m *Manager) proxyRound(ctx context.Context, tx repositories.AuctionTx, itemID int64) (*proxyOutcome, error) {
	item, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	item.Activate(now)
	if !item.Open() {
		return nil, nil
	}

	if item.Expired(now) {
		if err := m.finalizeLocked(ctx, tx, item); err != nil {
			return nil, err
		}
		return &proxyOutcome{item: item, closed: true, at: now}, nil
	}

	challenger, err := tx.TopProxyBid(ctx, itemID, item.HighestBidder, item.CurrentPrice)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := &proxyOutcome{item: item, previousLeader: item.HighestBidder, at: now}
	if challenger.MaxBidAmount.LessThan(item.MinimumBid()) {
		return out, m.exhaust(ctx, tx, challenger, out)
	}

	var defender *models.ProxyBid
	if m.cfg.ProxyMode == ProxyModeCascade {
		if defender, err = m.defendingProxy(ctx, tx, item); err != nil {
			return nil, err
		}
	}
	if defender == nil {
		return out, m.autoBid(ctx, tx, item, challenger, item.MinimumBid(), now, out)
	}
	return out, m.duel(ctx, tx, item, defender, challenger, now, out)
}

// defendingProxy returns the leader's own proxy when it can still raise the price.
func (m *Manager) defendingProxy(ctx context.Context, tx repositories.AuctionTx, item *models.AuctionItem) (*models.ProxyBid, error) {
	if item.HighestBidder == "" {
		return nil, nil
	}
	proxy, err := tx.GetProxyBid(ctx, item.ID, item.HighestBidder)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !proxy.IsActive || !proxy.MaxBidAmount.GreaterThan(item.CurrentPrice) {
		return nil, nil
	}
	return proxy, nil
}

// duel settles two proxies in one step instead of trading increments. The
// winner ends one increment above the loser's ceiling, capped at its own; the
// loser's last bid sits one increment below that when the ledger allows it.
// The loser is switched off.
func (m *Manager) duel(ctx context.Context, tx repositories.AuctionTx, item *models.AuctionItem, defender, challenger *models.ProxyBid, now time.Time, out *proxyOutcome) error {
	winner, loser := challenger, defender
	if defender.Outranks(challenger) {
		winner, loser = defender, challenger
	}

	final := decimal.Min(loser.MaxBidAmount.Add(item.BidIncrement), winner.MaxBidAmount)
	last := final.Sub(item.BidIncrement)
	if !last.LessThan(item.MinimumBid()) {
		if err := m.autoBid(ctx, tx, item, loser, last, now, out); err != nil {
			return err
		}
	}
	if err := m.autoBid(ctx, tx, item, winner, final, now, out); err != nil {
		return err
	}
	return m.exhaust(ctx, tx, loser, out)
}

// autoBid commits amount for the proxy's owner and records it on the proxy.
func (m *Manager) autoBid(ctx context.Context, tx repositories.AuctionTx, item *models.AuctionItem, proxy *models.ProxyBid, amount decimal.Decimal, now time.Time, out *proxyOutcome) error {
	if amount.GreaterThan(proxy.MaxBidAmount) {
		return fmt.Errorf("auto bid %s for %s exceeds ceiling %s", amount, proxy.UserID, proxy.MaxBidAmount)
	}
	bid, err := m.commitBid(ctx, tx, item, proxy.UserID, amount, true, now)
	if err != nil {
		return err
	}
	proxy.CurrentAutoBidAmount = amount
	if err := tx.UpdateProxyBid(ctx, proxy); err != nil {
		return err
	}
	out.steps = append(out.steps, proxyStep{item: *item, bid: bid})
	return nil
}

func (m *Manager) exhaust(ctx context.Context, tx repositories.AuctionTx, proxy *models.ProxyBid, out *proxyOutcome) error {
	proxy.IsActive = false
	if err := tx.UpdateProxyBid(ctx, proxy); err != nil {
		return err
	}
	out.exhausted = proxy
	return nil
}
