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
)

// finalizeLocked closes a locked, expired item: status ended, the leader becomes
// the winner, bids are settled won or lost and every proxy is switched off.
func (m *Manager) finalizeLocked(ctx context.Context, tx repositories.AuctionTx, item *models.AuctionItem) error {
	item.Status = models.ItemStatusEnded
	item.IsAuctionOver = true
	if item.HighestBidder != "" {
		item.WinnerID = item.HighestBidder
		if err := tx.SettleBids(ctx, item.ID, item.WinnerID); err != nil {
			return fmt.Errorf("failed to settle bids: %w", err)
		}
	}
	if _, err := tx.DeactivateProxyBids(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to deactivate proxy bids: %w", err)
	}
	item.Version++
	return tx.UpdateItem(ctx, item)
}

// Finalize closes the item if its deadline has passed. It reports whether this
// call closed it; an item that is already over or still running is left alone.
func (m *Manager) Finalize(ctx context.Context, itemID int64) (bool, error) {
	var (
		closed   *models.AuctionItem
		closedAt time.Time
	)
	err := m.withTx(ctx, func(ctx context.Context, tx repositories.AuctionTx) error {
		closed = nil

		item, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		now := m.now()
		item.Activate(now)
		if !item.Open() {
			return nil
		}
		if !item.Expired(now) {
			return nil
		}
		if err := m.finalizeLocked(ctx, tx, item); err != nil {
			return err
		}
		closed, closedAt = item, now
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return false, ErrConflict
		}
		return false, fmt.Errorf("failed to finalize auction %d: %w", itemID, err)
	}
	if closed == nil {
		return false, nil
	}

	slog.Info("Auction finalized",
		slog.String("type", "sched"),
		slog.Int64("item_id", closed.ID),
		slog.String("winner_id", closed.WinnerID),
		slog.String("final_price", closed.CurrentPrice.StringFixed(utils.MoneyPlaces)),
		slog.Int("total_bids", closed.TotalBids))
	m.afterClose(closed, closedAt)
	return true, nil
}

// afterClose runs once per closed item, after its transaction committed.
func (m *Manager) afterClose(item *models.AuctionItem, at time.Time) {
	m.events.Publish(events.AuctionClosed(item, at))

	if item.Status == models.ItemStatusEnded {
		m.submit("auction-end-notice", func(ctx context.Context) error {
			return m.notifier.NotifyAuctionEnd(ctx, item)
		})
	}

	if m.archive == nil {
		return
	}
	m.submit("auction-archive", func(ctx context.Context) error {
		bids, err := m.store.ListBids(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("failed to load bids for archive: %w", err)
		}
		return m.archive.Archive(ctx, item, bids)
	})
}
