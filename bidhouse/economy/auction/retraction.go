package auction

import (
	"context"
	"errors"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/database/repositories"
	"github.com/gohye/bidhouse/bidhouse/events"
	"github.com/gohye/bidhouse/bidhouse/logger"
)

// RetractBid withdraws the requester's leading bid and rebuilds the item's price
// and leader from the bids that remain. The requester's proxy on the item is
// deactivated with it.
func (m *Manager) RetractBid(ctx context.Context, bidID int64, requesterID, reason string) (*models.AuctionItem, error) {
	start := time.Now()

	var (
		updated   *models.AuctionItem
		retracted *models.Bid
		closed    *models.AuctionItem
		rejection error
		closedAt  time.Time
		itemID    int64
	)
	txErr := m.withTx(ctx, func(ctx context.Context, tx repositories.AuctionTx) error {
		updated, retracted, closed, rejection = nil, nil, nil, nil

		bid, err := tx.LockBid(ctx, bidID)
		if errors.Is(err, repositories.ErrNotFound) {
			return reject(ReasonNotFound, "Bid %d not found", bidID)
		}
		if err != nil {
			return err
		}
		itemID = bid.ItemID
		if bid.BidderID != requesterID {
			return reject(ReasonNotOwner, "You can only retract your own bids")
		}
		if bid.IsRetracted {
			return reject(ReasonAlreadyRetracted, "Bid has already been retracted")
		}

		item, err := m.lockOpenItem(ctx, tx, bid.ItemID)
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

		if item.HighestBidder != requesterID {
			return reject(ReasonNotHighest, "Only the current highest bid can be retracted")
		}
		leading, err := tx.HighestStandingBid(ctx, item.ID, 0)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		if leading == nil || leading.ID != bid.ID {
			return reject(ReasonNotHighest, "Only the current highest bid can be retracted")
		}
		if now.Sub(bid.Timestamp) > m.cfg.RetractionWindow {
			return reject(ReasonRetractionExpired, "Bids can only be retracted within %s of placing them", m.cfg.RetractionWindow)
		}

		bid.IsRetracted = true
		bid.BidStatus = models.BidStatusRetracted
		bid.RetractionReason = reason
		bid.RetractedAt = now
		if err := tx.UpdateBid(ctx, bid); err != nil {
			return err
		}

		next, err := tx.HighestStandingBid(ctx, item.ID, bid.ID)
		switch {
		case err == nil:
			count, err := tx.CountStandingBids(ctx, item.ID)
			if err != nil {
				return err
			}
			item.CurrentPrice = next.BidAmount
			item.HighestBidder = next.BidderID
			item.TotalBids = count
		case errors.Is(err, repositories.ErrNotFound):
			item.CurrentPrice = item.StartingPrice
			item.HighestBidder = ""
			item.TotalBids = 0
		default:
			return err
		}
		item.Version++
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}

		proxy, err := tx.GetProxyBid(ctx, item.ID, requesterID)
		switch {
		case err == nil && proxy.IsActive:
			proxy.IsActive = false
			if err := tx.UpdateProxyBid(ctx, proxy); err != nil {
				return err
			}
		case err != nil && !errors.Is(err, repositories.ErrNotFound):
			return err
		}

		updated, retracted = item, bid
		return nil
	})
	err := txErr
	if err == nil {
		err = rejection
	}
	logger.LogBid("retract_bid", itemID, requesterID, time.Since(start), err)

	if txErr == nil && closed != nil {
		m.afterClose(closed, closedAt)
	}
	if err != nil {
		return nil, m.translate("retract bid", err)
	}

	m.events.Publish(events.BidRetracted(updated, retracted))
	m.resolveProxies(ctx, updated.ID)
	return updated, nil
}
