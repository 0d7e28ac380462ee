package bidhouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/economy/auction"
	econutils "github.com/gohye/bidhouse/bidhouse/economy/utils"
	"github.com/shopspring/decimal"
)

type demoStep struct {
	actor  string
	action string
	amount string
}

var demoScript = []demoStep{
	{actor: "bob", action: "bid", amount: "105"},
	{actor: "bob", action: "bid", amount: "110"},
	{actor: "carol", action: "proxy", amount: "155"},
	{actor: "bob", action: "bid", amount: "130"},
	{actor: "bob", action: "bid", amount: "150"},
	{actor: "dave", action: "bid", amount: "160"},
	{actor: "dave", action: "retract"},
}

// RunDemo lists one item and plays a short bidding script against it. The
// item closes through the regular sweep once its duration passes.
func (h *House) RunDemo(ctx context.Context, duration time.Duration) (*models.AuctionItem, error) {
	item, err := h.Manager.CreateAuction(ctx, &models.AuctionItem{
		SellerID:      "demo-seller",
		Title:         "Demo Lot: Pocket Watch",
		StartingPrice: decimal.NewFromInt(100),
		BidIncrement:  decimal.NewFromInt(10),
		EndTime:       time.Now().Add(duration),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list demo item: %w", err)
	}

	lastBid := map[string]int64{}
	for _, step := range demoScript {
		var err error
		switch step.action {
		case "bid":
			var res *auction.BidResult
			res, err = h.Manager.PlaceBid(ctx, item.ID, step.actor, decimal.RequireFromString(step.amount))
			if err == nil {
				lastBid[step.actor] = res.Bid.ID
			}
		case "proxy":
			_, err = h.Manager.SetProxyBid(ctx, item.ID, step.actor, decimal.RequireFromString(step.amount))
		case "retract":
			_, err = h.Manager.RetractBid(ctx, lastBid[step.actor], step.actor, "demo retraction")
		}
		if err != nil {
			if _, ok := auction.IsRejection(err); !ok {
				return nil, err
			}
		}

		current, gerr := h.Manager.GetItem(ctx, item.ID)
		if gerr != nil {
			return nil, gerr
		}
		slog.Info("Demo step",
			slog.String("type", "bid"),
			slog.String("actor", step.actor),
			slog.String("action", step.action),
			slog.String("amount", step.amount),
			slog.String("reason", string(auction.ReasonOf(err))),
			slog.String("price", current.CurrentPrice.StringFixed(econutils.MoneyPlaces)),
			slog.String("leader", current.HighestBidder))
	}

	return h.Manager.GetItem(ctx, item.ID)
}
