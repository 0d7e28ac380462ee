package auction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/economy/utils"
)

// Notifier delivers out-of-band notices. Calls run on the side-effect queue,
// never inside a ledger transaction.
type Notifier interface {
	NotifyOutbid(ctx context.Context, item *models.AuctionItem, outbidUserID string, bid *models.Bid) error
	NotifyAuctionEnd(ctx context.Context, item *models.AuctionItem) error
	NotifyProxyExhausted(ctx context.Context, item *models.AuctionItem, proxy *models.ProxyBid) error
}

// DiscordNotifier sends notices as direct messages. Actor ids are Discord user ids.
type DiscordNotifier struct {
	rest rest.Rest
}

func NewDiscordNotifier(token string) *DiscordNotifier {
	return &DiscordNotifier{rest: rest.New(rest.NewClient(token))}
}

func (n *DiscordNotifier) NotifyOutbid(_ context.Context, item *models.AuctionItem, outbidUserID string, bid *models.Bid) error {
	embed := discord.NewEmbedBuilder().
		SetTitle("You were outbid").
		SetDescription(fmt.Sprintf("Someone bid $%s on **%s**. The next bid must be at least $%s.",
			bid.BidAmount.StringFixed(utils.MoneyPlaces), item.Title, bid.BidAmount.Add(item.BidIncrement).StringFixed(utils.MoneyPlaces))).
		SetColor(0x2b2d31).
		Build()
	return n.sendDM(outbidUserID, embed)
}

func (n *DiscordNotifier) NotifyAuctionEnd(_ context.Context, item *models.AuctionItem) error {
	sellerEmbed := discord.NewEmbedBuilder().
		SetTitle("Auction Completed").
		SetColor(0x2b2d31)
	if item.WinnerID != "" {
		sellerEmbed.SetDescription(fmt.Sprintf("Your auction for **%s** ended with a final price of $%s.",
			item.Title, item.CurrentPrice.StringFixed(utils.MoneyPlaces)))
	} else {
		sellerEmbed.SetDescription(fmt.Sprintf("Your auction for **%s** ended with no bids.", item.Title))
	}

	if err := n.sendDM(item.SellerID, sellerEmbed.Build()); err != nil {
		return err
	}

	if item.WinnerID == "" {
		return nil
	}
	winnerEmbed := discord.NewEmbedBuilder().
		SetTitle("Auction Won!").
		SetDescription(fmt.Sprintf("You won the auction for **%s** with a final price of $%s!",
			item.Title, item.CurrentPrice.StringFixed(utils.MoneyPlaces))).
		SetColor(0x2b2d31).
		Build()
	return n.sendDM(item.WinnerID, winnerEmbed)
}

func (n *DiscordNotifier) NotifyProxyExhausted(_ context.Context, item *models.AuctionItem, proxy *models.ProxyBid) error {
	embed := discord.NewEmbedBuilder().
		SetTitle("Auto-bid exhausted").
		SetDescription(fmt.Sprintf("Your maximum of $%s on **%s** can no longer cover the next bid of $%s.",
			proxy.MaxBidAmount.StringFixed(utils.MoneyPlaces), item.Title, item.MinimumBid().StringFixed(utils.MoneyPlaces))).
		SetColor(0x2b2d31).
		Build()
	return n.sendDM(proxy.UserID, embed)
}

func (n *DiscordNotifier) sendDM(userID string, embed discord.Embed) error {
	id, err := snowflake.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid discord user id %q: %w", userID, err)
	}

	dmChannel, err := n.rest.CreateDMChannel(id)
	if err != nil {
		return fmt.Errorf("failed to create DM channel with %s: %w", userID, err)
	}

	_, err = n.rest.CreateMessage(dmChannel.ID(), discord.MessageCreate{
		Embeds: []discord.Embed{embed},
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", userID, err)
	}
	return nil
}

// LogNotifier only logs. Used when no Discord token is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyOutbid(_ context.Context, item *models.AuctionItem, outbidUserID string, bid *models.Bid) error {
	slog.Info("Outbid notice",
		slog.String("type", "bid"),
		slog.Int64("item_id", item.ID),
		slog.String("user_id", outbidUserID),
		slog.String("amount", bid.BidAmount.StringFixed(utils.MoneyPlaces)))
	return nil
}

func (LogNotifier) NotifyAuctionEnd(_ context.Context, item *models.AuctionItem) error {
	slog.Info("Auction end notice",
		slog.String("type", "sched"),
		slog.Int64("item_id", item.ID),
		slog.String("seller_id", item.SellerID),
		slog.String("winner_id", item.WinnerID),
		slog.String("final_price", item.CurrentPrice.StringFixed(utils.MoneyPlaces)))
	return nil
}

func (LogNotifier) NotifyProxyExhausted(_ context.Context, item *models.AuctionItem, proxy *models.ProxyBid) error {
	slog.Info("Auto-bid exhausted notice",
		slog.String("type", "bid"),
		slog.Int64("item_id", item.ID),
		slog.String("user_id", proxy.UserID),
		slog.String("max_bid", proxy.MaxBidAmount.StringFixed(utils.MoneyPlaces)))
	return nil
}
