package events

import (
	"context"
	"testing"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/utils"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

type staticUsers map[string]string

func (s staticUsers) Username(_ context.Context, id string) string { return s[id] }

func testItem(version int64, price string, bidder string, bids int) *models.AuctionItem {
	return &models.AuctionItem{
		ID:            7,
		SellerID:      "seller",
		StartingPrice: decimal.RequireFromString("100"),
		CurrentPrice:  decimal.RequireFromString(price),
		BidIncrement:  decimal.RequireFromString("10"),
		Status:        models.ItemStatusActive,
		HighestBidder: bidder,
		TotalBids:     bids,
		Version:       version,
	}
}

func testBid(id int64, amount, previous string, bidder string) *models.Bid {
	return &models.Bid{
		ID:            id,
		ItemID:        7,
		BidderID:      bidder,
		BidAmount:     decimal.RequireFromString(amount),
		PreviousPrice: decimal.RequireFromString(previous),
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		BidStatus:     models.BidStatusActive,
	}
}

func newTestBroadcaster(t *testing.T, codec Codec) (*Broadcaster, *LogChannel) {
	t.Helper()
	bpm := utils.NewBackgroundProcessManager()
	t.Cleanup(func() { bpm.Shutdown(time.Second) })

	ch := NewLogChannel(true)
	b, err := NewBroadcaster(bpm, ch, codec, staticUsers{"bob": "Bob"}, BroadcasterConfig{Prefix: "test", Lanes: 2})
	assert.NoError(t, err)
	return b, ch
}

func TestBroadcasterPublishesItemAndGlobalStreams(t *testing.T) {
	b, ch := newTestBroadcaster(t, JSONCodec{})

	b.Publish(BidPlaced(testItem(1, "110", "bob", 1), testBid(1, "110", "100", "bob")))
	assert.NoError(t, b.Close(context.Background()))

	msgs := ch.Messages()
	assert.Equal(t, 2, len(msgs))
	check.Equal(t, "test.item.7", msgs[0].Topic)
	check.Equal(t, "test.global", msgs[1].Topic)

	var itemEnv Envelope
	assert.NoError(t, JSONCodec{}.Unmarshal(msgs[0].Payload, &itemEnv))
	check.Equal(t, TypeBidPlaced, itemEnv.Type)
	assert.NotNil(t, itemEnv.Bid)
	check.Equal(t, "110.00", itemEnv.Bid.NewPrice)
	check.Equal(t, "100.00", itemEnv.Bid.PreviousPrice)
	check.Equal(t, "Bob", itemEnv.Bid.BidderUsername)
	check.Equal(t, "10.00", itemEnv.Bid.BidIncrement)

	var globalEnv Envelope
	assert.NoError(t, JSONCodec{}.Unmarshal(msgs[1].Payload, &globalEnv))
	check.True(t, globalEnv.Bid == nil)
	assert.NotNil(t, globalEnv.Summary)
	check.Equal(t, 1, globalEnv.Summary.TotalBids)
	check.Equal(t, itemEnv.EventID, globalEnv.EventID)
}

func TestBroadcasterDropsEventsOlderThanPublished(t *testing.T) {
	b, ch := newTestBroadcaster(t, JSONCodec{})

	b.Publish(BidPlaced(testItem(1, "110", "bob", 1), testBid(1, "110", "100", "bob")))
	b.Publish(BidPlaced(testItem(3, "130", "bob", 3), testBid(3, "130", "120", "bob")))
	b.Publish(BidPlaced(testItem(2, "120", "carol", 2), testBid(2, "120", "110", "carol")))
	assert.NoError(t, b.Close(context.Background()))

	var versions []int64
	for _, msg := range ch.Messages() {
		if msg.Topic != "test.item.7" {
			continue
		}
		var env Envelope
		assert.NoError(t, JSONCodec{}.Unmarshal(msg.Payload, &env))
		versions = append(versions, env.Version)
	}
	check.Equal(t, []int64{1, 3}, versions)
	check.Equal(t, int64(1), b.Stats().Stale)
}

func TestBroadcasterSkipsSummaryForProxyExhausted(t *testing.T) {
	b, ch := newTestBroadcaster(t, JSONCodec{})

	proxy := &models.ProxyBid{ItemID: 7, UserID: "carol", MaxBidAmount: decimal.RequireFromString("150")}
	b.Publish(ProxyExhaustedEvent(testItem(4, "150", "bob", 4), proxy, time.Now()))
	assert.NoError(t, b.Close(context.Background()))

	msgs := ch.Messages()
	assert.Equal(t, 1, len(msgs))
	check.Equal(t, "test.item.7", msgs[0].Topic)
}

func TestBroadcasterRejectsAfterClose(t *testing.T) {
	b, ch := newTestBroadcaster(t, JSONCodec{})
	assert.NoError(t, b.Close(context.Background()))

	b.Publish(BidPlaced(testItem(1, "110", "bob", 1), testBid(1, "110", "100", "bob")))
	check.Equal(t, 0, len(ch.Messages()))
	check.Equal(t, int64(1), b.Stats().Dropped)
}

func TestCBORCodecCarriesEnvelope(t *testing.T) {
	codec, err := NewCodec("cbor")
	assert.NoError(t, err)
	check.Equal(t, "cbor", codec.Name())

	item := testItem(5, "150", "", 0)
	item.Status = models.ItemStatusEnded
	ended := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	env := AuctionClosed(item, ended)

	payload, err := codec.Marshal(env)
	assert.NoError(t, err)

	var decoded Envelope
	assert.NoError(t, codec.Unmarshal(payload, &decoded))
	check.Equal(t, TypeAuctionEnded, decoded.Type)
	check.Equal(t, int64(5), decoded.Version)
	assert.NotNil(t, decoded.Ended)
	check.Equal(t, "150.00", decoded.Ended.FinalPrice)
	check.True(t, ended.Equal(decoded.Ended.EndedAt))
	check.Equal(t, "ended", decoded.Ended.Status)
}

func TestAuctionClosedMarksCancellation(t *testing.T) {
	item := testItem(2, "100", "", 0)
	item.Status = models.ItemStatusCancelled
	check.Equal(t, TypeAuctionCancelled, AuctionClosed(item, time.Now()).Type)

	_, err := NewCodec("xml")
	check.Error(t, err)
}
