package services

import (
	"context"
	"fmt"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/models"
	"github.com/gohye/bidhouse/bidhouse/economy/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ArchivedBid struct {
	BidID     int64     `bson:"bid_id"`
	BidderID  string    `bson:"bidder_id"`
	Amount    string    `bson:"amount"`
	Previous  string    `bson:"previous_price"`
	IsAutoBid bool      `bson:"is_auto_bid"`
	Status    string    `bson:"status"`
	Timestamp time.Time `bson:"timestamp"`
}

// ArchivedAuction is the document written once an auction is closed.
type ArchivedAuction struct {
	ItemID        int64         `bson:"_id"`
	SellerID      string        `bson:"seller_id"`
	Title         string        `bson:"title"`
	Status        string        `bson:"status"`
	StartingPrice string        `bson:"starting_price"`
	FinalPrice    string        `bson:"final_price"`
	WinnerID      string        `bson:"winner_id,omitempty"`
	TotalBids     int           `bson:"total_bids"`
	EndTime       time.Time     `bson:"end_time"`
	ArchivedAt    time.Time     `bson:"archived_at"`
	Bids          []ArchivedBid `bson:"bids"`
}

func NewArchivedAuction(item *models.AuctionItem, bids []*models.Bid, at time.Time) ArchivedAuction {
	doc := ArchivedAuction{
		ItemID:        item.ID,
		SellerID:      item.SellerID,
		Title:         item.Title,
		Status:        string(item.Status),
		StartingPrice: item.StartingPrice.StringFixed(utils.MoneyPlaces),
		FinalPrice:    item.CurrentPrice.StringFixed(utils.MoneyPlaces),
		WinnerID:      item.WinnerID,
		TotalBids:     item.TotalBids,
		EndTime:       item.EndTime,
		ArchivedAt:    at,
		Bids:          make([]ArchivedBid, 0, len(bids)),
	}
	for _, bid := range bids {
		doc.Bids = append(doc.Bids, ArchivedBid{
			BidID:     bid.ID,
			BidderID:  bid.BidderID,
			Amount:    bid.BidAmount.StringFixed(utils.MoneyPlaces),
			Previous:  bid.PreviousPrice.StringFixed(utils.MoneyPlaces),
			IsAutoBid: bid.IsAutoBid,
			Status:    string(bid.BidStatus),
			Timestamp: bid.Timestamp,
		})
	}
	return doc
}

// MongoArchive keeps one document per closed auction, keyed by item id, so a
// repeated archive of the same item overwrites instead of duplicating.
type MongoArchive struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoArchive(ctx context.Context, uri, database, collection string) (*MongoArchive, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return &MongoArchive{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

func (a *MongoArchive) Archive(ctx context.Context, item *models.AuctionItem, bids []*models.Bid) error {
	doc := NewArchivedAuction(item, bids, time.Now().UTC())
	_, err := a.coll.ReplaceOne(ctx, bson.M{"_id": doc.ItemID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to archive auction %d: %w", item.ID, err)
	}
	return nil
}

func (a *MongoArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
