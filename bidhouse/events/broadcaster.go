package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gohye/bidhouse/bidhouse/economy/utils"
	"github.com/gohye/bidhouse/bidhouse/logger"
	bgutils "github.com/gohye/bidhouse/bidhouse/utils"
	lru "github.com/hashicorp/golang-lru"
)

const versionCacheSize = 4096

// UsernameResolver fills bidderUsername. An empty result leaves the field out.
type UsernameResolver interface {
	Username(ctx context.Context, userID string) string
}

type BroadcasterConfig struct {
	Prefix         string
	Lanes          int
	LaneBuffer     int
	PublishTimeout time.Duration
}

// Broadcaster publishes committed item changes to the item topic and a summary
// to the global topic. Events of one item always go through the same lane, and a
// lane never publishes an event older than one it already published for that item.
type Broadcaster struct {
	channel Channel
	codec   Codec
	users   UsernameResolver
	cfg     BroadcasterConfig
	lanes   []*lane

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	published atomic.Int64
	stale     atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

type lane struct {
	events chan Envelope
	// item id -> highest published version
	versions *lru.Cache
}

type BroadcasterStats struct {
	Published int64
	Stale     int64
	Dropped   int64
	Failed    int64
}

func NewBroadcaster(bpm *bgutils.BackgroundProcessManager, channel Channel, codec Codec, users UsernameResolver, cfg BroadcasterConfig) (*Broadcaster, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "auction"
	}
	if cfg.Lanes <= 0 {
		cfg.Lanes = utils.EventLanes
	}
	if cfg.LaneBuffer <= 0 {
		cfg.LaneBuffer = utils.EventLaneBuffer
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = utils.PublishTimeout
	}

	b := &Broadcaster{
		channel: channel,
		codec:   codec,
		users:   users,
		cfg:     cfg,
		lanes:   make([]*lane, cfg.Lanes),
	}
	for i := range b.lanes {
		versions, err := lru.New(versionCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create version cache: %w", err)
		}
		l := &lane{events: make(chan Envelope, cfg.LaneBuffer), versions: versions}
		b.lanes[i] = l

		b.wg.Add(1)
		bpm.StartProcess(fmt.Sprintf("event-lane-%d", i), "ordered event publisher", func(ctx context.Context) {
			b.runLane(ctx, l)
		})
	}
	return b, nil
}

func (b *Broadcaster) ItemTopic(itemID int64) string {
	return fmt.Sprintf("%s.item.%d", b.cfg.Prefix, itemID)
}

func (b *Broadcaster) GlobalTopic() string {
	return b.cfg.Prefix + ".global"
}

// Publish hands env to its item's lane without blocking. Callers publish only
// after the producing transaction committed.
func (b *Broadcaster) Publish(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return
	}

	l := b.lanes[laneIndex(env.ItemID, len(b.lanes))]
	select {
	case l.events <- env:
	default:
		b.dropped.Add(1)
		slog.Warn("Event lane full, dropping event",
			slog.String("type", "event"),
			slog.Int64("item_id", env.ItemID),
			slog.String("event", string(env.Type)))
	}
}

// Close stops accepting events and waits until queued ones are published or ctx ends.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for _, l := range b.lanes {
			close(l.events)
		}
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if cerr := b.channel.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (b *Broadcaster) Stats() BroadcasterStats {
	return BroadcasterStats{
		Published: b.published.Load(),
		Stale:     b.stale.Load(),
		Dropped:   b.dropped.Load(),
		Failed:    b.failed.Load(),
	}
}

func laneIndex(itemID int64, lanes int) int {
	idx := itemID % int64(lanes)
	if idx < 0 {
		idx = -idx
	}
	return int(idx)
}

func (b *Broadcaster) runLane(ctx context.Context, l *lane) {
	defer b.wg.Done()
	for {
		select {
		case env, ok := <-l.events:
			if !ok {
				return
			}
			b.deliver(ctx, l, env)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broadcaster) deliver(ctx context.Context, l *lane, env Envelope) {
	if last, ok := l.versions.Get(env.ItemID); ok && env.Version < last.(int64) {
		b.stale.Add(1)
		slog.Debug("Skipping out-of-order event",
			slog.String("type", "event"),
			slog.Int64("item_id", env.ItemID),
			slog.Int64("version", env.Version),
			slog.Int64("published_version", last.(int64)))
		return
	}
	l.versions.Add(env.ItemID, env.Version)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.PublishTimeout)
	defer cancel()

	if env.Bid != nil && env.Bid.BidderUsername == "" && env.Bid.BidderID != "" && b.users != nil {
		env.Bid.BidderUsername = b.users.Username(pubCtx, env.Bid.BidderID)
	}

	b.send(pubCtx, b.ItemTopic(env.ItemID), env)

	if env.Summary != nil {
		summary := Envelope{
			EventID:    env.EventID,
			Type:       env.Type,
			ItemID:     env.ItemID,
			Version:    env.Version,
			OccurredAt: env.OccurredAt,
			Summary:    env.Summary,
		}
		b.send(pubCtx, b.GlobalTopic(), summary)
	}
}

func (b *Broadcaster) send(ctx context.Context, topic string, env Envelope) {
	payload, err := b.codec.Marshal(env)
	if err == nil {
		err = b.channel.Publish(ctx, topic, payload)
	}
	if err != nil {
		b.failed.Add(1)
		logger.LogPublish(topic, env.ItemID, string(env.Type), err)
		return
	}
	b.published.Add(1)
}
