package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gohye/bidhouse/bidhouse/economy/utils"
	"github.com/gohye/bidhouse/bidhouse/logger"
	bgutils "github.com/gohye/bidhouse/bidhouse/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const sweepProcessName = "auction-expiry-sweep"

// AuctionScheduler finalizes auctions whose deadline passed without waiting for
// bid traffic. It runs as a supervised process; Sweep can also be called directly.
type AuctionScheduler struct {
	manager     *Manager
	bpm         *bgutils.BackgroundProcessManager
	interval    time.Duration
	concurrency int64
	batchSize   int
	itemTimeout time.Duration
}

type SweepStats struct {
	Scanned   int
	Finalized int
	Skipped   int
	Failed    int
}

func NewAuctionScheduler(manager *Manager, bpm *bgutils.BackgroundProcessManager, interval time.Duration, concurrency int) *AuctionScheduler {
	if interval <= 0 {
		interval = utils.SweepInterval
	}
	if concurrency <= 0 {
		concurrency = utils.FinalizeConcurrency
	}
	return &AuctionScheduler{
		manager:     manager,
		bpm:         bpm,
		interval:    interval,
		concurrency: int64(concurrency),
		batchSize:   utils.SweepBatchSize,
		itemTimeout: utils.FinalizeTimeout,
	}
}

func (s *AuctionScheduler) Start() {
	s.bpm.Supervise(sweepProcessName, "finalizes expired auctions", s.interval, s.run)
}

func (s *AuctionScheduler) Stop() {
	s.bpm.StopProcess(sweepProcessName)
}

func (s *AuctionScheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			stats, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("Expiry sweep failed",
					slog.String("type", "sched"),
					slog.String("error", err.Error()))
				continue
			}
			logger.LogSweep(stats.Scanned, stats.Finalized, stats.Skipped, stats.Failed, time.Since(start))
		case <-ctx.Done():
			return
		}
	}
}

// Sweep finalizes every expired item found now. One item failing does not stop
// the others; it stays expired and is picked up again by the next sweep.
func (s *AuctionScheduler) Sweep(ctx context.Context) (SweepStats, error) {
	now := s.manager.now()
	ids, err := s.manager.store.ExpiredItemIDs(ctx, now, s.batchSize)
	if err != nil {
		return SweepStats{}, fmt.Errorf("failed to list expired auctions: %w", err)
	}

	var finalized, skipped, failed atomic.Int32
	sem := semaphore.NewWeighted(s.concurrency)
	var g errgroup.Group

	for _, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
			defer cancel()

			closed, err := s.manager.Finalize(itemCtx, id)
			switch {
			case err != nil:
				failed.Add(1)
				slog.Error("Failed to finalize expired auction",
					slog.String("type", "sched"),
					slog.Int64("item_id", id),
					slog.String("error", err.Error()))
			case closed:
				finalized.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := SweepStats{
		Scanned:   len(ids),
		Finalized: int(finalized.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	return stats, ctx.Err()
}
