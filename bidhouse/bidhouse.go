package bidhouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database"
	"github.com/gohye/bidhouse/bidhouse/database/memstore"
	"github.com/gohye/bidhouse/bidhouse/database/repositories"
	"github.com/gohye/bidhouse/bidhouse/economy/auction"
	econutils "github.com/gohye/bidhouse/bidhouse/economy/utils"
	"github.com/gohye/bidhouse/bidhouse/events"
	"github.com/gohye/bidhouse/bidhouse/services"
	"github.com/gohye/bidhouse/bidhouse/utils"
)

const shutdownTimeout = 10 * time.Second

func New(cfg Config, version string, commit string) *House {
	return &House{
		Cfg:       cfg,
		Version:   version,
		Commit:    commit,
		Processes: utils.NewBackgroundProcessManager(),
	}
}

// House owns the ledger and every worker around it.
type House struct {
	Cfg     Config
	Version string
	Commit  string

	DB          *database.DB
	Store       repositories.AuctionStore
	Processes   *utils.BackgroundProcessManager
	Tasks       *utils.TaskQueue
	Channel     events.Channel
	Broadcaster *events.Broadcaster
	Archive     *services.MongoArchive
	Manager     *auction.Manager
	Scheduler   *auction.AuctionScheduler
}

// Setup connects the configured backends and starts the background workers.
// In demo mode the ledger lives in memory and sellers may bid on their own items.
func (h *House) Setup(ctx context.Context, demo bool) error {
	var users events.UsernameResolver
	if demo {
		h.Store = memstore.New()
		slog.Info("Using in-memory ledger", slog.String("type", "sys"))
	} else {
		db, err := database.New(ctx, h.Cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		h.DB = db
		if err := db.Ping(ctx); err != nil {
			return err
		}
		if err := db.InitializeSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		h.Store = repositories.NewPgStore(db.BunDB(), h.Cfg.Auction.TxTimeout.Std())
		users = services.NewUserDirectory(services.NewBunUserLookup(db.BunDB()))
	}

	channel, err := h.openChannel(ctx)
	if err != nil {
		return err
	}
	h.Channel = channel

	codec, err := events.NewCodec(h.Cfg.Events.Codec)
	if err != nil {
		return err
	}
	h.Broadcaster, err = events.NewBroadcaster(h.Processes, channel, codec, users, events.BroadcasterConfig{
		Prefix: h.Cfg.Events.ChannelPrefix,
		Lanes:  h.Cfg.Events.Lanes,
	})
	if err != nil {
		return fmt.Errorf("failed to start broadcaster: %w", err)
	}

	h.Tasks = utils.NewTaskQueue(h.Processes, "side-effects", h.Cfg.Notify.Workers, h.Cfg.Notify.QueueSize, econutils.PublishTimeout)

	opts := []auction.Option{
		auction.WithConfig(auction.Config{
			AllowSellerBids:  h.Cfg.Auction.AllowSellerBids || demo,
			RetractionWindow: h.Cfg.Auction.RetractionWindow.Std(),
			ProxyMode:        auction.ProxyMode(h.Cfg.Auction.ProxyMode),
			MaxProxyRounds:   h.Cfg.Auction.MaxProxyRounds,
		}),
		auction.WithEvents(h.Broadcaster),
		auction.WithTasks(h.Tasks),
	}

	if token := h.Cfg.Notify.DiscordToken; token != "" {
		opts = append(opts, auction.WithNotifier(auction.NewDiscordNotifier(token)))
	} else {
		opts = append(opts, auction.WithNotifier(auction.LogNotifier{}))
	}

	if uri := h.Cfg.Archive.MongoURI; uri != "" {
		archive, err := services.NewMongoArchive(ctx, uri, h.Cfg.Archive.Database, h.Cfg.Archive.Collection)
		if err != nil {
			return fmt.Errorf("failed to connect archive: %w", err)
		}
		h.Archive = archive
		opts = append(opts, auction.WithArchiver(archive))
	}

	txm := econutils.NewTransactionManager(h.Store, h.Cfg.Auction.MaxConflictRetries)
	h.Manager = auction.NewManager(txm, opts...)

	h.Scheduler = auction.NewAuctionScheduler(h.Manager, h.Processes,
		h.Cfg.Auction.SweepInterval.Std(), h.Cfg.Auction.FinalizeConcurrency)
	h.Scheduler.Start()

	slog.Info("Auction house ready",
		slog.String("type", "sys"),
		slog.String("version", h.Version),
		slog.String("commit", h.Commit),
		slog.String("transport", h.Cfg.Events.Transport),
		slog.String("codec", codec.Name()),
		slog.String("proxy_mode", h.Cfg.Auction.ProxyMode),
		slog.Bool("archive", h.Archive != nil))
	return nil
}

func (h *House) openChannel(ctx context.Context) (events.Channel, error) {
	switch h.Cfg.Events.Transport {
	case "redis":
		ch, err := events.NewRedisChannel(ctx, h.Cfg.Events.RedisAddr, h.Cfg.Events.RedisPassword, h.Cfg.Events.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		return ch, nil
	case "nats":
		ch, err := events.NewNATSChannel(h.Cfg.Events.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect nats: %w", err)
		}
		return ch, nil
	default:
		return events.NewLogChannel(false), nil
	}
}

// Close stops the sweep first so nothing new is committed, then drains side
// effects and events before releasing connections.
func (h *House) Close(ctx context.Context) {
	if h.Scheduler != nil {
		h.Scheduler.Stop()
	}
	if h.Tasks != nil {
		if err := h.Tasks.Close(ctx); err != nil {
			slog.Warn("Side-effect queue did not drain",
				slog.String("type", "sys"),
				slog.String("error", err.Error()))
		}
		stats := h.Tasks.Stats()
		slog.Info("Side-effect queue closed",
			slog.String("type", "sys"),
			slog.Int64("processed", stats.Processed),
			slog.Int64("failed", stats.Failed),
			slog.Int64("dropped", stats.Dropped))
	}
	if h.Broadcaster != nil {
		if err := h.Broadcaster.Close(ctx); err != nil {
			slog.Warn("Broadcaster did not drain",
				slog.String("type", "event"),
				slog.String("error", err.Error()))
		}
		stats := h.Broadcaster.Stats()
		slog.Info("Broadcaster closed",
			slog.String("type", "event"),
			slog.Int64("published", stats.Published),
			slog.Int64("stale", stats.Stale),
			slog.Int64("dropped", stats.Dropped),
			slog.Int64("failed", stats.Failed))
	} else if h.Channel != nil {
		_ = h.Channel.Close()
	}
	if err := h.Processes.Shutdown(shutdownTimeout); err != nil {
		slog.Warn("Background processes did not stop in time", slog.String("type", "sys"))
	}
	if h.Archive != nil {
		if err := h.Archive.Close(ctx); err != nil {
			slog.Warn("Failed to disconnect archive",
				slog.String("type", "sys"),
				slog.String("error", err.Error()))
		}
	}
	if h.DB != nil {
		h.DB.Close()
	}
}
