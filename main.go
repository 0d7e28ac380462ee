package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gohye/bidhouse/bidhouse"
	"github.com/gohye/bidhouse/bidhouse/logger"
	flag "github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(logger.Options{})))

	path := flag.String("config", "config.toml", "path to config")
	demo := flag.Bool("demo", false, "run with an in-memory ledger and play a scripted auction")
	demoDuration := flag.Duration("demo-duration", 2*time.Minute, "how long the demo auction stays open")
	flag.Parse()

	cfg := bidhouse.DefaultConfig()
	if _, err := os.Stat(*path); err == nil || !*demo {
		loaded, err := bidhouse.LoadConfig(*path)
		if err != nil {
			logger.LogError("Failed to load configuration", err, slog.String("path", *path))
			os.Exit(-1)
		}
		cfg = loaded
	}

	slog.SetDefault(slog.New(logger.NewHandler(logger.Options{
		Level:     cfg.Log.Level,
		NoColor:   cfg.Log.NoColor,
		AddSource: cfg.Log.AddSource,
	})))
	logger.LogSystem("Starting BidHouse",
		slog.String("version", version),
		slog.String("commit", commit),
		slog.Bool("demo", *demo))

	h := bidhouse.New(*cfg, version, commit)

	setupCtx, setupCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	start := time.Now()
	if err := h.Setup(setupCtx, *demo); err != nil {
		setupCancel()
		logger.LogError("Failed to start auction house", err,
			slog.Duration("attempted_for", time.Since(start)))
		closeHouse(h)
		os.Exit(-1)
	}
	setupCancel()

	if *demo {
		item, err := h.RunDemo(context.Background(), *demoDuration)
		if err != nil {
			logger.LogError("Demo script failed", err)
		} else {
			logger.LogSystem("Demo auction listed",
				slog.Int64("item_id", item.ID),
				slog.Time("ends_at", item.EndTime))
		}
	}

	logger.LogSystem("BidHouse is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	logger.LogSystem("Shutting down BidHouse...")
	closeHouse(h)
}

func closeHouse(h *bidhouse.House) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	h.Close(ctx)
}
