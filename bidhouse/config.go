package bidhouse

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database"
	"github.com/gohye/bidhouse/bidhouse/economy/utils"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	cfg := DefaultConfig()
	if err = toml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the settings used for keys the file leaves out.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: slog.LevelInfo},
		DB: database.DBConfig{
			Host:     "localhost",
			Port:     5432,
			PoolSize: 10,
		},
		Auction: AuctionConfig{
			SweepInterval:       Duration(utils.SweepInterval),
			TxTimeout:           Duration(utils.DefaultTxTimeout),
			RetractionWindow:    Duration(utils.RetractionWindow),
			ProxyMode:           "cascade",
			MaxProxyRounds:      utils.MaxProxyRounds,
			MaxConflictRetries:  utils.MaxConflictRetries,
			FinalizeConcurrency: utils.FinalizeConcurrency,
		},
		Events: EventsConfig{
			Transport:     "log",
			Codec:         "json",
			ChannelPrefix: "auction",
			Lanes:         utils.EventLanes,
		},
		Notify: NotifyConfig{
			Workers:   utils.NotifyWorkers,
			QueueSize: utils.NotifyQueueSize,
		},
		Archive: ArchiveConfig{
			Database:   "bidhouse",
			Collection: "ended_auctions",
		},
	}
}

type Config struct {
	Log     LogConfig         `toml:"log"`
	DB      database.DBConfig `toml:"db"`
	Auction AuctionConfig     `toml:"auction"`
	Events  EventsConfig      `toml:"events"`
	Notify  NotifyConfig      `toml:"notify"`
	Archive ArchiveConfig     `toml:"archive"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	NoColor   bool       `toml:"no_color"`
	AddSource bool       `toml:"add_source"`
}

type AuctionConfig struct {
	SweepInterval       Duration `toml:"sweep_interval"`
	TxTimeout           Duration `toml:"tx_timeout"`
	RetractionWindow    Duration `toml:"retraction_window"`
	ProxyMode           string   `toml:"proxy_mode"`
	MaxProxyRounds      int      `toml:"max_proxy_rounds"`
	MaxConflictRetries  int      `toml:"max_conflict_retries"`
	FinalizeConcurrency int      `toml:"finalize_concurrency"`
	// AllowSellerBids lets sellers bid on their own items. Demo and test setups only.
	AllowSellerBids bool `toml:"allow_seller_bids"`
}

type EventsConfig struct {
	Transport     string `toml:"transport"`
	Codec         string `toml:"codec"`
	ChannelPrefix string `toml:"channel_prefix"`
	Lanes         int    `toml:"lanes"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	NATSURL       string `toml:"nats_url"`
}

type NotifyConfig struct {
	DiscordToken string `toml:"discord_token"`
	Workers      int    `toml:"workers"`
	QueueSize    int    `toml:"queue_size"`
}

type ArchiveConfig struct {
	MongoURI   string `toml:"mongo_uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

func (c *Config) Validate() error {
	switch c.Auction.ProxyMode {
	case "cascade", "single":
	default:
		return fmt.Errorf("auction.proxy_mode must be \"cascade\" or \"single\", got %q", c.Auction.ProxyMode)
	}
	switch c.Events.Transport {
	case "redis", "nats", "log":
	default:
		return fmt.Errorf("events.transport must be redis, nats or log, got %q", c.Events.Transport)
	}
	switch c.Events.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("events.codec must be json or cbor, got %q", c.Events.Codec)
	}
	if c.Auction.SweepInterval <= 0 {
		return fmt.Errorf("auction.sweep_interval must be positive")
	}
	if c.Auction.RetractionWindow <= 0 {
		return fmt.Errorf("auction.retraction_window must be positive")
	}
	return nil
}

// Duration decodes TOML strings such as "30s" or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
