package bidhouse

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"

[db]
host = "db.internal"
database = "auctions"

[auction]
sweep_interval = "5s"
retraction_window = "30m"
proxy_mode = "single"
allow_seller_bids = true

[events]
transport = "redis"
codec = "cbor"
redis_addr = "localhost:6379"
`)

	cfg, err := LoadConfig(path)
	assert.NoError(t, err)

	check.Equal(t, slog.LevelDebug, cfg.Log.Level)
	check.Equal(t, "db.internal", cfg.DB.Host)
	check.Equal(t, 5432, cfg.DB.Port)
	check.Equal(t, 5*time.Second, cfg.Auction.SweepInterval.Std())
	check.Equal(t, 30*time.Minute, cfg.Auction.RetractionWindow.Std())
	check.Equal(t, "single", cfg.Auction.ProxyMode)
	check.True(t, cfg.Auction.AllowSellerBids)
	check.Equal(t, 200, cfg.Auction.MaxProxyRounds)
	check.Equal(t, "cbor", cfg.Events.Codec)
	check.Equal(t, "localhost:6379", cfg.Events.RedisAddr)
	check.Equal(t, "ended_auctions", cfg.Archive.Collection)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "proxy mode", body: "[auction]\nproxy_mode = \"recursive\"\n"},
		{name: "transport", body: "[events]\ntransport = \"kafka\"\n"},
		{name: "codec", body: "[events]\ncodec = \"xml\"\n"},
		{name: "duration", body: "[auction]\nsweep_interval = \"soon\"\n"},
		{name: "negative interval", body: "[auction]\nsweep_interval = \"-1s\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			check.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	check.Error(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "config.example.toml"))
	assert.NoError(t, err)
	check.Equal(t, DefaultConfig().Auction, cfg.Auction)
	check.Equal(t, "redis", cfg.Events.Transport)
	check.Equal(t, 1800, cfg.DB.MaxLifetime)
}
