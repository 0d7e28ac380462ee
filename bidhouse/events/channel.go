package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub fan-out viewers subscribe to. Delivery is at most once.
type Channel interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// RedisChannel publishes through Redis pub/sub. Viewers PSUBSCRIBE "<prefix>.item.*".
type RedisChannel struct {
	client *redis.Client
}

func NewRedisChannel(ctx context.Context, addr, password string, db int) (*RedisChannel, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisChannel{client: rdb}, nil
}

func (c *RedisChannel) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.client.Publish(ctx, topic, payload).Err()
}

func (c *RedisChannel) Close() error {
	return c.client.Close()
}

// NATSChannel publishes core NATS messages on subjects equal to the topic.
type NATSChannel struct {
	conn *nats.Conn
}

func NewNATSChannel(url string) (*NATSChannel, error) {
	conn, err := nats.Connect(url,
		nats.Name("bidhouse-events"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSChannel{conn: conn}, nil
}

func (c *NATSChannel) Publish(_ context.Context, topic string, payload []byte) error {
	return c.conn.Publish(topic, payload)
}

func (c *NATSChannel) Close() error {
	return c.conn.Drain()
}

type Message struct {
	Topic   string
	Payload []byte
}

// LogChannel logs every publish and keeps the messages in memory. It backs
// demo runs and tests.
type LogChannel struct {
	mu       sync.Mutex
	messages []Message
	quiet    bool
}

func NewLogChannel(quiet bool) *LogChannel {
	return &LogChannel{quiet: quiet}
}

func (c *LogChannel) Publish(_ context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	c.messages = append(c.messages, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	c.mu.Unlock()

	if !c.quiet {
		slog.Info("Event published",
			slog.String("type", "event"),
			slog.String("topic", topic),
			slog.Int("bytes", len(payload)))
	}
	return nil
}

// Messages returns a copy of everything published so far.
func (c *LogChannel) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *LogChannel) Close() error { return nil }
