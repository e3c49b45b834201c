package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
)

const channelPrefix = "astrologer:messages:"

// RedisBus relays change signals through Redis pub/sub so every server
// instance wakes its local subscribers. Local delivery happens only through
// the Redis echo, never directly.
type RedisBus struct {
	rdb    *redis.Client
	local  *Hub
	pubsub *redis.PubSub
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRedisBus connects, verifies the server with PING and starts relaying.
func NewRedisBus(ctx context.Context, opts *redis.Options, logger *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	pubsub := rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		rdb.Close()
		return nil, fmt.Errorf("failed to subscribe to redis channels: %w", err)
	}

	b := &RedisBus{
		rdb:    rdb,
		local:  NewHub(),
		pubsub: pubsub,
		logger: logger,
	}
	b.wg.Add(1)
	go b.relay()

	logger.Info("redis change bus connected", slog.String("addr", opts.Addr))
	return b, nil
}

func (b *RedisBus) relay() {
	defer b.wg.Done()
	for msg := range b.pubsub.Channel() {
		topic := strings.TrimPrefix(msg.Channel, channelPrefix)
		if err := b.local.Publish(context.Background(), topic); err != nil {
			b.logger.Warn("failed to relay change signal",
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan struct{}, func(), error) {
	return b.local.Subscribe(ctx, topic)
}

func (b *RedisBus) Publish(ctx context.Context, topic string) error {
	if err := b.rdb.Publish(ctx, channelPrefix+topic, "changed").Err(); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Close() error {
	err := b.pubsub.Close()
	b.wg.Wait()
	b.local.Close()
	if cerr := b.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}
