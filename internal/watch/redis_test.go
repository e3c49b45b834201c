package watch

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// Runs only against a live server: REDIS_ADDR=localhost:6379 go test ./internal/watch
func TestRedisBus_PublishReachesOtherInstance(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := NewRedisBus(ctx, &redis.Options{Addr: addr}, slog.Default())
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	defer first.Close()
	second, err := NewRedisBus(ctx, &redis.Options{Addr: addr}, slog.Default())
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	defer second.Close()

	ch, unsub, _ := second.Subscribe(ctx, "user-redis")
	defer unsub()

	if err := first.Publish(ctx, "user-redis"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	receive(t, ch)
}
