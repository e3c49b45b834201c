package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/watch"
)

// Snapshot is the full ordered history at one point in time. Err is set,
// with a persistence kind, when the read behind the snapshot failed.
type Snapshot struct {
	Messages []Message
	Err      error
}

// Subscription delivers snapshots until Close is called or its context ends.
// A slow reader only ever sees the latest snapshot.
type Subscription struct {
	c      chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(parent context.Context) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		c:      make(chan Snapshot, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

// C is closed after the subscription ends.
func (s *Subscription) C() <-chan Snapshot { return s.c }

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once the producer goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) deliver(ctx context.Context, snap Snapshot) {
	select {
	case <-s.c:
	default:
	}
	select {
	case s.c <- snap:
	case <-ctx.Done():
	}
}

func (s *Subscription) finish() {
	close(s.c)
	close(s.done)
}

// watchWithBus backs WatchMessages for stores without native listeners: it
// re-reads the history every time the bus signals a change for the user.
func watchWithBus(ctx context.Context, bus watch.Bus, userID string, list func(context.Context, string) ([]Message, error)) (*Subscription, error) {
	events, unsubscribe, err := bus.Subscribe(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence("store.WatchMessages", err)
	}

	sub, subCtx := newSubscription(ctx)
	go func() {
		defer sub.finish()
		defer unsubscribe()

		emit := func() {
			msgs, err := list(subCtx, userID)
			if subCtx.Err() != nil {
				return
			}
			sub.deliver(subCtx, Snapshot{Messages: msgs, Err: err})
		}

		emit()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				emit()
			}
		}
	}()
	return sub, nil
}

// notify signals a change for userID after a committed write. The write
// stands either way; a lost signal leaves open streams stale until the next
// change or reconnect, so it is logged.
func notify(ctx context.Context, bus watch.Bus, userID string) {
	if err := bus.Publish(ctx, userID); err != nil {
		slog.Warn("failed to publish message change",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
