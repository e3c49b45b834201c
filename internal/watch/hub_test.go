package watch

import (
	"context"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
	}
}

func TestHub_PublishWakesTopicSubscribersOnly(t *testing.T) {
	h := NewHub()
	defer h.Close()
	ctx := context.Background()

	a, unsubA, _ := h.Subscribe(ctx, "user-a")
	defer unsubA()
	b, unsubB, _ := h.Subscribe(ctx, "user-b")
	defer unsubB()

	if err := h.Publish(ctx, "user-a"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	receive(t, a)
	select {
	case <-b:
		t.Error("subscriber of another topic should not be woken")
	default:
	}
}

func TestHub_SignalsCoalesce(t *testing.T) {
	h := NewHub()
	defer h.Close()
	ctx := context.Background()

	ch, unsub, _ := h.Subscribe(ctx, "user-a")
	defer unsub()

	for i := 0; i < 5; i++ {
		h.Publish(ctx, "user-a")
	}

	receive(t, ch)
	select {
	case <-ch:
		t.Error("expected pending signals to coalesce into one")
	default:
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	defer h.Close()

	ch, unsub, _ := h.Subscribe(context.Background(), "user-a")
	unsub()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after unsubscribe")
	}
	if n := h.Subscribers("user-a"); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := NewHub()
	ch, unsub, _ := h.Subscribe(context.Background(), "user-a")
	defer unsub()

	h.Close()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after hub close")
	}

	late, _, err := h.Subscribe(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("Subscribe after close: %v", err)
	}
	if _, ok := <-late; ok {
		t.Error("subscribing to a closed hub should yield a closed channel")
	}
}
