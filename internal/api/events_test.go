package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ai-astrologer/ai-astrologer/internal/store"
	"github.com/ai-astrologer/ai-astrologer/internal/view"
	"github.com/ai-astrologer/ai-astrologer/internal/watch"
)

type sseEvent struct {
	name string
	data string
}

// readEvent returns the next named event, skipping keep-alive comments.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsHandler_StreamsSnapshots(t *testing.T) {
	hub := watch.NewHub()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"), hub)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() {
		st.Close()
		hub.Close()
	})

	env := newTestEnv(t, func(o *Options) { o.KeepAlive = 50 * time.Millisecond })
	env.chat.watchFn = func(ctx context.Context, sess *store.Session) (*store.Subscription, error) {
		return st.WatchMessages(ctx, sess.UserID)
	}
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(5*time.Second, cancel)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	bearer(req)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /events error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	reader := bufio.NewReader(resp.Body)

	var first snapshotEvent
	ev := readEvent(t, reader)
	if ev.name != "snapshot" {
		t.Fatalf("first event = %q", ev.name)
	}
	json.Unmarshal([]byte(ev.data), &first)
	if first.State != view.StateIntakeRequired || !first.Input.Disabled {
		t.Errorf("first snapshot = %#v", first)
	}

	if err := st.AppendMessage(ctx, testSession.UserID, &store.Message{Sender: store.SenderThem, SenderID: store.AstrologerID, Text: "The stars smile on you."}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	var next snapshotEvent
	ev = readEvent(t, reader)
	json.Unmarshal([]byte(ev.data), &next)
	if next.State != view.StateChatting || next.Input.Disabled {
		t.Errorf("second snapshot state = %q input = %#v", next.State, next.Input)
	}
	if !strings.Contains(next.HTML, "The stars smile on you.") || !strings.Contains(next.HTML, `class="row theirs"`) {
		t.Errorf("snapshot html = %q", next.HTML)
	}

	env.metrics.mu.Lock()
	active := env.metrics.watches
	env.metrics.mu.Unlock()
	if active != 1 {
		t.Errorf("active watches = %d, want 1", active)
	}
}

func TestEventsHandler_RequiresSession(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(http.MethodGet, "/events", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestEventsHandler_WatchFailure(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/events", "", bearer)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
