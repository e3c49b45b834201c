package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
	"github.com/ai-astrologer/ai-astrologer/internal/view"
)

const eventWriteTimeout = 30 * time.Second

type snapshotEvent struct {
	State view.State `json:"state"`
	HTML  string     `json:"html"`
	Input view.Input `json:"input"`
}

// EventsHandler streams the rendered chat after every history change. A
// failed read sends a notice and the stream stays open for the next change.
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := sessionFrom(ctx)

	profile, err := h.auth.Profile(ctx, sess)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindAuth {
			h.writeError(w, view.ActionLoad, err)
			return
		}
		profile = &store.UserProfile{ID: sess.UserID}
	}

	sub, err := h.chat.Watch(ctx, sess)
	if err != nil {
		h.writeError(w, view.ActionLoad, err)
		return
	}
	defer sub.Close()

	h.metrics.WatchStarted()
	defer h.metrics.WatchEnded()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("event stream cannot flush", slog.String("error", err.Error()))
		return
	}

	keepAlive := time.NewTicker(h.keep)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if err := h.writeEvent(rc, w, "", nil); err != nil {
				return
			}
		case snap, ok := <-sub.C():
			if !ok {
				return
			}
			if err := h.sendSnapshot(rc, w, profile, snap); err != nil {
				h.logger.Debug("event stream closed", slog.String("user_id", sess.UserID), slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (h *APIHandler) sendSnapshot(rc *http.ResponseController, w http.ResponseWriter, profile *store.UserProfile, snap store.Snapshot) error {
	if snap.Err != nil {
		h.logger.Warn("history snapshot failed", slog.String("user_id", profile.ID), slog.String("error", snap.Err.Error()))
		return h.writeEvent(rc, w, "notice", view.NoticeFor(view.ActionLoad, snap.Err))
	}

	page := view.BuildPage(profile, snap.Messages, true, h.location)
	html, err := h.views.Chat(page)
	if err != nil {
		return fmt.Errorf("failed to render chat: %w", err)
	}
	return h.writeEvent(rc, w, "snapshot", snapshotEvent{State: page.State, HTML: html, Input: page.Input})
}

// writeEvent sends one event, or a keep-alive comment when name is empty.
func (h *APIHandler) writeEvent(rc *http.ResponseController, w http.ResponseWriter, name string, data any) error {
	if err := rc.SetWriteDeadline(time.Now().Add(eventWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}

	if name == "" {
		if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
			return err
		}
		return rc.Flush()
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	return rc.Flush()
}
