package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/auth"
	"github.com/ai-astrologer/ai-astrologer/internal/metrics"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
	"github.com/ai-astrologer/ai-astrologer/internal/view"
)

// ChatActions are the signed-in user actions.
type ChatActions interface {
	History(ctx context.Context, sess *store.Session) ([]store.Message, error)
	Watch(ctx context.Context, sess *store.Session) (*store.Subscription, error)
	SendMessage(ctx context.Context, sess *store.Session, text string) (*store.Message, error)
	NewPrediction(ctx context.Context, sess *store.Session, d store.BirthDetails) (*store.Message, error)
	SubmitFeedback(ctx context.Context, sess *store.Session, text string) error
}

// Authenticator covers sign-in, sessions and profiles.
type Authenticator interface {
	LoginURL(state string) string
	SignIn(ctx context.Context, code string) (*auth.SignInResult, error)
	Authenticate(ctx context.Context, token string) (*store.Session, error)
	Profile(ctx context.Context, sess *store.Session) (*store.UserProfile, error)
	SignOut(ctx context.Context, sess *store.Session) error
}

type Options struct {
	Chat     ChatActions
	Auth     Authenticator
	Renderer *view.Renderer
	Metrics  metrics.Recorder
	Logger   *slog.Logger
	Limiter  *RateLimiter

	SecureCookies bool
	SessionMaxAge time.Duration
	// Location formats message times. Defaults to UTC.
	Location *time.Location
	// KeepAlive is the comment interval on idle event streams.
	KeepAlive time.Duration
}

type APIHandler struct {
	chat     ChatActions
	auth     Authenticator
	views    *view.Renderer
	metrics  metrics.Recorder
	logger   *slog.Logger
	limiter  *RateLimiter
	cookies  cookieConfig
	location *time.Location
	keep     time.Duration
}

func NewAPIHandler(opts Options) *APIHandler {
	h := &APIHandler{
		chat:     opts.Chat,
		auth:     opts.Auth,
		views:    opts.Renderer,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		limiter:  opts.Limiter,
		cookies:  cookieConfig{secure: opts.SecureCookies, sessionMaxAge: opts.SessionMaxAge},
		location: opts.Location,
		keep:     opts.KeepAlive,
	}
	if h.metrics == nil {
		h.metrics = metrics.Nop{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.location == nil {
		h.location = time.UTC
	}
	if h.keep <= 0 {
		h.keep = 15 * time.Second
	}
	if h.cookies.sessionMaxAge <= 0 {
		h.cookies.sessionMaxAge = auth.DefaultSessionMaxAge
	}
	return h
}

// buildPage resolves what the signed-in (or anonymous) user sees right now.
// A failed history read leaves the page Loading with a notice; the event
// stream keeps retrying from there.
func (h *APIHandler) buildPage(r *http.Request) view.Page {
	sess := sessionFrom(r.Context())
	if sess == nil {
		return view.BuildPage(nil, nil, true, h.location)
	}

	profile, err := h.auth.Profile(r.Context(), sess)
	if err != nil {
		h.logger.Warn("failed to load profile", slog.String("user_id", sess.UserID), slog.String("error", err.Error()))
		if apperr.KindOf(err) == apperr.KindAuth {
			return view.BuildPage(nil, nil, true, h.location)
		}
		profile = &store.UserProfile{ID: sess.UserID}
	}

	messages, err := h.chat.History(r.Context(), sess)
	if err != nil {
		h.logger.Warn("failed to load history", slog.String("user_id", sess.UserID), slog.String("error", err.Error()))
		page := view.BuildPage(profile, nil, false, h.location)
		notice := view.NoticeFor(view.ActionLoad, err)
		page.Notice = &notice
		return page
	}
	return view.BuildPage(profile, messages, true, h.location)
}

// PageHandler serves the HTML document.
func (h *APIHandler) PageHandler(w http.ResponseWriter, r *http.Request) {
	page := h.buildPage(r)
	if flash := h.takeFlash(w, r); flash != nil {
		page.Notice = flash
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.views.Page(w, page); err != nil {
		h.logger.Error("failed to render page", slog.String("error", err.Error()))
	}
}

// ViewHandler returns the page view model as JSON.
func (h *APIHandler) ViewHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.buildPage(r))
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.auth.Profile(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		h.writeError(w, view.ActionLoad, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type messagesResponse struct {
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chat.History(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		h.writeError(w, view.ActionLoad, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: messages})
}

type PostMessageRequest struct {
	Text string `json:"text"`
}

type actionResponse struct {
	Message *store.Message `json:"message,omitempty"`
	Notice  *view.Notice   `json:"notice,omitempty"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, view.ActionMessage, err)
		return
	}

	reply, err := h.chat.SendMessage(r.Context(), sessionFrom(r.Context()), req.Text)
	if err != nil {
		h.writeError(w, view.ActionMessage, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Message: reply})
}

func (h *APIHandler) CreatePredictionHandler(w http.ResponseWriter, r *http.Request) {
	var form view.IntakeForm
	if err := decodeJSON(w, r, &form); err != nil {
		h.writeError(w, view.ActionPrediction, err)
		return
	}
	details, err := form.Validate()
	if err != nil {
		h.writeError(w, view.ActionPrediction, err)
		return
	}

	msg, err := h.chat.NewPrediction(r.Context(), sessionFrom(r.Context()), details)
	if err != nil {
		h.writeError(w, view.ActionPrediction, err)
		return
	}
	notice := view.DetailsSubmitted()
	writeJSON(w, http.StatusCreated, actionResponse{Message: msg, Notice: &notice})
}

func (h *APIHandler) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	var form view.FeedbackForm
	if err := decodeJSON(w, r, &form); err != nil {
		h.writeError(w, view.ActionFeedback, err)
		return
	}
	text, err := form.Validate()
	if err != nil {
		h.writeError(w, view.ActionFeedback, err)
		return
	}

	if err := h.chat.SubmitFeedback(r.Context(), sessionFrom(r.Context()), text); err != nil {
		h.writeError(w, view.ActionFeedback, err)
		return
	}
	notice := view.FeedbackSubmitted()
	writeJSON(w, http.StatusCreated, actionResponse{Notice: &notice})
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		return apperr.Validation("api.decode", fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

type errorResponse struct {
	Error  view.Notice        `json:"error"`
	Fields apperr.FieldErrors `json:"fields,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers a failed action with its one notice.
func (h *APIHandler) writeError(w http.ResponseWriter, action view.Action, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("action", string(action)), slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{Error: view.NoticeFor(action, err), Fields: apperr.Fields(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
