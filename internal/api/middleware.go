package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ai-astrologer/ai-astrologer/internal/store"
	"github.com/ai-astrologer/ai-astrologer/internal/view"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	requestInfoKey
)

// requestInfo is filled in by inner middleware so the outer request logger
// can report it.
type requestInfo struct {
	userID string
}

func sessionFrom(ctx context.Context) *store.Session {
	sess, _ := ctx.Value(sessionKey).(*store.Session)
	return sess
}

func withSession(r *http.Request, sess *store.Session) *http.Request {
	if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok {
		info.userID = sess.UserID
	}
	return r.WithContext(context.WithValue(r.Context(), sessionKey, sess))
}

func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// RequireSession rejects requests without a live session.
func (h *APIHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.auth.Authenticate(r.Context(), sessionToken(r))
		if err != nil {
			h.writeError(w, view.ActionLoad, err)
			return
		}
		next.ServeHTTP(w, withSession(r, sess))
	})
}

// OptionalSession attaches the session when one is present and valid.
func (h *APIHandler) OptionalSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			h.cookies.clear(w, sessionCookie)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, withSession(r, sess))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

// RequestLogger logs one structured line per request and counts statuses by
// route pattern.
func (h *APIHandler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{}
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.metrics.RecordHTTPStatus(route, rec.statusCode)

		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.statusCode),
			slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
		}
		if info.userID != "" {
			attrs = append(attrs, slog.String("user_id", info.userID))
		}

		level := slog.LevelInfo
		if rec.statusCode >= 500 {
			level = slog.LevelError
		} else if rec.statusCode >= 400 {
			level = slog.LevelWarn
		}
		h.logger.Log(r.Context(), level, "http_request", attrs...)
	})
}
