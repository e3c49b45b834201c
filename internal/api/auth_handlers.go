package api

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ai-astrologer/ai-astrologer/internal/auth"
	"github.com/ai-astrologer/ai-astrologer/internal/view"
)

const (
	sessionCookie = "session"
	stateCookie   = "oauth_state"
	flashCookie   = "flash"

	stateMaxAge = 10 * time.Minute
)

type cookieConfig struct {
	secure        bool
	sessionMaxAge time.Duration
}

func (c cookieConfig) set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieConfig) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// LoginHandler starts the Google authorization-code flow.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state, err := auth.NewState()
	if err != nil {
		h.logger.Error("failed to create oauth state", slog.String("error", err.Error()))
		h.redirectWithNotice(w, r, view.AuthFailed())
		return
	}
	h.cookies.set(w, stateCookie, state, stateMaxAge)
	http.Redirect(w, r, h.auth.LoginURL(state), http.StatusFound)
}

// CallbackHandler finishes sign-in. Every failure ends on the landing page
// with a single Authentication Failed notice.
func (h *APIHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expected, err := r.Cookie(stateCookie)
	h.cookies.clear(w, stateCookie)

	switch {
	case q.Get("error") != "":
		h.logger.Warn("provider returned an error", slog.String("error", q.Get("error")))
		h.redirectWithNotice(w, r, view.AuthFailed())
		return
	case err != nil || expected.Value == "" ||
		subtle.ConstantTimeCompare([]byte(expected.Value), []byte(q.Get("state"))) != 1:
		h.logger.Warn("oauth state mismatch")
		h.redirectWithNotice(w, r, view.AuthFailed())
		return
	}

	res, err := h.auth.SignIn(r.Context(), q.Get("code"))
	if err != nil {
		h.logger.Warn("sign-in failed", slog.String("error", err.Error()))
		h.redirectWithNotice(w, r, view.AuthFailed())
		return
	}

	h.cookies.set(w, sessionCookie, res.Token, h.cookies.sessionMaxAge)
	h.redirectWithNotice(w, r, view.SignedIn(res.Profile.DisplayName))
}

// SignOutHandler ends the current session. A request without a live session
// is already signed out.
func (h *APIHandler) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	if sess := sessionFrom(r.Context()); sess != nil {
		if err := h.auth.SignOut(r.Context(), sess); err != nil {
			h.logger.Error("sign-out failed", slog.String("user_id", sess.UserID), slog.String("error", err.Error()))
			h.respondNotice(w, r, statusFor(err), view.NoticeFor(view.ActionSignOut, err))
			return
		}
	}
	h.cookies.clear(w, sessionCookie)
	h.respondNotice(w, r, http.StatusOK, view.SignedOut())
}

// respondNotice answers API clients with JSON and browsers with a redirect
// that carries the notice to the next page render.
func (h *APIHandler) respondNotice(w http.ResponseWriter, r *http.Request, status int, n view.Notice) {
	if wantsJSON(r) {
		if n.Kind == view.NoticeError {
			writeJSON(w, status, errorResponse{Error: n})
			return
		}
		writeJSON(w, status, actionResponse{Notice: &n})
		return
	}
	h.redirectWithNotice(w, r, n)
}

func (h *APIHandler) redirectWithNotice(w http.ResponseWriter, r *http.Request, n view.Notice) {
	if raw, err := json.Marshal(n); err == nil {
		h.cookies.set(w, flashCookie, base64.RawURLEncoding.EncodeToString(raw), time.Minute)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// takeFlash reads and clears the one-shot notice cookie.
func (h *APIHandler) takeFlash(w http.ResponseWriter, r *http.Request) *view.Notice {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	h.cookies.clear(w, flashCookie)

	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var n view.Notice
	if err := json.Unmarshal(raw, &n); err != nil || n.Title == "" {
		return nil
	}
	return &n
}

func wantsJSON(r *http.Request) bool {
	if r.Header.Get("Authorization") != "" {
		return true
	}
	accept := r.Header.Get("Accept")
	return accept == "application/json"
}
