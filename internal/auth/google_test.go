package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if code := r.Form.Get("code"); code != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newUserInfoServer(t *testing.T, status int, body map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-access-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleProvider_LoginURL(t *testing.T) {
	p := NewGoogleProvider(GoogleConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	url := p.LoginURL("test-state-value")
	for _, want := range []string{
		"https://accounts.google.com/",
		"client_id=test-client-id",
		"redirect_uri=",
		"state=test-state-value",
		"response_type=code",
		"openid",
		"email",
		"profile",
	} {
		if !strings.Contains(url, want) {
			t.Errorf("URL %q should contain %q", url, want)
		}
	}
}

func TestGoogleProvider_Exchange_Success(t *testing.T) {
	tokenSrv := newTokenServer(t)
	userSrv := newUserInfoServer(t, http.StatusOK, map[string]string{
		"sub":     "google-sub-12345",
		"email":   "asha@example.com",
		"name":    "Asha",
		"picture": "https://example.com/asha.png",
	})
	p := NewGoogleProvider(GoogleConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     tokenSrv.URL,
		UserInfoURL:  userSrv.URL,
	})

	id, err := p.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if id.ProviderUserID != "google-sub-12345" {
		t.Errorf("ProviderUserID = %q, want %q", id.ProviderUserID, "google-sub-12345")
	}
	if id.Email != "asha@example.com" || id.Name != "Asha" || id.Picture != "https://example.com/asha.png" {
		t.Errorf("identity = %#v", id)
	}
}

func TestGoogleProvider_Exchange_TokenError(t *testing.T) {
	tokenSrv := newTokenServer(t)
	p := NewGoogleProvider(GoogleConfig{ClientID: "id", ClientSecret: "secret", TokenURL: tokenSrv.URL})

	if _, err := p.Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatal("expected error for a rejected code")
	}
}

func TestGoogleProvider_Exchange_UserInfoError(t *testing.T) {
	tokenSrv := newTokenServer(t)
	userSrv := newUserInfoServer(t, http.StatusInternalServerError, map[string]string{"error": "boom"})
	p := NewGoogleProvider(GoogleConfig{ClientID: "id", ClientSecret: "secret", TokenURL: tokenSrv.URL, UserInfoURL: userSrv.URL})

	if _, err := p.Exchange(context.Background(), "good-code"); err == nil {
		t.Fatal("expected error when user info fails")
	}
}

func TestGoogleProvider_Exchange_MissingSub(t *testing.T) {
	tokenSrv := newTokenServer(t)
	userSrv := newUserInfoServer(t, http.StatusOK, map[string]string{"email": "asha@example.com"})
	p := NewGoogleProvider(GoogleConfig{ClientID: "id", ClientSecret: "secret", TokenURL: tokenSrv.URL, UserInfoURL: userSrv.URL})

	if _, err := p.Exchange(context.Background(), "good-code"); err == nil {
		t.Fatal("expected error for user info without sub")
	}
}
