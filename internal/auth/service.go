// Package auth signs users in with Google and manages their sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
)

const DefaultSessionMaxAge = 24 * time.Hour

// Store is the persistence the auth flows need.
type Store interface {
	store.ProfileStore
	store.SessionStore
}

type ServiceConfig struct {
	SessionMaxAge time.Duration
}

type Service struct {
	provider Provider
	store    Store
	tokens   *TokenIssuer
	config   ServiceConfig
	now      func() time.Time
}

// SignInResult is handed to the HTTP layer after a successful callback.
type SignInResult struct {
	Session *store.Session
	Profile *store.UserProfile
	Token   string
}

func NewService(provider Provider, s Store, tokens *TokenIssuer, config ServiceConfig) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = DefaultSessionMaxAge
	}
	return &Service{provider: provider, store: s, tokens: tokens, config: config, now: time.Now}
}

func (s *Service) LoginURL(state string) string {
	return s.provider.LoginURL(state)
}

// SignIn completes the provider flow, merges the profile and opens a session.
// Nothing is written when the provider step fails.
func (s *Service) SignIn(ctx context.Context, code string) (*SignInResult, error) {
	const op = "auth.SignIn"
	if code == "" {
		return nil, apperr.Auth(op, errors.New("missing authorization code"))
	}

	identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Auth(op, err)
	}

	profile := &store.UserProfile{
		ID:                identity.ProviderUserID,
		DisplayName:       identity.Name,
		Email:             identity.Email,
		ProfilePictureURL: identity.Picture,
	}
	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	// Re-read so the caller sees the merged record rather than the raw claims.
	if stored, err := s.store.GetProfile(ctx, profile.ID); err == nil && stored != nil {
		profile = stored
	}

	now := s.now().UTC()
	sess := &store.Session{
		ID:        uuid.NewString(),
		UserID:    profile.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, apperr.Auth(op, err)
	}

	slog.Info("user signed in", slog.String("user_id", profile.ID))
	return &SignInResult{Session: sess, Profile: profile, Token: token}, nil
}

// Authenticate resolves a session token to a live session.
func (s *Service) Authenticate(ctx context.Context, token string) (*store.Session, error) {
	const op = "auth.Authenticate"
	if token == "" {
		return nil, apperr.Auth(op, errors.New("no session token"))
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperr.Auth(op, err)
	}

	sess, err := s.store.FindSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.Auth(op, errors.New("session not found"))
	}
	if sess.UserID != claims.Subject {
		return nil, apperr.Auth(op, errors.New("session does not belong to token subject"))
	}
	if sess.Expired(s.now()) {
		return nil, apperr.Auth(op, errors.New("session expired"))
	}
	return sess, nil
}

// Profile returns the stored profile of the session's user.
func (s *Service) Profile(ctx context.Context, sess *store.Session) (*store.UserProfile, error) {
	p, err := s.store.GetProfile(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.Auth("auth.Profile", fmt.Errorf("no profile for user %s", sess.UserID))
	}
	return p, nil
}

func (s *Service) SignOut(ctx context.Context, sess *store.Session) error {
	if sess == nil || sess.ID == "" {
		return apperr.Auth("auth.SignOut", errors.New("session ID is required"))
	}
	if err := s.store.DeleteSession(ctx, sess.ID); err != nil {
		return err
	}
	slog.Info("user signed out", slog.String("user_id", sess.UserID))
	return nil
}

// NewState returns a random value for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
