package store

import (
	"context"
	"sync"
	"time"
)

// MessageStore holds the ordered per-user chat history.
type MessageStore interface {
	// AppendMessage assigns msg.ID and msg.Timestamp and writes it.
	AppendMessage(ctx context.Context, userID string, msg *Message) error
	// ListMessages returns all messages ascending by timestamp.
	ListMessages(ctx context.Context, userID string) ([]Message, error)
	// WatchMessages yields a full snapshot now and after every change.
	WatchMessages(ctx context.Context, userID string) (*Subscription, error)
	// ClearMessages deletes every message of the user and returns the count.
	ClearMessages(ctx context.Context, userID string) (int, error)
}

type ProfileStore interface {
	// UpsertProfile merges p into the stored profile; empty fields are kept.
	UpsertProfile(ctx context.Context, p *UserProfile) error
	// GetProfile returns nil, nil when the profile does not exist.
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
}

type BirthDetailsStore interface {
	AddBirthDetails(ctx context.Context, userID string, d BirthDetails) (*BirthDetailsRecord, error)
}

type FeedbackStore interface {
	AddFeedback(ctx context.Context, fb *Feedback) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	// FindSession returns nil, nil when the session does not exist.
	FindSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Store is implemented by every backend.
type Store interface {
	MessageStore
	ProfileStore
	BirthDetailsStore
	FeedbackStore
	SessionStore
	Close() error
}

// clock hands out store-assigned timestamps that never go backwards within one
// process, truncated to the backend's precision.
type clock struct {
	mu        sync.Mutex
	last      time.Time
	precision time.Duration
	now       func() time.Time
}

func newClock(precision time.Duration) *clock {
	return &clock{precision: precision, now: time.Now}
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(c.precision)
	if !t.After(c.last) {
		t = c.last.Add(c.precision)
	}
	c.last = t
	return t
}
