package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/watch"
)

type SQLiteStore struct {
	db    *sql.DB
	bus   watch.Bus
	clock *clock
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens dataSourceName, applies migrations and publishes
// message changes on bus.
func NewSQLiteStore(dataSourceName string, bus watch.Bus) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// shared between statements.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err = RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, bus: bus, clock: newClock(time.Microsecond)}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Message methods
func (s *SQLiteStore) AppendMessage(ctx context.Context, userID string, msg *Message) error {
	var predictionJSON sql.NullString
	if msg.Prediction != nil {
		raw, err := json.Marshal(msg.Prediction)
		if err != nil {
			return apperr.Persistence("store.AppendMessage", fmt.Errorf("failed to marshal prediction: %w", err))
		}
		predictionJSON = sql.NullString{String: string(raw), Valid: true}
	}

	id := uuid.NewString()
	ts := s.clock.next()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, user_id, sender, sender_id, text, prediction_json, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, userID, msg.Sender, msg.SenderID, msg.Text, predictionJSON, ts)
	if err != nil {
		return apperr.Persistence("store.AppendMessage", fmt.Errorf("failed to execute message insert: %w", err))
	}

	msg.ID = id
	msg.Timestamp = ts
	notify(ctx, s.bus, userID)
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, userID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, sender, sender_id, text, prediction_json, timestamp FROM messages WHERE user_id = ? ORDER BY timestamp ASC, seq ASC",
		userID)
	if err != nil {
		return nil, apperr.Persistence("store.ListMessages", fmt.Errorf("failed to query messages: %w", err))
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var predictionJSON sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.SenderID, &msg.Text, &predictionJSON, &msg.Timestamp); err != nil {
			return nil, apperr.Persistence("store.ListMessages", fmt.Errorf("failed to scan message row: %w", err))
		}
		if predictionJSON.Valid && predictionJSON.String != "" {
			var p Prediction
			if err := json.Unmarshal([]byte(predictionJSON.String), &p); err != nil {
				return nil, apperr.Persistence("store.ListMessages", fmt.Errorf("failed to unmarshal prediction of message %s: %w", msg.ID, err))
			}
			msg.Prediction = &p
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("store.ListMessages", fmt.Errorf("failed to iterate messages: %w", err))
	}
	return messages, nil
}

func (s *SQLiteStore) WatchMessages(ctx context.Context, userID string) (*Subscription, error) {
	return watchWithBus(ctx, s.bus, userID, s.ListMessages)
}

func (s *SQLiteStore) ClearMessages(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE user_id = ?", userID)
	if err != nil {
		return 0, apperr.Persistence("store.ClearMessages", fmt.Errorf("failed to delete messages: %w", err))
	}
	notify(ctx, s.bus, userID)
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Persistence("store.ClearMessages", fmt.Errorf("failed to count deleted messages: %w", err))
	}
	return int(affected), nil
}

// Profile methods
func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *UserProfile) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (id, display_name, email, profile_picture_url, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE users.display_name END,
            email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
            profile_picture_url = CASE WHEN excluded.profile_picture_url <> '' THEN excluded.profile_picture_url ELSE users.profile_picture_url END,
            updated_at = excluded.updated_at
    `, p.ID, p.DisplayName, p.Email, p.ProfilePictureURL, now, now)
	if err != nil {
		return apperr.Persistence("store.UpsertProfile", fmt.Errorf("failed to upsert user %s: %w", p.ID, err))
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	var p UserProfile
	err := s.db.QueryRowContext(ctx,
		"SELECT id, display_name, email, profile_picture_url FROM users WHERE id = ?", userID,
	).Scan(&p.ID, &p.DisplayName, &p.Email, &p.ProfilePictureURL)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.Persistence("store.GetProfile", fmt.Errorf("failed to query user: %w", err))
	}
	return &p, nil
}

// Birth details and feedback
func (s *SQLiteStore) AddBirthDetails(ctx context.Context, userID string, d BirthDetails) (*BirthDetailsRecord, error) {
	rec := &BirthDetailsRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		BirthDetails: d,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO birth_details (id, user_id, name, birth_date, birth_time, birth_city, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.UserID, d.Name, d.BirthDate, d.BirthTime, d.BirthCity, rec.CreatedAt)
	if err != nil {
		return nil, apperr.Persistence("store.AddBirthDetails", fmt.Errorf("failed to insert birth details: %w", err))
	}
	return rec, nil
}

// ListBirthDetails returns a user's intake submissions, oldest first.
func (s *SQLiteStore) ListBirthDetails(ctx context.Context, userID string) ([]BirthDetailsRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, birth_date, birth_time, birth_city, created_at FROM birth_details WHERE user_id = ? ORDER BY created_at ASC",
		userID)
	if err != nil {
		return nil, apperr.Persistence("store.ListBirthDetails", fmt.Errorf("failed to query birth details: %w", err))
	}
	defer rows.Close()

	var records []BirthDetailsRecord
	for rows.Next() {
		var r BirthDetailsRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.BirthDate, &r.BirthTime, &r.BirthCity, &r.CreatedAt); err != nil {
			return nil, apperr.Persistence("store.ListBirthDetails", fmt.Errorf("failed to scan birth details row: %w", err))
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) AddFeedback(ctx context.Context, fb *Feedback) error {
	fb.ID = uuid.NewString()
	fb.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO feedbacks (id, user_id, feedback, created_at) VALUES (?, ?, ?, ?)",
		fb.ID, fb.UserID, fb.Feedback, fb.CreatedAt)
	if err != nil {
		return apperr.Persistence("store.AddFeedback", fmt.Errorf("failed to insert feedback: %w", err))
	}
	return nil
}

// Session methods
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		sess.ID, sess.UserID, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	if err != nil {
		return apperr.Persistence("store.CreateSession", fmt.Errorf("failed to insert session: %w", err))
	}
	return nil
}

func (s *SQLiteStore) FindSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?", id,
	).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.Persistence("store.FindSession", fmt.Errorf("failed to query session: %w", err))
	}
	return &sess, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return apperr.Persistence("store.DeleteSession", fmt.Errorf("failed to delete session: %w", err))
	}
	return nil
}
