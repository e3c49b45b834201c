package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
)

const MinFeedbackLength = 10

// Generator produces a reading from birth details.
type Generator interface {
	Generate(ctx context.Context, d store.BirthDetails) (*store.Prediction, error)
}

// Replier answers a follow-up message given the prior history.
type Replier interface {
	Reply(ctx context.Context, history []store.Message, message string) (string, error)
}

// ChatStore is the subset of the store the chat flows touch.
type ChatStore interface {
	store.MessageStore
	store.BirthDetailsStore
	store.FeedbackStore
}

// ChatService runs the user actions of a signed-in session. The session is
// passed to every call; nothing is remembered between calls.
type ChatService struct {
	store     ChatStore
	generator Generator
	replier   Replier
	logger    *slog.Logger
}

func NewChatService(s ChatStore, g Generator, r Replier, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{store: s, generator: g, replier: r, logger: logger}
}

func requireSession(op string, sess *store.Session) error {
	if sess == nil || sess.UserID == "" {
		return apperr.Auth(op, errors.New("no active session"))
	}
	return nil
}

// History returns the ordered messages of the session's user.
func (s *ChatService) History(ctx context.Context, sess *store.Session) ([]store.Message, error) {
	if err := requireSession("chat.History", sess); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, sess.UserID)
}

// Watch subscribes to live history snapshots of the session's user.
func (s *ChatService) Watch(ctx context.Context, sess *store.Session) (*store.Subscription, error) {
	if err := requireSession("chat.Watch", sess); err != nil {
		return nil, err
	}
	return s.store.WatchMessages(ctx, sess.UserID)
}

// SendMessage persists the user's message, asks for a reply and persists it.
// The user message stays stored when the reply fails.
func (s *ChatService) SendMessage(ctx context.Context, sess *store.Session, text string) (*store.Message, error) {
	const op = "chat.SendMessage"
	if err := requireSession(op, sess); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation(op, apperr.FieldErrors{"text": "Message cannot be empty."})
	}

	history, err := s.store.ListMessages(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	userMsg := &store.Message{Sender: store.SenderMe, SenderID: sess.UserID, Text: text}
	if err := s.store.AppendMessage(ctx, sess.UserID, userMsg); err != nil {
		return nil, err
	}

	reply, err := s.replier.Reply(ctx, history, text)
	if err != nil {
		s.logger.Warn("failed to generate reply",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	replyMsg := &store.Message{Sender: store.SenderThem, SenderID: store.AstrologerID, Text: reply}
	if err := s.store.AppendMessage(ctx, sess.UserID, replyMsg); err != nil {
		return nil, err
	}
	return replyMsg, nil
}

// NewPrediction records the birth details, generates a reading and replaces
// the user's history with it. Generation runs before the clear so a failed
// call leaves the old history in place.
func (s *ChatService) NewPrediction(ctx context.Context, sess *store.Session, d store.BirthDetails) (*store.Message, error) {
	const op = "chat.NewPrediction"
	if err := requireSession(op, sess); err != nil {
		return nil, err
	}

	if _, err := s.store.AddBirthDetails(ctx, sess.UserID, d); err != nil {
		return nil, err
	}

	pred, err := s.generator.Generate(ctx, d)
	if err != nil {
		s.logger.Warn("failed to generate prediction",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	cleared, err := s.store.ClearMessages(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{Sender: store.SenderThem, SenderID: store.AstrologerID, Prediction: pred}
	if err := s.store.AppendMessage(ctx, sess.UserID, msg); err != nil {
		return nil, err
	}
	s.logger.Info("new prediction stored",
		slog.String("user_id", sess.UserID),
		slog.Int("cleared_messages", cleared),
	)
	return msg, nil
}

// SubmitFeedback stores free-text feedback of at least MinFeedbackLength characters.
func (s *ChatService) SubmitFeedback(ctx context.Context, sess *store.Session, text string) error {
	const op = "chat.SubmitFeedback"
	if err := requireSession(op, sess); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinFeedbackLength {
		return apperr.Validation(op, apperr.FieldErrors{
			"feedback": fmt.Sprintf("Feedback must be at least %d characters.", MinFeedbackLength),
		})
	}
	return s.store.AddFeedback(ctx, &store.Feedback{UserID: sess.UserID, Feedback: text})
}
