package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/watch"
)

// MongoStore persists to MongoDB. Live updates come from the bus because
// change streams need a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	bus    watch.Bus
	clock  *clock
}

var _ Store = (*MongoStore)(nil)

type mongoMessage struct {
	ID         string      `bson:"_id"`
	UserID     string      `bson:"user_id"`
	Sender     string      `bson:"sender"`
	SenderID   string      `bson:"sender_id"`
	Text       string      `bson:"text,omitempty"`
	Prediction *Prediction `bson:"prediction,omitempty"`
	Timestamp  time.Time   `bson:"timestamp"`
}

type mongoBirthDetails struct {
	ID           string `bson:"_id"`
	UserID       string `bson:"user_id"`
	BirthDetails `bson:",inline"`
	CreatedAt    time.Time `bson:"created_at"`
}

type mongoFeedback struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Feedback  string    `bson:"feedback"`
	CreatedAt time.Time `bson:"created_at"`
}

type mongoUser struct {
	ID                string `bson:"_id"`
	DisplayName       string `bson:"display_name"`
	Email             string `bson:"email"`
	ProfilePictureURL string `bson:"profile_picture_url"`
}

type mongoSession struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// NewMongoStore connects to uri and ensures the message index exists.
func NewMongoStore(ctx context.Context, uri, database string, bus watch.Bus) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := &MongoStore{
		client: client,
		db:     client.Database(database),
		bus:    bus,
		clock:  newClock(time.Millisecond), // BSON dates carry milliseconds
	}

	_, err = s.db.Collection("messages").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create message index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) AppendMessage(ctx context.Context, userID string, msg *Message) error {
	doc := mongoMessage{
		ID:         uuid.NewString(),
		UserID:     userID,
		Sender:     msg.Sender,
		SenderID:   msg.SenderID,
		Text:       msg.Text,
		Prediction: msg.Prediction,
		Timestamp:  s.clock.next(),
	}
	if _, err := s.db.Collection("messages").InsertOne(ctx, doc); err != nil {
		return apperr.Persistence("store.AppendMessage", fmt.Errorf("failed to insert message: %w", err))
	}
	msg.ID = doc.ID
	msg.Timestamp = doc.Timestamp
	notify(ctx, s.bus, userID)
	return nil
}

func (s *MongoStore) ListMessages(ctx context.Context, userID string) ([]Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := s.db.Collection("messages").Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, apperr.Persistence("store.ListMessages", fmt.Errorf("failed to query messages: %w", err))
	}
	defer cursor.Close(ctx)

	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Persistence("store.ListMessages", fmt.Errorf("failed to decode messages: %w", err))
	}

	messages := make([]Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, Message{
			ID:         d.ID,
			Sender:     d.Sender,
			SenderID:   d.SenderID,
			Text:       d.Text,
			Prediction: d.Prediction,
			Timestamp:  d.Timestamp.UTC(),
		})
	}
	return messages, nil
}

func (s *MongoStore) WatchMessages(ctx context.Context, userID string) (*Subscription, error) {
	return watchWithBus(ctx, s.bus, userID, s.ListMessages)
}

func (s *MongoStore) ClearMessages(ctx context.Context, userID string) (int, error) {
	res, err := s.db.Collection("messages").DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, apperr.Persistence("store.ClearMessages", fmt.Errorf("failed to delete messages: %w", err))
	}
	notify(ctx, s.bus, userID)
	return int(res.DeletedCount), nil
}

func (s *MongoStore) UpsertProfile(ctx context.Context, p *UserProfile) error {
	now := time.Now().UTC()
	set := bson.M{"updated_at": now}
	if p.DisplayName != "" {
		set["display_name"] = p.DisplayName
	}
	if p.Email != "" {
		set["email"] = p.Email
	}
	if p.ProfilePictureURL != "" {
		set["profile_picture_url"] = p.ProfilePictureURL
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := s.db.Collection("users").UpdateOne(ctx, bson.M{"_id": p.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return apperr.Persistence("store.UpsertProfile", fmt.Errorf("failed to upsert user %s: %w", p.ID, err))
	}
	return nil
}

func (s *MongoStore) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	var u mongoUser
	err := s.db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, apperr.Persistence("store.GetProfile", fmt.Errorf("failed to find user: %w", err))
	}
	return &UserProfile{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email, ProfilePictureURL: u.ProfilePictureURL}, nil
}

func (s *MongoStore) AddBirthDetails(ctx context.Context, userID string, d BirthDetails) (*BirthDetailsRecord, error) {
	doc := mongoBirthDetails{ID: uuid.NewString(), UserID: userID, BirthDetails: d, CreatedAt: time.Now().UTC()}
	if _, err := s.db.Collection("birth_details").InsertOne(ctx, doc); err != nil {
		return nil, apperr.Persistence("store.AddBirthDetails", fmt.Errorf("failed to insert birth details: %w", err))
	}
	return &BirthDetailsRecord{ID: doc.ID, UserID: userID, BirthDetails: d, CreatedAt: doc.CreatedAt}, nil
}

func (s *MongoStore) AddFeedback(ctx context.Context, fb *Feedback) error {
	doc := mongoFeedback{ID: uuid.NewString(), UserID: fb.UserID, Feedback: fb.Feedback, CreatedAt: time.Now().UTC()}
	if _, err := s.db.Collection("feedbacks").InsertOne(ctx, doc); err != nil {
		return apperr.Persistence("store.AddFeedback", fmt.Errorf("failed to insert feedback: %w", err))
	}
	fb.ID = doc.ID
	fb.CreatedAt = doc.CreatedAt
	return nil
}

func (s *MongoStore) CreateSession(ctx context.Context, sess *Session) error {
	doc := mongoSession{ID: sess.ID, UserID: sess.UserID, CreatedAt: sess.CreatedAt.UTC(), ExpiresAt: sess.ExpiresAt.UTC()}
	if _, err := s.db.Collection("sessions").InsertOne(ctx, doc); err != nil {
		return apperr.Persistence("store.CreateSession", fmt.Errorf("failed to insert session: %w", err))
	}
	return nil
}

func (s *MongoStore) FindSession(ctx context.Context, id string) (*Session, error) {
	var doc mongoSession
	err := s.db.Collection("sessions").FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, apperr.Persistence("store.FindSession", fmt.Errorf("failed to find session: %w", err))
	}
	return &Session{ID: doc.ID, UserID: doc.UserID, CreatedAt: doc.CreatedAt, ExpiresAt: doc.ExpiresAt}, nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.Collection("sessions").DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return apperr.Persistence("store.DeleteSession", fmt.Errorf("failed to delete session: %w", err))
	}
	return nil
}
