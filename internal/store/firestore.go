package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
)

const (
	usersCollection        = "users"
	messagesCollection     = "messages"
	birthDetailsCollection = "birthDetails"
	feedbacksCollection    = "feedbacks"
	sessionsCollection     = "sessions"
)

// FirestoreStore keeps messages in users/{uid}/messages and intake records
// in users/{uid}/birthDetails. Live updates come from Firestore query
// snapshots.
type FirestoreStore struct {
	client *firestore.Client
}

var _ Store = (*FirestoreStore)(nil)

type firestoreMessage struct {
	Sender     string            `firestore:"sender"`
	SenderID   string            `firestore:"senderId"`
	Text       string            `firestore:"text,omitempty"`
	Prediction map[string]string `firestore:"predictionData,omitempty"`
	Timestamp  time.Time         `firestore:"timestamp,serverTimestamp"`
}

// predictionFields flattens a reading into predictionData: one field per
// section key, or a single "text" field for plain readings.
func predictionFields(p *Prediction) map[string]string {
	if p == nil {
		return nil
	}
	if p.Sections == nil {
		return map[string]string{"text": p.Text}
	}
	fields := make(map[string]string, len(SectionKeys))
	for _, key := range SectionKeys {
		fields[key] = p.Sections.Get(key)
	}
	return fields
}

func predictionFromFields(fields map[string]string) *Prediction {
	if len(fields) == 0 {
		return nil
	}
	var sections Sections
	structured := false
	for key, value := range fields {
		if sections.Set(key, value) {
			structured = true
		}
	}
	if !structured {
		return &Prediction{Text: fields["text"]}
	}
	return &Prediction{Sections: &sections}
}

type firestoreBirthDetails struct {
	BirthDetails
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp"`
}

type firestoreFeedback struct {
	Feedback  string    `firestore:"feedback"`
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt,serverTimestamp"`
}

type firestoreSession struct {
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
	ExpiresAt time.Time `firestore:"expiresAt"`
}

// NewFirestoreStore connects to projectID. FIRESTORE_EMULATOR_HOST is honoured
// by the client library.
func NewFirestoreStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) messages(userID string) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(userID).Collection(messagesCollection)
}

func (s *FirestoreStore) birthDetails(userID string) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(userID).Collection(birthDetailsCollection)
}

func (s *FirestoreStore) AppendMessage(ctx context.Context, userID string, msg *Message) error {
	ref := s.messages(userID).NewDoc()
	res, err := ref.Create(ctx, firestoreMessage{
		Sender:     msg.Sender,
		SenderID:   msg.SenderID,
		Text:       msg.Text,
		Prediction: predictionFields(msg.Prediction),
	})
	if err != nil {
		return apperr.Persistence("store.AppendMessage", fmt.Errorf("failed to create message: %w", err))
	}
	msg.ID = ref.ID
	// The server timestamp equals the commit time of the create.
	msg.Timestamp = res.UpdateTime.UTC()
	return nil
}

func (s *FirestoreStore) ListMessages(ctx context.Context, userID string) ([]Message, error) {
	docs, err := s.messages(userID).OrderBy("timestamp", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, apperr.Persistence("store.ListMessages", fmt.Errorf("failed to query messages: %w", err))
	}
	return decodeMessages(docs)
}

func decodeMessages(docs []*firestore.DocumentSnapshot) ([]Message, error) {
	messages := make([]Message, 0, len(docs))
	for _, doc := range docs {
		var fm firestoreMessage
		if err := doc.DataTo(&fm); err != nil {
			return nil, apperr.Persistence("store.ListMessages", fmt.Errorf("failed to decode message %s: %w", doc.Ref.ID, err))
		}
		messages = append(messages, Message{
			ID:         doc.Ref.ID,
			Sender:     fm.Sender,
			SenderID:   fm.SenderID,
			Text:       fm.Text,
			Prediction: predictionFromFields(fm.Prediction),
			Timestamp:  fm.Timestamp.UTC(),
		})
	}
	return messages, nil
}

func (s *FirestoreStore) WatchMessages(ctx context.Context, userID string) (*Subscription, error) {
	sub, subCtx := newSubscription(ctx)
	it := s.messages(userID).OrderBy("timestamp", firestore.Asc).Snapshots(subCtx)

	go func() {
		defer sub.finish()
		defer it.Stop()

		for {
			qs, err := it.Next()
			if subCtx.Err() != nil {
				return
			}
			if err != nil {
				sub.deliver(subCtx, Snapshot{Err: apperr.Persistence("store.WatchMessages", err)})
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				sub.deliver(subCtx, Snapshot{Err: apperr.Persistence("store.WatchMessages", err)})
				continue
			}
			msgs, err := decodeMessages(docs)
			sub.deliver(subCtx, Snapshot{Messages: msgs, Err: err})
		}
	}()
	return sub, nil
}

func (s *FirestoreStore) ClearMessages(ctx context.Context, userID string) (int, error) {
	var refs []*firestore.DocumentRef
	it := s.messages(userID).DocumentRefs(ctx)
	for {
		ref, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, apperr.Persistence("store.ClearMessages", fmt.Errorf("failed to list messages: %w", err))
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return 0, apperr.Persistence("store.ClearMessages", fmt.Errorf("failed to enqueue delete of %s: %w", ref.ID, err))
		}
		jobs = append(jobs, job)
	}
	bw.End()

	deleted := 0
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		return deleted, apperr.Persistence("store.ClearMessages", fmt.Errorf("failed to delete %d messages: %w", len(errs), errors.Join(errs...)))
	}
	return deleted, nil
}

func (s *FirestoreStore) UpsertProfile(ctx context.Context, p *UserProfile) error {
	data := map[string]interface{}{"id": p.ID, "updatedAt": firestore.ServerTimestamp}
	if p.DisplayName != "" {
		data["displayName"] = p.DisplayName
	}
	if p.Email != "" {
		data["email"] = p.Email
	}
	if p.ProfilePictureURL != "" {
		data["profilePictureUrl"] = p.ProfilePictureURL
	}
	if _, err := s.client.Collection(usersCollection).Doc(p.ID).Set(ctx, data, firestore.MergeAll); err != nil {
		return apperr.Persistence("store.UpsertProfile", fmt.Errorf("failed to upsert user %s: %w", p.ID, err))
	}
	return nil
}

func (s *FirestoreStore) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	doc, err := s.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, apperr.Persistence("store.GetProfile", fmt.Errorf("failed to get user: %w", err))
	}
	var data struct {
		DisplayName       string `firestore:"displayName"`
		Email             string `firestore:"email"`
		ProfilePictureURL string `firestore:"profilePictureUrl"`
	}
	if err := doc.DataTo(&data); err != nil {
		return nil, apperr.Persistence("store.GetProfile", fmt.Errorf("failed to decode user: %w", err))
	}
	return &UserProfile{
		ID:                userID,
		DisplayName:       data.DisplayName,
		Email:             data.Email,
		ProfilePictureURL: data.ProfilePictureURL,
	}, nil
}

func (s *FirestoreStore) AddBirthDetails(ctx context.Context, userID string, d BirthDetails) (*BirthDetailsRecord, error) {
	ref := s.birthDetails(userID).NewDoc()
	res, err := ref.Create(ctx, firestoreBirthDetails{BirthDetails: d, UserID: userID})
	if err != nil {
		return nil, apperr.Persistence("store.AddBirthDetails", fmt.Errorf("failed to create birth details: %w", err))
	}
	return &BirthDetailsRecord{ID: ref.ID, UserID: userID, BirthDetails: d, CreatedAt: res.UpdateTime.UTC()}, nil
}

func (s *FirestoreStore) AddFeedback(ctx context.Context, fb *Feedback) error {
	ref := s.client.Collection(feedbacksCollection).NewDoc()
	res, err := ref.Create(ctx, firestoreFeedback{Feedback: fb.Feedback, UserID: fb.UserID})
	if err != nil {
		return apperr.Persistence("store.AddFeedback", fmt.Errorf("failed to create feedback: %w", err))
	}
	fb.ID = ref.ID
	fb.CreatedAt = res.UpdateTime.UTC()
	return nil
}

func (s *FirestoreStore) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.client.Collection(sessionsCollection).Doc(sess.ID).Create(ctx, firestoreSession{
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt.UTC(),
		ExpiresAt: sess.ExpiresAt.UTC(),
	})
	if err != nil {
		return apperr.Persistence("store.CreateSession", fmt.Errorf("failed to create session: %w", err))
	}
	return nil
}

func (s *FirestoreStore) FindSession(ctx context.Context, id string) (*Session, error) {
	doc, err := s.client.Collection(sessionsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, apperr.Persistence("store.FindSession", fmt.Errorf("failed to get session: %w", err))
	}
	var fs firestoreSession
	if err := doc.DataTo(&fs); err != nil {
		return nil, apperr.Persistence("store.FindSession", fmt.Errorf("failed to decode session: %w", err))
	}
	return &Session{ID: id, UserID: fs.UserID, CreatedAt: fs.CreatedAt, ExpiresAt: fs.ExpiresAt}, nil
}

func (s *FirestoreStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.client.Collection(sessionsCollection).Doc(id).Delete(ctx); err != nil {
		return apperr.Persistence("store.DeleteSession", fmt.Errorf("failed to delete session: %w", err))
	}
	return nil
}
