package store

import (
	"strings"
	"time"
)

const (
	SenderMe   = "me"
	SenderThem = "them"

	// AstrologerID is the sender id of every generated message.
	AstrologerID = "ai-astrologer"
)

// BirthDetails are the four intake fields a reading is generated from.
type BirthDetails struct {
	Name      string `json:"name" firestore:"name" bson:"name"`
	BirthDate string `json:"birthDate" firestore:"birthDate" bson:"birth_date"` // YYYY-MM-DD
	BirthTime string `json:"birthTime" firestore:"birthTime" bson:"birth_time"` // HH:MM, 24-hour
	BirthCity string `json:"birthCity" firestore:"birthCity" bson:"birth_city"`
}

// BirthDetailsRecord is an append-only intake submission.
type BirthDetailsRecord struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	BirthDetails
	CreatedAt time.Time `json:"createdAt"`
}

// Section keys in rendering order.
const (
	SectionIntroduction    = "introduction"
	SectionMajorLifeEvents = "major_life_events"
	SectionHealth          = "health"
	SectionWealth          = "wealth"
	SectionCareer          = "career"
	SectionRelationships   = "relationships"
	SectionConclusion      = "conclusion"
)

var SectionKeys = []string{
	SectionIntroduction,
	SectionMajorLifeEvents,
	SectionHealth,
	SectionWealth,
	SectionCareer,
	SectionRelationships,
	SectionConclusion,
}

// Sections is the structured form of a reading.
type Sections struct {
	Introduction    string `json:"introduction" firestore:"introduction" bson:"introduction"`
	MajorLifeEvents string `json:"major_life_events" firestore:"major_life_events" bson:"major_life_events"`
	Health          string `json:"health" firestore:"health" bson:"health"`
	Wealth          string `json:"wealth" firestore:"wealth" bson:"wealth"`
	Career          string `json:"career" firestore:"career" bson:"career"`
	Relationships   string `json:"relationships" firestore:"relationships" bson:"relationships"`
	Conclusion      string `json:"conclusion" firestore:"conclusion" bson:"conclusion"`
}

// Get returns the text of a section by key.
func (s *Sections) Get(key string) string {
	switch key {
	case SectionIntroduction:
		return s.Introduction
	case SectionMajorLifeEvents:
		return s.MajorLifeEvents
	case SectionHealth:
		return s.Health
	case SectionWealth:
		return s.Wealth
	case SectionCareer:
		return s.Career
	case SectionRelationships:
		return s.Relationships
	case SectionConclusion:
		return s.Conclusion
	}
	return ""
}

// Set assigns a section by key and reports whether the key is known.
func (s *Sections) Set(key, value string) bool {
	switch key {
	case SectionIntroduction:
		s.Introduction = value
	case SectionMajorLifeEvents:
		s.MajorLifeEvents = value
	case SectionHealth:
		s.Health = value
	case SectionWealth:
		s.Wealth = value
	case SectionCareer:
		s.Career = value
	case SectionRelationships:
		s.Relationships = value
	case SectionConclusion:
		s.Conclusion = value
	default:
		return false
	}
	return true
}

// Prediction is either a plain text reading or a structured one.
type Prediction struct {
	Text     string    `json:"text,omitempty" firestore:"text,omitempty" bson:"text,omitempty"`
	Sections *Sections `json:"sections,omitempty" firestore:"sections,omitempty" bson:"sections,omitempty"`
}

// PlainText flattens the prediction into a single string.
func (p *Prediction) PlainText() string {
	if p == nil {
		return ""
	}
	if p.Sections == nil {
		return p.Text
	}
	var b strings.Builder
	for _, key := range SectionKeys {
		v := strings.TrimSpace(p.Sections.Get(key))
		if v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(SectionTitle(key))
		b.WriteString(": ")
		b.WriteString(v)
	}
	return b.String()
}

// SectionTitle turns "major_life_events" into "Major Life Events".
func SectionTitle(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

type Message struct {
	ID         string      `json:"id"`
	Sender     string      `json:"sender"` // "me" or "them"
	SenderID   string      `json:"senderId"`
	Text       string      `json:"text,omitempty"`
	Prediction *Prediction `json:"predictionData,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

type UserProfile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Email             string `json:"email"`
	ProfilePictureURL string `json:"profilePictureUrl"`
}

type Feedback struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Feedback  string    `json:"feedback"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is opened on sign-in and deleted on sign-out.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
