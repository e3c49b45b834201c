package view

import (
	"strings"
	"time"

	"github.com/ai-astrologer/ai-astrologer/internal/store"
)

const (
	AppTitle     = "A.I. Astrologer"
	OnlineStatus = "Online"

	pendingTime = "..."
)

type Header struct {
	Title      string `json:"title"`
	Status     string `json:"status"`
	UserName   string `json:"userName,omitempty"`
	PictureURL string `json:"pictureUrl,omitempty"`
}

// Bubble is one rendered chat message.
type Bubble struct {
	ID    string   `json:"id"`
	Mine  bool     `json:"mine"`
	Lines []string `json:"lines,omitempty"`
	Cards []Card   `json:"cards,omitempty"`
	Time  string   `json:"time"`
}

// Page is everything the page template needs in one state.
type Page struct {
	State   State    `json:"state"`
	Header  Header   `json:"header"`
	Bubbles []Bubble `json:"bubbles"`
	Input   Input    `json:"input"`
	Notice  *Notice  `json:"notice,omitempty"`
}

// ShowIntake reports whether the birth details form is shown.
func (p Page) ShowIntake() bool { return p.State == StateIntakeRequired }

// BuildPage assembles the page for a user. A nil profile means signed out;
// loaded is false while the history has not been read.
func BuildPage(profile *store.UserProfile, messages []store.Message, loaded bool, loc *time.Location) Page {
	state := Resolve(profile != nil, loaded, len(messages))
	page := Page{
		State:   state,
		Header:  Header{Title: AppTitle, Status: OnlineStatus},
		Bubbles: []Bubble{},
		Input:   InputFor(state),
	}
	if profile != nil {
		page.Header.UserName = profile.DisplayName
		page.Header.PictureURL = profile.ProfilePictureURL
	}
	if state == StateChatting {
		page.Bubbles = Bubbles(messages, loc)
	}
	return page
}

// Bubbles renders messages in the order given.
func Bubbles(messages []store.Message, loc *time.Location) []Bubble {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]Bubble, 0, len(messages))
	for _, m := range messages {
		b := Bubble{ID: m.ID, Mine: m.Sender == store.SenderMe, Time: pendingTime}
		if !m.Timestamp.IsZero() {
			b.Time = m.Timestamp.In(loc).Format("15:04")
		}
		switch {
		case m.Prediction != nil && m.Prediction.Sections != nil:
			b.Cards = Cards(m.Prediction)
		case m.Prediction != nil:
			b.Lines = strings.Split(m.Prediction.Text, "\n")
		default:
			b.Lines = strings.Split(m.Text, "\n")
		}
		out = append(out, b)
	}
	return out
}
