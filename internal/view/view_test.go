package view

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
)

func ashaPrediction() *store.Prediction {
	return &store.Prediction{Sections: &store.Sections{
		Introduction:    "Asha, born in Pune under a Leo sun, carries a warm fire this year.",
		MajorLifeEvents: "A move is likely in the next 6 months.**Stay open to it.",
		Health:          "Rest well through the coming 3 months.",
		Wealth:          "Savings grow steadily over the next year.",
		Career:          "A promotion arrives within 2 years.*Prepare for it.",
		Relationships:   "A close bond deepens in the next 6 months.",
		Conclusion:      "The coming year rewards patience.",
	}}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name          string
		authenticated bool
		loaded        bool
		count         int
		want          State
	}{
		{"signed out", false, true, 3, StateUnauthenticated},
		{"history loading", true, false, 0, StateLoading},
		{"empty history", true, true, 0, StateIntakeRequired},
		{"has messages", true, true, 2, StateChatting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.authenticated, tt.loaded, tt.count); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInputFor(t *testing.T) {
	if in := InputFor(StateChatting); in.Disabled || in.Placeholder != "Type a message..." {
		t.Errorf("chatting input = %#v", in)
	}
	for _, s := range []State{StateUnauthenticated, StateLoading, StateIntakeRequired} {
		in := InputFor(s)
		if !in.Disabled || in.Placeholder != "Please complete the form above to start chatting." {
			t.Errorf("%s input = %#v", s, in)
		}
	}
}

func TestCards_AshaReading(t *testing.T) {
	cards := Cards(ashaPrediction())

	var titles []string
	for _, c := range cards {
		titles = append(titles, c.Title)
	}
	want := []string{"Introduction", "Major Life Events", "Health", "Wealth", "Career", "Relationships", "Conclusion"}
	if !reflect.DeepEqual(titles, want) {
		t.Errorf("titles = %v, want %v", titles, want)
	}

	if got := cards[1].Lines; !reflect.DeepEqual(got, []string{"A move is likely in the next 6 months.", "", "Stay open to it."}) {
		t.Errorf("paragraph break lines = %q", got)
	}
	if got := cards[4].Lines; !reflect.DeepEqual(got, []string{"A promotion arrives within 2 years.", "Prepare for it."}) {
		t.Errorf("line break lines = %q", got)
	}
}

func TestCards_SkipsEmptySections(t *testing.T) {
	p := &store.Prediction{Sections: &store.Sections{Introduction: "Hello.", Health: "  ", Conclusion: "Bye."}}
	cards := Cards(p)
	if len(cards) != 2 || cards[0].Key != store.SectionIntroduction || cards[1].Key != store.SectionConclusion {
		t.Errorf("cards = %#v", cards)
	}
	if Cards(&store.Prediction{Text: "plain"}) != nil {
		t.Error("plain text prediction has no cards")
	}
}

func TestIntakeForm_Validate(t *testing.T) {
	valid := IntakeForm{Name: " Asha ", BirthDate: "1990-08-15", BirthTime: "06:30", BirthCity: "Pune"}
	d, err := valid.Validate()
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if d.Name != "Asha" || d.BirthCity != "Pune" {
		t.Errorf("details = %#v", d)
	}

	tests := []struct {
		name  string
		form  IntakeForm
		field string
		msg   string
	}{
		{"short name", IntakeForm{Name: "A", BirthDate: "1990-08-15", BirthTime: "06:30", BirthCity: "Pune"}, "name", "Name must be at least 2 characters."},
		{"bad date format", IntakeForm{Name: "Asha", BirthDate: "15/08/1990", BirthTime: "06:30", BirthCity: "Pune"}, "birthDate", "Please enter a date in YYYY-MM-DD format."},
		{"impossible date", IntakeForm{Name: "Asha", BirthDate: "1990-02-30", BirthTime: "06:30", BirthCity: "Pune"}, "birthDate", "Please enter a real calendar date."},
		{"bad time", IntakeForm{Name: "Asha", BirthDate: "1990-08-15", BirthTime: "24:00", BirthCity: "Pune"}, "birthTime", "Please enter a valid time in HH:MM format."},
		{"short city", IntakeForm{Name: "Asha", BirthDate: "1990-08-15", BirthTime: "6:30", BirthCity: "P"}, "birthCity", "Birth city must be at least 2 characters."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.form.Validate()
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("error = %v, want validation error", err)
			}
			fields := apperr.Fields(err)
			if len(fields) != 1 || fields[tt.field] != tt.msg {
				t.Errorf("fields = %v, want %s: %q", fields, tt.field, tt.msg)
			}
		})
	}
}

func TestIntakeForm_ReportsEveryField(t *testing.T) {
	_, err := IntakeForm{}.Validate()
	if got := len(apperr.Fields(err)); got != 4 {
		t.Errorf("field errors = %d, want 4", got)
	}
}

func TestFeedbackForm_Validate(t *testing.T) {
	if _, err := (FeedbackForm{Feedback: "too short"}).Validate(); apperr.Fields(err)["feedback"] != "Feedback must be at least 10 characters." {
		t.Errorf("short feedback error = %v", err)
	}
	text, err := FeedbackForm{Feedback: "  Loved the reading!  "}.Validate()
	if err != nil || text != "Loved the reading!" {
		t.Errorf("Validate() = %q, %v", text, err)
	}
}

func TestNoticeFor(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		err    error
		title  string
		desc   string
	}{
		{"prediction generation", ActionPrediction, apperr.Generation("t", errors.New("x")), "Uh oh! Something went wrong.", "Could not save details or get prediction."},
		{"feedback persistence", ActionFeedback, apperr.Persistence("t", errors.New("x")), "Uh oh! Something went wrong.", "Could not submit your feedback. Please try again."},
		{"signed out user", ActionFeedback, apperr.Auth("t", errors.New("x")), "Authentication Failed", "Please sign in to continue."},
		{"sign out", ActionSignOut, apperr.Auth("t", errors.New("x")), "Sign Out Failed", "There was an error signing out. Please try again."},
		{"single field", ActionMessage, apperr.Validation("t", apperr.FieldErrors{"text": "Message cannot be empty."}), "Please check your input.", "Message cannot be empty."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NoticeFor(tt.action, tt.err)
			if n.Kind != NoticeError || n.Title != tt.title || n.Description != tt.desc {
				t.Errorf("NoticeFor() = %#v", n)
			}
		})
	}
}

func TestSuccessNotices(t *testing.T) {
	if n := SignedIn("Asha"); n.Title != "Signed In!" || n.Description != "Welcome, Asha!" {
		t.Errorf("SignedIn = %#v", n)
	}
	if n := AuthFailed(); n.Title != "Authentication Failed" || n.Description != "Could not sign in with Google. Please try again." {
		t.Errorf("AuthFailed = %#v", n)
	}
	if n := DetailsSubmitted(); n.Description != "The stars are aligning..." {
		t.Errorf("DetailsSubmitted = %#v", n)
	}
}

func TestBuildPage(t *testing.T) {
	profile := &store.UserProfile{ID: "u1", DisplayName: "Asha"}
	at := time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC)
	msgs := []store.Message{
		{ID: "1", Sender: store.SenderThem, Prediction: ashaPrediction(), Timestamp: at},
		{ID: "2", Sender: store.SenderMe, Text: "Will I travel?", Timestamp: at.Add(time.Minute)},
		{ID: "3", Sender: store.SenderThem, Text: "Yes, within 6 months."},
	}

	p := BuildPage(profile, msgs, true, time.UTC)
	if p.State != StateChatting || p.Input.Disabled {
		t.Fatalf("page state = %q, input = %#v", p.State, p.Input)
	}
	if p.Header.Title != "A.I. Astrologer" || p.Header.Status != "Online" || p.Header.UserName != "Asha" {
		t.Errorf("header = %#v", p.Header)
	}
	if len(p.Bubbles) != 3 {
		t.Fatalf("bubbles = %d", len(p.Bubbles))
	}
	if len(p.Bubbles[0].Cards) != 7 || p.Bubbles[0].Mine || p.Bubbles[0].Time != "14:05" {
		t.Errorf("prediction bubble = %#v", p.Bubbles[0])
	}
	if !p.Bubbles[1].Mine || p.Bubbles[1].Time != "14:06" {
		t.Errorf("user bubble = %#v", p.Bubbles[1])
	}
	if p.Bubbles[2].Time != "..." {
		t.Errorf("pending timestamp shown as %q", p.Bubbles[2].Time)
	}

	if p := BuildPage(nil, msgs, true, time.UTC); p.State != StateUnauthenticated || len(p.Bubbles) != 0 {
		t.Errorf("signed out page = %#v", p)
	}
	if p := BuildPage(profile, nil, true, time.UTC); !p.ShowIntake() || !p.Input.Disabled {
		t.Errorf("intake page = %#v", p)
	}
}

func TestRenderer_Page(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	var landing strings.Builder
	if err := r.Page(&landing, BuildPage(nil, nil, false, time.UTC)); err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if !strings.Contains(landing.String(), "Sign in with Google") {
		t.Error("landing page should offer Google sign-in")
	}

	msgs := []store.Message{
		{ID: "1", Sender: store.SenderThem, Prediction: ashaPrediction(), Timestamp: time.Now()},
		{ID: "2", Sender: store.SenderMe, Text: "<script>alert(1)</script>", Timestamp: time.Now()},
	}
	page := BuildPage(&store.UserProfile{ID: "u1", DisplayName: "Asha"}, msgs, true, time.UTC)
	page.Notice = &Notice{Kind: NoticeSuccess, Title: "Signed In!", Description: "Welcome, Asha!"}

	var out strings.Builder
	if err := r.Page(&out, page); err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	html := out.String()
	for _, want := range []string{"Major Life Events", "Relationships", `class="row mine"`, "Welcome, Asha!", "Type a message..."} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("message text must be escaped")
	}

	fragment, err := r.Chat(page)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if strings.Contains(fragment, "<html") || strings.Count(fragment, `class="card"`) != 7 {
		t.Errorf("chat fragment = %q", fragment)
	}
}
