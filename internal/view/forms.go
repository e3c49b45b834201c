package view

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

// IntakeForm is the birth details form as submitted.
type IntakeForm struct {
	Name      string `json:"name"`
	BirthDate string `json:"birthDate"`
	BirthTime string `json:"birthTime"`
	BirthCity string `json:"birthCity"`
}

// Validate checks every field and reports all failures together.
func (f IntakeForm) Validate() (store.BirthDetails, error) {
	d := store.BirthDetails{
		Name:      strings.TrimSpace(f.Name),
		BirthDate: strings.TrimSpace(f.BirthDate),
		BirthTime: strings.TrimSpace(f.BirthTime),
		BirthCity: strings.TrimSpace(f.BirthCity),
	}

	fields := apperr.FieldErrors{}
	if utf8.RuneCountInString(d.Name) < 2 {
		fields["name"] = "Name must be at least 2 characters."
	}
	if !datePattern.MatchString(d.BirthDate) {
		fields["birthDate"] = "Please enter a date in YYYY-MM-DD format."
	} else if _, err := time.Parse(time.DateOnly, d.BirthDate); err != nil {
		fields["birthDate"] = "Please enter a real calendar date."
	}
	if !timePattern.MatchString(d.BirthTime) {
		fields["birthTime"] = "Please enter a valid time in HH:MM format."
	}
	if utf8.RuneCountInString(d.BirthCity) < 2 {
		fields["birthCity"] = "Birth city must be at least 2 characters."
	}

	if len(fields) > 0 {
		return store.BirthDetails{}, apperr.Validation("view.IntakeForm", fields)
	}
	return d, nil
}

// FeedbackForm is the free-text feedback box.
type FeedbackForm struct {
	Feedback string `json:"feedback"`
}

const minFeedbackLength = 10

func (f FeedbackForm) Validate() (string, error) {
	text := strings.TrimSpace(f.Feedback)
	if utf8.RuneCountInString(text) < minFeedbackLength {
		return "", apperr.Validation("view.FeedbackForm", apperr.FieldErrors{
			"feedback": fmt.Sprintf("Feedback must be at least %d characters.", minFeedbackLength),
		})
	}
	return text, nil
}
