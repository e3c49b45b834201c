package view

import (
	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
)

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient, dismissible toast.
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

const (
	titleSomethingWrong = "Uh oh! Something went wrong."
	titleAuthFailed     = "Authentication Failed"
)

func SignedIn(name string) Notice {
	if name == "" {
		name = "back"
	}
	return Notice{Kind: NoticeSuccess, Title: "Signed In!", Description: "Welcome, " + name + "!"}
}

func SignedOut() Notice {
	return Notice{Kind: NoticeSuccess, Title: "Signed Out", Description: "You have been successfully signed out."}
}

func AuthFailed() Notice {
	return Notice{Kind: NoticeError, Title: titleAuthFailed, Description: "Could not sign in with Google. Please try again."}
}

func DetailsSubmitted() Notice {
	return Notice{Kind: NoticeSuccess, Title: "Details Submitted!", Description: "The stars are aligning..."}
}

func FeedbackSubmitted() Notice {
	return Notice{Kind: NoticeSuccess, Title: "Feedback Submitted!", Description: "Thank you for your feedback."}
}

// Action names the user action a failure belongs to, for the description.
type Action string

const (
	ActionPrediction Action = "prediction"
	ActionMessage    Action = "message"
	ActionFeedback   Action = "feedback"
	ActionLoad       Action = "load"
	ActionSignOut    Action = "signout"
)

var failureDescriptions = map[Action]string{
	ActionPrediction: "Could not save details or get prediction.",
	ActionMessage:    "Could not get a reply. Please try again.",
	ActionFeedback:   "Could not submit your feedback. Please try again.",
	ActionLoad:       "Could not load your conversation. Retrying...",
	ActionSignOut:    "There was an error signing out. Please try again.",
}

// NoticeFor maps a failed action to the single notice shown for it.
func NoticeFor(action Action, err error) Notice {
	if action == ActionSignOut {
		return Notice{Kind: NoticeError, Title: "Sign Out Failed", Description: failureDescriptions[ActionSignOut]}
	}
	switch apperr.KindOf(err) {
	case apperr.KindAuth:
		return Notice{Kind: NoticeError, Title: titleAuthFailed, Description: "Please sign in to continue."}
	case apperr.KindValidation:
		return Notice{Kind: NoticeError, Title: "Please check your input.", Description: validationDescription(err)}
	}
	desc, ok := failureDescriptions[action]
	if !ok {
		desc = "Please try again."
	}
	return Notice{Kind: NoticeError, Title: titleSomethingWrong, Description: desc}
}

func validationDescription(err error) string {
	if f := apperr.Fields(err); len(f) == 1 {
		for _, msg := range f {
			return msg
		}
	}
	return "Some fields need your attention."
}

func RateLimited() Notice {
	return Notice{Kind: NoticeError, Title: titleSomethingWrong, Description: "Too many requests. Please wait a moment and try again."}
}
