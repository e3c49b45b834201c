// Package view holds the presentation state machine, the view models built
// from stored data and the HTML templates that render them.
package view

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateLoading         State = "loading"
	StateIntakeRequired  State = "intake_required"
	StateChatting        State = "chatting"
)

// Resolve derives the page state. An authenticated user whose history has not
// loaded yet is Loading; an empty history asks for birth details.
func Resolve(authenticated, loaded bool, messageCount int) State {
	switch {
	case !authenticated:
		return StateUnauthenticated
	case !loaded:
		return StateLoading
	case messageCount == 0:
		return StateIntakeRequired
	default:
		return StateChatting
	}
}

const (
	placeholderDisabled = "Please complete the form above to start chatting."
	placeholderEnabled  = "Type a message..."
)

// Input is the chat input box.
type Input struct {
	Disabled    bool   `json:"disabled"`
	Placeholder string `json:"placeholder"`
}

// InputFor enables the input only while chatting.
func InputFor(s State) Input {
	if s == StateChatting {
		return Input{Placeholder: placeholderEnabled}
	}
	return Input{Disabled: true, Placeholder: placeholderDisabled}
}
