package core

import "context"

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one entry of a role-tagged conversation.
type Turn struct {
	Role string
	Text string
}

// SchemaField is a required string property of a JSON response object.
type SchemaField struct {
	Name        string
	Description string
}

// CompletionRequest is everything a single model call needs. When
// ResponseFields is set the model must answer with a JSON object holding
// exactly those string properties.
type CompletionRequest struct {
	System         string
	History        []Turn
	Prompt         string
	ResponseFields []SchemaField
}

// Completer performs one LLM call. Implementations never retry.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
