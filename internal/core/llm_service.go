package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
)

const DefaultModelName = "gemini-2.5-flash"

// LLMService is the Gemini-backed Completer.
type LLMService struct {
	client    *genai.Client
	modelName string
}

var _ Completer = (*LLMService)(nil)

func NewLLMService(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*LLMService, error) {
	if modelName == "" {
		modelName = DefaultModelName
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, modelName: modelName}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			slog.Warn("error closing GenAI client", slog.String("error", err.Error()))
		} else {
			slog.Info("GenAI client closed")
		}
	}
}

func (s *LLMService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	const op = "llm.Complete"

	if strings.TrimSpace(req.Prompt) == "" {
		return "", apperr.Generation(op, errors.New("prompt is empty"))
	}

	model := s.client.GenerativeModel(s.modelName)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if len(req.ResponseFields) > 0 {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = responseSchema(req.ResponseFields)
	}

	chatSession := model.StartChat()
	chatSession.History = toContents(req.History)

	resp, err := chatSession.SendMessage(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", apperr.Generation(op, fmt.Errorf("gemini chat SendMessage failed: %w", err))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", apperr.Generation(op, errors.New("gemini response was empty or had no valid candidates"))
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			slog.Debug("gemini response part was not text", slog.String("type", fmt.Sprintf("%T", part)))
		}
	}

	if strings.TrimSpace(responseText.String()) == "" {
		return "", apperr.Generation(op, errors.New("gemini returned no text"))
	}
	return responseText.String(), nil
}

func responseSchema(fields []SchemaField) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(fields)),
		Required:   make([]string, 0, len(fields)),
	}
	for _, f := range fields {
		schema.Properties[f.Name] = &genai.Schema{Type: genai.TypeString, Description: f.Description}
		schema.Required = append(schema.Required, f.Name)
	}
	return schema
}

// toContents converts turns to Gemini history. Empty turns are dropped.
func toContents(turns []Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		history = append(history, &genai.Content{
			Role:  t.Role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return history
}
