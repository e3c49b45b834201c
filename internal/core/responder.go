package core

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
	"github.com/ai-astrologer/ai-astrologer/internal/utils"
)

const DefaultReplyMaxSentences = 3

const chatSystemInstruction = "You are an expert astrologer answering follow-up questions. Your response MUST follow these rules:\n" +
	"1. Provide direct answers based on the user's birth chart from the history.\n" +
	"2. Always include specific, approximate dates or timelines (e.g., \"around June 2025\", \"in your late twenties\").\n" +
	"3. Keep your entire response to a maximum of three sentences.\n" +
	"4. Do NOT use any astrological jargon like \"7th house lord\", \"Dasha\", \"transits\", or \"aspects\"."

// openingRequest stands in for the intake form when a history starts with the
// reading, since Gemini expects the first turn to come from the user.
const openingRequest = "Please give me my astrological reading."

type ResponderConfig struct {
	MaxSentences int
	Timeout      time.Duration
}

// Responder answers a follow-up question from the full chat history.
type Responder struct {
	llm       Completer
	cfg       ResponderConfig
	sanitizer *bluemonday.Policy
	observer  GenerationObserver
}

func NewResponder(llm Completer, cfg ResponderConfig, observer GenerationObserver) *Responder {
	if cfg.MaxSentences <= 0 {
		cfg.MaxSentences = DefaultReplyMaxSentences
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLLMTimeout
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Responder{llm: llm, cfg: cfg, sanitizer: bluemonday.StrictPolicy(), observer: observer}
}

// Reply sends history plus message to the model and returns the trimmed reply.
func (r *Responder) Reply(ctx context.Context, history []store.Message, message string) (string, error) {
	const op = "responder.Reply"

	message = strings.TrimSpace(message)
	if message == "" {
		return "", apperr.Validation(op, errors.New("message is empty"))
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	turns, prompt := BuildHistory(history, message)

	start := time.Now()
	raw, err := r.llm.Complete(ctx, CompletionRequest{
		System:  chatSystemInstruction,
		History: turns,
		Prompt:  prompt,
	})
	if err != nil {
		r.observer.ObserveGeneration("reply", "error", time.Since(start))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperr.Generation(op, fmt.Errorf("timed out after %s: %w", r.cfg.Timeout, err))
		}
		return "", apperr.Generation(op, err)
	}

	reply := strings.TrimSpace(html.UnescapeString(r.sanitizer.Sanitize(raw)))
	reply = utils.LimitSentences(reply, r.cfg.MaxSentences)
	if reply == "" {
		r.observer.ObserveGeneration("reply", "invalid", time.Since(start))
		return "", apperr.Generation(op, errors.New("model returned an empty reply"))
	}
	r.observer.ObserveGeneration("reply", "ok", time.Since(start))
	return reply, nil
}

// BuildHistory maps stored messages to model turns and returns the prompt to
// send. Predictions are flattened to text, empty messages are skipped and
// consecutive turns of the same role are merged. A trailing unanswered user
// turn is folded into the prompt.
func BuildHistory(messages []store.Message, message string) ([]Turn, string) {
	var turns []Turn
	for _, m := range messages {
		text := strings.TrimSpace(m.Text)
		if m.Prediction != nil {
			text = m.Prediction.PlainText()
		}
		if text == "" {
			continue
		}
		role := RoleModel
		if m.Sender == store.SenderMe {
			role = RoleUser
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Text += "\n\n" + text
			continue
		}
		turns = append(turns, Turn{Role: role, Text: text})
	}

	if len(turns) > 0 && turns[0].Role == RoleModel {
		turns = append([]Turn{{Role: RoleUser, Text: openingRequest}}, turns...)
	}
	if n := len(turns); n > 0 && turns[n-1].Role == RoleUser {
		message = turns[n-1].Text + "\n\n" + message
		turns = turns[:n-1]
	}
	return turns, message
}
