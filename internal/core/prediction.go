package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
	"github.com/ai-astrologer/ai-astrologer/internal/utils"
)

const (
	FormatStructured = "structured"
	FormatText       = "text"

	DefaultLLMTimeout = 60 * time.Second
)

const structuredSystemInstruction = "You are an expert astrologer. Your analysis MUST strictly use the B.V. Raman Ayanamsa system ONLY. " +
	"Analyze the birth details you are given and provide major life predictions. " +
	"For EVERY section of the prediction (introduction, major_life_events, health, wealth, career, relationships, conclusion), " +
	"you MUST include specific dates, date ranges, or general timelines (e.g., \"in your late twenties\", \"around June 2025\"). " +
	"Respond ONLY with a valid JSON object matching the response schema. " +
	"Do not use any markdown formatting like '*' or '#' in the text."

const textSystemInstruction = "You are an expert astrologer. Your analysis MUST strictly use the B.V. Raman Ayanamsa system ONLY. " +
	"Analyze the birth details you are given and write one paragraph of major life predictions covering health, wealth, career and relationships. " +
	"Every prediction MUST include a specific date, date range, or general timeline (e.g., \"in your late twenties\", \"around June 2025\"). " +
	"Respond with plain text only. Do not use any markdown formatting like '*' or '#'."

var sectionFields = []SchemaField{
	{Name: store.SectionIntroduction, Description: "An introduction to the astrological reading."},
	{Name: store.SectionMajorLifeEvents, Description: "Predictions about major life events."},
	{Name: store.SectionHealth, Description: "Predictions related to health."},
	{Name: store.SectionWealth, Description: "Predictions related to wealth and finance."},
	{Name: store.SectionCareer, Description: "Predictions related to career and professional life."},
	{Name: store.SectionRelationships, Description: "Predictions related to personal relationships."},
	{Name: store.SectionConclusion, Description: "A concluding summary of the reading."},
}

// GenerationObserver receives one call per LLM invocation.
type GenerationObserver interface {
	ObserveGeneration(kind string, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveGeneration(string, string, time.Duration) {}

type GeneratorConfig struct {
	Format            string
	RequireTimeframes bool
	Timeout           time.Duration
}

// PredictionGenerator turns birth details into a reading with one LLM call.
type PredictionGenerator struct {
	llm       Completer
	cfg       GeneratorConfig
	sanitizer *bluemonday.Policy
	observer  GenerationObserver
}

func NewPredictionGenerator(llm Completer, cfg GeneratorConfig, observer GenerationObserver) *PredictionGenerator {
	if cfg.Format == "" {
		cfg.Format = FormatStructured
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLLMTimeout
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &PredictionGenerator{
		llm:       llm,
		cfg:       cfg,
		sanitizer: bluemonday.StrictPolicy(),
		observer:  observer,
	}
}

func (g *PredictionGenerator) Generate(ctx context.Context, d store.BirthDetails) (*store.Prediction, error) {
	const op = "prediction.Generate"

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req := CompletionRequest{Prompt: birthPrompt(d)}
	if g.cfg.Format == FormatText {
		req.System = textSystemInstruction
	} else {
		req.System = structuredSystemInstruction
		req.ResponseFields = sectionFields
	}

	start := time.Now()
	raw, err := g.llm.Complete(ctx, req)
	if err != nil {
		g.observer.ObserveGeneration("prediction", "error", time.Since(start))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperr.Generation(op, fmt.Errorf("timed out after %s: %w", g.cfg.Timeout, err))
		}
		return nil, apperr.Generation(op, err)
	}

	var pred *store.Prediction
	if g.cfg.Format == FormatText {
		pred, err = g.parseText(raw)
	} else {
		pred, err = g.parseStructured(raw)
	}
	if err != nil {
		g.observer.ObserveGeneration("prediction", "invalid", time.Since(start))
		return nil, apperr.Generation(op, err)
	}
	g.observer.ObserveGeneration("prediction", "ok", time.Since(start))
	return pred, nil
}

func birthPrompt(d store.BirthDetails) string {
	return fmt.Sprintf("Name: %s\nBirth Date: %s\nBirth Time: %s\nBirth City: %s", d.Name, d.BirthDate, d.BirthTime, d.BirthCity)
}

func (g *PredictionGenerator) parseText(raw string) (*store.Prediction, error) {
	text := g.clean(raw)
	if text == "" {
		return nil, errors.New("model returned an empty reading")
	}
	if g.cfg.RequireTimeframes && !utils.ContainsTimeframe(text) {
		return nil, errors.New("reading names no date or timeline")
	}
	return &store.Prediction{Text: text}, nil
}

// parseStructured accepts exactly the seven section keys with string values.
func (g *PredictionGenerator) parseStructured(raw string) (*store.Prediction, error) {
	body := stripCodeFence(raw)

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if dec.More() {
		return nil, errors.New("response has trailing data after the JSON object")
	}

	var sections store.Sections
	var unknown, missing, empty, untimed []string
	seen := make(map[string]bool, len(fields))
	for key, value := range fields {
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			return nil, fmt.Errorf("section %q is not a string", key)
		}
		if !sections.Set(key, g.clean(text)) {
			unknown = append(unknown, key)
			continue
		}
		seen[key] = true
	}
	for _, key := range store.SectionKeys {
		switch text := sections.Get(key); {
		case !seen[key]:
			missing = append(missing, key)
		case text == "":
			empty = append(empty, key)
		case g.cfg.RequireTimeframes && !utils.ContainsTimeframe(text):
			untimed = append(untimed, key)
		}
	}

	sort.Strings(unknown)
	switch {
	case len(unknown) > 0:
		return nil, fmt.Errorf("unexpected sections: %s", strings.Join(unknown, ", "))
	case len(missing) > 0:
		return nil, fmt.Errorf("missing sections: %s", strings.Join(missing, ", "))
	case len(empty) > 0:
		return nil, fmt.Errorf("empty sections: %s", strings.Join(empty, ", "))
	case len(untimed) > 0:
		return nil, fmt.Errorf("sections without a date or timeline: %s", strings.Join(untimed, ", "))
	}
	return &store.Prediction{Sections: &sections}, nil
}

// clean removes any HTML the model produced and trims the result.
func (g *PredictionGenerator) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(g.sanitizer.Sanitize(s)))
}

// stripCodeFence unwraps ```json ... ``` blocks some models add around JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
