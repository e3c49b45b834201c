package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ai-astrologer/ai-astrologer/internal/apperr"
	"github.com/ai-astrologer/ai-astrologer/internal/store"
	"github.com/ai-astrologer/ai-astrologer/internal/utils"
)

// --- fakes ---

type fakeCompleter struct {
	completeFn func(ctx context.Context, req CompletionRequest) (string, error)
	calls      []CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.completeFn != nil {
		return f.completeFn(ctx, req)
	}
	return "", nil
}

func replying(text string) *fakeCompleter {
	return &fakeCompleter{completeFn: func(context.Context, CompletionRequest) (string, error) {
		return text, nil
	}}
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveGeneration(kind, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, kind+":"+outcome)
}

var _ Completer = (*fakeCompleter)(nil)
var _ GenerationObserver = (*recordingObserver)(nil)

var asha = store.BirthDetails{Name: "Asha", BirthDate: "1990-05-14", BirthTime: "06:30", BirthCity: "Pune"}

func ashaSections() map[string]string {
	return map[string]string{
		"introduction":      "Asha, born at dawn in Pune, your chart shows a steady rise through your late twenties.",
		"major_life_events": "A major relocation is likely around June 2027.",
		"health":            "Keep an eye on digestion during 2026; energy returns by early 2028.",
		"wealth":            "Savings grow steadily over the next five years.",
		"career":            "A leadership role arrives in your mid-thirties, around 2025.",
		"relationships":     "A meaningful partnership deepens in late 2026.",
		"conclusion":        "The 2030s bring lasting stability and recognition.",
	}
}

func ashaJSON(t *testing.T, mutate func(map[string]string)) string {
	t.Helper()
	sections := ashaSections()
	if mutate != nil {
		mutate(sections)
	}
	raw, err := json.Marshal(sections)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func structuredGenerator(llm Completer) *PredictionGenerator {
	return NewPredictionGenerator(llm, GeneratorConfig{Format: FormatStructured, RequireTimeframes: true}, nil)
}

// --- tests ---

func TestGenerate_StructuredHasSevenSectionsWithTimeframes(t *testing.T) {
	llm := replying(ashaJSON(t, nil))
	obs := &recordingObserver{}
	g := NewPredictionGenerator(llm, GeneratorConfig{RequireTimeframes: true}, obs)

	pred, err := g.Generate(context.Background(), asha)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if pred.Sections == nil {
		t.Fatal("expected structured prediction")
	}
	for _, key := range store.SectionKeys {
		text := pred.Sections.Get(key)
		if text == "" {
			t.Errorf("section %q is empty", key)
		}
		if !utils.ContainsTimeframe(text) {
			t.Errorf("section %q has no timeframe: %q", key, text)
		}
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "prediction:ok" {
		t.Errorf("outcomes = %v, want [prediction:ok]", obs.outcomes)
	}
}

func TestGenerate_RequestCarriesSchemaAndBirthDetails(t *testing.T) {
	llm := replying(ashaJSON(t, nil))
	structuredGenerator(llm).Generate(context.Background(), asha)

	if len(llm.calls) != 1 {
		t.Fatalf("calls = %d, want exactly one attempt", len(llm.calls))
	}
	req := llm.calls[0]
	if len(req.ResponseFields) != 7 {
		t.Errorf("ResponseFields = %d, want 7", len(req.ResponseFields))
	}
	for i, f := range req.ResponseFields {
		if f.Name != store.SectionKeys[i] {
			t.Errorf("ResponseFields[%d] = %q, want %q", i, f.Name, store.SectionKeys[i])
		}
	}
	for _, want := range []string{"Name: Asha", "Birth Date: 1990-05-14", "Birth Time: 06:30", "Birth City: Pune"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt %q should contain %q", req.Prompt, want)
		}
	}
	if !strings.Contains(req.System, "B.V. Raman Ayanamsa") {
		t.Error("system instruction should pin the ayanamsa")
	}
}

func TestGenerate_StructuredRejectsBadOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  func(t *testing.T) string
		want string
	}{
		{"not json", func(*testing.T) string { return "The stars say hello." }, "not a JSON object"},
		{"missing key", func(t *testing.T) string {
			return ashaJSON(t, func(m map[string]string) { delete(m, "health") })
		}, "missing sections: health"},
		{"extra key", func(t *testing.T) string {
			return ashaJSON(t, func(m map[string]string) { m["lucky_numbers"] = "7 in 2027" })
		}, "unexpected sections: lucky_numbers"},
		{"empty section", func(t *testing.T) string {
			return ashaJSON(t, func(m map[string]string) { m["wealth"] = "   " })
		}, "empty sections: wealth"},
		{"no timeframe", func(t *testing.T) string {
			return ashaJSON(t, func(m map[string]string) { m["career"] = "You will do well." })
		}, "without a date or timeline: career"},
		{"non-string value", func(*testing.T) string { return `{"introduction": 5}` }, "not a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := structuredGenerator(replying(tt.raw(t))).Generate(context.Background(), asha)
			if !errors.Is(err, apperr.ErrGeneration) {
				t.Fatalf("error = %v, want generation error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestGenerate_TimeframesOptional(t *testing.T) {
	raw := ashaJSON(t, func(m map[string]string) { m["career"] = "You will do well." })
	g := NewPredictionGenerator(replying(raw), GeneratorConfig{RequireTimeframes: false}, nil)

	pred, err := g.Generate(context.Background(), asha)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if pred.Sections.Career != "You will do well." {
		t.Errorf("Career = %q", pred.Sections.Career)
	}
}

func TestGenerate_StripsCodeFenceAndHTML(t *testing.T) {
	raw := "```json\n" + ashaJSON(t, func(m map[string]string) {
		m["health"] = "<b>Rest</b> well during 2026 & beyond."
	}) + "\n```"

	pred, err := structuredGenerator(replying(raw)).Generate(context.Background(), asha)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if pred.Sections.Health != "Rest well during 2026 & beyond." {
		t.Errorf("Health = %q, want markup removed", pred.Sections.Health)
	}
}

func TestGenerate_TextFormat(t *testing.T) {
	llm := replying("  Your career peaks around 2029.  ")
	g := NewPredictionGenerator(llm, GeneratorConfig{Format: FormatText, RequireTimeframes: true}, nil)

	pred, err := g.Generate(context.Background(), asha)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if pred.Sections != nil {
		t.Error("text format should not produce sections")
	}
	if pred.Text != "Your career peaks around 2029." {
		t.Errorf("Text = %q", pred.Text)
	}
	if len(llm.calls[0].ResponseFields) != 0 {
		t.Error("text format should not request a JSON schema")
	}
}

func TestGenerate_TextFormatEmpty(t *testing.T) {
	g := NewPredictionGenerator(replying("  "), GeneratorConfig{Format: FormatText}, nil)

	_, err := g.Generate(context.Background(), asha)
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Errorf("error = %v, want generation error", err)
	}
}

func TestGenerate_CompleterError(t *testing.T) {
	llm := &fakeCompleter{completeFn: func(context.Context, CompletionRequest) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	obs := &recordingObserver{}
	g := NewPredictionGenerator(llm, GeneratorConfig{}, obs)

	_, err := g.Generate(context.Background(), asha)
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("error = %v, want generation error", err)
	}
	if len(llm.calls) != 1 {
		t.Errorf("calls = %d, want no retry", len(llm.calls))
	}
	if obs.outcomes[0] != "prediction:error" {
		t.Errorf("outcome = %q, want prediction:error", obs.outcomes[0])
	}
}

func TestGenerate_Timeout(t *testing.T) {
	llm := &fakeCompleter{completeFn: func(ctx context.Context, _ CompletionRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	g := NewPredictionGenerator(llm, GeneratorConfig{Timeout: 20 * time.Millisecond}, nil)

	_, err := g.Generate(context.Background(), asha)
	if !errors.Is(err, apperr.ErrGeneration) {
		t.Fatalf("error = %v, want generation error", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %q, want timeout mentioned", err)
	}
}
