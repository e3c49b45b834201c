package view

import (
	"strings"

	"github.com/ai-astrologer/ai-astrologer/internal/store"
)

// Card is one titled section of a structured reading.
type Card struct {
	Key   string   `json:"key"`
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// Cards lays out the non-empty sections in canonical order.
func Cards(p *store.Prediction) []Card {
	if p == nil || p.Sections == nil {
		return nil
	}
	var cards []Card
	for _, key := range store.SectionKeys {
		text := strings.TrimSpace(p.Sections.Get(key))
		if text == "" {
			continue
		}
		cards = append(cards, Card{
			Key:   key,
			Title: store.SectionTitle(key),
			Lines: BreakLines(text),
		})
	}
	return cards
}

// BreakLines turns "**" into a paragraph break and "*" into a line break.
func BreakLines(text string) []string {
	text = strings.ReplaceAll(text, "**", "\n\n")
	text = strings.ReplaceAll(text, "*", "\n")
	return strings.Split(text, "\n")
}
