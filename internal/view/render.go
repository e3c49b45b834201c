package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer executes the embedded page templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	t, err := template.New("").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Page writes the full document.
func (r *Renderer) Page(w io.Writer, p Page) error {
	return r.templates.ExecuteTemplate(w, "page", p)
}

// Chat renders only the message list, as pushed on live updates.
func (r *Renderer) Chat(p Page) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, "chat", p); err != nil {
		return "", err
	}
	return buf.String(), nil
}
