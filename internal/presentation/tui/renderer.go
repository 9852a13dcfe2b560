package tui

import (
	"github.com/charmbracelet/glamour"
)

// Renderer turns Markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer that adapts to the terminal
// background. wrap is the word-wrap width; zero keeps glamour's default.
// If glamour cannot be initialised the Markdown is returned unchanged.
func NewRenderer(wrap int) Renderer {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if wrap > 0 {
		opts = append(opts, glamour.WithWordWrap(wrap))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return PlainRenderer
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// NewPlainStyleRenderer renders with glamour's "notty" style, for pipes
// and tests.
func NewPlainStyleRenderer() Renderer {
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("notty"), glamour.WithWordWrap(0))
	if err != nil {
		return PlainRenderer
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// PlainRenderer returns the Markdown as is.
func PlainRenderer(markdown string) (string, error) {
	return markdown, nil
}
