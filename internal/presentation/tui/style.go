package tui

import (
	"io"

	"github.com/muesli/termenv"
)

// Palette colours status text for one output stream. On a pipe or a dumb
// terminal every method returns its input unchanged.
type Palette struct {
	out *termenv.Output
}

// NewPalette detects the colour profile of w.
func NewPalette(w io.Writer) Palette {
	return Palette{out: termenv.NewOutput(w)}
}

// NewPaletteWithProfile forces a colour profile.
func NewPaletteWithProfile(w io.Writer, p termenv.Profile) Palette {
	return Palette{out: termenv.NewOutput(w, termenv.WithProfile(p))}
}

func (p Palette) fg(s, color string) string {
	return p.out.String(s).Foreground(p.out.Color(color)).String()
}

func (p Palette) OK(s string) string   { return p.fg(s, "#22c55e") }
func (p Palette) Fail(s string) string { return p.fg(s, "#ef4444") }
func (p Palette) Warn(s string) string { return p.fg(s, "#f59e0b") }
func (p Palette) Info(s string) string { return p.fg(s, "#38bdf8") }

func (p Palette) Muted(s string) string {
	return p.out.String(s).Faint().String()
}

func (p Palette) Bold(s string) string {
	return p.out.String(s).Bold().String()
}
