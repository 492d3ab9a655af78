// Package style colours terminal output. Colour is applied only when the
// destination is a terminal.
package style

import (
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Palette renders styled text, or plain text when disabled.
type Palette struct {
	enabled bool
}

// For returns a palette that colours only when w is a terminal.
func For(w io.Writer) Palette {
	return Palette{enabled: ShouldColorize(w)}
}

// Plain returns a palette that never colours.
func Plain() Palette { return Palette{} }

// Forced returns a palette that always colours.
func Forced() Palette { return Palette{enabled: true} }

// Enabled reports whether the palette emits escape codes.
func (p Palette) Enabled() bool { return p.enabled }

func (p Palette) render(text string, attrs ...color.Attribute) string {
	if !p.enabled {
		return text
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}

func (p Palette) Red(text string) string    { return p.render(text, color.FgRed, color.Bold) }
func (p Palette) Green(text string) string  { return p.render(text, color.FgGreen, color.Bold) }
func (p Palette) Yellow(text string) string { return p.render(text, color.FgYellow, color.Bold) }
func (p Palette) Blue(text string) string   { return p.render(text, color.FgBlue, color.Bold) }
func (p Palette) Purple(text string) string { return p.render(text, color.FgMagenta, color.Bold) }
func (p Palette) Bold(text string) string   { return p.render(text, color.Bold) }

func (p Palette) Underline(text string) string { return p.render(text, color.Underline) }

// ErrorText prefixes message with a bold red ERROR.
func (p Palette) ErrorText(message string) string {
	return p.Red("ERROR") + ": " + message
}

// Title renders a section header such as "== Task Status ==".
func (p Palette) Title(title string) string {
	title = cases.Title(language.Und).String(strings.TrimSpace(title))
	return p.Blue("== " + title + " ==")
}

// ShouldColorize reports whether writer is a terminal and NO_COLOR is unset.
func ShouldColorize(writer io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
