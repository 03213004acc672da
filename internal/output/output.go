// Package output writes one-line CLI status messages, colored when the
// destination is a terminal.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

// Writer prints marked status lines.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer for out. Color is used only for terminals and
// only when NO_COLOR is unset.
func New(out io.Writer) *Writer {
	noColor := ui.DetectNoColor() || !ui.IsTTY(out)
	return &Writer{out: out, styles: ui.GetStyles(noColor)}
}

func (w *Writer) line(mark string, style func(...string) string, msg string) {
	_, _ = fmt.Fprintf(w.out, "%s %s\n", style(mark), msg)
}

// Success prints msg with an ok mark.
func (w *Writer) Success(msg string) { w.line("ok", w.styles.Success.Render, msg) }

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

// Warning prints msg with a warning mark.
func (w *Writer) Warning(msg string) { w.line("!!", w.styles.Warning.Render, msg) }

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

// Info prints msg with a neutral mark.
func (w *Writer) Info(msg string) { w.line("--", w.styles.Label.Render, msg) }

// Infof is Info with formatting.
func (w *Writer) Infof(format string, args ...any) { w.Info(fmt.Sprintf(format, args...)) }

// Hint prints an indented follow-up line, such as a command to run next.
func (w *Writer) Hint(msg string) {
	for _, l := range strings.Split(msg, "\n") {
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Dim.Render(l))
	}
}
