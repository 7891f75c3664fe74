package console

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes styled lines to one writer. Colors are only emitted when the
// writer is a color-capable terminal.
type Printer struct {
	out io.Writer
	st  styles
}

// New returns a printer for w.
func New(w io.Writer) *Printer {
	return &Printer{out: w, st: newStyles(lipgloss.NewRenderer(w))}
}

// Stdout returns a printer for standard output.
func Stdout() *Printer {
	return New(os.Stdout)
}

// Writer exposes the underlying writer for raw output.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Banner prints a boxed title with an optional subtitle.
func (p *Printer) Banner(title, subtitle string) {
	body := p.st.title.Render(title)
	if subtitle != "" {
		body += "\n" + p.st.muted.Render(subtitle)
	}
	fmt.Fprintln(p.out, p.st.banner.Render(body))
}

// Step announces an action that is about to run.
func (p *Printer) Step(format string, args ...interface{}) {
	fmt.Fprintln(p.out, iconLine(p.st.step, IconStep, format, args...))
}

// Success reports a completed action.
func (p *Printer) Success(format string, args ...interface{}) {
	fmt.Fprintln(p.out, iconLine(p.st.success, IconSuccess, format, args...))
}

// Warning reports a recoverable problem.
func (p *Printer) Warning(format string, args ...interface{}) {
	fmt.Fprintln(p.out, iconLine(p.st.warning, IconWarning, format, args...))
}

// Error reports a failure.
func (p *Printer) Error(format string, args ...interface{}) {
	fmt.Fprintln(p.out, iconLine(p.st.err, IconError, format, args...))
}

func (p *Printer) Info(format string, args ...interface{}) {
	fmt.Fprintln(p.out, iconLine(p.st.info, IconInfo, format, args...))
}

// Println writes s unstyled.
func (p *Printer) Println(s string) {
	fmt.Fprintln(p.out, s)
}

// Heading prints a bold section title.
func (p *Printer) Heading(s string) {
	fmt.Fprintln(p.out, p.st.title.Render(s))
}

// Hint prints a command and what it does.
func (p *Printer) Hint(command, description string) {
	fmt.Fprintf(p.out, "  %s  %s\n", p.st.command.Render(command), p.st.muted.Render(description))
}
