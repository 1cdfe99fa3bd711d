// Package printer writes styled status output for CLI commands.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/deskbus/internal/styles"
)

// Symbols
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
	Arrow = "→"
)

type ctxKey struct{}

// Printer handles formatted output.
type Printer struct {
	writer io.Writer
}

// New creates a Printer that writes to w.
func New(w io.Writer) *Printer {
	return &Printer{writer: w}
}

// NewContext returns a context with the printer attached.
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx retrieves the printer from context, or creates a default one.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

func (p *Printer) line(s string) {
	_, _ = io.WriteString(p.writer, s+"\n")
}

// FatalError prints an error box. It does not exit.
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		p.printValidationErrors(err, fieldErrs)
		return
	}

	bar := styles.ErrorStyle.Render("│")
	p.line(styles.ErrorStyle.Render("╭ Error"))
	for _, l := range strings.Split(err.Error(), "\n") {
		p.line(bar + " " + styles.MutedStyle.Render(l))
	}
	p.line(styles.ErrorStyle.Render("╵"))
}

func (p *Printer) printValidationErrors(wrapped error, fieldErrs criterio.FieldErrors) {
	errStr := wrapped.Error()
	prefix := ""
	if idx := strings.Index(errStr, fieldErrs.Error()); idx > 0 {
		prefix = strings.TrimSuffix(errStr[:idx], ": ")
	}

	bar := styles.ErrorStyle.Render("│")
	p.line(styles.ErrorStyle.Render("╭ Validation Error"))
	if prefix != "" {
		p.line(bar + " " + styles.MutedStyle.Render(prefix))
		p.line(bar)
	}

	for _, fe := range fieldErrs {
		l := bar + " " + styles.ErrorStyle.Render(Cross) + " "
		if fe.Field != "" {
			l += styles.MutedStyle.Render(fe.Field + ": ")
		}
		p.line(l + fe.Err.Error())
	}
	p.line(styles.ErrorStyle.Render("╵"))
}

// Errorf prints an error message.
func (p *Printer) Errorf(format string, args ...any) {
	p.line(styles.ErrorStyle.Render(Cross + " " + fmt.Sprintf(format, args...)))
}

// Successf prints a success message.
func (p *Printer) Successf(format string, args ...any) {
	p.line(styles.SuccessStyle.Render(Check + " " + fmt.Sprintf(format, args...)))
}

// Infof prints a muted message.
func (p *Printer) Infof(format string, args ...any) {
	p.line(styles.MutedStyle.Render(Dot + " " + fmt.Sprintf(format, args...)))
}

// Warnf prints a warning.
func (p *Printer) Warnf(format string, args ...any) {
	p.line(styles.WarnStyle.Render(Dot + " " + fmt.Sprintf(format, args...)))
}

// Printf prints a plain line.
func (p *Printer) Printf(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}

// Event prints one received broker event, e.g. "→ context fdc3.instrument".
func (p *Printer) Event(kind, detail string) {
	p.line(styles.TitleStyle.Render(Arrow+" "+kind) + " " + detail)
}

// Section prints a section header.
func (p *Printer) Section(title string) {
	p.line(styles.SectionStyle.Render(title))
}

// CheckItem prints a passing item.
func (p *Printer) CheckItem(label, detail string) {
	p.item(styles.SuccessStyle.Render(Check), label, detail)
}

// WarnItem prints a warning item.
func (p *Printer) WarnItem(label, detail string) {
	p.item(styles.WarnStyle.Render(Dot), label, detail)
}

// FailItem prints a failing item.
func (p *Printer) FailItem(label, detail string) {
	p.item(styles.ErrorStyle.Render(Cross), label, detail)
}

func (p *Printer) item(symbol, label, detail string) {
	l := "  " + symbol + " " + label
	if detail != "" {
		l += ": " + detail
	}
	p.line(l)
}
