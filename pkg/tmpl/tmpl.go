// Package tmpl renders the shell command templates that drive the desktop
// host.
package tmpl

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/template"
)

// shellQuote wraps s in single quotes, escaping embedded quotes as '\''.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var funcs = template.FuncMap{
	"shq":  shellQuote,
	"urlq": url.QueryEscape,
}

func parse(text string) (*template.Template, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

// Render executes text with data. Undefined keys are errors.
//
// Functions:
//   - shq: shell-quote a value
//   - urlq: query-escape a value
func Render(text string, data any) (string, error) {
	t, err := parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// Validate parses text and dry-runs it against the zero value of the data
// it will be rendered with.
func Validate(text string, data any) error {
	t, err := parse(text)
	if err != nil {
		return err
	}
	return t.Execute(io.Discard, data)
}
