package endpoint

import (
	"strings"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// Navigator moves the hosting window to a new location. It backs the
// handlers an application declares in its manifest.
type Navigator interface {
	Location() string
	Navigate(url string) error
	Focus() error
}

// manifestIntents returns the distinct intent names a manifest handles.
func manifestIntents(m *protocol.Manifest) []string {
	var out []string
	seen := make(map[string]bool)
	for _, mi := range m.Intents {
		if mi.Intent == "" || seen[mi.Intent] {
			continue
		}
		seen[mi.Intent] = true
		out = append(out, mi.Intent)
	}
	return out
}

// params resolves the manifest's named parameters against ctx. Parameters
// whose type does not match the context, or whose key is absent, are left
// unset.
func params(m *protocol.Manifest, ctx protocol.Context) map[string]string {
	out := make(map[string]string, len(m.Params))
	for name, p := range m.Params {
		if p.Type != "" && p.Type != ctx.Type() {
			continue
		}
		if p.Key != "" {
			if v, ok := ctx.Lookup(p.Key); ok {
				out[name] = v
			}
			continue
		}
		if p.ID != "" {
			if v, ok := ctx.IDField(p.ID); ok {
				out[name] = v
			}
		}
	}
	return out
}

// expand replaces each ${name} in tmpl with its parameter value.
// Unresolved placeholders are left untouched.
func expand(tmpl string, values map[string]string) string {
	if len(values) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "${"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// contextTarget returns the URL a manifest maps ctx to.
func contextTarget(m *protocol.Manifest, ctx protocol.Context) (string, bool) {
	for _, mc := range m.Contexts {
		if mc.Type != ctx.Type() {
			continue
		}
		tmpl, ok := m.Templates[mc.Template]
		if !ok {
			return "", false
		}
		return expand(tmpl, params(m, ctx)), true
	}
	return "", false
}

// intentTarget returns the URL a manifest maps a raised intent to. When
// several declarations share the intent name, the one whose context type
// matches wins, otherwise the first.
func intentTarget(m *protocol.Manifest, intent string, ctx protocol.Context) (string, bool) {
	var match *protocol.ManifestIntent
	for i := range m.Intents {
		mi := &m.Intents[i]
		if mi.Intent != intent {
			continue
		}
		if match == nil {
			match = mi
		}
		if mi.Type != "" && mi.Type == ctx.Type() {
			match = mi
			break
		}
	}
	if match == nil {
		return "", false
	}

	tmpl, ok := m.Templates[match.Template]
	if !ok {
		return "", false
	}
	return expand(tmpl, params(m, ctx)), true
}

func (a *Adapter) navigate(url string) {
	nav := a.opts.Navigator
	if nav == nil {
		return
	}
	if url != nav.Location() {
		if err := nav.Navigate(url); err != nil {
			a.log.Warn().Err(err).Str("url", url).Msg("navigate failed")
			return
		}
	}
	if err := nav.Focus(); err != nil {
		a.log.Debug().Err(err).Msg("focus failed")
	}
}

func (a *Adapter) autoHandleContext(m *protocol.Manifest, ctx protocol.Context) {
	if m == nil {
		return
	}
	if url, ok := contextTarget(m, ctx); ok {
		a.navigate(url)
	}
}

func (a *Adapter) autoHandleIntent(m *protocol.Manifest, intent string, ctx protocol.Context) {
	if m == nil {
		return
	}
	if url, ok := intentTarget(m, intent, ctx); ok {
		a.navigate(url)
	}
}
