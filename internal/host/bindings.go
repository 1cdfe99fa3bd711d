package host

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hay-kot/deskbus/internal/core/config"
)

// Bindings maps endpoint identities to directory applications by glob
// pattern. The first matching binding wins.
type Bindings struct {
	rules []config.Binding
}

// NewBindings validates every pattern.
func NewBindings(rules []config.Binding) (*Bindings, error) {
	for i, r := range rules {
		if !doublestar.ValidatePattern(r.Pattern) {
			return nil, fmt.Errorf("bindings[%d]: invalid pattern %q", i, r.Pattern)
		}
		if r.App == "" {
			return nil, fmt.Errorf("bindings[%d]: app cannot be empty", i)
		}
	}
	return &Bindings{rules: rules}, nil
}

// Match returns the application bound to identity.
func (b *Bindings) Match(identity string) (string, bool) {
	for _, r := range b.rules {
		if ok, _ := doublestar.Match(r.Pattern, identity); ok {
			return r.App, true
		}
	}
	return "", false
}
