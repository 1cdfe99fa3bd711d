package protocol

import (
	"fmt"
	"strconv"
)

// Context is an application payload with a mandatory "type" discriminator.
// The broker never interprets anything beyond the type.
type Context map[string]any

// Type returns the context type or "" when absent.
func (c Context) Type() string {
	if c == nil {
		return ""
	}
	s, _ := c["type"].(string)
	return s
}

// Lookup returns the top-level field key rendered as a string.
func (c Context) Lookup(key string) (string, bool) {
	v, ok := c[key]
	if !ok || v == nil {
		return "", false
	}
	return stringify(v)
}

// IDField returns the field key of the nested "id" object.
func (c Context) IDField(key string) (string, bool) {
	ids, ok := c["id"].(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := ids[key]
	if !ok || v == nil {
		return "", false
	}
	return stringify(v)
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool, int, int64:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}
