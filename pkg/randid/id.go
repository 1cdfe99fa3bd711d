// Package randid generates short random identifiers.
package randid

import "math/rand/v2"

const chars = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generate creates a random alphanumeric ID of the specified length.
func Generate(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = chars[rand.IntN(len(chars))]
	}
	return string(b)
}

// WithPrefix returns prefix joined to a random suffix, e.g. "cli-k3x9a2".
func WithPrefix(prefix string, length int) string {
	if prefix == "" {
		return Generate(length)
	}
	return prefix + "-" + Generate(length)
}
