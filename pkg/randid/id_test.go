package randid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate(t *testing.T) {
	id := Generate(12)
	assert.Len(t, id, 12)
	for _, r := range id {
		assert.True(t, strings.ContainsRune(chars, r), "unexpected rune %q", r)
	}
	assert.NotEqual(t, Generate(12), Generate(12))
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("cli", 6)
	assert.True(t, strings.HasPrefix(id, "cli-"))
	assert.Len(t, id, len("cli-")+6)
	assert.Len(t, WithPrefix("", 6), 6)
}
