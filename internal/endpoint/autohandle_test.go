package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name   string
		tmpl   string
		values map[string]string
		want   string
	}{
		{name: "no params", tmpl: "https://x/${a}", want: "https://x/${a}"},
		{name: "single", tmpl: "https://x/${a}", values: map[string]string{"a": "1"}, want: "https://x/1"},
		{name: "repeated", tmpl: "${a}-${a}-${b}", values: map[string]string{"a": "1", "b": "2"}, want: "1-1-2"},
		{name: "unresolved kept", tmpl: "${a}/${c}", values: map[string]string{"a": "1"}, want: "1/${c}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expand(tt.tmpl, tt.values))
		})
	}
}

func TestTargets(t *testing.T) {
	m := &protocol.Manifest{
		Intents: []protocol.ManifestIntent{
			{Intent: "ViewChart", Type: "fdc3.index", Template: "index"},
			{Intent: "ViewChart", Type: "fdc3.instrument", Template: "chart"},
			{Intent: "ViewNews", Template: "missing"},
		},
		Contexts: []protocol.ManifestContext{{Type: "fdc3.contact", Template: "contact"}},
		Params: map[string]protocol.Param{
			"ticker": {Type: "fdc3.instrument", ID: "ticker"},
			"email":  {Type: "fdc3.contact", Key: "email"},
		},
		Templates: map[string]string{
			"index":   "https://x/index",
			"chart":   "https://x/chart/${ticker}",
			"contact": "https://x/contact/${email}",
		},
	}

	instrument := protocol.Context{"type": "fdc3.instrument", "id": map[string]any{"ticker": "AAPL"}}

	url, ok := intentTarget(m, "ViewChart", instrument)
	assert.True(t, ok)
	assert.Equal(t, "https://x/chart/AAPL", url)

	url, ok = intentTarget(m, "ViewChart", protocol.Context{"type": "fdc3.other"})
	assert.True(t, ok)
	assert.Equal(t, "https://x/index", url)

	_, ok = intentTarget(m, "ViewNews", instrument)
	assert.False(t, ok)

	_, ok = intentTarget(m, "Unknown", instrument)
	assert.False(t, ok)

	url, ok = contextTarget(m, protocol.Context{"type": "fdc3.contact", "email": "a@b.c"})
	assert.True(t, ok)
	assert.Equal(t, "https://x/contact/a@b.c", url)

	_, ok = contextTarget(m, instrument)
	assert.False(t, ok)

	assert.Equal(t, []string{"ViewChart", "ViewNews"}, manifestIntents(m))
}

func TestTargets_NumericID(t *testing.T) {
	m := &protocol.Manifest{
		Contexts:  []protocol.ManifestContext{{Type: "fdc3.contact", Template: "contact"}},
		Params:    map[string]protocol.Param{"crm": {Type: "fdc3.contact", ID: "crm"}},
		Templates: map[string]string{"contact": "https://crm.local/contact/${crm}"},
	}

	// Decoded JSON numbers arrive as float64.
	url, ok := contextTarget(m, protocol.Context{"type": "fdc3.contact", "id": map[string]any{"crm": float64(1234567)}})
	assert.True(t, ok)
	assert.Equal(t, "https://crm.local/contact/1234567", url)
}
