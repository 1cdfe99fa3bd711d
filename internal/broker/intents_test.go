package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

func TestIntentRegistry_RegisterKeepsOrderAndDedupes(t *testing.T) {
	r := newIntentRegistry()
	a := testEndpoint("a", "")
	b := testEndpoint("b", "")
	reconnected := testEndpoint("a", "")

	assert.True(t, r.register("ViewChart", a))
	assert.True(t, r.register("ViewChart", b))
	assert.False(t, r.register("ViewChart", a))
	assert.True(t, r.register("ViewChart", reconnected), "same identity, different endpoint")

	assert.Equal(t, []*endpoint{a, b, reconnected}, r.listenersFor("ViewChart"))
	assert.Empty(t, r.listenersFor("StartChat"))
}

func TestIntentRegistry_PruneEndpoint(t *testing.T) {
	r := newIntentRegistry()
	a := testEndpoint("a", "")
	b := testEndpoint("b", "")
	r.register("ViewChart", a)
	r.register("ViewChart", b)
	r.register("StartChat", a)

	r.pruneEndpoint("a")
	r.pruneEndpoint("a")
	r.pruneEndpoint("never-registered")

	assert.Equal(t, []*endpoint{b}, r.listenersFor("ViewChart"))
	assert.Empty(t, r.listenersFor("StartChat"))
	assert.Empty(t, r.intentsFor(a))
}

func TestIntentRegistry_DispatchFirstOnly(t *testing.T) {
	r := newIntentRegistry()
	a := testEndpoint("a", "")
	b := testEndpoint("b", "")
	r.register("ViewChart", a)
	r.register("ViewChart", b)

	var got []string
	send := func(ep *endpoint, _ protocol.Envelope) { got = append(got, ep.identity) }

	target, ok := r.dispatch("ViewChart", protocol.Envelope{Topic: protocol.TopicIntent}, send)
	assert.True(t, ok)
	assert.Same(t, a, target)
	assert.Equal(t, []string{"a"}, got)

	_, ok = r.dispatch("Nothing", protocol.Envelope{}, send)
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, got, "no listeners is a silent no-op")
}
