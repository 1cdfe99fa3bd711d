package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Accessors(t *testing.T) {
	var ctx Context
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "fdc3.instrument",
		"name": "Apple",
		"size": 10,
		"price": 187.25,
		"id": {"ticker": "AAPL", "ISIN": "", "crm": 1234567}
	}`), &ctx))

	assert.Equal(t, "fdc3.instrument", ctx.Type())

	name, ok := ctx.Lookup("name")
	assert.True(t, ok)
	assert.Equal(t, "Apple", name)

	size, ok := ctx.Lookup("size")
	assert.True(t, ok)
	assert.Equal(t, "10", size)

	price, ok := ctx.Lookup("price")
	assert.True(t, ok)
	assert.Equal(t, "187.25", price)

	crm, ok := ctx.IDField("crm")
	assert.True(t, ok)
	assert.Equal(t, "1234567", crm, "large numbers render without an exponent")

	ticker, ok := ctx.IDField("ticker")
	assert.True(t, ok)
	assert.Equal(t, "AAPL", ticker)

	_, ok = ctx.IDField("ISIN")
	assert.False(t, ok, "empty values do not resolve")

	_, ok = ctx.Lookup("missing")
	assert.False(t, ok)
}

func TestContext_NilType(t *testing.T) {
	var ctx Context
	assert.Empty(t, ctx.Type())
	_, ok := ctx.IDField("ticker")
	assert.False(t, ok)
}
