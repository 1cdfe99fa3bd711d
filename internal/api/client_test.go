package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	srv := startServer(t)
	c := NewClient(srv.URL + "/")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Endpoints)

	apps, err := c.Directory(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "charts", apps[0].Name)

	history, err := c.History(ctx, "red")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestClient_Unreachable(t *testing.T) {
	srv := startServer(t)
	c := NewClient(srv.URL)
	srv.Close()

	_, err := c.State(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/api/state")
}
