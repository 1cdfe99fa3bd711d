package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

func TestWebsocket_RoundTrip(t *testing.T) {
	log := zerolog.New(io.Discard)
	accepted := make(chan *WSConn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r, log)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		accepted <- conn
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), log)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, client.Send(protocol.Envelope{Topic: protocol.TopicJoinChannel, Channel: "red"}))
	env, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TopicJoinChannel, env.Topic)
	assert.Equal(t, "red", env.Channel)

	require.NoError(t, server.Send(protocol.Envelope{Topic: protocol.TopicContext, Context: protocol.Context{"type": "fdc3.instrument"}}))
	env, err = client.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fdc3.instrument", env.Context.Type())

	require.NoError(t, server.Close())
	_, err = client.Recv(ctx)
	assert.Error(t, err)
}
