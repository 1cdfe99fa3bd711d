package endpoint

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/transport"
)

type fakeBroker struct {
	t    *testing.T
	conn transport.Conn
}

func (b *fakeBroker) recv() protocol.Envelope {
	b.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, err := b.conn.Recv(ctx)
	require.NoError(b.t, err)
	return env
}

func (b *fakeBroker) expectNothing() {
	b.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	env, err := b.conn.Recv(ctx)
	require.Error(b.t, err, "unexpected envelope %+v", env)
}

func (b *fakeBroker) send(env protocol.Envelope) {
	b.t.Helper()
	require.NoError(b.t, b.conn.Send(env))
}

func (b *fakeBroker) ready(env protocol.EnvironmentData) {
	b.t.Helper()
	msg, err := protocol.Envelope{Topic: protocol.TopicEnvironmentData}.WithData(env)
	require.NoError(b.t, err)
	b.send(msg)
}

func (b *fakeBroker) reply(req protocol.Envelope, topic protocol.Topic, v any) {
	b.t.Helper()
	msg, err := protocol.Envelope{Topic: topic, ID: req.ID}.WithData(v)
	require.NoError(b.t, err)
	b.send(msg)
}

func startAdapter(t *testing.T, opts Options) (*Adapter, *fakeBroker, <-chan error) {
	t.Helper()

	client, server := transport.Pipe(64)
	a := New(client, zerolog.New(io.Discard), opts)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		errc <- a.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		_ = a.Close()
		<-stopped
	})

	return a, &fakeBroker{t: t, conn: server}, errc
}

func waitReady(t *testing.T, a *Adapter) {
	t.Helper()
	select {
	case <-a.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("adapter never became ready")
	}
}

type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

func (r *recorder[T]) get() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

func TestAdapter_QueuesUntilReady(t *testing.T) {
	readyCalls := &recorder[string]{}
	a, b, _ := startAdapter(t, Options{
		OnReady: func(env protocol.EnvironmentData) { readyCalls.add(env.Identity) },
	})

	require.NoError(t, a.Broadcast(protocol.Context{"type": "fdc3.instrument"}))
	_, err := a.AddContextListener("fdc3.contact", func(protocol.Context) {})
	require.NoError(t, err)
	b.expectNothing()

	b.ready(protocol.EnvironmentData{
		Identity:       "w1",
		CurrentChannel: "red",
		Manifest: &protocol.Manifest{
			Intents: []protocol.ManifestIntent{
				{Intent: "ViewChart", Type: "fdc3.instrument"},
				{Intent: "ViewChart", Type: "fdc3.index"},
			},
			Contexts: []protocol.ManifestContext{{Type: "fdc3.contact"}},
		},
	})

	got := []protocol.Envelope{b.recv(), b.recv(), b.recv(), b.recv(), b.recv()}
	assert.Equal(t, protocol.TopicBroadcast, got[0].Topic)
	assert.Equal(t, protocol.TopicAddContextListener, got[1].Topic)
	assert.Equal(t, protocol.TopicAddIntentListener, got[2].Topic)
	assert.Equal(t, "ViewChart", got[2].Intent)
	assert.Equal(t, protocol.TopicAddContextListener, got[3].Topic)
	assert.Equal(t, "fdc3.contact", got[3].ContextType)
	assert.Equal(t, protocol.TopicJoinChannel, got[4].Topic)
	assert.Equal(t, "red", got[4].Channel)
	b.expectNothing()

	waitReady(t, a)
	assert.Equal(t, "red", a.CurrentChannel())
	assert.Eventually(t, func() bool { return len(readyCalls.get()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAdapter_Requests(t *testing.T) {
	a, b, _ := startAdapter(t, Options{})
	b.ready(protocol.EnvironmentData{Identity: "w1"})
	waitReady(t, a)

	t.Run("open", func(t *testing.T) {
		go func() {
			req := b.recv()
			assert.Equal(t, protocol.TopicOpen, req.Topic)
			b.reply(req, protocol.TopicResponse, protocol.DirectoryEntry{Name: req.Name, StartURL: "https://x"})
		}()

		entry, err := a.Open(context.Background(), "charts")
		require.NoError(t, err)
		assert.Equal(t, "charts", entry.Name)
	})

	t.Run("error response", func(t *testing.T) {
		go func() {
			req := b.recv()
			b.send(protocol.Envelope{Topic: protocol.TopicResponse, ID: req.ID, Error: protocol.Errorf(protocol.CodeNoHandlerFound, "none")})
		}()

		_, err := a.RaiseIntent(context.Background(), "ViewChart", protocol.Context{"type": "fdc3.instrument"})
		require.ErrorIs(t, err, protocol.ErrNoHandlerFound)
	})

	t.Run("find intents", func(t *testing.T) {
		go func() {
			req := b.recv()
			b.reply(req, protocol.TopicReturnFindIntentsByContext, []protocol.AppIntent{
				{Intent: protocol.IntentMetadata{Name: "ViewChart"}},
			})
		}()

		got, err := a.FindIntentsByContext(context.Background(), protocol.Context{"type": "fdc3.instrument"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "ViewChart", got[0].Intent.Name)
	})

	t.Run("caller cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			_ = b.recv()
			cancel()
		}()

		_, err := a.FindIntent(ctx, "ViewChart", nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, a.Pending())
	})
}

func TestAdapter_DisconnectFailsPending(t *testing.T) {
	a, b, done := startAdapter(t, Options{})
	b.ready(protocol.EnvironmentData{Identity: "w1"})
	waitReady(t, a)

	errs := make(chan error, 1)
	go func() {
		_, err := a.Open(context.Background(), "charts")
		errs <- err
	}()
	_ = b.recv()
	require.NoError(t, b.conn.Close())

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request never failed")
	}
	require.NoError(t, <-done)

	require.ErrorIs(t, a.Broadcast(protocol.Context{"type": "x"}), ErrDisconnected)
	_, err := a.AddIntentListener("ViewChart", func(string, protocol.Context) {})
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestAdapter_ContextListeners(t *testing.T) {
	a, b, _ := startAdapter(t, Options{})

	all := &recorder[string]{}
	contacts := &recorder[string]{}
	_, err := a.AddContextListener("", func(c protocol.Context) { all.add(c.Type()) })
	require.NoError(t, err)
	l, err := a.AddContextListener("fdc3.contact", func(c protocol.Context) { contacts.add(c.Type()) })
	require.NoError(t, err)

	b.ready(protocol.EnvironmentData{Identity: "w1"})
	_, _ = b.recv(), b.recv()

	b.send(protocol.Envelope{Topic: protocol.TopicContext, Context: protocol.Context{"type": "fdc3.instrument", "name": "IBM"}})
	b.send(protocol.Envelope{Topic: protocol.TopicContext, Context: protocol.Context{"type": "fdc3.contact"}})

	assert.Eventually(t, func() bool { return len(all.get()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"fdc3.instrument", "fdc3.contact"}, all.get())
	assert.Equal(t, []string{"fdc3.contact"}, contacts.get())

	c, ok := a.CurrentContext("fdc3.instrument")
	require.True(t, ok)
	assert.Equal(t, "IBM", c["name"])
	c, ok = a.CurrentContext("")
	require.True(t, ok)
	assert.Equal(t, "fdc3.contact", c.Type())

	l.Unsubscribe()
	b.send(protocol.Envelope{Topic: protocol.TopicContext, Context: protocol.Context{"type": "fdc3.contact"}})
	assert.Eventually(t, func() bool { return len(all.get()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Len(t, contacts.get(), 1)

	require.NoError(t, a.JoinChannel("blue"))
	_, ok = a.CurrentContext("")
	assert.False(t, ok)
	assert.Equal(t, protocol.TopicJoinChannel, b.recv().Topic)
}

func TestAdapter_JoinKeepsReplayedContext(t *testing.T) {
	a, b, _ := startAdapter(t, Options{})
	b.ready(protocol.EnvironmentData{Identity: "w1"})
	waitReady(t, a)

	channels := []string{"red", "blue"}
	for i := range 50 {
		channel := channels[i%2]

		replayed := make(chan struct{})
		go func() {
			defer close(replayed)
			join := b.recv()
			b.send(protocol.Envelope{
				Topic:   protocol.TopicContext,
				Channel: join.Channel,
				Context: protocol.Context{"type": "fdc3.instrument", "name": join.Channel},
			})
		}()

		require.NoError(t, a.JoinChannel(channel))
		<-replayed

		require.Eventually(t, func() bool {
			c, ok := a.CurrentContext("fdc3.instrument")
			return ok && c["name"] == channel
		}, time.Second, time.Millisecond, "join %d lost the replay for %s", i, channel)
	}
}

type scriptedResolver struct {
	pick int
}

func (r scriptedResolver) Choose(_ context.Context, req protocol.ResolverRequest) (protocol.Candidate, bool, error) {
	if r.pick < 0 || r.pick >= len(req.Candidates) {
		return protocol.Candidate{}, false, nil
	}
	return req.Candidates[r.pick], true, nil
}

func TestAdapter_Resolver(t *testing.T) {
	candidates := []protocol.Candidate{
		{Kind: protocol.CandidateWindow, Endpoint: "w2", Title: "Charts"},
		{Kind: protocol.CandidateApp, App: "news", Title: "News"},
	}

	tests := []struct {
		name     string
		resolver ResolverUI
		topic    protocol.Topic
		want     string
	}{
		{name: "default picks first", topic: protocol.TopicResolverSelect, want: "w2"},
		{name: "user picks second", resolver: scriptedResolver{pick: 1}, topic: protocol.TopicResolverSelect, want: "news"},
		{name: "user dismisses", resolver: scriptedResolver{pick: -1}, topic: protocol.TopicResolverClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, _ := startAdapter(t, Options{Resolver: tt.resolver})
			b.ready(protocol.EnvironmentData{Identity: "w1"})
			waitReady(t, a)

			msg, err := protocol.Envelope{Topic: protocol.TopicResolver, ID: "r1"}.WithData(protocol.ResolverRequest{
				Intent:     "ViewChart",
				Candidates: candidates,
			})
			require.NoError(t, err)
			b.send(msg)

			got := b.recv()
			assert.Equal(t, tt.topic, got.Topic)
			assert.Equal(t, "r1", got.ID)
			if tt.want == "" {
				return
			}

			var choice protocol.Candidate
			require.NoError(t, got.Decode(&choice))
			assert.Equal(t, tt.want, choice.Endpoint+choice.App)
		})
	}
}

type fakeNavigator struct {
	mu       sync.Mutex
	location string
	visits   []string
	focused  int
}

func (n *fakeNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *fakeNavigator) Navigate(url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = url
	n.visits = append(n.visits, url)
	return nil
}

func (n *fakeNavigator) Focus() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.focused++
	return nil
}

func (n *fakeNavigator) snapshot() ([]string, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...), n.focused
}

func TestAdapter_ManifestHandlers(t *testing.T) {
	nav := &fakeNavigator{}
	a, b, _ := startAdapter(t, Options{Navigator: nav})

	raised := &recorder[string]{}
	_, err := a.AddIntentListener("ViewChart", func(intent string, c protocol.Context) {
		raised.add(intent + ":" + c.Type())
	})
	require.NoError(t, err)

	b.ready(protocol.EnvironmentData{
		Identity: "w1",
		Manifest: &protocol.Manifest{
			Intents: []protocol.ManifestIntent{{Intent: "ViewChart", Type: "fdc3.instrument", Template: "chart"}},
			Params:  map[string]protocol.Param{"ticker": {Type: "fdc3.instrument", ID: "ticker"}},
			Templates: map[string]string{
				"chart": "https://charts.example/${ticker}",
			},
		},
	})
	_, _ = b.recv(), b.recv()

	ctx := protocol.Context{"type": "fdc3.instrument", "id": map[string]any{"ticker": "IBM"}}
	b.send(protocol.Envelope{Topic: protocol.TopicIntent, Intent: "ViewChart", Context: ctx})
	b.send(protocol.Envelope{Topic: protocol.TopicIntent, Intent: "ViewChart", Context: ctx})

	assert.Eventually(t, func() bool { return len(raised.get()) == 2 }, time.Second, 5*time.Millisecond)
	visits, focused := nav.snapshot()
	assert.Equal(t, []string{"https://charts.example/IBM"}, visits)
	assert.Equal(t, 2, focused)
	assert.Equal(t, "ViewChart:fdc3.instrument", raised.get()[0])
}
