// Package endpoint is the application-side half of the interop protocol.
//
// An Adapter owns one connection to the broker. Requests issued before the
// broker announces readiness are queued and flushed in issue order. Replies
// are matched to callers through a correlation table, and inbound contexts
// and intents are handed to registered listeners on a single dispatch
// goroutine so handlers may themselves issue requests.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deskbus/internal/core/correlation"
	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/transport"
)

// ErrDisconnected is returned for requests on a dead connection.
var ErrDisconnected = protocol.ErrDisconnected

// Options configures an Adapter.
type Options struct {
	Timeout       time.Duration
	SweepInterval time.Duration

	// Navigator receives automatic manifest handler navigations. Nil
	// disables automatic handling.
	Navigator Navigator
	// Resolver chooses among intent candidates. Nil picks the first.
	Resolver ResolverUI
	// OnReady runs after the queue is flushed and manifest listeners are
	// registered.
	OnReady func(protocol.EnvironmentData)
}

// ResolverUI asks the user to choose a target for a raised intent. ok is
// false when the user dismissed the choice.
type ResolverUI interface {
	Choose(ctx context.Context, req protocol.ResolverRequest) (choice protocol.Candidate, ok bool, err error)
}

// ContextHandler receives contexts.
type ContextHandler func(protocol.Context)

// IntentHandler receives raised intents with their context.
type IntentHandler func(intent string, ctx protocol.Context)

type contextListener struct {
	contextType string
	fn          ContextHandler
}

type intentListener struct {
	intent string
	fn     IntentHandler
}

// Listener is a registered handler.
type Listener struct {
	once   sync.Once
	remove func()
}

// Unsubscribe stops local delivery to the handler. The broker keeps the
// registration until the endpoint disconnects.
func (l *Listener) Unsubscribe() {
	l.once.Do(l.remove)
}

// Adapter is one endpoint's connection to the broker.
type Adapter struct {
	conn  transport.Conn
	log   zerolog.Logger
	opts  Options
	table *correlation.Table

	events  chan func()
	readyCh chan struct{}

	mu        sync.Mutex
	ready     bool
	closed    bool
	queue     []protocol.Envelope
	env       protocol.EnvironmentData
	channel   string
	latest    []protocol.Context
	contexts  []*contextListener
	intents   []*intentListener
	navigable bool
}

// New creates an adapter over conn. Call Run to start it.
func New(conn transport.Conn, log zerolog.Logger, opts Options) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = correlation.DefaultTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Second
	}

	return &Adapter{
		conn:    conn,
		log:     log,
		opts:    opts,
		table:   correlation.New(opts.Timeout, log),
		events:  make(chan func(), 256),
		readyCh: make(chan struct{}),
	}
}

// Run reads from the broker until the connection ends or ctx is cancelled,
// then tears the adapter down.
func (a *Adapter) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.table.Run(ctx, a.opts.SweepInterval)
	}()
	go func() {
		defer wg.Done()
		a.dispatchLoop(ctx)
	}()

	err := a.readLoop(ctx)

	a.teardown()
	cancel()
	wg.Wait()

	if errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Adapter) readLoop(ctx context.Context) error {
	for {
		env, err := a.conn.Recv(ctx)
		if err != nil {
			return err
		}
		a.handle(ctx, env)
	}
}

func (a *Adapter) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.events:
			fn()
		}
	}
}

func (a *Adapter) emit(ctx context.Context, fn func()) {
	select {
	case a.events <- fn:
	case <-ctx.Done():
	}
}

func (a *Adapter) teardown() {
	a.mu.Lock()
	a.closed = true
	a.ready = false
	a.queue = nil
	a.contexts = nil
	a.intents = nil
	a.mu.Unlock()

	if n := a.table.FailAll(protocol.Errorf(protocol.CodeDisconnected, "connection to broker lost")); n > 0 {
		a.log.Debug().Int("pending", n).Msg("failed pending requests on disconnect")
	}
	_ = a.conn.Close()
}

// Close disconnects from the broker.
func (a *Adapter) Close() error {
	return a.conn.Close()
}

// Ready is closed once the broker has announced readiness.
func (a *Adapter) Ready() <-chan struct{} {
	return a.readyCh
}

// Environment returns the readiness announcement.
func (a *Adapter) Environment() protocol.EnvironmentData {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.env
}

func (a *Adapter) handle(ctx context.Context, env protocol.Envelope) {
	switch {
	case env.Topic == protocol.TopicEnvironmentData:
		a.onReady(ctx, env)
	case env.Topic.IsResponse():
		a.onResponse(env)
	case env.Topic == protocol.TopicContext:
		a.onContext(ctx, env)
	case env.Topic == protocol.TopicIntent:
		a.onIntent(ctx, env)
	case env.Topic == protocol.TopicResolver:
		a.onResolver(ctx, env)
	default:
		a.log.Debug().Str("topic", string(env.Topic)).Msg("ignoring unknown topic")
	}
}

func (a *Adapter) onReady(ctx context.Context, msg protocol.Envelope) {
	var env protocol.EnvironmentData
	if err := msg.Decode(&env); err != nil {
		a.log.Error().Err(err).Msg("invalid environment data")
		return
	}

	a.mu.Lock()
	if a.ready || a.closed {
		a.mu.Unlock()
		return
	}
	a.ready = true
	a.env = env
	a.channel = ""

	queued := a.queue
	a.queue = nil
	for _, q := range queued {
		a.write(q)
	}

	if env.Manifest != nil {
		a.navigable = true
		for _, intent := range manifestIntents(env.Manifest) {
			a.write(protocol.Envelope{Topic: protocol.TopicAddIntentListener, Intent: intent})
		}
		for _, c := range env.Manifest.Contexts {
			a.write(protocol.Envelope{Topic: protocol.TopicAddContextListener, ContextType: c.Type})
		}
	}

	if env.CurrentChannel != "" {
		a.channel = env.CurrentChannel
		a.write(protocol.Envelope{Topic: protocol.TopicJoinChannel, Channel: env.CurrentChannel})
	}
	a.mu.Unlock()

	a.log.Debug().Int("flushed", len(queued)).Str("identity", env.Identity).Msg("broker ready")
	close(a.readyCh)

	if a.opts.OnReady != nil {
		a.emit(ctx, func() { a.opts.OnReady(env) })
	}
}

// write sends on the wire; callers hold a.mu so queue flushes and new
// requests cannot interleave.
func (a *Adapter) write(env protocol.Envelope) {
	if err := a.conn.Send(env); err != nil {
		a.log.Debug().Err(err).Str("topic", string(env.Topic)).Msg("send failed")
		if env.ID != "" {
			a.table.Cancel(env.ID, protocol.Errorf(protocol.CodeDisconnected, "%v", err))
		}
	}
}

// send queues env until ready, then writes it.
func (a *Adapter) send(env protocol.Envelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sendLocked(env)
}

// sendLocked is send for callers already holding a.mu.
func (a *Adapter) sendLocked(env protocol.Envelope) error {
	if a.closed {
		return ErrDisconnected
	}
	if !a.ready {
		a.queue = append(a.queue, env)
		return nil
	}
	a.write(env)
	return nil
}

func (a *Adapter) onResponse(env protocol.Envelope) {
	r := correlation.Result{Value: env}
	if env.Error != nil {
		r = correlation.Result{Err: env.Error}
	}
	if env.ID == "" {
		a.log.Warn().Err(r.Err).Msg("uncorrelated broker error")
		return
	}
	a.table.Complete(env.ID, r)
}

// request sends env and waits for the matching response.
func (a *Adapter) request(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	results := make(chan correlation.Result, 1)
	env.ID = a.table.Begin(func(r correlation.Result) { results <- r })

	if err := a.send(env); err != nil {
		a.table.Cancel(env.ID, err)
		return protocol.Envelope{}, err
	}

	select {
	case r := <-results:
		if r.Err != nil {
			return protocol.Envelope{}, r.Err
		}
		return r.Value.(protocol.Envelope), nil
	case <-ctx.Done():
		a.table.Cancel(env.ID, ctx.Err())
		return protocol.Envelope{}, ctx.Err()
	}
}

func (a *Adapter) onContext(ctx context.Context, env protocol.Envelope) {
	a.mu.Lock()
	a.latest = append([]protocol.Context{env.Context}, a.latest...)
	if len(a.latest) > 32 {
		a.latest = a.latest[:32]
	}
	manifest := a.manifest()
	listeners := slices.Clone(a.contexts)
	a.mu.Unlock()

	a.autoHandleContext(manifest, env.Context)

	a.emit(ctx, func() {
		for _, l := range listeners {
			if l.contextType == "" || l.contextType == env.Context.Type() {
				l.fn(env.Context)
			}
		}
	})
}

func (a *Adapter) onIntent(ctx context.Context, env protocol.Envelope) {
	a.mu.Lock()
	manifest := a.manifest()
	listeners := slices.Clone(a.intents)
	a.mu.Unlock()

	a.autoHandleIntent(manifest, env.Intent, env.Context)

	a.emit(ctx, func() {
		for _, l := range listeners {
			if l.intent == env.Intent {
				l.fn(env.Intent, env.Context)
			}
		}
	})
}

func (a *Adapter) manifest() *protocol.Manifest {
	if !a.navigable {
		return nil
	}
	return a.env.Manifest
}

func (a *Adapter) onResolver(ctx context.Context, env protocol.Envelope) {
	var req protocol.ResolverRequest
	if err := env.Decode(&req); err != nil {
		a.log.Warn().Err(err).Msg("invalid resolver request")
		_ = a.send(protocol.Envelope{Topic: protocol.TopicResolverClose, ID: env.ID})
		return
	}

	go func() {
		choice, ok, err := a.choose(ctx, req)
		if err != nil {
			a.log.Warn().Err(err).Str("intent", req.Intent).Msg("resolver failed")
		}
		if err != nil || !ok {
			_ = a.send(protocol.Envelope{Topic: protocol.TopicResolverClose, ID: env.ID})
			return
		}

		sel, err := protocol.Envelope{Topic: protocol.TopicResolverSelect, ID: env.ID}.WithData(choice)
		if err != nil {
			a.log.Error().Err(err).Msg("encode selection")
			return
		}
		_ = a.send(sel)
	}()
}

func (a *Adapter) choose(ctx context.Context, req protocol.ResolverRequest) (protocol.Candidate, bool, error) {
	if a.opts.Resolver == nil {
		if len(req.Candidates) == 0 {
			return protocol.Candidate{}, false, nil
		}
		return req.Candidates[0], true, nil
	}
	return a.opts.Resolver.Choose(ctx, req)
}

// Open asks the broker to launch the named application.
func (a *Adapter) Open(ctx context.Context, name string) (protocol.DirectoryEntry, error) {
	var entry protocol.DirectoryEntry
	resp, err := a.request(ctx, protocol.Envelope{Topic: protocol.TopicOpen, Name: name})
	if err != nil {
		return entry, err
	}
	return entry, resp.Decode(&entry)
}

// RaiseIntent asks the broker to deliver intent to exactly one handler.
func (a *Adapter) RaiseIntent(ctx context.Context, intent string, c protocol.Context) (protocol.IntentResolution, error) {
	var res protocol.IntentResolution
	resp, err := a.request(ctx, protocol.Envelope{Topic: protocol.TopicRaiseIntent, Intent: intent, Context: c})
	if err != nil {
		return res, err
	}
	return res, resp.Decode(&res)
}

// FindIntent lists the applications able to handle intent.
func (a *Adapter) FindIntent(ctx context.Context, intent string, c protocol.Context) (protocol.AppIntent, error) {
	var res protocol.AppIntent
	resp, err := a.request(ctx, protocol.Envelope{Topic: protocol.TopicFindIntent, Intent: intent, Context: c})
	if err != nil {
		return res, err
	}
	return res, resp.Decode(&res)
}

// FindIntentsByContext lists every declared intent with its applications.
func (a *Adapter) FindIntentsByContext(ctx context.Context, c protocol.Context) ([]protocol.AppIntent, error) {
	var res []protocol.AppIntent
	resp, err := a.request(ctx, protocol.Envelope{Topic: protocol.TopicFindIntentsByContext, Context: c})
	if err != nil {
		return nil, err
	}
	return res, resp.Decode(&res)
}

// Broadcast publishes c on the current channel.
func (a *Adapter) Broadcast(c protocol.Context) error {
	if c.Type() == "" {
		return protocol.Errorf(protocol.CodeMalformedMessage, "context has no type")
	}
	return a.send(protocol.Envelope{Topic: protocol.TopicBroadcast, Context: c})
}

// AddContextListener registers fn for contexts of contextType; an empty
// type receives every context.
func (a *Adapter) AddContextListener(contextType string, fn ContextHandler) (*Listener, error) {
	l := &contextListener{contextType: contextType, fn: fn}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrDisconnected
	}
	a.contexts = append(a.contexts, l)
	a.mu.Unlock()

	if err := a.send(protocol.Envelope{Topic: protocol.TopicAddContextListener, ContextType: contextType}); err != nil {
		return nil, err
	}

	return &Listener{remove: func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.contexts = slices.DeleteFunc(a.contexts, func(c *contextListener) bool { return c == l })
	}}, nil
}

// AddIntentListener registers fn as a handler for intent.
func (a *Adapter) AddIntentListener(intent string, fn IntentHandler) (*Listener, error) {
	if intent == "" {
		return nil, protocol.Errorf(protocol.CodeMalformedMessage, "intent name is empty")
	}
	l := &intentListener{intent: intent, fn: fn}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrDisconnected
	}
	a.intents = append(a.intents, l)
	a.mu.Unlock()

	if err := a.send(protocol.Envelope{Topic: protocol.TopicAddIntentListener, Intent: intent}); err != nil {
		return nil, err
	}

	return &Listener{remove: func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.intents = slices.DeleteFunc(a.intents, func(i *intentListener) bool { return i == l })
	}}, nil
}

// JoinChannel moves the endpoint to channel.
func (a *Adapter) JoinChannel(channel string) error {
	if channel == "" {
		return fmt.Errorf("join channel: %w", protocol.Errorf(protocol.CodeMalformedMessage, "empty channel"))
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	// Replayed contexts for the new channel can only arrive after the write.
	if err := a.sendLocked(protocol.Envelope{Topic: protocol.TopicJoinChannel, Channel: channel}); err != nil {
		return err
	}
	a.channel = channel
	a.latest = nil
	return nil
}

// LeaveChannel returns the endpoint to the default channel.
func (a *Adapter) LeaveChannel() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.sendLocked(protocol.Envelope{Topic: protocol.TopicLeaveChannel}); err != nil {
		return err
	}
	a.channel = ""
	a.latest = nil
	return nil
}

// CurrentChannel returns the joined channel, or "" for the default.
func (a *Adapter) CurrentChannel() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channel
}

// SystemChannels returns the channels announced by the broker. It is
// answered locally.
func (a *Adapter) SystemChannels() []protocol.ChannelInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.env.SystemChannels)
}

// CurrentContext returns the newest context of contextType received on the
// current channel. An empty type matches any context.
func (a *Adapter) CurrentContext(contextType string) (protocol.Context, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.latest {
		if contextType == "" || c.Type() == contextType {
			return c, true
		}
	}
	return nil, false
}

// Pending returns the number of requests awaiting a reply.
func (a *Adapter) Pending() int {
	return a.table.Len()
}
