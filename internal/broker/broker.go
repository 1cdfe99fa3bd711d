// Package broker implements the interop broker: the endpoint registry, the
// context bus, the intent registry and the resolution engine.
//
// A single goroutine started by Run owns every registry. Connection
// goroutines and collaborator workers never touch that state directly; they
// post closures to the loop's inbox and the loop runs them one at a time.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deskbus/internal/core/correlation"
	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/transport"
)

// DefaultChannel always exists and is where endpoints start.
const DefaultChannel = "default"

// ErrStopped is returned when the broker loop is no longer running.
var ErrStopped = errors.New("broker stopped")

// Conn is the transport a connected endpoint speaks over.
type Conn = transport.Conn

// Directory lists applications and fetches their manifests.
type Directory interface {
	ListApplications(ctx context.Context) ([]protocol.DirectoryEntry, error)
	FetchManifest(ctx context.Context, url string) (protocol.Manifest, error)
}

// Host materializes applications and focuses windows.
type Host interface {
	Materialize(ctx context.Context, app protocol.StartupApp, label string) error
	Focus(ctx context.Context, identity, app string) error
}

// Binder maps an endpoint identity to a directory application name.
type Binder interface {
	Match(identity string) (string, bool)
}

// ChannelStore remembers the channel each identity last joined.
type ChannelStore interface {
	Channel(ctx context.Context, identity string) (string, error)
	SetChannel(ctx context.Context, identity, channel string) error
}

// Options configures a Broker. Zero values fall back to defaults.
type Options struct {
	RequestTimeout time.Duration
	SweepInterval  time.Duration
	HistoryLimit   int
	OutboundBuffer int
	SystemChannels []protocol.ChannelInfo

	Binder   Binder
	Channels ChannelStore
	Metrics  *Metrics
}

func (o *Options) applyDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = correlation.DefaultTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Second
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.OutboundBuffer <= 0 {
		o.OutboundBuffer = 256
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics(nil)
	}
}

// Identity describes a connecting endpoint.
type Identity struct {
	ID  string
	App string
}

type channelPref struct {
	identity string
	channel  string
}

// Broker routes contexts and intents between endpoints.
type Broker struct {
	log  zerolog.Logger
	opts Options
	dir  Directory
	host Host

	inbox chan func()
	prefs chan channelPref
	done  chan struct{}
	ctx   context.Context
	wg    sync.WaitGroup

	// owned by the loop
	endpoints    *registry
	bus          *contextBus
	intents      *intentRegistry
	pending      *correlation.Table
	launches     []pendingLaunch
	onDisconnect []func(*endpoint)
}

// New creates a broker. dir and host may be nil, in which case directory
// lookups find nothing and launches fail.
func New(log zerolog.Logger, dir Directory, host Host, opts Options) *Broker {
	opts.applyDefaults()

	b := &Broker{
		log:       log,
		opts:      opts,
		dir:       dir,
		host:      host,
		inbox:     make(chan func(), 256),
		prefs:     make(chan channelPref, 64),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		endpoints: newRegistry(),
		bus:       newContextBus(opts.HistoryLimit, DefaultChannel),
		intents:   newIntentRegistry(),
		pending:   correlation.New(opts.RequestTimeout, log),
	}

	b.onDisconnect = []func(*endpoint){
		func(ep *endpoint) { b.intents.pruneEndpoint(ep.identity) },
		func(ep *endpoint) { b.bus.unsubscribe(ep.identity) },
		b.cancelPendingFor,
	}

	return b
}

// Run drives the event loop until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	b.ctx = ctx

	ticker := time.NewTicker(b.opts.SweepInterval)
	defer ticker.Stop()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.persistChannels(ctx)
	}()

	b.log.Info().Dur("timeout", b.opts.RequestTimeout).Msg("broker started")

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			b.wg.Wait()
			return nil
		case fn := <-b.inbox:
			fn()
		case <-ticker.C:
			b.sweep()
		}
	}
}

func (b *Broker) shutdown() {
	close(b.done)
	for _, ep := range b.endpoints.all() {
		b.disconnect(ep)
		// Unblocks a writer stuck on a peer that stopped reading.
		_ = ep.conn.Close()
	}
	b.log.Info().Msg("broker stopped")
}

// post queues fn for the loop.
func (b *Broker) post(ctx context.Context, fn func()) error {
	select {
	case b.inbox <- fn:
		return nil
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the loop and waits for it to finish.
func (b *Broker) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := b.post(ctx, func() { fn(); close(finished) }); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-b.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn runs work off the loop with a request-scoped deadline and posts the
// continuation it returns back onto the loop.
func (b *Broker) spawn(work func(ctx context.Context) func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(b.ctx, b.opts.RequestTimeout)
		next := work(ctx)
		cancel()

		if next != nil {
			_ = b.post(context.Background(), next)
		}
	}()
}

// Serve admits conn as an endpoint and pumps its messages into the loop
// until the connection fails or ctx ends.
func (b *Broker) Serve(ctx context.Context, conn Conn, id Identity) error {
	if id.ID == "" {
		_ = conn.Close()
		return protocol.Errorf(protocol.CodeMalformedMessage, "missing endpoint identity")
	}

	if id.App == "" && b.opts.Binder != nil {
		if app, ok := b.opts.Binder.Match(id.ID); ok {
			id.App = app
		}
	}

	env := b.environment(ctx, id)
	ep := newEndpoint(id.ID, id.App, conn, b.opts.OutboundBuffer)

	var admitErr error
	if err := b.call(ctx, func() { admitErr = b.admit(ep, env) }); err != nil {
		// The loop may still admit ep after ctx ends.
		_ = b.post(context.Background(), func() { b.disconnect(ep) })
		_ = conn.Close()
		return err
	}
	if admitErr != nil {
		_ = conn.Send(protocol.Envelope{Topic: protocol.TopicResponse, Error: protocol.AsError(admitErr)})
		_ = conn.Close()
		return admitErr
	}

	defer func() {
		_ = b.post(context.Background(), func() { b.disconnect(ep) })
	}()

	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive from %s: %w", id.ID, err)
		}

		if err := b.post(ctx, func() { b.handle(ep, msg) }); err != nil {
			return nil
		}
	}
}

// environment gathers the readiness announcement before admission so the
// loop never waits on the directory or the channel store.
func (b *Broker) environment(ctx context.Context, id Identity) protocol.EnvironmentData {
	env := protocol.EnvironmentData{
		Identity:       id.ID,
		App:            id.App,
		SystemChannels: b.opts.SystemChannels,
	}

	if b.opts.Channels != nil {
		ch, err := b.opts.Channels.Channel(ctx, id.ID)
		if err != nil {
			b.log.Warn().Err(err).Str("endpoint", id.ID).Msg("load channel membership")
		}
		env.CurrentChannel = ch
	}

	if id.App == "" || b.dir == nil {
		return env
	}

	entry, ok, err := b.lookupApp(ctx, id.App)
	if err != nil {
		b.log.Warn().Err(err).Str("app", id.App).Msg("directory lookup for endpoint")
		return env
	}
	if !ok {
		return env
	}

	env.Directory = &entry
	manifest, err := b.manifestFor(ctx, entry)
	if err != nil {
		b.log.Warn().Err(err).Str("app", id.App).Msg("fetch manifest for endpoint")
		return env
	}
	env.Manifest = &manifest
	return env
}

func (b *Broker) admit(ep *endpoint, env protocol.EnvironmentData) error {
	if err := b.endpoints.admit(ep); err != nil {
		b.log.Warn().Str("endpoint", ep.identity).Msg("duplicate identity rejected")
		return err
	}

	ep.channel = DefaultChannel
	ep.connectedAt = time.Now()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ep.writeLoop(b.log)
	}()

	b.opts.Metrics.Endpoints.Inc()
	b.log.Info().Str("endpoint", ep.identity).Str("app", ep.app).Msg("endpoint connected")

	ready, err := protocol.Envelope{Topic: protocol.TopicEnvironmentData}.WithData(env)
	if err != nil {
		b.log.Error().Err(err).Msg("encode environment data")
		return nil
	}
	b.send(ep, ready)
	return nil
}

// disconnect removes ep if it is still the registered endpoint for its
// identity. Repeated or late calls are no-ops.
func (b *Broker) disconnect(ep *endpoint) {
	cur, ok := b.endpoints.lookup(ep.identity)
	if !ok || cur != ep {
		return
	}

	b.endpoints.remove(ep.identity)
	close(ep.out)

	for _, fn := range b.onDisconnect {
		fn(ep)
	}

	b.opts.Metrics.Endpoints.Dec()
	b.log.Info().Str("endpoint", ep.identity).Msg("endpoint disconnected")
}

// send queues env for ep without blocking the loop.
func (b *Broker) send(ep *endpoint, env protocol.Envelope) {
	if !ep.live {
		return
	}
	select {
	case ep.out <- env:
	default:
		b.opts.Metrics.Dropped.Inc()
		b.log.Warn().Str("endpoint", ep.identity).Str("topic", string(env.Topic)).Msg("outbound queue full, envelope dropped")
	}
}

// respond answers a correlated request with either value or err.
func (b *Broker) respond(ep *endpoint, req protocol.Envelope, topic protocol.Topic, value any, err error) {
	env := protocol.Envelope{
		Topic:   topic,
		ID:      req.ID,
		Intent:  req.Intent,
		Context: req.Context,
	}

	if err != nil {
		env.Error = protocol.AsError(err)
		b.send(ep, env)
		return
	}

	env, encErr := env.WithData(value)
	if encErr != nil {
		env.Error = protocol.AsError(encErr)
	}
	b.send(ep, env)
}

func (b *Broker) handle(ep *endpoint, env protocol.Envelope) {
	if !ep.live {
		return
	}

	if err := env.Validate(); err != nil {
		b.opts.Metrics.Malformed.Inc()
		b.log.Warn().Err(err).Str("endpoint", ep.identity).Msg("malformed message")
		b.send(ep, protocol.Envelope{Topic: protocol.TopicResponse, ID: env.ID, Error: protocol.AsError(err)})
		return
	}

	switch env.Topic {
	case protocol.TopicAddContextListener:
		b.bus.subscribe(ep, env.ContextType)
	case protocol.TopicAddIntentListener:
		if b.intents.register(env.Intent, ep) {
			b.resumeLaunches(ep, env.Intent)
		}
	case protocol.TopicBroadcast:
		b.broadcast(ep, env.Context)
	case protocol.TopicJoinChannel:
		b.joinChannel(ep, env.Channel)
	case protocol.TopicLeaveChannel:
		b.joinChannel(ep, DefaultChannel)
	case protocol.TopicOpen:
		b.open(ep, env)
	case protocol.TopicFindIntent:
		b.findIntent(ep, env)
	case protocol.TopicFindIntentsByContext:
		b.findIntentsByContext(ep, env)
	case protocol.TopicRaiseIntent:
		b.raiseIntent(ep, env)
	case protocol.TopicResolverSelect:
		b.selectCandidate(ep, env)
	case protocol.TopicResolverClose:
		b.pending.Cancel(resolverKey(ep.identity, env.ID),
			protocol.Errorf(protocol.CodeCancelled, "resolver closed"))
	}
}

func (b *Broker) broadcast(ep *endpoint, ctx protocol.Context) {
	b.opts.Metrics.Broadcasts.Inc()

	env := protocol.Envelope{Topic: protocol.TopicContext, Context: ctx, Channel: ep.channel}
	for _, target := range b.bus.broadcast(ep.channel, ctx) {
		b.send(target, env)
	}
}

// joinChannel moves ep and replays the newest context it listens for.
func (b *Broker) joinChannel(ep *endpoint, channel string) {
	if ep.channel == channel {
		return
	}
	ep.channel = channel
	b.bus.ensure(channel)

	if ctx, ok := b.bus.latestFor(ep, channel); ok {
		b.send(ep, protocol.Envelope{Topic: protocol.TopicContext, Context: ctx, Channel: channel})
	}

	if b.opts.Channels != nil {
		select {
		case b.prefs <- channelPref{identity: ep.identity, channel: channel}:
		default:
			b.log.Warn().Str("endpoint", ep.identity).Msg("channel membership not persisted, queue full")
		}
	}
}

func (b *Broker) persistChannels(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-b.prefs:
			if err := b.opts.Channels.SetChannel(ctx, p.identity, p.channel); err != nil {
				b.log.Warn().Err(err).Str("endpoint", p.identity).Msg("persist channel membership")
			}
		}
	}
}

func (b *Broker) sweep() {
	n := b.pending.Sweep()
	if n > 0 {
		b.opts.Metrics.Expired.Add(float64(n))
		b.log.Debug().Int("expired", n).Msg("expired pending requests")
	}
	b.pruneLaunches()
}
