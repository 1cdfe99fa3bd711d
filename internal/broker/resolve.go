package broker

import (
	"context"
	"slices"
	"strings"

	"github.com/hay-kot/deskbus/internal/core/correlation"
	"github.com/hay-kot/deskbus/internal/core/protocol"
)

const keySep = "\x1f"

func resolverKey(identity, id string) string {
	return identity + keySep + "resolver" + keySep + id
}

func launchKey(identity, id string) string {
	return identity + keySep + "launch" + keySep + id
}

// pendingLaunch is a raised intent waiting for a launched application to
// register a listener.
type pendingLaunch struct {
	key    string
	app    string
	intent string
	raiser *endpoint
}

func (b *Broker) cancelPendingFor(ep *endpoint) {
	prefix := ep.identity + keySep
	b.pending.CancelWhere(func(id string) bool { return strings.HasPrefix(id, prefix) },
		protocol.Errorf(protocol.CodeDisconnected, "endpoint %s disconnected", ep.identity))
	b.launches = slices.DeleteFunc(b.launches, func(l pendingLaunch) bool { return l.raiser == ep })
}

func (b *Broker) pruneLaunches() {
	b.launches = slices.DeleteFunc(b.launches, func(l pendingLaunch) bool { return !b.pending.Pending(l.key) })
}

func (b *Broker) listApps(ctx context.Context) ([]protocol.DirectoryEntry, error) {
	if b.dir == nil {
		return nil, nil
	}
	apps, err := b.dir.ListApplications(ctx)
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeNotFound, "directory unavailable: %v", err)
	}
	return apps, nil
}

// lookupApp returns the first catalog entry named name.
func (b *Broker) lookupApp(ctx context.Context, name string) (protocol.DirectoryEntry, bool, error) {
	apps, err := b.listApps(ctx)
	if err != nil {
		return protocol.DirectoryEntry{}, false, err
	}
	for _, app := range apps {
		if app.Name == name {
			return app, true, nil
		}
	}
	return protocol.DirectoryEntry{}, false, nil
}

func (b *Broker) manifestFor(ctx context.Context, entry protocol.DirectoryEntry) (protocol.Manifest, error) {
	switch {
	case entry.ManifestContent != nil:
		return *entry.ManifestContent, nil
	case entry.ManifestURL == "" || b.dir == nil:
		return protocol.Manifest{StartupApp: protocol.StartupApp{URL: entry.StartURL}}, nil
	default:
		return b.dir.FetchManifest(ctx, entry.ManifestURL)
	}
}

// launch materializes entry's startup target and focuses it.
func (b *Broker) launch(ctx context.Context, entry protocol.DirectoryEntry) error {
	if b.host == nil {
		return protocol.Errorf(protocol.CodeNotFound, "no host to launch %q", entry.Name)
	}

	manifest, err := b.manifestFor(ctx, entry)
	if err != nil {
		return protocol.Errorf(protocol.CodeNotFound, "manifest for %q: %v", entry.Name, err)
	}

	startup := manifest.StartupApp
	if startup.URL == "" {
		startup.URL = entry.StartURL
	}
	if startup.URL == "" {
		return protocol.Errorf(protocol.CodeNotFound, "%q declares no startup target", entry.Name)
	}

	if err := b.host.Materialize(ctx, startup, entry.Name); err != nil {
		return protocol.Errorf(protocol.CodeNotFound, "launch %q: %v", entry.Name, err)
	}

	if err := b.host.Focus(ctx, "", entry.Name); err != nil {
		b.log.Debug().Err(err).Str("app", entry.Name).Msg("focus launched app")
	}
	return nil
}

func (b *Broker) focus(target *endpoint) {
	if b.host == nil {
		return
	}
	identity, app := target.identity, target.app
	b.spawn(func(ctx context.Context) func() {
		if err := b.host.Focus(ctx, identity, app); err != nil {
			b.log.Debug().Err(err).Str("endpoint", identity).Msg("focus endpoint")
		}
		return nil
	})
}

func (b *Broker) open(ep *endpoint, req protocol.Envelope) {
	b.spawn(func(ctx context.Context) func() {
		entry, ok, err := b.lookupApp(ctx, req.Name)
		if err == nil && !ok {
			err = protocol.Errorf(protocol.CodeNotFound, "no application named %q", req.Name)
		}
		if err == nil {
			err = b.launch(ctx, entry)
		}
		return func() { b.respond(ep, req, protocol.TopicResponse, entry, err) }
	})
}

func (b *Broker) findIntent(ep *endpoint, req protocol.Envelope) {
	b.spawn(func(ctx context.Context) func() {
		apps, err := b.listApps(ctx)
		result := findIntent(apps, req.Intent)
		return func() { b.respond(ep, req, protocol.TopicReturnFindIntent, result, err) }
	})
}

func (b *Broker) findIntentsByContext(ep *endpoint, req protocol.Envelope) {
	b.spawn(func(ctx context.Context) func() {
		apps, err := b.listApps(ctx)
		result := groupIntents(apps)
		return func() { b.respond(ep, req, protocol.TopicReturnFindIntentsByContext, result, err) }
	})
}

// findIntent collects the apps declaring intent. Metadata comes from the
// first declaring app.
func findIntent(apps []protocol.DirectoryEntry, intent string) protocol.AppIntent {
	result := protocol.AppIntent{Apps: []protocol.DirectoryEntry{}}
	for _, app := range apps {
		decl, ok := app.Declares(intent)
		if !ok {
			continue
		}
		if len(result.Apps) == 0 {
			result.Intent = protocol.IntentMetadata{Name: decl.Name, DisplayName: decl.DisplayName}
		}
		result.Apps = append(result.Apps, app)
	}
	return result
}

// groupIntents returns one record per declared intent in first-seen order.
// The requesting context is not used to filter.
func groupIntents(apps []protocol.DirectoryEntry) []protocol.AppIntent {
	out := []protocol.AppIntent{}
	index := make(map[string]int)

	for _, app := range apps {
		for _, decl := range app.Intents {
			i, ok := index[decl.Name]
			if !ok {
				i = len(out)
				index[decl.Name] = i
				out = append(out, protocol.AppIntent{
					Intent: protocol.IntentMetadata{Name: decl.Name, DisplayName: decl.DisplayName},
				})
			}
			if !slices.ContainsFunc(out[i].Apps, func(e protocol.DirectoryEntry) bool { return e.Name == app.Name }) {
				out[i].Apps = append(out[i].Apps, app)
			}
		}
	}
	return out
}

// candidatesFor lists live listeners first, then directory apps declaring
// the intent that no listening endpoint is bound to.
func candidatesFor(intent string, live []*endpoint, apps []protocol.DirectoryEntry) []protocol.Candidate {
	titles := make(map[string]string, len(apps))
	for _, app := range apps {
		titles[app.Name] = app.DisplayTitle()
	}

	var out []protocol.Candidate
	bound := make(map[string]bool)

	for _, ep := range live {
		if !ep.live {
			continue
		}
		title := titles[ep.app]
		if title == "" {
			title = ep.identity
		}
		out = append(out, protocol.Candidate{
			Kind:     protocol.CandidateWindow,
			Endpoint: ep.identity,
			App:      ep.app,
			Title:    title,
		})
		if ep.app != "" {
			bound[ep.app] = true
		}
	}

	for _, app := range apps {
		if _, ok := app.Declares(intent); !ok || bound[app.Name] {
			continue
		}
		bound[app.Name] = true
		out = append(out, protocol.Candidate{
			Kind:  protocol.CandidateApp,
			App:   app.Name,
			Title: app.DisplayTitle(),
		})
	}

	return out
}

func intentEnvelope(req protocol.Envelope) protocol.Envelope {
	return protocol.Envelope{Topic: protocol.TopicIntent, Intent: req.Intent, Context: req.Context}
}

// raiseIntent snapshots the live listeners now, so listeners registering
// while the directory is consulted are not candidates.
func (b *Broker) raiseIntent(ep *endpoint, req protocol.Envelope) {
	live := b.intents.listenersFor(req.Intent)

	if b.dir == nil {
		b.resolve(ep, req, live, nil)
		return
	}

	b.spawn(func(ctx context.Context) func() {
		apps, err := b.listApps(ctx)
		if err != nil {
			b.log.Warn().Err(err).Str("intent", req.Intent).Msg("resolving against live listeners only")
		}
		return func() { b.resolve(ep, req, live, apps) }
	})
}

func (b *Broker) resolve(ep *endpoint, req protocol.Envelope, live []*endpoint, apps []protocol.DirectoryEntry) {
	if !ep.live {
		return
	}

	candidates := candidatesFor(req.Intent, live, apps)

	switch len(candidates) {
	case 0:
		b.opts.Metrics.Intents.WithLabelValues("no_handler").Inc()
		b.respond(ep, req, protocol.TopicResponse, nil,
			protocol.Errorf(protocol.CodeNoHandlerFound, "no handler for intent %q", req.Intent))
	case 1:
		cand := candidates[0]
		if cand.Kind == protocol.CandidateWindow {
			// The sole live candidate is still the first registered listener.
			if target, ok := b.intents.dispatch(req.Intent, intentEnvelope(req), b.send); ok {
				b.acknowledge(ep, req, target, cand)
				return
			}
		}
		b.deliver(ep, req, cand)
	default:
		b.presentChoices(ep, req, candidates, findIntent(apps, req.Intent).Intent.DisplayName)
	}
}

// deliver routes the intent to exactly the chosen candidate.
func (b *Broker) deliver(ep *endpoint, req protocol.Envelope, cand protocol.Candidate) {
	if cand.Kind == protocol.CandidateApp {
		b.launchForIntent(ep, req, cand)
		return
	}

	target, ok := b.endpoints.lookup(cand.Endpoint)
	if !ok || !target.live {
		b.opts.Metrics.Intents.WithLabelValues("failed").Inc()
		b.respond(ep, req, protocol.TopicResponse, nil,
			protocol.Errorf(protocol.CodeNoHandlerFound, "endpoint %s disconnected", cand.Endpoint))
		return
	}

	b.dispatchTo(ep, req, target, cand)
}

func (b *Broker) dispatchTo(ep *endpoint, req protocol.Envelope, target *endpoint, cand protocol.Candidate) {
	b.send(target, intentEnvelope(req))
	b.acknowledge(ep, req, target, cand)
}

// acknowledge focuses the recipient and answers the raiser.
func (b *Broker) acknowledge(ep *endpoint, req protocol.Envelope, target *endpoint, cand protocol.Candidate) {
	b.focus(target)
	b.opts.Metrics.Intents.WithLabelValues("dispatched").Inc()

	cand.Endpoint = target.identity
	b.respond(ep, req, protocol.TopicResponse, protocol.IntentResolution{Intent: req.Intent, Target: cand}, nil)
}

func (b *Broker) presentChoices(ep *endpoint, req protocol.Envelope, candidates []protocol.Candidate, displayName string) {
	key := resolverKey(ep.identity, req.ID)

	err := b.pending.BeginWithID(key, func(r correlation.Result) {
		if r.Err != nil {
			b.opts.Metrics.Intents.WithLabelValues("cancelled").Inc()
			b.respond(ep, req, protocol.TopicResponse, nil, r.Err)
			return
		}

		sel, _ := r.Value.(protocol.Candidate)
		for _, c := range candidates {
			if c.Same(sel) {
				b.deliver(ep, req, c)
				return
			}
		}
		b.respond(ep, req, protocol.TopicResponse, nil,
			protocol.Errorf(protocol.CodeNotFound, "selection is not a candidate for %q", req.Intent))
	})
	if err != nil {
		b.respond(ep, req, protocol.TopicResponse, nil, protocol.Errorf(protocol.CodeMalformedMessage, "%v", err))
		return
	}

	env, err := protocol.Envelope{
		Topic:   protocol.TopicResolver,
		ID:      req.ID,
		Intent:  req.Intent,
		Context: req.Context,
	}.WithData(protocol.ResolverRequest{
		Intent:      req.Intent,
		DisplayName: displayName,
		Context:     req.Context,
		Candidates:  candidates,
	})
	if err != nil {
		b.pending.Cancel(key, err)
		return
	}

	b.opts.Metrics.Intents.WithLabelValues("resolver").Inc()
	b.send(ep, env)
}

func (b *Broker) selectCandidate(ep *endpoint, env protocol.Envelope) {
	var sel protocol.Candidate
	if err := env.Decode(&sel); err != nil {
		b.send(ep, protocol.Envelope{Topic: protocol.TopicResponse, ID: env.ID, Error: protocol.AsError(err)})
		return
	}

	if !b.pending.Complete(resolverKey(ep.identity, env.ID), correlation.Result{Value: sel}) {
		b.log.Debug().Str("endpoint", ep.identity).Str("id", env.ID).Msg("selection for unknown resolver ignored")
	}
}

// launchForIntent materializes the chosen app and parks the intent until
// an endpoint bound to that app registers a listener for it.
func (b *Broker) launchForIntent(ep *endpoint, req protocol.Envelope, cand protocol.Candidate) {
	key := launchKey(ep.identity, req.ID)

	err := b.pending.BeginWithID(key, func(r correlation.Result) {
		if r.Err != nil {
			b.opts.Metrics.Intents.WithLabelValues("failed").Inc()
			b.respond(ep, req, protocol.TopicResponse, nil, r.Err)
			return
		}
		target := r.Value.(*endpoint)
		b.dispatchTo(ep, req, target, cand)
	})
	if err != nil {
		b.respond(ep, req, protocol.TopicResponse, nil, protocol.Errorf(protocol.CodeMalformedMessage, "%v", err))
		return
	}

	b.launches = append(b.launches, pendingLaunch{key: key, app: cand.App, intent: req.Intent, raiser: ep})
	b.opts.Metrics.Intents.WithLabelValues("launch").Inc()

	b.spawn(func(ctx context.Context) func() {
		entry, ok, err := b.lookupApp(ctx, cand.App)
		if err == nil && !ok {
			err = protocol.Errorf(protocol.CodeNotFound, "no application named %q", cand.App)
		}
		if err == nil {
			err = b.launch(ctx, entry)
		}
		if err == nil {
			return nil
		}
		return func() {
			b.pending.Cancel(key, protocol.Errorf(protocol.CodeNoHandlerFound, "%v", err))
			b.pruneLaunches()
		}
	})
}

// resumeLaunches hands a parked intent to a freshly registered listener of
// the launched app.
func (b *Broker) resumeLaunches(ep *endpoint, intent string) {
	if ep.app == "" {
		return
	}
	for {
		i := slices.IndexFunc(b.launches, func(l pendingLaunch) bool {
			return l.app == ep.app && l.intent == intent
		})
		if i < 0 {
			return
		}
		l := b.launches[i]
		b.launches = slices.Delete(b.launches, i, i+1)
		if b.pending.Complete(l.key, correlation.Result{Value: ep}) {
			return
		}
	}
}
