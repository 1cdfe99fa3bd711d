package broker

import (
	"slices"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

type subscription struct {
	ep          *endpoint
	contextType string
}

func (s subscription) accepts(ctx protocol.Context) bool {
	return s.contextType == "" || s.contextType == ctx.Type()
}

// contextBus keeps per-channel history and the context subscriber list.
type contextBus struct {
	limit    int
	channels map[string][]protocol.Context
	order    []string
	subs     []subscription
}

func newContextBus(limit int, defaultChannel string) *contextBus {
	b := &contextBus{
		limit:    limit,
		channels: make(map[string][]protocol.Context),
	}
	b.ensure(defaultChannel)
	return b
}

func (b *contextBus) ensure(channel string) {
	if _, ok := b.channels[channel]; ok {
		return
	}
	b.channels[channel] = nil
	b.order = append(b.order, channel)
}

// subscribe registers ep for contexts of contextType on its current channel.
// An empty type receives everything. Repeated registrations are ignored.
func (b *contextBus) subscribe(ep *endpoint, contextType string) bool {
	for _, s := range b.subs {
		if s.ep == ep && s.contextType == contextType {
			return false
		}
	}
	b.subs = append(b.subs, subscription{ep: ep, contextType: contextType})
	return true
}

// unsubscribe removes every subscription held by identity.
func (b *contextBus) unsubscribe(identity string) {
	b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool {
		return s.ep.identity == identity
	})
}

// broadcast records ctx as the newest entry of channel and returns the
// endpoints that should receive it, in subscription order. The originator
// is not filtered out.
func (b *contextBus) broadcast(channel string, ctx protocol.Context) []*endpoint {
	b.ensure(channel)

	history := append([]protocol.Context{ctx}, b.channels[channel]...)
	if len(history) > b.limit {
		history = history[:b.limit]
	}
	b.channels[channel] = history

	var out []*endpoint
	for _, s := range b.subs {
		if s.ep.channel != channel || !s.accepts(ctx) {
			continue
		}
		if !slices.Contains(out, s.ep) {
			out = append(out, s.ep)
		}
	}
	return out
}

// history returns the channel's contexts, newest first.
func (b *contextBus) history(channel string) []protocol.Context {
	return slices.Clone(b.channels[channel])
}

// latestFor returns the newest context on channel that one of ep's
// subscriptions accepts.
func (b *contextBus) latestFor(ep *endpoint, channel string) (protocol.Context, bool) {
	for _, ctx := range b.channels[channel] {
		for _, s := range b.subs {
			if s.ep == ep && s.accepts(ctx) {
				return ctx, true
			}
		}
	}
	return nil, false
}

// typesFor lists the context types ep listens for; "*" marks an untyped
// listener.
func (b *contextBus) typesFor(ep *endpoint) []string {
	var out []string
	for _, s := range b.subs {
		if s.ep != ep {
			continue
		}
		t := s.contextType
		if t == "" {
			t = "*"
		}
		out = append(out, t)
	}
	return out
}
