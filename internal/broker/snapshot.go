package broker

import (
	"context"
	"time"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// EndpointState describes one connected endpoint.
type EndpointState struct {
	Identity     string    `json:"identity"`
	App          string    `json:"app,omitempty"`
	Channel      string    `json:"channel"`
	ConnectedAt  time.Time `json:"connectedAt"`
	ContextTypes []string  `json:"contextTypes,omitempty"`
	Intents      []string  `json:"intents,omitempty"`
}

// ChannelState describes one channel's history.
type ChannelState struct {
	ID      string           `json:"id"`
	Size    int              `json:"size"`
	Members int              `json:"members"`
	Latest  protocol.Context `json:"latest,omitempty"`
}

// IntentState lists the listeners of one intent in dispatch order.
type IntentState struct {
	Name      string   `json:"name"`
	Listeners []string `json:"listeners"`
}

// State is a point-in-time copy of the broker registries.
type State struct {
	Endpoints       []EndpointState `json:"endpoints"`
	Channels        []ChannelState  `json:"channels"`
	Intents         []IntentState   `json:"intents"`
	PendingRequests int             `json:"pendingRequests"`
	PendingLaunches int             `json:"pendingLaunches"`
}

// Snapshot copies the registries on the loop.
func (b *Broker) Snapshot(ctx context.Context) (State, error) {
	var st State
	if err := b.call(ctx, func() { st = b.snapshot() }); err != nil {
		return State{}, err
	}
	return st, nil
}

// History returns a channel's contexts, newest first.
func (b *Broker) History(ctx context.Context, channel string) ([]protocol.Context, error) {
	var out []protocol.Context
	if err := b.call(ctx, func() { out = b.bus.history(channel) }); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Broker) snapshot() State {
	st := State{
		Endpoints:       []EndpointState{},
		Channels:        []ChannelState{},
		Intents:         []IntentState{},
		PendingRequests: b.pending.Len(),
		PendingLaunches: len(b.launches),
	}

	members := make(map[string]int)
	for _, ep := range b.endpoints.all() {
		members[ep.channel]++
		st.Endpoints = append(st.Endpoints, EndpointState{
			Identity:     ep.identity,
			App:          ep.app,
			Channel:      ep.channel,
			ConnectedAt:  ep.connectedAt,
			ContextTypes: b.bus.typesFor(ep),
			Intents:      b.intents.intentsFor(ep),
		})
	}

	for _, id := range b.bus.order {
		history := b.bus.channels[id]
		cs := ChannelState{ID: id, Size: len(history), Members: members[id]}
		if len(history) > 0 {
			cs.Latest = history[0]
		}
		st.Channels = append(st.Channels, cs)
	}

	for _, name := range b.intents.order {
		listeners := b.intents.listeners[name]
		if len(listeners) == 0 {
			continue
		}
		is := IntentState{Name: name}
		for _, ep := range listeners {
			is.Listeners = append(is.Listeners, ep.identity)
		}
		st.Intents = append(st.Intents, is)
	}

	return st
}
