package broker

import (
	"slices"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// intentRegistry maps intent names to listeners in registration order.
type intentRegistry struct {
	listeners map[string][]*endpoint
	order     []string
}

func newIntentRegistry() *intentRegistry {
	return &intentRegistry{listeners: make(map[string][]*endpoint)}
}

// register appends ep unless that same endpoint is already listening.
func (r *intentRegistry) register(intent string, ep *endpoint) bool {
	list, ok := r.listeners[intent]
	if !ok {
		r.order = append(r.order, intent)
	}
	if slices.Contains(list, ep) {
		return false
	}
	r.listeners[intent] = append(list, ep)
	return true
}

func (r *intentRegistry) listenersFor(intent string) []*endpoint {
	return slices.Clone(r.listeners[intent])
}

// pruneEndpoint removes every registration held by identity.
func (r *intentRegistry) pruneEndpoint(identity string) {
	for intent, list := range r.listeners {
		r.listeners[intent] = slices.DeleteFunc(list, func(ep *endpoint) bool {
			return ep.identity == identity
		})
	}
}

// dispatch hands env to the first listener only. It reports the recipient,
// or false when nobody listens.
func (r *intentRegistry) dispatch(intent string, env protocol.Envelope, send func(*endpoint, protocol.Envelope)) (*endpoint, bool) {
	list := r.listeners[intent]
	if len(list) == 0 {
		return nil, false
	}
	send(list[0], env)
	return list[0], true
}

// intentsFor lists intent names ep listens for.
func (r *intentRegistry) intentsFor(ep *endpoint) []string {
	var out []string
	for _, name := range r.order {
		if slices.Contains(r.listeners[name], ep) {
			out = append(out, name)
		}
	}
	return out
}
