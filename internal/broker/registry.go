package broker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// endpoint is one admitted connection. All fields except out are owned by
// the broker loop.
type endpoint struct {
	identity    string
	app         string
	channel     string
	conn        Conn
	out         chan protocol.Envelope
	live        bool
	connectedAt time.Time
}

func newEndpoint(identity, app string, conn Conn, buffer int) *endpoint {
	return &endpoint{
		identity: identity,
		app:      app,
		conn:     conn,
		out:      make(chan protocol.Envelope, buffer),
	}
}

// writeLoop drains the outbound queue in order and closes the connection
// once the queue is closed.
func (e *endpoint) writeLoop(log zerolog.Logger) {
	defer func() { _ = e.conn.Close() }()

	for env := range e.out {
		if err := e.conn.Send(env); err != nil {
			log.Debug().Err(err).Str("endpoint", e.identity).Str("topic", string(env.Topic)).Msg("send failed")
		}
	}
}

// registry tracks admitted endpoints by identity.
type registry struct {
	byID  map[string]*endpoint
	order []string
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*endpoint)}
}

// admit inserts ep. An existing live entry for the same identity rejects the
// newcomer; a dead one is overwritten.
func (r *registry) admit(ep *endpoint) error {
	if cur, ok := r.byID[ep.identity]; ok && cur.live {
		return protocol.Errorf(protocol.CodeDuplicateIdentity, "endpoint %q is already connected", ep.identity)
	} else if ok {
		r.drop(ep.identity)
	}

	ep.live = true
	r.byID[ep.identity] = ep
	r.order = append(r.order, ep.identity)
	return nil
}

// remove marks the endpoint dead and forgets it. It returns the removed
// endpoint, or nil when the identity is unknown.
func (r *registry) remove(identity string) *endpoint {
	ep, ok := r.byID[identity]
	if !ok {
		return nil
	}
	ep.live = false
	r.drop(identity)
	return ep
}

func (r *registry) drop(identity string) {
	delete(r.byID, identity)
	for i, id := range r.order {
		if id == identity {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *registry) lookup(identity string) (*endpoint, bool) {
	ep, ok := r.byID[identity]
	return ep, ok
}

// all returns endpoints in admission order.
func (r *registry) all() []*endpoint {
	out := make([]*endpoint, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// byApp returns live endpoints bound to app, in admission order.
func (r *registry) byApp(app string) []*endpoint {
	var out []*endpoint
	for _, ep := range r.all() {
		if ep.app == app {
			out = append(out, ep)
		}
	}
	return out
}
