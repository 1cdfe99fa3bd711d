// Package correlation pairs outbound requests with their asynchronous
// results.
//
// Each request gets a unique identifier and a continuation. The continuation
// runs exactly once: with the matching result, or with a Timeout failure once
// the entry is older than the table timeout. Completions for unknown or
// already-finished identifiers are ignored.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// DefaultTimeout is how long a request may stay pending.
const DefaultTimeout = 2 * time.Minute

// ErrDuplicateID is returned by BeginWithID when the identifier is pending or
// was finished within the timeout window.
var ErrDuplicateID = errors.New("correlation id already in use")

// Result is what a continuation receives.
type Result struct {
	Value any
	Err   error
}

// Continuation receives the outcome of a request.
type Continuation func(Result)

type entry struct {
	created time.Time
	fn      Continuation
}

type tombstone struct {
	result  Result
	at      time.Time
	expired bool
}

// Table tracks pending requests. It is safe for concurrent use;
// continuations are always invoked without the table lock held.
type Table struct {
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger

	prefix string
	seq    atomic.Uint64

	mu      sync.Mutex
	pending map[string]entry
	done    map[string]tombstone
}

// Option configures a Table.
type Option func(*Table)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

// New creates a table. A zero timeout uses DefaultTimeout.
func New(timeout time.Duration, log zerolog.Logger, opts ...Option) *Table {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := &Table{
		timeout: timeout,
		now:     time.Now,
		log:     log,
		prefix:  uuid.NewString(),
		pending: make(map[string]entry),
		done:    make(map[string]tombstone),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Timeout returns the configured expiry.
func (t *Table) Timeout() time.Duration { return t.timeout }

// NextID returns a fresh identifier without registering it.
func (t *Table) NextID() string {
	return fmt.Sprintf("%s-%d", t.prefix, t.seq.Add(1))
}

// Begin registers fn under a new identifier and returns it.
func (t *Table) Begin(fn Continuation) string {
	id := t.NextID()

	t.mu.Lock()
	t.pending[id] = entry{created: t.now(), fn: fn}
	t.mu.Unlock()

	return id
}

// BeginWithID registers fn under an identifier minted elsewhere, such as
// the ID a remote endpoint attached to its request.
func (t *Table) BeginWithID(id string, fn Continuation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if _, ok := t.done[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	t.pending[id] = entry{created: t.now(), fn: fn}
	return nil
}

// Complete resolves a pending entry and reports whether a continuation ran
// with r. Entries past their deadline are expired instead.
func (t *Table) Complete(id string, r Result) bool {
	now := t.now()

	t.mu.Lock()
	e, ok := t.pending[id]
	if !ok {
		ts, finished := t.done[id]
		t.mu.Unlock()
		if finished {
			t.checkConflict(id, ts, r)
		}
		return false
	}

	delete(t.pending, id)

	if now.Sub(e.created) > t.timeout {
		expired := t.timeoutResult(id)
		t.done[id] = tombstone{result: expired, at: now, expired: true}
		t.mu.Unlock()
		e.fn(expired)
		return false
	}

	t.done[id] = tombstone{result: r, at: now}
	t.mu.Unlock()

	e.fn(r)
	return true
}

// Cancel fails a pending entry with err. The failure originates locally, so
// a remote completion arriving later is ignored quietly like one after
// expiry.
func (t *Table) Cancel(id string, err error) bool {
	now := t.now()

	t.mu.Lock()
	e, ok := t.pending[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.pending, id)
	t.done[id] = tombstone{result: Result{Err: err}, at: now, expired: true}
	t.mu.Unlock()

	e.fn(Result{Err: err})
	return true
}

func (t *Table) checkConflict(id string, ts tombstone, r Result) {
	if ts.expired {
		t.log.Debug().Str("id", id).Msg("late completion after expiry ignored")
		return
	}
	if sameResult(ts.result, r) {
		return
	}
	t.log.Error().
		Str("id", id).
		Interface("first", ts.result.Value).
		Interface("second", r.Value).
		Msg("conflicting completion discarded")
}

func sameResult(a, b Result) bool {
	if (a.Err == nil) != (b.Err == nil) {
		return false
	}
	if a.Err != nil && a.Err.Error() != b.Err.Error() {
		return false
	}
	return reflect.DeepEqual(a.Value, b.Value)
}

func (t *Table) timeoutResult(id string) Result {
	return Result{Err: protocol.Errorf(protocol.CodeTimeout, "request %s expired after %s", id, t.timeout)}
}

// Sweep expires every entry older than the timeout, runs their
// continuations with a Timeout failure, and forgets old tombstones. It
// returns the number of expired entries.
func (t *Table) Sweep() int {
	now := t.now()

	type expiredEntry struct {
		fn     Continuation
		result Result
	}
	var expired []expiredEntry

	t.mu.Lock()
	for id, e := range t.pending {
		if now.Sub(e.created) <= t.timeout {
			continue
		}
		r := t.timeoutResult(id)
		delete(t.pending, id)
		t.done[id] = tombstone{result: r, at: now, expired: true}
		expired = append(expired, expiredEntry{fn: e.fn, result: r})
	}
	for id, ts := range t.done {
		if now.Sub(ts.at) > t.timeout {
			delete(t.done, id)
		}
	}
	t.mu.Unlock()

	for _, e := range expired {
		e.fn(e.result)
	}
	return len(expired)
}

// FailAll fails every pending entry with err and returns how many there
// were.
func (t *Table) FailAll(err error) int {
	now := t.now()

	t.mu.Lock()
	fns := make([]Continuation, 0, len(t.pending))
	for id, e := range t.pending {
		fns = append(fns, e.fn)
		t.done[id] = tombstone{result: Result{Err: err}, at: now, expired: true}
	}
	t.pending = make(map[string]entry)
	t.mu.Unlock()

	for _, fn := range fns {
		fn(Result{Err: err})
	}
	return len(fns)
}

// CancelWhere fails every pending entry whose identifier matches with err.
func (t *Table) CancelWhere(match func(id string) bool, err error) int {
	now := t.now()

	t.mu.Lock()
	var fns []Continuation
	for id, e := range t.pending {
		if !match(id) {
			continue
		}
		delete(t.pending, id)
		t.done[id] = tombstone{result: Result{Err: err}, at: now, expired: true}
		fns = append(fns, e.fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(Result{Err: err})
	}
	return len(fns)
}

// Len returns the number of pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Pending reports whether id is awaiting completion.
func (t *Table) Pending(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[id]
	return ok
}

// Run sweeps on every interval tick until ctx is done.
func (t *Table) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.log.Debug().Int("expired", n).Msg("swept correlation table")
			}
		}
	}
}
