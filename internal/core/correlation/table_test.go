package correlation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTable(t *testing.T) (*Table, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(time.Minute, zerolog.New(io.Discard), WithClock(clock.Now)), clock
}

func TestTable_CompleteRunsContinuationOnce(t *testing.T) {
	table, _ := newTestTable(t)

	var calls []Result
	id := table.Begin(func(r Result) { calls = append(calls, r) })

	assert.True(t, table.Pending(id))
	assert.True(t, table.Complete(id, Result{Value: "ok"}))
	assert.False(t, table.Complete(id, Result{Value: "ok"}))

	require.Len(t, calls, 1)
	assert.Equal(t, "ok", calls[0].Value)
	assert.Equal(t, 0, table.Len())
}

func TestTable_CompleteUnknownIsNoop(t *testing.T) {
	table, _ := newTestTable(t)

	assert.NotPanics(t, func() {
		assert.False(t, table.Complete("does-not-exist", Result{Value: 1}))
	})
}

func TestTable_IDsAreUnique(t *testing.T) {
	table, _ := newTestTable(t)

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				id := table.Begin(func(Result) {})
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 4000)
	assert.Equal(t, 4000, table.Len())
}

func TestTable_CompletionOrderIndependent(t *testing.T) {
	table, _ := newTestTable(t)

	got := map[string]any{}
	ids := make([]string, 3)
	for i := range ids {
		ids[i] = table.Begin(func(r Result) { got[r.Value.(string)] = true })
	}

	table.Complete(ids[2], Result{Value: "c"})
	table.Complete(ids[0], Result{Value: "a"})
	table.Complete(ids[1], Result{Value: "b"})

	assert.Equal(t, map[string]any{"a": true, "b": true, "c": true}, got)
}

func TestTable_SweepExpiresOldEntries(t *testing.T) {
	table, clock := newTestTable(t)

	var oldResult, newResult *Result
	oldID := table.Begin(func(r Result) { oldResult = &r })

	clock.Advance(45 * time.Second)
	table.Begin(func(r Result) { newResult = &r })

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, table.Sweep())

	require.NotNil(t, oldResult)
	assert.ErrorIs(t, oldResult.Err, protocol.ErrTimeout)
	assert.Nil(t, newResult)
	assert.False(t, table.Pending(oldID))
	assert.Equal(t, 1, table.Len())

	assert.False(t, table.Complete(oldID, Result{Value: "late"}), "expired entries cannot complete")
}

func TestTable_CompleteAfterDeadlineExpiresWithoutSweep(t *testing.T) {
	table, clock := newTestTable(t)

	var got Result
	id := table.Begin(func(r Result) { got = r })

	clock.Advance(2 * time.Minute)

	assert.False(t, table.Complete(id, Result{Value: "late"}))
	assert.ErrorIs(t, got.Err, protocol.ErrTimeout)
}

func TestTable_ConflictingCompletionIsLogged(t *testing.T) {
	var buf bytes.Buffer
	table := New(time.Minute, zerolog.New(&buf))

	id := table.Begin(func(Result) {})
	table.Complete(id, Result{Value: "first"})

	table.Complete(id, Result{Value: "first"})
	assert.Empty(t, buf.String(), "identical completion is silent")

	table.Complete(id, Result{Value: "second"})
	assert.Contains(t, buf.String(), "conflicting completion discarded")
}

func TestTable_LateCompletionAfterCancelIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	table := New(time.Minute, zerolog.New(&buf).Level(zerolog.InfoLevel))

	var got Result
	id := table.Begin(func(r Result) { got = r })

	assert.True(t, table.Cancel(id, context.Canceled))
	assert.ErrorIs(t, got.Err, context.Canceled)
	assert.False(t, table.Cancel(id, context.Canceled))

	assert.False(t, table.Complete(id, Result{Value: "late"}))
	assert.Empty(t, buf.String())
}

func TestTable_BeginWithID(t *testing.T) {
	table, _ := newTestTable(t)

	require.NoError(t, table.BeginWithID("raise-1", func(Result) {}))
	assert.ErrorIs(t, table.BeginWithID("raise-1", func(Result) {}), ErrDuplicateID)

	table.Complete("raise-1", Result{})
	assert.ErrorIs(t, table.BeginWithID("raise-1", func(Result) {}), ErrDuplicateID)
}

func TestTable_SweepForgetsOldTombstones(t *testing.T) {
	table, clock := newTestTable(t)

	require.NoError(t, table.BeginWithID("x", func(Result) {}))
	table.Complete("x", Result{})

	clock.Advance(2 * time.Minute)
	table.Sweep()

	assert.NoError(t, table.BeginWithID("x", func(Result) {}))
}

func TestTable_FailAll(t *testing.T) {
	table, _ := newTestTable(t)
	boom := errors.New("boom")

	var errs []error
	for range 3 {
		table.Begin(func(r Result) { errs = append(errs, r.Err) })
	}

	assert.Equal(t, 3, table.FailAll(boom))
	assert.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 0, table.Len())
}

func TestTable_CancelWhere(t *testing.T) {
	table, _ := newTestTable(t)

	var cancelled []string
	for _, id := range []string{"a/1", "a/2", "b/1"} {
		require.NoError(t, table.BeginWithID(id, func(r Result) {
			if r.Err != nil {
				cancelled = append(cancelled, r.Err.Error())
			}
		}))
	}

	n := table.CancelWhere(func(id string) bool { return id[0] == 'a' }, protocol.ErrDisconnected)

	assert.Equal(t, 2, n)
	assert.Len(t, cancelled, 2)
	assert.True(t, table.Pending("b/1"))
	assert.False(t, table.Complete("a/1", Result{}), "cancelled entries stay finished")
}
