package monitor

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/deskbus/internal/broker"
	"github.com/hay-kot/deskbus/internal/core/protocol"
)

type fakeSource struct {
	state   broker.State
	history map[string][]protocol.Context
	err     error
}

func (f *fakeSource) State(context.Context) (broker.State, error) {
	return f.state, f.err
}

func (f *fakeSource) History(_ context.Context, channel string) ([]protocol.Context, error) {
	return f.history[channel], f.err
}

func newSource() *fakeSource {
	return &fakeSource{
		state: broker.State{
			Endpoints: []broker.EndpointState{
				{Identity: "w1", App: "charts", Channel: "red", Intents: []string{"ViewChart"}},
				{Identity: "w2", Channel: "default"},
			},
			Channels: []broker.ChannelState{
				{ID: "red", Size: 1, Members: 1, Latest: protocol.Context{"type": "fdc3.instrument"}},
				{ID: "default", Members: 1},
			},
			Intents: []broker.IntentState{{Name: "ViewChart", Listeners: []string{"w1"}}},
		},
		history: map[string][]protocol.Context{
			"red": {{"type": "fdc3.instrument", "id": map[string]any{"ticker": "AAPL"}}},
		},
	}
}

// drive runs cmd and feeds the resulting message back into the model.
func drive(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_LoadsStateAndHistory(t *testing.T) {
	src := newSource()
	m := New(src, 0)
	m, _ = update(m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m, cmd := update(m, loadState(src)())
	require.NoError(t, m.err)
	assert.Len(t, m.channels.Rows(), 2)
	assert.Len(t, m.endpoints.Rows(), 2)
	assert.Equal(t, "red", m.selected)

	m = drive(t, m, cmd)
	require.Len(t, m.contexts, 1)
	assert.Equal(t, "fdc3.instrument", m.contexts[0].Type())

	view := m.View()
	assert.Contains(t, view, "w1")
	assert.Contains(t, view, "ViewChart")
	assert.Contains(t, view, "2 endpoint(s)")
}

func TestModel_SelectFollowsCursor(t *testing.T) {
	src := newSource()
	m := New(src, 0)
	m, _ = update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(m, loadState(src)())

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "default", m.selected)
	assert.Empty(t, m.contexts)
	require.NotNil(t, cmd)
}

func TestModel_StaleHistoryIgnored(t *testing.T) {
	src := newSource()
	m := New(src, 0)
	m, _ = update(m, loadState(src)())

	m, _ = update(m, historyLoadedMsg{channel: "other", contexts: []protocol.Context{{"type": "x"}}})
	assert.Empty(t, m.contexts)
}

func TestModel_Errors(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	m := New(src, 0)

	m, _ = update(m, loadState(src)())
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "connection refused")
}

func TestModel_Keys(t *testing.T) {
	m := New(newSource(), 0)
	assert.Equal(t, paneChannels, m.focus)

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, paneEndpoints, m.focus)
	assert.True(t, m.endpoints.Focused())
	assert.False(t, m.channels.Focused())

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	assert.True(t, m.help.ShowAll)

	_, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestHistoryMarkdown(t *testing.T) {
	assert.Contains(t, historyMarkdown(nil), "No contexts")

	md := historyMarkdown([]protocol.Context{
		{"type": "fdc3.instrument"},
		{"type": "fdc3.contact"},
	})
	assert.Contains(t, md, "### 1. fdc3.instrument")
	assert.Contains(t, md, "### 2. fdc3.contact")
	assert.Contains(t, md, "```json")
}
