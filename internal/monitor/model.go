// Package monitor implements the live broker dashboard.
package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/deskbus/internal/broker"
	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/styles"
)

// Source provides broker state, usually the HTTP API client.
type Source interface {
	State(ctx context.Context) (broker.State, error)
	History(ctx context.Context, channel string) ([]protocol.Context, error)
}

type pane int

const (
	paneChannels pane = iota
	paneEndpoints
)

// Model is the bubbletea model of the monitor.
type Model struct {
	src      Source
	interval time.Duration
	keys     keyMap
	help     help.Model

	channels  table.Model
	endpoints table.Model
	history   viewport.Model
	focus     pane

	state    broker.State
	selected string
	contexts []protocol.Context
	err      error

	width  int
	height int
}

// New creates a monitor polling src every interval.
func New(src Source, interval time.Duration) Model {
	m := Model{
		src:      src,
		interval: interval,
		keys:     defaultKeys(),
		help:     help.New(),
		channels: newTable([]table.Column{
			{Title: "CHANNEL", Width: 14},
			{Title: "MEMBERS", Width: 8},
			{Title: "SIZE", Width: 5},
			{Title: "LATEST", Width: 24},
		}),
		endpoints: newTable([]table.Column{
			{Title: "IDENTITY", Width: 18},
			{Title: "APP", Width: 12},
			{Title: "CHANNEL", Width: 10},
			{Title: "INTENTS", Width: 20},
		}),
		history: viewport.New(80, 10),
	}
	m.channels.Focus()
	return m
}

func newTable(cols []table.Column) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.Foreground(styles.ColorBlue).Bold(true)
	s.Selected = s.Selected.Foreground(styles.ColorWhite).Background(styles.ColorGray).Bold(false)
	t.SetStyles(s)
	return t
}

// Init loads the first snapshot and starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(loadState(m.src), scheduleRefresh(m.interval))
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.history.SetContent(renderHistory(m.contexts, m.history.Width))
		return m, nil

	case refreshTickMsg:
		return m, tea.Batch(loadState(m.src), scheduleRefresh(m.interval))

	case stateLoadedMsg:
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.state = msg.state
		m.channels.SetRows(channelRows(m.state.Channels))
		m.endpoints.SetRows(endpointRows(m.state.Endpoints))
		cmd := m.selectChannel()
		return m, cmd

	case historyLoadedMsg:
		if msg.channel != m.selected {
			return m, nil
		}
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.contexts = msg.contexts
		m.history.SetContent(renderHistory(m.contexts, m.history.Width))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, loadState(m.src)
	case key.Matches(msg, m.keys.Switch):
		if m.focus == paneChannels {
			m.focus = paneEndpoints
			m.channels.Blur()
			m.endpoints.Focus()
		} else {
			m.focus = paneChannels
			m.endpoints.Blur()
			m.channels.Focus()
		}
		return m, nil
	case key.Matches(msg, m.keys.Scroll):
		var cmd tea.Cmd
		m.history, cmd = m.history.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.focus == paneEndpoints {
		m.endpoints, cmd = m.endpoints.Update(msg)
		return m, cmd
	}

	m.channels, cmd = m.channels.Update(msg)
	load := m.selectChannel()
	return m, tea.Batch(cmd, load)
}

// selectChannel follows the channel table cursor and loads the history of
// a newly selected channel.
func (m *Model) selectChannel() tea.Cmd {
	row := m.channels.SelectedRow()
	if row == nil {
		m.selected = ""
		m.contexts = nil
		m.history.SetContent("")
		return nil
	}

	if row[0] == m.selected {
		return loadHistory(m.src, m.selected)
	}

	m.selected = row[0]
	m.contexts = nil
	m.history.SetContent("")
	m.history.GotoTop()
	return loadHistory(m.src, m.selected)
}

func (m *Model) layout() {
	if m.width == 0 {
		return
	}

	half := max(m.width/2-4, 20)
	tableHeight := max(m.height/3, 5)

	m.channels.SetWidth(half)
	m.channels.SetHeight(tableHeight)
	m.endpoints.SetWidth(half)
	m.endpoints.SetHeight(tableHeight)

	// banner, panel borders, status line and help
	chrome := 3 + 4 + 2 + 2
	if m.help.ShowAll {
		chrome += 2
	}
	m.history.Width = max(m.width-4, 20)
	m.history.Height = max(m.height-tableHeight-chrome-4, 3)
	m.help.Width = m.width
}
