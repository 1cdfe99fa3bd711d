package monitor

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hay-kot/deskbus/internal/broker"
	"github.com/hay-kot/deskbus/internal/core/protocol"
)

const loadTimeout = 5 * time.Second

// stateLoadedMsg is sent when a broker snapshot arrives.
type stateLoadedMsg struct {
	state broker.State
	err   error
}

// historyLoadedMsg is sent when a channel's history arrives.
type historyLoadedMsg struct {
	channel  string
	contexts []protocol.Context
	err      error
}

// refreshTickMsg triggers the next snapshot.
type refreshTickMsg struct{}

func loadState(src Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		st, err := src.State(ctx)
		return stateLoadedMsg{state: st, err: err}
	}
}

func loadHistory(src Source, channel string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		contexts, err := src.History(ctx, channel)
		return historyLoadedMsg{channel: channel, contexts: contexts, err: err}
	}
}

func scheduleRefresh(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		return nil
	}
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}
