package monitor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/deskbus/internal/broker"
	"github.com/hay-kot/deskbus/internal/core/protocol"
	"github.com/hay-kot/deskbus/internal/styles"
)

// View renders the dashboard.
func (m Model) View() string {
	channelsPanel := styles.PanelStyle
	endpointsPanel := styles.PanelStyle
	if m.focus == paneChannels {
		channelsPanel = styles.ActivePanelStyle
	} else {
		endpointsPanel = styles.ActivePanelStyle
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		channelsPanel.Render(styles.TitleStyle.Render("Channels")+"\n"+m.channels.View()),
		endpointsPanel.Render(styles.TitleStyle.Render("Endpoints")+"\n"+m.endpoints.View()),
	)

	title := "History"
	if m.selected != "" {
		title += " " + styles.MutedStyle.Render(m.selected)
	}
	history := styles.PanelStyle.Render(styles.TitleStyle.Render(title) + "\n" + m.history.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		styles.BannerStyle.Render(styles.Banner),
		top,
		history,
		m.status(),
		m.help.View(m.keys),
	)
}

func (m Model) status() string {
	if m.err != nil {
		return styles.ErrorStyle.Render("✗ " + m.err.Error())
	}
	return styles.MutedStyle.Render(fmt.Sprintf(
		"%d endpoint(s) · %d intent(s) · %d pending request(s) · %d pending launch(es)",
		len(m.state.Endpoints), len(m.state.Intents), m.state.PendingRequests, m.state.PendingLaunches,
	))
}

func channelRows(channels []broker.ChannelState) []table.Row {
	rows := make([]table.Row, 0, len(channels))
	for _, ch := range channels {
		latest := ""
		if ch.Latest != nil {
			latest = ch.Latest.Type()
		}
		rows = append(rows, table.Row{ch.ID, fmt.Sprint(ch.Members), fmt.Sprint(ch.Size), latest})
	}
	return rows
}

func endpointRows(endpoints []broker.EndpointState) []table.Row {
	rows := make([]table.Row, 0, len(endpoints))
	for _, ep := range endpoints {
		rows = append(rows, table.Row{ep.Identity, ep.App, ep.Channel, strings.Join(ep.Intents, ",")})
	}
	return rows
}

// historyMarkdown formats contexts, newest first, as fenced JSON blocks.
func historyMarkdown(contexts []protocol.Context) string {
	if len(contexts) == 0 {
		return "_No contexts broadcast on this channel._"
	}

	var b strings.Builder
	for i, c := range contexts {
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "### %d. %s\n\n```json\n%s\n```\n\n", i+1, c.Type(), data)
	}
	return b.String()
}

func renderHistory(contexts []protocol.Context, width int) string {
	md := historyMarkdown(contexts)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("tokyo-night"),
		glamour.WithWordWrap(max(width-2, 20)),
	)
	if err != nil {
		return md
	}

	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}
