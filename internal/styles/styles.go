// Package styles provides shared lipgloss styles for CLI and TUI components.
package styles

import (
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Tokyo Night color palette.
var (
	ColorRed    = lipgloss.Color("#d75f6b")
	ColorGreen  = lipgloss.Color("#9ece6a")
	ColorYellow = lipgloss.Color("#e0af68")
	ColorBlue   = lipgloss.Color("#7aa2f7")
	ColorGray   = lipgloss.Color("#565f89")
	ColorWhite  = lipgloss.Color("#c0caf5")
)

// Banner is the monitor header.
const Banner = `╺┳┓┏━╸┏━┓╻┏ ┏┓ ╻ ╻┏━┓
 ┃┃┣╸ ┗━┓┣┻┓┣┻┓┃ ┃┗━┓
╺┻┛┗━╸┗━┛╹ ╹┗━┛┗━┛┗━┛`

var (
	BannerStyle = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)

	TitleStyle = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	WarnStyle    = lipgloss.NewStyle().Foreground(ColorYellow)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorRed)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorGray)
	TextStyle    = lipgloss.NewStyle().Foreground(ColorWhite)

	SectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	// PanelStyle frames a monitor pane.
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)

	// ActivePanelStyle frames the focused monitor pane.
	ActivePanelStyle = PanelStyle.BorderForeground(ColorBlue)
)

// Swatch renders a colored block for a channel color such as "#FF0000".
// An empty color renders a muted placeholder.
func Swatch(color string) string {
	if color == "" {
		return MutedStyle.Render("○")
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
}

// FormTheme returns the huh theme used by interactive prompts.
func FormTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = t.Focused.Title.Foreground(ColorBlue).Bold(true)
	t.Focused.Description = t.Focused.Description.Foreground(ColorGray)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(ColorBlue)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(ColorGreen)
	t.Focused.UnselectedOption = t.Focused.UnselectedOption.Foreground(ColorWhite)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(ColorRed)
	t.Blurred = t.Focused

	return t
}
