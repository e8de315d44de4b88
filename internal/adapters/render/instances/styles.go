package instances

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	role       lipgloss.Style
	host       lipgloss.Style
	detail     lipgloss.Style
	key        lipgloss.Style
	hidden     lipgloss.Style
	section    lipgloss.Style
	empty      lipgloss.Style
	teleporter lipgloss.Style
	api        lipgloss.Style
	enabled    lipgloss.Style
	disabled   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		role:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		host:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		key:        lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		hidden:     lipgloss.NewStyle().Faint(true),
		section:    lipgloss.NewStyle().MarginTop(1),
		empty:      lipgloss.NewStyle().Faint(true),
		teleporter: lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		api:        lipgloss.NewStyle().Foreground(lipgloss.Color("80")),
		enabled:    lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		disabled:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}
