package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines colors and symbols for the CLI using lipgloss
type Theme struct {
	Bold  lipgloss.Style
	Cyan  lipgloss.Style
	Green lipgloss.Style
	Dim   lipgloss.Style
	Red   lipgloss.Style

	Bullet string
	Arrow  string

	IconDisk  string
	IconWorld string
	IconFile  string
}

func DefaultTheme() *Theme {
	t := &Theme{
		Bold:  lipgloss.NewStyle().Bold(true),
		Cyan:  lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		Green: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Dim:   lipgloss.NewStyle().Faint(true),
		Red:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		Bullet: "•",
		Arrow:  "→",

		IconDisk:  "💾",
		IconWorld: "🌐",
		IconFile:  "📄",
	}

	return t
}

func (t *Theme) Styled(style lipgloss.Style, text string) string {
	return style.Render(text)
}
