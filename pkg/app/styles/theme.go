package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Color palette
	Primary = lipgloss.Color("#FF6B9D")
	Success = lipgloss.Color("#C3E88D")
	Error   = lipgloss.Color("#F07178")
	Muted   = lipgloss.Color("#546E7A")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true).
			MarginBottom(1)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error)

	TableHeaderBorder = lipgloss.NormalBorder()
)
