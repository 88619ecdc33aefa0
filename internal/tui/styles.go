// Package tui provides the terminal chat interface.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#7C9CFF")
	colorAccent  = lipgloss.Color("#5EEAD4")
	colorBorder  = lipgloss.Color("#3B4252")
	colorText    = lipgloss.Color("#E5E9F0")
	colorTextDim = lipgloss.Color("#7B8496")
	colorError   = lipgloss.Color("#F87171")
	colorUserBg  = lipgloss.Color("#1E3A8A")
)

const sidebarWidth = 28

var (
	sidebarStyle = lipgloss.NewStyle().
			Width(sidebarWidth).
			Padding(1, 1).
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(colorBorder)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)

	labelStyle = lipgloss.NewStyle().Foreground(colorTextDim)

	valueStyle = lipgloss.NewStyle().Foreground(colorText)

	hintStyle = lipgloss.NewStyle().Foreground(colorTextDim).Italic(true)

	userLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)

	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)

	timestampStyle = lipgloss.NewStyle().Foreground(colorTextDim)

	userBubbleStyle = lipgloss.NewStyle().
			Background(colorUserBg).
			Foreground(colorText).
			Padding(0, 1)

	assistantBubbleStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorder).
				Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().Foreground(colorTextDim).Blink(true)

	inputPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	toastStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorError).
			Bold(true).
			Padding(0, 1)

	welcomeStyle = lipgloss.NewStyle().Foreground(colorTextDim).Align(lipgloss.Center)
)
