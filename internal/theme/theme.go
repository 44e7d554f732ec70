// Package theme provides the color themes used by the TUI.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme defines all colors used in the application UI.
type Theme struct {
	Accent    lipgloss.Color
	AccentDim lipgloss.Color
	MutedFg   lipgloss.Color
	TextFg    lipgloss.Color
	SuccessFg lipgloss.Color
	WarnFg    lipgloss.Color
	ErrorFg   lipgloss.Color
	Cyan      lipgloss.Color
	Yellow    lipgloss.Color
}

// Theme names.
const (
	DraculaName    = "dracula"
	CleanLightName = "clean-light"
)

// Dracula returns the Dracula theme (dark background, vibrant colors).
func Dracula() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#BD93F9"), // Purple (primary accent)
		AccentDim: lipgloss.Color("#44475A"), // Current Line / Selection
		MutedFg:   lipgloss.Color("#6272A4"), // Comment (muted text)
		TextFg:    lipgloss.Color("#F8F8F2"), // Foreground (primary text)
		SuccessFg: lipgloss.Color("#50FA7B"), // Green (success)
		WarnFg:    lipgloss.Color("#FFB86C"), // Orange (warning)
		ErrorFg:   lipgloss.Color("#FF5555"), // Red (error)
		Cyan:      lipgloss.Color("#8BE9FD"), // Cyan (info/secondary)
		Yellow:    lipgloss.Color("#F1FA8C"), // Yellow (highlight)
	}
}

// CleanLight returns a minimal light theme.
func CleanLight() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#6639BA"),
		AccentDim: lipgloss.Color("#F3E8FF"),
		MutedFg:   lipgloss.Color("#6E7781"),
		TextFg:    lipgloss.Color("#24292F"),
		SuccessFg: lipgloss.Color("#059669"),
		WarnFg:    lipgloss.Color("#D97706"),
		ErrorFg:   lipgloss.Color("#DC2626"),
		Cyan:      lipgloss.Color("#0891B2"),
		Yellow:    lipgloss.Color("#CA8A04"),
	}
}

// Get returns the theme for a name, defaulting to Dracula.
func Get(name string) *Theme {
	switch name {
	case CleanLightName:
		return CleanLight()
	default:
		return Dracula()
	}
}

// AvailableThemes lists the selectable theme names.
func AvailableThemes() []string {
	return []string{DraculaName, CleanLightName}
}
