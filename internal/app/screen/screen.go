// Package screen provides the modal overlays used by the table view.
package screen

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Screen represents a modal overlay that can handle input and render itself.
type Screen interface {
	// Update processes a key message and returns the updated screen and any
	// command. Returning nil for the Screen signals that it should close.
	Update(msg tea.KeyMsg) (Screen, tea.Cmd)

	// View renders the screen's content.
	View() string

	// Type returns the screen's type identifier.
	Type() Type
}

// Type identifies the kind of screen being displayed.
type Type int

// Screen type constants.
const (
	TypeNone Type = iota
	TypeConfirm
	TypeInput
)

// String returns a human-readable name for the screen type.
func (t Type) String() string {
	switch t {
	case TypeConfirm:
		return "confirm"
	case TypeInput:
		return "input"
	default:
		return "none"
	}
}

// Key constants shared by the screens.
const (
	keyEnter = "enter"
	keyEsc   = "esc"
	keyCtrlC = "ctrl+c"
)
