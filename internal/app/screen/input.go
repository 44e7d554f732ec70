package screen

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chmouel/gw/internal/theme"
)

// InputScreen displays a modal text prompt with optional validation.
// Enter submits the trimmed value; an empty value or Esc cancels.
type InputScreen struct {
	Prompt   string
	Input    textinput.Model
	ErrorMsg string
	Thm      *theme.Theme

	// Validate returns an error message, or "" when the value is fine.
	Validate func(string) string

	OnSubmit func(value string) tea.Cmd
	OnCancel func() tea.Cmd

	boxWidth int
}

// NewInputScreen creates an input screen with the given prompt.
func NewInputScreen(prompt, placeholder, value string, thm *theme.Theme) *InputScreen {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.SetValue(value)
	ti.Focus()
	ti.CharLimit = 200
	ti.Prompt = ""
	ti.TextStyle = lipgloss.NewStyle().Foreground(thm.TextFg)
	ti.Width = 52

	return &InputScreen{
		Prompt:   prompt,
		Input:    ti,
		Thm:      thm,
		boxWidth: 60,
	}
}

// SetValidation sets a validation function that returns an error message.
func (s *InputScreen) SetValidation(fn func(string) string) {
	s.Validate = fn
}

// Type returns the screen type.
func (s *InputScreen) Type() Type {
	return TypeInput
}

// Update handles keyboard input for the input screen.
// Returns nil to signal the screen should be closed.
func (s *InputScreen) Update(msg tea.KeyMsg) (Screen, tea.Cmd) {
	switch msg.String() {
	case keyEnter:
		value := strings.TrimSpace(s.Input.Value())
		if value == "" {
			if s.OnCancel != nil {
				return nil, s.OnCancel()
			}
			return nil, nil
		}
		if s.Validate != nil {
			if errMsg := strings.TrimSpace(s.Validate(value)); errMsg != "" {
				s.ErrorMsg = errMsg
				return s, nil
			}
		}
		if s.OnSubmit != nil {
			return nil, s.OnSubmit(value)
		}
		return nil, nil

	case keyEsc, keyCtrlC:
		if s.OnCancel != nil {
			return nil, s.OnCancel()
		}
		return nil, nil
	}

	var cmd tea.Cmd
	s.Input, cmd = s.Input.Update(msg)
	s.ErrorMsg = ""
	return s, cmd
}

// View renders the input box.
func (s *InputScreen) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(s.Thm.Accent).
		Padding(1, 2).
		Width(s.boxWidth)

	promptStyle := lipgloss.NewStyle().
		Foreground(s.Thm.Accent).
		Bold(true)

	var b strings.Builder
	b.WriteString(promptStyle.Render(s.Prompt))
	b.WriteString("\n\n")
	b.WriteString(s.Input.View())
	if s.ErrorMsg != "" {
		errStyle := lipgloss.NewStyle().Foreground(s.Thm.ErrorFg)
		b.WriteString("\n\n")
		b.WriteString(errStyle.Render(s.ErrorMsg))
	}
	return boxStyle.Render(b.String())
}
