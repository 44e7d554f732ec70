package screen

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmouel/gw/internal/theme"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestConfirmScreenKeys(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		wantConfirm bool
		wantCancel  bool
		wantOpen    bool
	}{
		{name: "y confirms", key: "y", wantConfirm: true},
		{name: "Y confirms", key: "Y", wantConfirm: true},
		{name: "n cancels", key: "n", wantCancel: true},
		{name: "N cancels", key: "N", wantCancel: true},
		{name: "esc cancels", key: "esc", wantCancel: true},
		{name: "other keys ignored", key: "x", wantOpen: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			confirmed, cancelled := false, false
			s := NewConfirmScreen("Delete worktree x?", theme.Dracula())
			s.OnConfirm = func() tea.Cmd { confirmed = true; return nil }
			s.OnCancel = func() tea.Cmd { cancelled = true; return nil }

			next, _ := s.Update(key(tt.key))
			assert.Equal(t, tt.wantConfirm, confirmed)
			assert.Equal(t, tt.wantCancel, cancelled)
			if tt.wantOpen {
				assert.NotNil(t, next)
			} else {
				assert.Nil(t, next)
			}
		})
	}
}

func TestInputScreenSubmit(t *testing.T) {
	var got string
	s := NewInputScreen("New worktree", "branch name", "", theme.Dracula())
	s.OnSubmit = func(value string) tea.Cmd { got = value; return nil }

	for _, r := range "  feature-x " {
		next, _ := s.Update(key(string(r)))
		require.NotNil(t, next)
	}
	next, _ := s.Update(key("enter"))
	assert.Nil(t, next)
	assert.Equal(t, "feature-x", got)
}

func TestInputScreenEmptyCancels(t *testing.T) {
	cancelled := false
	s := NewInputScreen("New worktree", "branch name", "", theme.Dracula())
	s.OnCancel = func() tea.Cmd { cancelled = true; return nil }

	next, _ := s.Update(key("enter"))
	assert.Nil(t, next)
	assert.True(t, cancelled)
}

func TestInputScreenEscCancels(t *testing.T) {
	cancelled := false
	s := NewInputScreen("Rename x", "", "x", theme.Dracula())
	s.OnCancel = func() tea.Cmd { cancelled = true; return nil }

	next, _ := s.Update(key("esc"))
	assert.Nil(t, next)
	assert.True(t, cancelled)
}

func TestInputScreenValidation(t *testing.T) {
	submitted := false
	s := NewInputScreen("New worktree", "", "bad name", theme.Dracula())
	s.OnSubmit = func(string) tea.Cmd { submitted = true; return nil }
	s.SetValidation(func(value string) string {
		if value == "bad name" {
			return "invalid branch name"
		}
		return ""
	})

	next, _ := s.Update(key("enter"))
	require.NotNil(t, next)
	assert.False(t, submitted)
	assert.Equal(t, "invalid branch name", s.ErrorMsg)
}
