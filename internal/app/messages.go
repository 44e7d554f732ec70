package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/chmouel/gw/internal/refresh"
)

// refreshEventMsg wraps one scheduler event.
type refreshEventMsg refresh.Event

// opDoneMsg reports the outcome of a lifecycle operation.
type opDoneMsg struct {
	action  string // "pull", "push", "delete", "new", "rename"
	success string // status line on success
	err     error
}

// deletePromptMsg carries the assembled delete confirmation text.
type deletePromptMsg struct {
	path    string
	branch  string
	message string
}

// watchTriggerMsg asks for a refresh after a filesystem change.
type watchTriggerMsg struct{}

// waitForEvent blocks on the scheduler stream and delivers one event.
func waitForEvent(events <-chan refresh.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return refreshEventMsg(ev)
	}
}
