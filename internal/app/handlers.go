package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chmouel/gw/internal/app/screen"
	"github.com/chmouel/gw/internal/git"
	"github.com/chmouel/gw/internal/models"
	"github.com/chmouel/gw/internal/state"
)

// errorText builds the status line for a failed operation, e.g.
// "Pull failed: <stderr>".
func errorText(action string, err error) string {
	label := strings.ToUpper(action[:1]) + action[1:]
	var cmdErr *git.CommandError
	if errors.As(err, &cmdErr) {
		return fmt.Sprintf("%s failed: %s", label, cmdErr.Message())
	}
	return fmt.Sprintf("%s failed: %s", label, err.Error())
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.screen != nil {
		next, cmd := m.screen.Update(msg)
		m.screen = next
		return m, cmd
	}
	if m.busy {
		if msg.String() == "ctrl+c" {
			m.quitting = true
			m.Shutdown()
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "up", "k":
		m.state.MoveCursor(-1)
	case "down", "j":
		m.state.MoveCursor(1)
	case "enter":
		if row, ok := m.state.Selected(); ok {
			m.selectedPath = row.Worktree.Path
		}
		m.quitting = true
		m.Shutdown()
		return m, tea.Quit
	case "q", "esc", "ctrl+c":
		m.quitting = true
		m.Shutdown()
		return m, tea.Quit
	case "r":
		m.sched.Request(m.ctx)
	case "n":
		return m, m.openNewInput()
	case "D":
		return m, m.startDelete()
	case "R":
		return m, m.openRenameInput()
	case "p":
		return m, m.startPull()
	case "P":
		return m, m.startPush()
	}
	return m, nil
}

// requireBranchRow fetches the selected row and rejects detached ones
// with the standard status message. op is the verb for the message.
func (m *Model) requireBranchRow(op string) (state.Row, bool) {
	row, ok := m.state.Selected()
	if !ok {
		return state.Row{}, false
	}
	if row.Worktree.IsDetached() {
		m.setStatus(fmt.Sprintf("Cannot %s a detached worktree.", op), true)
		return state.Row{}, false
	}
	return row, true
}

func (m *Model) beginOp(label string) {
	m.busy = true
	m.busyLabel = label
	m.setStatus("", false)
}

func (m *Model) startPull() tea.Cmd {
	row, ok := m.requireBranchRow("pull")
	if !ok {
		return nil
	}
	m.beginOp("Pulling " + row.Worktree.BranchName() + "...")
	path := row.Worktree.Path
	branch := row.Worktree.BranchName()
	return tea.Batch(m.spin.Tick, func() tea.Msg {
		err := m.git.Pull(m.ctx, path)
		return opDoneMsg{action: "pull", success: "Pulled " + branch + ".", err: err}
	})
}

func (m *Model) startPush() tea.Cmd {
	row, ok := m.requireBranchRow("push")
	if !ok {
		return nil
	}
	m.beginOp("Pushing " + row.Worktree.BranchName() + "...")
	path := row.Worktree.Path
	branch := row.Worktree.BranchName()
	return tea.Batch(m.spin.Tick, func() tea.Msg {
		var err error
		if m.git.Upstream(m.ctx, m.root, branch) == nil {
			err = m.git.PushSetUpstream(m.ctx, path, branch)
		} else {
			err = m.git.Push(m.ctx, path)
		}
		return opDoneMsg{action: "push", success: "Pushed " + branch + ".", err: err}
	})
}

// startDelete gathers the confirmation warnings off the UI goroutine,
// then opens the confirm modal via deletePromptMsg.
func (m *Model) startDelete() tea.Cmd {
	row, ok := m.requireBranchRow("delete")
	if !ok {
		return nil
	}
	path := row.Worktree.Path
	branch := row.Worktree.BranchName()
	dirty := row.Status.Dirty != nil && *row.Status.Dirty
	return func() tea.Msg {
		var reasons []string
		if dirty {
			reasons = append(reasons, "has uncommitted changes")
		}
		// Unpushed commits on a branch already merged into the default
		// branch are reachable from it, so only warn when they are not.
		merged := m.git.IsAncestor(m.ctx, m.root, branch, "origin/"+m.defaultBranch)
		if !merged && m.git.HasUnpushedCommits(m.ctx, m.root, branch) {
			reasons = append(reasons, "has unpushed commits")
		}
		message := fmt.Sprintf("Delete worktree %s?", branch)
		if len(reasons) > 0 {
			message = fmt.Sprintf("Delete worktree %s? It %s.", branch, strings.Join(reasons, " and "))
		}
		return deletePromptMsg{path: path, branch: branch, message: message}
	}
}

func (m *Model) openDeleteConfirm(prompt deletePromptMsg) tea.Cmd {
	confirm := screen.NewConfirmScreen(prompt.message, m.thm)
	confirm.OnConfirm = func() tea.Cmd {
		m.beginOp("Deleting " + prompt.branch + "...")
		return tea.Batch(m.spin.Tick, func() tea.Msg {
			if err := m.git.RemoveWorktree(m.ctx, m.root, prompt.path); err != nil {
				return opDoneMsg{action: "delete", err: err}
			}
			key := models.CacheKey(prompt.branch, "")
			if err := m.store.Delete(key); err != nil {
				return opDoneMsg{action: "delete", err: err}
			}
			return opDoneMsg{action: "delete", success: "Deleted " + prompt.branch + "."}
		})
	}
	m.screen = confirm
	return nil
}

func (m *Model) openNewInput() tea.Cmd {
	input := screen.NewInputScreen("New worktree", "branch name", "", m.thm)
	input.OnSubmit = func(value string) tea.Cmd {
		m.beginOp("Creating " + value + "...")
		return tea.Batch(m.spin.Tick, func() tea.Msg {
			return m.createWorktree(value)
		})
	}
	m.screen = input
	return nil
}

// createWorktree validates the branch name, then either attaches a
// branch that already exists on origin or creates a fresh one at HEAD.
func (m *Model) createWorktree(branch string) tea.Msg {
	if !m.git.IsValidBranchName(m.ctx, m.root, branch) {
		return opDoneMsg{action: "new", err: fmt.Errorf("invalid branch name %q", branch)}
	}
	if m.git.BranchExists(m.ctx, m.root, branch) {
		return opDoneMsg{action: "new", err: fmt.Errorf("branch %q already exists", branch)}
	}
	path := filepath.Join(m.root, branch)
	if _, err := os.Stat(path); err == nil {
		return opDoneMsg{action: "new", err: fmt.Errorf("path %s already exists", path)}
	}
	if m.git.RemoteBranchExists(m.ctx, m.root, branch) {
		if err := m.git.FetchBranch(m.ctx, m.root, branch); err != nil {
			return opDoneMsg{action: "new", err: err}
		}
		if err := m.git.AttachWorktree(m.ctx, m.root, branch, path); err != nil {
			return opDoneMsg{action: "new", err: err}
		}
		if err := m.git.SetUpstream(m.ctx, m.root, branch, "origin/"+branch); err != nil {
			return opDoneMsg{action: "new", err: err}
		}
	} else if err := m.git.CreateWorktree(m.ctx, m.root, branch, path, ""); err != nil {
		return opDoneMsg{action: "new", err: err}
	}
	return opDoneMsg{action: "new", success: "Created " + branch + "."}
}

func (m *Model) openRenameInput() tea.Cmd {
	row, ok := m.requireBranchRow("rename")
	if !ok {
		return nil
	}
	oldBranch := row.Worktree.BranchName()
	oldPath := row.Worktree.Path
	input := screen.NewInputScreen("Rename "+oldBranch, "new branch name", oldBranch, m.thm)
	input.OnSubmit = func(value string) tea.Cmd {
		if value == oldBranch {
			return nil
		}
		m.beginOp("Renaming " + oldBranch + "...")
		return tea.Batch(m.spin.Tick, func() tea.Msg {
			return m.renameWorktree(oldBranch, oldPath, value)
		})
	}
	m.screen = input
	return nil
}

// renameWorktree renames the branch, relocates the worktree directory
// under the repository root, and carries the cache row over.
func (m *Model) renameWorktree(oldBranch, oldPath, newBranch string) tea.Msg {
	if !m.git.IsValidBranchName(m.ctx, m.root, newBranch) {
		return opDoneMsg{action: "rename", err: fmt.Errorf("invalid branch name %q", newBranch)}
	}
	if m.git.BranchExists(m.ctx, m.root, newBranch) {
		return opDoneMsg{action: "rename", err: fmt.Errorf("branch %q already exists", newBranch)}
	}
	if err := m.git.RenameBranch(m.ctx, m.root, oldBranch, newBranch); err != nil {
		return opDoneMsg{action: "rename", err: err}
	}
	newPath := filepath.Join(m.root, newBranch)
	if err := m.git.MoveWorktree(m.ctx, m.root, oldPath, newPath); err != nil {
		return opDoneMsg{action: "rename", err: err}
	}
	oldKey := models.CacheKey(oldBranch, "")
	newKey := models.CacheKey(newBranch, "")
	if err := m.store.Rename(oldKey, newKey, newBranch, newPath); err != nil {
		return opDoneMsg{action: "rename", err: err}
	}
	return opDoneMsg{action: "rename", success: "Renamed " + oldBranch + " to " + newBranch + "."}
}
