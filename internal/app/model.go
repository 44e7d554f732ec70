// Package app is the bubbletea front end: the worktree table, its key
// bindings and the modal flows for the lifecycle operations.
package app

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chmouel/gw/internal/app/screen"
	"github.com/chmouel/gw/internal/cache"
	"github.com/chmouel/gw/internal/git"
	"github.com/chmouel/gw/internal/refresh"
	"github.com/chmouel/gw/internal/state"
	"github.com/chmouel/gw/internal/theme"
)

const commandBar = "Enter: open  |  n: new  |  D: delete  |  R: rename  |  p: pull  |  P: push  |  r: refresh  |  q/Esc: quit"

// Options carries everything the model needs at startup.
type Options struct {
	Root          string
	DefaultBranch string
	Warning       string
	AutoRefresh   bool
}

// Model is the top-level bubbletea model.
type Model struct {
	ctx   context.Context
	git   *git.Service
	store *cache.Store
	state *state.State
	sched *refresh.Scheduler
	thm   *theme.Theme

	root          string
	defaultBranch string
	warning       string

	screen    screen.Screen
	spin      spinner.Model
	busy      bool
	busyLabel string

	statusLine  string
	statusIsErr bool

	watcher *gitWatcher

	width, height int

	selectedPath string
	quitting     bool
}

// New assembles the model. The scheduler must already be wired to st.
func New(ctx context.Context, gitSvc *git.Service, store *cache.Store, st *state.State, sched *refresh.Scheduler, thm *theme.Theme, opts Options) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(thm.Accent)

	m := &Model{
		ctx:           ctx,
		git:           gitSvc,
		store:         store,
		state:         st,
		sched:         sched,
		thm:           thm,
		root:          opts.Root,
		defaultBranch: opts.DefaultBranch,
		warning:       opts.Warning,
		spin:          sp,
	}
	if opts.AutoRefresh {
		if w, err := newGitWatcher(filepath.Join(opts.Root, ".git")); err == nil {
			m.watcher = w
		}
	}
	return m
}

// SelectedPath returns the worktree chosen with Enter, or "".
func (m *Model) SelectedPath() string {
	return m.selectedPath
}

// Init kicks the first refresh and starts listening for events.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForEvent(m.sched.Events()),
		m.spin.Tick,
		func() tea.Msg {
			m.sched.Request(m.ctx)
			return nil
		},
	}
	if m.watcher != nil {
		cmds = append(cmds, m.waitForWatch())
	}
	return tea.Batch(cmds...)
}

func (m *Model) waitForWatch() tea.Cmd {
	events := m.watcher.Events()
	return func() tea.Msg {
		if _, ok := <-events; !ok {
			return nil
		}
		return watchTriggerMsg{}
	}
}

// Update is the bubbletea message loop.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case refreshEventMsg:
		if msg.Kind == refresh.EventWarning {
			m.setStatus(msg.Message, true)
		}
		return m, waitForEvent(m.sched.Events())

	case watchTriggerMsg:
		m.sched.Request(m.ctx)
		return m, m.waitForWatch()

	case deletePromptMsg:
		return m, m.openDeleteConfirm(msg)

	case opDoneMsg:
		m.busy = false
		m.busyLabel = ""
		if msg.err != nil {
			m.setStatus(errorText(msg.action, msg.err), true)
			return m, nil
		}
		m.setStatus(msg.success, false)
		m.sched.Request(m.ctx)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) setStatus(text string, isErr bool) {
	m.statusLine = text
	m.statusIsErr = isErr
}

// Shutdown releases the watcher and stops the scheduler.
func (m *Model) Shutdown() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
	m.sched.Stop()
}

// View renders the whole screen: command bar, status and warning lines,
// the table, and a spinner footer during refreshes and operations.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	barStyle := lipgloss.NewStyle().Foreground(m.thm.MutedFg)
	headerStyle := lipgloss.NewStyle().Foreground(m.thm.Accent).Bold(true)
	sepStyle := lipgloss.NewStyle().Foreground(m.thm.MutedFg)
	warnStyle := lipgloss.NewStyle().Foreground(m.thm.WarnFg)

	styles := rowStyles{
		normal:      lipgloss.NewStyle().Foreground(m.thm.TextFg),
		stale:       lipgloss.NewStyle().Foreground(m.thm.TextFg).Faint(true),
		selectionBg: m.thm.AccentDim,
	}

	var b strings.Builder
	b.WriteString(barStyle.Render(commandBar))
	b.WriteString("\n")
	if m.statusLine != "" {
		style := lipgloss.NewStyle().Foreground(m.thm.SuccessFg)
		if m.statusIsErr {
			style = lipgloss.NewStyle().Foreground(m.thm.ErrorFg)
		}
		b.WriteString(style.Render(m.statusLine))
		b.WriteString("\n")
	}
	if m.warning != "" {
		b.WriteString(warnStyle.Render(m.warning))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(renderHeader(headerStyle))
	b.WriteString("\n")
	b.WriteString(renderSeparator(sepStyle))
	b.WriteString("\n")

	rows := m.state.Snapshot()
	cursor := m.state.Cursor()
	for i, row := range rows {
		b.WriteString(renderRow(row, m.defaultBranch, i == cursor, styles))
		b.WriteString("\n")
	}

	if m.busy {
		b.WriteString("\n")
		b.WriteString(m.spin.View())
		b.WriteString(" ")
		b.WriteString(barStyle.Render(m.busyLabel))
	} else if m.state.Refreshing() {
		b.WriteString("\n")
		b.WriteString(m.spin.View())
		b.WriteString(" ")
		b.WriteString(barStyle.Render("Refreshing..."))
	}

	view := b.String()
	if m.screen != nil && m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.screen.View())
	}
	return view
}
