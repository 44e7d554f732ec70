// Package state holds the mutable application state behind one mutex.
// Readers get value snapshots; nothing is called back while the lock is
// held.
package state

import (
	"sort"
	"sync"

	"github.com/chmouel/gw/internal/models"
)

// Stale tracks which parts of a row still show cached values. Local
// covers last commit, pull/push, behind|ahead and changes; Forge covers
// the PR and checks cells.
type Stale struct {
	Local bool
	Forge bool
}

// Row pairs a live worktree with its latest snapshot and staleness.
type Row struct {
	Worktree models.Worktree
	Status   models.WorktreeStatus
	Stale    Stale
}

// State is the single authority over rows, cursor and refresh flags.
type State struct {
	mu sync.Mutex

	order            []string // worktree paths, display order
	rows             map[string]*Row
	cursor           int
	refreshing       bool
	refreshRequested bool
}

// New returns an empty State.
func New() *State {
	return &State{rows: map[string]*Row{}}
}

// SetInitial installs the first worktree listing, seeding each row from
// the cache when a snapshot exists. Rows are ordered by cached last
// commit time, newest first; every cell starts stale.
func (s *State) SetInitial(worktrees []models.Worktree, cached map[string]models.WorktreeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.rows = map[string]*Row{}
	for _, wt := range worktrees {
		st, ok := cached[wt.Key()]
		if !ok {
			st = models.WorktreeStatus{Path: wt.Path, Branch: wt.Branch}
		}
		st.Path = wt.Path
		s.rows[wt.Path] = &Row{
			Worktree: wt,
			Status:   st,
			Stale:    Stale{Local: true, Forge: true},
		}
		s.order = append(s.order, wt.Path)
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.rows[s.order[i]].Status.LastCommitTS > s.rows[s.order[j]].Status.LastCommitTS
	})
	s.clampCursorLocked()
}

// MergeWorktrees reconciles a fresh listing with the display: surviving
// rows keep their position and data, removed rows drop out, new rows
// append at the bottom marked fully stale.
func (s *State) MergeWorktrees(worktrees []models.Worktree) {
	s.mu.Lock()
	defer s.mu.Unlock()

	present := map[string]models.Worktree{}
	for _, wt := range worktrees {
		present[wt.Path] = wt
	}

	kept := s.order[:0]
	for _, path := range s.order {
		wt, ok := present[path]
		if !ok {
			delete(s.rows, path)
			continue
		}
		s.rows[path].Worktree = wt
		delete(present, path)
		kept = append(kept, path)
	}
	s.order = kept

	appended := make([]string, 0, len(present))
	for path := range present {
		appended = append(appended, path)
	}
	sort.Strings(appended)
	for _, path := range appended {
		wt := present[path]
		s.rows[path] = &Row{
			Worktree: wt,
			Status:   models.WorktreeStatus{Path: path, Branch: wt.Branch},
			Stale:    Stale{Local: true, Forge: true},
		}
		s.order = append(s.order, path)
	}
	s.clampCursorLocked()
}

// MarkAllStale dims every cell ahead of a refresh cycle.
func (s *State) MarkAllStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		row.Stale = Stale{Local: true, Forge: true}
	}
}

// SetLocal installs the local-stage result for a row and marks its
// local cells fresh.
func (s *State) SetLocal(path string, st models.WorktreeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[path]
	if !ok {
		return
	}
	forge := row.Status
	st.PRNumber = forge.PRNumber
	st.PRTitle = forge.PRTitle
	st.PRState = forge.PRState
	st.PRURL = forge.PRURL
	st.PRBase = forge.PRBase
	st.ChecksPassed = forge.ChecksPassed
	st.ChecksTotal = forge.ChecksTotal
	st.ChecksState = forge.ChecksState
	row.Status = st
	row.Stale.Local = false
}

// SetForge installs the forge-stage result for a row and marks its
// forge cells fresh.
func (s *State) SetForge(path string, st models.WorktreeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[path]
	if !ok {
		return
	}
	local := row.Status
	st.LastCommitTS = local.LastCommitTS
	st.Upstream = local.Upstream
	st.Ahead = local.Ahead
	st.Behind = local.Behind
	st.ChangesAdded = local.ChangesAdded
	st.ChangesDeleted = local.ChangesDeleted
	st.ChangesTarget = local.ChangesTarget
	st.Dirty = local.Dirty
	row.Status = st
	row.Stale.Forge = false
}

// ClearForge empties the forge cells of every row and marks them fresh,
// used when the forge is unavailable.
func (s *State) ClearForge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		st := row.Status
		st.PRNumber = nil
		st.PRTitle = nil
		st.PRState = nil
		st.PRURL = nil
		st.PRBase = nil
		st.ChecksPassed = nil
		st.ChecksTotal = nil
		st.ChecksState = nil
		row.Status = st
		row.Stale.Forge = false
	}
}

// Row returns a copy of one row.
func (s *State) Row(path string) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[path]
	if !ok {
		return Row{}, false
	}
	return *row, true
}

// Snapshot returns the rows in display order, by value.
func (s *State) Snapshot() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.order))
	for _, path := range s.order {
		out = append(out, *s.rows[path])
	}
	return out
}

// Len returns the row count.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Cursor returns the current cursor index.
func (s *State) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Select moves the cursor to the row with the given path, when present.
func (s *State) Select(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.order {
		if p == path {
			s.cursor = i
			return
		}
	}
}

// MoveCursor shifts the cursor by delta, clamped to the row range.
func (s *State) MoveCursor(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor += delta
	s.clampCursorLocked()
}

// Selected returns the row under the cursor.
func (s *State) Selected() (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < 0 || s.cursor >= len(s.order) {
		return Row{}, false
	}
	return *s.rows[s.order[s.cursor]], true
}

// BeginRefresh tries to start a refresh cycle. When one is already
// running it records a pending request instead and returns false.
func (s *State) BeginRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing {
		s.refreshRequested = true
		return false
	}
	s.refreshing = true
	return true
}

// EndRefresh finishes a cycle. It reports whether a request arrived
// while the cycle ran; the pending flag is consumed either way.
func (s *State) EndRefresh() (rekick bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing = false
	rekick = s.refreshRequested
	s.refreshRequested = false
	return rekick
}

// Refreshing reports whether a cycle is running.
func (s *State) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

func (s *State) clampCursorLocked() {
	if s.cursor >= len(s.order) {
		s.cursor = len(s.order) - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}
