package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmouel/gw/internal/models"
)

func wt(path, branch string) models.Worktree {
	return models.Worktree{Path: path, Branch: models.Ptr(branch), Head: models.Ptr("abc")}
}

func TestSetInitialOrdersByLastCommit(t *testing.T) {
	st := New()
	cached := map[string]models.WorktreeStatus{
		"a": {Path: "/r/a", LastCommitTS: 100},
		"b": {Path: "/r/b", LastCommitTS: 300},
		"c": {Path: "/r/c", LastCommitTS: 200},
	}
	st.SetInitial([]models.Worktree{wt("/r/a", "a"), wt("/r/b", "b"), wt("/r/c", "c")}, cached)

	rows := st.Snapshot()
	require.Len(t, rows, 3)
	assert.Equal(t, "/r/b", rows[0].Worktree.Path)
	assert.Equal(t, "/r/c", rows[1].Worktree.Path)
	assert.Equal(t, "/r/a", rows[2].Worktree.Path)

	for _, row := range rows {
		assert.True(t, row.Stale.Local)
		assert.True(t, row.Stale.Forge)
	}
}

func TestSetInitialWithoutCache(t *testing.T) {
	st := New()
	st.SetInitial([]models.Worktree{wt("/r/a", "a")}, nil)

	rows := st.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "/r/a", rows[0].Status.Path)
	require.NotNil(t, rows[0].Status.Branch)
	assert.Equal(t, "a", *rows[0].Status.Branch)
}

func TestMergeWorktreesPreservesOrderAndAppends(t *testing.T) {
	st := New()
	cached := map[string]models.WorktreeStatus{
		"a": {Path: "/r/a", LastCommitTS: 100},
		"b": {Path: "/r/b", LastCommitTS: 300},
	}
	st.SetInitial([]models.Worktree{wt("/r/a", "a"), wt("/r/b", "b")}, cached)

	// b drops out, d arrives
	st.MergeWorktrees([]models.Worktree{wt("/r/a", "a"), wt("/r/d", "d")})

	rows := st.Snapshot()
	require.Len(t, rows, 2)
	assert.Equal(t, "/r/a", rows[0].Worktree.Path)
	assert.Equal(t, "/r/d", rows[1].Worktree.Path)
	assert.True(t, rows[1].Stale.Local)
}

func TestSetLocalPreservesForgeFieldsAndClearsStaleness(t *testing.T) {
	st := New()
	st.SetInitial([]models.Worktree{wt("/r/a", "a")}, map[string]models.WorktreeStatus{
		"a": {Path: "/r/a", PRNumber: models.Ptr(12)},
	})

	local := models.WorktreeStatus{
		Path:         "/r/a",
		Branch:       models.Ptr("a"),
		LastCommitTS: 500,
		Ahead:        models.Ptr(1),
		Behind:       models.Ptr(0),
	}
	st.SetLocal("/r/a", local)

	row, ok := st.Row("/r/a")
	require.True(t, ok)
	assert.False(t, row.Stale.Local)
	assert.True(t, row.Stale.Forge)
	assert.Equal(t, int64(500), row.Status.LastCommitTS)
	require.NotNil(t, row.Status.PRNumber)
	assert.Equal(t, 12, *row.Status.PRNumber)
}

func TestSetForgePreservesLocalFields(t *testing.T) {
	st := New()
	st.SetInitial([]models.Worktree{wt("/r/a", "a")}, nil)
	st.SetLocal("/r/a", models.WorktreeStatus{
		Path:         "/r/a",
		LastCommitTS: 500,
		Dirty:        models.Ptr(true),
	})

	forge := models.WorktreeStatus{
		Path:     "/r/a",
		PRNumber: models.Ptr(7),
		PRState:  models.Ptr(models.PRStateOpen),
	}
	st.SetForge("/r/a", forge)

	row, ok := st.Row("/r/a")
	require.True(t, ok)
	assert.False(t, row.Stale.Forge)
	assert.Equal(t, int64(500), row.Status.LastCommitTS)
	require.NotNil(t, row.Status.Dirty)
	assert.True(t, *row.Status.Dirty)
	assert.Equal(t, 7, *row.Status.PRNumber)
}

func TestSetLocalUnknownPathIsNoop(t *testing.T) {
	st := New()
	st.SetInitial([]models.Worktree{wt("/r/a", "a")}, nil)
	st.SetLocal("/r/ghost", models.WorktreeStatus{Path: "/r/ghost"})
	assert.Equal(t, 1, st.Len())
}

func TestClearForge(t *testing.T) {
	st := New()
	st.SetInitial([]models.Worktree{wt("/r/a", "a")}, map[string]models.WorktreeStatus{
		"a": {Path: "/r/a", PRNumber: models.Ptr(12), ChecksState: models.Ptr(models.ChecksOK)},
	})

	st.ClearForge()

	row, _ := st.Row("/r/a")
	assert.Nil(t, row.Status.PRNumber)
	assert.Nil(t, row.Status.ChecksState)
	assert.False(t, row.Stale.Forge)
}

func TestCursor(t *testing.T) {
	st := New()
	st.SetInitial([]models.Worktree{wt("/r/a", "a"), wt("/r/b", "b"), wt("/r/c", "c")}, nil)

	assert.Equal(t, 0, st.Cursor())
	st.MoveCursor(-1)
	assert.Equal(t, 0, st.Cursor())
	st.MoveCursor(1)
	st.MoveCursor(1)
	st.MoveCursor(1)
	assert.Equal(t, 2, st.Cursor())

	st.Select("/r/b")
	assert.Equal(t, 1, st.Cursor())
	sel, ok := st.Selected()
	require.True(t, ok)
	assert.Equal(t, "/r/b", sel.Worktree.Path)

	st.Select("/r/ghost")
	assert.Equal(t, 1, st.Cursor())
}

func TestCursorClampsAfterShrink(t *testing.T) {
	st := New()
	st.SetInitial([]models.Worktree{wt("/r/a", "a"), wt("/r/b", "b")}, nil)
	st.MoveCursor(1)

	st.MergeWorktrees([]models.Worktree{wt("/r/a", "a")})
	assert.Equal(t, 0, st.Cursor())
}

func TestRefreshCoalescing(t *testing.T) {
	st := New()

	// First request starts a cycle.
	assert.True(t, st.BeginRefresh())
	assert.True(t, st.Refreshing())

	// Any number of requests during the cycle coalesce to one pending flag.
	assert.False(t, st.BeginRefresh())
	assert.False(t, st.BeginRefresh())
	assert.False(t, st.BeginRefresh())

	// Ending the cycle reports exactly one follow-up.
	assert.True(t, st.EndRefresh())
	assert.False(t, st.Refreshing())

	// The follow-up cycle runs and, with no new requests, ends quietly.
	assert.True(t, st.BeginRefresh())
	assert.False(t, st.EndRefresh())
}
