package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmouel/gw/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleStatus() models.WorktreeStatus {
	return models.WorktreeStatus{
		Path:           "/repo/feature-x",
		Branch:         models.Ptr("feature-x"),
		LastCommitTS:   1700000000,
		Upstream:       models.Ptr("origin/feature-x"),
		Ahead:          models.Ptr(2),
		Behind:         models.Ptr(1),
		PRNumber:       models.Ptr(12),
		PRTitle:        models.Ptr("Add thing"),
		PRState:        models.Ptr(models.PRStateOpen),
		PRURL:          models.Ptr("https://github.com/o/r/pull/12"),
		PRBase:         models.Ptr("main"),
		ChangesAdded:   models.Ptr(10),
		ChangesDeleted: models.Ptr(3),
		ChangesTarget:  models.Ptr("origin/main"),
		Dirty:          models.Ptr(true),
		ChecksPassed:   models.Ptr(3),
		ChecksTotal:    models.Ptr(4),
		ChecksState:    models.Ptr(models.ChecksPending),
	}
}

func TestUpsertLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)

	want := sampleStatus()
	require.NoError(t, store.Upsert("feature-x", want))

	got, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want, got["feature-x"])
}

func TestUpsertOverwrites(t *testing.T) {
	store := openTestStore(t)

	st := sampleStatus()
	require.NoError(t, store.Upsert("feature-x", st))

	st.Ahead = models.Ptr(5)
	st.PRState = models.Ptr(models.PRStateMerged)
	require.NoError(t, store.Upsert("feature-x", st))

	got, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, *got["feature-x"].Ahead)
	assert.Equal(t, models.PRStateMerged, *got["feature-x"].PRState)
}

func TestNullableFieldsSurviveRoundTrip(t *testing.T) {
	store := openTestStore(t)

	st := models.WorktreeStatus{Path: "/repo/x", LastCommitTS: 42}
	require.NoError(t, store.Upsert("detached:abc", st))

	got, err := store.LoadAll()
	require.NoError(t, err)
	row := got["detached:abc"]
	assert.Nil(t, row.Branch)
	assert.Nil(t, row.Upstream)
	assert.Nil(t, row.Ahead)
	assert.Nil(t, row.PRNumber)
	assert.Nil(t, row.Dirty)
	assert.Nil(t, row.ChecksState)
	assert.Equal(t, int64(42), row.LastCommitTS)
}

func TestSectionUpserts(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Upsert("feature-x", sampleStatus()))

	require.NoError(t, store.UpsertPullPush("feature-x", 1800000000,
		models.Ptr("origin/feature-x"), models.Ptr(7), models.Ptr(0), models.Ptr(false)))
	require.NoError(t, store.UpsertChanges("feature-x", models.Ptr(1), models.Ptr(2), models.Ptr("main")))

	prSection := models.WorktreeStatus{
		PRNumber: models.Ptr(13),
		PRState:  models.Ptr(models.PRStateClosed),
	}
	require.NoError(t, store.UpsertPRAndChecks("feature-x", prSection))

	got, err := store.LoadAll()
	require.NoError(t, err)
	row := got["feature-x"]
	assert.Equal(t, int64(1800000000), row.LastCommitTS)
	assert.Equal(t, 7, *row.Ahead)
	assert.False(t, *row.Dirty)
	assert.Equal(t, 1, *row.ChangesAdded)
	assert.Equal(t, "main", *row.ChangesTarget)
	assert.Equal(t, 13, *row.PRNumber)
	assert.Equal(t, models.PRStateClosed, *row.PRState)
	assert.Nil(t, row.PRTitle)
	assert.Nil(t, row.ChecksState)
}

func TestUpsertsStampValidationTimes(t *testing.T) {
	store := openTestStore(t)

	restore := now
	now = func() int64 { return 1000 }
	t.Cleanup(func() { now = restore })

	require.NoError(t, store.Upsert("feature-x", sampleStatus()))
	assertStamps(t, store, "feature-x", 1000, 1000, 1000, 1000)

	now = func() int64 { return 2000 }
	require.NoError(t, store.UpsertPullPush("feature-x", 1800000000,
		models.Ptr("origin/feature-x"), models.Ptr(7), models.Ptr(0), models.Ptr(false)))
	assertStamps(t, store, "feature-x", 1000, 1000, 1000, 2000)

	now = func() int64 { return 3000 }
	require.NoError(t, store.UpsertChanges("feature-x", models.Ptr(1), models.Ptr(2), models.Ptr("main")))
	assertStamps(t, store, "feature-x", 1000, 1000, 3000, 2000)

	now = func() int64 { return 4000 }
	require.NoError(t, store.UpsertPRAndChecks("feature-x", sampleStatus()))
	assertStamps(t, store, "feature-x", 4000, 4000, 3000, 2000)
}

func assertStamps(t *testing.T, store *Store, key string, pr, checks, changes, pullpush int64) {
	t.Helper()
	var gotPR, gotChecks, gotChanges, gotPullpush int64
	err := store.db.QueryRow(`
		SELECT pr_updated_at, checks_updated_at, changes_updated_at, pullpush_validated_at
		FROM worktrees WHERE key=?`, key).
		Scan(&gotPR, &gotChecks, &gotChanges, &gotPullpush)
	require.NoError(t, err)
	assert.Equal(t, pr, gotPR)
	assert.Equal(t, checks, gotChecks)
	assert.Equal(t, changes, gotChanges)
	assert.Equal(t, pullpush, gotPullpush)
}

func TestSectionUpsertMissingRowIsNoop(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.UpsertChanges("ghost", models.Ptr(1), models.Ptr(1), models.Ptr("main")))
}

func TestUpsertPath(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Upsert("feature-x", sampleStatus()))

	existed, err := store.UpsertPath("feature-x", "/elsewhere/feature-x")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.UpsertPath("ghost", "/elsewhere/ghost")
	require.NoError(t, err)
	assert.False(t, existed)

	got, err := store.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/feature-x", got["feature-x"].Path)
}

func TestRename(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Upsert("old-name", sampleStatus()))

	require.NoError(t, store.Rename("old-name", "new-name", "new-name", "/repo/new-name"))

	got, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	row, ok := got["new-name"]
	require.True(t, ok)
	assert.Equal(t, "new-name", *row.Branch)
	assert.Equal(t, "/repo/new-name", row.Path)
}

func TestRenameReplacesExistingTarget(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Upsert("a", sampleStatus()))
	other := sampleStatus()
	other.Path = "/repo/b"
	require.NoError(t, store.Upsert("b", other))

	require.NoError(t, store.Rename("a", "b", "b", "/repo/b2"))

	got, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/repo/b2", got["b"].Path)
}

func TestDeleteAndPrune(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Upsert("a", sampleStatus()))
	require.NoError(t, store.Upsert("b", sampleStatus()))
	require.NoError(t, store.Upsert("c", sampleStatus()))

	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Prune(map[string]bool{"b": true}))

	got, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	_, ok := got["b"]
	assert.True(t, ok)
}

func TestMigrationAddsColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.sqlite")

	// Open once, drop migrated columns to simulate an old database.
	store, err := Open(path)
	require.NoError(t, err)
	for _, col := range []string{"checks_state", "pullpush_validated_at"} {
		_, err = store.db.Exec("ALTER TABLE worktrees DROP COLUMN " + col)
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	st := sampleStatus()
	require.NoError(t, store.Upsert("feature-x", st))
	got, err := store.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, models.ChecksPending, *got["feature-x"].ChecksState)
}

func TestPathFor(t *testing.T) {
	a, err := PathFor("/tmp/cache", "/repo/one")
	require.NoError(t, err)
	b, err := PathFor("/tmp/cache", "/repo/one")
	require.NoError(t, err)
	c, err := PathFor("/tmp/cache", "/repo/two")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "/tmp/cache/gw", filepath.Dir(a))
	assert.Equal(t, ".sqlite", filepath.Ext(a))
}
