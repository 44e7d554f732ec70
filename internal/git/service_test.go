package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmouel/gw/internal/models"
)

func TestParseWorktreePorcelain(t *testing.T) {
	out := `worktree /repo
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /repo/feature-x
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feature-x

worktree /repo/detached-wt
HEAD 3333333333333333333333333333333333333333
detached
`
	entries := ParseWorktreePorcelain(out)
	require.Len(t, entries, 3)

	assert.Equal(t, "/repo", entries[0].Path)
	require.NotNil(t, entries[0].Branch)
	assert.Equal(t, "main", *entries[0].Branch)

	assert.Equal(t, "/repo/feature-x", entries[1].Path)
	require.NotNil(t, entries[1].Branch)
	assert.Equal(t, "feature-x", *entries[1].Branch)

	assert.Equal(t, "/repo/detached-wt", entries[2].Path)
	assert.Nil(t, entries[2].Branch)
	require.NotNil(t, entries[2].Head)
	assert.Equal(t, "3333333333333333333333333333333333333333", *entries[2].Head)
	assert.Equal(t, "detached:3333333333333333333333333333333333333333", entries[2].Key())
}

func TestParseWorktreePorcelainBare(t *testing.T) {
	out := `worktree /repo.git
bare

worktree /repo/main
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main
`
	entries := ParseWorktreePorcelain(out)
	require.Len(t, entries, 1)
	assert.Equal(t, "/repo/main", entries[0].Path)
}

func TestParseWorktreePorcelainNoTrailingBlank(t *testing.T) {
	out := "worktree /repo/main\nHEAD 1111\nbranch refs/heads/main"
	entries := ParseWorktreePorcelain(out)
	require.Len(t, entries, 1)
	assert.Equal(t, "main", *entries[0].Branch)
}

func TestParseWorktreePorcelainEmpty(t *testing.T) {
	assert.Empty(t, ParseWorktreePorcelain(""))
}

func TestSumNumstat(t *testing.T) {
	tests := []struct {
		name        string
		out         string
		wantAdded   int
		wantDeleted int
	}{
		{
			name:        "plain",
			out:         "10\t2\tmain.go\n3\t1\tother.go",
			wantAdded:   13,
			wantDeleted: 3,
		},
		{
			name:        "binary files skipped",
			out:         "-\t-\timage.png\n5\t0\tmain.go",
			wantAdded:   5,
			wantDeleted: 0,
		},
		{
			name: "empty",
			out:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, deleted := SumNumstat(tt.out)
			assert.Equal(t, tt.wantAdded, added)
			assert.Equal(t, tt.wantDeleted, deleted)
		})
	}
}

func TestCommandError(t *testing.T) {
	err := &CommandError{
		Args:   []string{"pull"},
		Stderr: "fatal: no tracking information\n",
		Err:    assert.AnError,
	}
	assert.Equal(t, "fatal: no tracking information", err.Message())
	assert.Contains(t, err.Error(), "git pull")
	assert.Contains(t, err.Error(), "no tracking information")

	bare := &CommandError{Args: []string{"push"}, Err: assert.AnError}
	assert.Equal(t, assert.AnError.Error(), bare.Message())
}

func TestWorktreeModelsRoundTrip(t *testing.T) {
	entries := ParseWorktreePorcelain("worktree /r/w\nHEAD abc\nbranch refs/heads/topic\n")
	require.Len(t, entries, 1)
	assert.Equal(t, models.CacheKey("topic", "abc"), entries[0].Key())
}
