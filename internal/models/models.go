// Package models defines the data objects shared across gw packages.
package models

// DetachedSentinel is what git worktree porcelain output reports for a
// detached HEAD; it is normalized to a nil branch everywhere else.
const DetachedSentinel = "(detached)"

// Worktree is a raw entry from the worktree listing. Branch is nil for
// detached worktrees.
type Worktree struct {
	Path   string
	Branch *string
	Head   *string
}

// IsDetached reports whether the worktree has no branch.
func (w Worktree) IsDetached() bool {
	return w.Branch == nil || *w.Branch == ""
}

// BranchName returns the branch or the empty string when detached.
func (w Worktree) BranchName() string {
	if w.Branch == nil {
		return ""
	}
	return *w.Branch
}

// HeadSHA returns the head commit id or the empty string when unknown.
func (w Worktree) HeadSHA() string {
	if w.Head == nil {
		return ""
	}
	return *w.Head
}

// AheadBehind holds commit counts relative to another ref.
type AheadBehind struct {
	Ahead  int
	Behind int
}

// DiffCounts summarizes uncommitted changes inside a worktree. Untracked
// files count as one addition each.
type DiffCounts struct {
	Added   int
	Deleted int
	Dirty   bool
}

// PullRequest captures the forge metadata consumed by the status pipeline.
type PullRequest struct {
	Number int
	Title  string
	State  string // OPEN, CLOSED or MERGED
	URL    string
	Base   string
}

// ChecksSummary is the classified CI rollup for a pull request.
type ChecksSummary struct {
	Passed int
	Total  int
	State  *string // "ok", "fail", "pend" or nil when there are no checks
}

// WorktreeStatus is an immutable per-worktree snapshot. Pointer fields are
// nil when the value is unknown.
type WorktreeStatus struct {
	Path         string
	Branch       *string
	LastCommitTS int64

	Upstream *string
	Ahead    *int
	Behind   *int

	PRNumber *int
	PRTitle  *string
	PRState  *string
	PRURL    *string
	PRBase   *string

	ChangesAdded   *int
	ChangesDeleted *int
	ChangesTarget  *string

	Dirty *bool

	ChecksPassed *int
	ChecksTotal  *int
	ChecksState  *string
}

// PR state values as reported by the forge.
const (
	PRStateOpen   = "OPEN"
	PRStateClosed = "CLOSED"
	PRStateMerged = "MERGED"
)

// Check rollup states.
const (
	ChecksOK      = "ok"
	ChecksFailed  = "fail"
	ChecksPending = "pend"
)

// CacheKey derives the stable cache identity for a worktree: the branch
// name when present, otherwise "detached:" plus the head commit id.
func CacheKey(branch, head string) string {
	if branch != "" && branch != DetachedSentinel {
		return branch
	}
	return "detached:" + head
}

// Key returns the cache key for a raw worktree.
func (w Worktree) Key() string {
	return CacheKey(w.BranchName(), w.HeadSHA())
}

// IsMerged reports whether the PR attached to this status is merged.
func (s WorktreeStatus) IsMerged() bool {
	return s.PRState != nil && *s.PRState == PRStateMerged
}

// Ptr returns a pointer to v. Shorthand for building nullable fields.
func Ptr[T any](v T) *T {
	return &v
}
