// Package status builds WorktreeStatus snapshots in stages: a cheap
// placeholder, a local git probe, and a forge overlay. The stages are
// pure over narrow interfaces so they test with fakes.
package status

import (
	"context"

	"github.com/chmouel/gw/internal/models"
)

// VCS is the slice of the git service the local stage needs.
type VCS interface {
	LastCommitTS(ctx context.Context, path string) int64
	Upstream(ctx context.Context, root, branch string) *string
	AheadBehind(ctx context.Context, root, left, right string) (models.AheadBehind, error)
	DiffStats(ctx context.Context, root, base, branch string) (added, deleted int, err error)
	DiffCounts(ctx context.Context, path string) models.DiffCounts
	ResolveRef(ctx context.Context, root, ref string) *string
	DefaultBranch(ctx context.Context, root string) string
}

// Placeholder builds the minimal snapshot used before any probe has
// run: identity only, every measured field unknown.
func Placeholder(wt models.Worktree) models.WorktreeStatus {
	st := models.WorktreeStatus{Path: wt.Path}
	if !wt.IsDetached() {
		st.Branch = models.Ptr(wt.BranchName())
	}
	return st
}

// BuildLocal runs the local git probes for one worktree. seed carries
// the previous snapshot (cached or fresh); its PR base steers the
// comparison target and its forge fields are carried through untouched.
func BuildLocal(ctx context.Context, vcs VCS, root string, wt models.Worktree, seed models.WorktreeStatus) models.WorktreeStatus {
	st := seed
	st.Path = wt.Path
	st.Branch = nil
	if !wt.IsDetached() {
		st.Branch = models.Ptr(wt.BranchName())
	}
	st.LastCommitTS = vcs.LastCommitTS(ctx, wt.Path)

	counts := vcs.DiffCounts(ctx, wt.Path)
	st.Dirty = models.Ptr(counts.Dirty)

	st.Upstream = nil
	st.Ahead = nil
	st.Behind = nil
	st.ChangesAdded = nil
	st.ChangesDeleted = nil
	st.ChangesTarget = nil
	if wt.IsDetached() {
		return st
	}
	branch := wt.BranchName()

	if upstream := vcs.Upstream(ctx, root, branch); upstream != nil {
		st.Upstream = upstream
		if ab, err := vcs.AheadBehind(ctx, root, branch, *upstream); err == nil {
			st.Ahead = models.Ptr(ab.Ahead)
			st.Behind = models.Ptr(ab.Behind)
		}
	}

	if target := ComparisonTarget(ctx, vcs, root, seed.PRBase); target != nil {
		if added, deleted, err := vcs.DiffStats(ctx, root, *target, branch); err == nil {
			st.ChangesAdded = models.Ptr(added)
			st.ChangesDeleted = models.Ptr(deleted)
			st.ChangesTarget = target
		}
	}
	return st
}

// ComparisonTarget picks the ref the CHANGES column diffs against: the
// PR base when known, otherwise "main", falling back to the default
// branch. Each label resolves as a local ref first, then under origin/.
// Returns nil when nothing resolves.
func ComparisonTarget(ctx context.Context, vcs VCS, root string, prBase *string) *string {
	label := "main"
	if prBase != nil && *prBase != "" {
		label = *prBase
	}
	if target := resolveLabel(ctx, vcs, root, label); target != nil {
		return target
	}
	def := vcs.DefaultBranch(ctx, root)
	if def == label {
		return nil
	}
	return resolveLabel(ctx, vcs, root, def)
}

func resolveLabel(ctx context.Context, vcs VCS, root, label string) *string {
	if ref := vcs.ResolveRef(ctx, root, label); ref != nil {
		return ref
	}
	return vcs.ResolveRef(ctx, root, "origin/"+label)
}

// ApplyRemote overlays forge data on a snapshot. A nil pr clears every
// forge field, so a closed-and-deleted PR stops rendering.
func ApplyRemote(st models.WorktreeStatus, pr *models.PullRequest, checks *models.ChecksSummary) models.WorktreeStatus {
	st.PRNumber = nil
	st.PRTitle = nil
	st.PRState = nil
	st.PRURL = nil
	st.PRBase = nil
	st.ChecksPassed = nil
	st.ChecksTotal = nil
	st.ChecksState = nil
	if pr == nil {
		return st
	}
	st.PRNumber = models.Ptr(pr.Number)
	st.PRTitle = models.Ptr(pr.Title)
	st.PRState = models.Ptr(pr.State)
	st.PRURL = models.Ptr(pr.URL)
	st.PRBase = models.Ptr(pr.Base)
	if checks != nil {
		st.ChecksPassed = models.Ptr(checks.Passed)
		st.ChecksTotal = models.Ptr(checks.Total)
		st.ChecksState = checks.State
	}
	return st
}
