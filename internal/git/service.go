// Package git wraps the git commands and parsers used by gw.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chmouel/gw/internal/log"
	"github.com/chmouel/gw/internal/models"
)

// ErrNotARepository is returned when the working directory is outside a
// git worktree.
var ErrNotARepository = errors.New("not inside a git repository")

// ErrBranchExists is returned by CreateWorktree when the branch already
// exists locally.
var ErrBranchExists = errors.New("branch already exists")

// CommandError carries the argv and stderr of a failed git invocation.
// Stderr is passed verbatim to the status line; it is never parsed.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), detail)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Message returns the stderr text, falling back to the wrapped error.
func (e *CommandError) Message() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail != "" {
		return detail
	}
	return e.Err.Error()
}

// NotifyFn receives non-fatal problem reports for the status line.
type NotifyFn func(message, severity string)

// Service runs git as child processes and returns typed results.
type Service struct {
	notify NotifyFn
}

// NewService constructs a Service. notify may be nil.
func NewService(notify NotifyFn) *Service {
	if notify == nil {
		notify = func(string, string) {}
	}
	return &Service{notify: notify}
}

// run executes git with the given working directory and returns trimmed
// stdout. Failures wrap stderr in a CommandError.
func (s *Service) run(ctx context.Context, cwd string, args ...string) (string, error) {
	log.Exec("git", args, cwd)
	// #nosec G204 -- arguments come from internal logic, not user shell input
	cmd := exec.CommandContext(ctx, "git", args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	out, err := cmd.Output()
	if err != nil {
		stderr := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr = string(exitErr.Stderr)
		}
		log.ExecError("git", args, stderr)
		return "", &CommandError{Args: args, Stderr: stderr, Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

// tryRun is run with failures silenced; it returns "" and false on error.
func (s *Service) tryRun(ctx context.Context, cwd string, args ...string) (string, bool) {
	out, err := s.run(ctx, cwd, args...)
	if err != nil {
		return "", false
	}
	return out, true
}

// RepoRoot resolves the repository root for a working directory. The root
// is the parent of the common git directory, so every linked worktree of
// the same repository maps to the same root.
func (s *Service) RepoRoot(ctx context.Context, cwd string) (string, error) {
	out, err := s.run(ctx, cwd, "rev-parse", "--git-common-dir")
	if err != nil {
		return "", ErrNotARepository
	}
	common := out
	if !filepath.IsAbs(common) {
		common = filepath.Join(cwd, common)
	}
	common, err = filepath.Abs(common)
	if err != nil {
		return "", ErrNotARepository
	}
	if filepath.Base(common) == ".git" {
		return filepath.Dir(common), nil
	}
	return common, nil
}

// ListWorktrees parses `git worktree list --porcelain`. Bare entries are
// dropped, the detached sentinel becomes a nil branch, and the bare-root
// entry (path == repo root with no branch) is excluded.
func (s *Service) ListWorktrees(ctx context.Context, root string) ([]models.Worktree, error) {
	out, err := s.run(ctx, "", "-C", root, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	entries := ParseWorktreePorcelain(out)

	rootResolved := resolvePath(root)
	filtered := make([]models.Worktree, 0, len(entries))
	for _, wt := range entries {
		if wt.Branch == nil && resolvePath(wt.Path) == rootResolved {
			continue
		}
		filtered = append(filtered, wt)
	}
	return filtered, nil
}

// ParseWorktreePorcelain consumes the blank-line-delimited porcelain
// records. Entries tagged bare, or carrying neither a branch nor a HEAD,
// are dropped.
func ParseWorktreePorcelain(out string) []models.Worktree {
	var entries []models.Worktree
	var path, branch, head string
	bare := false
	flush := func() {
		if path == "" || bare {
			path, branch, head, bare = "", "", "", false
			return
		}
		if branch == "" && head == "" {
			path, branch, head, bare = "", "", "", false
			return
		}
		wt := models.Worktree{Path: path}
		if branch != "" && branch != models.DetachedSentinel {
			wt.Branch = models.Ptr(branch)
		}
		if head != "" {
			wt.Head = models.Ptr(head)
		}
		entries = append(entries, wt)
		path, branch, head, bare = "", "", "", false
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			if path != "" {
				flush()
			}
			path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case strings.HasPrefix(line, "HEAD "):
			head = strings.TrimPrefix(line, "HEAD ")
		case line == "detached":
			branch = models.DetachedSentinel
		case line == "bare":
			bare = true
		}
	}
	flush()
	return entries
}

// CurrentWorktree returns the worktree whose path is a component-wise
// prefix of cwd, or nil when cwd is outside every worktree.
func (s *Service) CurrentWorktree(ctx context.Context, root, cwd string) (*models.Worktree, error) {
	worktrees, err := s.ListWorktrees(ctx, root)
	if err != nil {
		return nil, err
	}
	cwdResolved := resolvePath(cwd)
	for i := range worktrees {
		wtPath := resolvePath(worktrees[i].Path)
		if cwdResolved == wtPath || strings.HasPrefix(cwdResolved, wtPath+string(os.PathSeparator)) {
			return &worktrees[i], nil
		}
	}
	return nil, nil
}

// DefaultBranch discovers the default branch: the symbolic ref of
// origin/HEAD, then a local main or master, then the literal "main".
func (s *Service) DefaultBranch(ctx context.Context, root string) string {
	if ref, ok := s.tryRun(ctx, "", "-C", root, "symbolic-ref", "refs/remotes/origin/HEAD"); ok && ref != "" {
		parts := strings.Split(ref, "/")
		return parts[len(parts)-1]
	}
	for _, candidate := range []string{"main", "master"} {
		if _, ok := s.tryRun(ctx, "", "-C", root, "show-ref", "--verify", "refs/heads/"+candidate); ok {
			return candidate
		}
	}
	return "main"
}

// SyncRepo fetches all remotes with prune. Failures are reported via
// notify and otherwise ignored; a stale remote view is not fatal.
func (s *Service) SyncRepo(ctx context.Context, root string) {
	if _, err := s.run(ctx, "", "-C", root, "fetch", "--all", "--prune"); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			s.notify("git fetch failed: "+cmdErr.Message(), "warn")
			return
		}
		s.notify("git fetch failed: "+err.Error(), "warn")
	}
}

// LastCommitTS returns the epoch seconds of the last commit in a
// worktree, or 0 when it cannot be determined.
func (s *Service) LastCommitTS(ctx context.Context, path string) int64 {
	out, ok := s.tryRun(ctx, path, "log", "-1", "--format=%ct")
	if !ok || out == "" {
		return 0
	}
	ts, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// Upstream returns the upstream tracking ref for a branch, or nil.
func (s *Service) Upstream(ctx context.Context, root, branch string) *string {
	out, ok := s.tryRun(ctx, "", "-C", root, "rev-parse", "--abbrev-ref", branch+"@{upstream}")
	if !ok || out == "" {
		return nil
	}
	return models.Ptr(out)
}

// AheadBehind counts commits on each side of left...right.
func (s *Service) AheadBehind(ctx context.Context, root, left, right string) (models.AheadBehind, error) {
	out, err := s.run(ctx, "", "-C", root, "rev-list", "--left-right", "--count", left+"..."+right)
	if err != nil {
		return models.AheadBehind{}, err
	}
	leftCount, rightCount, ok := strings.Cut(out, "\t")
	if !ok {
		return models.AheadBehind{}, &CommandError{
			Args: []string{"rev-list", "--left-right", "--count"},
			Err:  fmt.Errorf("unexpected rev-list output %q", out),
		}
	}
	ahead, err := strconv.Atoi(strings.TrimSpace(leftCount))
	if err != nil {
		return models.AheadBehind{}, err
	}
	behind, err := strconv.Atoi(strings.TrimSpace(rightCount))
	if err != nil {
		return models.AheadBehind{}, err
	}
	return models.AheadBehind{Ahead: ahead, Behind: behind}, nil
}

// DiffStats sums the numstat of base...branch. Binary files (numstat "-")
// are skipped.
func (s *Service) DiffStats(ctx context.Context, root, base, branch string) (added, deleted int, err error) {
	out, err := s.run(ctx, "", "-C", root, "diff", "--numstat", base+"..."+branch)
	if err != nil {
		return 0, 0, err
	}
	a, d := SumNumstat(out)
	return a, d, nil
}

// SumNumstat adds up the added/deleted columns of numstat output.
func SumNumstat(out string) (added, deleted int) {
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		if a, err := strconv.Atoi(parts[0]); err == nil {
			added += a
		}
		if d, err := strconv.Atoi(parts[1]); err == nil {
			deleted += d
		}
	}
	return added, deleted
}

// DiffCounts reports the uncommitted changes inside a worktree:
// numstat of the dirty tree plus one addition per untracked file.
// Best effort; failures yield zero counts.
func (s *Service) DiffCounts(ctx context.Context, path string) models.DiffCounts {
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return models.DiffCounts{}
	}
	status, _ := s.tryRun(ctx, path, "status", "--porcelain")
	numstat, _ := s.tryRun(ctx, path, "diff", "--numstat")

	added, deleted := SumNumstat(numstat)
	untracked := 0
	for _, line := range strings.Split(status, "\n") {
		if strings.HasPrefix(line, "?? ") {
			untracked++
		}
	}
	return models.DiffCounts{
		Added:   added + untracked,
		Deleted: deleted,
		Dirty:   strings.TrimSpace(status) != "",
	}
}

// ResolveRef verifies a ref and returns it unchanged, or nil.
func (s *Service) ResolveRef(ctx context.Context, root, ref string) *string {
	if _, ok := s.tryRun(ctx, "", "-C", root, "rev-parse", "--verify", ref); !ok {
		return nil
	}
	return models.Ptr(ref)
}

// IsAncestor reports whether branch is an ancestor of target.
func (s *Service) IsAncestor(ctx context.Context, root, branch, target string) bool {
	_, ok := s.tryRun(ctx, "", "-C", root, "merge-base", "--is-ancestor", branch, target)
	return ok
}

// BranchExists reports whether a local branch exists.
func (s *Service) BranchExists(ctx context.Context, root, branch string) bool {
	_, ok := s.tryRun(ctx, "", "-C", root, "show-ref", "--verify", "refs/heads/"+branch)
	return ok
}

// RemoteBranchExists reports whether origin has the branch.
func (s *Service) RemoteBranchExists(ctx context.Context, root, branch string) bool {
	out, ok := s.tryRun(ctx, "", "-C", root, "ls-remote", "--heads", "origin", branch)
	return ok && strings.TrimSpace(out) != ""
}

// IsValidBranchName checks a candidate name with check-ref-format.
func (s *Service) IsValidBranchName(ctx context.Context, root, name string) bool {
	_, ok := s.tryRun(ctx, "", "-C", root, "check-ref-format", "--branch", name)
	return ok
}

// HasUnpushedCommits reports whether a branch carries commits its
// upstream does not have. A branch without upstream counts as unpushed.
func (s *Service) HasUnpushedCommits(ctx context.Context, root, branch string) bool {
	upstream := s.Upstream(ctx, root, branch)
	if upstream == nil {
		return true
	}
	ab, err := s.AheadBehind(ctx, root, branch, *upstream)
	if err != nil {
		return false
	}
	return ab.Ahead > 0
}

// CreateWorktree creates a new branch and a worktree for it. When base is
// empty the branch starts at HEAD.
func (s *Service) CreateWorktree(ctx context.Context, root, branch, path, base string) error {
	if s.BranchExists(ctx, root, branch) {
		return fmt.Errorf("%w: %s", ErrBranchExists, branch)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	args := []string{"-C", root, "worktree", "add", "-b", branch, path}
	if base != "" {
		args = append(args, base)
	}
	_, err := s.run(ctx, "", args...)
	return err
}

// AttachWorktree creates a worktree for an existing local branch.
func (s *Service) AttachWorktree(ctx context.Context, root, branch, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	_, err := s.run(ctx, "", "-C", root, "worktree", "add", path, branch)
	return err
}

// RemoveWorktree removes a worktree by path, forcing removal of dirty
// trees (the TUI asks for confirmation first).
func (s *Service) RemoveWorktree(ctx context.Context, root, path string) error {
	_, err := s.run(ctx, "", "-C", root, "worktree", "remove", "--force", path)
	return err
}

// MoveWorktree relocates a worktree directory.
func (s *Service) MoveWorktree(ctx context.Context, root, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	_, err := s.run(ctx, "", "-C", root, "worktree", "move", src, dst)
	return err
}

// RenameBranch renames a local branch.
func (s *Service) RenameBranch(ctx context.Context, root, oldName, newName string) error {
	_, err := s.run(ctx, "", "-C", root, "branch", "-m", oldName, newName)
	return err
}

// FetchBranch fetches one branch from origin into the local ref.
func (s *Service) FetchBranch(ctx context.Context, root, branch string) error {
	_, err := s.run(ctx, "", "-C", root, "fetch", "origin", branch+":"+branch)
	return err
}

// SetUpstream points a branch at an upstream tracking ref.
func (s *Service) SetUpstream(ctx context.Context, root, branch, upstream string) error {
	_, err := s.run(ctx, "", "-C", root, "branch", "--set-upstream-to", upstream, branch)
	return err
}

// Pull runs git pull inside a worktree.
func (s *Service) Pull(ctx context.Context, path string) error {
	_, err := s.run(ctx, path, "pull")
	return err
}

// Push runs git push inside a worktree.
func (s *Service) Push(ctx context.Context, path string) error {
	_, err := s.run(ctx, path, "push")
	return err
}

// PushSetUpstream pushes a branch and records origin as its upstream.
func (s *Service) PushSetUpstream(ctx context.Context, path, branch string) error {
	_, err := s.run(ctx, path, "push", "-u", "origin", branch)
	return err
}

// RemoteURL returns the origin remote URL, or "" when there is none.
func (s *Service) RemoteURL(ctx context.Context, root string) string {
	out, _ := s.tryRun(ctx, "", "-C", root, "remote", "get-url", "origin")
	return out
}

func resolvePath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return resolved
	}
	return abs
}
