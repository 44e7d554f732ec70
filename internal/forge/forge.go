// Package forge talks to the GitHub CLI to decorate worktrees with pull
// request and check information. Everything here degrades to "no data"
// when gh is missing or fails; the forge is optional.
package forge

import (
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chmouel/gw/internal/log"
	"github.com/chmouel/gw/internal/models"
)

var slugPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^git@github\.com:([^/]+)/(.+?)(?:\.git)?$`),
	regexp.MustCompile(`^ssh://git@github\.com/([^/]+)/(.+?)(?:\.git)?$`),
	regexp.MustCompile(`^https?://github\.com/([^/]+)/(.+?)(?:\.git)?/?$`),
	regexp.MustCompile(`^git://github\.com/([^/]+)/(.+?)(?:\.git)?$`),
}

// ParseRepoSlug extracts "owner/repo" from a GitHub remote URL. It
// understands the scp-like, ssh, http(s) and git protocol forms. Returns
// "" for anything else.
func ParseRepoSlug(remoteURL string) string {
	remoteURL = strings.TrimSpace(remoteURL)
	for _, re := range slugPatterns {
		if m := re.FindStringSubmatch(remoteURL); m != nil {
			return m[1] + "/" + m[2]
		}
	}
	return ""
}

// Runner executes the gh binary. Split out so tests can fake it.
type Runner interface {
	Run(ctx context.Context, cwd string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, cwd string, args ...string) ([]byte, error) {
	log.Exec("gh", args, cwd)
	// #nosec G204 -- arguments are fixed gh subcommands
	cmd := exec.CommandContext(ctx, "gh", args...)
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
		log.ExecError("gh", args, stderr)
		return nil, err
	}
	return out, nil
}

// Client fetches PR metadata through the gh CLI.
type Client struct {
	runner Runner
}

// NewClient returns a Client backed by the real gh binary.
func NewClient() *Client {
	return &Client{runner: execRunner{}}
}

// NewClientWithRunner is for tests.
func NewClientWithRunner(r Runner) *Client {
	return &Client{runner: r}
}

// Available reports whether the gh binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("gh")
	return err == nil
}

type prListItem struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	State       string     `json:"state"`
	URL         string     `json:"url"`
	HeadRefName string     `json:"headRefName"`
	BaseRefName string     `json:"baseRefName"`
	MergedAt    *time.Time `json:"mergedAt"`
}

// PullRequests lists the repository's pull requests keyed by head branch.
// A PR with a merge timestamp is reported as MERGED regardless of the
// state field. Errors yield an empty map; they never fail a refresh.
func (c *Client) PullRequests(ctx context.Context, root, slug string) map[string]models.PullRequest {
	result := map[string]models.PullRequest{}
	if slug == "" {
		return result
	}
	out, err := c.runner.Run(ctx, root,
		"pr", "list", "--repo", slug, "--state", "all", "--limit", "200",
		"--json", "number,title,state,url,headRefName,baseRefName,mergedAt")
	if err != nil {
		return result
	}
	var items []prListItem
	if err := json.Unmarshal(out, &items); err != nil {
		log.Printf("error: gh pr list: bad json: %v", err)
		return result
	}
	for _, item := range items {
		state := item.State
		if item.MergedAt != nil {
			state = models.PRStateMerged
		}
		branch := item.HeadRefName
		if _, seen := result[branch]; seen {
			continue
		}
		result[branch] = models.PullRequest{
			Number: item.Number,
			Title:  item.Title,
			State:  state,
			URL:    item.URL,
			Base:   item.BaseRefName,
		}
	}
	return result
}

// CheckRun is one entry of a PR's status check rollup.
type CheckRun struct {
	State      string  `json:"state"`
	Status     string  `json:"status"`
	Conclusion *string `json:"conclusion"`
}

type prChecksItem struct {
	StatusCheckRollup []CheckRun `json:"statusCheckRollup"`
}

// ChecksRollup fetches the status check rollup for a PR and classifies
// it. Returns nil state with zero counts when the PR has no checks or
// the fetch fails.
func (c *Client) ChecksRollup(ctx context.Context, root, slug string, prNumber int) models.ChecksSummary {
	out, err := c.runner.Run(ctx, root,
		"pr", "view", strconv.Itoa(prNumber), "--repo", slug, "--json", "statusCheckRollup")
	if err != nil {
		return models.ChecksSummary{}
	}
	var item prChecksItem
	if err := json.Unmarshal(out, &item); err != nil {
		log.Printf("error: gh pr view: bad json: %v", err)
		return models.ChecksSummary{}
	}
	return ClassifyChecks(item.StatusCheckRollup)
}

// ClassifyChecks folds a check rollup into passed/total plus an overall
// state. A run counts as passed on SUCCESS, NEUTRAL or SKIPPED; as
// pending while not COMPLETED or while its conclusion is missing;
// anything else is a failure. Overall: nil when there are no runs, fail
// if any failed, pend if any pending, otherwise ok.
func ClassifyChecks(runs []CheckRun) models.ChecksSummary {
	if len(runs) == 0 {
		return models.ChecksSummary{}
	}
	passed, failed, pending := 0, 0, 0
	for _, run := range runs {
		state := run.State
		if state == "" {
			state = run.Status
		}
		switch {
		case run.Conclusion != nil && isPassedConclusion(*run.Conclusion):
			passed++
		case state != "COMPLETED" || run.Conclusion == nil:
			pending++
		default:
			failed++
		}
	}
	summary := models.ChecksSummary{Passed: passed, Total: len(runs)}
	switch {
	case failed > 0:
		summary.State = models.Ptr(models.ChecksFailed)
	case pending > 0:
		summary.State = models.Ptr(models.ChecksPending)
	default:
		summary.State = models.Ptr(models.ChecksOK)
	}
	return summary
}

func isPassedConclusion(conclusion string) bool {
	switch conclusion {
	case "SUCCESS", "NEUTRAL", "SKIPPED":
		return true
	}
	return false
}
