// Package refresh drives the status pipeline: list worktrees, fan out
// local git probes, overlay forge data, and persist each stage to the
// cache. Progress streams over a channel the TUI consumes as messages.
package refresh

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/chmouel/gw/internal/log"
	"github.com/chmouel/gw/internal/models"
	"github.com/chmouel/gw/internal/state"
	"github.com/chmouel/gw/internal/status"
)

// EventKind discriminates scheduler events.
type EventKind int

const (
	// EventRows signals that row data changed and the table should repaint.
	EventRows EventKind = iota
	// EventCycleEnd signals that a refresh cycle finished.
	EventCycleEnd
	// EventWarning carries a non-fatal problem for the status line.
	EventWarning
)

// Event is one scheduler notification.
type Event struct {
	Kind    EventKind
	Message string
}

// VCS is the slice of the git service the scheduler needs: the probes
// of the local stage plus listing and remote sync.
type VCS interface {
	status.VCS
	SyncRepo(ctx context.Context, root string)
	ListWorktrees(ctx context.Context, root string) ([]models.Worktree, error)
}

// Forge is the slice of the forge client the scheduler needs.
type Forge interface {
	PullRequests(ctx context.Context, root, slug string) map[string]models.PullRequest
	ChecksRollup(ctx context.Context, root, slug string, prNumber int) models.ChecksSummary
}

// Store is the slice of the cache the scheduler persists to.
type Store interface {
	Upsert(key string, st models.WorktreeStatus) error
	UpsertPath(key, path string) (bool, error)
	UpsertPullPush(key string, lastCommitTS int64, upstream *string, ahead, behind *int, dirty *bool) error
	UpsertChanges(key string, added, deleted *int, target *string) error
	UpsertPRAndChecks(key string, st models.WorktreeStatus) error
	Prune(keep map[string]bool) error
}

// Scheduler owns refresh cycles. At most one cycle runs at a time;
// requests during a running cycle coalesce into a single follow-up.
type Scheduler struct {
	git   VCS
	forge Forge
	store Store
	state *state.State

	root string
	slug string

	forgeOn bool
	sync    bool

	events  chan Event
	stopped atomic.Bool
}

// Options configures a Scheduler.
type Options struct {
	Root       string
	Slug       string
	ForgeOn    bool
	SyncRemote bool
}

// New builds a Scheduler. forgeClient may be nil when opts.ForgeOn is
// false.
func New(vcs VCS, forgeClient Forge, store Store, st *state.State, opts Options) *Scheduler {
	return &Scheduler{
		git:     vcs,
		forge:   forgeClient,
		store:   store,
		state:   st,
		root:    opts.Root,
		slug:    opts.Slug,
		forgeOn: opts.ForgeOn && forgeClient != nil && opts.Slug != "",
		sync:    opts.SyncRemote,
		events:  make(chan Event, 128),
	}
}

// Events is the stream the TUI listens on.
func (s *Scheduler) Events() <-chan Event {
	return s.events
}

// Request starts a refresh cycle, or records a pending request when one
// is already running. The pending flag coalesces: any number of
// requests during a cycle produce exactly one follow-up cycle.
func (s *Scheduler) Request(ctx context.Context) {
	if s.stopped.Load() {
		return
	}
	if !s.state.BeginRefresh() {
		log.Println("refresh: cycle running, request queued")
		return
	}
	go s.runCycle(ctx)
}

// Stop prevents further cycles from starting and makes running probes
// bail out between steps.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

func (s *Scheduler) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Printf("refresh: dropping event kind=%d", ev.Kind)
	}
}

// PoolSize bounds the probe fan-out: four goroutines per CPU, capped at
// 32, never more than there are worktrees.
func PoolSize(n int) int {
	size := 4 * runtime.NumCPU()
	if size > 32 {
		size = 32
	}
	if size > n {
		size = n
	}
	if size < 1 {
		size = 1
	}
	return size
}

func (s *Scheduler) runCycle(ctx context.Context) {
	log.Println("refresh: cycle start")
	s.cycle(ctx)
	rekick := s.state.EndRefresh()
	s.emit(Event{Kind: EventCycleEnd})
	log.Printf("refresh: cycle done rekick=%v", rekick)
	if rekick && !s.stopped.Load() && ctx.Err() == nil {
		s.Request(ctx)
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	if s.sync {
		s.git.SyncRepo(ctx, s.root)
	}
	if s.stopped.Load() || ctx.Err() != nil {
		return
	}

	worktrees, err := s.git.ListWorktrees(ctx, s.root)
	if err != nil {
		s.emit(Event{Kind: EventWarning, Message: "refresh failed: " + err.Error()})
		return
	}
	s.state.MergeWorktrees(worktrees)
	s.state.MarkAllStale()
	s.emit(Event{Kind: EventRows})

	// Seed a cache row per worktree so the section updates below always
	// have a row to land on. Existing rows just get their path refreshed
	// (worktree moves persist immediately); new keys get a full row.
	for _, wt := range worktrees {
		key := wt.Key()
		existed, err := s.store.UpsertPath(key, wt.Path)
		if err != nil {
			log.Printf("refresh: seed path %s: %v", key, err)
			continue
		}
		if !existed {
			if row, ok := s.state.Row(wt.Path); ok {
				if err := s.store.Upsert(key, row.Status); err != nil {
					log.Printf("refresh: seed %s: %v", key, err)
				}
			}
		}
	}

	s.localStage(ctx, worktrees)
	if s.stopped.Load() || ctx.Err() != nil {
		return
	}

	keep := map[string]bool{}
	for _, wt := range worktrees {
		keep[wt.Key()] = true
	}
	if err := s.store.Prune(keep); err != nil {
		log.Printf("refresh: prune: %v", err)
	}

	if s.forgeOn {
		s.forgeStage(ctx, worktrees)
	} else {
		s.state.ClearForge()
		s.emit(Event{Kind: EventRows})
	}
}

// localStage probes every worktree concurrently. Each probe copies its
// seed out of the state, works without any lock, and copies the result
// back in. One failing worktree never poisons the others.
func (s *Scheduler) localStage(ctx context.Context, worktrees []models.Worktree) {
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(PoolSize(len(worktrees)))
	for _, wt := range worktrees {
		grp.Go(func() error {
			if s.stopped.Load() || gctx.Err() != nil {
				return nil
			}
			seed := models.WorktreeStatus{Path: wt.Path, Branch: wt.Branch}
			if row, ok := s.state.Row(wt.Path); ok {
				seed = row.Status
			}
			st := status.BuildLocal(gctx, s.git, s.root, wt, seed)
			s.state.SetLocal(wt.Path, st)
			key := wt.Key()
			if err := s.store.UpsertPullPush(key, st.LastCommitTS, st.Upstream, st.Ahead, st.Behind, st.Dirty); err != nil {
				log.Printf("refresh: upsert pullpush %s: %v", key, err)
			}
			if err := s.store.UpsertChanges(key, st.ChangesAdded, st.ChangesDeleted, st.ChangesTarget); err != nil {
				log.Printf("refresh: upsert changes %s: %v", key, err)
			}
			s.emit(Event{Kind: EventRows})
			return nil
		})
	}
	_ = grp.Wait()
}

// forgeStage fetches the PR list once, then the check rollups for the
// open PRs, bounded by the same pool size.
func (s *Scheduler) forgeStage(ctx context.Context, worktrees []models.Worktree) {
	prs := s.forge.PullRequests(ctx, s.root, s.slug)
	if s.stopped.Load() || ctx.Err() != nil {
		return
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(PoolSize(len(worktrees)))
	for _, wt := range worktrees {
		grp.Go(func() error {
			if s.stopped.Load() || gctx.Err() != nil {
				return nil
			}
			var pr *models.PullRequest
			if !wt.IsDetached() {
				if match, ok := prs[wt.BranchName()]; ok {
					pr = &match
				}
			}
			var checks *models.ChecksSummary
			if pr != nil && pr.State == models.PRStateOpen {
				summary := s.forge.ChecksRollup(gctx, s.root, s.slug, pr.Number)
				checks = &summary
			}

			seed := models.WorktreeStatus{Path: wt.Path, Branch: wt.Branch}
			if row, ok := s.state.Row(wt.Path); ok {
				seed = row.Status
			}
			st := status.ApplyRemote(seed, pr, checks)
			s.state.SetForge(wt.Path, st)
			if row, ok := s.state.Row(wt.Path); ok {
				st = row.Status
			}
			if err := s.store.UpsertPRAndChecks(wt.Key(), st); err != nil {
				log.Printf("refresh: upsert pr %s: %v", wt.Key(), err)
			}
			s.emit(Event{Kind: EventRows})
			return nil
		})
	}
	_ = grp.Wait()
}
