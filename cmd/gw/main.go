// Package main is the entry point for the gw application.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	urfavecli "github.com/urfave/cli/v2"

	"github.com/chmouel/gw/internal/app"
	"github.com/chmouel/gw/internal/cache"
	"github.com/chmouel/gw/internal/config"
	"github.com/chmouel/gw/internal/forge"
	"github.com/chmouel/gw/internal/git"
	"github.com/chmouel/gw/internal/log"
	"github.com/chmouel/gw/internal/models"
	"github.com/chmouel/gw/internal/refresh"
	"github.com/chmouel/gw/internal/state"
	"github.com/chmouel/gw/internal/status"
	"github.com/chmouel/gw/internal/theme"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cliApp := &urfavecli.App{
		Name:    "gw",
		Usage:   "An interactive overview of your git worktrees",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),

		Flags: []urfavecli.Flag{
			&urfavecli.StringFlag{
				Name:  "config-file",
				Usage: "Path to the config file",
				Value: config.DefaultPath(),
			},
			&urfavecli.StringFlag{
				Name:  "debug-log",
				Usage: "Write debug logs to this file",
			},
			&urfavecli.BoolFlag{
				Name:  "no-forge",
				Usage: "Skip the gh-backed pull request columns",
			},
			&urfavecli.BoolFlag{
				Name:  "plain",
				Usage: "Print the table once and exit",
			},
		},

		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gw: %v\n", err)
		os.Exit(1)
	}
}

func run(c *urfavecli.Context) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(c.String("config-file"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "gw: config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	debugLog := c.String("debug-log")
	if debugLog == "" {
		debugLog = cfg.DebugLog
	}
	if err := log.SetFile(config.ExpandPath(debugLog)); err != nil {
		fmt.Fprintf(os.Stderr, "gw: debug log %q: %v\n", debugLog, err)
	}
	defer func() { _ = log.Close() }()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	gitSvc := git.NewService(nil)
	root, err := gitSvc.RepoRoot(ctx, cwd)
	if err != nil {
		return err
	}
	defaultBranch := gitSvc.DefaultBranch(ctx, root)

	cachePath, err := cache.PathFor(config.ExpandPath(cfg.CacheDir), root)
	if err != nil {
		return fmt.Errorf("cache path: %w", err)
	}
	store, err := cache.Open(cachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	slug := forge.ParseRepoSlug(gitSvc.RemoteURL(ctx, root))
	warning := ""
	forgeOn := cfg.ForgeEnabled() && !c.Bool("no-forge")
	if forgeOn {
		switch {
		case !forge.Available():
			warning = "gh CLI not found; pull request data disabled."
			forgeOn = false
		case slug == "":
			warning = "origin is not a GitHub remote; pull request data disabled."
			forgeOn = false
		}
	}

	worktrees, err := gitSvc.ListWorktrees(ctx, root)
	if err != nil {
		return err
	}
	cached, err := store.LoadAll()
	if err != nil {
		return fmt.Errorf("load cache: %w", err)
	}

	st := state.New()
	st.SetInitial(worktrees, cached)
	if current, err := gitSvc.CurrentWorktree(ctx, root, cwd); err == nil && current != nil {
		st.Select(current.Path)
	}

	if c.Bool("plain") || !isatty.IsTerminal(os.Stdout.Fd()) {
		return runPlain(ctx, gitSvc, root, defaultBranch, worktrees, st)
	}

	sched := refresh.New(gitSvc, forge.NewClient(), store, st, refresh.Options{
		Root:       root,
		Slug:       slug,
		ForgeOn:    forgeOn,
		SyncRemote: cfg.SyncEnabled(),
	})

	model := app.New(ctx, gitSvc, store, st, sched, theme.Get(cfg.Theme), app.Options{
		Root:          root,
		DefaultBranch: defaultBranch,
		Warning:       warning,
		AutoRefresh:   cfg.AutoRefresh,
	})

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}

	if selected := model.SelectedPath(); selected != "" {
		return writeSelection(selected)
	}
	return nil
}

// runPlain probes every worktree synchronously and prints the table.
func runPlain(ctx context.Context, gitSvc *git.Service, root, defaultBranch string, worktrees []models.Worktree, st *state.State) error {
	for _, wt := range worktrees {
		seed := status.Placeholder(wt)
		if row, ok := st.Row(wt.Path); ok {
			seed = row.Status
		}
		st.SetLocal(wt.Path, status.BuildLocal(ctx, gitSvc, root, wt, seed))
	}
	fmt.Print(app.RenderPlainTable(st.Snapshot(), defaultBranch))
	return nil
}

// writeSelection emits the chosen worktree path: to the file named by
// GW_OUTPUT_FILE when set (for shell wrappers), otherwise to stdout.
func writeSelection(path string) error {
	if out := os.Getenv("GW_OUTPUT_FILE"); out != "" {
		return os.WriteFile(out, []byte(path+"\n"), 0o600)
	}
	fmt.Println(path)
	return nil
}
