package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chmouel/gw/internal/log"
)

// watchDebounce is the debounce window for watcher events.
const watchDebounce = 600 * time.Millisecond

// gitWatcher watches the repository's git directory and coalesces bursts
// of filesystem events into single refresh triggers.
type gitWatcher struct {
	watcher *fsnotify.Watcher
	events  chan struct{}
	done    chan struct{}
}

// newGitWatcher watches the interesting subtrees of the git dir: HEAD
// moves, ref updates and worktree metadata changes all land there.
func newGitWatcher(gitDir string) (*gitWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &gitWatcher{
		watcher: watcher,
		events:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	w.addDir(gitDir)
	for _, sub := range []string{"refs", "logs", "worktrees"} {
		w.addTree(filepath.Join(gitDir, sub))
	}
	go w.run()
	return w, nil
}

func (w *gitWatcher) addDir(dir string) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		log.Printf("watch: add %s: %v", dir, err)
	}
}

func (w *gitWatcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			w.addDir(path)
		}
		return nil
	})
}

func (w *gitWatcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				w.addDir(ev.Name)
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch: %v", err)
		case <-timerC:
			select {
			case w.events <- struct{}{}:
			default:
			}
		}
	}
}

// Events delivers one value per debounced change burst.
func (w *gitWatcher) Events() <-chan struct{} {
	return w.events
}

// Stop shuts the watcher down.
func (w *gitWatcher) Stop() {
	close(w.done)
	_ = w.watcher.Close()
}
