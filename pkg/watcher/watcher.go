package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ctavolazzi/mission-control/pkg/log"
	"github.com/ctavolazzi/mission-control/pkg/metrics"
)

const (
	// DefaultDebounce is the quiescence window before an update signal.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultThrottleFloor is the minimum separation between two update
	// signals for the same repo, however bursty the underlying events.
	DefaultThrottleFloor = 2 * time.Second
)

// Options tunes the debounce and throttle windows.
type Options struct {
	Debounce      time.Duration
	ThrottleFloor time.Duration
}

// Watcher owns per-repo filesystem subscriptions and their timers. It emits
// coalesced update(repo) signals and error(repo) signals; it never parses and
// never touches repository state.
type Watcher struct {
	debounce time.Duration
	throttle time.Duration
	onUpdate func(repo string)
	onError  func(repo string, err error)

	mu     sync.Mutex
	repos  map[string]*repoWatch
	closed bool
	wg     sync.WaitGroup
}

type repoWatch struct {
	name   string
	root   string
	fsw    *fsnotify.Watcher
	stopCh chan struct{}

	lastEmit time.Time
	pending  bool
}

// New creates a watcher delivering signals through the given callbacks.
// Callbacks are invoked from per-repo goroutines and must be safe for
// concurrent use.
func New(onUpdate func(repo string), onError func(repo string, err error), opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.ThrottleFloor <= 0 {
		opts.ThrottleFloor = DefaultThrottleFloor
	}
	return &Watcher{
		debounce: opts.Debounce,
		throttle: opts.ThrottleFloor,
		onUpdate: onUpdate,
		onError:  onError,
		repos:    make(map[string]*repoWatch),
	}
}

// Watch subscribes to filesystem changes under workEffortsDir for the named
// repo. Subdirectories created later are picked up automatically.
func (w *Watcher) Watch(repo, workEffortsDir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if _, exists := w.repos[repo]; exists {
		return fmt.Errorf("repo %s is already watched", repo)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %v", err)
	}
	if err := addRecursive(fsw, workEffortsDir, workEffortsDir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %v", workEffortsDir, err)
	}

	rw := &repoWatch{
		name:   repo,
		root:   workEffortsDir,
		fsw:    fsw,
		stopCh: make(chan struct{}),
	}
	w.repos[repo] = rw

	w.wg.Add(1)
	go w.run(rw)
	return nil
}

// Unwatch tears down the subscription for one repo. No further signals are
// delivered for it after Unwatch returns.
func (w *Watcher) Unwatch(repo string) {
	w.mu.Lock()
	rw, ok := w.repos[repo]
	if ok {
		delete(w.repos, repo)
	}
	w.mu.Unlock()

	if ok {
		close(rw.stopCh)
		rw.fsw.Close()
	}
}

// Close drains all armed timers and closes every underlying watch. It
// guarantees no further emissions for any repo once it returns.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	repos := w.repos
	w.repos = make(map[string]*repoWatch)
	w.mu.Unlock()

	for _, rw := range repos {
		close(rw.stopCh)
		rw.fsw.Close()
	}
	w.wg.Wait()
}

// run is the per-repo timer loop: debounce raw events into one trailing
// signal, then hold signals at least a throttle floor apart.
func (w *Watcher) run(rw *repoWatch) {
	defer w.wg.Done()
	logger := log.WithComponent("watcher")

	var debounceC <-chan time.Time
	var throttleC <-chan time.Time

	for {
		select {
		case ev, ok := <-rw.fsw.Events:
			if !ok {
				return
			}
			if ignoredUnder(rw.root, ev.Name) {
				continue
			}
			metrics.WatcherEventsTotal.WithLabelValues(rw.name).Inc()
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addRecursive(rw.fsw, rw.root, ev.Name); err != nil {
						logger.Warn().Err(err).Str("repo", rw.name).Str("path", ev.Name).Msg("failed to watch new directory")
					}
				}
			}
			// Any raw event re-arms the debounce window.
			debounceC = time.After(w.debounce)

		case <-debounceC:
			debounceC = nil
			now := time.Now()
			if since := now.Sub(rw.lastEmit); !rw.lastEmit.IsZero() && since < w.throttle {
				// Inside the throttle window: coalesce into at most one
				// trailing emission.
				if !rw.pending {
					rw.pending = true
					throttleC = time.After(w.throttle - since)
				}
				continue
			}
			rw.lastEmit = now
			w.onUpdate(rw.name)

		case <-throttleC:
			throttleC = nil
			if rw.pending {
				rw.pending = false
				rw.lastEmit = time.Now()
				w.onUpdate(rw.name)
			}

		case err, ok := <-rw.fsw.Errors:
			if !ok {
				return
			}
			w.onError(rw.name, err)

		case <-rw.stopCh:
			return
		}
	}
}

// ignoredUnder filters out paths the pipeline must not react to: VCS
// internals, editor swap files, and hidden dotfiles. Only components below
// root are considered, so a repo rooted under a hidden ancestor directory is
// still watched.
func ignoredUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return ignored(rel)
}

// ignored applies the filter to a root-relative path.
func ignored(rel string) bool {
	base := filepath.Base(rel)
	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".swo") || strings.HasSuffix(base, ".tmp") {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".git" {
			return true
		}
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// addRecursive registers dir and every directory below it, filtering hidden
// entries relative to root.
func addRecursive(fsw *fsnotify.Watcher, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && ignoredUnder(root, path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
