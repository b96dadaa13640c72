package watcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// AssetWatcher is a development-only convenience that watches a static-asset
// directory and reports changed filenames for hot reload. It is unrelated to
// repository state and is wired only when the server runs with a dev-assets
// directory configured.
type AssetWatcher struct {
	dir    string
	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	done   chan struct{}
}

// WatchAssets starts watching dir and invokes onReload with the base name of
// each changed file, debounced per file path.
func WatchAssets(dir string, onReload func(file string)) (*AssetWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create asset watcher: %v", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch assets dir %s: %v", dir, err)
	}

	aw := &AssetWatcher{dir: dir, fsw: fsw, stopCh: make(chan struct{}), done: make(chan struct{})}
	go aw.run(onReload)
	return aw, nil
}

func (aw *AssetWatcher) run(onReload func(file string)) {
	defer close(aw.done)

	pending := make(map[string]bool)
	var flushC <-chan time.Time

	for {
		select {
		case ev, ok := <-aw.fsw.Events:
			if !ok {
				return
			}
			if ignoredUnder(aw.dir, ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[filepath.Base(ev.Name)] = true
			if flushC == nil {
				flushC = time.After(100 * time.Millisecond)
			}

		case <-flushC:
			flushC = nil
			for file := range pending {
				onReload(file)
			}
			pending = make(map[string]bool)

		case _, ok := <-aw.fsw.Errors:
			if !ok {
				return
			}

		case <-aw.stopCh:
			return
		}
	}
}

// Close stops the asset watcher.
func (aw *AssetWatcher) Close() {
	close(aw.stopCh)
	aw.fsw.Close()
	<-aw.done
}
