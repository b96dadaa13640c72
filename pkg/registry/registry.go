package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ctavolazzi/mission-control/pkg/broadcast"
	"github.com/ctavolazzi/mission-control/pkg/config"
	"github.com/ctavolazzi/mission-control/pkg/detector"
	"github.com/ctavolazzi/mission-control/pkg/events"
	"github.com/ctavolazzi/mission-control/pkg/log"
	"github.com/ctavolazzi/mission-control/pkg/metrics"
	"github.com/ctavolazzi/mission-control/pkg/parser"
	"github.com/ctavolazzi/mission-control/pkg/types"
	"github.com/ctavolazzi/mission-control/pkg/watcher"
)

var (
	ErrRepoNotFound       = errors.New("repo not found")
	ErrRepoExists         = errors.New("repo already added")
	ErrWorkEffortNotFound = errors.New("work effort not found")
	ErrInvalidStatus      = errors.New("invalid status")
)

// Broadcaster is the outbound side of the registry. Satisfied by
// *broadcast.Hub; nil-safe via SetBroadcaster never being called.
type Broadcaster interface {
	Broadcast(frame broadcast.Frame)
}

// Registry owns the set of tracked repositories and their parsed state. The
// filesystem is the source of truth: mutations touch disk first and rely on
// the parse/refresh cycle to update memory.
type Registry struct {
	cfgPath string
	bus     *events.Bus

	mu    sync.RWMutex
	cfg   *types.Config
	repos map[string]*repoEntry

	hub     Broadcaster
	watcher *watcher.Watcher
}

// repoEntry serializes mutations for one repo. The state pointer is swapped
// whole on refresh, never mutated in place.
type repoEntry struct {
	mu    sync.Mutex
	name  string
	path  string
	state *types.RepoState
}

// New creates a registry over the given configuration. Call Init to parse
// and watch the configured repos.
func New(cfg *types.Config, cfgPath string, bus *events.Bus, opts watcher.Options) *Registry {
	r := &Registry{
		cfgPath: cfgPath,
		bus:     bus,
		cfg:     cfg,
		repos:   make(map[string]*repoEntry),
	}
	r.watcher = watcher.New(r.onWatcherUpdate, r.onWatcherError, opts)
	return r
}

// SetBroadcaster wires the websocket hub. Must be called before Init so
// startup updates reach clients.
func (r *Registry) SetBroadcaster(b Broadcaster) {
	r.hub = b
}

// Init parses and watches every configured repo. Per-repo failures become
// RepoState errors, not startup failures.
func (r *Registry) Init() {
	logger := log.WithComponent("registry")
	for _, rc := range r.cfg.Repos {
		if err := r.attach(rc.Name, rc.Path); err != nil {
			logger.Error().Err(err).Str("repo", rc.Name).Msg("failed to attach repo")
		}
	}
	logger.Info().Int("repos", len(r.cfg.Repos)).Msg("registry initialized")
}

// attach registers a repo entry, performs the initial parse, and starts the
// watcher. The first parse is the baseline: no change events are emitted.
func (r *Registry) attach(name, path string) error {
	entry := &repoEntry{name: name, path: path}

	r.mu.Lock()
	if _, exists := r.repos[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRepoExists, name)
	}
	r.repos[name] = entry
	metrics.ReposActive.Set(float64(len(r.repos)))
	r.mu.Unlock()

	r.refreshEntry(entry, false)

	if dir := parser.FindWorkEffortsDir(path); dir != "" {
		if err := r.watcher.Watch(name, dir); err != nil {
			logger := log.WithRepo(name)
			logger.Warn().Err(err).Msg("failed to start watcher")
		}
	}
	return nil
}

// validateRepoPath rejects paths that are not directories or that carry no
// work-efforts tree in either naming convention.
func validateRepoPath(path string) error {
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	if parser.FindWorkEffortsDir(path) == "" {
		return fmt.Errorf("no work efforts directory found under %s", path)
	}
	return nil
}

// AddRepo validates, parses, persists configuration, then exposes the repo.
func (r *Registry) AddRepo(name, path string) (*types.RepoState, error) {
	if name == "" || path == "" {
		return nil, fmt.Errorf("name and path are required")
	}
	if err := validateRepoPath(path); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.repos[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRepoExists, name)
	}
	// Disk before memory: persist the new config first.
	newCfg := r.cfg.Clone()
	newCfg.Repos = append(newCfg.Repos, types.RepoConfig{Name: name, Path: path})
	if err := config.Save(r.cfgPath, newCfg); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.cfg = newCfg
	r.mu.Unlock()

	if err := r.attach(name, path); err != nil {
		return nil, err
	}

	state, _ := r.Get(name)
	r.bus.Emit("repo:added", map[string]any{"repo": name, "path": path})
	r.broadcast(broadcast.RepoAddedFrame(name))
	logger := log.WithRepo(name)
	logger.Info().Str("path", path).Msg("repo added")
	return state, nil
}

// RemoveRepo detaches the watcher, drops state, and persists configuration.
func (r *Registry) RemoveRepo(name string) error {
	r.mu.Lock()
	if _, exists := r.repos[name]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRepoNotFound, name)
	}
	newCfg := r.cfg.Clone()
	kept := newCfg.Repos[:0]
	for _, rc := range newCfg.Repos {
		if rc.Name != name {
			kept = append(kept, rc)
		}
	}
	newCfg.Repos = kept
	if err := config.Save(r.cfgPath, newCfg); err != nil {
		r.mu.Unlock()
		return err
	}
	r.cfg = newCfg
	delete(r.repos, name)
	metrics.ReposActive.Set(float64(len(r.repos)))
	r.mu.Unlock()

	r.watcher.Unwatch(name)
	metrics.DropRepoGauges(name)
	r.bus.Emit("repo:removed", map[string]any{"repo": name})
	r.broadcast(broadcast.RepoRemovedFrame(name))
	logger := log.WithRepo(name)
	logger.Info().Msg("repo removed")
	return nil
}

// BulkAddResult collects the per-path outcome of a bulk add.
type BulkAddResult struct {
	Added  []types.RepoConfig `json:"added"`
	Errors []BulkAddError     `json:"errors"`
}

// BulkAddError pairs a rejected path with its reason.
type BulkAddError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BulkAdd adds every path independently, deriving each repo name from the
// path's base name. Name collisions reject that path only. One
// repo:bulk_added event and one bulk_added frame cover the whole batch.
func (r *Registry) BulkAdd(paths []string) BulkAddResult {
	var result BulkAddResult
	for _, path := range paths {
		name := filepath.Base(filepath.Clean(path))
		if _, err := r.addQuiet(name, path); err != nil {
			result.Errors = append(result.Errors, BulkAddError{Path: path, Error: err.Error()})
			continue
		}
		result.Added = append(result.Added, types.RepoConfig{Name: name, Path: path})
	}

	if len(result.Added) > 0 {
		r.bus.Emit("repo:bulk_added", map[string]any{"count": len(result.Added), "repos": result.Added})
		r.broadcast(broadcast.BulkAddedFrame(result.Added))
	}
	return result
}

// addQuiet is AddRepo without the single-repo event and frame.
func (r *Registry) addQuiet(name, path string) (*types.RepoState, error) {
	if err := validateRepoPath(path); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.repos[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRepoExists, name)
	}
	newCfg := r.cfg.Clone()
	newCfg.Repos = append(newCfg.Repos, types.RepoConfig{Name: name, Path: path})
	if err := config.Save(r.cfgPath, newCfg); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.cfg = newCfg
	r.mu.Unlock()

	if err := r.attach(name, path); err != nil {
		return nil, err
	}
	state, _ := r.Get(name)
	return state, nil
}

// Refresh re-parses one repo, swaps its snapshot, diffs against the prior
// one, and pushes the update to clients.
func (r *Registry) Refresh(name string) error {
	r.mu.RLock()
	entry, ok := r.repos[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, name)
	}
	r.refreshEntry(entry, true)
	return nil
}

// refreshEntry performs the parse-swap-diff-broadcast cycle. detect false
// suppresses change events, used for the baseline parse.
func (r *Registry) refreshEntry(entry *repoEntry, detect bool) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	timer := metrics.NewTimer()
	result := parser.ParseRepo(entry.path)
	timer.ObserveDuration(metrics.ParseDuration)
	metrics.ParsesTotal.WithLabelValues(entry.name).Inc()

	stats := parser.GetRepoStats(result.WorkEfforts)
	newState := &types.RepoState{
		WorkEfforts: result.WorkEfforts,
		Stats:       stats,
		Error:       result.Error,
		LastUpdated: time.Now().UTC(),
	}

	r.mu.Lock()
	prev := entry.state
	entry.state = newState
	r.mu.Unlock()

	metrics.SetRepoGauges(entry.name, stats.ByStatus, stats.TicketsByStatus)

	if detect {
		changes := detector.Detect(entry.name, prev, newState)
		detector.Publish(r.bus, changes)
	}
	r.broadcast(broadcast.UpdateFrame(entry.name, newState))

	logger := log.WithRepo(entry.name)
	if result.Error != "" {
		logger.Warn().Str("error", result.Error).Int("workEfforts", stats.Total).Msg("repo refreshed with errors")
	} else {
		logger.Debug().Int("workEfforts", stats.Total).Msg("repo refreshed")
	}
}

// statusLineRe matches exactly one frontmatter status line, anchored to line
// start so body text is never touched.
var statusLineRe = regexp.MustCompile(`(?m)^status:[ \t]*.*$`)

// PatchStatus rewrites the first status: line of the work effort's own
// markdown file. Memory is not touched; the watcher picks the write up and
// drives the refresh cycle.
func (r *Registry) PatchStatus(repoName, weID, newStatus string) error {
	normalized := types.NormalizeStatus(newStatus)
	if !types.ValidWorkEffortStatus(normalized) {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidStatus, newStatus,
			strings.Join(types.WorkEffortStatuses, ", "))
	}

	r.mu.RLock()
	entry, ok := r.repos[repoName]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, repoName)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	r.mu.RLock()
	state := entry.state
	r.mu.RUnlock()
	if state == nil {
		return fmt.Errorf("%w: %s", ErrWorkEffortNotFound, weID)
	}
	we := state.FindWorkEffort(weID)
	if we == nil {
		return fmt.Errorf("%w: %s", ErrWorkEffortNotFound, weID)
	}
	if info, err := os.Stat(we.Path); err != nil || info.IsDir() {
		return fmt.Errorf("work effort %s has no editable index file", weID)
	}

	data, err := os.ReadFile(we.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", we.Path, err)
	}

	loc := statusLineRe.FindIndex(data)
	if loc == nil {
		return fmt.Errorf("no status line in %s", we.Path)
	}
	patched := make([]byte, 0, len(data))
	patched = append(patched, data[:loc[0]]...)
	patched = append(patched, []byte("status: "+normalized)...)
	patched = append(patched, data[loc[1]:]...)

	if err := os.WriteFile(we.Path, patched, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %v", we.Path, err)
	}

	logger := log.WithRepo(repoName)
	logger.Info().
		Str("workEffort", weID).
		Str("status", normalized).
		Msg("status patched")
	return nil
}

// Get returns the current snapshot for one repo. Callers must treat it as
// immutable.
func (r *Registry) Get(name string) (*types.RepoState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.repos[name]
	if !ok || entry.state == nil {
		return nil, false
	}
	return entry.state, true
}

// Snapshot returns the full repo-state map for init frames and listings.
func (r *Registry) Snapshot() map[string]*types.RepoState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*types.RepoState, len(r.repos))
	for name, entry := range r.repos {
		if entry.state != nil {
			out[name] = entry.state
		}
	}
	return out
}

// RepoNames lists tracked repos in sorted order.
func (r *Registry) RepoNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.repos))
	for name := range r.repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPath reports whether a filesystem path is already tracked.
func (r *Registry) HasPath(path string) bool {
	clean := filepath.Clean(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.repos {
		if filepath.Clean(entry.path) == clean {
			return true
		}
	}
	return false
}

// ScanTargets exposes the tracked repos for counter reconciliation.
func (r *Registry) ScanTargets() []types.RepoConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]types.RepoConfig, 0, len(r.repos))
	for _, entry := range r.repos {
		targets = append(targets, types.RepoConfig{Name: entry.name, Path: entry.path})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })
	return targets
}

// onWatcherUpdate is the watcher's coalesced change signal.
func (r *Registry) onWatcherUpdate(repo string) {
	if err := r.Refresh(repo); err != nil {
		logger := log.WithRepo(repo)
		logger.Warn().Err(err).Msg("refresh after fs change failed")
	}
}

// onWatcherError surfaces watcher failures to clients.
func (r *Registry) onWatcherError(repo string, err error) {
	logger := log.WithRepo(repo)
	logger.Error().Err(err).Msg("watcher error")
	r.broadcast(broadcast.ErrorFrame(repo, err.Error()))
}

func (r *Registry) broadcast(frame broadcast.Frame) {
	if r.hub != nil {
		r.hub.Broadcast(frame)
	}
}

// Close stops the watcher. Pending refreshes finish first.
func (r *Registry) Close() {
	r.watcher.Close()
}
