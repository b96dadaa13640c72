package registry

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctavolazzi/mission-control/pkg/broadcast"
	"github.com/ctavolazzi/mission-control/pkg/config"
	"github.com/ctavolazzi/mission-control/pkg/events"
	"github.com/ctavolazzi/mission-control/pkg/log"
	"github.com/ctavolazzi/mission-control/pkg/types"
	"github.com/ctavolazzi/mission-control/pkg/watcher"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

// frameSink records broadcast frames.
type frameSink struct {
	mu     sync.Mutex
	frames []broadcast.Frame
}

func (fs *frameSink) Broadcast(frame broadcast.Frame) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.frames = append(fs.frames, frame)
}

func (fs *frameSink) types() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []string
	for _, f := range fs.frames {
		out = append(out, f.Type())
	}
	return out
}

// repoFixture builds a repo with one work effort and returns its root.
func repoFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeWorkEffort(t, root, "WE-260501-ab12", "Demo", "active")
	return root
}

func writeWorkEffort(t *testing.T, root, weID, title, status string) {
	t.Helper()
	weDir := filepath.Join(root, "_work_efforts", weID+"_demo")
	require.NoError(t, os.MkdirAll(weDir, 0755))
	index := "---\nid: " + weID + "\ntitle: " + title + "\nstatus: " + status + "\n---\n\n# " + title + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(weDir, weID+"_index.md"), []byte(index), 0644))
}

func newTestRegistry(t *testing.T, repos ...types.RepoConfig) (*Registry, *frameSink, *events.Bus, string) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	cfg := config.DefaultConfig()
	cfg.Repos = repos
	require.NoError(t, config.Save(cfgPath, cfg))

	bus := events.NewBus()
	reg := New(cfg, cfgPath, bus, watcher.Options{
		Debounce:      30 * time.Millisecond,
		ThrottleFloor: 50 * time.Millisecond,
	})
	sink := &frameSink{}
	reg.SetBroadcaster(sink)
	t.Cleanup(func() {
		reg.Close()
		bus.Close()
	})
	return reg, sink, bus, cfgPath
}

// TestInitParsesConfiguredRepos tests startup attachment
func TestInitParsesConfiguredRepos(t *testing.T) {
	root := repoFixture(t)
	reg, sink, _, _ := newTestRegistry(t, types.RepoConfig{Name: "_pyrite", Path: root})
	reg.Init()

	state, ok := reg.Get("_pyrite")
	require.True(t, ok)
	assert.Equal(t, 1, state.Stats.Total)
	assert.Empty(t, state.Error)
	assert.Equal(t, []string{"_pyrite"}, reg.RepoNames())

	// Baseline parse broadcasts an update but emits no change events.
	assert.Contains(t, sink.types(), "update")
}

// TestInitBaselineEmitsNoChangeEvents tests startup flood suppression
func TestInitBaselineEmitsNoChangeEvents(t *testing.T) {
	root := repoFixture(t)
	cfgRepo := types.RepoConfig{Name: "_pyrite", Path: root}
	reg, _, bus, _ := newTestRegistry(t, cfgRepo)

	var created []string
	var mu sync.Mutex
	bus.On("workeffort:*", func(ev *events.Event) {
		mu.Lock()
		created = append(created, ev.Type)
		mu.Unlock()
	})

	reg.Init()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, created)
}

// TestAddRepoPersistsBeforeMemory tests the add path
func TestAddRepoPersistsBeforeMemory(t *testing.T) {
	reg, sink, bus, cfgPath := newTestRegistry(t)
	reg.Init()

	added := make(chan string, 1)
	bus.On("repo:added", func(ev *events.Event) {
		repo, _ := ev.Data["repo"].(string)
		added <- repo
	})

	root := repoFixture(t)
	state, err := reg.AddRepo("_pyrite", root)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 1, state.Stats.Total)

	// The configuration on disk includes the repo.
	persisted, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Len(t, persisted.Repos, 1)
	assert.Equal(t, "_pyrite", persisted.Repos[0].Name)

	select {
	case repo := <-added:
		assert.Equal(t, "_pyrite", repo)
	case <-time.After(time.Second):
		t.Fatal("repo:added not emitted")
	}
	assert.Contains(t, sink.types(), "repo_change")
}

// TestAddRepoRejectsDuplicatesAndBadPaths tests validation
func TestAddRepoRejectsDuplicatesAndBadPaths(t *testing.T) {
	root := repoFixture(t)
	reg, _, _, _ := newTestRegistry(t, types.RepoConfig{Name: "_pyrite", Path: root})
	reg.Init()

	_, err := reg.AddRepo("_pyrite", root)
	assert.ErrorIs(t, err, ErrRepoExists)

	_, err = reg.AddRepo("ghost", filepath.Join(root, "missing"))
	assert.Error(t, err)

	_, err = reg.AddRepo("", root)
	assert.Error(t, err)
}

// TestAddRepoRequiresWorkEffortsDir tests that bare directories are rejected
func TestAddRepoRequiresWorkEffortsDir(t *testing.T) {
	reg, _, _, cfgPath := newTestRegistry(t)
	reg.Init()

	bare := t.TempDir()
	_, err := reg.AddRepo("bare", bare)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no work efforts directory")

	// Nothing was persisted or registered.
	_, ok := reg.Get("bare")
	assert.False(t, ok)
	persisted, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Empty(t, persisted.Repos)

	// The bulk path applies the same validation.
	result := reg.BulkAdd([]string{bare})
	assert.Empty(t, result.Added)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, "no work efforts directory")
}

// TestRemoveRepo tests detachment and persistence
func TestRemoveRepo(t *testing.T) {
	root := repoFixture(t)
	reg, sink, _, cfgPath := newTestRegistry(t, types.RepoConfig{Name: "_pyrite", Path: root})
	reg.Init()

	require.NoError(t, reg.RemoveRepo("_pyrite"))

	_, ok := reg.Get("_pyrite")
	assert.False(t, ok)
	assert.Empty(t, reg.RepoNames())

	persisted, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Empty(t, persisted.Repos)

	assert.Contains(t, sink.types(), "repo_change")
	assert.ErrorIs(t, reg.RemoveRepo("_pyrite"), ErrRepoNotFound)
}

// TestBulkAddPerPathIsolation tests that bad paths do not poison the batch
func TestBulkAddPerPathIsolation(t *testing.T) {
	good := repoFixture(t)
	reg, sink, bus, _ := newTestRegistry(t)
	reg.Init()

	bulk := make(chan int, 1)
	bus.On("repo:bulk_added", func(ev *events.Event) {
		count, _ := ev.Data["count"].(int)
		bulk <- count
	})

	result := reg.BulkAdd([]string{good, "/does/not/exist"})
	require.Len(t, result.Added, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, filepath.Base(good), result.Added[0].Name)
	assert.Equal(t, "/does/not/exist", result.Errors[0].Path)

	select {
	case count := <-bulk:
		assert.Equal(t, 1, count)
	case <-time.After(time.Second):
		t.Fatal("repo:bulk_added not emitted")
	}
	assert.Contains(t, sink.types(), "repo_change")

	// A second bulk add of the same path collides on name.
	again := reg.BulkAdd([]string{good})
	assert.Empty(t, again.Added)
	require.Len(t, again.Errors, 1)
	assert.Contains(t, again.Errors[0].Error, "already added")
}

// TestRefreshDetectsChanges tests the parse-swap-diff cycle
func TestRefreshDetectsChanges(t *testing.T) {
	root := repoFixture(t)
	reg, sink, bus, _ := newTestRegistry(t, types.RepoConfig{Name: "_pyrite", Path: root})
	reg.Init()

	created := make(chan string, 4)
	bus.On("workeffort:created", func(ev *events.Event) {
		id, _ := ev.Data["id"].(string)
		created <- id
	})

	writeWorkEffort(t, root, "WE-260502-cd34", "Second", "active")
	require.NoError(t, reg.Refresh("_pyrite"))

	select {
	case id := <-created:
		assert.Equal(t, "WE-260502-cd34", id)
	case <-time.After(time.Second):
		t.Fatal("workeffort:created not emitted")
	}

	state, _ := reg.Get("_pyrite")
	assert.Equal(t, 2, state.Stats.Total)
	assert.Contains(t, sink.types(), "update")

	assert.ErrorIs(t, reg.Refresh("ghost"), ErrRepoNotFound)
}

// TestWatcherDrivesRefresh tests end-to-end fs change handling
func TestWatcherDrivesRefresh(t *testing.T) {
	root := repoFixture(t)
	reg, _, bus, _ := newTestRegistry(t, types.RepoConfig{Name: "_pyrite", Path: root})
	reg.Init()

	completed := make(chan struct{}, 1)
	bus.On("workeffort:completed", func(ev *events.Event) {
		completed <- struct{}{}
	})

	// Flip the status on disk; the watcher should refresh and the detector
	// should classify the transition.
	index := filepath.Join(root, "_work_efforts", "WE-260501-ab12_demo", "WE-260501-ab12_index.md")
	data, err := os.ReadFile(index)
	require.NoError(t, err)
	edited := strings.Replace(string(data), "status: active", "status: completed", 1)
	require.NoError(t, os.WriteFile(index, []byte(edited), 0644))

	select {
	case <-completed:
	case <-time.After(3 * time.Second):
		t.Fatal("fs change did not produce workeffort:completed")
	}
}

// TestPatchStatusRewritesOnlyStatusLine tests the constrained file edit
func TestPatchStatusRewritesOnlyStatusLine(t *testing.T) {
	root := repoFixture(t)
	reg, _, _, _ := newTestRegistry(t, types.RepoConfig{Name: "_pyrite", Path: root})
	reg.Init()

	index := filepath.Join(root, "_work_efforts", "WE-260501-ab12_demo", "WE-260501-ab12_index.md")
	before, err := os.ReadFile(index)
	require.NoError(t, err)

	require.NoError(t, reg.PatchStatus("_pyrite", "WE-260501-ab12", "Completed"))

	after, err := os.ReadFile(index)
	require.NoError(t, err)
	assert.Contains(t, string(after), "status: completed")
	// Only the status line changed.
	assert.Equal(t,
		strings.Replace(string(before), "status: active", "status: completed", 1),
		string(after))
}

// TestPatchStatusValidation tests the error taxonomy
func TestPatchStatusValidation(t *testing.T) {
	root := repoFixture(t)
	reg, _, _, _ := newTestRegistry(t, types.RepoConfig{Name: "_pyrite", Path: root})
	reg.Init()

	assert.ErrorIs(t, reg.PatchStatus("_pyrite", "WE-260501-ab12", "launched"), ErrInvalidStatus)
	assert.ErrorIs(t, reg.PatchStatus("_pyrite", "WE-999999-zz99", "completed"), ErrWorkEffortNotFound)
	assert.ErrorIs(t, reg.PatchStatus("ghost", "WE-260501-ab12", "completed"), ErrRepoNotFound)
}

// TestSnapshotAndHasPath tests read-side helpers
func TestSnapshotAndHasPath(t *testing.T) {
	root := repoFixture(t)
	reg, _, _, _ := newTestRegistry(t, types.RepoConfig{Name: "_pyrite", Path: root})
	reg.Init()

	snap := reg.Snapshot()
	require.Contains(t, snap, "_pyrite")
	assert.Equal(t, 1, snap["_pyrite"].Stats.Total)

	assert.True(t, reg.HasPath(root))
	assert.False(t, reg.HasPath(filepath.Join(root, "elsewhere")))

	targets := reg.ScanTargets()
	require.Len(t, targets, 1)
	assert.Equal(t, "_pyrite", targets[0].Name)
	assert.Equal(t, root, targets[0].Path)
}
