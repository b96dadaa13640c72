package broadcast

import (
	"github.com/ctavolazzi/mission-control/pkg/types"
)

// Frame types the server sends.
const (
	FrameInit       = "init"
	FrameUpdate     = "update"
	FrameRepoChange = "repo_change"
	FrameError      = "error"
	FrameHotReload  = "hot_reload"
)

// Frame is one JSON message to clients, tagged by its "type" key.
type Frame map[string]any

// Type returns the frame's type tag.
func (f Frame) Type() string {
	t, _ := f["type"].(string)
	return t
}

// InitFrame carries the full snapshot sent once per session after handshake.
func InitFrame(repos map[string]*types.RepoState) Frame {
	return Frame{"type": FrameInit, "repos": repos}
}

// UpdateFrame carries one repo's replaced state.
func UpdateFrame(repo string, state *types.RepoState) Frame {
	return Frame{
		"type":        FrameUpdate,
		"repo":        repo,
		"workEfforts": state.WorkEfforts,
		"stats":       state.Stats,
		"error":       state.Error,
	}
}

// RepoAddedFrame announces a single repo joining the active set.
func RepoAddedFrame(repo string) Frame {
	return Frame{"type": FrameRepoChange, "action": "added", "repo": repo}
}

// RepoRemovedFrame announces a repo leaving the active set.
func RepoRemovedFrame(repo string) Frame {
	return Frame{"type": FrameRepoChange, "action": "removed", "repo": repo}
}

// BulkAddedFrame announces several repos joining at once.
func BulkAddedFrame(repos []types.RepoConfig) Frame {
	return Frame{"type": FrameRepoChange, "action": "bulk_added", "repos": repos}
}

// ErrorFrame reports a recoverable server-side error for one repo.
func ErrorFrame(repo, message string) Frame {
	return Frame{"type": FrameError, "repo": repo, "message": message}
}

// HotReloadFrame tells development clients a static asset changed.
func HotReloadFrame(file string) Frame {
	return Frame{"type": FrameHotReload, "file": file}
}
