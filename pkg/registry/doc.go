/*
Package registry owns the set of tracked repositories, their parsed state,
and the pipeline that keeps both in sync with the filesystem.

# Architecture

	config.json ──▶ Registry ──▶ repoEntry (one per repo)
	                   │              │ per-repo mutation lock
	                   │              ▼
	                   │         RepoState snapshot (swapped whole)
	                   │              │
	   watcher ────────┤        detector diff ──▶ event bus
	   update/error    │              │
	                   │              ▼
	                   └────────▶ broadcast hub (update / repo_change /
	                                              error frames)

# Integration Points

The filesystem is the source of truth. Mutating operations (AddRepo,
RemoveRepo, BulkAdd) persist the configuration document before touching
memory; PatchStatus rewrites only the first status line of a work effort's
own markdown file and lets the watcher drive the refresh. Refresh re-parses,
swaps the snapshot pointer, feeds the prior and new snapshots to the change
detector, and broadcasts the update.

The initial parse of each repo is its baseline: it broadcasts state but
emits no change events, so startup does not replay a created-event flood.

Reads (Get, Snapshot) hand out snapshot pointers that callers must treat as
immutable; refreshes never mutate a published snapshot in place.
*/
package registry
