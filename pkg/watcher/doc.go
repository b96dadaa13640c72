/*
Package watcher turns raw filesystem notifications into coalesced per-repo
refresh signals.

One fsnotify subscription is held per watched repository, rooted at its
work-efforts directory and extended automatically as subdirectories appear.
A dedicated goroutine per repo owns two timers:

Debounce: any raw event re-arms a quiescence window (default 300ms); the
update(repo) signal fires once when the window elapses with no further
events.

Throttle floor: successive update signals for the same repo are separated by
at least a configured minimum (default 2s). Debounce windows elapsing inside
the floor coalesce into at most one trailing emission.

The watcher owns timers and subscriptions only. It never parses and never
touches repository state; the registry reacts to its signals. Close drains
all timers and guarantees no further emissions.

VCS internals (.git), editor swap files, and hidden dotfiles below the
watched root are ignored; hidden ancestors of the root itself are not.

AssetWatcher is a separate development-only convenience that reports changed
static-asset filenames for the hot_reload frame; it is not part of the repo
pipeline.
*/
package watcher
