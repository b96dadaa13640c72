/*
Package detector classifies the difference between two repository snapshots
into typed domain events.

Given the prior and current RepoState for a repo, Detect returns an ordered
change list:

  - workeffort:created for IDs present only in the new snapshot (followed by
    ticket:created for each of their tickets)
  - workeffort:completed / started / paused / updated for status changes,
    chosen by the new status
  - ticket:created / completed / blocked / updated from the per-WE ticket diff

Detect is pure and never touches registry state; the registry feeds its
result to Publish, which emits onto the event bus in order.

A nil prior snapshot produces no events: the initial parse is treated as the
baseline so startup does not replay a created-event flood for pre-existing
work efforts.
*/
package detector
