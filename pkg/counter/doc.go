/*
Package counter issues monotonically increasing identifiers for work efforts,
tickets, and checkpoints, backed by a durable, integrity-checked state file.

# Architecture

	┌──────────────────── COUNTER SERVICE ────────────────────┐
	│                                                          │
	│  GetNext / SetCounter                                    │
	│        │ (one lock, strictly serialized)                 │
	│        ▼                                                 │
	│  ┌───────────────┐   checksum over {version, counters}  │
	│  │  State         │──────────────────────────────────┐   │
	│  │  counters      │                                  ▼   │
	│  │  integrity     │   SHA-256 hex, recomputed on     │   │
	│  │  audit ring    │   every mutation                 │   │
	│  └───────┬───────┘                                      │
	│          │ atomic write-then-rename                     │
	│          ▼                                              │
	│  counter-state.json                                     │
	└──────────────────────────────────────────────────────────┘

Every mutation appends an audit entry (increments record the new value and
allocation context; overrides record old value, new value, and a reason),
recomputes the checksum, and persists atomically before returning. The audit
log is a ring capped at MaxAuditEntries.

On load, a checksum mismatch means the file was edited out of band: the
corrupt bytes are backed up to a timestamped sibling file, the counters are
accepted as-is, and the checksum is recomputed. Durability of the exact value
is sacrificed rather than availability.

# Reconciliation

Migrator scans the configured work-efforts trees with the parser's ID
patterns and counts artifacts on disk; Report diffs that against stored
counters, Preview lists the overrides a migration would issue, and Migrate
applies them. Validator runs five checks (global work-effort count, global
ticket count, per-work-effort ticket counts, checksum validity, ID format
consistency) and generates suggestions; Repair executes the auto-applicable
ones, auditing each with a reason naming the failed check.

# Usage

	svc, err := counter.NewService("counter-state.json")
	n, err := svc.GetNext(counter.KindTicket, counter.Context{
		Repo:     "_pyrite",
		ParentWE: "WE-260501-ab12",
	})
*/
package counter
