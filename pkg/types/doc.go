/*
Package types defines the core data structures shared across Mission Control.

This package contains the domain model for project-management artifacts parsed
from disk, including work efforts, tickets, aggregate repository statistics,
repository snapshots, and the persisted server configuration. These types are
used by all other packages for parsing, state management, change detection,
and client communication.

# Core Types

Artifacts:
  - WorkEffort: A tracked unit of work (WE-YYMMDD-xxxx or Johnny Decimal ID)
  - Ticket: A child unit belonging to one work effort (TKT-xxxx-NNN)
  - Format: Source convention a record was parsed from (mcp or jd)

Aggregates:
  - RepoStats: Full aggregate over a repository's work efforts
  - RepoState: Immutable in-memory snapshot of one repository

Configuration:
  - Config: Persisted config.json document (port, repos, debounceMs)
  - RepoConfig: One configured repository (name, path)

# Status Vocabulary

Work efforts: active, in_progress, paused, completed, pending, blocked.
Tickets: pending, in_progress, completed, blocked.

Raw frontmatter values are folded through NormalizeStatus before they are
counted or compared, so "In Progress" and "in-progress" both land on
"in_progress". Aggregation keys in RepoStats are always normalized.

# Snapshot Discipline

RepoState values are published by the registry behind a pointer swap and must
be treated as immutable by readers. A refresh builds a complete replacement
snapshot and recomputes RepoStats from scratch; nothing ever patches a stats
field in place.

# Integration Points

This package integrates with:

  - pkg/parser: Produces WorkEffort/Ticket/RepoStats from a repo tree
  - pkg/registry: Owns the RepoState map and configuration
  - pkg/detector: Diffs consecutive RepoState snapshots
  - pkg/broadcast: Serializes RepoState into websocket frames
  - pkg/config: Loads and saves Config
*/
package types
