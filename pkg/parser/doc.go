/*
Package parser converts a repository's artifact tree into typed records.

Two on-disk conventions are recognized side by side:

MCP format (current):

	_work_efforts/
	  WE-260501-ab12_demo_effort/
	    WE-260501-ab12_index.md        <- YAML frontmatter + markdown body
	    tickets/
	      TKT-ab12-001_first_task.md   <- suffix must match the parent

Johnny Decimal format (legacy):

	_work_efforts/
	  10-19_projects/
	    10_active/
	      10.01_migrate_database.md

ParseRepo is pure: it reads the filesystem, mutates nothing shared, and is
safe to call from any worker. Failure isolation is per artifact: a malformed
frontmatter block yields a record with default fields and a ParseError note,
never an aborted scan. Only repository-level problems (no work-efforts
directory, unreadable directory) surface in ParseResult.Error.

GetRepoStats computes the full aggregate in one linear pass; status keys are
normalized to lower-case underscore form before counting.

The exported regular expressions (WEDirRe, TicketFileRe, CheckpointFileRe,
JD*Re) are the single source of truth for artifact naming and are reused by
the counter migrator and validator.
*/
package parser
