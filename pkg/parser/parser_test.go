package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctavolazzi/mission-control/pkg/types"
)

// writeFile creates path (and parents) with the given content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// writeWorkEffort lays out a minimal MCP work effort and returns its dir.
func writeWorkEffort(t *testing.T, root, weID, slug, status string) string {
	t.Helper()
	dir := filepath.Join(root, "_work_efforts", weID+"_"+slug)
	writeFile(t, filepath.Join(dir, weID+"_index.md"), fmt.Sprintf(`---
id: %s
title: "%s"
status: %s
created: 2026-05-01T10:00:00Z
created_by: tester
branch: main
---

# %s
`, weID, slug, status, slug))
	return dir
}

func writeTicket(t *testing.T, weDir, tktID, slug, status, parent string) {
	t.Helper()
	writeFile(t, filepath.Join(weDir, "tickets", tktID+"_"+slug+".md"), fmt.Sprintf(`---
id: %s
parent: %s
title: "%s"
status: %s
---
`, tktID, parent, slug, status))
}

// TestParseRepoMissingWorkEffortsDir tests the repo-level error path
func TestParseRepoMissingWorkEffortsDir(t *testing.T) {
	result := ParseRepo(t.TempDir())

	assert.Equal(t, "No _work_efforts folder found", result.Error)
	assert.Empty(t, result.WorkEfforts)
}

// TestParseRepoAlternateDirName tests the _work_efforts_ fallback
func TestParseRepoAlternateDirName(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "_work_efforts_", "WE-260501-ab12_demo")
	writeFile(t, filepath.Join(dir, "WE-260501-ab12_index.md"), "---\nid: WE-260501-ab12\ntitle: demo\nstatus: active\n---\n")

	result := ParseRepo(root)
	require.Empty(t, result.Error)
	require.Len(t, result.WorkEfforts, 1)
	assert.Equal(t, "WE-260501-ab12", result.WorkEfforts[0].ID)
}

// TestParseRepoMCP tests the full MCP path with tickets
func TestParseRepoMCP(t *testing.T) {
	root := t.TempDir()
	weDir := writeWorkEffort(t, root, "WE-260501-ab12", "demo_effort", "in_progress")
	writeTicket(t, weDir, "TKT-ab12-001", "first_task", "completed", "WE-260501-ab12")
	writeTicket(t, weDir, "TKT-ab12-002", "second_task", "pending", "WE-260501-ab12")
	// Ticket with a foreign suffix must be skipped.
	writeTicket(t, weDir, "TKT-zz99-001", "stray", "pending", "WE-260501-zz99")

	result := ParseRepo(root)
	require.Empty(t, result.Error)
	require.Len(t, result.WorkEfforts, 1)

	we := result.WorkEfforts[0]
	assert.Equal(t, "WE-260501-ab12", we.ID)
	assert.Equal(t, types.FormatMCP, we.Format)
	assert.Equal(t, "demo_effort", we.Title)
	assert.Equal(t, "in_progress", we.Status)
	assert.Equal(t, "main", we.Branch)
	assert.Equal(t, "2026-05-01T10:00:00Z", we.Created)

	require.Len(t, we.Tickets, 2)
	assert.Equal(t, "TKT-ab12-001", we.Tickets[0].ID)
	assert.Equal(t, "completed", we.Tickets[0].Status)
	assert.Equal(t, "TKT-ab12-002", we.Tickets[1].ID)
	assert.Equal(t, "WE-260501-ab12", we.Tickets[1].Parent)
}

// TestParseRepoTicketOrdering tests lexicographic ticket order by filename
func TestParseRepoTicketOrdering(t *testing.T) {
	root := t.TempDir()
	weDir := writeWorkEffort(t, root, "WE-260501-ab12", "demo", "active")
	writeTicket(t, weDir, "TKT-ab12-003", "c", "pending", "WE-260501-ab12")
	writeTicket(t, weDir, "TKT-ab12-001", "a", "pending", "WE-260501-ab12")
	writeTicket(t, weDir, "TKT-ab12-002", "b", "pending", "WE-260501-ab12")

	result := ParseRepo(root)
	require.Len(t, result.WorkEfforts, 1)
	ids := []string{}
	for _, tk := range result.WorkEfforts[0].Tickets {
		ids = append(ids, tk.ID)
	}
	assert.Equal(t, []string{"TKT-ab12-001", "TKT-ab12-002", "TKT-ab12-003"}, ids)
}

// TestParseRepoJohnnyDecimal tests the legacy layout
func TestParseRepoJohnnyDecimal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "_work_efforts", "10-19_projects", "10_active", "10.01_migrate_database.md"),
		"---\ntitle: Migrate database\nstatus: In Progress\n---\nbody\n")
	writeFile(t, filepath.Join(root, "_work_efforts", "10-19_projects", "10_active", "10.02_cleanup.md"),
		"---\ntitle: Cleanup\nstatus: completed\n---\n")

	result := ParseRepo(root)
	require.Empty(t, result.Error)
	require.Len(t, result.WorkEfforts, 2)

	we := result.WorkEfforts[0]
	assert.Equal(t, "10.01", we.ID)
	assert.Equal(t, types.FormatJD, we.Format)
	assert.Equal(t, "10-19_projects", we.Category)
	assert.Equal(t, "in_progress", we.Status)
	assert.Empty(t, we.Tickets)
}

// TestParseRepoIgnoresUnrecognizedEntries tests totality over mixed trees
func TestParseRepoIgnoresUnrecognizedEntries(t *testing.T) {
	root := t.TempDir()
	writeWorkEffort(t, root, "WE-260501-ab12", "demo", "active")
	writeFile(t, filepath.Join(root, "_work_efforts", "notes.md"), "scratch")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_work_efforts", "random_dir"), 0755))

	result := ParseRepo(root)
	assert.Len(t, result.WorkEfforts, 1)
}

// TestParseRepoMalformedFrontmatterIsolated tests artifact-level isolation
func TestParseRepoMalformedFrontmatterIsolated(t *testing.T) {
	root := t.TempDir()
	writeWorkEffort(t, root, "WE-260501-ab12", "good", "active")
	badDir := filepath.Join(root, "_work_efforts", "WE-260502-cd34_bad")
	writeFile(t, filepath.Join(badDir, "WE-260502-cd34_index.md"), "---\nstatus: [unclosed\n---\n")

	result := ParseRepo(root)
	require.Len(t, result.WorkEfforts, 2)

	var bad *types.WorkEffort
	for _, we := range result.WorkEfforts {
		if we.ID == "WE-260502-cd34" {
			bad = we
		}
	}
	require.NotNil(t, bad)
	assert.NotEmpty(t, bad.ParseError)
	assert.Equal(t, "active", bad.Status, "defaults applied on parse failure")
}

// TestParseRepoMissingIndexFile tests the no-index error note
func TestParseRepoMissingIndexFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_work_efforts", "WE-260501-ab12_empty"), 0755))

	result := ParseRepo(root)
	require.Len(t, result.WorkEfforts, 1)
	assert.Equal(t, "WE-260501-ab12", result.WorkEfforts[0].ID)
	assert.Equal(t, "no index file found", result.WorkEfforts[0].ParseError)
}

// TestParseRepoDuplicateIDs tests the repo-level duplicate surfacing
func TestParseRepoDuplicateIDs(t *testing.T) {
	root := t.TempDir()
	writeWorkEffort(t, root, "WE-260501-ab12", "one", "active")
	dir := filepath.Join(root, "_work_efforts", "WE-260502-cd34_two")
	writeFile(t, filepath.Join(dir, "WE-260502-cd34_index.md"),
		"---\nid: WE-260501-ab12\ntitle: two\nstatus: active\n---\n")

	result := ParseRepo(root)
	assert.Len(t, result.WorkEfforts, 2)
	assert.Contains(t, result.Error, "duplicate work effort id WE-260501-ab12")
}

// TestTicketIDFormat tests the ID format property over parsed tickets
func TestTicketIDFormat(t *testing.T) {
	root := t.TempDir()
	weDir := writeWorkEffort(t, root, "WE-260501-ab12", "demo", "active")
	for i := 1; i <= 5; i++ {
		writeTicket(t, weDir, fmt.Sprintf("TKT-ab12-%03d", i), fmt.Sprintf("t%d", i), "pending", "WE-260501-ab12")
	}

	result := ParseRepo(root)
	require.Len(t, result.WorkEfforts, 1)
	for _, tk := range result.WorkEfforts[0].Tickets {
		assert.Regexp(t, `^TKT-[a-z0-9]{4}-\d{3}$`, tk.ID)
		assert.Equal(t, "ab12", tk.ID[4:8])
		assert.Equal(t, "ab12", tk.Parent[len(tk.Parent)-4:])
	}
}

// TestGetRepoStats tests the aggregate invariants
func TestGetRepoStats(t *testing.T) {
	ws := []*types.WorkEffort{
		{ID: "WE-1", Format: types.FormatMCP, Status: "active", Tickets: []*types.Ticket{
			{ID: "TKT-1", Status: "pending"},
			{ID: "TKT-2", Status: "completed"},
		}},
		{ID: "WE-2", Format: types.FormatMCP, Status: "Active"},
		{ID: "10.01", Format: types.FormatJD, Status: "completed"},
	}

	stats := GetRepoStats(ws)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByFormat.MCP)
	assert.Equal(t, 1, stats.ByFormat.JD)
	assert.Equal(t, 2, stats.ByStatus["active"], "status keys are normalized")
	assert.Equal(t, 1, stats.ByStatus["completed"])
	assert.Equal(t, 2, stats.TotalTickets)
	assert.Equal(t, 1, stats.TicketsByStatus["pending"])

	sum := 0
	for _, n := range stats.ByStatus {
		sum += n
	}
	assert.Equal(t, stats.Total, sum)

	tSum := 0
	for _, n := range stats.TicketsByStatus {
		tSum += n
	}
	assert.Equal(t, stats.TotalTickets, tSum)
}

// TestGetRepoStatsEmpty tests the zero case
func TestGetRepoStatsEmpty(t *testing.T) {
	stats := GetRepoStats(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0, stats.TotalTickets)
	assert.NotNil(t, stats.ByStatus)
	assert.NotNil(t, stats.TicketsByStatus)
}

// TestParseFrontmatterRoundTrip tests that key fields survive exactly
func TestParseFrontmatterRoundTrip(t *testing.T) {
	doc := `---
id: WE-260501-ab12
title: "A title, with punctuation"
status: paused
created: 2026-05-01T10:00:00Z
---

Body text stays out of the frontmatter.
`
	fm, body, err := ParseFrontmatter([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "WE-260501-ab12", fm.ID)
	assert.Equal(t, "A title, with punctuation", fm.Title)
	assert.Equal(t, "paused", fm.Status)
	assert.Contains(t, body, "Body text")
}

// TestParseFrontmatterByteOrderMark tests that a leading BOM is stripped
func TestParseFrontmatterByteOrderMark(t *testing.T) {
	doc := "\uFEFF---\nid: WE-260501-ab12\nstatus: active\n---\nbody\n"

	fm, body, err := ParseFrontmatter([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "WE-260501-ab12", fm.ID)
	assert.Equal(t, "active", fm.Status)
	assert.Contains(t, body, "body")
}

// TestParseFrontmatterNoBlock tests plain markdown handling
func TestParseFrontmatterNoBlock(t *testing.T) {
	fm, body, err := ParseFrontmatter([]byte("# Just markdown\n"))
	assert.Error(t, err)
	assert.Empty(t, fm.ID)
	assert.Contains(t, body, "Just markdown")
}
